package types

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// AddressKey renders an address as the lowercase hex key used for entity ids.
func AddressKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// HashKey renders a 32-byte id as lowercase hex.
func HashKey(h common.Hash) string {
	return strings.ToLower(h.Hex())
}

// PairID joins two addresses into the composite id used by escrow deposits,
// spigot bindings, revenue summaries and line reserves.
func PairID(a, b common.Address) string {
	return AddressKey(a) + "-" + AddressKey(b)
}

// AddressPtr returns nil for the zero address so nullable references never
// carry a sentinel value.
func AddressPtr(addr common.Address) *common.Address {
	if addr == (common.Address{}) {
		return nil
	}
	out := addr
	return &out
}

// HashPtr returns nil for the zero hash.
func HashPtr(h common.Hash) *common.Hash {
	if h == (common.Hash{}) {
		return nil
	}
	out := h
	return &out
}
