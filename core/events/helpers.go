package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"lineledger/core/types"
)

func setAddress(attrs map[string]string, key string, addr common.Address) {
	if addr != (common.Address{}) {
		attrs[key] = types.AddressKey(addr)
	}
}

func setAddressPtr(attrs map[string]string, key string, addr *common.Address) {
	if addr != nil {
		setAddress(attrs, key, *addr)
	}
}

func setHash(attrs map[string]string, key string, h common.Hash) {
	if h != (common.Hash{}) {
		attrs[key] = types.HashKey(h)
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func valueString(v decimal.Decimal) string {
	return v.String()
}

func uintString(v uint64) string {
	return strconv.FormatUint(v, 10)
}
