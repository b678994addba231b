package state

import (
	"github.com/ethereum/go-ethereum/common"

	"lineledger/core/types"
)

var (
	linePrefix       = []byte("line/")
	positionPrefix   = []byte("position/")
	proposalPrefix   = []byte("proposal/")
	escrowPrefix     = []byte("escrow/")
	depositPrefix    = []byte("deposit/")
	controllerPrefix = []byte("controller/")
	spigotPrefix     = []byte("spigot/")
	summaryPrefix    = []byte("summary/")
	reservePrefix    = []byte("reserve/")
	tokenPrefix      = []byte("token/")
	eventPrefix      = []byte("event/")
	cursorKey        = []byte("meta/cursor")
	watchedKey       = []byte("meta/watched")
	scannedKey       = []byte("meta/scanned")
)

func prefixed(prefix []byte, id string) []byte {
	buf := make([]byte, len(prefix)+len(id))
	copy(buf, prefix)
	copy(buf[len(prefix):], id)
	return buf
}

func lineKey(id common.Address) []byte       { return prefixed(linePrefix, types.AddressKey(id)) }
func positionKey(id common.Hash) []byte      { return prefixed(positionPrefix, types.HashKey(id)) }
func proposalKey(id string) []byte           { return prefixed(proposalPrefix, id) }
func escrowKey(id common.Address) []byte     { return prefixed(escrowPrefix, types.AddressKey(id)) }
func depositKey(id string) []byte            { return prefixed(depositPrefix, id) }
func controllerKey(id common.Address) []byte { return prefixed(controllerPrefix, types.AddressKey(id)) }
func spigotKey(id string) []byte             { return prefixed(spigotPrefix, id) }
func summaryKey(id string) []byte            { return prefixed(summaryPrefix, id) }
func reserveKey(id string) []byte            { return prefixed(reservePrefix, id) }
func tokenKey(addr common.Address) []byte    { return prefixed(tokenPrefix, types.AddressKey(addr)) }
func eventKey(id string) []byte              { return prefixed(eventPrefix, id) }
