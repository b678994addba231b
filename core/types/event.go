package types

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Event is an immutable audit record derived from one processed chain event.
// Records are keyed by ID, which is stable across replays of the same log.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Block      uint64            `json:"block"`
	Timestamp  uint64            `json:"timestamp"`
	TxHash     common.Hash       `json:"txHash"`
	LogIndex   uint              `json:"logIndex"`
	Contract   common.Address    `json:"contract"`
	Attributes map[string]string `json:"attributes"`
}

// EventID composes the globally unique audit key for a record of the given type
// produced by the log at (txHash, logIndex).
func EventID(eventType string, txHash common.Hash, logIndex uint) string {
	return fmt.Sprintf("%s-%s-%d", eventType, strings.ToLower(txHash.Hex()), logIndex)
}

// Attr returns the attribute value or an empty string.
func (e *Event) Attr(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}
