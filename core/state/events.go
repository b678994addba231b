package state

import (
	"fmt"
	"strings"

	"lineledger/core/types"
)

// AppendEvent stores an audit record. Records are immutable: when a record
// with the same id already exists nothing is written and inserted is false,
// which makes replaying a log idempotent.
func (m *Manager) AppendEvent(evt *types.Event) (bool, error) {
	if evt == nil || strings.TrimSpace(evt.ID) == "" {
		return false, fmt.Errorf("state: audit record id required")
	}
	key := eventKey(evt.ID)
	exists, err := m.db.Has(key)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := m.KVPut(key, evt); err != nil {
		return false, err
	}
	return true, nil
}

// Event loads one audit record by id.
func (m *Manager) Event(id string) (*types.Event, bool, error) {
	return load[types.Event](m, eventKey(id))
}

// Events visits audit records whose id starts with idPrefix (usually an
// event type such as "credit.borrow").
func (m *Manager) Events(idPrefix string, fn func(*types.Event) bool) error {
	return scan(m, prefixed(eventPrefix, idPrefix), fn)
}
