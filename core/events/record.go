package events

import (
	"fmt"

	"lineledger/core/types"
)

// Journal is the append-only audit log.
type Journal interface {
	AppendEvent(evt *types.Event) (bool, error)
}

// Record stamps payload against src, appends it to the journal and forwards it
// to emitter when it was not already present. Replaying a log therefore never
// re-emits a record.
func Record(journal Journal, emitter Emitter, payload Payload, src *types.ChainEvent, suffix string) (*types.Event, error) {
	evt := Stamp(payload, src, suffix)
	if evt == nil {
		return nil, nil
	}
	if journal == nil {
		return nil, fmt.Errorf("events: journal not configured")
	}
	inserted, err := journal.AppendEvent(evt)
	if err != nil {
		return nil, fmt.Errorf("append %s: %w", evt.ID, err)
	}
	if inserted && emitter != nil {
		emitter.Emit(evt)
	}
	return evt, nil
}
