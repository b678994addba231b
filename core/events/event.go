package events

import (
	"sync"

	"lineledger/core/types"
)

// Event represents a structured ledger change.
type Event interface {
	EventType() string
}

// Payload is an Event that can render itself as an audit record.
type Payload interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts stamped audit records to downstream subscribers (SQL
// index, Kafka, exports).
type Emitter interface {
	Emit(*types.Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(*types.Event) {}

// MultiEmitter fans a record out to every registered emitter in order.
type MultiEmitter struct {
	mu       sync.RWMutex
	emitters []Emitter
}

// NewMultiEmitter wraps the provided emitters, skipping nil entries.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	m := &MultiEmitter{}
	for _, e := range emitters {
		m.Add(e)
	}
	return m
}

// Add registers another emitter.
func (m *MultiEmitter) Add(e Emitter) {
	if e == nil {
		return
	}
	m.mu.Lock()
	m.emitters = append(m.emitters, e)
	m.mu.Unlock()
}

// Emit implements the Emitter interface.
func (m *MultiEmitter) Emit(evt *types.Event) {
	if evt == nil {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.emitters {
		e.Emit(evt)
	}
}

// Stamp renders payload as an audit record anchored to the chain event that
// produced it. The id is <type>-<txHash>-<logIndex>; records fanned out from a
// single log pass a non-empty suffix to keep ids unique.
func Stamp(payload Payload, src *types.ChainEvent, suffix string) *types.Event {
	evt := payload.Event()
	if evt == nil {
		return nil
	}
	if evt.Attributes == nil {
		evt.Attributes = map[string]string{}
	}
	if src == nil {
		return evt
	}
	evt.ID = types.EventID(evt.Type, src.TxHash, src.LogIndex)
	if suffix != "" {
		evt.ID += "-" + suffix
	}
	evt.Block = src.BlockNumber
	evt.Timestamp = src.BlockTime
	evt.TxHash = src.TxHash
	evt.LogIndex = src.LogIndex
	evt.Contract = src.Contract
	return evt
}
