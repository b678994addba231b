package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ledgererrors "lineledger/core/errors"
	"lineledger/core/events"
	"lineledger/core/state"
	"lineledger/core/types"
	"lineledger/observability/metrics"
)

// Handler applies one decoded chain event.
type Handler func(context.Context, *types.ChainEvent) error

// Engine exposes the event kinds it handles.
type Engine interface {
	Routes() map[types.EventKind]func(context.Context, *types.ChainEvent) error
}

type emitterSetter interface {
	SetEmitter(events.Emitter)
}

type cursorStore interface {
	Cursor() (state.Cursor, bool, error)
	SetCursor(block uint64, logIndex uint) error
}

// Outcome labels recorded per event.
const (
	OutcomeApplied  = "applied"
	OutcomeIgnored  = "ignored"
	OutcomeReplayed = "replayed"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Dispatcher routes chain events to engine handlers strictly in order and
// advances the resume cursor after each one.
type Dispatcher struct {
	handlers    map[types.EventKind]Handler
	cursor      cursorStore
	skipMissing bool
	scope       func(context.Context, *types.ChainEvent) context.Context
	logger      *slog.Logger
	metrics     *metrics.IndexerMetrics
	tracer      trace.Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSkipMissing logs and skips events referencing an unknown entity instead
// of halting.
func WithSkipMissing(skip bool) Option {
	return func(d *Dispatcher) { d.skipMissing = skip }
}

// WithEventScope derives the context each handler runs in, for example to pin
// contract reads to the event's block.
func WithEventScope(scope func(context.Context, *types.ChainEvent) context.Context) Option {
	return func(d *Dispatcher) { d.scope = scope }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

func WithMetrics(m *metrics.IndexerMetrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New builds a dispatcher over the routes of engines. When emitter is non-nil
// it is installed on every engine that accepts one. Two engines claiming the
// same kind is a configuration error.
func New(cursor cursorStore, emitter events.Emitter, engines []Engine, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[types.EventKind]Handler),
		cursor:   cursor,
		logger:   slog.Default(),
		tracer:   otel.Tracer("lineledger/dispatch"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	for _, engine := range engines {
		if engine == nil {
			continue
		}
		if emitter != nil {
			if setter, ok := engine.(emitterSetter); ok {
				setter.SetEmitter(emitter)
			}
		}
		for kind, handler := range engine.Routes() {
			if _, dup := d.handlers[kind]; dup {
				return nil, fmt.Errorf("dispatch: kind %s routed twice", kind)
			}
			d.handlers[kind] = handler
		}
	}
	return d, nil
}

// Kinds lists the routed event kinds.
func (d *Dispatcher) Kinds() []types.EventKind {
	kinds := make([]types.EventKind, 0, len(d.handlers))
	for kind := range d.handlers {
		kinds = append(kinds, kind)
	}
	return kinds
}

// Apply runs the handler for evt. Events at or before the stored cursor are
// skipped. A handler error leaves the cursor where it was and is returned,
// except for missing entities when skipping is enabled.
func (d *Dispatcher) Apply(ctx context.Context, evt *types.ChainEvent) error {
	if evt == nil {
		return nil
	}
	started := time.Now()
	if d.cursor != nil {
		cursor, ok, err := d.cursor.Cursor()
		if err != nil {
			return fmt.Errorf("dispatch: read cursor: %w", err)
		}
		if ok && !cursor.After(evt.BlockNumber, evt.LogIndex) {
			d.metrics.ObserveEvent(string(evt.Kind), OutcomeReplayed, time.Since(started))
			return nil
		}
	}

	handler, ok := d.handlers[evt.Kind]
	if !ok {
		d.logger.Debug("dispatch: no handler for event kind",
			slog.String("kind", string(evt.Kind)),
			slog.String("contract", types.AddressKey(evt.Contract)),
			slog.Uint64("block", evt.BlockNumber))
		d.metrics.ObserveEvent(string(evt.Kind), OutcomeIgnored, time.Since(started))
		return d.advance(evt)
	}

	ctx, span := d.tracer.Start(ctx, "dispatch."+string(evt.Kind),
		trace.WithAttributes(
			attribute.String("event.kind", string(evt.Kind)),
			attribute.String("event.contract", types.AddressKey(evt.Contract)),
			attribute.Int64("event.block", int64(evt.BlockNumber)),
			attribute.Int("event.log_index", int(evt.LogIndex)),
			attribute.String("event.tx", evt.TxHash.Hex()),
		))
	defer span.End()
	if d.scope != nil {
		ctx = d.scope(ctx, evt)
	}

	if err := handler(ctx, evt); err != nil {
		span.RecordError(err)
		if d.skipMissing && errors.Is(err, ledgererrors.ErrMissingEntity) {
			span.SetStatus(codes.Error, "missing entity skipped")
			d.logger.Error("dispatch: skipping event with missing entity",
				slog.String("kind", string(evt.Kind)),
				slog.String("contract", types.AddressKey(evt.Contract)),
				slog.String("tx", evt.TxHash.Hex()),
				slog.Uint64("block", evt.BlockNumber),
				slog.Uint64("logIndex", uint64(evt.LogIndex)),
				slog.Any("error", err))
			d.metrics.ObserveMissingEntity(string(evt.Kind))
			d.metrics.ObserveEvent(string(evt.Kind), OutcomeSkipped, time.Since(started))
			return d.advance(evt)
		}
		span.SetStatus(codes.Error, err.Error())
		d.metrics.ObserveEvent(string(evt.Kind), OutcomeFailed, time.Since(started))
		return fmt.Errorf("dispatch: %s at block %d log %d: %w", evt.Kind, evt.BlockNumber, evt.LogIndex, err)
	}
	span.SetStatus(codes.Ok, "applied")
	d.metrics.ObserveEvent(string(evt.Kind), OutcomeApplied, time.Since(started))
	return d.advance(evt)
}

// ApplyAll applies evts in order and stops at the first error.
func (d *Dispatcher) ApplyAll(ctx context.Context, evts []*types.ChainEvent) error {
	for _, evt := range evts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.Apply(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) advance(evt *types.ChainEvent) error {
	d.metrics.SetHeadBlock(evt.BlockNumber)
	if d.cursor == nil {
		return nil
	}
	if err := d.cursor.SetCursor(evt.BlockNumber, evt.LogIndex); err != nil {
		return fmt.Errorf("dispatch: advance cursor: %w", err)
	}
	return nil
}
