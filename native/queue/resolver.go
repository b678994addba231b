package queue

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"lineledger/core/types"
)

// DefaultBound is the number of queue slots scanned per lookup. The on-chain
// queue never grows beyond it.
const DefaultBound = 100

// Reader exposes the line's live repayment queue accessor (ids(slot)).
type Reader interface {
	IDAt(ctx context.Context, line common.Address, slot uint64) (common.Hash, error)
}

// Resolver locates positions in a line's repayment queue.
type Resolver struct {
	reader Reader
	bound  uint64
	logger *slog.Logger
}

// NewResolver constructs a resolver scanning at most bound slots. A zero bound
// selects DefaultBound.
func NewResolver(reader Reader, bound uint64) *Resolver {
	if bound == 0 {
		bound = DefaultBound
	}
	return &Resolver{reader: reader, bound: bound, logger: slog.Default()}
}

func (r *Resolver) SetLogger(l *slog.Logger) {
	if r == nil || l == nil {
		return
	}
	r.logger = l
}

// Bound reports the configured scan bound.
func (r *Resolver) Bound() uint64 { return r.bound }

// Index returns the slot holding id, or NotInQueue when it is not among the
// first Bound slots. A failing slot read marks the end of the queue.
func (r *Resolver) Index(ctx context.Context, line common.Address, id common.Hash) types.QueueIndex {
	if r == nil || r.reader == nil {
		return types.NotInQueue
	}
	for slot := uint64(0); slot < r.bound; slot++ {
		if err := ctx.Err(); err != nil {
			return types.NotInQueue
		}
		got, err := r.reader.IDAt(ctx, line, slot)
		if err != nil {
			r.logger.Debug("queue: scan ended",
				slog.String("line", types.AddressKey(line)),
				slog.Uint64("slot", slot),
				slog.Any("error", err))
			return types.NotInQueue
		}
		if got == id {
			return types.QueueIndex(slot)
		}
	}
	return types.NotInQueue
}
