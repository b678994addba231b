package positionid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"lineledger/core/types"
	"lineledger/observability/metrics"
)

var errZeroAddress = errors.New("positionid: zero address in id triple")

// CreditLib is the on-chain library exposing the canonical id routine.
type CreditLib interface {
	ComputeID(ctx context.Context, line, lender, token common.Address) (common.Hash, error)
}

var tripleArgs = func() abi.Arguments {
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: addressType}, {Type: addressType}, {Type: addressType}}
}()

// Compute returns keccak256(abi.encode(line, lender, token)), the same value
// the on-chain routine produces.
func Compute(line, lender, token common.Address) (common.Hash, error) {
	if line == (common.Address{}) || lender == (common.Address{}) || token == (common.Address{}) {
		return common.Hash{}, errZeroAddress
	}
	packed, err := tripleArgs.Pack(line, lender, token)
	if err != nil {
		return common.Hash{}, fmt.Errorf("positionid: encode: %w", err)
	}
	return crypto.Keccak256Hash(packed), nil
}

// Deriver resolves position ids, preferring the on-chain library and falling
// back to the local computation.
type Deriver struct {
	lib     CreditLib
	logger  *slog.Logger
	metrics *metrics.IndexerMetrics
}

// NewDeriver constructs a deriver. A nil lib always uses the local path.
func NewDeriver(lib CreditLib) *Deriver {
	return &Deriver{lib: lib, logger: slog.Default()}
}

func (d *Deriver) SetLogger(l *slog.Logger) {
	if d == nil || l == nil {
		return
	}
	d.logger = l
}

func (d *Deriver) SetMetrics(m *metrics.IndexerMetrics) {
	if d == nil {
		return
	}
	d.metrics = m
}

// Derive returns the position id for (line, lender, token). The boolean is
// false when any address is zero, since the line can never hold such a
// position, or when neither path yields an id; callers must then treat the
// proposal as rejected and not materialise a position.
func (d *Deriver) Derive(ctx context.Context, line, lender, token common.Address) (common.Hash, bool) {
	if line == (common.Address{}) || lender == (common.Address{}) || token == (common.Address{}) {
		d.logger.Warn("positionid: malformed id triple",
			slog.String("line", types.AddressKey(line)),
			slog.String("lender", types.AddressKey(lender)),
			slog.String("token", types.AddressKey(token)))
		return common.Hash{}, false
	}
	if d.lib != nil {
		id, err := d.lib.ComputeID(ctx, line, lender, token)
		if err == nil && id != (common.Hash{}) {
			return id, true
		}
		if err == nil {
			err = errors.New("empty id")
		}
		d.logger.Warn("positionid: credit lib call failed, computing locally",
			slog.String("line", types.AddressKey(line)),
			slog.Any("error", err))
		d.metrics.ObserveDegraded("creditlib")
	}
	id, err := Compute(line, lender, token)
	if err != nil {
		d.logger.Error("positionid: local computation failed", slog.Any("error", err))
		return common.Hash{}, false
	}
	return id, true
}
