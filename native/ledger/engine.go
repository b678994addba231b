package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	ledgererrors "lineledger/core/errors"
	"lineledger/core/events"
	"lineledger/core/types"
	"lineledger/native/valuation"
	"lineledger/observability/metrics"
)

var (
	errNilState    = errors.New("ledger engine: state not configured")
	errNilValuer   = errors.New("ledger engine: valuation not configured")
	errNilRegistry = errors.New("ledger engine: token registry not configured")
)

type engineState interface {
	Line(id common.Address) (*types.Line, bool, error)
	PutLine(*types.Line) error
	Position(id common.Hash) (*types.Position, bool, error)
	PutPosition(*types.Position) error
	Escrow(id common.Address) (*types.Escrow, bool, error)
	PutEscrow(*types.Escrow) error
	EscrowDeposit(id string) (*types.EscrowDeposit, bool, error)
	PutEscrowDeposit(*types.EscrowDeposit) error
	SpigotController(id common.Address) (*types.SpigotController, bool, error)
	PutSpigotController(*types.SpigotController) error
	AppendEvent(*types.Event) (bool, error)
}

// LineReader reads the live configuration of a line contract.
type LineReader interface {
	Deadline(ctx context.Context, line common.Address) (uint64, error)
	Escrow(ctx context.Context, line common.Address) (common.Address, error)
	Spigot(ctx context.Context, line common.Address) (common.Address, error)
	SwapTarget(ctx context.Context, line common.Address) (common.Address, error)
}

// ModuleReader reads escrow and spigot module state.
type ModuleReader interface {
	MinimumCollateralRatio(ctx context.Context, escrow common.Address) (*big.Int, error)
	CollateralValue(ctx context.Context, escrow common.Address) (*big.Int, error)
	Operator(ctx context.Context, spigot common.Address) (common.Address, error)
	Treasury(ctx context.Context, spigot common.Address) (common.Address, error)
}

// Valuer prices token amounts through a line or escrow oracle.
type Valuer interface {
	Value(ctx context.Context, oracle common.Address, token *types.Token, amount *big.Int, block uint64) (valuation.Quote, error)
}

// TokenRegistry materialises token metadata on first reference.
type TokenRegistry interface {
	GetOrCreate(ctx context.Context, addr common.Address) (*types.Token, error)
}

// QueueResolver locates a position in a line's repayment queue.
type QueueResolver interface {
	Index(ctx context.Context, line common.Address, id common.Hash) types.QueueIndex
}

// Deprecation excludes deployments from retired factories after a cutoff
// block.
type Deprecation struct {
	Factories []common.Address
	Block     uint64
}

func (d Deprecation) excludes(factory common.Address, block uint64) bool {
	if block <= d.Block {
		return false
	}
	for _, f := range d.Factories {
		if f == factory {
			return true
		}
	}
	return false
}

// Engine applies line, escrow and factory events to the entity store.
type Engine struct {
	state       engineState
	emitter     events.Emitter
	lines       LineReader
	modules     ModuleReader
	valuer      Valuer
	tokens      TokenRegistry
	queue       QueueResolver
	deprecation Deprecation
	logger      *slog.Logger
	metrics     *metrics.IndexerMetrics
}

// Option configures an Engine.
type Option func(*Engine)

func WithLineReader(r LineReader) Option     { return func(e *Engine) { e.lines = r } }
func WithModuleReader(r ModuleReader) Option { return func(e *Engine) { e.modules = r } }
func WithQueue(q QueueResolver) Option       { return func(e *Engine) { e.queue = q } }
func WithDeprecation(d Deprecation) Option   { return func(e *Engine) { e.deprecation = d } }

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithMetrics(m *metrics.IndexerMetrics) Option { return func(e *Engine) { e.metrics = m } }

// NewEngine creates a ledger engine. The valuer and token registry are
// required; chain readers are optional and their absence degrades the fields
// they would populate.
func NewEngine(valuer Valuer, tokens TokenRegistry, opts ...Option) *Engine {
	e := &Engine{
		emitter: events.NoopEmitter{},
		valuer:  valuer,
		tokens:  tokens,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// SetState configures the entity store.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the audit emitter. Nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Routes lists the event kinds handled by the engine.
func (e *Engine) Routes() map[types.EventKind]func(context.Context, *types.ChainEvent) error {
	return map[types.EventKind]func(context.Context, *types.ChainEvent) error{
		types.KindDeployLine:          e.HandleDeployLine,
		types.KindUpdateStatus:        e.HandleUpdateStatus,
		types.KindAddCredit:           e.HandleAddCredit,
		types.KindIncreaseCredit:      e.HandleIncreaseCredit,
		types.KindSetRates:            e.HandleSetRates,
		types.KindBorrow:              e.HandleBorrow,
		types.KindInterestAccrued:     e.HandleInterestAccrued,
		types.KindRepayInterest:       e.HandleRepayInterest,
		types.KindRepayPrincipal:      e.HandleRepayPrincipal,
		types.KindWithdrawProfit:      e.HandleWithdrawProfit,
		types.KindWithdrawDeposit:     e.HandleWithdrawDeposit,
		types.KindCloseCreditPosition: e.HandleCloseCreditPosition,
		types.KindDefault:             e.HandleDefault,
		types.KindLiquidate:           e.HandleLiquidate,
		types.KindAddCollateral:       e.HandleAddCollateral,
		types.KindRemoveCollateral:    e.HandleRemoveCollateral,
		types.KindEnableCollateral:    e.HandleEnableCollateral,
		types.KindDeployedSecuredLine: e.HandleDeployedSecuredLine,
		types.KindDeployedSpigot:      e.HandleDeployedSpigot,
		types.KindDeployedEscrow:      e.HandleDeployedEscrow,
	}
}

func (e *Engine) ready() error {
	switch {
	case e.state == nil:
		return errNilState
	case e.valuer == nil:
		return errNilValuer
	case e.tokens == nil:
		return errNilRegistry
	}
	return nil
}

func (e *Engine) record(payload events.Payload, evt *types.ChainEvent, suffix string) error {
	_, err := events.Record(e.state, e.emitter, payload, evt, suffix)
	return err
}

func missing(kind string, id string) error {
	return fmt.Errorf("%w: %s %s", ledgererrors.ErrMissingEntity, kind, id)
}

func (e *Engine) requireLine(id common.Address) (*types.Line, error) {
	line, ok, err := e.state.Line(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, missing("line", types.AddressKey(id))
	}
	return line, nil
}

func (e *Engine) requirePosition(id common.Hash) (*types.Position, error) {
	pos, ok, err := e.state.Position(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, missing("position", types.HashKey(id))
	}
	return pos, nil
}

// positionID reads the position id, which some event versions name
// positionId rather than id.
func positionID(evt *types.ChainEvent) (common.Hash, error) {
	if !evt.Has("id") && evt.Has("positionId") {
		return evt.Hash("positionId")
	}
	return evt.Hash("id")
}

// value prices amount of token through oracle, materialising the token first.
func (e *Engine) value(ctx context.Context, oracle, token common.Address, amount *big.Int, evt *types.ChainEvent) (*types.Token, valuation.Quote, error) {
	tok, err := e.tokens.GetOrCreate(ctx, token)
	if err != nil {
		return nil, valuation.Quote{}, err
	}
	quote, err := e.valuer.Value(ctx, oracle, tok, amount, evt.BlockNumber)
	if err != nil {
		return tok, quote, err
	}
	if quote.Degraded {
		e.logger.Warn("ledger: valued at zero",
			slog.String("kind", string(evt.Kind)),
			slog.String("contract", types.AddressKey(evt.Contract)),
			slog.String("tx", evt.TxHash.Hex()),
			slog.Uint64("block", evt.BlockNumber),
			slog.Uint64("logIndex", uint64(evt.LogIndex)))
	}
	return tok, quote, nil
}

func (e *Engine) degraded(source string, evt *types.ChainEvent, err error) {
	e.logger.Warn("ledger: chain read failed, using fallback",
		slog.String("source", source),
		slog.String("kind", string(evt.Kind)),
		slog.String("contract", types.AddressKey(evt.Contract)),
		slog.String("tx", evt.TxHash.Hex()),
		slog.Uint64("block", evt.BlockNumber),
		slog.Uint64("logIndex", uint64(evt.LogIndex)),
		slog.Any("error", err))
	e.metrics.ObserveDegraded(source)
}

// subFloor subtracts amount from v and clamps the result at zero. It reports
// whether clamping was needed.
func subFloor(v, amount *big.Int) (*big.Int, bool) {
	out := new(big.Int).Sub(v, amount)
	if out.Sign() < 0 {
		return new(big.Int), true
	}
	return out, false
}

func (e *Engine) warnUnderflow(field string, pos *types.Position, evt *types.ChainEvent) {
	e.logger.Warn("ledger: amount would go negative, clamped at zero",
		slog.String("field", field),
		slog.String("position", types.HashKey(pos.ID)),
		slog.String("tx", evt.TxHash.Hex()),
		slog.Uint64("block", evt.BlockNumber))
}
