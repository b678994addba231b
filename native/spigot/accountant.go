package spigot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	ledgererrors "lineledger/core/errors"
	"lineledger/core/events"
	"lineledger/core/types"
	"lineledger/native/valuation"
	"lineledger/observability/metrics"
)

var (
	errNilState    = errors.New("spigot accountant: state not configured")
	errNilValuer   = errors.New("spigot accountant: valuation not configured")
	errNilRegistry = errors.New("spigot accountant: token registry not configured")
)

type accountantState interface {
	Line(id common.Address) (*types.Line, bool, error)
	SpigotController(id common.Address) (*types.SpigotController, bool, error)
	PutSpigotController(*types.SpigotController) error
	Spigot(id string) (*types.Spigot, bool, error)
	PutSpigot(*types.Spigot) error
	RevenueSummary(id string) (*types.SpigotRevenueSummary, bool, error)
	PutRevenueSummary(*types.SpigotRevenueSummary) error
	LineReserve(id string) (*types.LineReserve, bool, error)
	PutLineReserve(*types.LineReserve) error
	AppendEvent(*types.Event) (bool, error)
}

// Valuer prices amounts through a line oracle or a market signal.
type Valuer interface {
	Value(ctx context.Context, oracle common.Address, token *types.Token, amount *big.Int, block uint64) (valuation.Quote, error)
	MarketValue(ctx context.Context, token *types.Token, amount *big.Int, block uint64) valuation.Quote
	RecordPrice(token *types.Token, price decimal.Decimal, block uint64) error
}

// TokenRegistry materialises token metadata on first reference.
type TokenRegistry interface {
	GetOrCreate(ctx context.Context, addr common.Address) (*types.Token, error)
}

// Accountant tracks revenue claimed through spigots and its split between the
// owner and the operator.
type Accountant struct {
	state   accountantState
	emitter events.Emitter
	valuer  Valuer
	tokens  TokenRegistry
	logger  *slog.Logger
	metrics *metrics.IndexerMetrics
}

// NewAccountant creates an accountant with a no-op emitter.
func NewAccountant(valuer Valuer, tokens TokenRegistry) *Accountant {
	return &Accountant{
		emitter: events.NoopEmitter{},
		valuer:  valuer,
		tokens:  tokens,
		logger:  slog.Default(),
	}
}

// SetState configures the entity store.
func (a *Accountant) SetState(state accountantState) { a.state = state }

// SetEmitter configures the audit emitter. Nil resets it to a no-op.
func (a *Accountant) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		a.emitter = events.NoopEmitter{}
		return
	}
	a.emitter = emitter
}

func (a *Accountant) SetLogger(l *slog.Logger) {
	if l != nil {
		a.logger = l
	}
}

func (a *Accountant) SetMetrics(m *metrics.IndexerMetrics) { a.metrics = m }

// Routes lists the event kinds handled by the accountant.
func (a *Accountant) Routes() map[types.EventKind]func(context.Context, *types.ChainEvent) error {
	return map[types.EventKind]func(context.Context, *types.ChainEvent) error{
		types.KindAddSpigot:               a.HandleAddSpigot,
		types.KindRemoveSpigot:            a.HandleRemoveSpigot,
		types.KindClaimRevenue:            a.HandleClaimRevenue,
		types.KindClaimOwnerTokens:        a.HandleClaimOwnerTokens,
		types.KindClaimOperatorTokens:     a.HandleClaimOperatorTokens,
		types.KindUpdateOwnerSplit:        a.HandleUpdateOwnerSplit,
		types.KindUpdateOwner:             a.HandleUpdateOwner,
		types.KindUpdateOperator:          a.HandleUpdateOperator,
		types.KindUpdateWhitelistFunction: a.HandleUpdateWhitelistFunction,
		types.KindTradeSpigotRevenue:      a.HandleTradeSpigotRevenue,
		types.KindReservesChanged:         a.HandleReservesChanged,
	}
}

func (a *Accountant) ready() error {
	switch {
	case a.state == nil:
		return errNilState
	case a.valuer == nil:
		return errNilValuer
	case a.tokens == nil:
		return errNilRegistry
	}
	return nil
}

func (a *Accountant) record(payload events.Payload, evt *types.ChainEvent) error {
	_, err := events.Record(a.state, a.emitter, payload, evt, "")
	return err
}

func missing(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ledgererrors.ErrMissingEntity, kind, id)
}

func (a *Accountant) requireController(id common.Address) (*types.SpigotController, error) {
	controller, ok, err := a.state.SpigotController(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, missing("spigot controller", types.AddressKey(id))
	}
	return controller, nil
}

func (a *Accountant) requireSpigot(controller, contract common.Address) (*types.Spigot, error) {
	id := types.PairID(controller, contract)
	spigot, ok, err := a.state.Spigot(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, missing("spigot", id)
	}
	return spigot, nil
}

// marketValue prices amount of token through the market signal and records the
// realised unit price on the token, which the line oracle may not track.
func (a *Accountant) marketValue(ctx context.Context, token common.Address, amount *big.Int, evt *types.ChainEvent) (*types.Token, valuation.Quote, error) {
	tok, err := a.tokens.GetOrCreate(ctx, token)
	if err != nil {
		return nil, valuation.Quote{}, err
	}
	quote := a.valuer.MarketValue(ctx, tok, amount, evt.BlockNumber)
	if quote.Degraded {
		a.logger.Warn("spigot: revenue valued at zero",
			slog.String("kind", string(evt.Kind)),
			slog.String("token", types.AddressKey(token)),
			slog.String("contract", types.AddressKey(evt.Contract)),
			slog.String("tx", evt.TxHash.Hex()),
			slog.Uint64("block", evt.BlockNumber),
			slog.Uint64("logIndex", uint64(evt.LogIndex)))
		return tok, quote, nil
	}
	if price, ok := valuation.RealisedPrice(quote.Value, amount, tok.Decimals); ok {
		if err := a.valuer.RecordPrice(tok, price, evt.BlockNumber); err != nil {
			return tok, quote, err
		}
	}
	return tok, quote, nil
}

func subFloor(v, amount *big.Int) *big.Int {
	out := new(big.Int).Sub(v, amount)
	if out.Sign() < 0 {
		return new(big.Int)
	}
	return out
}
