package consent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"lineledger/core/events"
	"lineledger/core/types"
	"lineledger/observability/metrics"
)

var errNilState = errors.New("consent engine: state not configured")

type engineState interface {
	Position(id common.Hash) (*types.Position, bool, error)
	PutPosition(*types.Position) error
	Proposal(id string) (*types.Proposal, bool, error)
	PutProposal(*types.Proposal) error
	AppendEvent(*types.Event) (bool, error)
}

// IDDeriver resolves the position id of a (line, lender, token) triple.
type IDDeriver interface {
	Derive(ctx context.Context, line, lender, token common.Address) (common.Hash, bool)
}

// Engine materialises proposals and provisional positions from mutual consent
// registrations.
type Engine struct {
	state   engineState
	emitter events.Emitter
	deriver IDDeriver
	logger  *slog.Logger
	metrics *metrics.IndexerMetrics
}

// NewEngine creates an engine with a no-op emitter.
func NewEngine(deriver IDDeriver) *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		deriver: deriver,
		logger:  slog.Default(),
	}
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

func (e *Engine) SetLogger(l *slog.Logger) {
	if l != nil {
		e.logger = l
	}
}

func (e *Engine) SetMetrics(m *metrics.IndexerMetrics) { e.metrics = m }

// Routes lists the event kinds handled by the engine.
func (e *Engine) Routes() map[types.EventKind]func(context.Context, *types.ChainEvent) error {
	return map[types.EventKind]func(context.Context, *types.ChainEvent) error{
		types.KindMutualConsentRegistered: e.HandleRegistered,
		types.KindMutualConsentRevoked:    e.HandleRevoked,
	}
}

// HandleRegistered processes a consent registration emitted by a line. The
// transaction input is the proposing call. Unknown selectors are ignored; a
// known call whose arguments fail to decode still yields a proposal record.
// An existing OPEN position is never reverted to PROPOSED.
func (e *Engine) HandleRegistered(ctx context.Context, evt *types.ChainEvent) error {
	if e.state == nil {
		return errNilState
	}
	sel, err := SelectorOf(evt.TxInput)
	if err != nil || KindOf(sel) == KindUnknown {
		e.logger.Info("consent: ignoring unrecognised proposal",
			slog.String("selector", sel.Hex()),
			slog.String("line", types.AddressKey(evt.Contract)),
			slog.String("tx", evt.TxHash.Hex()),
			slog.Uint64("block", evt.BlockNumber))
		e.metrics.ObserveUnknownSelector()
		return nil
	}

	proposal := &types.Proposal{
		ID:         e.proposalID(evt),
		Line:       evt.Contract,
		Kind:       KindOf(sel),
		Selector:   sel.Hex(),
		Maker:      evt.TxFrom,
		MsgData:    append([]byte(nil), evt.TxInput...),
		ProposedAt: evt.BlockTime,

		RegisteredBy: evt.ID(),
	}
	if evt.Has("taker") {
		if taker, err := evt.Address("taker"); err == nil {
			proposal.Taker = types.AddressPtr(taker)
		}
	}

	call, err := Decode(evt.TxInput)
	if err != nil {
		e.logger.Warn("consent: proposal arguments did not decode",
			slog.String("kind", proposal.Kind),
			slog.String("line", types.AddressKey(evt.Contract)),
			slog.String("tx", evt.TxHash.Hex()),
			slog.Uint64("logIndex", uint64(evt.LogIndex)),
			slog.Any("error", err))
		return e.storeProposal(proposal, evt)
	}
	proposal.Args = call.Args()

	switch c := call.(type) {
	case AddCredit:
		id, ok := e.deriver.Derive(ctx, evt.Contract, c.Lender, c.Token)
		if !ok {
			e.logger.Warn("consent: no position id for proposal",
				slog.String("line", types.AddressKey(evt.Contract)),
				slog.String("tx", evt.TxHash.Hex()))
			return e.storeProposal(proposal, evt)
		}
		proposal.Position = types.HashPtr(id)
		if err := e.proposePosition(id, evt, c); err != nil {
			return err
		}
	case IncreaseCredit:
		proposal.Position = types.HashPtr(c.Position)
	case SetRates:
		proposal.Position = types.HashPtr(c.Position)
	}
	return e.storeProposal(proposal, evt)
}

// HandleRevoked stamps the revocation time on a stored proposal. Revoking an
// unknown proposal is logged and ignored since it may belong to a selector the
// ledger does not track.
func (e *Engine) HandleRevoked(_ context.Context, evt *types.ChainEvent) error {
	if e.state == nil {
		return errNilState
	}
	id := e.proposalID(evt)
	proposal, ok, err := e.state.Proposal(id)
	if err != nil {
		return err
	}
	if !ok {
		e.logger.Info("consent: revocation for untracked proposal",
			slog.String("proposal", id),
			slog.String("line", types.AddressKey(evt.Contract)))
		return nil
	}
	if proposal.RevokedAt != nil {
		return nil
	}
	at := evt.BlockTime
	proposal.RevokedAt = &at
	if err := e.state.PutProposal(proposal); err != nil {
		return err
	}
	_, err = events.Record(e.state, e.emitter, events.ProposalRevoked{Proposal: id, Line: evt.Contract}, evt, "")
	return err
}

func (e *Engine) proposalID(evt *types.ChainEvent) string {
	if evt.Has("proposalId") {
		if id, err := evt.Hash("proposalId"); err == nil {
			return types.HashKey(id)
		}
	}
	return evt.ID()
}

func (e *Engine) proposePosition(id common.Hash, evt *types.ChainEvent, c AddCredit) error {
	existing, ok, err := e.state.Position(id)
	if err != nil {
		return err
	}
	if ok && existing.Status == types.PositionOpen {
		e.logger.Debug("consent: position already open, keeping confirmed terms",
			slog.String("position", types.HashKey(id)))
		return nil
	}
	pos := types.NewPosition(id)
	if ok {
		// Re-proposal after close keeps the lifetime interest total.
		pos.TotalInterestEarned = existing.TotalInterestEarned
	}
	pos.Line = evt.Contract
	pos.Lender = c.Lender
	pos.Token = c.Token
	pos.Deposit.Set(c.Amount)
	pos.DrawnRate = types.RateBps(c.DrawnRate)
	pos.FacilityRate = types.RateBps(c.FacilityRate)
	pos.ProposedAt = evt.BlockTime
	if err := e.state.PutPosition(pos); err != nil {
		return fmt.Errorf("consent: store position %s: %w", types.HashKey(id), err)
	}
	return nil
}

func (e *Engine) storeProposal(p *types.Proposal, evt *types.ChainEvent) error {
	stored, ok, err := e.state.Proposal(p.ID)
	if err != nil {
		return err
	}
	if ok && stored.RegisteredBy == p.RegisteredBy {
		p = stored
	} else {
		if ok {
			e.logger.Debug("consent: proposal registered again, starting a new round",
				slog.String("proposal", p.ID),
				slog.String("previous", stored.RegisteredBy),
				slog.String("tx", evt.TxHash.Hex()))
		}
		if err := e.state.PutProposal(p); err != nil {
			return fmt.Errorf("consent: store proposal %s: %w", p.ID, err)
		}
	}
	_, err = events.Record(e.state, e.emitter, events.CreditProposed{
		Proposal: p.ID,
		Line:     p.Line,
		Position: p.Position,
		Kind:     p.Kind,
		Selector: p.Selector,
		Maker:    p.Maker,
		Taker:    p.Taker,
		Args:     p.Args,
	}, evt, "")
	return err
}
