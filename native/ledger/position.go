package ledger

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/shopspring/decimal"

	"lineledger/core/events"
	"lineledger/core/types"
	"lineledger/native/valuation"
)

// HandleAddCredit confirms a position: it becomes OPEN with the deposit the
// line reports and is attached to the line. A position re-opened after a
// close keeps its lifetime interest total.
func (e *Engine) HandleAddCredit(ctx context.Context, evt *types.ChainEvent) error {
	if err := e.ready(); err != nil {
		return err
	}
	id, err := positionID(evt)
	if err != nil {
		return err
	}
	lender, err := evt.Address("lender")
	if err != nil {
		return err
	}
	token, err := evt.Address("token")
	if err != nil {
		return err
	}
	deposit, err := evt.BigInt("deposit")
	if err != nil {
		return err
	}
	line, err := e.requireLine(evt.Contract)
	if err != nil {
		return err
	}

	pos, ok, err := e.state.Position(id)
	if err != nil {
		return err
	}
	if !ok {
		pos = types.NewPosition(id)
	}
	if pos.Status == types.PositionOpen {
		// The line refuses to add credit for an id that is already open, so
		// this is a replay of the confirmation.
		e.logger.Debug("ledger: position already open",
			slog.String("position", types.HashKey(id)),
			slog.String("tx", evt.TxHash.Hex()))
		return nil
	}
	// Proposed rates stand until SetRates confirms them.
	drawn, facility := pos.DrawnRate, pos.FacilityRate
	pos.ClearFinancials()
	pos.DrawnRate, pos.FacilityRate = drawn, facility
	pos.Line = line.ID
	pos.Lender = lender
	pos.Token = token
	pos.Deposit = deposit
	pos.Status = types.PositionOpen
	pos.OpenedAt = evt.BlockTime
	pos.ClosedAt = 0

	_, quote, err := e.value(ctx, line.Oracle, token, deposit, evt)
	if err != nil {
		return err
	}
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	if line.AttachPosition(id) {
		if err := e.state.PutLine(line); err != nil {
			return err
		}
	}
	return e.record(e.amountRecord(events.TypeCreditAdded, pos, deposit, quote), evt, "")
}

// HandleIncreaseCredit adds to the deposit of an open position.
func (e *Engine) HandleIncreaseCredit(ctx context.Context, evt *types.ChainEvent) error {
	return e.applyAmount(ctx, evt, "deposit", events.TypeCreditIncreased, func(pos *types.Position, amount *big.Int, _ pricing) {
		pos.Deposit = new(big.Int).Add(pos.Deposit, amount)
	})
}

// HandleSetRates stores the agreed drawn and facility rates.
func (e *Engine) HandleSetRates(_ context.Context, evt *types.ChainEvent) error {
	if e.state == nil {
		return errNilState
	}
	id, err := positionID(evt)
	if err != nil {
		return err
	}
	drawn, err := evt.BigInt("drawnRate")
	if err != nil {
		return err
	}
	facility, err := evt.BigInt("facilityRate")
	if err != nil {
		return err
	}
	pos, err := e.requirePosition(id)
	if err != nil {
		return err
	}
	pos.DrawnRate = types.RateBps(drawn)
	pos.FacilityRate = types.RateBps(facility)
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	return e.record(events.RatesSet{
		Line:         pos.Line,
		Position:     pos.ID,
		DrawnRate:    pos.DrawnRate,
		FacilityRate: pos.FacilityRate,
	}, evt, "")
}

// HandleBorrow draws principal and refreshes the position's queue slot.
func (e *Engine) HandleBorrow(ctx context.Context, evt *types.ChainEvent) error {
	return e.applyAmount(ctx, evt, "amount", events.TypeCreditBorrowed, func(pos *types.Position, amount *big.Int, px pricing) {
		pos.Principal = new(big.Int).Add(pos.Principal, amount)
		pos.PrincipalValue = px.worth(pos.Principal)
		if e.queue != nil {
			pos.Queue = e.queue.Index(ctx, pos.Line, pos.ID)
		}
	}, e.refreshCollateral)
}

// HandleInterestAccrued adds interest owed to the lender.
func (e *Engine) HandleInterestAccrued(ctx context.Context, evt *types.ChainEvent) error {
	return e.applyAmount(ctx, evt, "amount", events.TypeCreditInterestAccrued, func(pos *types.Position, amount *big.Int, px pricing) {
		pos.InterestAccrued = new(big.Int).Add(pos.InterestAccrued, amount)
		pos.InterestValue = px.worth(pos.InterestAccrued)
	}, e.refreshCollateral)
}

// HandleRepayInterest moves accrued interest into the repaid and lifetime
// totals.
func (e *Engine) HandleRepayInterest(ctx context.Context, evt *types.ChainEvent) error {
	return e.applyAmount(ctx, evt, "amount", events.TypeCreditInterestRepaid, func(pos *types.Position, amount *big.Int, px pricing) {
		accrued, clamped := subFloor(pos.InterestAccrued, amount)
		if clamped {
			e.warnUnderflow("interestAccrued", pos, evt)
		}
		pos.InterestAccrued = accrued
		pos.InterestValue = px.worth(pos.InterestAccrued)
		pos.InterestRepaid = new(big.Int).Add(pos.InterestRepaid, amount)
		pos.TotalInterestEarned = new(big.Int).Add(pos.TotalInterestEarned, amount)
	}, e.refreshCollateral)
}

// HandleRepayPrincipal reduces principal. A fully repaid position leaves the
// repayment queue.
func (e *Engine) HandleRepayPrincipal(ctx context.Context, evt *types.ChainEvent) error {
	return e.applyAmount(ctx, evt, "amount", events.TypeCreditPrincipalRepaid, func(pos *types.Position, amount *big.Int, px pricing) {
		e.reducePrincipal(pos, amount, px, evt)
	}, e.refreshCollateral)
}

// HandleWithdrawProfit records the lender withdrawing repaid interest.
func (e *Engine) HandleWithdrawProfit(ctx context.Context, evt *types.ChainEvent) error {
	return e.applyAmount(ctx, evt, "amount", events.TypeCreditProfitWithdrawn, func(pos *types.Position, amount *big.Int, _ pricing) {
		repaid, clamped := subFloor(pos.InterestRepaid, amount)
		if clamped {
			e.warnUnderflow("interestRepaid", pos, evt)
		}
		pos.InterestRepaid = repaid
	})
}

// HandleWithdrawDeposit records the lender withdrawing unborrowed deposit.
func (e *Engine) HandleWithdrawDeposit(ctx context.Context, evt *types.ChainEvent) error {
	return e.applyAmount(ctx, evt, "amount", events.TypeCreditDepositWithdrawn, func(pos *types.Position, amount *big.Int, _ pricing) {
		deposit, clamped := subFloor(pos.Deposit, amount)
		if clamped {
			e.warnUnderflow("deposit", pos, evt)
		}
		pos.Deposit = deposit
	})
}

// HandleCloseCreditPosition closes a position, zeroing its active amounts and
// keeping its lifetime interest total.
func (e *Engine) HandleCloseCreditPosition(_ context.Context, evt *types.ChainEvent) error {
	if e.state == nil {
		return errNilState
	}
	id, err := positionID(evt)
	if err != nil {
		return err
	}
	pos, err := e.requirePosition(id)
	if err != nil {
		return err
	}
	pos.ClearFinancials()
	pos.Status = types.PositionClosed
	pos.ClosedAt = evt.BlockTime
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	return e.record(events.PositionClosed{
		Line:                pos.Line,
		Position:            pos.ID,
		TotalInterestEarned: new(big.Int).Set(pos.TotalInterestEarned),
	}, evt, "")
}

// HandleLiquidate reduces principal by the liquidated amount, valued through
// the line oracle.
func (e *Engine) HandleLiquidate(ctx context.Context, evt *types.ChainEvent) error {
	if err := e.ready(); err != nil {
		return err
	}
	id, err := positionID(evt)
	if err != nil {
		return err
	}
	amount, err := evt.BigInt("amount")
	if err != nil {
		return err
	}
	pos, err := e.requirePosition(id)
	if err != nil {
		return err
	}
	token := pos.Token
	if evt.Has("token") {
		if token, err = evt.Address("token"); err != nil {
			return err
		}
	}
	line, err := e.requireLine(pos.Line)
	if err != nil {
		return err
	}
	tok, quote, err := e.value(ctx, line.Oracle, token, amount, evt)
	if err != nil {
		return err
	}
	e.reducePrincipal(pos, amount, pricing{Quote: quote, Decimals: tok.Decimals}, evt)
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	return e.record(events.CreditAmount{
		Type:     events.TypeCreditLiquidated,
		Line:     pos.Line,
		Position: pos.ID,
		Token:    token,
		Amount:   amount,
		Value:    quote.Value,
		Degraded: quote.Degraded,
	}, evt, "")
}

func (e *Engine) reducePrincipal(pos *types.Position, amount *big.Int, px pricing, evt *types.ChainEvent) {
	principal, clamped := subFloor(pos.Principal, amount)
	if clamped {
		e.warnUnderflow("principal", pos, evt)
	}
	pos.Principal = principal
	pos.PrincipalValue = px.worth(pos.Principal)
	if pos.Principal.Sign() == 0 {
		pos.Queue = types.NotInQueue
	}
}

// applyAmount is the shared path of handlers that move one amount on an
// existing position: load, value through the line oracle, mutate, persist,
// run follow-ups, record.
func (e *Engine) applyAmount(
	ctx context.Context,
	evt *types.ChainEvent,
	param string,
	recordType string,
	mutate func(*types.Position, *big.Int, pricing),
	after ...func(context.Context, *types.Line, *types.ChainEvent) error,
) error {
	if err := e.ready(); err != nil {
		return err
	}
	id, err := positionID(evt)
	if err != nil {
		return err
	}
	amount, err := evt.BigInt(param)
	if err != nil {
		return err
	}
	pos, err := e.requirePosition(id)
	if err != nil {
		return err
	}
	line, err := e.requireLine(pos.Line)
	if err != nil {
		return err
	}
	tok, quote, err := e.value(ctx, line.Oracle, pos.Token, amount, evt)
	if err != nil {
		return err
	}
	mutate(pos, amount, pricing{Quote: quote, Decimals: tok.Decimals})
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	for _, fn := range after {
		if err := fn(ctx, line, evt); err != nil {
			return err
		}
	}
	return e.record(e.amountRecord(recordType, pos, amount, quote), evt, "")
}

func (e *Engine) amountRecord(recordType string, pos *types.Position, amount *big.Int, quote valuation.Quote) events.CreditAmount {
	return events.CreditAmount{
		Type:     recordType,
		Line:     pos.Line,
		Position: pos.ID,
		Token:    pos.Token,
		Amount:   new(big.Int).Set(amount),
		Value:    quote.Value,
		Degraded: quote.Degraded,
	}
}

// pricing carries the unit price observed while applying an event.
type pricing struct {
	valuation.Quote
	Decimals uint8
}

// worth values balance at the observed unit price. A degraded quote values
// it at zero.
func (p pricing) worth(balance *big.Int) decimal.Decimal {
	if p.Degraded {
		return decimal.Zero
	}
	return valuation.Scale(balance, p.Decimals).Mul(p.Price)
}
