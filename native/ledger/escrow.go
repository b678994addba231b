package ledger

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"lineledger/core/events"
	"lineledger/core/types"
	"lineledger/native/valuation"
)

// HandleAddCollateral credits a deposit in the emitting escrow.
func (e *Engine) HandleAddCollateral(ctx context.Context, evt *types.ChainEvent) error {
	return e.moveCollateral(ctx, evt, events.TypeEscrowCollateralAdded, func(d *types.EscrowDeposit, amount *big.Int) {
		d.Amount = new(big.Int).Add(d.Amount, amount)
	})
}

// HandleRemoveCollateral debits a deposit in the emitting escrow.
func (e *Engine) HandleRemoveCollateral(ctx context.Context, evt *types.ChainEvent) error {
	return e.moveCollateral(ctx, evt, events.TypeEscrowCollateralRemoved, func(d *types.EscrowDeposit, amount *big.Int) {
		balance, clamped := subFloor(d.Amount, amount)
		if clamped {
			e.logger.Warn("ledger: collateral would go negative, clamped at zero",
				slog.String("deposit", d.ID),
				slog.String("tx", evt.TxHash.Hex()))
		}
		d.Amount = balance
	})
}

// HandleEnableCollateral marks a token as accepted collateral.
func (e *Engine) HandleEnableCollateral(ctx context.Context, evt *types.ChainEvent) error {
	if err := e.ready(); err != nil {
		return err
	}
	token, err := evt.Address("token")
	if err != nil {
		return err
	}
	escrow, err := e.requireEscrow(evt.Contract)
	if err != nil {
		return err
	}
	if _, err := e.tokens.GetOrCreate(ctx, token); err != nil {
		return err
	}
	deposit, err := e.deposit(escrow.ID, token)
	if err != nil {
		return err
	}
	deposit.Enabled = true
	if err := e.state.PutEscrowDeposit(deposit); err != nil {
		return err
	}
	return e.record(events.CollateralChanged{
		Type:            events.TypeEscrowCollateralEnabled,
		Escrow:          escrow.ID,
		Line:            escrow.Line,
		Token:           token,
		Amount:          new(big.Int),
		Balance:         new(big.Int).Set(deposit.Amount),
		Value:           deposit.Value,
		CollateralValue: escrow.CollateralValue,
	}, evt, "")
}

func (e *Engine) moveCollateral(ctx context.Context, evt *types.ChainEvent, recordType string, mutate func(*types.EscrowDeposit, *big.Int)) error {
	if err := e.ready(); err != nil {
		return err
	}
	token, err := evt.Address("token")
	if err != nil {
		return err
	}
	amount, err := evt.BigInt("amount")
	if err != nil {
		return err
	}
	escrow, err := e.requireEscrow(evt.Contract)
	if err != nil {
		return err
	}
	deposit, err := e.deposit(escrow.ID, token)
	if err != nil {
		return err
	}
	mutate(deposit, amount)

	tok, quote, err := e.value(ctx, escrow.Oracle, token, deposit.Amount, evt)
	if err != nil {
		return err
	}
	deposit.Value = quote.Value
	if err := e.state.PutEscrowDeposit(deposit); err != nil {
		return err
	}
	if err := e.refreshEscrow(ctx, escrow, evt); err != nil {
		return err
	}
	return e.record(events.CollateralChanged{
		Type:            recordType,
		Escrow:          escrow.ID,
		Line:            escrow.Line,
		Token:           tok.Address,
		Amount:          amount,
		Balance:         new(big.Int).Set(deposit.Amount),
		Value:           quote.Value,
		CollateralValue: escrow.CollateralValue,
	}, evt, "")
}

func (e *Engine) requireEscrow(id common.Address) (*types.Escrow, error) {
	escrow, ok, err := e.state.Escrow(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, missing("escrow", types.AddressKey(id))
	}
	return escrow, nil
}

func (e *Engine) deposit(escrow, token common.Address) (*types.EscrowDeposit, error) {
	id := types.PairID(escrow, token)
	deposit, ok, err := e.state.EscrowDeposit(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		deposit = &types.EscrowDeposit{ID: id, Escrow: escrow, Token: token, Value: decimal.Zero}
	}
	if deposit.Amount == nil {
		deposit.Amount = new(big.Int)
	}
	return deposit, nil
}

// refreshCollateral re-reads the collateral value of the escrow securing line.
func (e *Engine) refreshCollateral(ctx context.Context, line *types.Line, evt *types.ChainEvent) error {
	if line.Escrow == nil {
		return nil
	}
	escrow, ok, err := e.state.Escrow(*line.Escrow)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return e.refreshEscrow(ctx, escrow, evt)
}

// refreshEscrow stores the escrow's reported collateral value, falling back to
// zero when the read fails, and derives the collateral ratio against the
// outstanding debt value of its line.
func (e *Engine) refreshEscrow(ctx context.Context, escrow *types.Escrow, evt *types.ChainEvent) error {
	value := decimal.Zero
	if e.modules != nil {
		raw, err := e.modules.CollateralValue(ctx, escrow.ID)
		if err != nil {
			e.degraded("escrow", evt, err)
		} else {
			value = valuation.Scale(raw, valuation.OracleDecimals)
		}
	}
	escrow.CollateralValue = value
	escrow.CRatio = decimal.Zero
	if escrow.Line != nil {
		debt, err := e.debtValue(*escrow.Line)
		if err != nil {
			return err
		}
		if debt.IsPositive() {
			escrow.CRatio = value.Div(debt)
		}
	}
	return e.state.PutEscrow(escrow)
}

func (e *Engine) debtValue(lineID common.Address) (decimal.Decimal, error) {
	line, ok, err := e.state.Line(lineID)
	if err != nil || !ok {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, id := range line.Positions {
		pos, ok, err := e.state.Position(id)
		if err != nil {
			return decimal.Zero, err
		}
		if ok && pos.Status == types.PositionOpen {
			total = total.Add(pos.PrincipalValue).Add(pos.InterestValue)
		}
	}
	return total, nil
}
