package spigot

import (
	"context"
	"math/big"

	"lineledger/core/events"
	"lineledger/core/types"
)

// HandleTradeSpigotRevenue values both legs of a revenue trade made by a line:
// the sold revenue token through the market signal and the bought debt token
// through the line oracle. The spread between the two is kept on the record.
func (a *Accountant) HandleTradeSpigotRevenue(ctx context.Context, evt *types.ChainEvent) error {
	if err := a.ready(); err != nil {
		return err
	}
	revenueToken, err := evt.Address("revenueToken")
	if err != nil {
		return err
	}
	sold, err := evt.BigInt("revenueTokenAmount")
	if err != nil {
		return err
	}
	debtToken, err := evt.Address("debtToken")
	if err != nil {
		return err
	}
	bought, err := evt.BigInt("debtTokensBought")
	if err != nil {
		return err
	}
	line, ok, err := a.state.Line(evt.Contract)
	if err != nil {
		return err
	}
	if !ok {
		return missing("line", types.AddressKey(evt.Contract))
	}
	_, soldQuote, err := a.marketValue(ctx, revenueToken, sold, evt)
	if err != nil {
		return err
	}
	debt, err := a.tokens.GetOrCreate(ctx, debtToken)
	if err != nil {
		return err
	}
	boughtQuote, err := a.valuer.Value(ctx, line.Oracle, debt, bought, evt.BlockNumber)
	if err != nil {
		return err
	}
	if boughtQuote.Degraded {
		a.metrics.ObserveDegraded("trade")
	}
	return a.record(events.TradeRevenue{
		Line:         line.ID,
		Spigot:       line.Spigot,
		RevenueToken: revenueToken,
		Sold:         sold,
		SoldValue:    soldQuote.Value,
		DebtToken:    debtToken,
		Bought:       bought,
		BoughtValue:  boughtQuote.Value,
	}, evt)
}

// HandleReservesChanged applies a signed change to the line's reserve of a
// token. Reserves move only through this event; the line emits it alongside
// every trade and repayment that touches them.
func (a *Accountant) HandleReservesChanged(_ context.Context, evt *types.ChainEvent) error {
	if a.state == nil {
		return errNilState
	}
	token, err := evt.Address("token")
	if err != nil {
		return err
	}
	diff, err := evt.BigInt("diff")
	if err != nil {
		return err
	}
	if _, ok, err := a.state.Line(evt.Contract); err != nil {
		return err
	} else if !ok {
		return missing("line", types.AddressKey(evt.Contract))
	}
	id := types.PairID(evt.Contract, token)
	reserve, ok, err := a.state.LineReserve(id)
	if err != nil {
		return err
	}
	if !ok {
		reserve = &types.LineReserve{ID: id, Line: evt.Contract, Token: token}
	}
	if reserve.Amount == nil {
		reserve.Amount = new(big.Int)
	}
	reserve.Amount = new(big.Int).Add(reserve.Amount, diff)
	if err := a.state.PutLineReserve(reserve); err != nil {
		return err
	}
	return a.record(events.ReservesChanged{
		Line:    evt.Contract,
		Token:   token,
		Delta:   diff,
		Reserve: new(big.Int).Set(reserve.Amount),
	}, evt)
}
