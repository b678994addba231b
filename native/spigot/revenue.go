package spigot

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"lineledger/core/events"
	"lineledger/core/types"
)

// HandleAddSpigot binds a revenue contract to the emitting controller. A
// binding re-added after removal keeps its accumulated volume.
func (a *Accountant) HandleAddSpigot(_ context.Context, evt *types.ChainEvent) error {
	if a.state == nil {
		return errNilState
	}
	contract, err := evt.Address("revenueContract")
	if err != nil {
		return err
	}
	split, err := evt.Uint("ownerSplit")
	if err != nil {
		return err
	}
	claimFn, err := evt.Bytes4("claimFnSig")
	if err != nil {
		return err
	}
	transferFn, err := evt.Bytes4("trsfrFnSig")
	if err != nil {
		return err
	}
	if _, err := a.requireController(evt.Contract); err != nil {
		return err
	}
	id := types.PairID(evt.Contract, contract)
	spigot, ok, err := a.state.Spigot(id)
	if err != nil {
		return err
	}
	if !ok {
		spigot = &types.Spigot{ID: id, Controller: evt.Contract, Contract: contract, TotalVolumeValue: decimal.Zero}
	}
	spigot.Active = true
	spigot.OwnerSplit = uint32(split)
	spigot.ClaimFunc = hexutil.Encode(claimFn[:])
	spigot.TransferFunc = hexutil.Encode(transferFn[:])
	spigot.StartTime = evt.BlockTime
	if err := a.state.PutSpigot(spigot); err != nil {
		return err
	}
	return a.record(events.SpigotAdded{
		Controller:   evt.Contract,
		Spigot:       id,
		Contract:     contract,
		OwnerSplit:   spigot.OwnerSplit,
		ClaimFunc:    spigot.ClaimFunc,
		TransferFunc: spigot.TransferFunc,
	}, evt)
}

// HandleRemoveSpigot deactivates a binding.
func (a *Accountant) HandleRemoveSpigot(_ context.Context, evt *types.ChainEvent) error {
	if a.state == nil {
		return errNilState
	}
	contract, err := evt.Address("revenueContract")
	if err != nil {
		return err
	}
	var token common.Address
	if evt.Has("token") {
		if token, err = evt.Address("token"); err != nil {
			return err
		}
	}
	spigot, err := a.requireSpigot(evt.Contract, contract)
	if err != nil {
		return err
	}
	spigot.Active = false
	if err := a.state.PutSpigot(spigot); err != nil {
		return err
	}
	return a.record(events.SpigotRemoved{
		Controller: evt.Contract,
		Spigot:     spigot.ID,
		Contract:   contract,
		Token:      token,
	}, evt)
}

// HandleClaimRevenue splits claimed revenue between the owner (the escrowed
// share) and the operator (the remainder) and accumulates volume.
func (a *Accountant) HandleClaimRevenue(ctx context.Context, evt *types.ChainEvent) error {
	if err := a.ready(); err != nil {
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
	escrowed, err := evt.BigInt("escrowed")
	if err != nil {
		return err
	}
	contract, err := evt.Address("revenueContract")
	if err != nil {
		return err
	}
	spigot, err := a.requireSpigot(evt.Contract, contract)
	if err != nil {
		return err
	}
	controller, err := a.requireController(evt.Contract)
	if err != nil {
		return err
	}
	if escrowed.Cmp(amount) > 0 {
		a.logger.Warn("spigot: escrowed share exceeds claimed amount",
			slog.String("spigot", spigot.ID),
			slog.String("amount", amount.String()),
			slog.String("escrowed", escrowed.String()),
			slog.String("tx", evt.TxHash.Hex()))
	}
	operatorShare := subFloor(amount, escrowed)

	_, quote, err := a.marketValue(ctx, token, amount, evt)
	if err != nil {
		return err
	}

	spigot.TotalVolumeValue = spigot.TotalVolumeValue.Add(quote.Value)
	if err := a.state.PutSpigot(spigot); err != nil {
		return err
	}
	summary, err := a.summary(evt.Contract, token, true)
	if err != nil {
		return err
	}
	summary.OwnerTokens = new(big.Int).Add(summary.OwnerTokens, escrowed)
	summary.OperatorTokens = new(big.Int).Add(summary.OperatorTokens, operatorShare)
	summary.TotalVolume = new(big.Int).Add(summary.TotalVolume, amount)
	summary.TotalVolumeValue = summary.TotalVolumeValue.Add(quote.Value)
	if summary.FirstIncomeAt == 0 {
		summary.FirstIncomeAt = evt.BlockTime
	}
	summary.LastIncomeAt = evt.BlockTime
	if err := a.state.PutRevenueSummary(summary); err != nil {
		return err
	}
	return a.record(events.RevenueClaimed{
		Controller: evt.Contract,
		Line:       controller.Line,
		Spigot:     spigot.ID,
		Token:      token,
		Amount:     amount,
		Escrowed:   escrowed,
		NetIncome:  operatorShare,
		Value:      quote.Value,
		Degraded:   quote.Degraded,
	}, evt)
}

func (a *Accountant) summary(controller, token common.Address, create bool) (*types.SpigotRevenueSummary, error) {
	id := types.PairID(controller, token)
	summary, ok, err := a.state.RevenueSummary(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		if !create {
			return nil, missing("revenue summary", id)
		}
		summary = &types.SpigotRevenueSummary{ID: id, Controller: controller, Token: token, TotalVolumeValue: decimal.Zero}
	}
	for _, field := range []**big.Int{&summary.OwnerTokens, &summary.OperatorTokens, &summary.TotalVolume} {
		if *field == nil {
			*field = new(big.Int)
		}
	}
	return summary, nil
}

// HandleClaimOwnerTokens records the owner withdrawing its escrowed share.
func (a *Accountant) HandleClaimOwnerTokens(ctx context.Context, evt *types.ChainEvent) error {
	return a.claimTokens(ctx, evt, events.TypeSpigotOwnerTokensClaimed, "owner", func(s *types.SpigotRevenueSummary, amount *big.Int) {
		s.OwnerTokens = subFloor(s.OwnerTokens, amount)
	})
}

// HandleClaimOperatorTokens records the operator withdrawing its share.
func (a *Accountant) HandleClaimOperatorTokens(ctx context.Context, evt *types.ChainEvent) error {
	return a.claimTokens(ctx, evt, events.TypeSpigotOperatorTokensClaimed, "operator", func(s *types.SpigotRevenueSummary, amount *big.Int) {
		s.OperatorTokens = subFloor(s.OperatorTokens, amount)
	})
}

func (a *Accountant) claimTokens(ctx context.Context, evt *types.ChainEvent, recordType, toParam string, debit func(*types.SpigotRevenueSummary, *big.Int)) error {
	if err := a.ready(); err != nil {
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
	to, err := evt.Address(toParam)
	if err != nil {
		return err
	}
	summary, err := a.summary(evt.Contract, token, false)
	if err != nil {
		return err
	}
	debit(summary, amount)
	if err := a.state.PutRevenueSummary(summary); err != nil {
		return err
	}
	_, quote, err := a.marketValue(ctx, token, amount, evt)
	if err != nil {
		return err
	}
	return a.record(events.SpigotTokensClaimed{
		Type:       recordType,
		Controller: evt.Contract,
		Token:      token,
		To:         to,
		Amount:     amount,
		Value:      quote.Value,
	}, evt)
}

// HandleUpdateOwnerSplit stores a new owner share for a binding.
func (a *Accountant) HandleUpdateOwnerSplit(_ context.Context, evt *types.ChainEvent) error {
	if a.state == nil {
		return errNilState
	}
	contract, err := evt.Address("revenueContract")
	if err != nil {
		return err
	}
	split, err := evt.Uint("split")
	if err != nil {
		return err
	}
	spigot, err := a.requireSpigot(evt.Contract, contract)
	if err != nil {
		return err
	}
	spigot.OwnerSplit = uint32(split)
	if err := a.state.PutSpigot(spigot); err != nil {
		return err
	}
	return a.record(events.OwnerSplitUpdated{Controller: evt.Contract, Spigot: spigot.ID, Split: spigot.OwnerSplit}, evt)
}

// HandleUpdateOwner hands the controller to a new owner. The record keeps the
// previous owner.
func (a *Accountant) HandleUpdateOwner(_ context.Context, evt *types.ChainEvent) error {
	return a.updateRole(evt, "newOwner", events.TypeSpigotOwnerUpdated, func(c *types.SpigotController) *common.Address {
		return &c.Owner
	})
}

// HandleUpdateOperator hands the controller to a new operator.
func (a *Accountant) HandleUpdateOperator(_ context.Context, evt *types.ChainEvent) error {
	return a.updateRole(evt, "newOperator", events.TypeSpigotOperatorUpdated, func(c *types.SpigotController) *common.Address {
		return &c.Operator
	})
}

func (a *Accountant) updateRole(evt *types.ChainEvent, param, recordType string, field func(*types.SpigotController) *common.Address) error {
	if a.state == nil {
		return errNilState
	}
	next, err := evt.Address(param)
	if err != nil {
		return err
	}
	controller, err := a.requireController(evt.Contract)
	if err != nil {
		return err
	}
	role := field(controller)
	previous := *role
	*role = next
	if err := a.state.PutSpigotController(controller); err != nil {
		return err
	}
	return a.record(events.SpigotRoleUpdated{
		Type:       recordType,
		Controller: controller.ID,
		Previous:   previous,
		Next:       next,
	}, evt)
}

// HandleUpdateWhitelistFunction records an operator function being allowed or
// denied.
func (a *Accountant) HandleUpdateWhitelistFunction(_ context.Context, evt *types.ChainEvent) error {
	if a.state == nil {
		return errNilState
	}
	fn, err := evt.Bytes4("func")
	if err != nil {
		return err
	}
	allowed, err := evt.Bool("allowed")
	if err != nil {
		return err
	}
	if _, err := a.requireController(evt.Contract); err != nil {
		return err
	}
	return a.record(events.WhitelistUpdated{Controller: evt.Contract, Func: hexutil.Encode(fn[:]), Allowed: allowed}, evt)
}
