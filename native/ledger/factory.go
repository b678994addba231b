package ledger

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"lineledger/core/events"
	"lineledger/core/types"
)

func (e *Engine) deprecated(evt *types.ChainEvent) bool {
	if !e.deprecation.excludes(evt.Contract, evt.BlockNumber) {
		return false
	}
	e.logger.Info("ledger: skipping deployment from retired factory",
		slog.String("factory", types.AddressKey(evt.Contract)),
		slog.String("kind", string(evt.Kind)),
		slog.Uint64("block", evt.BlockNumber))
	return true
}

// HandleDeployedSecuredLine records a factory line deployment. The line entity
// itself comes from the line's own deploy event, which precedes this one; when
// present it picks up the default revenue split and swap target.
func (e *Engine) HandleDeployedSecuredLine(_ context.Context, evt *types.ChainEvent) error {
	if e.state == nil {
		return errNilState
	}
	if e.deprecated(evt) {
		return nil
	}
	deployedAt, err := evt.Address("deployedAt")
	if err != nil {
		return err
	}
	payload := events.ModuleDeployed{
		Type:       events.TypeFactoryLineDeployed,
		Factory:    evt.Contract,
		DeployedAt: deployedAt,
		Deployer:   evt.TxFrom,
	}
	if evt.Has("escrow") {
		escrow, err := evt.Address("escrow")
		if err != nil {
			return err
		}
		payload.Escrow = types.AddressPtr(escrow)
	}
	if evt.Has("spigot") {
		spigot, err := evt.Address("spigot")
		if err != nil {
			return err
		}
		payload.Spigot = types.AddressPtr(spigot)
	}

	line, ok, err := e.state.Line(deployedAt)
	if err != nil {
		return err
	}
	if ok {
		changed := false
		if evt.Has("revenueSplit") {
			split, err := evt.Uint("revenueSplit")
			if err != nil {
				return err
			}
			line.DefaultSplit = uint32(split)
			changed = true
		}
		if evt.Has("swapTarget") && line.SwapTarget == nil {
			target, err := evt.Address("swapTarget")
			if err != nil {
				return err
			}
			line.SwapTarget = types.AddressPtr(target)
			changed = true
		}
		if changed {
			if err := e.state.PutLine(line); err != nil {
				return err
			}
		}
	}
	return e.record(payload, evt, "")
}

// HandleDeployedSpigot materialises an unclaimed spigot controller. A later
// line deployment claims it.
func (e *Engine) HandleDeployedSpigot(_ context.Context, evt *types.ChainEvent) error {
	if e.state == nil {
		return errNilState
	}
	if e.deprecated(evt) {
		return nil
	}
	deployedAt, err := evt.Address("deployedAt")
	if err != nil {
		return err
	}
	owner, err := evt.Address("owner")
	if err != nil {
		return err
	}
	operator, err := evt.Address("operator")
	if err != nil {
		return err
	}
	controller, ok, err := e.state.SpigotController(deployedAt)
	if err != nil {
		return err
	}
	if !ok {
		controller = &types.SpigotController{ID: deployedAt, StartBlock: evt.BlockNumber}
	}
	controller.Owner = owner
	controller.Operator = operator
	if err := e.state.PutSpigotController(controller); err != nil {
		return err
	}
	return e.record(events.ModuleDeployed{
		Type:       events.TypeFactorySpigotDeployed,
		Factory:    evt.Contract,
		DeployedAt: deployedAt,
		Deployer:   evt.TxFrom,
		Owner:      owner,
		Operator:   operator,
	}, evt, "")
}

// HandleDeployedEscrow materialises an unclaimed escrow.
func (e *Engine) HandleDeployedEscrow(_ context.Context, evt *types.ChainEvent) error {
	if e.state == nil {
		return errNilState
	}
	if e.deprecated(evt) {
		return nil
	}
	deployedAt, err := evt.Address("deployedAt")
	if err != nil {
		return err
	}
	minCRatio, err := evt.BigInt("minCRatio")
	if err != nil {
		return err
	}
	oracle, err := evt.Address("oracle")
	if err != nil {
		return err
	}
	owner, err := evt.Address("owner")
	if err != nil {
		return err
	}
	escrow, ok, err := e.state.Escrow(deployedAt)
	if err != nil {
		return err
	}
	if !ok {
		escrow = &types.Escrow{ID: deployedAt, CRatio: decimal.Zero, CollateralValue: decimal.Zero}
	}
	escrow.Oracle = oracle
	escrow.Owner = owner
	escrow.MinCRatio = decimal.NewFromBigInt(minCRatio, 0)
	if err := e.state.PutEscrow(escrow); err != nil {
		return err
	}
	return e.record(events.ModuleDeployed{
		Type:       events.TypeFactoryEscrowDeployed,
		Factory:    evt.Contract,
		DeployedAt: deployedAt,
		Deployer:   evt.TxFrom,
		Owner:      owner,
		Oracle:     oracle,
		MinCRatio:  minCRatio,
	}, evt, "")
}
