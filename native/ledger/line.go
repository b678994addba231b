package ledger

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	ledgererrors "lineledger/core/errors"
	"lineledger/core/events"
	"lineledger/core/types"
)

// LineKind labels lines deployed through the secured line factory.
const LineKind = "Crypto Credit Account"

// HandleDeployLine creates the line and claims the escrow and spigot modules
// it was deployed with.
func (e *Engine) HandleDeployLine(ctx context.Context, evt *types.ChainEvent) error {
	if err := e.ready(); err != nil {
		return err
	}
	oracle, err := evt.Address("oracle")
	if err != nil {
		return err
	}
	arbiter, err := evt.Address("arbiter")
	if err != nil {
		return err
	}
	borrower, err := evt.Address("borrower")
	if err != nil {
		return err
	}
	if existing, ok, err := e.state.Line(evt.Contract); err != nil {
		return err
	} else if ok && existing.DeployedBlock != evt.BlockNumber {
		e.logger.Warn("ledger: line already deployed, ignoring redeploy",
			slog.String("line", types.AddressKey(evt.Contract)),
			slog.Uint64("deployedBlock", existing.DeployedBlock),
			slog.Uint64("block", evt.BlockNumber))
		return nil
	}

	line := &types.Line{
		ID:            evt.Contract,
		Kind:          LineKind,
		Borrower:      borrower,
		Arbiter:       arbiter,
		Oracle:        oracle,
		Start:         evt.BlockTime,
		Status:        types.LineUninitialized,
		Positions:     []common.Hash{},
		DeployedBlock: evt.BlockNumber,
	}
	if e.lines != nil {
		if end, err := e.lines.Deadline(ctx, line.ID); err != nil {
			e.degraded("line", evt, err)
		} else {
			line.End = end
		}
		if target, err := e.lines.SwapTarget(ctx, line.ID); err != nil {
			e.degraded("line", evt, err)
		} else {
			line.SwapTarget = types.AddressPtr(target)
		}
		if spigot, err := e.lines.Spigot(ctx, line.ID); err != nil {
			e.degraded("line", evt, err)
		} else if spigot != (common.Address{}) {
			if err := e.claimSpigot(ctx, line, spigot, evt); err != nil {
				return err
			}
		}
		if escrow, err := e.lines.Escrow(ctx, line.ID); err != nil {
			e.degraded("line", evt, err)
		} else if escrow != (common.Address{}) {
			if err := e.claimEscrow(ctx, line, escrow, evt); err != nil {
				return err
			}
		}
	}
	if err := e.state.PutLine(line); err != nil {
		return err
	}
	return e.record(events.LineDeployed{
		Line:     line.ID,
		Borrower: line.Borrower,
		Arbiter:  line.Arbiter,
		Oracle:   line.Oracle,
		Escrow:   line.Escrow,
		Spigot:   line.Spigot,
		Start:    line.Start,
		End:      line.End,
	}, evt, "")
}

func (e *Engine) claimSpigot(ctx context.Context, line *types.Line, addr common.Address, evt *types.ChainEvent) error {
	controller, ok, err := e.state.SpigotController(addr)
	if err != nil {
		return err
	}
	if !ok {
		controller = &types.SpigotController{ID: addr, Owner: line.ID, StartBlock: evt.BlockNumber}
	}
	controller.Line = types.AddressPtr(line.ID)
	controller.SwapTarget = line.SwapTarget
	if e.modules != nil {
		if operator, err := e.modules.Operator(ctx, addr); err != nil {
			e.degraded("spigot", evt, err)
		} else {
			controller.Operator = operator
		}
		if treasury, err := e.modules.Treasury(ctx, addr); err != nil {
			e.degraded("spigot", evt, err)
		} else {
			controller.Treasury = treasury
		}
	}
	if err := e.state.PutSpigotController(controller); err != nil {
		return err
	}
	line.Spigot = types.AddressPtr(addr)
	return nil
}

func (e *Engine) claimEscrow(ctx context.Context, line *types.Line, addr common.Address, evt *types.ChainEvent) error {
	escrow, ok, err := e.state.Escrow(addr)
	if err != nil {
		return err
	}
	if !ok {
		escrow = &types.Escrow{ID: addr, Owner: line.ID, CRatio: decimal.Zero, CollateralValue: decimal.Zero}
	}
	escrow.Line = types.AddressPtr(line.ID)
	escrow.Oracle = line.Oracle
	if e.modules != nil {
		if ratio, err := e.modules.MinimumCollateralRatio(ctx, addr); err != nil {
			e.degraded("escrow", evt, err)
		} else {
			escrow.MinCRatio = decimal.NewFromBigInt(ratio, 0)
		}
	}
	if err := e.state.PutEscrow(escrow); err != nil {
		return err
	}
	line.Escrow = types.AddressPtr(addr)
	return nil
}

// HandleUpdateStatus moves the line to the status named by the reported code.
// Unknown codes and backward moves are logged and leave the line unchanged. A
// status update for a line that was never deployed is ignored since lines
// report their initial status while being constructed.
func (e *Engine) HandleUpdateStatus(_ context.Context, evt *types.ChainEvent) error {
	if e.state == nil {
		return errNilState
	}
	code, err := evt.Uint("status")
	if err != nil {
		return err
	}
	next, known := types.LineStatusFromCode(code)
	if !known {
		e.logger.Error("ledger: unknown line status code",
			slog.Uint64("code", code),
			slog.String("line", types.AddressKey(evt.Contract)),
			slog.String("tx", evt.TxHash.Hex()),
			slog.Uint64("block", evt.BlockNumber),
			slog.Any("error", ledgererrors.ErrUnknownStatus))
		return nil
	}
	line, ok, err := e.state.Line(evt.Contract)
	if err != nil {
		return err
	}
	if !ok {
		e.logger.Info("ledger: status update before line deployment",
			slog.String("line", types.AddressKey(evt.Contract)),
			slog.String("status", next.String()))
		return nil
	}
	return e.transition(line, next, code, evt)
}

func (e *Engine) transition(line *types.Line, next types.LineStatus, code uint64, evt *types.ChainEvent) error {
	previous := line.Status
	if !previous.CanTransition(next) {
		e.logger.Warn("ledger: rejecting backward status transition",
			slog.String("line", types.AddressKey(line.ID)),
			slog.String("from", previous.String()),
			slog.String("to", next.String()),
			slog.Uint64("block", evt.BlockNumber),
			slog.Any("error", ledgererrors.ErrStatusRegression))
		return nil
	}
	line.Status = next
	if err := e.state.PutLine(line); err != nil {
		return err
	}
	var first *common.Hash
	if len(line.Positions) > 0 {
		first = types.HashPtr(line.Positions[0])
	}
	return e.record(events.LineStatusUpdated{
		Line:     line.ID,
		Position: first,
		Previous: previous,
		Status:   next,
		Code:     code,
	}, evt, "")
}

// HandleDefault moves the line to DEFAULT and writes one defaulted record per
// attached position, valued at principal plus accrued interest. Positions keep
// their own status and amounts.
func (e *Engine) HandleDefault(ctx context.Context, evt *types.ChainEvent) error {
	if err := e.ready(); err != nil {
		return err
	}
	line, err := e.requireLine(evt.Contract)
	if err != nil {
		return err
	}
	if line.Status != types.LineDefault {
		if err := e.transition(line, types.LineDefault, uint64(types.LineDefault), evt); err != nil {
			return err
		}
	}
	for _, id := range line.Positions {
		pos, err := e.requirePosition(id)
		if err != nil {
			return err
		}
		outstanding := new(big.Int).Add(pos.Principal, pos.InterestAccrued)
		_, quote, err := e.value(ctx, line.Oracle, pos.Token, outstanding, evt)
		if err != nil {
			return err
		}
		if err := e.record(events.CreditAmount{
			Type:     events.TypeCreditDefaulted,
			Line:     line.ID,
			Position: id,
			Token:    pos.Token,
			Amount:   outstanding,
			Value:    quote.Value,
			Degraded: quote.Degraded,
		}, evt, types.HashKey(id)); err != nil {
			return err
		}
	}
	return nil
}
