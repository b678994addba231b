package spigot

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	ledgererrors "lineledger/core/errors"
	"lineledger/core/events"
	"lineledger/core/state"
	"lineledger/core/types"
	"lineledger/native/tokens"
	"lineledger/native/valuation"
	"lineledger/storage"
)

var (
	controllerAddr = common.HexToAddress("0x5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a")
	lineAddr       = common.HexToAddress("0x1111111111111111111111111111111111111111")
	oracleAddr     = common.HexToAddress("0x0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a")
	revenueAddr    = common.HexToAddress("0x7e7e7e7e7e7e7e7e7e7e7e7e7e7e7e7e7e7e7e7e")
	revenueToken   = common.HexToAddress("0x3333333333333333333333333333333333333333")
	debtToken      = common.HexToAddress("0x4444444444444444444444444444444444444444")
	ownerAddr      = common.HexToAddress("0x0101010101010101010101010101010101010101")
	operatorAddr   = common.HexToAddress("0x0202020202020202020202020202020202020202")
)

type wholeUnits struct{}

func (wholeUnits) Decimals(context.Context, common.Address) (uint8, error) { return 0, nil }
func (wholeUnits) Symbol(context.Context, common.Address) (string, error)  { return "REV", nil }
func (wholeUnits) Name(context.Context, common.Address) (string, error)    { return "Revenue", nil }

type market struct {
	price decimal.Decimal
	err   error
}

func (market) Name() string { return "test" }

func (m market) PriceUSD(context.Context, common.Address) (decimal.Decimal, error) {
	return m.price, m.err
}

type oracle struct{ answer *big.Int }

func (o oracle) LatestAnswer(context.Context, common.Address, common.Address) (*big.Int, error) {
	return o.answer, nil
}

type fixture struct {
	acct *Accountant
	mgr  *state.Manager
	seq  int64
}

func newFixture(t *testing.T, src market) *fixture {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	valuer := valuation.New(oracle{answer: big.NewInt(100_000_000)}, mgr, valuation.WithMarketSources(src))
	acct := NewAccountant(valuer, tokens.NewRegistry(mgr, wholeUnits{}))
	acct.SetState(mgr)
	line := lineAddr
	require.NoError(t, mgr.PutSpigotController(&types.SpigotController{
		ID:       controllerAddr,
		Line:     &line,
		Owner:    ownerAddr,
		Operator: operatorAddr,
	}))
	return &fixture{acct: acct, mgr: mgr}
}

func (f *fixture) apply(t *testing.T, kind types.EventKind, contract common.Address, params map[string]any) error {
	t.Helper()
	f.seq++
	evt := &types.ChainEvent{
		Kind:        kind,
		Contract:    contract,
		BlockNumber: uint64(200 + f.seq),
		BlockTime:   uint64(1_700_000_000 + f.seq),
		TxHash:      common.BigToHash(big.NewInt(f.seq)),
		Params:      params,
	}
	handler, ok := f.acct.Routes()[kind]
	require.True(t, ok, "no route for %s", kind)
	return handler(context.Background(), evt)
}

func (f *fixture) addSpigot(t *testing.T) {
	t.Helper()
	require.NoError(t, f.apply(t, types.KindAddSpigot, controllerAddr, map[string]any{
		"revenueContract": revenueAddr,
		"ownerSplit":      big.NewInt(30),
		"claimFnSig":      [4]byte{0xde, 0xad, 0xbe, 0xef},
		"trsfrFnSig":      [4]byte{0xa9, 0x05, 0x9c, 0xbb},
	}))
}

func TestClaimRevenueSplitsOwnerAndOperator(t *testing.T) {
	f := newFixture(t, market{price: decimal.RequireFromString("2.0")})
	f.addSpigot(t)

	require.NoError(t, f.apply(t, types.KindClaimRevenue, controllerAddr, map[string]any{
		"token":           revenueToken,
		"amount":          big.NewInt(1000),
		"escrowed":        big.NewInt(300),
		"revenueContract": revenueAddr,
	}))

	summary, ok, err := f.mgr.RevenueSummary(types.PairID(controllerAddr, revenueToken))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(300), summary.OwnerTokens.Int64())
	require.Equal(t, int64(700), summary.OperatorTokens.Int64())
	require.Equal(t, int64(1000), summary.TotalVolume.Int64())
	require.True(t, summary.TotalVolumeValue.Equal(decimal.NewFromInt(2000)), "value %s", summary.TotalVolumeValue)
	require.NotZero(t, summary.FirstIncomeAt)

	spigot, ok, err := f.mgr.Spigot(types.PairID(controllerAddr, revenueAddr))
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, spigot.TotalVolumeValue.Equal(decimal.NewFromInt(2000)))
	require.Equal(t, uint32(30), spigot.OwnerSplit)
	require.Equal(t, "0xdeadbeef", spigot.ClaimFunc)

	token, ok, err := f.mgr.Token(revenueToken)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, token.LastPrice.Equal(decimal.NewFromInt(2)), "realised price %s", token.LastPrice)

	var claimed *types.Event
	require.NoError(t, f.mgr.Events(events.TypeSpigotRevenueClaimed, func(evt *types.Event) bool {
		claimed = evt
		return false
	}))
	require.NotNil(t, claimed)
	require.Equal(t, "700", claimed.Attr("netIncome"))
	require.Equal(t, types.AddressKey(lineAddr), claimed.Attr("line"))
}

func TestOwnerAndOperatorClaimsDrainSummary(t *testing.T) {
	f := newFixture(t, market{price: decimal.NewFromInt(1)})
	f.addSpigot(t)
	require.NoError(t, f.apply(t, types.KindClaimRevenue, controllerAddr, map[string]any{
		"token": revenueToken, "amount": big.NewInt(1000), "escrowed": big.NewInt(300), "revenueContract": revenueAddr,
	}))

	require.NoError(t, f.apply(t, types.KindClaimOwnerTokens, controllerAddr, map[string]any{
		"token": revenueToken, "amount": big.NewInt(300), "owner": ownerAddr,
	}))
	require.NoError(t, f.apply(t, types.KindClaimOperatorTokens, controllerAddr, map[string]any{
		"token": revenueToken, "amount": big.NewInt(900), "operator": operatorAddr,
	}))

	summary, _, err := f.mgr.RevenueSummary(types.PairID(controllerAddr, revenueToken))
	require.NoError(t, err)
	require.Zero(t, summary.OwnerTokens.Sign())
	require.Zero(t, summary.OperatorTokens.Sign(), "over-claim clamps at zero")
	require.Equal(t, int64(1000), summary.TotalVolume.Int64())
}

func TestClaimWithoutSummaryIsMissing(t *testing.T) {
	f := newFixture(t, market{price: decimal.NewFromInt(1)})
	err := f.apply(t, types.KindClaimOwnerTokens, controllerAddr, map[string]any{
		"token": revenueToken, "amount": big.NewInt(1), "owner": ownerAddr,
	})
	require.True(t, errors.Is(err, ledgererrors.ErrMissingEntity), "got %v", err)

	err = f.apply(t, types.KindClaimRevenue, controllerAddr, map[string]any{
		"token": revenueToken, "amount": big.NewInt(1), "escrowed": big.NewInt(0), "revenueContract": revenueAddr,
	})
	require.ErrorIs(t, err, ledgererrors.ErrMissingEntity)
}

func TestMarketFailureDegradesClaim(t *testing.T) {
	f := newFixture(t, market{err: errors.New("lens offline")})
	f.addSpigot(t)
	require.NoError(t, f.apply(t, types.KindClaimRevenue, controllerAddr, map[string]any{
		"token": revenueToken, "amount": big.NewInt(50), "escrowed": big.NewInt(10), "revenueContract": revenueAddr,
	}))
	summary, _, err := f.mgr.RevenueSummary(types.PairID(controllerAddr, revenueToken))
	require.NoError(t, err)
	require.Equal(t, int64(40), summary.OperatorTokens.Int64())
	require.True(t, summary.TotalVolumeValue.IsZero())

	token, _, err := f.mgr.Token(revenueToken)
	require.NoError(t, err)
	require.True(t, token.LastPrice.IsZero(), "degraded claims must not record a price")
}

func TestSpigotLifecycleAndRoles(t *testing.T) {
	f := newFixture(t, market{price: decimal.NewFromInt(1)})
	f.addSpigot(t)

	require.NoError(t, f.apply(t, types.KindUpdateOwnerSplit, controllerAddr, map[string]any{
		"revenueContract": revenueAddr, "split": big.NewInt(55),
	}))
	require.NoError(t, f.apply(t, types.KindRemoveSpigot, controllerAddr, map[string]any{
		"revenueContract": revenueAddr, "token": revenueToken,
	}))
	spigot, _, err := f.mgr.Spigot(types.PairID(controllerAddr, revenueAddr))
	require.NoError(t, err)
	require.False(t, spigot.Active)
	require.Equal(t, uint32(55), spigot.OwnerSplit)

	next := common.HexToAddress("0x0909090909090909090909090909090909090909")
	require.NoError(t, f.apply(t, types.KindUpdateOwner, controllerAddr, map[string]any{"newOwner": next}))
	require.NoError(t, f.apply(t, types.KindUpdateWhitelistFunction, controllerAddr, map[string]any{
		"func": [4]byte{0x12, 0x34, 0x56, 0x78}, "allowed": true,
	}))
	controller, _, err := f.mgr.SpigotController(controllerAddr)
	require.NoError(t, err)
	require.Equal(t, next, controller.Owner)
	require.Equal(t, operatorAddr, controller.Operator)

	var handover *types.Event
	require.NoError(t, f.mgr.Events(events.TypeSpigotOwnerUpdated, func(evt *types.Event) bool {
		handover = evt
		return false
	}))
	require.NotNil(t, handover)
	require.Equal(t, types.AddressKey(ownerAddr), handover.Attr("previous"))
}

func TestTradeValuesBothLegsAndReservesMoveOnlyOnChange(t *testing.T) {
	f := newFixture(t, market{price: decimal.NewFromInt(3)})
	spigot := controllerAddr
	require.NoError(t, f.mgr.PutLine(&types.Line{ID: lineAddr, Oracle: oracleAddr, Spigot: &spigot}))

	require.NoError(t, f.apply(t, types.KindTradeSpigotRevenue, lineAddr, map[string]any{
		"revenueToken":       revenueToken,
		"revenueTokenAmount": big.NewInt(10),
		"debtToken":          debtToken,
		"debtTokensBought":   big.NewInt(25),
	}))
	var trade *types.Event
	require.NoError(t, f.mgr.Events(events.TypeSpigotRevenueTraded, func(evt *types.Event) bool {
		trade = evt
		return false
	}))
	require.NotNil(t, trade)
	require.Equal(t, "30", trade.Attr("soldValue"))
	require.Equal(t, "25", trade.Attr("boughtValue"))

	_, ok, err := f.mgr.LineReserve(types.PairID(lineAddr, debtToken))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, f.apply(t, types.KindReservesChanged, lineAddr, map[string]any{
		"token": debtToken, "diff": big.NewInt(25),
	}))
	require.NoError(t, f.apply(t, types.KindReservesChanged, lineAddr, map[string]any{
		"token": debtToken, "diff": big.NewInt(-40),
	}))
	reserve, ok, err := f.mgr.LineReserve(types.PairID(lineAddr, debtToken))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(-15), reserve.Amount.Int64())
}
