package events

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"lineledger/core/types"
)

const (
	// TypeLineDeployed is emitted when a line contract announces itself.
	TypeLineDeployed        = "line.deployed"
	// TypeLineStatusUpdated tracks accepted status transitions.
	TypeLineStatusUpdated   = "line.status_updated"
	// TypeLineReservesChanged records a signed reserve delta on a line.
	TypeLineReservesChanged = "line.reserves_changed"

	TypeCreditProposed         = "credit.proposed"
	TypeCreditProposalRevoked  = "credit.proposal_revoked"
	TypeCreditAdded            = "credit.added"
	TypeCreditIncreased        = "credit.increased"
	TypeCreditBorrowed         = "credit.borrowed"
	TypeCreditInterestAccrued  = "credit.interest_accrued"
	TypeCreditInterestRepaid   = "credit.interest_repaid"
	TypeCreditPrincipalRepaid  = "credit.principal_repaid"
	TypeCreditProfitWithdrawn  = "credit.profit_withdrawn"
	TypeCreditDepositWithdrawn = "credit.deposit_withdrawn"
	TypeCreditLiquidated       = "credit.liquidated"
	TypeCreditDefaulted        = "credit.defaulted"
	TypeCreditClosed           = "credit.closed"
	TypeCreditRatesSet         = "credit.rates_set"
)

// LineDeployed captures the initial terms of a line.
type LineDeployed struct {
	Line     common.Address
	Borrower common.Address
	Arbiter  common.Address
	Oracle   common.Address
	Escrow   *common.Address
	Spigot   *common.Address
	Start    uint64
	End      uint64
}

func (LineDeployed) EventType() string { return TypeLineDeployed }

func (e LineDeployed) Event() *types.Event {
	attrs := map[string]string{}
	setAddress(attrs, "line", e.Line)
	setAddress(attrs, "borrower", e.Borrower)
	setAddress(attrs, "arbiter", e.Arbiter)
	setAddress(attrs, "oracle", e.Oracle)
	setAddressPtr(attrs, "escrow", e.Escrow)
	setAddressPtr(attrs, "spigot", e.Spigot)
	attrs["start"] = uintString(e.Start)
	attrs["end"] = uintString(e.End)
	return &types.Event{Type: TypeLineDeployed, Attributes: attrs}
}

// LineStatusUpdated records one accepted transition.
type LineStatusUpdated struct {
	Line     common.Address
	Position *common.Hash
	Previous types.LineStatus
	Status   types.LineStatus
	Code     uint64
}

func (LineStatusUpdated) EventType() string { return TypeLineStatusUpdated }

func (e LineStatusUpdated) Event() *types.Event {
	attrs := map[string]string{
		"previous": e.Previous.String(),
		"status":   e.Status.String(),
		"code":     uintString(e.Code),
	}
	setAddress(attrs, "line", e.Line)
	if e.Position != nil {
		setHash(attrs, "position", *e.Position)
	}
	return &types.Event{Type: TypeLineStatusUpdated, Attributes: attrs}
}

// CreditProposed records a mutual consent proposal.
type CreditProposed struct {
	Proposal string
	Line     common.Address
	Position *common.Hash
	Kind     string
	Selector string
	Maker    common.Address
	Taker    *common.Address
	Args     []string
}

func (CreditProposed) EventType() string { return TypeCreditProposed }

func (e CreditProposed) Event() *types.Event {
	attrs := map[string]string{
		"proposal": strings.TrimSpace(e.Proposal),
		"kind":     e.Kind,
		"selector": e.Selector,
	}
	setAddress(attrs, "line", e.Line)
	if e.Position != nil {
		setHash(attrs, "position", *e.Position)
	}
	setAddress(attrs, "maker", e.Maker)
	setAddressPtr(attrs, "taker", e.Taker)
	if len(e.Args) > 0 {
		attrs["args"] = strings.Join(e.Args, ",")
	}
	return &types.Event{Type: TypeCreditProposed, Attributes: attrs}
}

// ProposalRevoked marks a proposal as withdrawn.
type ProposalRevoked struct {
	Proposal string
	Line     common.Address
}

func (ProposalRevoked) EventType() string { return TypeCreditProposalRevoked }

func (e ProposalRevoked) Event() *types.Event {
	attrs := map[string]string{"proposal": e.Proposal}
	setAddress(attrs, "line", e.Line)
	return &types.Event{Type: TypeCreditProposalRevoked, Attributes: attrs}
}

// CreditAmount is the shared shape of every amount-bearing position record
// (borrow, repay, accrue, withdraw, liquidate, default). Type selects which.
type CreditAmount struct {
	Type     string
	Line     common.Address
	Position common.Hash
	Token    common.Address
	Amount   *big.Int
	Value    decimal.Decimal
	Degraded bool
}

func (e CreditAmount) EventType() string { return e.Type }

func (e CreditAmount) Event() *types.Event {
	attrs := map[string]string{
		"amount": amountString(e.Amount),
		"value":  valueString(e.Value),
	}
	setAddress(attrs, "line", e.Line)
	setHash(attrs, "position", e.Position)
	setAddress(attrs, "token", e.Token)
	if e.Degraded {
		attrs["degraded"] = "true"
	}
	return &types.Event{Type: e.Type, Attributes: attrs}
}

// PositionClosed records a position leaving the line.
type PositionClosed struct {
	Line                common.Address
	Position            common.Hash
	TotalInterestEarned *big.Int
}

func (PositionClosed) EventType() string { return TypeCreditClosed }

func (e PositionClosed) Event() *types.Event {
	attrs := map[string]string{"totalInterestEarned": amountString(e.TotalInterestEarned)}
	setAddress(attrs, "line", e.Line)
	setHash(attrs, "position", e.Position)
	return &types.Event{Type: TypeCreditClosed, Attributes: attrs}
}

// RatesSet records new drawn/facility rates for a position.
type RatesSet struct {
	Line         common.Address
	Position     common.Hash
	DrawnRate    uint32
	FacilityRate uint32
}

func (RatesSet) EventType() string { return TypeCreditRatesSet }

func (e RatesSet) Event() *types.Event {
	attrs := map[string]string{
		"drawnRate":    strconv.FormatUint(uint64(e.DrawnRate), 10),
		"facilityRate": strconv.FormatUint(uint64(e.FacilityRate), 10),
	}
	setAddress(attrs, "line", e.Line)
	setHash(attrs, "position", e.Position)
	return &types.Event{Type: TypeCreditRatesSet, Attributes: attrs}
}

// ReservesChanged records a signed change of a line's token reserve.
type ReservesChanged struct {
	Line    common.Address
	Token   common.Address
	Delta   *big.Int
	Reserve *big.Int
}

func (ReservesChanged) EventType() string { return TypeLineReservesChanged }

func (e ReservesChanged) Event() *types.Event {
	attrs := map[string]string{
		"delta":   amountString(e.Delta),
		"reserve": amountString(e.Reserve),
	}
	setAddress(attrs, "line", e.Line)
	setAddress(attrs, "token", e.Token)
	return &types.Event{Type: TypeLineReservesChanged, Attributes: attrs}
}
