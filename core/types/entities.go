package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Line is a credit facility contract.
type Line struct {
	ID            common.Address  `json:"id"`
	Kind          string          `json:"kind"`
	Borrower      common.Address  `json:"borrower"`
	Arbiter       common.Address  `json:"arbiter"`
	Oracle        common.Address  `json:"oracle"`
	SwapTarget    *common.Address `json:"swapTarget,omitempty"`
	Start         uint64          `json:"start"`
	End           uint64          `json:"end"`
	Status        LineStatus      `json:"status"`
	DefaultSplit  uint32          `json:"defaultSplit"`
	Escrow        *common.Address `json:"escrow,omitempty"`
	Spigot        *common.Address `json:"spigot,omitempty"`
	Positions     []common.Hash   `json:"positions"`
	DeployedBlock uint64          `json:"deployedBlock"`
}

// AttachPosition adds id to the line's position set. It reports whether the id
// was new; order of first attachment is preserved.
func (l *Line) AttachPosition(id common.Hash) bool {
	for _, existing := range l.Positions {
		if existing == id {
			return false
		}
	}
	l.Positions = append(l.Positions, id)
	return true
}

// Position is one lender/token relationship on a line.
type Position struct {
	ID                  common.Hash     `json:"id"`
	Line                common.Address  `json:"line"`
	Lender              common.Address  `json:"lender"`
	Token               common.Address  `json:"token"`
	Status              PositionStatus  `json:"status"`
	Deposit             *big.Int        `json:"deposit"`
	Principal           *big.Int        `json:"principal"`
	InterestAccrued     *big.Int        `json:"interestAccrued"`
	InterestRepaid      *big.Int        `json:"interestRepaid"`
	TotalInterestEarned *big.Int        `json:"totalInterestEarned"`
	PrincipalValue      decimal.Decimal `json:"principalValue"`
	InterestValue       decimal.Decimal `json:"interestValue"`
	DrawnRate           uint32          `json:"drawnRate"`
	FacilityRate        uint32          `json:"facilityRate"`
	Queue               QueueIndex      `json:"queue"`
	ProposedAt          uint64          `json:"proposedAt,omitempty"`
	OpenedAt            uint64          `json:"openedAt,omitempty"`
	ClosedAt            uint64          `json:"closedAt,omitempty"`
}

// NewPosition returns a position with every amount zeroed and no queue slot.
func NewPosition(id common.Hash) *Position {
	return &Position{
		ID:                  id,
		Status:              PositionProposed,
		Deposit:             new(big.Int),
		Principal:           new(big.Int),
		InterestAccrued:     new(big.Int),
		InterestRepaid:      new(big.Int),
		TotalInterestEarned: new(big.Int),
		PrincipalValue:      decimal.Zero,
		InterestValue:       decimal.Zero,
		Queue:               NotInQueue,
	}
}

// EnsureDefaults replaces nil amounts left behind by older records.
func (p *Position) EnsureDefaults() {
	for _, field := range []**big.Int{&p.Deposit, &p.Principal, &p.InterestAccrued, &p.InterestRepaid, &p.TotalInterestEarned} {
		if *field == nil {
			*field = new(big.Int)
		}
	}
}

// ClearFinancials zeroes the active amounts of a position while keeping the
// historical totals.
func (p *Position) ClearFinancials() {
	p.Deposit = new(big.Int)
	p.Principal = new(big.Int)
	p.InterestAccrued = new(big.Int)
	p.InterestRepaid = new(big.Int)
	p.PrincipalValue = decimal.Zero
	p.InterestValue = decimal.Zero
	p.DrawnRate = 0
	p.FacilityRate = 0
	p.Queue = NotInQueue
}

// Proposal records the latest mutual consent negotiation round for a consent
// id. Within a round only RevokedAt changes.
type Proposal struct {
	ID         string          `json:"id"`
	Line       common.Address  `json:"line"`
	Position   *common.Hash    `json:"position,omitempty"`
	Kind       string          `json:"kind"`
	Selector   string          `json:"selector"`
	Maker      common.Address  `json:"maker"`
	Taker      *common.Address `json:"taker,omitempty"`
	Args       []string        `json:"args"`
	MsgData    []byte          `json:"msgData,omitempty"`
	ProposedAt uint64          `json:"proposedAt"`
	RevokedAt  *uint64         `json:"revokedAt,omitempty"`
	// RegisteredBy is the id of the chain event that opened the current
	// negotiation round. Consent hashes repeat when identical terms are
	// proposed again, so a registration from another event starts a new round.
	RegisteredBy string `json:"registeredBy"`
}

// Escrow is the collateral container for a line.
type Escrow struct {
	ID              common.Address  `json:"id"`
	Line            *common.Address `json:"line,omitempty"`
	Oracle          common.Address  `json:"oracle"`
	Owner           common.Address  `json:"owner"`
	MinCRatio       decimal.Decimal `json:"minCRatio"`
	CRatio          decimal.Decimal `json:"cratio"`
	CollateralValue decimal.Decimal `json:"collateralValue"`
}

// EscrowDeposit is the per-token balance held in an escrow.
type EscrowDeposit struct {
	ID      string          `json:"id"`
	Escrow  common.Address  `json:"escrow"`
	Token   common.Address  `json:"token"`
	Amount  *big.Int        `json:"amount"`
	Enabled bool            `json:"enabled"`
	Value   decimal.Decimal `json:"value"`
}

// SpigotController owns the revenue bindings for a line.
type SpigotController struct {
	ID         common.Address  `json:"id"`
	Line       *common.Address `json:"line,omitempty"`
	Owner      common.Address  `json:"owner"`
	Operator   common.Address  `json:"operator"`
	Treasury   common.Address  `json:"treasury"`
	SwapTarget *common.Address `json:"swapTarget,omitempty"`
	StartBlock uint64          `json:"startBlock"`
}

// Spigot binds one revenue-producing contract to a controller.
type Spigot struct {
	ID               string          `json:"id"`
	Controller       common.Address  `json:"controller"`
	Contract         common.Address  `json:"contract"`
	Active           bool            `json:"active"`
	OwnerSplit       uint32          `json:"ownerSplit"`
	ClaimFunc        string          `json:"claimFunc"`
	TransferFunc     string          `json:"transferFunc"`
	StartTime        uint64          `json:"startTime"`
	TotalVolumeValue decimal.Decimal `json:"totalVolumeValue"`
}

// SpigotRevenueSummary aggregates claimed revenue per (controller, token).
type SpigotRevenueSummary struct {
	ID               string          `json:"id"`
	Controller       common.Address  `json:"controller"`
	Token            common.Address  `json:"token"`
	OwnerTokens      *big.Int        `json:"ownerTokens"`
	OperatorTokens   *big.Int        `json:"operatorTokens"`
	TotalVolume      *big.Int        `json:"totalVolume"`
	TotalVolumeValue decimal.Decimal `json:"totalVolumeValue"`
	FirstIncomeAt    uint64          `json:"firstIncomeAt"`
	LastIncomeAt     uint64          `json:"lastIncomeAt"`
}

// LineReserve tracks a line's net token reserve delta. Amount may be negative.
type LineReserve struct {
	ID     string         `json:"id"`
	Line   common.Address `json:"line"`
	Token  common.Address `json:"token"`
	Amount *big.Int       `json:"amount"`
}

// Token caches ERC20 metadata and the last observed reference price.
type Token struct {
	Address        common.Address  `json:"address"`
	Decimals       uint8           `json:"decimals"`
	Symbol         string          `json:"symbol"`
	Name           string          `json:"name"`
	LastPrice      decimal.Decimal `json:"lastPrice"`
	LastPriceBlock uint64          `json:"lastPriceBlock"`
}
