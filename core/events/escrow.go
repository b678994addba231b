package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"lineledger/core/types"
)

const (
	TypeEscrowCollateralAdded   = "escrow.collateral_added"
	TypeEscrowCollateralRemoved = "escrow.collateral_removed"
	TypeEscrowCollateralEnabled = "escrow.collateral_enabled"

	TypeFactoryLineDeployed   = "factory.line_deployed"
	TypeFactorySpigotDeployed = "factory.spigot_deployed"
	TypeFactoryEscrowDeployed = "factory.escrow_deployed"
)

// CollateralChanged records a deposit movement in an escrow.
type CollateralChanged struct {
	Type            string
	Escrow          common.Address
	Line            *common.Address
	Token           common.Address
	Amount          *big.Int
	Balance         *big.Int
	Value           decimal.Decimal
	CollateralValue decimal.Decimal
}

func (e CollateralChanged) EventType() string { return e.Type }

func (e CollateralChanged) Event() *types.Event {
	attrs := map[string]string{
		"deposit":         types.PairID(e.Escrow, e.Token),
		"amount":          amountString(e.Amount),
		"balance":         amountString(e.Balance),
		"value":           valueString(e.Value),
		"collateralValue": valueString(e.CollateralValue),
	}
	setAddress(attrs, "escrow", e.Escrow)
	setAddressPtr(attrs, "line", e.Line)
	setAddress(attrs, "token", e.Token)
	return &types.Event{Type: e.Type, Attributes: attrs}
}

// ModuleDeployed records a factory deployment of a line, spigot or escrow.
type ModuleDeployed struct {
	Type       string
	Factory    common.Address
	DeployedAt common.Address
	Deployer   common.Address
	Owner      common.Address
	Operator   common.Address
	Oracle     common.Address
	Escrow     *common.Address
	Spigot     *common.Address
	MinCRatio  *big.Int
}

func (e ModuleDeployed) EventType() string { return e.Type }

func (e ModuleDeployed) Event() *types.Event {
	attrs := map[string]string{}
	setAddress(attrs, "factory", e.Factory)
	setAddress(attrs, "deployedAt", e.DeployedAt)
	setAddress(attrs, "deployer", e.Deployer)
	setAddress(attrs, "owner", e.Owner)
	setAddress(attrs, "operator", e.Operator)
	setAddress(attrs, "oracle", e.Oracle)
	setAddressPtr(attrs, "escrow", e.Escrow)
	setAddressPtr(attrs, "spigot", e.Spigot)
	if e.MinCRatio != nil {
		attrs["minCRatio"] = e.MinCRatio.String()
	}
	if e.Type == TypeFactoryLineDeployed {
		setAddress(attrs, "line", e.DeployedAt)
	}
	return &types.Event{Type: e.Type, Attributes: attrs}
}
