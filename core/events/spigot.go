package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"lineledger/core/types"
)

const (
	TypeSpigotAdded                 = "spigot.added"
	TypeSpigotRemoved               = "spigot.removed"
	TypeSpigotRevenueClaimed        = "spigot.revenue_claimed"
	TypeSpigotRevenueTraded         = "spigot.revenue_traded"
	TypeSpigotOwnerTokensClaimed    = "spigot.owner_tokens_claimed"
	TypeSpigotOperatorTokensClaimed = "spigot.operator_tokens_claimed"
	TypeSpigotOwnerSplitUpdated     = "spigot.owner_split_updated"
	TypeSpigotOwnerUpdated          = "spigot.owner_updated"
	TypeSpigotOperatorUpdated       = "spigot.operator_updated"
	TypeSpigotWhitelistUpdated      = "spigot.whitelist_updated"
)

// SpigotAdded records a new revenue binding.
type SpigotAdded struct {
	Controller   common.Address
	Spigot       string
	Contract     common.Address
	OwnerSplit   uint32
	ClaimFunc    string
	TransferFunc string
}

func (SpigotAdded) EventType() string { return TypeSpigotAdded }

func (e SpigotAdded) Event() *types.Event {
	attrs := map[string]string{
		"spigot":       e.Spigot,
		"ownerSplit":   strconv.FormatUint(uint64(e.OwnerSplit), 10),
		"claimFunc":    e.ClaimFunc,
		"transferFunc": e.TransferFunc,
	}
	setAddress(attrs, "controller", e.Controller)
	setAddress(attrs, "contract", e.Contract)
	return &types.Event{Type: TypeSpigotAdded, Attributes: attrs}
}

// SpigotRemoved records a binding being deactivated.
type SpigotRemoved struct {
	Controller common.Address
	Spigot     string
	Contract   common.Address
	Token      common.Address
}

func (SpigotRemoved) EventType() string { return TypeSpigotRemoved }

func (e SpigotRemoved) Event() *types.Event {
	attrs := map[string]string{"spigot": e.Spigot}
	setAddress(attrs, "controller", e.Controller)
	setAddress(attrs, "contract", e.Contract)
	setAddress(attrs, "token", e.Token)
	return &types.Event{Type: TypeSpigotRemoved, Attributes: attrs}
}

// RevenueClaimed records revenue pulled through a spigot and its split.
type RevenueClaimed struct {
	Controller common.Address
	Line       *common.Address
	Spigot     string
	Token      common.Address
	Amount     *big.Int
	Escrowed   *big.Int
	NetIncome  *big.Int
	Value      decimal.Decimal
	Degraded   bool
}

func (RevenueClaimed) EventType() string { return TypeSpigotRevenueClaimed }

func (e RevenueClaimed) Event() *types.Event {
	attrs := map[string]string{
		"spigot":    e.Spigot,
		"amount":    amountString(e.Amount),
		"escrowed":  amountString(e.Escrowed),
		"netIncome": amountString(e.NetIncome),
		"value":     valueString(e.Value),
	}
	setAddress(attrs, "controller", e.Controller)
	setAddressPtr(attrs, "line", e.Line)
	setAddress(attrs, "token", e.Token)
	if e.Degraded {
		attrs["degraded"] = "true"
	}
	return &types.Event{Type: TypeSpigotRevenueClaimed, Attributes: attrs}
}

// TradeRevenue records spigot revenue swapped into a line's debt token. Both
// valuations are kept so the spread between the two price signals is visible.
type TradeRevenue struct {
	Line         common.Address
	Spigot       *common.Address
	RevenueToken common.Address
	Sold         *big.Int
	SoldValue    decimal.Decimal
	DebtToken    common.Address
	Bought       *big.Int
	BoughtValue  decimal.Decimal
}

func (TradeRevenue) EventType() string { return TypeSpigotRevenueTraded }

func (e TradeRevenue) Event() *types.Event {
	attrs := map[string]string{
		"sold":        amountString(e.Sold),
		"soldValue":   valueString(e.SoldValue),
		"bought":      amountString(e.Bought),
		"boughtValue": valueString(e.BoughtValue),
	}
	setAddress(attrs, "line", e.Line)
	setAddressPtr(attrs, "controller", e.Spigot)
	setAddress(attrs, "revenueToken", e.RevenueToken)
	setAddress(attrs, "debtToken", e.DebtToken)
	return &types.Event{Type: TypeSpigotRevenueTraded, Attributes: attrs}
}

// SpigotTokensClaimed records owner or operator tokens leaving the controller.
type SpigotTokensClaimed struct {
	Type       string
	Controller common.Address
	Token      common.Address
	To         common.Address
	Amount     *big.Int
	Value      decimal.Decimal
}

func (e SpigotTokensClaimed) EventType() string { return e.Type }

func (e SpigotTokensClaimed) Event() *types.Event {
	attrs := map[string]string{
		"amount": amountString(e.Amount),
		"value":  valueString(e.Value),
	}
	setAddress(attrs, "controller", e.Controller)
	setAddress(attrs, "token", e.Token)
	setAddress(attrs, "to", e.To)
	return &types.Event{Type: e.Type, Attributes: attrs}
}

// OwnerSplitUpdated records a new owner share for a binding.
type OwnerSplitUpdated struct {
	Controller common.Address
	Spigot     string
	Split      uint32
}

func (OwnerSplitUpdated) EventType() string { return TypeSpigotOwnerSplitUpdated }

func (e OwnerSplitUpdated) Event() *types.Event {
	attrs := map[string]string{
		"spigot": e.Spigot,
		"split":  strconv.FormatUint(uint64(e.Split), 10),
	}
	setAddress(attrs, "controller", e.Controller)
	return &types.Event{Type: TypeSpigotOwnerSplitUpdated, Attributes: attrs}
}

// SpigotRoleUpdated records an owner or operator handover.
type SpigotRoleUpdated struct {
	Type       string
	Controller common.Address
	Previous   common.Address
	Next       common.Address
}

func (e SpigotRoleUpdated) EventType() string { return e.Type }

func (e SpigotRoleUpdated) Event() *types.Event {
	attrs := map[string]string{}
	setAddress(attrs, "controller", e.Controller)
	setAddress(attrs, "previous", e.Previous)
	setAddress(attrs, "next", e.Next)
	return &types.Event{Type: e.Type, Attributes: attrs}
}

// WhitelistUpdated records an operator function being allowed or denied.
type WhitelistUpdated struct {
	Controller common.Address
	Func       string
	Allowed    bool
}

func (WhitelistUpdated) EventType() string { return TypeSpigotWhitelistUpdated }

func (e WhitelistUpdated) Event() *types.Event {
	attrs := map[string]string{
		"func":    e.Func,
		"allowed": strconv.FormatBool(e.Allowed),
	}
	setAddress(attrs, "controller", e.Controller)
	return &types.Event{Type: TypeSpigotWhitelistUpdated, Attributes: attrs}
}
