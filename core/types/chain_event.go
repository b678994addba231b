package types

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	ledgererrors "lineledger/core/errors"
)

// EventKind names a decoded contract log.
type EventKind string

// Line events.
const (
	KindDeployLine          EventKind = "DeployLine"
	KindUpdateStatus        EventKind = "UpdateStatus"
	KindAddCredit           EventKind = "AddCredit"
	KindSetRates            EventKind = "SetRates"
	KindIncreaseCredit      EventKind = "IncreaseCredit"
	KindBorrow              EventKind = "Borrow"
	KindInterestAccrued     EventKind = "InterestAccrued"
	KindRepayInterest       EventKind = "RepayInterest"
	KindRepayPrincipal      EventKind = "RepayPrincipal"
	KindWithdrawProfit      EventKind = "WithdrawProfit"
	KindWithdrawDeposit     EventKind = "WithdrawDeposit"
	KindCloseCreditPosition EventKind = "CloseCreditPosition"
	KindDefault             EventKind = "Default"
	KindLiquidate           EventKind = "Liquidate"
	KindTradeSpigotRevenue  EventKind = "TradeSpigotRevenue"
	KindReservesChanged     EventKind = "ReservesChanged"

	KindMutualConsentRegistered EventKind = "MutualConsentRegistered"
	KindMutualConsentRevoked    EventKind = "MutualConsentRevoked"
)

// Spigot events.
const (
	KindAddSpigot               EventKind = "AddSpigot"
	KindRemoveSpigot            EventKind = "RemoveSpigot"
	KindClaimRevenue            EventKind = "ClaimRevenue"
	KindClaimOwnerTokens        EventKind = "ClaimOwnerTokens"
	KindClaimOperatorTokens     EventKind = "ClaimOperatorTokens"
	KindUpdateOwnerSplit        EventKind = "UpdateOwnerSplit"
	KindUpdateOwner             EventKind = "UpdateOwner"
	KindUpdateOperator          EventKind = "UpdateOperator"
	KindUpdateWhitelistFunction EventKind = "UpdateWhitelistFunction"
)

// Escrow and factory events.
const (
	KindAddCollateral    EventKind = "AddCollateral"
	KindRemoveCollateral EventKind = "RemoveCollateral"
	KindEnableCollateral EventKind = "EnableCollateral"

	KindDeployedSecuredLine EventKind = "DeployedSecuredLine"
	KindDeployedSpigot      EventKind = "DeployedSpigot"
	KindDeployedEscrow      EventKind = "DeployedEscrow"
)

// ChainEvent is one decoded log together with the transaction context the
// handlers need. Params holds the kind-specific arguments keyed by their ABI
// names.
type ChainEvent struct {
	Kind        EventKind
	Contract    common.Address
	BlockNumber uint64
	BlockTime   uint64
	TxHash      common.Hash
	TxFrom      common.Address
	TxInput     []byte
	LogIndex    uint
	Params      map[string]any
}

// ID is the unique key of the log itself.
func (e *ChainEvent) ID() string {
	return EventID(string(e.Kind), e.TxHash, e.LogIndex)
}

func (e *ChainEvent) param(name string) (any, error) {
	if e.Params == nil {
		return nil, e.malformed(name, "missing")
	}
	value, ok := e.Params[name]
	if !ok || value == nil {
		return nil, e.malformed(name, "missing")
	}
	return value, nil
}

func (e *ChainEvent) malformed(name, reason string) error {
	return fmt.Errorf("%w: %s %s: param %q %s", ledgererrors.ErrMalformedEvent, e.Kind, e.TxHash.Hex(), name, reason)
}

// Has reports whether the named parameter is present.
func (e *ChainEvent) Has(name string) bool {
	if e.Params == nil {
		return false
	}
	value, ok := e.Params[name]
	return ok && value != nil
}

// Address returns the named parameter as an account address.
func (e *ChainEvent) Address(name string) (common.Address, error) {
	value, err := e.param(name)
	if err != nil {
		return common.Address{}, err
	}
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	case []byte:
		if len(v) == common.AddressLength {
			return common.BytesToAddress(v), nil
		}
	case string:
		if common.IsHexAddress(v) {
			return common.HexToAddress(v), nil
		}
	}
	return common.Address{}, e.malformed(name, fmt.Sprintf("is %T, not an address", value))
}

// BigInt returns the named parameter as an integer amount.
func (e *ChainEvent) BigInt(name string) (*big.Int, error) {
	value, err := e.param(name)
	if err != nil {
		return nil, err
	}
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case *uint256.Int:
		return v.ToBig(), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case int:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case string:
		if n, ok := new(big.Int).SetString(strings.TrimSpace(v), 0); ok {
			return n, nil
		}
	}
	return nil, e.malformed(name, fmt.Sprintf("is %T, not an integer", value))
}

// Uint returns the named parameter as a non-negative 64-bit integer.
func (e *ChainEvent) Uint(name string) (uint64, error) {
	n, err := e.BigInt(name)
	if err != nil {
		return 0, err
	}
	if n.Sign() < 0 || !n.IsUint64() {
		return 0, e.malformed(name, "out of uint64 range")
	}
	return n.Uint64(), nil
}

// Hash returns the named parameter as a 32-byte identifier.
func (e *ChainEvent) Hash(name string) (common.Hash, error) {
	value, err := e.param(name)
	if err != nil {
		return common.Hash{}, err
	}
	switch v := value.(type) {
	case common.Hash:
		return v, nil
	case [32]byte:
		return common.Hash(v), nil
	case []byte:
		if len(v) == common.HashLength {
			return common.BytesToHash(v), nil
		}
	case string:
		if raw, err := hexutil.Decode(v); err == nil && len(raw) == common.HashLength {
			return common.BytesToHash(raw), nil
		}
	}
	return common.Hash{}, e.malformed(name, fmt.Sprintf("is %T, not bytes32", value))
}

// Bytes4 returns the named parameter as a function selector.
func (e *ChainEvent) Bytes4(name string) ([4]byte, error) {
	var out [4]byte
	value, err := e.param(name)
	if err != nil {
		return out, err
	}
	switch v := value.(type) {
	case [4]byte:
		return v, nil
	case []byte:
		if len(v) == 4 {
			copy(out[:], v)
			return out, nil
		}
	case string:
		if raw, err := hexutil.Decode(v); err == nil && len(raw) == 4 {
			copy(out[:], raw)
			return out, nil
		}
	}
	return out, e.malformed(name, fmt.Sprintf("is %T, not bytes4", value))
}

// Bool returns the named parameter as a flag.
func (e *ChainEvent) Bool(name string) (bool, error) {
	value, err := e.param(name)
	if err != nil {
		return false, err
	}
	if v, ok := value.(bool); ok {
		return v, nil
	}
	return false, e.malformed(name, fmt.Sprintf("is %T, not bool", value))
}

// Text returns the named parameter as a string.
func (e *ChainEvent) Text(name string) (string, error) {
	value, err := e.param(name)
	if err != nil {
		return "", err
	}
	if v, ok := value.(string); ok {
		return v, nil
	}
	return "", e.malformed(name, fmt.Sprintf("is %T, not string", value))
}
