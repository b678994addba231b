package consent

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"lineledger/core/types"
)

var errShortInput = errors.New("consent: calldata shorter than a selector")

// Selector is the first four bytes of a call payload.
type Selector [4]byte

func (s Selector) Hex() string { return hexutil.Encode(s[:]) }

// Known proposal selectors.
var (
	SelectorAddCredit      = Selector{0xcb, 0x83, 0x62, 0x09}
	SelectorIncreaseCredit = Selector{0xc3, 0x65, 0x15, 0x74}
	SelectorSetRates       = Selector{0xac, 0x85, 0x6f, 0xac}
)

// Proposal kinds as stored on the Proposal entity.
const (
	KindAddCredit      = "addCredit"
	KindIncreaseCredit = "increaseCredit"
	KindSetRates       = "setRates"
	KindUnknown        = "unknown"
)

type schema struct {
	kind string
	args abi.Arguments
}

var selectors = func() map[Selector]schema {
	must := func(name string) abi.Type {
		t, err := abi.NewType(name, "", nil)
		if err != nil {
			panic(err)
		}
		return t
	}
	uint128, uint256, address, bytes32 := must("uint128"), must("uint256"), must("address"), must("bytes32")
	return map[Selector]schema{
		SelectorAddCredit: {kind: KindAddCredit, args: abi.Arguments{
			{Name: "drate", Type: uint128},
			{Name: "frate", Type: uint128},
			{Name: "amount", Type: uint256},
			{Name: "token", Type: address},
			{Name: "lender", Type: address},
		}},
		SelectorIncreaseCredit: {kind: KindIncreaseCredit, args: abi.Arguments{
			{Name: "id", Type: bytes32},
			{Name: "amount", Type: uint256},
		}},
		SelectorSetRates: {kind: KindSetRates, args: abi.Arguments{
			{Name: "id", Type: bytes32},
			{Name: "drate", Type: uint128},
			{Name: "frate", Type: uint128},
		}},
	}
}()

// Call is a decoded proposal payload. It is one of AddCredit, IncreaseCredit,
// SetRates or Unknown.
type Call interface {
	Kind() string
	Selector() Selector
	// Args renders the decoded arguments in call order.
	Args() []string
	isCall()
}

// AddCredit proposes a new position.
type AddCredit struct {
	DrawnRate    *big.Int
	FacilityRate *big.Int
	Amount       *big.Int
	Token        common.Address
	Lender       common.Address
}

func (AddCredit) Kind() string       { return KindAddCredit }
func (AddCredit) Selector() Selector { return SelectorAddCredit }
func (AddCredit) isCall()            {}

func (c AddCredit) Args() []string {
	return []string{c.DrawnRate.String(), c.FacilityRate.String(), c.Amount.String(),
		types.AddressKey(c.Token), types.AddressKey(c.Lender)}
}

// IncreaseCredit proposes a larger deposit on an open position.
type IncreaseCredit struct {
	Position common.Hash
	Amount   *big.Int
}

func (IncreaseCredit) Kind() string       { return KindIncreaseCredit }
func (IncreaseCredit) Selector() Selector { return SelectorIncreaseCredit }
func (IncreaseCredit) isCall()            {}

func (c IncreaseCredit) Args() []string {
	return []string{types.HashKey(c.Position), c.Amount.String()}
}

// SetRates proposes new rates for a position.
type SetRates struct {
	Position     common.Hash
	DrawnRate    *big.Int
	FacilityRate *big.Int
}

func (SetRates) Kind() string       { return KindSetRates }
func (SetRates) Selector() Selector { return SelectorSetRates }
func (SetRates) isCall()            {}

func (c SetRates) Args() []string {
	return []string{types.HashKey(c.Position), c.DrawnRate.String(), c.FacilityRate.String()}
}

// Unknown carries a selector outside the table. Other contracts share the
// consent event signature, so this is routine.
type Unknown struct {
	Sel Selector
}

func (Unknown) Kind() string         { return KindUnknown }
func (u Unknown) Selector() Selector { return u.Sel }
func (Unknown) Args() []string       { return nil }
func (Unknown) isCall()              {}

// SelectorOf extracts the selector of input.
func SelectorOf(input []byte) (Selector, error) {
	var sel Selector
	if len(input) < len(sel) {
		return sel, errShortInput
	}
	copy(sel[:], input[:4])
	return sel, nil
}

// KindOf looks up the proposal kind of a selector.
func KindOf(sel Selector) string {
	if s, ok := selectors[sel]; ok {
		return s.kind
	}
	return KindUnknown
}

// Decode parses a proposal payload. Unknown selectors yield Unknown and no
// error; a known selector whose arguments do not decode yields an error.
func Decode(input []byte) (Call, error) {
	sel, err := SelectorOf(input)
	if err != nil {
		return nil, err
	}
	s, ok := selectors[sel]
	if !ok {
		return Unknown{Sel: sel}, nil
	}
	values, err := s.args.Unpack(input[4:])
	if err != nil {
		return nil, fmt.Errorf("consent: decode %s: %w", s.kind, err)
	}
	if len(values) != len(s.args) {
		return nil, fmt.Errorf("consent: decode %s: got %d values", s.kind, len(values))
	}
	switch sel {
	case SelectorAddCredit:
		drate, ok1 := values[0].(*big.Int)
		frate, ok2 := values[1].(*big.Int)
		amount, ok3 := values[2].(*big.Int)
		token, ok4 := values[3].(common.Address)
		lender, ok5 := values[4].(common.Address)
		if !(ok1 && ok2 && ok3 && ok4 && ok5) {
			return nil, fmt.Errorf("consent: decode %s: unexpected value types", s.kind)
		}
		return AddCredit{DrawnRate: drate, FacilityRate: frate, Amount: amount, Token: token, Lender: lender}, nil
	case SelectorIncreaseCredit:
		id, ok1 := values[0].([32]byte)
		amount, ok2 := values[1].(*big.Int)
		if !(ok1 && ok2) {
			return nil, fmt.Errorf("consent: decode %s: unexpected value types", s.kind)
		}
		return IncreaseCredit{Position: common.Hash(id), Amount: amount}, nil
	default:
		id, ok1 := values[0].([32]byte)
		drate, ok2 := values[1].(*big.Int)
		frate, ok3 := values[2].(*big.Int)
		if !(ok1 && ok2 && ok3) {
			return nil, fmt.Errorf("consent: decode %s: unexpected value types", s.kind)
		}
		return SetRates{Position: common.Hash(id), DrawnRate: drate, FacilityRate: frate}, nil
	}
}

// Encode packs a known call back into calldata. It is the inverse of Decode and
// is used by tooling that replays proposals.
func Encode(c Call) ([]byte, error) {
	s, ok := selectors[c.Selector()]
	if !ok {
		return nil, fmt.Errorf("consent: cannot encode %s", c.Kind())
	}
	var (
		packed []byte
		err    error
	)
	switch v := c.(type) {
	case AddCredit:
		packed, err = s.args.Pack(v.DrawnRate, v.FacilityRate, v.Amount, v.Token, v.Lender)
	case IncreaseCredit:
		packed, err = s.args.Pack([32]byte(v.Position), v.Amount)
	case SetRates:
		packed, err = s.args.Pack([32]byte(v.Position), v.DrawnRate, v.FacilityRate)
	default:
		return nil, fmt.Errorf("consent: cannot encode %s", c.Kind())
	}
	if err != nil {
		return nil, fmt.Errorf("consent: encode %s: %w", c.Kind(), err)
	}
	sel := c.Selector()
	return append(bytes.Clone(sel[:]), packed...), nil
}
