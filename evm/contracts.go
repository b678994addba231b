package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// caller packs a method call, executes it and unpacks the single return value.
type caller struct {
	client *Client
}

func (c caller) call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) (interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := c.client.Call(ctx, to, data)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}
	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s from %s: %w", method, to.Hex(), err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unpack %s from %s: %d values", method, to.Hex(), len(out))
	}
	return out[0], nil
}

func asBig(v interface{}, method string) (*big.Int, error) {
	n, ok := v.(*big.Int)
	if !ok || n == nil {
		return nil, fmt.Errorf("%s returned %T", method, v)
	}
	return n, nil
}

func asAddress(v interface{}, method string) (common.Address, error) {
	addr, ok := v.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s returned %T", method, v)
	}
	return addr, nil
}

// Oracle reads line oracle answers.
type Oracle struct{ caller }

func NewOracle(client *Client) *Oracle { return &Oracle{caller{client}} }

// LatestAnswer returns the oracle's raw price for token.
func (o *Oracle) LatestAnswer(ctx context.Context, oracle, token common.Address) (*big.Int, error) {
	out, err := o.call(ctx, oracleContract, oracle, "getLatestAnswer", token)
	if err != nil {
		return nil, err
	}
	return asBig(out, "getLatestAnswer")
}

// CreditLib computes position ids on chain.
type CreditLib struct {
	caller
	address common.Address
}

func NewCreditLib(client *Client, address common.Address) *CreditLib {
	return &CreditLib{caller: caller{client}, address: address}
}

func (l *CreditLib) ComputeID(ctx context.Context, line, lender, token common.Address) (common.Hash, error) {
	if (l.address == common.Address{}) {
		return common.Hash{}, fmt.Errorf("credit lib address not configured")
	}
	out, err := l.call(ctx, creditLibContract, l.address, "computeId", line, lender, token)
	if err != nil {
		return common.Hash{}, err
	}
	id, ok := out.([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("computeId returned %T", out)
	}
	return common.Hash(id), nil
}

// Lines reads line contract accessors.
type Lines struct{ caller }

func NewLines(client *Client) *Lines { return &Lines{caller{client}} }

// IDAt returns the position id stored in the repayment queue slot.
func (l *Lines) IDAt(ctx context.Context, line common.Address, slot uint64) (common.Hash, error) {
	out, err := l.call(ctx, lineContract, line, "ids", new(big.Int).SetUint64(slot))
	if err != nil {
		return common.Hash{}, err
	}
	id, ok := out.([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("ids returned %T", out)
	}
	return common.Hash(id), nil
}

func (l *Lines) Deadline(ctx context.Context, line common.Address) (uint64, error) {
	out, err := l.call(ctx, lineContract, line, "deadline")
	if err != nil {
		return 0, err
	}
	n, err := asBig(out, "deadline")
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("deadline %s out of range", n)
	}
	return n.Uint64(), nil
}

func (l *Lines) Escrow(ctx context.Context, line common.Address) (common.Address, error) {
	return l.address(ctx, line, "escrow")
}

func (l *Lines) Spigot(ctx context.Context, line common.Address) (common.Address, error) {
	return l.address(ctx, line, "spigot")
}

func (l *Lines) SwapTarget(ctx context.Context, line common.Address) (common.Address, error) {
	return l.address(ctx, line, "swapTarget")
}

func (l *Lines) address(ctx context.Context, line common.Address, method string) (common.Address, error) {
	out, err := l.call(ctx, lineContract, line, method)
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(out, method)
}

// Modules reads escrow and spigot module accessors.
type Modules struct{ caller }

func NewModules(client *Client) *Modules { return &Modules{caller{client}} }

func (m *Modules) MinimumCollateralRatio(ctx context.Context, escrow common.Address) (*big.Int, error) {
	out, err := m.call(ctx, escrowContract, escrow, "minimumCollateralRatio")
	if err != nil {
		return nil, err
	}
	ratio, ok := out.(uint32)
	if !ok {
		return nil, fmt.Errorf("minimumCollateralRatio returned %T", out)
	}
	return new(big.Int).SetUint64(uint64(ratio)), nil
}

func (m *Modules) CollateralValue(ctx context.Context, escrow common.Address) (*big.Int, error) {
	out, err := m.call(ctx, escrowContract, escrow, "getCollateralValue")
	if err != nil {
		return nil, err
	}
	return asBig(out, "getCollateralValue")
}

func (m *Modules) Operator(ctx context.Context, spigot common.Address) (common.Address, error) {
	out, err := m.call(ctx, spigotContract, spigot, "operator")
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(out, "operator")
}

func (m *Modules) Treasury(ctx context.Context, spigot common.Address) (common.Address, error) {
	out, err := m.call(ctx, spigotContract, spigot, "treasury")
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(out, "treasury")
}

// ERC20 reads optional token metadata.
type ERC20 struct{ caller }

func NewERC20(client *Client) *ERC20 { return &ERC20{caller{client}} }

func (e *ERC20) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := e.call(ctx, erc20Contract, token, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := out.(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals returned %T", out)
	}
	return d, nil
}

func (e *ERC20) Symbol(ctx context.Context, token common.Address) (string, error) {
	return e.text(ctx, token, "symbol")
}

func (e *ERC20) Name(ctx context.Context, token common.Address) (string, error) {
	return e.text(ctx, token, "name")
}

func (e *ERC20) text(ctx context.Context, token common.Address, method string) (string, error) {
	out, err := e.call(ctx, erc20Contract, token, method)
	if err != nil {
		return "", err
	}
	s, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("%s returned %T", method, out)
	}
	return s, nil
}

// YearnLensDecimals is the precision of lens prices (USDC).
const YearnLensDecimals = 6

// YearnLens is a market price source backed by the Yearn price lens.
type YearnLens struct {
	caller
	address common.Address
}

func NewYearnLens(client *Client, address common.Address) *YearnLens {
	return &YearnLens{caller: caller{client}, address: address}
}

func (y *YearnLens) Name() string { return "yearn-lens" }

// PriceUSD returns the lens' recommended USDC price of token.
func (y *YearnLens) PriceUSD(ctx context.Context, token common.Address) (decimal.Decimal, error) {
	if (y.address == common.Address{}) {
		return decimal.Zero, fmt.Errorf("yearn lens address not configured")
	}
	out, err := y.call(ctx, yearnLensContract, y.address, "getPriceUsdcRecommended", token)
	if err != nil {
		return decimal.Zero, err
	}
	n, err := asBig(out, "getPriceUsdcRecommended")
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(n, -YearnLensDecimals), nil
}
