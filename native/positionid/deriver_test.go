package positionid

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type libFunc func(ctx context.Context, line, lender, token common.Address) (common.Hash, error)

func (f libFunc) ComputeID(ctx context.Context, line, lender, token common.Address) (common.Hash, error) {
	return f(ctx, line, lender, token)
}

var (
	line   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	lender = common.HexToAddress("0x2222222222222222222222222222222222222222")
	token  = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func TestComputeMatchesManualEncoding(t *testing.T) {
	var buf bytes.Buffer
	for _, addr := range []common.Address{line, lender, token} {
		buf.Write(common.LeftPadBytes(addr.Bytes(), 32))
	}
	want := crypto.Keccak256Hash(buf.Bytes())
	got, err := Compute(line, lender, token)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got != want {
		t.Fatalf("got %s, want %s", got.Hex(), want.Hex())
	}
}

func TestDeriveIsDeterministicAcrossPaths(t *testing.T) {
	local, _ := Compute(line, lender, token)
	onChain := NewDeriver(libFunc(func(_ context.Context, l, le, tk common.Address) (common.Hash, error) {
		return Compute(l, le, tk)
	}))
	failing := NewDeriver(libFunc(func(context.Context, common.Address, common.Address, common.Address) (common.Hash, error) {
		return common.Hash{}, errors.New("execution reverted")
	}))
	offline := NewDeriver(nil)

	for name, d := range map[string]*Deriver{"lib": onChain, "fallback": failing, "offline": offline} {
		first, ok := d.Derive(context.Background(), line, lender, token)
		if !ok {
			t.Fatalf("%s: expected id", name)
		}
		second, _ := d.Derive(context.Background(), line, lender, token)
		if first != second || first != local {
			t.Fatalf("%s: ids diverge %s %s %s", name, first.Hex(), second.Hex(), local.Hex())
		}
	}
}

func TestDeriveRejectsMalformedTriple(t *testing.T) {
	called := false
	d := NewDeriver(libFunc(func(context.Context, common.Address, common.Address, common.Address) (common.Hash, error) {
		called = true
		return common.Hash{}, nil
	}))
	id, ok := d.Derive(context.Background(), line, common.Address{}, token)
	if ok || id != (common.Hash{}) {
		t.Fatalf("expected rejection, got %s", id.Hex())
	}
	if called {
		t.Fatalf("malformed triples must not reach the library")
	}
}
