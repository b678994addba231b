package tokens

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"lineledger/core/state"
	"lineledger/storage"
)

type fakeReader struct {
	decimals    uint8
	symbol      string
	name        string
	failSymbol  bool
	failAll     bool
	decimalHits int
}

func (f *fakeReader) Decimals(context.Context, common.Address) (uint8, error) {
	f.decimalHits++
	if f.failAll {
		return 0, errors.New("reverted")
	}
	return f.decimals, nil
}

func (f *fakeReader) Symbol(context.Context, common.Address) (string, error) {
	if f.failAll || f.failSymbol {
		return "", errors.New("reverted")
	}
	return f.symbol, nil
}

func (f *fakeReader) Name(context.Context, common.Address) (string, error) {
	if f.failAll {
		return "", errors.New("reverted")
	}
	return f.name, nil
}

func newRegistry(t *testing.T, reader MetadataReader) *Registry {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewRegistry(state.NewManager(db), reader)
}

func TestGetOrCreateReadsOnce(t *testing.T) {
	reader := &fakeReader{decimals: 6, symbol: "USDC", name: "USD Coin"}
	reg := newRegistry(t, reader)
	addr := common.HexToAddress("0xa0b8")

	first, err := reg.GetOrCreate(context.Background(), addr)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if first.Decimals != 6 || first.Symbol != "USDC" || first.Name != "USD Coin" {
		t.Fatalf("unexpected token %+v", first)
	}
	second, err := reg.GetOrCreate(context.Background(), addr)
	if err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if second.Symbol != "USDC" || reader.decimalHits != 1 {
		t.Fatalf("expected cached token, reads=%d", reader.decimalHits)
	}
}

func TestGetOrCreateDefaultsPerField(t *testing.T) {
	reg := newRegistry(t, &fakeReader{decimals: 8, name: "Wrapped BTC", failSymbol: true})
	token, err := reg.GetOrCreate(context.Background(), common.HexToAddress("0xb7c"))
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if token.Decimals != 8 || token.Symbol != DefaultSymbol || token.Name != "Wrapped BTC" {
		t.Fatalf("unexpected token %+v", token)
	}

	broken := newRegistry(t, &fakeReader{failAll: true})
	token, err = broken.GetOrCreate(context.Background(), common.HexToAddress("0xdead"))
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if token.Decimals != DefaultDecimals || token.Symbol != DefaultSymbol || token.Name != DefaultName {
		t.Fatalf("expected defaults, got %+v", token)
	}
}
