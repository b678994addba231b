package tokens

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"lineledger/core/types"
	"lineledger/observability/metrics"
)

// Metadata defaults used when an ERC20 accessor reverts or is missing.
const (
	DefaultDecimals uint8 = 18
	DefaultSymbol         = "TOKEN"
	DefaultName           = "Unknown Token"
)

// MetadataReader exposes the optional ERC20 metadata accessors.
type MetadataReader interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
	Symbol(ctx context.Context, token common.Address) (string, error)
	Name(ctx context.Context, token common.Address) (string, error)
}

type registryState interface {
	Token(addr common.Address) (*types.Token, bool, error)
	PutToken(*types.Token) error
}

// Registry lazily materialises token metadata on first reference.
type Registry struct {
	state   registryState
	reader  MetadataReader
	logger  *slog.Logger
	metrics *metrics.IndexerMetrics
}

// NewRegistry constructs a token registry. A nil reader stores defaults.
func NewRegistry(state registryState, reader MetadataReader) *Registry {
	return &Registry{state: state, reader: reader, logger: slog.Default()}
}

// SetLogger overrides the registry logger.
func (r *Registry) SetLogger(l *slog.Logger) {
	if r == nil || l == nil {
		return
	}
	r.logger = l
}

// SetMetrics records metadata read failures on m.
func (r *Registry) SetMetrics(m *metrics.IndexerMetrics) {
	if r == nil {
		return
	}
	r.metrics = m
}

// GetOrCreate returns the stored token or reads and persists its metadata.
// Each field falls back to its default independently. Repeated calls reuse the
// stored record without touching the chain.
func (r *Registry) GetOrCreate(ctx context.Context, addr common.Address) (*types.Token, error) {
	if r == nil || r.state == nil {
		return nil, fmt.Errorf("tokens: registry not configured")
	}
	if existing, ok, err := r.state.Token(addr); err != nil {
		return nil, err
	} else if ok {
		return existing, nil
	}
	token := &types.Token{
		Address:   addr,
		Decimals:  DefaultDecimals,
		Symbol:    DefaultSymbol,
		Name:      DefaultName,
		LastPrice: decimal.Zero,
	}
	if r.reader != nil {
		if decimals, err := r.reader.Decimals(ctx, addr); err == nil {
			token.Decimals = decimals
		} else {
			r.degrade(addr, "decimals", err)
		}
		if symbol, err := r.reader.Symbol(ctx, addr); err == nil && strings.TrimSpace(symbol) != "" {
			token.Symbol = strings.TrimSpace(symbol)
		} else if err != nil {
			r.degrade(addr, "symbol", err)
		}
		if name, err := r.reader.Name(ctx, addr); err == nil && strings.TrimSpace(name) != "" {
			token.Name = strings.TrimSpace(name)
		} else if err != nil {
			r.degrade(addr, "name", err)
		}
	}
	if err := r.state.PutToken(token); err != nil {
		return nil, fmt.Errorf("tokens: persist %s: %w", types.AddressKey(addr), err)
	}
	return token, nil
}

func (r *Registry) degrade(addr common.Address, field string, err error) {
	r.logger.Warn("tokens: metadata read failed, using default",
		slog.String("token", types.AddressKey(addr)),
		slog.String("field", field),
		slog.Any("error", err))
	r.metrics.ObserveDegraded("erc20")
}
