package valuation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"lineledger/core/types"
	"lineledger/observability/metrics"
)

// OracleDecimals is the fixed precision of oracle answers.
const OracleDecimals = 8

var errNoSource = errors.New("valuation: no market source produced a price")

// Oracle reads the latest reference-currency price of token from the oracle
// contract at the given address. Answers carry OracleDecimals of precision; a
// negative answer is the oracle's error convention.
type Oracle interface {
	LatestAnswer(ctx context.Context, oracle, token common.Address) (*big.Int, error)
}

// PriceSource is a market price signal used for tokens the line oracle may not
// track (revenue tokens).
type PriceSource interface {
	Name() string
	PriceUSD(ctx context.Context, token common.Address) (decimal.Decimal, error)
}

type tokenState interface {
	PutToken(*types.Token) error
}

// Quote is the result of a valuation. A degraded quote carries zero values.
type Quote struct {
	Value    decimal.Decimal
	Price    decimal.Decimal
	Degraded bool
}

// Service converts token amounts into reference-currency values.
type Service struct {
	oracle  Oracle
	sources []PriceSource
	state   tokenState
	logger  *slog.Logger
	metrics *metrics.IndexerMetrics
}

// Option configures a Service.
type Option func(*Service)

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMarketSources registers market price signals in priority order.
func WithMarketSources(sources ...PriceSource) Option {
	return func(s *Service) {
		for _, src := range sources {
			if src != nil {
				s.sources = append(s.sources, src)
			}
		}
	}
}

// WithMetrics records degraded reads on the supplied registry.
func WithMetrics(m *metrics.IndexerMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New constructs a valuation service. The token state persists last-known
// prices.
func New(oracle Oracle, state tokenState, opts ...Option) *Service {
	svc := &Service{
		oracle: oracle,
		state:  state,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Scale converts a raw integer amount into whole token units.
func Scale(amount *big.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// Value prices amount of token through the oracle at oracleAddr. An oracle
// failure yields a zero, degraded quote and leaves the token untouched; the
// returned error is reserved for failures persisting the observed price.
func (s *Service) Value(ctx context.Context, oracleAddr common.Address, token *types.Token, amount *big.Int, block uint64) (Quote, error) {
	if token == nil {
		return Quote{Value: decimal.Zero, Price: decimal.Zero, Degraded: true}, nil
	}
	if s.oracle == nil {
		s.degrade("oracle", token.Address, block, errors.New("oracle not configured"))
		return Quote{Value: decimal.Zero, Price: decimal.Zero, Degraded: true}, nil
	}
	answer, err := s.oracle.LatestAnswer(ctx, oracleAddr, token.Address)
	if err != nil || answer == nil {
		if err == nil {
			err = errors.New("empty oracle answer")
		}
		s.degrade("oracle", token.Address, block, err)
		return Quote{Value: decimal.Zero, Price: decimal.Zero, Degraded: true}, nil
	}
	price := decimal.Zero
	if answer.Sign() > 0 {
		price = decimal.NewFromBigInt(answer, -OracleDecimals)
	}
	quote := Quote{
		Value: Scale(amount, token.Decimals).Mul(price),
		Price: price,
	}
	if err := s.RecordPrice(token, price, block); err != nil {
		return quote, err
	}
	return quote, nil
}

// MarketValue prices amount of token through the first market source that
// answers. It does not write the token; callers record the realised price.
func (s *Service) MarketValue(ctx context.Context, token *types.Token, amount *big.Int, block uint64) Quote {
	if token == nil {
		return Quote{Value: decimal.Zero, Price: decimal.Zero, Degraded: true}
	}
	for _, src := range s.sources {
		price, err := src.PriceUSD(ctx, token.Address)
		if err != nil {
			s.logger.Warn("valuation: market source failed",
				slog.String("source", src.Name()),
				slog.String("token", types.AddressKey(token.Address)),
				slog.Uint64("block", block),
				slog.Any("error", err))
			continue
		}
		if price.IsNegative() {
			price = decimal.Zero
		}
		return Quote{Value: Scale(amount, token.Decimals).Mul(price), Price: price}
	}
	s.degrade("market", token.Address, block, errNoSource)
	return Quote{Value: decimal.Zero, Price: decimal.Zero, Degraded: true}
}

// RecordPrice stores price as the token's last-known price observed at block.
func (s *Service) RecordPrice(token *types.Token, price decimal.Decimal, block uint64) error {
	if token == nil {
		return nil
	}
	token.LastPrice = price
	token.LastPriceBlock = block
	if s.state == nil {
		return nil
	}
	if err := s.state.PutToken(token); err != nil {
		return fmt.Errorf("valuation: persist price for %s: %w", types.AddressKey(token.Address), err)
	}
	return nil
}

// RealisedPrice derives a unit price from a value observed for amount raw
// units of token. It reports false when no price can be derived.
func RealisedPrice(value decimal.Decimal, amount *big.Int, decimals uint8) (decimal.Decimal, bool) {
	units := Scale(amount, decimals)
	if units.Sign() <= 0 {
		return decimal.Zero, false
	}
	return value.Div(units), true
}

func (s *Service) degrade(source string, token common.Address, block uint64, err error) {
	s.logger.Warn("valuation: price unavailable, using zero",
		slog.String("source", source),
		slog.String("token", types.AddressKey(token)),
		slog.Uint64("block", block),
		slog.Any("error", err))
	s.metrics.ObserveDegraded(source)
}
