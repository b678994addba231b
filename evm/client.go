package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"lineledger/observability"
)

// Backend is the subset of the Ethereum RPC used by the indexer.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]gethtypes.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*gethtypes.Transaction, bool, error)
	TransactionSender(ctx context.Context, tx *gethtypes.Transaction, block common.Hash, index uint) (common.Address, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Dial initialises an RPC client for the provided endpoint.
func Dial(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("evm endpoint required")
	}
	return ethclient.Dial(trimmed)
}

type blockKey struct{}

// WithBlock pins contract reads made with ctx to block.
func WithBlock(ctx context.Context, block uint64) context.Context {
	return context.WithValue(ctx, blockKey{}, block)
}

func blockFrom(ctx context.Context) *big.Int {
	if block, ok := ctx.Value(blockKey{}).(uint64); ok {
		return new(big.Int).SetUint64(block)
	}
	return nil
}

// Client throttles every RPC through a shared token bucket.
type Client struct {
	backend Backend
	limiter *rate.Limiter
	metrics *observability.RPCMetrics
}

// NewClient wraps backend. A non-positive perSecond disables throttling.
func NewClient(backend Backend, perSecond float64, burst int) *Client {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Client{backend: backend, limiter: rate.NewLimiter(limit, burst)}
}

// SetMetrics records call counts and latency on m.
func (c *Client) SetMetrics(m *observability.RPCMetrics) { c.metrics = m }

func (c *Client) observe(method string, started time.Time, err error) {
	c.metrics.Observe(method, time.Since(started), err)
}

func (c *Client) wait(ctx context.Context) error {
	if c == nil || c.backend == nil {
		return fmt.Errorf("evm client not initialised")
	}
	return c.limiter.Wait(ctx)
}

// Call executes a read-only call against to. The block pinned on ctx is used
// when present, the latest state otherwise.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	started := time.Now()
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, blockFrom(ctx))
	c.observe("eth_call", started, err)
	return out, err
}

func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]gethtypes.Log, error) {
	started := time.Now()
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	logs, err := c.backend.FilterLogs(ctx, q)
	c.observe("eth_getLogs", started, err)
	return logs, err
}

func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error) {
	started := time.Now()
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	header, err := c.backend.HeaderByNumber(ctx, number)
	c.observe("eth_getBlockByNumber", started, err)
	return header, err
}

// Transaction returns the transaction and its sender.
func (c *Client) Transaction(ctx context.Context, hash, block common.Hash, index uint) (*gethtypes.Transaction, common.Address, error) {
	if err := c.wait(ctx); err != nil {
		return nil, common.Address{}, err
	}
	started := time.Now()
	tx, _, err := c.backend.TransactionByHash(ctx, hash)
	c.observe("eth_getTransactionByHash", started, err)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("fetch tx %s: %w", hash.Hex(), err)
	}
	if err := c.wait(ctx); err != nil {
		return nil, common.Address{}, err
	}
	from, err := c.backend.TransactionSender(ctx, tx, block, index)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("sender of %s: %w", hash.Hex(), err)
	}
	return tx, from, nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	started := time.Now()
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	head, err := c.backend.BlockNumber(ctx)
	c.observe("eth_blockNumber", started, err)
	return head, err
}
