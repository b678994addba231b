// Package indexerd runs the ledger indexer: it follows line, escrow and spigot
// contracts, applies their events to the entity store and serves the result.
package indexerd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"lineledger/config"
	"lineledger/core/dispatch"
	"lineledger/core/events"
	"lineledger/core/state"
	"lineledger/core/types"
	"lineledger/evm"
	"lineledger/integrations/kafka"
	"lineledger/integrations/webhooks"
	"lineledger/native/consent"
	"lineledger/native/ledger"
	"lineledger/native/positionid"
	"lineledger/native/queue"
	"lineledger/native/spigot"
	"lineledger/native/tokens"
	"lineledger/native/valuation"
	"lineledger/observability"
	"lineledger/observability/logging"
	"lineledger/observability/metrics"
	"lineledger/services/indexerd/api"
	"lineledger/storage"
	"lineledger/storage/eventindex"
)

// Daemon owns every long-lived component of the indexer.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	state   *state.Manager
	poller  *Poller
	server  *api.Server
	closers []func()
}

// New opens the store and wires engines, sinks and the query server. The
// returned daemon must be closed.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}
	network, ok := config.LookupNetwork(cfg.Chain.Network)
	if !ok {
		return nil, fmt.Errorf("indexerd: unknown network %q", cfg.Chain.Network)
	}
	d := &Daemon{cfg: cfg, logger: logger}

	db, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("indexerd: open store: %w", err)
	}
	d.closers = append(d.closers, db.Close)
	d.state = state.NewManager(db)

	rpc, err := evm.Dial(cfg.Chain.RPCURL)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("indexerd: dial %s: %w", logging.MaskURL(cfg.Chain.RPCURL), err)
	}
	d.closers = append(d.closers, rpc.Close)
	client := evm.NewClient(rpc, cfg.Chain.RPCRatePerSecond, cfg.Chain.RPCBurst)
	client.SetMetrics(observability.RPC())

	emitter, index, err := d.sinks()
	if err != nil {
		d.Close()
		return nil, err
	}

	engines := d.engines(client, network)
	m := metrics.Indexer()
	dispatcher, err := dispatch.New(d.state, emitter, engines,
		dispatch.WithSkipMissing(cfg.Indexer.SkipMissing),
		dispatch.WithEventScope(func(ctx context.Context, evt *types.ChainEvent) context.Context {
			return evm.WithBlock(ctx, evt.BlockNumber)
		}),
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(m),
	)
	if err != nil {
		d.Close()
		return nil, err
	}

	lines := evm.NewLines(client)
	factories := append(config.Addresses(network.Factories), config.Addresses(cfg.Chain.Factories)...)
	source, err := evm.NewLogSource(client, d.state, lines, factories, config.Addresses(cfg.Chain.Lines), logger)
	if err != nil {
		d.Close()
		return nil, err
	}
	source.Retire(config.Addresses(network.Deprecation.Factories), network.Deprecation.Block)

	d.poller = NewPoller(source, dispatcher, d.state, PollerConfig{
		StartBlock:    cfg.Chain.StartBlock,
		BatchSize:     cfg.Chain.BatchSize,
		Confirmations: cfg.Chain.Confirmations,
		Interval:      cfg.Chain.PollInterval.Duration,
	}, logger, m)

	if strings.TrimSpace(cfg.API.Listen) != "" {
		var records api.RecordIndex
		if index != nil {
			records = index
		}
		d.server = api.New(api.Config{
			Listen:             cfg.API.Listen,
			RateLimitPerMinute: cfg.API.RateLimitPerMinute,
		}, d.state, records, logger)
	}
	return d, nil
}

// engines builds the event handlers over the shared chain readers.
func (d *Daemon) engines(client *evm.Client, network config.Network) []dispatch.Engine {
	m := metrics.Indexer()
	lines := evm.NewLines(client)
	modules := evm.NewModules(client)

	var lib positionid.CreditLib
	if addr := config.Address(network.CreditLib); addr != (common.Address{}) {
		lib = evm.NewCreditLib(client, addr)
	}
	var sources []valuation.PriceSource
	if addr := config.Address(network.YearnLens); addr != (common.Address{}) {
		sources = append(sources, evm.NewYearnLens(client, addr))
	}

	registry := tokens.NewRegistry(d.state, evm.NewERC20(client))
	registry.SetLogger(d.logger)
	registry.SetMetrics(m)

	valuer := valuation.New(evm.NewOracle(client), d.state,
		valuation.WithLogger(d.logger),
		valuation.WithMarketSources(sources...),
		valuation.WithMetrics(m))

	deriver := positionid.NewDeriver(lib)
	deriver.SetLogger(d.logger)
	deriver.SetMetrics(m)

	resolver := queue.NewResolver(lines, d.cfg.Indexer.QueueScanBound)
	resolver.SetLogger(d.logger)

	ledgerEngine := ledger.NewEngine(valuer, registry,
		ledger.WithLineReader(lines),
		ledger.WithModuleReader(modules),
		ledger.WithQueue(resolver),
		ledger.WithDeprecation(ledger.Deprecation{
			Factories: config.Addresses(network.Deprecation.Factories),
			Block:     network.Deprecation.Block,
		}),
		ledger.WithLogger(d.logger),
		ledger.WithMetrics(m))
	ledgerEngine.SetState(d.state)

	consentEngine := consent.NewEngine(deriver)
	consentEngine.SetState(d.state)
	consentEngine.SetLogger(d.logger)
	consentEngine.SetMetrics(m)

	accountant := spigot.NewAccountant(valuer, registry)
	accountant.SetState(d.state)
	accountant.SetLogger(d.logger)
	accountant.SetMetrics(m)

	return []dispatch.Engine{ledgerEngine, consentEngine, accountant}
}

// sinks builds the fan-out of audit records to the optional SQL index, Kafka
// topic and webhook endpoint.
func (d *Daemon) sinks() (*events.MultiEmitter, *eventindex.Index, error) {
	multi := events.NewMultiEmitter()
	var index *eventindex.Index
	if dsn := strings.TrimSpace(d.cfg.Index.DSN); dsn != "" {
		opened, err := eventindex.Open(dsn, d.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("indexerd: open event index: %w", err)
		}
		index = opened
		d.closers = append(d.closers, func() { _ = index.Close() })
		multi.Add(index)
	}
	if len(d.cfg.Kafka.Brokers) > 0 {
		publisher, err := kafka.NewPublisher(d.cfg.Kafka.Brokers, d.cfg.Kafka.Topic, d.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("indexerd: kafka: %w", err)
		}
		d.closers = append(d.closers, func() { _ = publisher.Close() })
		multi.Add(publisher)
	}
	if endpoint := strings.TrimSpace(d.cfg.Webhook.Endpoint); endpoint != "" {
		secret := strings.TrimSpace(os.Getenv(d.cfg.Webhook.SecretEnv))
		if secret == "" {
			return nil, nil, fmt.Errorf("indexerd: webhook secret env %s is empty", d.cfg.Webhook.SecretEnv)
		}
		hooks, err := webhooks.New(webhooks.Config{
			Endpoint: endpoint,
			Secret:   []byte(secret),
			Types:    d.cfg.Webhook.Types,
		}, d.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("indexerd: webhooks: %w", err)
		}
		d.closers = append(d.closers, hooks.Close)
		multi.Add(hooks)
	}
	return multi, index, nil
}

// State exposes the entity store.
func (d *Daemon) State() *state.Manager { return d.state }

// Run follows the chain and serves the API until ctx is cancelled or either
// part fails.
func (d *Daemon) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return d.poller.Run(ctx) })
	if d.server != nil {
		group.Go(func() error { return d.server.Run(ctx) })
	}
	return group.Wait()
}

// Close releases components in reverse order of construction.
func (d *Daemon) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
