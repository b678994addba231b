package indexerd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lineledger/core/types"
	"lineledger/observability/metrics"
)

type chainSource interface {
	Head(ctx context.Context) (uint64, error)
	Fetch(ctx context.Context, from, to uint64) ([]*types.ChainEvent, error)
}

type applier interface {
	ApplyAll(ctx context.Context, evts []*types.ChainEvent) error
}

type progressStore interface {
	Scanned() (uint64, bool, error)
	SetScanned(block uint64) error
}

// PollerConfig bounds how far and how fast the poller follows the chain.
type PollerConfig struct {
	StartBlock    uint64
	BatchSize     uint64
	Confirmations uint64
	Interval      time.Duration
}

// Poller fetches confirmed block ranges and feeds their events to the
// dispatcher strictly in order.
type Poller struct {
	source   chainSource
	apply    applier
	progress progressStore
	cfg      PollerConfig
	logger   *slog.Logger
	metrics  *metrics.IndexerMetrics
}

// NewPoller wires a poller. A zero batch size scans one block at a time.
func NewPoller(source chainSource, apply applier, progress progressStore, cfg PollerConfig, logger *slog.Logger, m *metrics.IndexerMetrics) *Poller {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 12 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{source: source, apply: apply, progress: progress, cfg: cfg, logger: logger, metrics: m}
}

// Step processes at most one batch. It reports true once the confirmed head
// has been reached.
func (p *Poller) Step(ctx context.Context) (bool, error) {
	head, err := p.source.Head(ctx)
	if err != nil {
		return false, fmt.Errorf("poller: head: %w", err)
	}
	if head < p.cfg.Confirmations {
		return true, nil
	}
	safe := head - p.cfg.Confirmations

	next := p.cfg.StartBlock
	scanned, ok, err := p.progress.Scanned()
	if err != nil {
		return false, fmt.Errorf("poller: read progress: %w", err)
	}
	if ok && scanned+1 > next {
		next = scanned + 1
	}
	if next > safe {
		return true, nil
	}
	to := next + p.cfg.BatchSize - 1
	if to > safe {
		to = safe
	}

	evts, err := p.source.Fetch(ctx, next, to)
	if err != nil {
		return false, fmt.Errorf("poller: fetch %d-%d: %w", next, to, err)
	}
	if err := p.apply.ApplyAll(ctx, evts); err != nil {
		return false, err
	}
	if err := p.progress.SetScanned(to); err != nil {
		return false, fmt.Errorf("poller: store progress: %w", err)
	}
	p.metrics.SetHeadBlock(to)
	p.logger.Debug("poller: range applied",
		slog.Uint64("from", next),
		slog.Uint64("to", to),
		slog.Int("events", len(evts)))
	return to == safe, nil
}

// Run steps until ctx is cancelled, sleeping between polls once caught up.
// Any step error ends the loop.
func (p *Poller) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		caughtUp, err := p.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if caughtUp {
			timer.Reset(p.cfg.Interval)
		} else {
			timer.Reset(0)
		}
	}
}
