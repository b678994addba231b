package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// IndexerMetrics tracks event application for the ledger indexer.
type IndexerMetrics struct {
	events          *prometheus.CounterVec
	degradedReads   *prometheus.CounterVec
	unknownSelector prometheus.Counter
	missingEntity   *prometheus.CounterVec
	headBlock       prometheus.Gauge
	applyLatency    *prometheus.HistogramVec
}

var (
	indexerOnce     sync.Once
	indexerRegistry *IndexerMetrics
)

// Indexer returns the lazily registered indexer metrics.
func Indexer() *IndexerMetrics {
	indexerOnce.Do(func() {
		indexerRegistry = &IndexerMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lineledger_events_total",
				Help: "Count of chain events processed by kind and outcome.",
			}, []string{"kind", "outcome"}),
			degradedReads: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lineledger_degraded_reads_total",
				Help: "External reads that failed and were replaced by a fallback value.",
			}, []string{"source"}),
			unknownSelector: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lineledger_unknown_selectors_total",
				Help: "Mutual consent registrations carrying an unrecognised function selector.",
			}),
			missingEntity: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lineledger_missing_entity_total",
				Help: "Events skipped because a required entity was absent.",
			}, []string{"kind"}),
			headBlock: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lineledger_head_block",
				Help: "Block number of the last applied event.",
			}),
			applyLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "lineledger_event_apply_seconds",
				Help:    "Time spent applying a single event including external reads.",
				Buckets: prometheus.DefBuckets,
			}, []string{"kind"}),
		}
		prometheus.MustRegister(
			indexerRegistry.events,
			indexerRegistry.degradedReads,
			indexerRegistry.unknownSelector,
			indexerRegistry.missingEntity,
			indexerRegistry.headBlock,
			indexerRegistry.applyLatency,
		)
	})
	return indexerRegistry
}

func normalizeLabel(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}

// ObserveEvent records one applied event.
func (m *IndexerMetrics) ObserveEvent(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	kind = normalizeLabel(kind)
	m.events.WithLabelValues(kind, normalizeLabel(outcome)).Inc()
	m.applyLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveDegraded counts a failed external read that fell back to a default.
func (m *IndexerMetrics) ObserveDegraded(source string) {
	if m == nil {
		return
	}
	m.degradedReads.WithLabelValues(normalizeLabel(source)).Inc()
}

func (m *IndexerMetrics) ObserveUnknownSelector() {
	if m == nil {
		return
	}
	m.unknownSelector.Inc()
}

func (m *IndexerMetrics) ObserveMissingEntity(kind string) {
	if m == nil {
		return
	}
	m.missingEntity.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *IndexerMetrics) SetHeadBlock(block uint64) {
	if m == nil {
		return
	}
	m.headBlock.Set(float64(block))
}
