package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIndexerMetricsCounters(t *testing.T) {
	m := Indexer()
	before := testutil.ToFloat64(m.degradedReads.WithLabelValues("oracle"))
	m.ObserveDegraded("oracle")
	if got := testutil.ToFloat64(m.degradedReads.WithLabelValues("oracle")); got != before+1 {
		t.Fatalf("expected degraded counter to increase, got %v", got)
	}

	m.ObserveEvent("Borrow", "applied", 5*time.Millisecond)
	if got := testutil.ToFloat64(m.events.WithLabelValues("Borrow", "applied")); got < 1 {
		t.Fatalf("expected applied counter, got %v", got)
	}

	m.ObserveMissingEntity("")
	if got := testutil.ToFloat64(m.missingEntity.WithLabelValues("unknown")); got < 1 {
		t.Fatalf("expected empty kind to map to unknown, got %v", got)
	}

	m.SetHeadBlock(1234)
	if got := testutil.ToFloat64(m.headBlock); got != 1234 {
		t.Fatalf("unexpected head block %v", got)
	}
}

func TestNilIndexerMetricsIsSafe(t *testing.T) {
	var m *IndexerMetrics
	m.ObserveEvent("x", "y", time.Second)
	m.ObserveDegraded("oracle")
	m.ObserveUnknownSelector()
	m.ObserveMissingEntity("Borrow")
	m.SetHeadBlock(1)
}
