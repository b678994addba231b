package otel

import (
	"context"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = abc ,broken,=nokey, tenant=ledger")
	if len(got) != 2 || got["api-key"] != "abc" || got["tenant"] != "ledger" {
		t.Fatalf("unexpected headers %v", got)
	}
	if len(ParseHeaders("")) != 0 {
		t.Fatalf("expected empty map")
	}
}

func TestInitWithoutExporters(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing service name to fail")
	}
	shutdown, err := Init(context.Background(), Config{ServiceName: "indexerd"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
