package webhooks

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"lineledger/core/types"
)

type capture struct {
	signature string
	kind      string
	body      []byte
}

func TestSinkSignsDeliveries(t *testing.T) {
	got := make(chan capture, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- capture{signature: r.Header.Get(SignatureHeader), kind: r.Header.Get(TypeHeader), body: body}
	}))
	defer srv.Close()

	sink, err := New(Config{Endpoint: srv.URL, Secret: []byte("secret")}, nil)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer sink.Close()
	sink.Emit(&types.Event{ID: "credit.borrowed-0x01-0", Type: "credit.borrowed"})

	var c capture
	select {
	case c = <-got:
	case <-time.After(2 * time.Second):
		t.Fatalf("no delivery")
	}
	if c.signature != Sign([]byte("secret"), c.body) {
		t.Fatalf("signature %q does not match body", c.signature)
	}
	if c.kind != "credit.borrowed" {
		t.Fatalf("unexpected type header %q", c.kind)
	}
	var env Envelope
	if err := json.Unmarshal(c.body, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.DeliveryID != "credit.borrowed-0x01-0" || env.Record == nil || env.Record.Type != "credit.borrowed" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestSinkRetriesUntilAccepted(t *testing.T) {
	var hits int32
	accepted := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		close(accepted)
	}))
	defer srv.Close()

	sink, err := New(Config{
		Endpoint:   srv.URL,
		Secret:     []byte("secret"),
		Backoff:    5 * time.Millisecond,
		MaxBackoff: 10 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer sink.Close()
	if err := sink.Enqueue(&types.Event{ID: "x", Type: "line.deployed"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected third attempt to land, saw %d", atomic.LoadInt32(&hits))
	}
}

func TestSinkTypeFilter(t *testing.T) {
	sink, err := New(Config{Endpoint: "http://127.0.0.1:1", Secret: []byte("k"), Types: []string{"credit.", " "}}, nil)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer sink.Close()
	if !sink.Accepts("credit.defaulted") || sink.Accepts("spigot.added") {
		t.Fatalf("unexpected filter result")
	}
}

func TestConfigRequiresEndpointAndSecret(t *testing.T) {
	if _, err := New(Config{Secret: []byte("k")}, nil); err == nil {
		t.Fatalf("expected missing endpoint error")
	}
	if _, err := New(Config{Endpoint: "http://x"}, nil); err == nil {
		t.Fatalf("expected missing secret error")
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	sink, err := New(Config{Endpoint: "http://127.0.0.1:1", Secret: []byte("k")}, nil)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	sink.Close()
	sink.Close()
	if err := sink.Enqueue(&types.Event{ID: "x"}); err != errClosed {
		t.Fatalf("expected closed error, got %v", err)
	}
}
