package indexerd

import (
	"testing"

	"lineledger/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Chain.RPCURL = "http://127.0.0.1:1"
	cfg.Chain.Network = "local"
	cfg.Storage.Backend = "memory"
	cfg.API.Listen = ""
	return cfg
}

func TestNewWiresMemoryDaemon(t *testing.T) {
	d, err := New(testConfig(), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer d.Close()
	if d.State() == nil || d.poller == nil {
		t.Fatalf("expected store and poller to be wired")
	}
	if d.server != nil {
		t.Fatalf("empty listen address must disable the api")
	}
}

func TestNewRejectsMissingWebhookSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Webhook.Endpoint = "https://hooks.example/lineledger"
	cfg.Webhook.SecretEnv = "LINELEDGER_TEST_WEBHOOK_SECRET"
	t.Setenv("LINELEDGER_TEST_WEBHOOK_SECRET", "")
	if _, err := New(cfg, nil); err == nil {
		t.Fatalf("expected missing secret to fail")
	}
}

func TestNewRejectsUnknownNetwork(t *testing.T) {
	cfg := testConfig()
	cfg.Chain.Network = "atlantis"
	if _, err := New(cfg, nil); err == nil {
		t.Fatalf("expected unknown network to fail")
	}
}
