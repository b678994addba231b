package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var backends = map[string]bool{"memory": true, "leveldb": true, "bolt": true}

// Validate rejects configurations the daemon cannot run with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	if strings.TrimSpace(cfg.Chain.RPCURL) == "" {
		return fmt.Errorf("chain: RPCURL required")
	}
	if cfg.Chain.BatchSize == 0 {
		return fmt.Errorf("chain: BatchSize must be positive")
	}
	if cfg.Chain.PollInterval.Duration <= 0 {
		return fmt.Errorf("chain: PollInterval must be positive")
	}
	for _, addr := range append(append([]string{}, cfg.Chain.Factories...), cfg.Chain.Lines...) {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("chain: %q is not an address", addr)
		}
	}
	if _, ok := LookupNetwork(cfg.Chain.Network); !ok {
		return fmt.Errorf("chain: unknown network %q", cfg.Chain.Network)
	}
	if !backends[strings.ToLower(cfg.Storage.Backend)] {
		return fmt.Errorf("storage: unknown backend %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend != "memory" && strings.TrimSpace(cfg.Storage.Path) == "" {
		return fmt.Errorf("storage: Path required for %s", cfg.Storage.Backend)
	}
	if cfg.API.RateLimitPerMinute < 0 {
		return fmt.Errorf("api: RateLimitPerMinute must not be negative")
	}
	if len(cfg.Kafka.Brokers) > 0 && strings.TrimSpace(cfg.Kafka.Topic) == "" {
		return fmt.Errorf("kafka: Topic required when brokers are set")
	}
	if cfg.Webhook.Endpoint != "" && cfg.Webhook.SecretEnv == "" {
		return fmt.Errorf("webhook: SecretEnv required when Endpoint is set")
	}
	return nil
}
