package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment overrides applied after decoding.
const (
	EnvRPCURL  = "LINELEDGER_RPC_URL"
	EnvDataDir = "LINELEDGER_DATA_DIR"
	EnvEnv     = "LINELEDGER_ENV"
)

type Config struct {
	Env       string    `toml:"Env"`
	Chain     Chain     `toml:"Chain"`
	Storage   Storage   `toml:"Storage"`
	Index     Index     `toml:"Index"`
	Indexer   Indexer   `toml:"Indexer"`
	API       API       `toml:"API"`
	Telemetry Telemetry `toml:"Telemetry"`
	Kafka     Kafka     `toml:"Kafka"`
	Webhook   Webhook   `toml:"Webhook"`
	Log       Log       `toml:"Log"`
}

// Default returns the configuration written for a fresh install.
func Default() *Config {
	return &Config{
		Env: "local",
		Chain: Chain{
			RPCURL:           "http://localhost:8545",
			Network:          "mainnet",
			BatchSize:        2000,
			Confirmations:    12,
			PollInterval:     Duration{12 * time.Second},
			RPCRatePerSecond: 20,
			RPCBurst:         10,
			Factories:        []string{},
			Lines:            []string{},
		},
		Storage: Storage{Backend: "leveldb", Path: "./lineledger-data"},
		Indexer: Indexer{QueueScanBound: 100},
		API:     API{Listen: ":8088", RateLimitPerMinute: 600},
		Telemetry: Telemetry{
			Endpoint: "localhost:4318",
			Insecure: true,
		},
		Kafka: Kafka{Brokers: []string{}, Topic: "lineledger.records"},
		Log:   Log{Level: "info", MaxSizeMB: 100, MaxBackups: 5},
	}
}

// Load loads the configuration from the given path. A missing file is created
// with defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err := createDefault(path)
		if err != nil {
			return nil, err
		}
		applyEnv(cfg)
		return cfg, Validate(cfg)
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyEnv(cfg)
	if cfg.Indexer.QueueScanBound == 0 {
		cfg.Indexer.QueueScanBound = 100
	}
	if cfg.Chain.Factories == nil {
		cfg.Chain.Factories = []string{}
	}
	if cfg.Chain.Lines == nil {
		cfg.Chain.Lines = []string{}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvRPCURL)); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDataDir)); v != "" {
		cfg.Storage.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvEnv)); v != "" {
		cfg.Env = v
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
