package config

import "time"

// Chain selects the network and the contracts to follow.
type Chain struct {
	RPCURL           string   `toml:"RPCURL"`
	Network          string   `toml:"Network"`
	StartBlock       uint64   `toml:"StartBlock"`
	BatchSize        uint64   `toml:"BatchSize"`
	Confirmations    uint64   `toml:"Confirmations"`
	PollInterval     Duration `toml:"PollInterval"`
	RPCRatePerSecond float64  `toml:"RPCRatePerSecond"`
	RPCBurst         int      `toml:"RPCBurst"`
	Factories        []string `toml:"Factories"`
	Lines            []string `toml:"Lines"`
}

// Storage selects the entity store backend.
type Storage struct {
	Backend string `toml:"Backend"`
	Path    string `toml:"Path"`
}

// Index configures the SQL copy of the audit journal. An empty DSN disables it.
type Index struct {
	DSN string `toml:"DSN"`
}

// Indexer holds ledger policy knobs.
type Indexer struct {
	SkipMissing    bool   `toml:"SkipMissing"`
	QueueScanBound uint64 `toml:"QueueScanBound"`
}

// API configures the query server.
type API struct {
	Listen             string `toml:"Listen"`
	RateLimitPerMinute int    `toml:"RateLimitPerMinute"`
}

// Telemetry configures OTLP exporters.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	Headers     string  `toml:"Headers"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// Kafka configures the audit record stream. No brokers disables it.
type Kafka struct {
	Brokers []string `toml:"Brokers"`
	Topic   string   `toml:"Topic"`
}

// Webhook configures signed audit record deliveries. An empty endpoint
// disables them.
type Webhook struct {
	Endpoint  string   `toml:"Endpoint"`
	SecretEnv string   `toml:"SecretEnv"`
	Types     []string `toml:"Types"`
}

// Log configures log output.
type Log struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
}

// Duration decodes TOML strings such as "12s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
