package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"lineledger/config"
	"lineledger/observability/logging"
	telemetry "lineledger/observability/otel"
	"lineledger/services/indexerd"
)

func main() {
	os.Exit(run())
}

func run() int {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "lineledger.toml", "path to the indexer configuration file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("indexerd: load config", slog.Any("error", err))
		return 1
	}

	var logOpts []logging.Option
	logOpts = append(logOpts, logging.WithLevel(cfg.Log.Level))
	if cfg.Log.File != "" {
		logOpts = append(logOpts, logging.WithFile(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups))
	}
	logger := logging.Setup("indexerd", cfg.Env, logOpts...)
	logger.Info("indexerd: starting",
		slog.String("network", cfg.Chain.Network),
		slog.String("rpc", logging.MaskURL(cfg.Chain.RPCURL)),
		slog.String("storage", cfg.Storage.Backend))

	if cfg.Webhook.Endpoint != "" {
		logger.Info("indexerd: webhook deliveries enabled",
			slog.String("endpoint", logging.MaskURL(cfg.Webhook.Endpoint)),
			slog.Any("types", cfg.Webhook.Types))
	}

	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		logger.Info("indexerd: telemetry enabled",
			slog.String("endpoint", cfg.Telemetry.Endpoint),
			logging.MaskField("headers", cfg.Telemetry.Headers))
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "indexerd",
		Environment: cfg.Env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		logger.Error("indexerd: init telemetry", slog.Any("error", err))
		return 1
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	daemon, err := indexerd.New(cfg, logger)
	if err != nil {
		logger.Error("indexerd: wire", slog.Any("error", err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer daemon.Close()
	if err := daemon.Run(ctx); err != nil {
		logger.Error("indexerd: stopped", slog.Any("error", err))
		return 1
	}
	logger.Info("indexerd: stopped")
	return 0
}
