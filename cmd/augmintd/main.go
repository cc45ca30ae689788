package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"augmint/config"
	"augmint/core"
	"augmint/core/genesis"
	"augmint/native/exchange"
	"augmint/observability"
	"augmint/observability/logging"
	telemetry "augmint/observability/otel"
	"augmint/rpc"
	"augmint/rpc/middleware"
	"augmint/services/collector"
	"augmint/storage"
	"augmint/storage/eventlog"
)

const serviceName = "augmintd"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML document (overrides config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if path := strings.TrimSpace(*genesisFlag); path != "" {
		cfg.GenesisFile = path
	}

	logger, closer := logging.SetupWithOptions(logging.Options{
		Service:    serviceName,
		Env:        cfg.Environment,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("augmintd exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("augmintd stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	opts, err := nodeOptions(cfg, logger)
	if err != nil {
		db.Close()
		return err
	}
	node, err := core.NewNode(db, opts)
	if err != nil {
		db.Close()
		return fmt.Errorf("open node: %w", err)
	}
	defer node.Close()
	node.AddSink(observability.Events())

	var archive *eventlog.Archive
	if driver := strings.TrimSpace(cfg.EventLog.Driver); driver != "" {
		archive, err = eventlog.Open(driver, cfg.EventLog.DSN)
		if err != nil {
			return fmt.Errorf("open event archive: %w", err)
		}
		defer archive.Close()
		node.AddSink(archive)
	}

	if err := applyGenesis(ctx, node, cfg.GenesisFile, logger); err != nil {
		return err
	}
	logger.Info("node ready", "root", node.Root().Hex(), "token", opts.Token.Symbol)

	server := rpc.NewServer(rpc.Config{
		ListenAddress: cfg.RPC.ListenAddress,
		Auth:          middleware.AuthConfig{HMACSecret: cfg.JWTSecret()},
		RateLimit: middleware.RateLimit{
			RequestsPerSecond: cfg.RPC.RateLimitPerSecond,
			Burst:             cfg.RPC.RateLimitBurst,
		},
		ReadTimeout:  time.Duration(cfg.RPC.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.RPC.WriteTimeoutSecs) * time.Second,
	}, node, archive, logger)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return server.Start(groupCtx) })
	if cfg.Collector.Enabled {
		svc, err := collector.New(collector.Config{
			Schedule:  cfg.Collector.Schedule,
			BatchSize: cfg.Collector.BatchSize,
			Account:   cfg.Collector.Account,
		}, node, logger)
		if err != nil {
			return err
		}
		group.Go(func() error {
			svc.Start(groupCtx)
			return nil
		})
	}
	return group.Wait()
}

func openStore(cfg *config.Config) (storage.Database, error) {
	if cfg.InMemory {
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	return storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
}

func nodeOptions(cfg *config.Config, logger *slog.Logger) (core.Options, error) {
	pricing, err := exchange.ParsePricingRule(cfg.Exchange.Pricing)
	if err != nil {
		return core.Options{}, err
	}
	opts := core.Options{
		Token:       tokenOptions(cfg.Token),
		Pricing:     pricing,
		MatchBudget: cfg.Exchange.MatchBudget,
		RateMaxAge:  time.Duration(cfg.Rates.MaxAgeSeconds) * time.Second,
		Logger:      logger,
	}
	for _, legacy := range cfg.LegacyTokens {
		opts.LegacyTokens = append(opts.LegacyTokens, tokenOptions(legacy))
	}
	return opts, nil
}

func tokenOptions(tc config.TokenConfig) core.TokenOptions {
	return core.TokenOptions{
		Symbol:       strings.ToUpper(strings.TrimSpace(tc.Symbol)),
		Name:         tc.Name,
		PeggedSymbol: strings.ToUpper(strings.TrimSpace(tc.PeggedSymbol)),
		Decimals:     tc.Decimals,
	}
}

// applyGenesis applies the genesis document on a store that has none. An
// already initialised store ignores the file.
func applyGenesis(ctx context.Context, node *core.Node, path string, logger *slog.Logger) error {
	applied, err := node.GenesisApplied()
	if err != nil {
		return fmt.Errorf("read genesis marker: %w", err)
	}
	if applied {
		logger.Info("resuming committed state")
		return nil
	}
	path = strings.TrimSpace(path)
	if path == "" {
		logger.Warn("no genesis document configured; starting with empty state")
		return nil
	}
	spec, err := genesis.Load(path)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}
	plan, err := spec.Resolve()
	if err != nil {
		return fmt.Errorf("resolve genesis: %w", err)
	}
	if err := node.ApplyGenesis(ctx, plan); err != nil && !errors.Is(err, core.ErrGenesisApplied) {
		return fmt.Errorf("apply genesis: %w", err)
	}
	logger.Info("genesis applied", "file", path, "root", node.Root().Hex())
	return nil
}
