package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/app"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/cli"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// 2. Configure logger
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Debug("Configuration loaded",
		"rpc_url", cfg.RPCURL,
		"chain_id", cfg.ChainID,
		"contract", cfg.ContractAddress,
		"wallet", cfg.WalletURL != "",
		"journal", cfg.DatabaseURL != "",
	)

	// 3. Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Wire the components
	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing app: %w", err)
	}
	defer application.Close()

	deps := &cli.Dependencies{
		App:    application,
		Config: cfg,
	}

	return cli.NewRootCmd(deps).ExecuteContext(ctx)
}
