// Package main serves backtests over HTTP:
// - POST /runs runs a strategy over stored data and persists it
// - GET /runs, /runs/{id}, /runs/{id}/report read stored runs
// - /health, /metrics and /status for operations
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"stock-strategy-lab/internal/app"
	"stock-strategy-lab/internal/backtest"
	"stock-strategy-lab/internal/config"
	"stock-strategy-lab/internal/logging"
	"stock-strategy-lab/internal/observability"
	"stock-strategy-lab/internal/orchestrator"
	"stock-strategy-lab/internal/pricing"
	"stock-strategy-lab/internal/strategy"
)

func main() {
	// Load .env file if exists
	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	// Parse flags
	configPath := flag.String("config", "config.yaml", "Path to YAML config")
	addr := flag.String("addr", ":8080", "HTTP listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := observability.NewMetrics("", prometheus.DefaultRegisterer)
	stores, err := app.OpenStores(ctx, cfg, m, logger)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer stores.Close()

	registry := strategy.DefaultRegistry()
	lotPolicy, _ := pricing.ParseLotPolicy(cfg.Engine.LotPolicy) // checked by config.Validate
	engine := backtest.NewEngine(backtest.Options{
		Workers:        cfg.Engine.Workers,
		Timeout:        cfg.Engine.Timeout,
		InitialCapital: cfg.Engine.InitialCapital,
		LotPolicy:      lotPolicy,
		LotSize:        cfg.Engine.LotSize,
		Calculator:     cfg.Engine.Calculator(),
		Costs:          &cfg.Costs,
	}, logger, m)

	orch := orchestrator.New(orchestrator.Options{
		Runner:           backtest.NewRunner(engine, registry, stores.Prices, stores.Filters),
		TradeRecordStore: stores.Trades,
		RunStore:         stores.Runs,
		OutputDir:        cfg.Report.OutputDir,
		Formats:          cfg.Report.Formats,
		Logger:           logger,
		Metrics:          m,
	})

	srv := app.NewServer(orch, registry, stores, observability.Handler(), logger)
	if err := app.Serve(ctx, *addr, srv.Handler(), logger); err != nil {
		logger.Fatal("http server", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
