package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
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
	// Parse flags
	configPath := flag.String("config", "config.yaml", "Path to YAML config")
	strategyID := flag.String("strategy", "", "Strategy ID, overrides strategy.id")
	runID := flag.String("run-id", "", "Run ID (generated when empty)")
	instruments := flag.String("instruments", "", "Comma-separated instrument IDs, overrides data.instruments")
	outputDir := flag.String("output-dir", "", "Report directory, overrides report.output_dir")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address, overrides metrics.listen_addr")
	outputJSON := flag.Bool("json", false, "Print the summary as JSON")
	listStrategies := flag.Bool("list-strategies", false, "List registered strategies and exit")
	flag.Parse()

	registry := strategy.DefaultRegistry()
	if *listStrategies {
		for _, id := range registry.List() {
			fmt.Println(id)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *strategyID != "" {
		cfg.Strategy.ID = *strategyID
	}
	if *instruments != "" {
		cfg.Data.Instruments = strings.Split(*instruments, ",")
	}
	if *outputDir != "" {
		cfg.Report.OutputDir = *outputDir
	}
	if *metricsAddr != "" {
		cfg.Metrics.ListenAddr = *metricsAddr
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Strategy.ID == "" {
		logger.Fatal("strategy is required (--strategy or strategy.id)")
	}

	// Create context with cancellation on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := observability.NewMetrics("", prometheus.DefaultRegisterer)
	if cfg.Metrics.ListenAddr != "" {
		go func() {
			if err := app.Serve(ctx, cfg.Metrics.ListenAddr, observability.Handler(), logger); err != nil {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
	}

	stores, err := app.OpenStores(ctx, cfg, m, logger)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer stores.Close()

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

	start, end, _ := cfg.Data.DateRange()
	result, err := orch.Run(ctx, backtest.Request{
		RunID:       *runID,
		StrategyID:  cfg.Strategy.ID,
		Params:      cfg.Strategy.Params,
		Instruments: cfg.Data.Instruments,
		Start:       start,
		End:         end,
	})
	if err != nil {
		logger.Fatal("backtest failed", zap.Error(err))
	}

	if *outputJSON {
		output, _ := json.MarshalIndent(result.Report.Summary, "", "  ")
		fmt.Println(string(output))
		return
	}
	printResult(result)
}

// printResult outputs a human-readable run summary.
func printResult(r *orchestrator.RunResult) {
	s := r.Report.Summary

	fmt.Println()
	fmt.Println("=== Backtest Result ===")
	fmt.Printf("Run ID:             %s\n", r.RunID)
	fmt.Printf("Strategy:           %s (%s)\n", r.Report.Run.StrategyID, r.Report.Run.Mode)
	if r.Incomplete {
		fmt.Println("Status:             INCOMPLETE (timeout)")
	}
	fmt.Println()

	fmt.Println("Trades:")
	fmt.Printf("  Total:            %d\n", s.TotalTrades)
	fmt.Printf("  Winners:          %d\n", s.WinningTrades)
	fmt.Printf("  Losers:           %d\n", s.LosingTrades)
	fmt.Printf("  Win Rate:         %.2f%%\n", s.WinRate)
	fmt.Printf("  Warnings:         %d\n", r.Warnings)
	fmt.Println()

	fmt.Println("Result:")
	fmt.Printf("  Initial Capital:  %.2f\n", s.InitialCapital)
	fmt.Printf("  Final Capital:    %.2f\n", s.FinalCapital)
	fmt.Printf("  Net Profit:       %.2f\n", s.TotalNetProfitLoss)
	fmt.Printf("  Return:           %.2f%%\n", s.TotalReturn)
	fmt.Printf("  Max Drawdown:     %.2f (%.2f%%)\n", s.MaxDrawdown, s.MaxDrawdownRate)
	fmt.Printf("  Profit Factor:    %.2f\n", s.ProfitFactor)
	fmt.Printf("  Sharpe:           %.4f\n", s.SharpeRatio)
	fmt.Printf("  Commission:       %.2f\n", s.TotalCommission)
	fmt.Printf("  Tax:              %.2f\n", s.TotalTax)

	if len(r.ReportFiles) > 0 {
		fmt.Println()
		fmt.Println("Reports:")
		for _, f := range r.ReportFiles {
			fmt.Printf("  %s\n", f)
		}
	}
}
