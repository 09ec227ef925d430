package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"stock-strategy-lab/internal/app"
	"stock-strategy-lab/internal/config"
	"stock-strategy-lab/internal/logging"
	"stock-strategy-lab/internal/metrics"
	"stock-strategy-lab/internal/observability"
	"stock-strategy-lab/internal/reporting"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config.yaml", "Path to YAML config")
	runID := flag.String("run-id", "", "Run to report on")
	strategyID := flag.String("strategy", "", "With --list, only runs of this strategy")
	list := flag.Bool("list", false, "List stored runs and exit")
	outputDir := flag.String("output-dir", "", "Report directory, overrides report.output_dir")
	verify := flag.Bool("verify", true, "Check the stored summary against the stored trades")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *outputDir != "" {
		cfg.Report.OutputDir = *outputDir
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	m := observability.NewMetrics("", prometheus.DefaultRegisterer)

	stores, err := app.OpenRunStorage(ctx, cfg, m, logger)
	if err != nil {
		logger.Fatal("open run storage", zap.Error(err))
	}
	defer stores.Close()

	if *list {
		if err := listRuns(ctx, stores, *strategyID); err != nil {
			logger.Fatal("list runs", zap.Error(err))
		}
		return
	}

	if *runID == "" {
		logger.Fatal("--run-id is required")
	}

	if *verify {
		if err := metrics.NewAggregator(stores.Trades, stores.Runs).VerifyRun(ctx, *runID); err != nil {
			logger.Fatal("verify run", zap.String("run_id", *runID), zap.Error(err))
		}
		logger.Info("stored summary verified", zap.String("run_id", *runID))
	}

	report, err := reporting.NewGenerator(stores.Trades, stores.Runs).Generate(ctx, *runID)
	if err != nil {
		logger.Fatal("generate report", zap.String("run_id", *runID), zap.Error(err))
	}

	dir := filepath.Join(cfg.Report.OutputDir, *runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Fatal("create output dir", zap.Error(err))
	}

	files := map[string]string{}
	for _, f := range cfg.Report.Formats {
		switch f {
		case config.FormatMarkdown:
			files["report.md"] = reporting.RenderMarkdown(report)
		case config.FormatCSV:
			files["trades.csv"] = reporting.RenderTradesCSV(report.Trades)
			files["equity.csv"] = reporting.RenderEquityCSV(report.EquityCurve)
		}
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			logger.Fatal("write report", zap.String("path", path), zap.Error(err))
		}
		fmt.Printf("Generated: %s\n", path)
	}
	m.RecordReport()
}

func listRuns(ctx context.Context, stores *app.Stores, strategyID string) error {
	runs, err := stores.Runs.GetAll(ctx)
	if strategyID != "" {
		runs, err = stores.Runs.GetByStrategy(ctx, strategyID)
	}
	if err != nil {
		return err
	}

	fmt.Printf("%-38s %-16s %-10s %7s %10s  %s\n", "RUN ID", "STRATEGY", "MODE", "TRADES", "RETURN %", "STARTED")
	for _, r := range runs {
		fmt.Printf("%-38s %-16s %-10s %7d %10.2f  %s\n",
			r.RunID, r.StrategyID, r.Mode, r.Summary.TotalTrades, r.Summary.TotalReturn,
			r.StartedAt.Format(time.RFC3339))
	}
	return nil
}
