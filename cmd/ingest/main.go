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
	"stock-strategy-lab/internal/config"
	"stock-strategy-lab/internal/ingestion"
	"stock-strategy-lab/internal/logging"
	"stock-strategy-lab/internal/observability"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config.yaml", "Path to YAML config")
	pricesPath := flag.String("prices", "", "Price CSV: instrument_id,date,open,high,low,close[,volume]")
	filterPath := flag.String("filter", "", "Allow-list CSV: instrument_id,date")
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

	if *pricesPath == "" && *filterPath == "" {
		logger.Fatal("nothing to import: pass --prices and/or --filter")
	}
	if *pricesPath != "" && cfg.Data.PriceSource == config.SourceMemory {
		logger.Fatal("data.price_source memory does not outlive the process; use parquet or clickhouse")
	}
	if *filterPath != "" && cfg.Data.FilterSource != config.SourceSQLite {
		logger.Fatal("--filter needs data.filter_source sqlite")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := observability.NewMetrics("", prometheus.DefaultRegisterer)
	stores, err := app.OpenDataStores(ctx, cfg, m, logger)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer stores.Close()

	importer := ingestion.NewImporter(stores.Prices, stores.Filters, logger)

	if *pricesPath != "" {
		stats, err := importFile(*pricesPath, func(f *os.File) (ingestion.Stats, error) {
			return importer.ImportPrices(ctx, f)
		})
		if err != nil {
			logger.Fatal("import prices", zap.String("file", *pricesPath), zap.Error(err))
		}
		fmt.Printf("Prices:  %d instruments, %d bars, %d skipped %v\n",
			stats.Instruments, stats.Rows, len(stats.Skipped), stats.Skipped)
	}

	if *filterPath != "" {
		stats, err := importFile(*filterPath, func(f *os.File) (ingestion.Stats, error) {
			return importer.ImportFilter(ctx, f)
		})
		if err != nil {
			logger.Fatal("import allow-list", zap.String("file", *filterPath), zap.Error(err))
		}
		fmt.Printf("Filter:  %d instruments, %d entries\n", stats.Instruments, stats.Rows)
	}
}

func importFile(path string, fn func(*os.File) (ingestion.Stats, error)) (ingestion.Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ingestion.Stats{}, err
	}
	defer f.Close()
	return fn(f)
}
