// Package orchestrator runs the end-to-end pipeline of one backtest.
// It coordinates: backtest → persistence → reports → verification
package orchestrator

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.uber.org/zap"

	"stock-strategy-lab/internal/backtest"
	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/metrics"
	"stock-strategy-lab/internal/observability"
	"stock-strategy-lab/internal/reporting"
	"stock-strategy-lab/internal/storage"
)

// Report formats
const (
	FormatMarkdown = "markdown"
	FormatCSV      = "csv"
)

// Pipeline phases, used as metric labels.
const (
	PhaseBacktest = "backtest"
	PhasePersist  = "persist"
	PhaseReport   = "report"
	PhaseVerify   = "verify"
	PhaseAll      = "all"
)

// Orchestrator coordinates one pipeline execution.
type Orchestrator struct {
	runner     *backtest.Runner
	tradeStore storage.TradeRecordStore
	runStore   storage.RunStore

	outputDir string
	formats   []string

	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// Options for creating Orchestrator.
type Options struct {
	Runner           *backtest.Runner
	TradeRecordStore storage.TradeRecordStore
	RunStore         storage.RunStore

	// OutputDir receives one directory per run. Empty skips report files.
	OutputDir string
	Formats   []string // markdown, csv

	Logger  *zap.Logger
	Metrics *observability.Metrics
	Now     func() time.Time // report timestamp, defaults to time.Now
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		runner:     opts.Runner,
		tradeStore: opts.TradeRecordStore,
		runStore:   opts.RunStore,
		outputDir:  opts.OutputDir,
		formats:    opts.Formats,
		logger:     logger.Named("orchestrator"),
		metrics:    opts.Metrics,
		now:        now,
	}
}

// RunResult contains results from orchestrator execution.
type RunResult struct {
	RunID       string
	Trades      int
	Warnings    int
	Incomplete  bool
	Report      *reporting.Report
	ReportFiles []string
}

// Run executes the full pipeline.
// Phases:
//  1. Backtest the requested strategy over stored data
//  2. Persist the run and its trades
//  3. Render and write reports
//  4. Verify the stored summary against the stored trades
func (o *Orchestrator) Run(ctx context.Context, req backtest.Request) (_ *RunResult, err error) {
	started := time.Now()
	defer func() {
		o.metrics.RecordPipelineRun(PhaseAll, status(err), time.Since(started))
	}()

	o.logger.Info("phase 1: backtest", zap.String("strategy", req.StrategyID))
	var res *backtest.Result
	err = o.phase(PhaseBacktest, func() error {
		var runErr error
		res, runErr = o.runner.Run(ctx, req)
		return runErr
	})
	if err != nil {
		return nil, fmt.Errorf("phase 1 (backtest) failed: %w", err)
	}

	out := &RunResult{
		RunID:      res.RunID,
		Trades:     len(res.Trades),
		Warnings:   len(res.Warnings),
		Incomplete: res.Incomplete,
	}
	o.logger.Info("backtest finished",
		zap.String("run_id", res.RunID),
		zap.Int("trades", out.Trades),
		zap.Int("warnings", out.Warnings),
		zap.Bool("incomplete", res.Incomplete),
	)

	record := res.Record()

	o.logger.Info("phase 2: persist", zap.String("run_id", res.RunID))
	if err = o.phase(PhasePersist, func() error { return o.persist(ctx, record, res.Trades) }); err != nil {
		return nil, fmt.Errorf("phase 2 (persist) failed: %w", err)
	}

	o.logger.Info("phase 3: report", zap.String("run_id", res.RunID))
	err = o.phase(PhaseReport, func() error {
		out.Report = reporting.Build(o.now(), record, res.Trades, res.OpenPositions, res.Warnings)
		files, writeErr := o.writeReports(out.Report)
		out.ReportFiles = files
		return writeErr
	})
	if err != nil {
		return nil, fmt.Errorf("phase 3 (report) failed: %w", err)
	}
	o.metrics.RecordReport()

	o.logger.Info("phase 4: verify", zap.String("run_id", res.RunID))
	err = o.phase(PhaseVerify, func() error {
		return metrics.NewAggregator(o.tradeStore, o.runStore).VerifyRun(ctx, res.RunID)
	})
	if err != nil {
		return nil, fmt.Errorf("phase 4 (verify) failed: %w", err)
	}

	o.logger.Info("pipeline completed",
		zap.String("run_id", res.RunID),
		zap.Int("trades", out.Trades),
		zap.Strings("files", out.ReportFiles),
		zap.Duration("elapsed", time.Since(started)),
	)
	return out, nil
}

func (o *Orchestrator) phase(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	o.metrics.RecordPipelineRun(name, status(err), time.Since(start))
	if err != nil {
		o.logger.Error("phase failed", zap.String("phase", name), zap.Error(err))
	}
	return err
}

// persist stores the run before its trades so trade rows can reference it.
func (o *Orchestrator) persist(ctx context.Context, record *domain.RunRecord, trades []domain.TradeRecord) error {
	if err := o.runStore.Insert(ctx, record); err != nil {
		return fmt.Errorf("insert run %s: %w", record.RunID, err)
	}
	if len(trades) == 0 {
		return nil
	}

	ptrs := make([]*domain.TradeRecord, len(trades))
	for i := range trades {
		ptrs[i] = &trades[i]
	}
	if err := o.tradeStore.InsertBulk(ctx, ptrs); err != nil {
		return fmt.Errorf("insert %d trades of run %s: %w", len(trades), record.RunID, err)
	}
	return nil
}

// writeReports writes <outputDir>/<run_id>/{report.md,trades.csv,equity.csv}
// for the configured formats and returns the written paths.
func (o *Orchestrator) writeReports(r *reporting.Report) ([]string, error) {
	if o.outputDir == "" || len(o.formats) == 0 {
		return nil, nil
	}

	dir := filepath.Join(o.outputDir, r.Run.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	files := make(map[string]string)
	if slices.Contains(o.formats, FormatMarkdown) {
		files["report.md"] = reporting.RenderMarkdown(r)
	}
	if slices.Contains(o.formats, FormatCSV) {
		files["trades.csv"] = reporting.RenderTradesCSV(r.Trades)
		files["equity.csv"] = reporting.RenderEquityCSV(r.EquityCurve)
	}

	var written []string
	for _, name := range slices.Sorted(maps.Keys(files)) {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(files[name]), 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
