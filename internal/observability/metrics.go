// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Engine metrics
	RunsTotal           *prometheus.CounterVec
	RunDuration         *prometheus.HistogramVec
	InstrumentDuration  *prometheus.HistogramVec
	InstrumentsTimedOut prometheus.Counter
	TradesSimulated     *prometheus.CounterVec
	WarningsTotal       *prometheus.CounterVec

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec
	ReportsGenerated  prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulPipeline prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "stock_strategy_lab"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Engine metrics
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Total number of backtest runs by strategy, mode and status",
		}, []string{"strategy", "mode", "status"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "Backtest run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"mode"}),
		InstrumentDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "instrument_duration_seconds",
			Help:      "Per-instrument simulation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		InstrumentsTimedOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "instruments_timed_out_total",
			Help:      "Total number of instruments abandoned by the run timeout",
		}),
		TradesSimulated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trades_simulated_total",
			Help:      "Total number of trades simulated by exit reason",
		}, []string{"strategy", "exit_reason"}),
		WarningsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "warnings_total",
			Help:      "Total number of row warnings by kind",
		}, []string{"kind"}),

		// Pipeline metrics
		PipelineRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline phases by status",
		}, []string{"phase", "status"}),
		PipelineDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline phase duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"phase"}),
		ReportsGenerated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "reports_generated_total",
			Help:      "Total number of reports generated",
		}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulPipeline: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_pipeline_timestamp",
			Help:      "Unix timestamp of last successful pipeline run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns an HTTP handler serving the metrics of gatherer.
func HandlerFor(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordRun records a finished backtest run.
func (m *Metrics) RecordRun(strategyID, mode, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(strategyID, mode, status).Inc()
	m.RunDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordInstrument records the latency of one instrument.
func (m *Metrics) RecordInstrument(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.InstrumentDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordTimeout counts an instrument abandoned by the run timeout.
func (m *Metrics) RecordTimeout() {
	if m == nil {
		return
	}
	m.InstrumentsTimedOut.Inc()
}

// RecordTrade counts one closed trade.
func (m *Metrics) RecordTrade(strategyID, exitReason string) {
	if m == nil {
		return
	}
	m.TradesSimulated.WithLabelValues(strategyID, exitReason).Inc()
}

// RecordWarning counts one row warning.
func (m *Metrics) RecordWarning(kind string) {
	if m == nil {
		return
	}
	m.WarningsTotal.WithLabelValues(kind).Inc()
}

// RecordPipelineRun records a pipeline phase.
func (m *Metrics) RecordPipelineRun(phase, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.PipelineRunsTotal.WithLabelValues(phase, status).Inc()
	m.PipelineDuration.WithLabelValues(phase).Observe(d.Seconds())
	if status == "success" && phase == "all" {
		m.LastSuccessfulPipeline.SetToCurrentTime()
	}
}

// RecordReport counts a generated report.
func (m *Metrics) RecordReport() {
	if m == nil {
		return
	}
	m.ReportsGenerated.Inc()
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(d.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
