package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"stock-strategy-lab/internal/backtest"
	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/orchestrator"
	"stock-strategy-lab/internal/reporting"
	"stock-strategy-lab/internal/storage"
	"stock-strategy-lab/internal/strategy"
)

// RunRequest is the JSON body of POST /runs.
type RunRequest struct {
	RunID       string            `json:"run_id"`
	StrategyID  string            `json:"strategy_id"`
	Params      domain.Parameters `json:"params"`
	Instruments []string          `json:"instruments"`
	Start       string            `json:"start"` // YYYY-MM-DD
	End         string            `json:"end"`
}

// RunResponse is returned by POST /runs.
type RunResponse struct {
	RunID       string          `json:"run_id"`
	Trades      int             `json:"trades"`
	Warnings    int             `json:"warnings"`
	Incomplete  bool            `json:"incomplete"`
	Summary     *domain.Summary `json:"summary,omitempty"`
	ReportFiles []string        `json:"report_files,omitempty"`
}

// StatusResponse is the JSON response of GET /status.
type StatusResponse struct {
	Status     string    `json:"status"`
	Uptime     string    `json:"uptime"`
	StartedAt  time.Time `json:"started_at"`
	Runs       int       `json:"runs"`
	Failed     int       `json:"failed"`
	LastRunID  string    `json:"last_run_id,omitempty"`
	LastRunAt  time.Time `json:"last_run_at,omitzero"`
	Running    int       `json:"running"`
	Strategies []string  `json:"strategies"`
}

// Server exposes backtests and stored runs over HTTP.
type Server struct {
	orch      *orchestrator.Orchestrator
	registry  *strategy.Registry
	runs      storage.RunStore
	generator *reporting.Generator
	metrics   http.Handler
	logger    *zap.Logger
	started   time.Time

	mu        sync.Mutex
	total     int
	failed    int
	running   int
	lastRunID string
	lastRunAt time.Time
}

// NewServer creates a server. metrics serves /metrics and may be nil.
func NewServer(orch *orchestrator.Orchestrator, registry *strategy.Registry, stores *Stores, metrics http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		orch:      orch,
		registry:  registry,
		runs:      stores.Runs,
		generator: reporting.NewGenerator(stores.Trades, stores.Runs),
		metrics:   metrics,
		logger:    logger.Named("http"),
		started:   time.Now(),
	}
}

// Handler returns the routes:
//
//	GET  /health
//	GET  /metrics
//	GET  /status
//	POST /runs
//	GET  /runs
//	GET  /runs/{id}
//	GET  /runs/{id}/report
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /runs", s.handleCreateRun)
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /runs/{id}/report", s.handleGetReport)
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:     "ok",
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		StartedAt:  s.started,
		Runs:       s.total,
		Failed:     s.failed,
		LastRunID:  s.lastRunID,
		LastRunAt:  s.lastRunAt,
		Running:    s.running,
		Strategies: s.registry.List(),
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var body RunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := body.toRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	s.running++
	s.mu.Unlock()

	res, err := s.orch.Run(r.Context(), req)

	s.mu.Lock()
	s.running--
	s.total++
	if err != nil {
		s.failed++
	} else {
		s.lastRunID = res.RunID
		s.lastRunAt = time.Now()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("run failed", zap.String("strategy", req.StrategyID), zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}

	resp := RunResponse{
		RunID:       res.RunID,
		Trades:      res.Trades,
		Warnings:    res.Warnings,
		Incomplete:  res.Incomplete,
		ReportFiles: res.ReportFiles,
	}
	if res.Report != nil {
		resp.Summary = &res.Report.Summary
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	var (
		runs []*domain.RunRecord
		err  error
	)
	if id := r.URL.Query().Get("strategy"); id != "" {
		runs, err = s.runs.GetByStrategy(r.Context(), id)
	} else {
		runs, err = s.runs.GetAll(r.Context())
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if runs == nil {
		runs = []*domain.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.generator.Generate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(reporting.RenderMarkdown(report)))
}

func (b RunRequest) toRequest() (backtest.Request, error) {
	req := backtest.Request{
		RunID:       b.RunID,
		StrategyID:  b.StrategyID,
		Params:      b.Params,
		Instruments: b.Instruments,
	}
	if req.StrategyID == "" {
		return req, errors.New("strategy_id is required")
	}
	var err error
	if b.Start != "" {
		if req.Start, err = domain.ParseDate(b.Start); err != nil {
			return req, err
		}
	}
	if b.End != "" {
		if req.End, err = domain.ParseDate(b.End); err != nil {
			return req, err
		}
	}
	return req, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, strategy.ErrUnknownStrategy):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrDuplicateKey):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrNoData),
		errors.Is(err, storage.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// Serve runs an HTTP server on addr until ctx is done, then shuts it down.
func Serve(ctx context.Context, addr string, h http.Handler, logger *zap.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
