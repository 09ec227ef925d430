package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
// Parameters and summary are stored as JSONB.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

const runColumns = `
	run_id, strategy_id, mode, parameters,
	started_at, finished_at, incomplete, warnings, summary
`

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(ctx context.Context, r *domain.RunRecord) (err error) {
	if r == nil || r.RunID == "" || r.StrategyID == "" {
		return storage.ErrInvalidInput
	}
	defer s.pool.observe("insert_run", time.Now(), &err)

	params := r.Parameters
	if params == nil {
		params = domain.Parameters{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	summaryJSON, err := json.Marshal(r.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	query := `
		INSERT INTO backtest_runs (` + runColumns + `) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9
		)
	`

	_, err = s.pool.Exec(ctx, query,
		r.RunID, r.StrategyID, r.Mode, paramsJSON,
		r.StartedAt, r.FinishedAt, r.Incomplete, r.Warnings, summaryJSON,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert backtest run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(ctx context.Context, runID string) (_ *domain.RunRecord, err error) {
	defer s.pool.observe("get_run", time.Now(), &err)

	query := `SELECT ` + runColumns + ` FROM backtest_runs WHERE run_id = $1`

	r, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get backtest run by id: %w", err)
	}
	return r, nil
}

// GetByStrategy retrieves all runs of a strategy, newest first.
func (s *RunStore) GetByStrategy(ctx context.Context, strategyID string) (_ []*domain.RunRecord, err error) {
	defer s.pool.observe("get_runs_by_strategy", time.Now(), &err)

	query := `SELECT ` + runColumns + `
		FROM backtest_runs
		WHERE strategy_id = $1
		ORDER BY started_at DESC, run_id ASC
	`

	rows, err := s.pool.Query(ctx, query, strategyID)
	if err != nil {
		return nil, fmt.Errorf("get backtest runs by strategy: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// GetAll retrieves all runs, newest first.
func (s *RunStore) GetAll(ctx context.Context) (_ []*domain.RunRecord, err error) {
	defer s.pool.observe("get_runs", time.Now(), &err)

	query := `SELECT ` + runColumns + ` FROM backtest_runs ORDER BY started_at DESC, run_id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all backtest runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

func scanRun(row pgx.Row) (*domain.RunRecord, error) {
	var r domain.RunRecord
	var paramsJSON, summaryJSON []byte

	err := row.Scan(
		&r.RunID, &r.StrategyID, &r.Mode, &paramsJSON,
		&r.StartedAt, &r.FinishedAt, &r.Incomplete, &r.Warnings, &summaryJSON,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(paramsJSON, &r.Parameters); err != nil {
		return nil, fmt.Errorf("unmarshal parameters of %s: %w", r.RunID, err)
	}
	if err := json.Unmarshal(summaryJSON, &r.Summary); err != nil {
		return nil, fmt.Errorf("unmarshal summary of %s: %w", r.RunID, err)
	}
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	return &r, nil
}

func scanRuns(rows pgx.Rows) ([]*domain.RunRecord, error) {
	var runs []*domain.RunRecord

	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backtest run row: %w", err)
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtest run rows: %w", err)
	}

	return runs, nil
}
