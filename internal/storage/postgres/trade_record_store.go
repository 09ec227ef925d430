package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/storage"
)

// TradeRecordStore implements storage.TradeRecordStore using PostgreSQL.
type TradeRecordStore struct {
	pool *Pool
}

// NewTradeRecordStore creates a new TradeRecordStore.
func NewTradeRecordStore(pool *Pool) *TradeRecordStore {
	return &TradeRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)

const tradeColumns = `
	trade_id, run_id, strategy_id, instrument_id, direction,
	entry_date, entry_index, entry_price, entry_reason, shares,
	exit_date, exit_index, exit_price, exit_reason,
	commission, securities_tax,
	gross_profit_loss, net_profit_loss, profit_loss_rate, holding_days
`

const insertTradeQuery = `
	INSERT INTO trade_records (` + tradeColumns + `) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10,
		$11, $12, $13, $14,
		$15, $16,
		$17, $18, $19, $20
	)
`

func tradeArgs(t *domain.TradeRecord) []any {
	return []any{
		t.TradeID, t.RunID, t.StrategyID, t.InstrumentID, string(t.Direction),
		t.EntryDate, t.EntryIndex, t.EntryPrice, t.EntryReason, t.Shares,
		t.ExitDate, t.ExitIndex, t.ExitPrice, string(t.ExitReason),
		t.Commission, t.SecuritiesTax,
		t.GrossProfitLoss, t.NetProfitLoss, t.ProfitLossRate, t.HoldingDays,
	}
}

func validTrade(t *domain.TradeRecord) bool {
	return t != nil && t.TradeID != "" && t.RunID != "" && t.InstrumentID != ""
}

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
// A trade whose run is not stored yet fails with ErrInvalidInput.
func (s *TradeRecordStore) Insert(ctx context.Context, t *domain.TradeRecord) (err error) {
	if !validTrade(t) {
		return storage.ErrInvalidInput
	}
	defer s.pool.observe("insert_trade", time.Now(), &err)

	if _, err = s.pool.Exec(ctx, insertTradeQuery, tradeArgs(t)...); err != nil {
		return mapInsertError(err, "insert trade record")
	}
	return nil
}

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeRecordStore) InsertBulk(ctx context.Context, trades []*domain.TradeRecord) (err error) {
	if len(trades) == 0 {
		return nil
	}
	for _, t := range trades {
		if !validTrade(t) {
			return storage.ErrInvalidInput
		}
	}
	defer s.pool.observe("insert_trades", time.Now(), &err)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(insertTradeQuery, tradeArgs(t)...)
	}
	results := tx.SendBatch(ctx, batch)
	for range trades {
		if _, err = results.Exec(); err != nil {
			results.Close()
			return mapInsertError(err, "insert trade record in bulk")
		}
	}
	if err = results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeRecordStore) GetByID(ctx context.Context, tradeID string) (_ *domain.TradeRecord, err error) {
	defer s.pool.observe("get_trade", time.Now(), &err)

	query := `SELECT ` + tradeColumns + ` FROM trade_records WHERE trade_id = $1`

	t, err := scanTradeRecord(s.pool.QueryRow(ctx, query, tradeID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade record by id: %w", err)
	}
	return t, nil
}

// GetByRunID retrieves all trades of a run ordered by exit date, instrument, entry date.
func (s *TradeRecordStore) GetByRunID(ctx context.Context, runID string) (_ []*domain.TradeRecord, err error) {
	defer s.pool.observe("get_trades_by_run", time.Now(), &err)

	query := `SELECT ` + tradeColumns + `
		FROM trade_records
		WHERE run_id = $1
		ORDER BY exit_date ASC, instrument_id ASC, entry_date ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get trade records by run id: %w", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

// GetByInstrument retrieves all trades of an instrument across runs, ordered by entry date.
func (s *TradeRecordStore) GetByInstrument(ctx context.Context, instrumentID string) (_ []*domain.TradeRecord, err error) {
	defer s.pool.observe("get_trades_by_instrument", time.Now(), &err)

	query := `SELECT ` + tradeColumns + `
		FROM trade_records
		WHERE instrument_id = $1
		ORDER BY entry_date ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("get trade records by instrument: %w", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

func mapInsertError(err error, op string) error {
	switch {
	case isDuplicateKeyError(err):
		return storage.ErrDuplicateKey
	case isForeignKeyError(err):
		return fmt.Errorf("%w: unknown run", storage.ErrInvalidInput)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// scanTradeRecord scans a single row into a TradeRecord.
func scanTradeRecord(row pgx.Row) (*domain.TradeRecord, error) {
	var t domain.TradeRecord
	var direction, exitReason string

	err := row.Scan(
		&t.TradeID, &t.RunID, &t.StrategyID, &t.InstrumentID, &direction,
		&t.EntryDate, &t.EntryIndex, &t.EntryPrice, &t.EntryReason, &t.Shares,
		&t.ExitDate, &t.ExitIndex, &t.ExitPrice, &exitReason,
		&t.Commission, &t.SecuritiesTax,
		&t.GrossProfitLoss, &t.NetProfitLoss, &t.ProfitLossRate, &t.HoldingDays,
	)
	if err != nil {
		return nil, err
	}

	t.Direction = domain.Direction(direction)
	t.ExitReason = domain.ExitReason(exitReason)
	t.EntryDate = t.EntryDate.UTC()
	t.ExitDate = t.ExitDate.UTC()
	return &t, nil
}

// scanTradeRecords scans multiple rows into a slice of TradeRecord.
func scanTradeRecords(rows pgx.Rows) ([]*domain.TradeRecord, error) {
	var trades []*domain.TradeRecord

	for rows.Next() {
		t, err := scanTradeRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade record row: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade record rows: %w", err)
	}

	return trades, nil
}
