// Package parquet reads and writes daily price bars as one Parquet file per
// instrument under a data directory.
package parquet

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/storage"
)

const fileExt = ".parquet"

// BarRecord is the on-disk schema of one session.
type BarRecord struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // session date, Unix ms at UTC midnight
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

func toRecord(b domain.PriceBar) BarRecord {
	return BarRecord{
		Timestamp: b.Date.UTC().UnixMilli(),
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
	}
}

func (r BarRecord) bar() domain.PriceBar {
	return domain.PriceBar{
		Date:   time.UnixMilli(r.Timestamp).UTC(),
		Open:   r.Open,
		High:   r.High,
		Low:    r.Low,
		Close:  r.Close,
		Volume: r.Volume,
	}
}

// PriceBarStore implements storage.PriceBarStore on <DataDir>/<instrument>.parquet files.
type PriceBarStore struct {
	DataDir string

	mu sync.RWMutex
}

// NewPriceBarStore creates a store rooted at dataDir.
func NewPriceBarStore(dataDir string) *PriceBarStore {
	return &PriceBarStore{DataDir: dataDir}
}

// Compile-time interface check.
var _ storage.PriceBarStore = (*PriceBarStore)(nil)

func (s *PriceBarStore) path(instrumentID string) string {
	return filepath.Join(s.DataDir, instrumentID+fileExt)
}

// InsertBulk merges bars into the instrument's file. Fails entire batch on
// duplicate (instrument_id, date). The file is replaced atomically.
func (s *PriceBarStore) InsertBulk(_ context.Context, instrumentID string, bars []domain.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}
	if instrumentID == "" || strings.ContainsAny(instrumentID, `/\`) {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.read(instrumentID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	seen := make(map[int64]struct{}, len(existing)+len(bars))
	for _, r := range existing {
		seen[r.Timestamp] = struct{}{}
	}
	merged := slices.Clone(existing)
	for _, b := range bars {
		if b.Date.IsZero() {
			return storage.ErrInvalidInput
		}
		r := toRecord(b)
		if _, dup := seen[r.Timestamp]; dup {
			return storage.ErrDuplicateKey
		}
		seen[r.Timestamp] = struct{}{}
		merged = append(merged, r)
	}
	slices.SortFunc(merged, func(a, b BarRecord) int { return cmp.Compare(a.Timestamp, b.Timestamp) })

	return s.write(instrumentID, merged)
}

// GetByInstrument retrieves all bars of an instrument, ordered by date ASC.
func (s *PriceBarStore) GetByInstrument(_ context.Context, instrumentID string) (*domain.PriceTable, error) {
	return s.table(instrumentID, func(time.Time) bool { return true })
}

// GetByDateRange retrieves bars within [start, end] (inclusive), ordered by date ASC.
func (s *PriceBarStore) GetByDateRange(_ context.Context, instrumentID string, start, end time.Time) (*domain.PriceTable, error) {
	return s.table(instrumentID, func(d time.Time) bool {
		return !d.Before(start) && !d.After(end)
	})
}

// ListInstruments returns the instruments with a file in DataDir, sorted.
func (s *PriceBarStore) ListInstruments(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.DataDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", s.DataDir, err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != fileExt {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), fileExt))
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *PriceBarStore) table(instrumentID string, keep func(time.Time) bool) (*domain.PriceTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.read(instrumentID)
	if err != nil {
		return nil, err
	}

	bars := make([]domain.PriceBar, 0, len(records))
	for _, r := range records {
		b := r.bar()
		if keep(b.Date) {
			bars = append(bars, b)
		}
	}
	slices.SortStableFunc(bars, func(a, b domain.PriceBar) int { return a.Date.Compare(b.Date) })
	return domain.NewPriceTable(instrumentID, bars), nil
}

// read returns ErrNotFound when the instrument has no file.
func (s *PriceBarStore) read(instrumentID string) ([]BarRecord, error) {
	path := s.path(instrumentID)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	records, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}

func (s *PriceBarStore) write(instrumentID string, records []BarRecord) error {
	if err := os.MkdirAll(s.DataDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", s.DataDir, err)
	}

	path := s.path(instrumentID)
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, records); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
