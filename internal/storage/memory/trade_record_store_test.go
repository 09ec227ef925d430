package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/storage"
)

func makeTrade(id, runID, instrument string, entryDay, exitDay int) *domain.TradeRecord {
	base := domain.Date(2024, time.January, 1)
	return &domain.TradeRecord{
		TradeID:       id,
		RunID:         runID,
		StrategyID:    "breakout_high",
		InstrumentID:  instrument,
		Direction:     domain.DirectionLong,
		EntryDate:     base.AddDate(0, 0, entryDay),
		EntryPrice:    100,
		Shares:        1000,
		ExitDate:      base.AddDate(0, 0, exitDay),
		ExitPrice:     105,
		ExitReason:    domain.ExitReasonTakeProfitIntrabar,
		NetProfitLoss: 4500,
		HoldingDays:   exitDay - entryDay,
	}
}

func TestTradeRecordStore_InsertAndGetByID(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	trade := makeTrade("t1", "run1", "2330", 0, 3)
	if err := store.Insert(ctx, trade); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "t1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.NetProfitLoss != 4500 {
		t.Errorf("NetProfitLoss mismatch: got %f, want %f", got.NetProfitLoss, 4500.0)
	}

	// Returned record is a copy
	got.NetProfitLoss = 0
	again, _ := store.GetByID(ctx, "t1")
	if again.NetProfitLoss != 4500 {
		t.Errorf("store was mutated through returned record")
	}
}

func TestTradeRecordStore_DuplicateKey(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	trade := makeTrade("t1", "run1", "2330", 0, 3)
	if err := store.Insert(ctx, trade); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if err := store.Insert(ctx, trade); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestTradeRecordStore_InsertBulkAtomic(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	if err := store.Insert(ctx, makeTrade("t2", "run1", "2330", 0, 1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	batch := []*domain.TradeRecord{
		makeTrade("t1", "run1", "2330", 2, 3),
		makeTrade("t2", "run1", "2330", 4, 5),
	}
	if err := store.InsertBulk(ctx, batch); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}
	if _, err := store.GetByID(ctx, "t1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("batch should not be partially applied, got %v", err)
	}

	intra := []*domain.TradeRecord{
		makeTrade("t3", "run1", "2330", 2, 3),
		makeTrade("t3", "run1", "2330", 4, 5),
	}
	if err := store.InsertBulk(ctx, intra); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}
}

func TestTradeRecordStore_GetByRunIDOrder(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	batch := []*domain.TradeRecord{
		makeTrade("a", "run1", "2330", 3, 6),
		makeTrade("b", "run1", "2317", 1, 6),
		makeTrade("c", "run1", "2330", 0, 2),
		makeTrade("d", "run2", "2330", 0, 1),
	}
	if err := store.InsertBulk(ctx, batch); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByRunID(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByRunID failed: %v", err)
	}
	want := []string{"c", "b", "a"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d trades, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].TradeID != id {
			t.Errorf("trade %d: got %s, want %s", i, got[i].TradeID, id)
		}
	}
}

func TestTradeRecordStore_GetByInstrument(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	batch := []*domain.TradeRecord{
		makeTrade("a", "run1", "2330", 5, 6),
		makeTrade("b", "run2", "2330", 1, 2),
		makeTrade("c", "run1", "2317", 0, 2),
	}
	if err := store.InsertBulk(ctx, batch); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByInstrument(ctx, "2330")
	if err != nil {
		t.Fatalf("GetByInstrument failed: %v", err)
	}
	if len(got) != 2 || got[0].TradeID != "b" || got[1].TradeID != "a" {
		t.Errorf("unexpected order: %v", tradeIDs(got))
	}
}

func TestTradeRecordStore_NotFound(t *testing.T) {
	store := NewTradeRecordStore()
	if _, err := store.GetByID(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func tradeIDs(trades []*domain.TradeRecord) []string {
	ids := make([]string, len(trades))
	for i, t := range trades {
		ids[i] = t.TradeID
	}
	return ids
}
