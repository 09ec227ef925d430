package idhash

import (
	"testing"
	"time"

	"stock-strategy-lab/internal/domain"
)

func TestComputeTradeID(t *testing.T) {
	tests := []struct {
		name         string
		runID        string
		strategyID   string
		instrumentID string
		entryDate    time.Time
		entryIndex   int
		wantLen      int // hash length should be 64
	}{
		{
			name:         "breakout trade",
			runID:        "3f0c8a52-3d7e-4c53-9d0e-1f4b8f2a9c11",
			strategyID:   "breakout_high",
			instrumentID: "2330",
			entryDate:    domain.Date(2024, time.March, 4),
			entryIndex:   21,
			wantLen:      64,
		},
		{
			name:         "vectorized trade",
			runID:        "run-2",
			strategyID:   "next_session",
			instrumentID: "0050",
			entryDate:    domain.Date(2023, time.December, 29),
			entryIndex:   1,
			wantLen:      64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTradeID(tt.runID, tt.strategyID, tt.instrumentID, tt.entryDate, tt.entryIndex)

			if len(got) != tt.wantLen {
				t.Errorf("ComputeTradeID() length = %d, want %d", len(got), tt.wantLen)
			}

			// Verify determinism: same inputs should produce same output
			got2 := ComputeTradeID(tt.runID, tt.strategyID, tt.instrumentID, tt.entryDate, tt.entryIndex)
			if got != got2 {
				t.Errorf("ComputeTradeID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeTradeID_DifferentInputs(t *testing.T) {
	day := domain.Date(2024, time.March, 4)
	base := ComputeTradeID("run", "strategy", "2330", day, 5)

	if base == ComputeTradeID("other_run", "strategy", "2330", day, 5) {
		t.Error("Different run should produce different hash")
	}
	if base == ComputeTradeID("run", "other_strategy", "2330", day, 5) {
		t.Error("Different strategy should produce different hash")
	}
	if base == ComputeTradeID("run", "strategy", "2317", day, 5) {
		t.Error("Different instrument should produce different hash")
	}
	if base == ComputeTradeID("run", "strategy", "2330", day.AddDate(0, 0, 1), 5) {
		t.Error("Different entry date should produce different hash")
	}
	if base == ComputeTradeID("run", "strategy", "2330", day, 6) {
		t.Error("Different entry index should produce different hash")
	}
}

func TestComputePositionID(t *testing.T) {
	day := domain.Date(2024, time.March, 4)
	a := ComputePositionID("2330", "breakout_high", day, 3)

	if len(a) != 64 {
		t.Errorf("ComputePositionID() length = %d, want 64", len(a))
	}
	if a != ComputePositionID("2330", "breakout_high", day, 3) {
		t.Error("ComputePositionID() not deterministic")
	}
	if a == ComputePositionID("2330", "breakout_high", day, 4) {
		t.Error("Different entry index should produce different hash")
	}
	// time of day is not part of the identity
	if a != ComputePositionID("2330", "breakout_high", day.Add(9*time.Hour), 3) {
		t.Error("Same session should produce same hash")
	}
}
