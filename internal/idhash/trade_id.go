package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"stock-strategy-lab/internal/domain"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(run_id|strategy_id|instrument_id|entry_date|entry_index)
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(
	runID string,
	strategyID string,
	instrumentID string,
	entryDate time.Time,
	entryIndex int,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%d",
		runID,
		strategyID,
		instrumentID,
		domain.DateKey(entryDate),
		entryIndex,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
