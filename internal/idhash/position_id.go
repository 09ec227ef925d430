package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"stock-strategy-lab/internal/domain"
)

// ComputePositionID computes a deterministic position_id using SHA256.
// Formula: SHA256(instrument_id|strategy_id|entry_date|entry_index)
// Returns hex-encoded hash (64 characters).
func ComputePositionID(
	instrumentID string,
	strategyID string,
	entryDate time.Time,
	entryIndex int,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d",
		instrumentID,
		strategyID,
		domain.DateKey(entryDate),
		entryIndex,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
