package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"solana-token-trader/internal/domain"
)

// ComputeExitEventID computes a deterministic event_id for a position close.
// Formula: SHA256(position_id|reason|percent_sold|quantity_sold|timestamp_ms)
// Returns hex-encoded hash (64 characters).
func ComputeExitEventID(
	positionID string,
	reason domain.ExitReason,
	percentSold float64,
	quantitySold float64,
	timestampMs int64,
) string {
	data := fmt.Sprintf("%s|%s|%.6f|%.9f|%d",
		positionID,
		string(reason),
		percentSold,
		quantitySold,
		timestampMs,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
