package domain

import "time"

// Candidate is a discovered token proposed for trading evaluation.
// The snapshot is used for prioritization and the quick pre-check only;
// gating re-fetches ground truth.
type Candidate struct {
	Mint         string    // token mint address
	Symbol       string    // display symbol
	Name         string    // display name (optional)
	Source       Source    // discovery source
	DiscoveredAt time.Time // when the discovery source emitted it
	Snapshot     Snapshot
}

// Snapshot holds market attributes as reported at discovery time.
// Nil fields mean the source did not report them.
type Snapshot struct {
	CreatedAt            *time.Time // token creation time
	BondingCurveProgress *float64   // percent, 0..100
	MarketCapSOL         *float64   // market cap in SOL
	TradeCount           *int64     // trades observed so far
}

// Age returns the token age at now, or false if creation time is unknown.
func (s Snapshot) Age(now time.Time) (time.Duration, bool) {
	if s.CreatedAt == nil {
		return 0, false
	}
	return now.Sub(*s.CreatedAt), true
}

// Source identifies the discovery feed that emitted a candidate.
type Source string

const SourcePumpPortal Source = "pumpportal"

// QueueStatus is the lifecycle state of a queue entry.
type QueueStatus string

const (
	QueueStatusQueued     QueueStatus = "queued"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusRejected   QueueStatus = "rejected"
	QueueStatusProcessed  QueueStatus = "processed"
)

// IsLive reports whether an entry in this status blocks re-insertion of its mint.
func (s QueueStatus) IsLive() bool {
	return s == QueueStatusQueued || s == QueueStatusProcessing
}

// QueueEntry wraps a Candidate with queue-specific state.
type QueueEntry struct {
	Candidate    Candidate
	Status       QueueStatus
	Priority     float64   // higher is served first
	Seq          uint64    // insertion order, breaks priority ties
	RejectedAt   time.Time // zero unless rejected
	RejectReason string
	Attempts     int       // transient skips so far
	RetryAt      time.Time // not served before this; zero = now
}

// RejectionKind distinguishes why a mint is cooling down. Both kinds use
// the same cooldown duration.
type RejectionKind string

const (
	RejectionKindCooldown RejectionKind = "cooldown"
	RejectionKindExited   RejectionKind = "exited"
)

// RejectionRecord blocks re-queueing of a mint until the cooldown elapses.
type RejectionRecord struct {
	Mint       string
	RejectedAt time.Time
	Reason     string
	Kind       RejectionKind
}

// Expired reports whether the record is no longer active at now.
func (r RejectionRecord) Expired(now time.Time, cooldown time.Duration) bool {
	return !now.Before(r.RejectedAt.Add(cooldown))
}
