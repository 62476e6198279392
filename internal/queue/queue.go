// Package queue holds discovered candidates pending analysis. It deduplicates
// by mint, serves the highest-priority candidate first, and keeps rejected or
// exited mints out for a cooldown window.
package queue

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-token-trader/internal/domain"
)

// PriorityFunc scores a candidate. Higher scores are served first.
type PriorityFunc func(c domain.Candidate) float64

// ByRecency scores candidates by discovery time so the newest is served first.
func ByRecency(c domain.Candidate) float64 {
	return float64(c.DiscoveredAt.UnixMilli())
}

// Config configures a Queue.
type Config struct {
	MaxSize  int           // max queued entries, 0 = unbounded
	Cooldown time.Duration // how long rejected or exited mints stay out

	RetryDelay time.Duration // wait before a skipped candidate is served again
	MaxRetries int           // skips before a candidate is dropped, 0 = unlimited

	Priority PriorityFunc  // nil = ByRecency
	Logger   zerolog.Logger
	Now      func() time.Time // nil = time.Now
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		MaxSize:    100,
		Cooldown:   30 * time.Minute,
		RetryDelay: 10 * time.Second,
		MaxRetries: 3,
		Logger:     zerolog.Nop(),
	}
}

// Stats is a read-only snapshot of queue state.
type Stats struct {
	Queued           int
	Processing       int
	ActiveRejections int
	Processed        int
	Evicted          int
	Top              *domain.Candidate // highest-priority queued candidate, nil if empty
}

// Queue is safe for concurrent use.
type Queue struct {
	mu         sync.Mutex
	cfg        Config
	seq        uint64
	live       map[string]*domain.QueueEntry // queued or processing, by mint
	rejections map[string]domain.RejectionRecord
	processed  int
	evicted    int
}

// New creates an empty queue.
func New(cfg Config) *Queue {
	if cfg.Priority == nil {
		cfg.Priority = ByRecency
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Queue{
		cfg:        cfg,
		live:       make(map[string]*domain.QueueEntry),
		rejections: make(map[string]domain.RejectionRecord),
	}
}

// Add inserts c if its mint has no live entry and no active rejection.
// Returns whether the candidate was inserted.
func (q *Queue) Add(c domain.Candidate) bool {
	if c.Mint == "" {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.cfg.Now()
	q.sweepLocked(now)

	if _, ok := q.live[c.Mint]; ok {
		return false
	}
	if _, ok := q.rejections[c.Mint]; ok {
		return false
	}

	q.seq++
	entry := &domain.QueueEntry{
		Candidate: c,
		Status:    domain.QueueStatusQueued,
		Priority:  q.cfg.Priority(c),
		Seq:       q.seq,
	}

	if q.cfg.MaxSize > 0 && q.queuedLocked() >= q.cfg.MaxSize {
		worst := q.worstQueuedLocked()
		if worst == nil || !ranksBefore(entry, worst) {
			q.cfg.Logger.Debug().Str("mint", c.Mint).Msg("queue full, candidate dropped")
			return false
		}
		delete(q.live, worst.Candidate.Mint)
		q.evicted++
		q.cfg.Logger.Debug().
			Str("mint", worst.Candidate.Mint).
			Str("admitted", c.Mint).
			Msg("evicted lowest-priority candidate")
	}

	q.live[c.Mint] = entry
	return true
}

// GetNext pops the highest-priority queued candidate and marks it processing.
// It never blocks; ok is false when nothing is queued.
func (q *Queue) GetNext() (c domain.Candidate, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.cfg.Now()
	q.sweepLocked(now)

	best := q.bestQueuedLocked(now)
	if best == nil {
		return domain.Candidate{}, false
	}
	best.Status = domain.QueueStatusProcessing
	return best.Candidate, true
}

// MarkProcessed removes the mint's live entry after a successful entry.
func (q *Queue) MarkProcessed(mint string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.live, mint)
	q.processed++
}

// MarkRejected removes the mint's live entry and starts its cooldown.
func (q *Queue) MarkRejected(mint, reason string) {
	q.reject(mint, reason, domain.RejectionKindCooldown)
}

// MarkExited starts a cooldown for a mint whose position was closed.
func (q *Queue) MarkExited(mint, reason string) {
	q.reject(mint, reason, domain.RejectionKindExited)
}

// MarkSkipped hands a processing entry back after a transient failure. It
// keeps its priority and sequence and is served again after RetryDelay.
// Once MaxRetries is exceeded the entry is dropped without a cooldown.
// Returns whether the entry was requeued.
func (q *Queue) MarkSkipped(mint string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.live[mint]
	if !ok || e.Status != domain.QueueStatusProcessing {
		return false
	}
	e.Attempts++
	if q.cfg.MaxRetries > 0 && e.Attempts > q.cfg.MaxRetries {
		delete(q.live, mint)
		q.cfg.Logger.Debug().Str("mint", mint).Int("attempts", e.Attempts).Msg("retries exhausted, candidate dropped")
		return false
	}
	e.Status = domain.QueueStatusQueued
	e.RetryAt = q.cfg.Now().Add(q.cfg.RetryDelay)
	return true
}

func (q *Queue) reject(mint, reason string, kind domain.RejectionKind) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.cfg.Now()
	delete(q.live, mint)
	q.rejections[mint] = domain.RejectionRecord{
		Mint:       mint,
		RejectedAt: now,
		Reason:     reason,
		Kind:       kind,
	}
}

// Rejection returns the active rejection record for mint, if any.
func (q *Queue) Rejection(mint string) (domain.RejectionRecord, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, ok := q.rejections[mint]
	if !ok || rec.Expired(q.cfg.Now(), q.cfg.Cooldown) {
		return domain.RejectionRecord{}, false
	}
	return rec, true
}

// CleanupExpiredRejections deletes rejection records older than the cooldown
// and returns how many were removed.
func (q *Queue) CleanupExpiredRejections() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.sweepLocked(q.cfg.Now())
}

// GetStats returns a snapshot without mutating the queue.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.cfg.Now()
	st := Stats{
		Processed: q.processed,
		Evicted:   q.evicted,
	}
	for _, e := range q.live {
		switch e.Status {
		case domain.QueueStatusQueued:
			st.Queued++
		case domain.QueueStatusProcessing:
			st.Processing++
		}
	}
	for _, rec := range q.rejections {
		if !rec.Expired(now, q.cfg.Cooldown) {
			st.ActiveRejections++
		}
	}
	if best := q.bestQueuedLocked(now); best != nil {
		top := best.Candidate
		st.Top = &top
	}
	return st
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.queuedLocked()
}

func (q *Queue) sweepLocked(now time.Time) int {
	removed := 0
	for mint, rec := range q.rejections {
		if rec.Expired(now, q.cfg.Cooldown) {
			delete(q.rejections, mint)
			removed++
		}
	}
	return removed
}

func (q *Queue) queuedLocked() int {
	n := 0
	for _, e := range q.live {
		if e.Status == domain.QueueStatusQueued {
			n++
		}
	}
	return n
}

// bestQueuedLocked returns the top queued entry that is due at now.
func (q *Queue) bestQueuedLocked(now time.Time) *domain.QueueEntry {
	var best *domain.QueueEntry
	for _, e := range q.live {
		if e.Status != domain.QueueStatusQueued || e.RetryAt.After(now) {
			continue
		}
		if best == nil || ranksBefore(e, best) {
			best = e
		}
	}
	return best
}

func (q *Queue) worstQueuedLocked() *domain.QueueEntry {
	var worst *domain.QueueEntry
	for _, e := range q.live {
		if e.Status != domain.QueueStatusQueued {
			continue
		}
		if worst == nil || ranksBefore(worst, e) {
			worst = e
		}
	}
	return worst
}

// ranksBefore orders by priority descending, then insertion order.
func ranksBefore(a, b *domain.QueueEntry) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.Seq < b.Seq
}
