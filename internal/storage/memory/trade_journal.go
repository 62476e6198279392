package memory

import (
	"context"
	"sort"
	"sync"

	"solana-token-trader/internal/domain"
	"solana-token-trader/internal/storage"
)

// TradeJournal is an in-memory implementation of storage.TradeJournal.
type TradeJournal struct {
	mu     sync.RWMutex
	events map[string]*domain.ExitEvent // keyed by event_id
}

// NewTradeJournal creates a new in-memory trade journal.
func NewTradeJournal() *TradeJournal {
	return &TradeJournal{
		events: make(map[string]*domain.ExitEvent),
	}
}

// Record appends an event. Returns ErrDuplicateKey if event_id exists.
func (j *TradeJournal) Record(_ context.Context, e *domain.ExitEvent) error {
	if e == nil || e.EventID == "" {
		return storage.ErrInvalidInput
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.events[e.EventID]; exists {
		return storage.ErrDuplicateKey
	}

	eventCopy := *e
	j.events[e.EventID] = &eventCopy
	return nil
}

// ListByMint retrieves all events for a mint, ordered by timestamp ASC.
func (j *TradeJournal) ListByMint(_ context.Context, mint string) ([]*domain.ExitEvent, error) {
	return j.filter(func(e *domain.ExitEvent) bool {
		return e.Mint == mint
	}), nil
}

// ListByTimeRange retrieves events within [start, end] (inclusive, unix ms).
func (j *TradeJournal) ListByTimeRange(_ context.Context, start, end int64) ([]*domain.ExitEvent, error) {
	return j.filter(func(e *domain.ExitEvent) bool {
		ts := e.Timestamp.UnixMilli()
		return ts >= start && ts <= end
	}), nil
}

func (j *TradeJournal) filter(keep func(*domain.ExitEvent) bool) []*domain.ExitEvent {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []*domain.ExitEvent
	for _, e := range j.events {
		if keep(e) {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	sort.Slice(result, func(a, b int) bool {
		if result[a].Timestamp.Equal(result[b].Timestamp) {
			return result[a].EventID < result[b].EventID
		}
		return result[a].Timestamp.Before(result[b].Timestamp)
	})

	return result
}

var _ storage.TradeJournal = (*TradeJournal)(nil)
