package storage

import (
	"context"

	"solana-token-trader/internal/domain"
)

// PositionStore persists the open-position set so monitoring survives restarts.
// Memory is authoritative; the store is written through after every mutation
// and read only on startup.
type PositionStore interface {
	// Save upserts a position by ID.
	Save(ctx context.Context, p *domain.Position) error

	// Delete removes a position by ID. Returns ErrNotFound if not exists.
	Delete(ctx context.Context, id string) error

	// Get retrieves a position by ID. Returns ErrNotFound if not exists.
	Get(ctx context.Context, id string) (*domain.Position, error)

	// LoadOpen retrieves all positions whose status is not closed,
	// ordered by entry time ASC.
	LoadOpen(ctx context.Context) ([]*domain.Position, error)
}

// RiskStateStore persists the single risk-counter snapshot.
type RiskStateStore interface {
	// Load retrieves the snapshot. Returns ErrNotFound if none saved yet.
	Load(ctx context.Context) (*domain.RiskState, error)

	// Save overwrites the snapshot.
	Save(ctx context.Context, s *domain.RiskState) error
}

// TradeJournal is an append-only log of exit events.
type TradeJournal interface {
	// Record appends an event. Returns ErrDuplicateKey if event_id exists.
	Record(ctx context.Context, e *domain.ExitEvent) error

	// ListByMint retrieves all events for a mint, ordered by timestamp ASC.
	ListByMint(ctx context.Context, mint string) ([]*domain.ExitEvent, error)

	// ListByTimeRange retrieves events within [start, end] (inclusive, unix ms).
	ListByTimeRange(ctx context.Context, start, end int64) ([]*domain.ExitEvent, error)
}
