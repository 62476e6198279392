package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-token-trader/internal/domain"
	"solana-token-trader/internal/storage"
)

// RiskStateStore implements storage.RiskStateStore using a single-row table.
type RiskStateStore struct {
	pool *Pool
}

// NewRiskStateStore creates a new RiskStateStore.
func NewRiskStateStore(pool *Pool) *RiskStateStore {
	return &RiskStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RiskStateStore = (*RiskStateStore)(nil)

// Load retrieves the snapshot. Returns ErrNotFound if none saved yet.
func (s *RiskStateStore) Load(ctx context.Context) (*domain.RiskState, error) {
	query := `
		SELECT day, trade_count_today, pnl_today, pnl_this_week, updated_at
		FROM risk_state WHERE id = 1
	`

	var (
		st        domain.RiskState
		updatedAt int64
	)
	err := s.pool.QueryRow(ctx, query).Scan(
		&st.Day, &st.TradeCountToday, &st.PnlToday, &st.PnlThisWeek, &updatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load risk state: %w", err)
	}
	st.UpdatedAt = time.UnixMilli(updatedAt)
	return &st, nil
}

// Save overwrites the snapshot.
func (s *RiskStateStore) Save(ctx context.Context, st *domain.RiskState) error {
	if st == nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO risk_state (id, day, trade_count_today, pnl_today, pnl_this_week, updated_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			day = EXCLUDED.day,
			trade_count_today = EXCLUDED.trade_count_today,
			pnl_today = EXCLUDED.pnl_today,
			pnl_this_week = EXCLUDED.pnl_this_week,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		st.Day, st.TradeCountToday, st.PnlToday, st.PnlThisWeek, st.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save risk state: %w", err)
	}
	return nil
}
