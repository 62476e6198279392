package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-trader/internal/domain"
	"solana-token-trader/internal/storage"
)

func TestRiskStateStore_SaveAndLoad(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRiskStateStore(pool)
	ctx := context.Background()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	st := &domain.RiskState{
		Day:             "2024-01-15",
		TradeCountToday: 2,
		PnlToday:        -0.15,
		PnlThisWeek:     0.4,
		UpdatedAt:       time.UnixMilli(1705312800000),
	}
	require.NoError(t, store.Save(ctx, st))

	st.TradeCountToday = 3
	require.NoError(t, store.Save(ctx, st))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", got.Day)
	assert.Equal(t, 3, got.TradeCountToday)
	assert.InDelta(t, -0.15, got.PnlToday, 1e-12)
	assert.InDelta(t, 0.4, got.PnlThisWeek, 1e-12)
	assert.True(t, st.UpdatedAt.Equal(got.UpdatedAt))
}
