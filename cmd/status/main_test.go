package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-trader/internal/domain"
)

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	err := render(&buf,
		[]*domain.Position{{
			Mint: "MINT", Symbol: "AAA", Status: domain.PositionStatusActive,
			EntryPrice: 0.0001, CurrentPrice: 0.00012, Quantity: 1500, CostBasis: 0.15,
			UnrealizedPnlPct: 20, EntryTime: time.Now().Add(-time.Minute),
		}},
		&domain.RiskState{Day: "2024-03-04", TradeCountToday: 2, PnlToday: -0.012, PnlThisWeek: 0.3},
		[]*domain.ExitEvent{{
			Timestamp: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), Mint: "OLD",
			Reason: domain.ExitReasonStopLoss, PercentSold: 100, Proceeds: 0.094, RealizedPnl: -0.006, Closed: true,
		}},
	)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "2024-03-04")
	assert.Contains(t, out, "-0.0120 SOL")
	assert.Contains(t, out, "OPEN POSITIONS (1)")
	assert.Contains(t, out, "AAA")
	assert.Contains(t, out, "+20.00")
	assert.Contains(t, out, "EXITS (1)")
	assert.Contains(t, out, "2024-03-04 10:00:00")
	assert.Contains(t, out, "stop_loss")
}

func TestRender_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, nil, nil, nil))

	out := buf.String()
	assert.Contains(t, out, "no risk state saved")
	assert.Contains(t, out, "OPEN POSITIONS (0)")
	assert.NotContains(t, out, "EXITS")
}
