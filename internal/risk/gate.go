// Package risk implements the daily and weekly trading limits that every
// entry must clear.
package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-token-trader/internal/domain"
	"solana-token-trader/internal/storage"
)

// Denial reasons. These are stable strings used in rejection records.
const (
	ReasonDailyTradeLimit = "daily_trade_limit"
	ReasonDailyLossLimit  = "daily_loss_limit"
	ReasonWeeklyLossLimit = "weekly_loss_limit"
)

// Limits are the gate ceilings. A zero value disables that rule.
// Loss limits are positive SOL amounts.
type Limits struct {
	MaxTradesPerDay  int
	MaxDailyLossSOL  float64
	MaxWeeklyLossSOL float64
}

// DefaultLimits returns the reference limits.
func DefaultLimits() Limits {
	return Limits{
		MaxTradesPerDay:  10,
		MaxDailyLossSOL:  0.5,
		MaxWeeklyLossSOL: 1.5,
	}
}

// Config configures a Gate.
type Config struct {
	Limits   Limits
	Location *time.Location // day boundary zone, nil = time.Local
	Store    storage.RiskStateStore
	Logger   zerolog.Logger
	Now      func() time.Time // nil = time.Now
}

// Decision is the result of IsTradingAllowed.
type Decision struct {
	Allowed bool
	Reason  string
}

// Gate tracks risk counters. It is the only holder of RiskState; the position
// manager is its only writer of realized P&L.
type Gate struct {
	mu        sync.Mutex
	persistMu sync.Mutex // orders store writes
	cfg       Config
	state     domain.RiskState
}

// New creates a gate, restoring the last snapshot from the store when present.
func New(ctx context.Context, cfg Config) (*Gate, error) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	g := &Gate{cfg: cfg}
	g.state.Day = g.dayToken(cfg.Now())

	if cfg.Store != nil {
		st, err := cfg.Store.Load(ctx)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("load risk state: %w", err)
		default:
			g.state = *st
			cfg.Logger.Info().
				Str("day", st.Day).
				Int("trades_today", st.TradeCountToday).
				Float64("pnl_today", st.PnlToday).
				Float64("pnl_week", st.PnlThisWeek).
				Msg("risk state restored")
		}
	}

	g.mu.Lock()
	rolled := g.rolloverLocked()
	g.mu.Unlock()
	if rolled {
		g.persistRollover(ctx)
	}

	return g, nil
}

// IsTradingAllowed checks daily trade count, daily loss and weekly loss in
// that order and returns the first violated rule.
func (g *Gate) IsTradingAllowed(ctx context.Context) Decision {
	g.mu.Lock()
	rolled := g.rolloverLocked()
	d := g.evaluateLocked()
	g.mu.Unlock()

	if rolled {
		g.persistRollover(ctx)
	}
	return d
}

func (g *Gate) evaluateLocked() Decision {
	l := g.cfg.Limits
	if l.MaxTradesPerDay > 0 && g.state.TradeCountToday >= l.MaxTradesPerDay {
		return Decision{Reason: ReasonDailyTradeLimit}
	}
	if l.MaxDailyLossSOL > 0 && g.state.PnlToday <= -l.MaxDailyLossSOL {
		return Decision{Reason: ReasonDailyLossLimit}
	}
	if l.MaxWeeklyLossSOL > 0 && g.state.PnlThisWeek <= -l.MaxWeeklyLossSOL {
		return Decision{Reason: ReasonWeeklyLossLimit}
	}
	return Decision{Allowed: true}
}

// RecordTrade counts one opened position.
func (g *Gate) RecordTrade(ctx context.Context) error {
	g.mu.Lock()
	g.rolloverLocked()
	g.state.TradeCountToday++
	g.state.UpdatedAt = g.cfg.Now()
	g.mu.Unlock()

	return g.persist(ctx)
}

// RecordRealizedPnl adds delta to daily and weekly P&L.
func (g *Gate) RecordRealizedPnl(ctx context.Context, delta float64) error {
	g.mu.Lock()
	g.rolloverLocked()
	g.state.PnlToday += delta
	g.state.PnlThisWeek += delta
	g.state.UpdatedAt = g.cfg.Now()
	g.mu.Unlock()

	return g.persist(ctx)
}

// ResetWeekly clears weekly P&L. Driven by the scheduled weekly job.
func (g *Gate) ResetWeekly(ctx context.Context) error {
	g.mu.Lock()
	g.rolloverLocked()
	g.state.PnlThisWeek = 0
	g.state.UpdatedAt = g.cfg.Now()
	g.mu.Unlock()

	g.cfg.Logger.Info().Msg("weekly pnl reset")
	return g.persist(ctx)
}

// Snapshot returns the current state after applying any pending day rollover.
func (g *Gate) Snapshot() domain.RiskState {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked()
	return g.state
}

// Limits returns the configured limits.
func (g *Gate) Limits() Limits {
	return g.cfg.Limits
}

// rolloverLocked resets daily counters when the day token changed.
func (g *Gate) rolloverLocked() bool {
	today := g.dayToken(g.cfg.Now())
	if g.state.Day == today {
		return false
	}

	g.cfg.Logger.Info().
		Str("from", g.state.Day).
		Str("to", today).
		Int("trades", g.state.TradeCountToday).
		Float64("pnl", g.state.PnlToday).
		Msg("day rollover")

	g.state.Day = today
	g.state.TradeCountToday = 0
	g.state.PnlToday = 0
	g.state.UpdatedAt = g.cfg.Now()
	return true
}

func (g *Gate) dayToken(t time.Time) string {
	return t.In(g.cfg.Location).Format(time.DateOnly)
}

// persistRollover writes a rolled-over day through. Callers that only read
// have no error path, so a failure is logged here.
func (g *Gate) persistRollover(ctx context.Context) {
	if err := g.persist(ctx); err != nil {
		g.cfg.Logger.Warn().Err(err).Str("day", g.Snapshot().Day).Msg("persist rolled-over risk state failed")
	}
}

// persist writes the current state through to the store. Memory stays
// authoritative when the write fails.
func (g *Gate) persist(ctx context.Context) error {
	if g.cfg.Store == nil {
		return nil
	}

	g.persistMu.Lock()
	defer g.persistMu.Unlock()

	g.mu.Lock()
	st := g.state
	g.mu.Unlock()

	if err := g.cfg.Store.Save(ctx, &st); err != nil {
		return fmt.Errorf("save risk state: %w", err)
	}
	return nil
}
