package strategy

import (
	"errors"
	"testing"
	"time"

	"solana-token-trader/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func openPosition(entry, current float64) *domain.Position {
	return &domain.Position{
		ID:           "pos-1",
		Mint:         "mint-1",
		EntryPrice:   entry,
		CurrentPrice: current,
		HighestPrice: max(entry, current),
		Quantity:     100,
		CostBasis:    entry * 100,
		Status:       domain.PositionStatusActive,
	}
}

func assertDecision(t *testing.T, got domain.ExitDecision, action domain.ExitAction, reason domain.ExitReason, pct float64) {
	t.Helper()
	if got.Action != action || got.Reason != reason || got.PercentToSell != pct {
		t.Errorf("decision = %+v, want {%s %s %v}", got, action, reason, pct)
	}
}

func TestEvaluate_StopLoss(t *testing.T) {
	e := newTestEngine(t)

	p := openPosition(1.0, 0.93)
	got := e.Evaluate(Input{Position: p})

	assertDecision(t, got, domain.ExitActionFullExit, domain.ExitReasonStopLoss, 100)
}

func TestEvaluate_StopLossExactlyOnThreshold(t *testing.T) {
	e := newTestEngine(t)

	got := e.Evaluate(Input{Position: openPosition(1.0, 0.94)})

	assertDecision(t, got, domain.ExitActionFullExit, domain.ExitReasonStopLoss, 100)
}

func TestEvaluate_HoldInsideBand(t *testing.T) {
	e := newTestEngine(t)

	for _, price := range []float64{0.95, 1.0, 1.1, 1.19} {
		got := e.Evaluate(Input{Position: openPosition(1.0, price)})
		if got.Action != domain.ExitActionHold {
			t.Errorf("price %v: got %+v, want hold", price, got)
		}
	}
}

func TestEvaluate_TakeProfitLadder(t *testing.T) {
	e := newTestEngine(t)
	p := openPosition(1.0, 1.20)

	// +20% fires TP1.
	got := e.Evaluate(Input{Position: p})
	assertDecision(t, got, domain.ExitActionPartialExit, domain.ExitReasonTP1, 40)
	p.RungsHit.TP1 = true

	// Still +20%: TP1 never fires twice.
	got = e.Evaluate(Input{Position: p})
	if got.Action != domain.ExitActionHold {
		t.Fatalf("after TP1: got %+v, want hold", got)
	}

	// +35% fires TP2.
	p.CurrentPrice, p.HighestPrice = 1.35, 1.35
	got = e.Evaluate(Input{Position: p})
	assertDecision(t, got, domain.ExitActionPartialExit, domain.ExitReasonTP2, 30)
	p.RungsHit.TP2 = true

	got = e.Evaluate(Input{Position: p})
	if got.Action != domain.ExitActionHold {
		t.Fatalf("after TP2: got %+v, want hold", got)
	}

	// 11% below the high exits the runner.
	p.CurrentPrice = 1.35 * 0.89
	got = e.Evaluate(Input{Position: p})
	assertDecision(t, got, domain.ExitActionFullExit, domain.ExitReasonRunnerExit, 100)
}

func TestEvaluate_GapThroughBothRungsFiresTP1First(t *testing.T) {
	e := newTestEngine(t)

	got := e.Evaluate(Input{Position: openPosition(1.0, 1.5)})

	assertDecision(t, got, domain.ExitActionPartialExit, domain.ExitReasonTP1, 40)
}

func TestEvaluate_TP2RequiresTP1(t *testing.T) {
	e := newTestEngine(t)
	p := openPosition(1.0, 1.4)
	p.RungsHit.TP2 = true // inconsistent state

	got := e.Evaluate(Input{Position: p})

	assertDecision(t, got, domain.ExitActionPartialExit, domain.ExitReasonTP1, 40)
}

func TestEvaluate_TimeStop(t *testing.T) {
	e := newTestEngine(t)

	t.Run("no new high while losing", func(t *testing.T) {
		got := e.Evaluate(Input{Position: openPosition(1.0, 0.98), SinceLastHigh: 5 * time.Minute})
		assertDecision(t, got, domain.ExitActionFullExit, domain.ExitReasonTimeStop, 100)
	})

	t.Run("no new high while winning holds", func(t *testing.T) {
		got := e.Evaluate(Input{Position: openPosition(1.0, 1.05), SinceLastHigh: time.Hour})
		if got.Action != domain.ExitActionHold {
			t.Errorf("got %+v, want hold", got)
		}
	})

	t.Run("kill-switch at breakeven", func(t *testing.T) {
		got := e.Evaluate(Input{Position: openPosition(1.0, 1.0), TimeInTrade: 15 * time.Minute})
		assertDecision(t, got, domain.ExitActionFullExit, domain.ExitReasonTimeStop, 100)
	})

	t.Run("kill-switch skipped in profit", func(t *testing.T) {
		got := e.Evaluate(Input{Position: openPosition(1.0, 1.01), TimeInTrade: time.Hour})
		if got.Action != domain.ExitActionHold {
			t.Errorf("got %+v, want hold", got)
		}
	})
}

func TestEvaluate_Priority(t *testing.T) {
	e := newTestEngine(t)

	t.Run("requested beats stop loss", func(t *testing.T) {
		got := e.Evaluate(Input{Position: openPosition(1.0, 0.5), Requested: domain.ExitReasonDevSell})
		assertDecision(t, got, domain.ExitActionFullExit, domain.ExitReasonDevSell, 100)
	})

	t.Run("requested exit without price", func(t *testing.T) {
		got := e.Evaluate(Input{Position: openPosition(1.0, 0), Requested: domain.ExitReasonManual})
		assertDecision(t, got, domain.ExitActionFullExit, domain.ExitReasonManual, 100)
	})

	t.Run("stop loss beats time stop", func(t *testing.T) {
		got := e.Evaluate(Input{
			Position:      openPosition(1.0, 0.9),
			SinceLastHigh: time.Hour,
			TimeInTrade:   time.Hour,
		})
		assertDecision(t, got, domain.ExitActionFullExit, domain.ExitReasonStopLoss, 100)
	})

	t.Run("stop loss applies to runner", func(t *testing.T) {
		p := openPosition(1.0, 0.9)
		p.HighestPrice = 1.5
		p.RungsHit = domain.Rungs{TP1: true, TP2: true}
		got := e.Evaluate(Input{Position: p})
		assertDecision(t, got, domain.ExitActionFullExit, domain.ExitReasonStopLoss, 100)
	})
}

func TestEvaluate_NoPriceHolds(t *testing.T) {
	e := newTestEngine(t)

	for _, price := range []float64{0, -1} {
		got := e.Evaluate(Input{Position: openPosition(1.0, price), SinceLastHigh: time.Hour})
		if got.Action != domain.ExitActionHold {
			t.Errorf("price %v: got %+v, want hold", price, got)
		}
	}
}

func TestEvaluate_ClosedPositionHolds(t *testing.T) {
	e := newTestEngine(t)
	p := openPosition(1.0, 0.5)
	p.Status = domain.PositionStatusClosed

	if got := e.Evaluate(Input{Position: p}); got.Action != domain.ExitActionHold {
		t.Errorf("got %+v, want hold", got)
	}
	if got := e.Evaluate(Input{}); got.Action != domain.ExitActionHold {
		t.Errorf("nil position: got %+v, want hold", got)
	}
}

func TestEvaluate_RunnerStall(t *testing.T) {
	e := newTestEngine(t)
	p := openPosition(1.2, 1.40)
	p.HighestPrice = 1.45
	p.RungsHit = domain.Rungs{TP1: true, TP2: true}

	flat := []domain.Candle{
		{High: 1.41, Low: 1.39, Volume: 300},
		{High: 1.41, Low: 1.39, Volume: 200},
		{High: 1.41, Low: 1.39, Volume: 100},
	}
	got := e.Evaluate(Input{Position: p, Candles: flat})
	assertDecision(t, got, domain.ExitActionFullExit, domain.ExitReasonRunnerExit, 100)

	rising := []domain.Candle{
		{High: 1.41, Low: 1.39, Volume: 100},
		{High: 1.41, Low: 1.39, Volume: 200},
		{High: 1.41, Low: 1.39, Volume: 300},
	}
	if got := e.Evaluate(Input{Position: p, Candles: rising}); got.Action != domain.ExitActionHold {
		t.Errorf("rising volume: got %+v, want hold", got)
	}

	wide := []domain.Candle{
		{High: 1.50, Low: 1.30, Volume: 300},
		{High: 1.41, Low: 1.39, Volume: 200},
		{High: 1.41, Low: 1.39, Volume: 100},
	}
	if got := e.Evaluate(Input{Position: p, Candles: wide}); got.Action != domain.ExitActionHold {
		t.Errorf("wide range: got %+v, want hold", got)
	}

	// Stall never applies before TP2.
	p.RungsHit.TP2 = false
	if got := e.Evaluate(Input{Position: p, Candles: flat}); got.Action != domain.ExitActionHold {
		t.Errorf("before TP2: got %+v, want hold", got)
	}
}

func TestNewInput(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	p := openPosition(1.0, 1.0)
	p.EntryTime = now.Add(-10 * time.Minute)
	p.HighestPriceAt = now.Add(-4 * time.Minute)

	in := NewInput(p, nil, now)
	if in.TimeInTrade != 10*time.Minute {
		t.Errorf("TimeInTrade = %v", in.TimeInTrade)
	}
	if in.SinceLastHigh != 4*time.Minute {
		t.Errorf("SinceLastHigh = %v", in.SinceLastHigh)
	}

	p.HighestPriceAt = time.Time{}
	in = NewInput(p, nil, now)
	if in.SinceLastHigh != 10*time.Minute {
		t.Errorf("SinceLastHigh without high = %v", in.SinceLastHigh)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"positive stop", func(c *Config) { c.StopLossPct = 5 }, ErrInvalidStopLoss},
		{"zero tp1", func(c *Config) { c.TP1Pct = 0 }, ErrInvalidTP1},
		{"tp2 below tp1", func(c *Config) { c.TP2Pct = 10 }, ErrInvalidTP2},
		{"sell all at tp1", func(c *Config) { c.TP1SellPct = 100 }, ErrInvalidSellPct},
		{"zero tp2 sell", func(c *Config) { c.TP2SellPct = 0 }, ErrInvalidSellPct},
		{"zero trail", func(c *Config) { c.RunnerTrailPct = 0 }, ErrInvalidTrailPct},
		{"negative hold", func(c *Config) { c.MaxHoldTime = -time.Second }, ErrNegativeDuration},
		{"negative stall", func(c *Config) { c.StallCandles = -1 }, ErrInvalidStallRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
			if _, err := NewEngine(cfg); err == nil {
				t.Error("NewEngine accepted invalid config")
			}
		})
	}
}
