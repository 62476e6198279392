// Package strategy decides when an open position should be sold.
package strategy

import (
	"time"

	"solana-token-trader/internal/domain"
)

// Input is everything the exit engine looks at for one position.
type Input struct {
	Position      *domain.Position
	Candles       []domain.Candle // recent bars, oldest first
	TimeInTrade   time.Duration
	SinceLastHigh time.Duration

	// Requested is an externally requested exit (manual, emergency,
	// dev sell, whale dump, LP removal, daily limit). ExitReasonNone
	// when nothing was requested.
	Requested domain.ExitReason
}

// NewInput builds an Input from the position's own timestamps.
func NewInput(p *domain.Position, candles []domain.Candle, now time.Time) Input {
	in := Input{Position: p, Candles: candles}
	if p == nil {
		return in
	}
	if !p.EntryTime.IsZero() {
		in.TimeInTrade = now.Sub(p.EntryTime)
	}
	lastHigh := p.HighestPriceAt
	if lastHigh.IsZero() {
		lastHigh = p.EntryTime
	}
	if !lastHigh.IsZero() {
		in.SinceLastHigh = now.Sub(lastHigh)
	}
	return in
}

// Engine evaluates exit rules in strict priority order. It is stateless
// and safe for concurrent use; rung state lives on the position.
type Engine struct {
	cfg Config
}

// NewEngine creates an exit engine. The config must pass Validate.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine thresholds.
func (e *Engine) Config() Config {
	return e.cfg
}

// Evaluate returns the first matching rule's decision:
//
//	requested exit > stop loss > time stop > kill-switch > TP1 > TP2 >
//	runner trailing stop > runner momentum stall > hold
//
// A missing or non-positive price always holds unless an exit was requested.
func (e *Engine) Evaluate(in Input) domain.ExitDecision {
	p := in.Position
	if p == nil || !p.Status.IsOpen() || p.Quantity <= 0 {
		return domain.Hold()
	}
	if in.Requested != domain.ExitReasonNone {
		return domain.FullExit(in.Requested)
	}
	if p.CurrentPrice <= 0 || p.EntryPrice <= 0 {
		return domain.Hold()
	}

	pnlPct := (p.CurrentPrice - p.EntryPrice) / p.EntryPrice * 100

	if atLeast(e.cfg.StopLossPct, pnlPct) {
		return domain.FullExit(domain.ExitReasonStopLoss)
	}
	if e.cfg.NoNewHighTimeout > 0 && in.SinceLastHigh >= e.cfg.NoNewHighTimeout && pnlPct < 0 {
		return domain.FullExit(domain.ExitReasonTimeStop)
	}
	if e.cfg.MaxHoldTime > 0 && in.TimeInTrade >= e.cfg.MaxHoldTime && pnlPct <= 0 {
		return domain.FullExit(domain.ExitReasonTimeStop)
	}
	if !p.RungsHit.TP1 && atLeast(pnlPct, e.cfg.TP1Pct) {
		return domain.PartialExit(domain.ExitReasonTP1, e.cfg.TP1SellPct)
	}
	if p.RungsHit.TP1 && !p.RungsHit.TP2 && atLeast(pnlPct, e.cfg.TP2Pct) {
		return domain.PartialExit(domain.ExitReasonTP2, e.cfg.TP2SellPct)
	}
	if p.RungsHit.TP2 {
		if atLeast(drawdownPct(p.HighestPrice, p.CurrentPrice), e.cfg.RunnerTrailPct) {
			return domain.FullExit(domain.ExitReasonRunnerExit)
		}
		if e.stalled(in.Candles) {
			return domain.FullExit(domain.ExitReasonRunnerExit)
		}
	}
	return domain.Hold()
}

// pctEpsilon absorbs float error so a price exactly on a threshold triggers it.
const pctEpsilon = 1e-9

func atLeast(v, threshold float64) bool {
	return v >= threshold-pctEpsilon
}

// drawdownPct is the percent drop from high to current.
func drawdownPct(high, current float64) float64 {
	if high <= 0 || current >= high {
		return 0
	}
	return (high - current) / high * 100
}

// stalled reports a momentum stall over the last StallCandles bars:
// strictly declining volume and a price range within StallRangePct.
func (e *Engine) stalled(candles []domain.Candle) bool {
	n := e.cfg.StallCandles
	if n < 2 || len(candles) < n {
		return false
	}
	window := candles[len(candles)-n:]

	high, low := window[0].High, window[0].Low
	for i, c := range window {
		if i > 0 && c.Volume >= window[i-1].Volume {
			return false
		}
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	if low <= 0 {
		return false
	}
	return (high-low)/low*100 <= e.cfg.StallRangePct
}
