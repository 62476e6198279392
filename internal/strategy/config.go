package strategy

import (
	"errors"
	"time"
)

// Config errors.
var (
	ErrInvalidStopLoss   = errors.New("exit config: StopLossPct must be negative")
	ErrInvalidTP1        = errors.New("exit config: TP1Pct must be positive")
	ErrInvalidTP2        = errors.New("exit config: TP2Pct must exceed TP1Pct")
	ErrInvalidSellPct    = errors.New("exit config: rung sell percent must be in (0, 100)")
	ErrInvalidTrailPct   = errors.New("exit config: RunnerTrailPct must be in (0, 100)")
	ErrNegativeDuration  = errors.New("exit config: durations must not be negative")
	ErrInvalidStallRange = errors.New("exit config: stall settings must not be negative")
)

// Config holds the exit rule thresholds. Percentages are in percent units
// relative to the entry price (e.g. -6 means 6% below entry).
type Config struct {
	StopLossPct float64 // full exit when P&L% <= StopLossPct

	NoNewHighTimeout time.Duration // time stop: no new high for this long while losing; 0 disables
	MaxHoldTime      time.Duration // kill-switch: held this long without profit; 0 disables

	TP1Pct     float64 // first rung trigger
	TP1SellPct float64 // percent of remaining to sell at TP1
	TP2Pct     float64 // second rung trigger
	TP2SellPct float64 // percent of remaining to sell at TP2

	RunnerTrailPct float64 // runner exit on drawdown from highest price

	StallCandles  int     // candles inspected for momentum stall; 0 disables
	StallRangePct float64 // max (high-low)/low range across stall window
}

// DefaultConfig returns the production exit thresholds.
func DefaultConfig() Config {
	return Config{
		StopLossPct:      -6,
		NoNewHighTimeout: 5 * time.Minute,
		MaxHoldTime:      15 * time.Minute,
		TP1Pct:           20,
		TP1SellPct:       40,
		TP2Pct:           35,
		TP2SellPct:       30,
		RunnerTrailPct:   10,
		StallCandles:     3,
		StallRangePct:    2,
	}
}

// Validate checks the thresholds for internal consistency.
func (c Config) Validate() error {
	if c.StopLossPct >= 0 {
		return ErrInvalidStopLoss
	}
	if c.TP1Pct <= 0 {
		return ErrInvalidTP1
	}
	if c.TP2Pct <= c.TP1Pct {
		return ErrInvalidTP2
	}
	for _, pct := range []float64{c.TP1SellPct, c.TP2SellPct} {
		if pct <= 0 || pct >= 100 {
			return ErrInvalidSellPct
		}
	}
	if c.RunnerTrailPct <= 0 || c.RunnerTrailPct >= 100 {
		return ErrInvalidTrailPct
	}
	if c.NoNewHighTimeout < 0 || c.MaxHoldTime < 0 {
		return ErrNegativeDuration
	}
	if c.StallCandles < 0 || c.StallRangePct < 0 {
		return ErrInvalidStallRange
	}
	return nil
}
