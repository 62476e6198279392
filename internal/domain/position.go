package domain

import "time"

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionStatusPendingEntry PositionStatus = "pending_entry"
	PositionStatusPartialFill  PositionStatus = "partial_fill"
	PositionStatusActive       PositionStatus = "active"
	PositionStatusPartialExit  PositionStatus = "partial_exit"
	PositionStatusClosed       PositionStatus = "closed"
)

// IsOpen reports whether the position still holds tokens.
func (s PositionStatus) IsOpen() bool {
	return s != PositionStatusClosed
}

// Tranche is one buy fill contributing to a position's cost basis.
type Tranche struct {
	Size      float64   // capital committed (SOL)
	Price     float64   // fill price (SOL per token)
	Quantity  float64   // Size / Price
	Timestamp time.Time // fill time
	Signature string    // execution signature (optional)
}

// Rungs records which take-profit rungs have fired. Flags only move from
// false to true.
type Rungs struct {
	TP1 bool `json:"tp1"`
	TP2 bool `json:"tp2"`
}

// Position is an open or partially closed trade.
type Position struct {
	ID     string
	Mint   string
	Symbol string

	EntryPrice   float64 // CostBasis / Quantity
	CurrentPrice float64
	Quantity     float64 // tokens held
	CostBasis    float64 // capital still at risk (SOL)

	ClosedQuantity   float64 // tokens sold so far
	RealizedPnl      float64 // cumulative realized P&L (SOL)
	UnrealizedPnl    float64 // Quantity*CurrentPrice - CostBasis
	UnrealizedPnlPct float64 // UnrealizedPnl / CostBasis * 100

	HighestPrice   float64
	HighestPriceAt time.Time
	EntryTime      time.Time
	UpdatedAt      time.Time

	Tranches []Tranche
	RungsHit Rungs
	Status   PositionStatus
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Tranches = append([]Tranche(nil), p.Tranches...)
	return &cp
}

// TrancheQuantity returns the sum of quantity over all tranches.
func (p *Position) TrancheQuantity() float64 {
	var q float64
	for _, t := range p.Tranches {
		q += t.Quantity
	}
	return q
}
