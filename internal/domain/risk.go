package domain

import "time"

// RiskState holds process-wide trading counters.
// Day is a YYYY-MM-DD token in the gate's configured location.
type RiskState struct {
	Day             string
	TradeCountToday int
	PnlToday        float64
	PnlThisWeek     float64
	UpdatedAt       time.Time
}
