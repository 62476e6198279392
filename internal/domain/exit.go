package domain

import "time"

// ExitAction is the action chosen by the exit engine.
type ExitAction string

const (
	ExitActionHold        ExitAction = "hold"
	ExitActionPartialExit ExitAction = "partialExit"
	ExitActionFullExit    ExitAction = "fullExit"
)

// ExitReason is a stable reason code attached to every exit.
type ExitReason string

const (
	ExitReasonNone       ExitReason = ""
	ExitReasonStopLoss   ExitReason = "stop_loss"
	ExitReasonTimeStop   ExitReason = "time_stop"
	ExitReasonTP1        ExitReason = "tp1"
	ExitReasonTP2        ExitReason = "tp2"
	ExitReasonRunnerExit ExitReason = "runner_exit"
	ExitReasonManual     ExitReason = "manual_exit"
	ExitReasonDevSell    ExitReason = "dev_sell_exit"
	ExitReasonWhaleDump  ExitReason = "whale_dump_exit"
	ExitReasonLPRemoval  ExitReason = "lp_removal_exit"
	ExitReasonDailyLimit ExitReason = "daily_limit_exit"
	ExitReasonEmergency  ExitReason = "emergency_exit"
)

var exitReasons = map[ExitReason]bool{
	ExitReasonStopLoss:   true,
	ExitReasonTimeStop:   true,
	ExitReasonTP1:        true,
	ExitReasonTP2:        true,
	ExitReasonRunnerExit: true,
	ExitReasonManual:     true,
	ExitReasonDevSell:    true,
	ExitReasonWhaleDump:  true,
	ExitReasonLPRemoval:  true,
	ExitReasonDailyLimit: true,
	ExitReasonEmergency:  true,
}

// String returns the string representation of ExitReason.
func (r ExitReason) String() string {
	return string(r)
}

// IsValid checks if the reason belongs to the closed enumeration.
func (r ExitReason) IsValid() bool {
	return exitReasons[r]
}

// ExitDecision is the output of the exit engine.
type ExitDecision struct {
	Action        ExitAction
	Reason        ExitReason
	PercentToSell float64 // 0..100
}

// Hold is the decision to do nothing.
func Hold() ExitDecision {
	return ExitDecision{Action: ExitActionHold}
}

// FullExit sells the whole remaining position.
func FullExit(reason ExitReason) ExitDecision {
	return ExitDecision{Action: ExitActionFullExit, Reason: reason, PercentToSell: 100}
}

// PartialExit sells pct percent of the remaining position.
func PartialExit(reason ExitReason, pct float64) ExitDecision {
	return ExitDecision{Action: ExitActionPartialExit, Reason: reason, PercentToSell: pct}
}

// ExitEvent is a journal record of one close or partial close.
type ExitEvent struct {
	EventID      string  // deterministic hash
	PositionID   string
	Mint         string
	Reason       ExitReason
	PercentSold  float64
	QuantitySold float64
	SellPrice    float64
	Proceeds     float64 // SOL received
	RealizedPnl  float64 // proceeds - cost basis released
	Remaining    float64 // quantity left after the close
	Closed       bool    // position fully closed
	Signature    string  // execution signature (optional)
	Timestamp    time.Time
}
