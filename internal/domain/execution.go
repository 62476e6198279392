package domain

// PreCheckResult is the outcome of the cheap pre-filter.
type PreCheckResult struct {
	ShouldAnalyze bool
	Reason        string // set when ShouldAnalyze is false
}

// ChecklistResult is the outcome of the full gating checklist.
type ChecklistResult struct {
	Passed         bool
	FailureReasons []string
}

// BuyResult is returned by an execution provider after a buy.
// QuantityReceived and Price are meaningful only when Success is true.
type BuyResult struct {
	Success          bool
	Signature        string
	QuantityReceived float64 // tokens
	Price            float64 // effective SOL per token
	Err              error
}

// SellResult is returned by an execution provider after a sell.
type SellResult struct {
	Success   bool
	Signature string
	Proceeds  float64 // SOL received
	Err       error
}
