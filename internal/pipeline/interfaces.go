package pipeline

import (
	"context"

	"solana-token-trader/internal/domain"
)

// MarketData provides live prices and candles.
type MarketData interface {
	// FetchPrice returns nil, nil when no price is available.
	FetchPrice(ctx context.Context, mint string) (*domain.PriceSample, error)
	// FetchCandles returns an empty slice when no data is available.
	FetchCandles(ctx context.Context, mint string, intervalSec, count int) ([]domain.Candle, error)
}

// Checks gates a candidate before capital is committed.
type Checks interface {
	QuickPreCheck(ctx context.Context, c domain.Candidate) (domain.PreCheckResult, error)
	RunFullChecklist(ctx context.Context, mint string) (domain.ChecklistResult, error)
}

// Executor places swaps and reports the wallet balance.
type Executor interface {
	Buy(ctx context.Context, mint string, capitalSOL, slippagePct float64) domain.BuyResult
	Sell(ctx context.Context, mint string, quantity, slippagePct float64) domain.SellResult
	Balance(ctx context.Context) (float64, error)
}
