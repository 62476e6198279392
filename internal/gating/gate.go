// Package gating decides whether a candidate is worth capital: a cheap
// pre-check on the discovery snapshot and a full on-chain checklist.
package gating

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"solana-token-trader/internal/domain"
	"solana-token-trader/internal/solana"
)

// Pre-check rejection reasons.
const (
	ReasonInvalidMint       = "invalid_mint"
	ReasonTooYoung          = "too_young"
	ReasonTooOld            = "too_old"
	ReasonCurveProgressLow  = "curve_progress_low"
	ReasonCurveProgressHigh = "curve_progress_high"
	ReasonMarketCapLow      = "market_cap_low"
	ReasonMarketCapHigh     = "market_cap_high"
	ReasonTooFewTrades      = "too_few_trades"
)

// Checklist failure reasons.
const (
	FailMintNotFound    = "mint_not_found"
	FailMintAuthority   = "mint_authority_active"
	FailFreezeAuthority = "freeze_authority_active"
	FailSingleHolder    = "single_holder_concentration"
	FailTopHolders      = "top_holder_concentration"
	FailNoPriceHistory  = "no_price_history"
	FailNoMomentum      = "no_momentum"
	FailNoVolume        = "no_volume"
)

// Config holds gating thresholds. Zero disables a bound.
type Config struct {
	MinAge              time.Duration
	MaxAge              time.Duration
	MinCurveProgressPct float64
	MaxCurveProgressPct float64
	MinMarketCapSOL     float64
	MaxMarketCapSOL     float64
	MinTradeCount       int64

	RequireMintRevoked   bool
	RequireFreezeRevoked bool
	MaxSingleHolderPct   float64 // largest non-curve holder
	MaxTopHoldersPct     float64 // sum of the TopHolders largest non-curve holders
	TopHolders           int

	MomentumInterval time.Duration // candle size for the momentum rule
	MomentumCandles  int           // 0 disables the momentum rule

	Logger zerolog.Logger
	Now    func() time.Time
}

// DefaultConfig returns conservative defaults for pump.fun launches.
func DefaultConfig() Config {
	return Config{
		MinAge:               30 * time.Second,
		MaxAge:               30 * time.Minute,
		MinCurveProgressPct:  5,
		MaxCurveProgressPct:  85,
		MinMarketCapSOL:      25,
		MaxMarketCapSOL:      400,
		RequireMintRevoked:   true,
		RequireFreezeRevoked: true,
		MaxSingleHolderPct:   10,
		MaxTopHoldersPct:     35,
		TopHolders:           10,
		MomentumInterval:     time.Minute,
		MomentumCandles:      5,
	}
}

// Chain is the on-chain data the checklist reads.
type Chain interface {
	GetAccountInfo(ctx context.Context, pubkey string) (*solana.AccountInfo, error)
	GetTokenLargestAccounts(ctx context.Context, mint string) ([]solana.TokenAccountBalance, error)
	GetTokenSupply(ctx context.Context, mint string) (*solana.TokenAmount, error)
}

// Candles supplies recent OHLCV bars, oldest first.
type Candles interface {
	FetchCandles(ctx context.Context, mint string, intervalSec, count int) ([]domain.Candle, error)
}

// Gate implements the pre-check and the full checklist.
type Gate struct {
	cfg     Config
	chain   Chain
	candles Candles
}

// New creates a gate.
func New(cfg Config, chain Chain, candles Candles) *Gate {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TopHolders <= 0 {
		cfg.TopHolders = 10
	}
	return &Gate{cfg: cfg, chain: chain, candles: candles}
}

// QuickPreCheck filters on the discovery snapshot. A missing snapshot field
// skips its rule. It never performs I/O.
func (g *Gate) QuickPreCheck(_ context.Context, c domain.Candidate) (domain.PreCheckResult, error) {
	reject := func(reason string) (domain.PreCheckResult, error) {
		return domain.PreCheckResult{Reason: reason}, nil
	}

	if !solana.ValidAddress(c.Mint) {
		return reject(ReasonInvalidMint)
	}

	s := c.Snapshot
	if age, ok := s.Age(g.cfg.Now()); ok {
		if g.cfg.MinAge > 0 && age < g.cfg.MinAge {
			return reject(ReasonTooYoung)
		}
		if g.cfg.MaxAge > 0 && age > g.cfg.MaxAge {
			return reject(ReasonTooOld)
		}
	}
	if p := s.BondingCurveProgress; p != nil {
		if g.cfg.MinCurveProgressPct > 0 && *p < g.cfg.MinCurveProgressPct {
			return reject(ReasonCurveProgressLow)
		}
		if g.cfg.MaxCurveProgressPct > 0 && *p > g.cfg.MaxCurveProgressPct {
			return reject(ReasonCurveProgressHigh)
		}
	}
	if mc := s.MarketCapSOL; mc != nil {
		if g.cfg.MinMarketCapSOL > 0 && *mc < g.cfg.MinMarketCapSOL {
			return reject(ReasonMarketCapLow)
		}
		if g.cfg.MaxMarketCapSOL > 0 && *mc > g.cfg.MaxMarketCapSOL {
			return reject(ReasonMarketCapHigh)
		}
	}
	if n := s.TradeCount; n != nil && g.cfg.MinTradeCount > 0 && *n < g.cfg.MinTradeCount {
		return reject(ReasonTooFewTrades)
	}

	return domain.PreCheckResult{ShouldAnalyze: true}, nil
}
