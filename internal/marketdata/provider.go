package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"solana-token-trader/internal/domain"
)

// PriceSource returns a spot price or nil when the mint has no route.
type PriceSource interface {
	Price(ctx context.Context, mint string) (*domain.PriceSample, error)
}

// CandleSource returns OHLCV bars, oldest first.
type CandleSource interface {
	FetchCandles(ctx context.Context, mint string, intervalSec, count int) ([]domain.Candle, error)
}

// Config configures a Provider.
type Config struct {
	// FallbackInterval is the bar size used when the price source has no
	// route. A bar older than two intervals is not a price. Zero disables
	// the fallback.
	FallbackInterval time.Duration
	Logger           zerolog.Logger
	Now              func() time.Time
}

// Provider combines a quote-based price source with a candle source.
type Provider struct {
	prices  PriceSource
	candles CandleSource
	cfg     Config
}

// NewProvider creates a market data provider.
func NewProvider(prices PriceSource, candles CandleSource, cfg Config) *Provider {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Provider{prices: prices, candles: candles, cfg: cfg}
}

// FetchPrice returns the current price, or nil when neither source has data.
func (p *Provider) FetchPrice(ctx context.Context, mint string) (*domain.PriceSample, error) {
	sample, err := p.prices.Price(ctx, mint)
	if err != nil {
		return nil, err
	}
	if sample != nil && sample.Price > 0 {
		return sample, nil
	}
	if p.cfg.FallbackInterval <= 0 {
		return nil, nil
	}

	sec := int(p.cfg.FallbackInterval / time.Second)
	bars, err := p.candles.FetchCandles(ctx, mint, sec, 1)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}
	last := bars[len(bars)-1]
	if p.cfg.Now().Sub(last.Timestamp) > 2*p.cfg.FallbackInterval {
		p.cfg.Logger.Debug().Str("mint", mint).Time("bar", last.Timestamp).Msg("latest candle too old for a price")
		return nil, nil
	}
	return &domain.PriceSample{Price: last.Close, Timestamp: last.Timestamp}, nil
}

// FetchCandles delegates to the candle source.
func (p *Provider) FetchCandles(ctx context.Context, mint string, intervalSec, count int) ([]domain.Candle, error) {
	return p.candles.FetchCandles(ctx, mint, intervalSec, count)
}
