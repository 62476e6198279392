package jupiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solana-token-trader/internal/domain"
	"solana-token-trader/internal/solana"
)

// DefaultProbeSOL is the SOL amount quoted to derive a spot price.
const DefaultProbeSOL = 0.01

// PriceSource derives SOL-per-token prices from small buy quotes.
type PriceSource struct {
	client   *Client
	probeSOL float64
	now      func() time.Time
}

// NewPriceSource creates a price source quoting probeSOL (0 = DefaultProbeSOL).
func NewPriceSource(client *Client, probeSOL float64) *PriceSource {
	if probeSOL <= 0 {
		probeSOL = DefaultProbeSOL
	}
	return &PriceSource{client: client, probeSOL: probeSOL, now: time.Now}
}

// Price returns the current price of mint, or nil when no route exists.
func (s *PriceSource) Price(ctx context.Context, mint string) (*domain.PriceSample, error) {
	decimals, err := s.client.tokenDecimals(ctx, mint)
	if err != nil {
		return nil, err
	}

	q, err := s.client.quote(ctx, solana.WrappedSOLMint, mint, toRaw(s.probeSOL, 9), 100)
	if errors.Is(err, ErrNoRoute) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("price quote: %w", err)
	}

	qty, err := fromRaw(q.OutAmount, decimals)
	if err != nil {
		return nil, fmt.Errorf("price quote: %w", err)
	}
	if qty <= 0 {
		return nil, nil
	}
	return &domain.PriceSample{Price: s.probeSOL / qty, Timestamp: s.now()}, nil
}
