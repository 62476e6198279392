// Package marketdata provides prices and candles for open and candidate
// mints.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"solana-token-trader/internal/domain"
	"solana-token-trader/internal/observability"
	"solana-token-trader/internal/retry"
)

// DefaultCandlesURL is the pump.fun frontend API base.
const DefaultCandlesURL = "https://frontend-api-v3.pump.fun"

// CandleClient fetches OHLCV bars from a pump.fun-style candlestick endpoint:
//
//	GET {base}/candlesticks/{mint}?offset=0&limit={count}&timeframe={seconds}
type CandleClient struct {
	baseURL string
	client  *http.Client
	policy  retry.Policy
	metrics *observability.Metrics
}

// NewCandleClient creates a candle client. Zero timeout uses 10s.
func NewCandleClient(baseURL string, timeout time.Duration, policy retry.Policy, m *observability.Metrics) *CandleClient {
	if baseURL == "" {
		baseURL = DefaultCandlesURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CandleClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		policy:  policy,
		metrics: m,
	}
}

// candleJSON is one bar as served by the endpoint. Timestamps are unix
// seconds; prices are SOL per token.
type candleJSON struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// FetchCandles returns up to count bars of intervalSec, oldest first.
// An unknown mint yields an empty slice.
func (c *CandleClient) FetchCandles(ctx context.Context, mint string, intervalSec, count int) (candles []domain.Candle, err error) {
	if intervalSec <= 0 || count <= 0 {
		return nil, fmt.Errorf("candles: invalid interval %d or count %d", intervalSec, count)
	}
	start := time.Now()
	defer func() {
		c.metrics.RecordExternalCall("candles", "fetch", time.Since(start), err)
	}()

	q := url.Values{}
	q.Set("offset", "0")
	q.Set("limit", strconv.Itoa(count))
	q.Set("timeframe", strconv.Itoa(intervalSec))
	endpoint := fmt.Sprintf("%s/candlesticks/%s?%s", c.baseURL, url.PathEscape(mint), q.Encode())

	var raw []candleJSON
	err = retry.Do(ctx, c.policy, func(ctx context.Context) error {
		bars, notFound, err := c.get(ctx, endpoint)
		if err != nil {
			return err
		}
		if !notFound {
			raw = bars
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("candles for %s: %w", mint, err)
	}

	candles = make([]domain.Candle, 0, len(raw))
	for _, r := range raw {
		if r.Close <= 0 {
			continue
		}
		candles = append(candles, domain.Candle{
			Timestamp: time.Unix(r.Timestamp, 0).UTC(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	if len(candles) > count {
		candles = candles[len(candles)-count:]
	}
	return candles, nil
}

func (c *CandleClient) get(ctx context.Context, endpoint string) ([]candleJSON, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, true, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, false, fmt.Errorf("http status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, retry.Permanent(fmt.Errorf("http status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read response: %w", err)
	}
	var out []candleJSON
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, false, retry.Permanent(fmt.Errorf("unmarshal candles: %w", err))
	}
	return out, false, nil
}
