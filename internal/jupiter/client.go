// Package jupiter executes swaps and probes prices through the Jupiter
// aggregator.
package jupiter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	jup "github.com/ilkamo/jupiter-go/jupiter"
	"github.com/shopspring/decimal"

	"solana-token-trader/internal/observability"
	"solana-token-trader/internal/retry"
	"solana-token-trader/internal/solana"
)

// ErrNoRoute is returned when Jupiter cannot route the swap.
var ErrNoRoute = errors.New("jupiter: no route")

// swapAPI is the part of the generated Jupiter client the trader uses.
type swapAPI interface {
	GetQuoteWithResponse(ctx context.Context, params *jup.GetQuoteParams, reqEditors ...jup.RequestEditorFn) (*jup.GetQuoteResponse, error)
	PostSwapWithResponse(ctx context.Context, body jup.PostSwapJSONRequestBody, reqEditors ...jup.RequestEditorFn) (*jup.PostSwapResponse, error)
}

// tokenInfo is the subset of RPC the client needs for unit conversion.
type tokenInfo interface {
	GetTokenSupply(ctx context.Context, mint string) (*solana.TokenAmount, error)
}

// Client wraps the Jupiter API with retries, metrics and unit conversion.
type Client struct {
	api     swapAPI
	tokens  tokenInfo
	policy  retry.Policy
	metrics *observability.Metrics

	mu       sync.Mutex
	decimals map[string]int32
}

// NewClient creates a client for apiURL (empty = jup.DefaultAPIURL).
func NewClient(apiURL string, tokens tokenInfo, policy retry.Policy, m *observability.Metrics) (*Client, error) {
	if apiURL == "" {
		apiURL = jup.DefaultAPIURL
	}
	api, err := jup.NewClientWithResponses(apiURL)
	if err != nil {
		return nil, fmt.Errorf("create jupiter client: %w", err)
	}
	return newClient(api, tokens, policy, m), nil
}

func newClient(api swapAPI, tokens tokenInfo, policy retry.Policy, m *observability.Metrics) *Client {
	return &Client{
		api:      api,
		tokens:   tokens,
		policy:   policy,
		metrics:  m,
		decimals: make(map[string]int32),
	}
}

// quote requests a route for amount raw units of input.
func (c *Client) quote(ctx context.Context, input, output string, amount int64, slippageBps int) (q *jup.QuoteResponse, err error) {
	if amount <= 0 {
		return nil, fmt.Errorf("jupiter: non-positive amount %d", amount)
	}
	start := time.Now()
	defer func() {
		c.metrics.RecordExternalCall("jupiter", "quote", time.Since(start), err)
	}()

	err = retry.Do(ctx, c.policy, func(ctx context.Context) error {
		resp, err := c.api.GetQuoteWithResponse(ctx, &jup.GetQuoteParams{
			InputMint:   input,
			OutputMint:  output,
			Amount:      int(amount),
			SlippageBps: &slippageBps,
		})
		if err != nil {
			return err
		}
		if resp.JSON200 != nil {
			q = resp.JSON200
			return nil
		}
		return classify(resp.StatusCode(), "quote")
	})
	return q, err
}

// swapTransaction builds the unsigned swap transaction for a quote.
func (c *Client) swapTransaction(ctx context.Context, q *jup.QuoteResponse, user string) (tx string, err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordExternalCall("jupiter", "swap", time.Since(start), err)
	}()

	fee := jup.SwapRequest_PrioritizationFeeLamports{}
	if err := fee.UnmarshalJSON([]byte(`"auto"`)); err != nil {
		return "", fmt.Errorf("set prioritization fee: %w", err)
	}
	dynamicComputeUnitLimit := true

	err = retry.Do(ctx, c.policy, func(ctx context.Context) error {
		resp, err := c.api.PostSwapWithResponse(ctx, jup.PostSwapJSONRequestBody{
			QuoteResponse:             *q,
			UserPublicKey:             user,
			PrioritizationFeeLamports: &fee,
			DynamicComputeUnitLimit:   &dynamicComputeUnitLimit,
		})
		if err != nil {
			return err
		}
		if resp.JSON200 != nil {
			tx = resp.JSON200.SwapTransaction
			return nil
		}
		return classify(resp.StatusCode(), "swap")
	})
	return tx, err
}

// classify turns a non-200 status into a retryable or permanent error.
func classify(status int, op string) error {
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("jupiter %s: status %d", op, status)
	case status == http.StatusBadRequest || status == http.StatusNotFound:
		return retry.Permanent(fmt.Errorf("%w (%s status %d)", ErrNoRoute, op, status))
	default:
		return retry.Permanent(fmt.Errorf("jupiter %s: status %d", op, status))
	}
}

// tokenDecimals returns the mint's decimals, cached after the first lookup.
func (c *Client) tokenDecimals(ctx context.Context, mint string) (int32, error) {
	if mint == solana.WrappedSOLMint {
		return 9, nil
	}

	c.mu.Lock()
	d, ok := c.decimals[mint]
	c.mu.Unlock()
	if ok {
		return d, nil
	}

	supply, err := c.tokens.GetTokenSupply(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("token decimals for %s: %w", mint, err)
	}
	if supply == nil {
		return 0, fmt.Errorf("token decimals for %s: mint not found", mint)
	}
	d = int32(supply.Decimals)

	c.mu.Lock()
	c.decimals[mint] = d
	c.mu.Unlock()
	return d, nil
}

// toRaw converts a UI amount to integer base units, rounding down.
func toRaw(ui float64, decimals int32) int64 {
	return decimal.NewFromFloat(ui).Shift(decimals).Floor().IntPart()
}

// fromRaw converts an integer base-unit string to a UI amount.
func fromRaw(raw string, decimals int32) (float64, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return d.Shift(-decimals).InexactFloat64(), nil
}

func slippageBps(pct float64) int {
	return int(decimal.NewFromFloat(pct).Shift(2).Round(0).IntPart())
}
