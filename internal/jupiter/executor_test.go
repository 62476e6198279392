package jupiter

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	jup "github.com/ilkamo/jupiter-go/jupiter"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-trader/internal/retry"
	"solana-token-trader/internal/solana"
)

const testMint = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

var fastRetry = retry.Policy{
	InitialInterval: time.Millisecond,
	MaxInterval:     5 * time.Millisecond,
	MaxRetries:      2,
}

// fakeAPI answers quotes with outAmount, or statuses in order when set.
type fakeAPI struct {
	mu        sync.Mutex
	outAmount string
	statuses  []int
	quotes    []jup.GetQuoteParams
	swaps     int
}

func (f *fakeAPI) GetQuoteWithResponse(_ context.Context, params *jup.GetQuoteParams, _ ...jup.RequestEditorFn) (*jup.GetQuoteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes = append(f.quotes, *params)

	status := http.StatusOK
	if len(f.statuses) > 0 {
		status = f.statuses[0]
		f.statuses = f.statuses[1:]
	}
	resp := &jup.GetQuoteResponse{HTTPResponse: &http.Response{StatusCode: status}}
	if status == http.StatusOK {
		resp.JSON200 = &jup.QuoteResponse{OutAmount: f.outAmount}
	}
	return resp, nil
}

func (f *fakeAPI) PostSwapWithResponse(context.Context, jup.PostSwapJSONRequestBody, ...jup.RequestEditorFn) (*jup.PostSwapResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swaps++
	return &jup.PostSwapResponse{HTTPResponse: &http.Response{StatusCode: http.StatusInternalServerError}}, nil
}

type fakeTokens struct {
	decimals uint8
	calls    int
	err      error
}

func (f *fakeTokens) GetTokenSupply(context.Context, string) (*solana.TokenAmount, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &solana.TokenAmount{Amount: "1000000000000000", Decimals: f.decimals}, nil
}

type fakeChain struct {
	lamports uint64
}

func (f *fakeChain) GetBalance(context.Context, string) (uint64, error) { return f.lamports, nil }
func (f *fakeChain) SendTransaction(context.Context, string) (string, error) {
	return "", errors.New("not expected")
}
func (f *fakeChain) GetSignatureStatuses(context.Context, []string) ([]*solana.SignatureStatus, error) {
	return nil, nil
}

func newDryRun(t *testing.T, api *fakeAPI, tokens *fakeTokens) *Executor {
	t.Helper()
	exec, err := NewExecutor(newClient(api, tokens, fastRetry, nil), &fakeChain{}, ExecutorConfig{
		DryRun:        true,
		DryRunBalance: 1.5,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)
	return exec
}

func TestExecutor_DryRunBuy(t *testing.T) {
	// 0.15 SOL buys 1500 tokens with 6 decimals.
	api := &fakeAPI{outAmount: "1500000000"}
	tokens := &fakeTokens{decimals: 6}
	exec := newDryRun(t, api, tokens)

	res := exec.Buy(context.Background(), testMint, 0.15, 15)
	require.True(t, res.Success, "err: %v", res.Err)
	assert.InDelta(t, 1500.0, res.QuantityReceived, 1e-9)
	assert.InDelta(t, 0.0001, res.Price, 1e-12)
	assert.Contains(t, res.Signature, "dry-run-")

	require.Len(t, api.quotes, 1)
	q := api.quotes[0]
	assert.Equal(t, solana.WrappedSOLMint, q.InputMint)
	assert.Equal(t, testMint, q.OutputMint)
	assert.Equal(t, 150_000_000, int(q.Amount))
	require.NotNil(t, q.SlippageBps)
	assert.Equal(t, 1500, *q.SlippageBps)
	assert.Zero(t, api.swaps, "dry run must not build a swap")
}

func TestExecutor_DryRunSell(t *testing.T) {
	// 0.2 SOL proceeds.
	api := &fakeAPI{outAmount: "200000000"}
	exec := newDryRun(t, api, &fakeTokens{decimals: 6})

	res := exec.Sell(context.Background(), testMint, 1500, 20)
	require.True(t, res.Success, "err: %v", res.Err)
	assert.InDelta(t, 0.2, res.Proceeds, 1e-12)

	q := api.quotes[0]
	assert.Equal(t, testMint, q.InputMint)
	assert.Equal(t, solana.WrappedSOLMint, q.OutputMint)
	assert.Equal(t, 1_500_000_000, int(q.Amount))
}

func TestExecutor_NoRoute(t *testing.T) {
	api := &fakeAPI{statuses: []int{http.StatusBadRequest}}
	exec := newDryRun(t, api, &fakeTokens{decimals: 6})

	res := exec.Buy(context.Background(), testMint, 0.1, 15)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrNoRoute)
	assert.Len(t, api.quotes, 1, "no-route is not retried")
}

func TestExecutor_QuoteRetried(t *testing.T) {
	api := &fakeAPI{outAmount: "1000", statuses: []int{http.StatusTooManyRequests, http.StatusBadGateway}}
	exec := newDryRun(t, api, &fakeTokens{decimals: 0})

	res := exec.Buy(context.Background(), testMint, 0.1, 15)
	require.True(t, res.Success, "err: %v", res.Err)
	assert.Len(t, api.quotes, 3)
}

func TestExecutor_QuoteExhausted(t *testing.T) {
	api := &fakeAPI{statuses: []int{503, 503, 503, 503}}
	exec := newDryRun(t, api, &fakeTokens{decimals: 0})

	res := exec.Buy(context.Background(), testMint, 0.1, 15)
	assert.False(t, res.Success)
	assert.True(t, retry.IsExhausted(res.Err))
}

func TestExecutor_DecimalsCached(t *testing.T) {
	api := &fakeAPI{outAmount: "1000"}
	tokens := &fakeTokens{decimals: 3}
	exec := newDryRun(t, api, tokens)

	exec.Buy(context.Background(), testMint, 0.1, 15)
	exec.Sell(context.Background(), testMint, 1, 15)
	assert.Equal(t, 1, tokens.calls)
}

func TestExecutor_DecimalsError(t *testing.T) {
	exec := newDryRun(t, &fakeAPI{outAmount: "1"}, &fakeTokens{err: errors.New("rpc down")})

	res := exec.Sell(context.Background(), testMint, 1, 15)
	assert.False(t, res.Success)
	assert.ErrorContains(t, res.Err, "rpc down")
}

func TestExecutor_Balance(t *testing.T) {
	exec := newDryRun(t, &fakeAPI{}, &fakeTokens{})
	bal, err := exec.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.5, bal)

	kp, err := solana.NewKeypairFromSeed(make([]byte, 32))
	require.NoError(t, err)
	live, err := NewExecutor(newClient(&fakeAPI{}, &fakeTokens{}, fastRetry, nil), &fakeChain{lamports: 2_500_000_000}, ExecutorConfig{
		Wallet: kp,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	bal, err = live.Balance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2.5, bal, 1e-12)
}

func TestNewExecutor_RequiresWallet(t *testing.T) {
	_, err := NewExecutor(newClient(&fakeAPI{}, &fakeTokens{}, fastRetry, nil), &fakeChain{}, ExecutorConfig{})
	assert.ErrorIs(t, err, ErrNoWallet)
}

func TestExecutor_LiveSwapFailure(t *testing.T) {
	kp, err := solana.NewKeypairFromSeed(make([]byte, 32))
	require.NoError(t, err)
	api := &fakeAPI{outAmount: "1000"}
	live, err := NewExecutor(newClient(api, &fakeTokens{decimals: 0}, fastRetry, nil), &fakeChain{}, ExecutorConfig{
		Wallet: kp,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	res := live.Buy(context.Background(), testMint, 0.1, 15)
	assert.False(t, res.Success)
	assert.ErrorContains(t, res.Err, "build swap")
	assert.Equal(t, 3, api.swaps)
}

func TestUnitConversion(t *testing.T) {
	assert.Equal(t, int64(150_000_000), toRaw(0.15, 9))
	assert.Equal(t, int64(1), toRaw(0.0000019, 6))

	v, err := fromRaw("123456789", 6)
	require.NoError(t, err)
	assert.InDelta(t, 123.456789, v, 1e-12)

	_, err = fromRaw("abc", 6)
	assert.Error(t, err)

	assert.Equal(t, 1500, slippageBps(15))
	assert.Equal(t, 50, slippageBps(0.5))
}

func TestPriceSource(t *testing.T) {
	// 0.01 SOL buys 100 tokens.
	api := &fakeAPI{outAmount: "100000000"}
	src := NewPriceSource(newClient(api, &fakeTokens{decimals: 6}, fastRetry, nil), 0)
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return fixed }

	sample, err := src.Price(context.Background(), testMint)
	require.NoError(t, err)
	require.NotNil(t, sample)
	assert.InDelta(t, 0.0001, sample.Price, 1e-12)
	assert.Equal(t, fixed, sample.Timestamp)
	assert.Equal(t, 10_000_000, int(api.quotes[0].Amount))
}

func TestPriceSource_NoRouteIsNoData(t *testing.T) {
	api := &fakeAPI{statuses: []int{http.StatusNotFound}}
	src := NewPriceSource(newClient(api, &fakeTokens{decimals: 6}, fastRetry, nil), 0)

	sample, err := src.Price(context.Background(), testMint)
	require.NoError(t, err)
	assert.Nil(t, sample)
}
