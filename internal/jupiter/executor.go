package jupiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	jup "github.com/ilkamo/jupiter-go/jupiter"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-token-trader/internal/domain"
	"solana-token-trader/internal/solana"
)

// ErrNoWallet is returned by live operations without a wallet.
var ErrNoWallet = errors.New("jupiter: wallet not configured")

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	Wallet          solana.Keypair
	DryRun          bool          // quote only, never send
	DryRunBalance   float64       // SOL reported by Balance in dry run without a wallet
	ConfirmTimeout  time.Duration // wait for on-chain confirmation
	ConfirmInterval time.Duration
	Logger          zerolog.Logger
}

// chain is the RPC surface the executor needs.
type chain interface {
	GetBalance(ctx context.Context, pubkey string) (uint64, error)
	SendTransaction(ctx context.Context, txBase64 string) (string, error)
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*solana.SignatureStatus, error)
}

// Executor buys and sells tokens against SOL through Jupiter. In dry run
// fills are derived from quotes.
type Executor struct {
	client *Client
	rpc    chain
	cfg    ExecutorConfig
}

// NewExecutor creates an executor. A wallet is required unless DryRun is set.
func NewExecutor(client *Client, rpc chain, cfg ExecutorConfig) (*Executor, error) {
	if !cfg.DryRun && cfg.Wallet.IsZero() {
		return nil, ErrNoWallet
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.ConfirmInterval <= 0 {
		cfg.ConfirmInterval = time.Second
	}
	return &Executor{client: client, rpc: rpc, cfg: cfg}, nil
}

// Buy spends capitalSOL on mint.
func (e *Executor) Buy(ctx context.Context, mint string, capitalSOL, slippagePct float64) domain.BuyResult {
	log := e.cfg.Logger.With().Str("mint", mint).Str("side", "buy").Logger()

	decimals, err := e.client.tokenDecimals(ctx, mint)
	if err != nil {
		return domain.BuyResult{Err: err}
	}

	lamports := toRaw(capitalSOL, 9)
	q, err := e.client.quote(ctx, solana.WrappedSOLMint, mint, lamports, slippageBps(slippagePct))
	if err != nil {
		return domain.BuyResult{Err: fmt.Errorf("buy quote: %w", err)}
	}

	qty, err := fromRaw(q.OutAmount, decimals)
	if err != nil || qty <= 0 {
		return domain.BuyResult{Err: fmt.Errorf("buy quote: bad out amount %q", q.OutAmount)}
	}

	sig, err := e.execute(ctx, q)
	if err != nil {
		log.Warn().Err(err).Float64("capital_sol", capitalSOL).Msg("swap failed")
		return domain.BuyResult{Err: err}
	}

	log.Info().
		Float64("capital_sol", capitalSOL).
		Float64("quantity", qty).
		Str("signature", sig).
		Bool("dry_run", e.cfg.DryRun).
		Msg("buy filled")

	return domain.BuyResult{
		Success:          true,
		Signature:        sig,
		QuantityReceived: qty,
		Price:            capitalSOL / qty,
	}
}

// Sell sells quantity tokens of mint for SOL.
func (e *Executor) Sell(ctx context.Context, mint string, quantity, slippagePct float64) domain.SellResult {
	log := e.cfg.Logger.With().Str("mint", mint).Str("side", "sell").Logger()

	decimals, err := e.client.tokenDecimals(ctx, mint)
	if err != nil {
		return domain.SellResult{Err: err}
	}

	raw := toRaw(quantity, decimals)
	q, err := e.client.quote(ctx, mint, solana.WrappedSOLMint, raw, slippageBps(slippagePct))
	if err != nil {
		return domain.SellResult{Err: fmt.Errorf("sell quote: %w", err)}
	}

	proceeds, err := fromRaw(q.OutAmount, 9)
	if err != nil {
		return domain.SellResult{Err: fmt.Errorf("sell quote: %w", err)}
	}

	sig, err := e.execute(ctx, q)
	if err != nil {
		log.Warn().Err(err).Float64("quantity", quantity).Msg("swap failed")
		return domain.SellResult{Err: err}
	}

	log.Info().
		Float64("quantity", quantity).
		Float64("proceeds_sol", proceeds).
		Str("signature", sig).
		Bool("dry_run", e.cfg.DryRun).
		Msg("sell filled")

	return domain.SellResult{Success: true, Signature: sig, Proceeds: proceeds}
}

// Balance returns the wallet SOL balance.
func (e *Executor) Balance(ctx context.Context) (float64, error) {
	if e.cfg.Wallet.IsZero() {
		if e.cfg.DryRun {
			return e.cfg.DryRunBalance, nil
		}
		return 0, ErrNoWallet
	}
	lamports, err := e.rpc.GetBalance(ctx, e.cfg.Wallet.PublicKey().String())
	if err != nil {
		return 0, fmt.Errorf("wallet balance: %w", err)
	}
	return decimal.NewFromUint64(lamports).Shift(-9).InexactFloat64(), nil
}

// execute builds, signs, sends and confirms the swap for q.
func (e *Executor) execute(ctx context.Context, q *jup.QuoteResponse) (string, error) {
	if e.cfg.DryRun {
		return "dry-run-" + uuid.NewString(), nil
	}

	unsigned, err := e.client.swapTransaction(ctx, q, e.cfg.Wallet.PublicKey().String())
	if err != nil {
		return "", fmt.Errorf("build swap: %w", err)
	}
	signed, sig, err := solana.SignTransaction(unsigned, e.cfg.Wallet)
	if err != nil {
		return "", fmt.Errorf("sign swap: %w", err)
	}
	if _, err := e.rpc.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send swap: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
	defer cancel()
	if err := solana.WaitForConfirmation(cctx, e.rpc, sig, e.cfg.ConfirmInterval); err != nil {
		return "", err
	}
	return sig, nil
}
