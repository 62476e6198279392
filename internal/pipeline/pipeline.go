// Package pipeline turns a queued candidate into an open position: limits,
// gating, sizing and the two-tranche entry.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"solana-token-trader/internal/domain"
	"solana-token-trader/internal/observability"
	"solana-token-trader/internal/position"
	"solana-token-trader/internal/queue"
	"solana-token-trader/internal/risk"
)

// Outcome classifies a Process call.
type Outcome string

const (
	OutcomeEntered  Outcome = "entered"
	OutcomeRejected Outcome = "rejected"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeBusy     Outcome = "busy"
)

// Reasons reported in Result.Reason. Risk gate and pre-check reasons are
// passed through unchanged.
const (
	ReasonAlreadyProcessing   = "already_processing"
	ReasonConcurrencyLimit    = "concurrency_limit"
	ReasonTradeCooldown       = "trade_cooldown"
	ReasonMaxPositions        = "max_positions"
	ReasonPositionOpen        = "position_open"
	ReasonChecklistFailed     = "checklist_failed"
	ReasonInsufficientBalance = "insufficient_balance"
	ReasonEntryFailed         = "entry_failed"
	ReasonPreCheckError       = "precheck_error"
	ReasonChecklistError      = "checklist_error"
	ReasonBalanceError        = "balance_error"
)

// Result is the outcome of processing one candidate.
type Result struct {
	Outcome        Outcome
	Reason         string
	FailureReasons []string         // checklist failures, when Reason is checklist_failed
	Position       *domain.Position // set when Outcome is entered
}

// Config configures a Pipeline.
type Config struct {
	MaxConcurrent    int           // in-flight candidates
	MaxOpenPositions int           // open positions allowed before new entries are refused
	TradeCooldown    time.Duration // minimum gap between entries

	MinTradeSOL float64
	MaxTradeSOL float64
	ReserveSOL  float64 // kept in the wallet for fees

	Tranche1Pct float64 // share of the trade size bought first
	SlippagePct float64

	ConfirmSamples  int           // price samples before tranche 2
	ConfirmInterval time.Duration // gap between samples

	OnEntered  func(p *domain.Position)
	OnRejected func(c domain.Candidate, r Result)

	Logger  zerolog.Logger
	Metrics *observability.Metrics
	Now     func() time.Time // nil = time.Now
}

// DefaultConfig returns the reference pipeline settings.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:    2,
		MaxOpenPositions: 1,
		TradeCooldown:    time.Minute,
		MinTradeSOL:      0.05,
		MaxTradeSOL:      0.25,
		ReserveSOL:       0.02,
		Tranche1Pct:      60,
		SlippagePct:      15,
		ConfirmSamples:   3,
		ConfirmInterval:  5 * time.Second,
		Logger:           zerolog.Nop(),
	}
}

// Deps are the collaborators a Pipeline drives.
type Deps struct {
	Queue     *queue.Queue
	Risk      *risk.Gate
	Positions *position.Manager
	Checks    Checks
	Market    MarketData
	Executor  Executor
}

// Pipeline is safe for concurrent use. A mint is processed by at most one
// caller at a time and at most MaxConcurrent mints are in flight.
type Pipeline struct {
	cfg  Config
	deps Deps
	sem  *semaphore.Weighted

	mu        sync.Mutex
	inFlight  map[string]struct{}
	entering  int // candidates past the position limit but not yet opened
	lastTrade time.Time
}

// New creates a pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Tranche1Pct <= 0 || cfg.Tranche1Pct > 100 {
		cfg.Tranche1Pct = 100
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{
		cfg:      cfg,
		deps:     deps,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		inFlight: make(map[string]struct{}),
	}
}

// Process runs c through the pipeline. Busy results have no side effects.
func (p *Pipeline) Process(ctx context.Context, c domain.Candidate) Result {
	start := p.cfg.Now()

	if reason, ok := p.acquire(c.Mint); !ok {
		res := Result{Outcome: OutcomeBusy, Reason: reason}
		p.cfg.Metrics.RecordPipeline(string(res.Outcome), res.Reason, 0)
		return res
	}
	defer p.release(c.Mint)

	log := p.cfg.Logger.With().Str("mint", c.Mint).Str("symbol", c.Symbol).Logger()
	res := p.process(ctx, c, log)
	p.finish(c, res, log)

	p.cfg.Metrics.RecordPipeline(string(res.Outcome), res.Reason, p.cfg.Now().Sub(start))
	return res
}

// InFlight returns the number of candidates currently being processed.
func (p *Pipeline) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight)
}

// LastTradeAt returns the time of the last successful entry.
func (p *Pipeline) LastTradeAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTrade
}

func (p *Pipeline) acquire(mint string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.inFlight[mint]; ok {
		return ReasonAlreadyProcessing, false
	}
	if !p.sem.TryAcquire(1) {
		return ReasonConcurrencyLimit, false
	}
	p.inFlight[mint] = struct{}{}
	return "", true
}

func (p *Pipeline) release(mint string) {
	p.mu.Lock()
	delete(p.inFlight, mint)
	p.mu.Unlock()
	p.sem.Release(1)
}

func (p *Pipeline) process(ctx context.Context, c domain.Candidate, log zerolog.Logger) Result {
	if res, ok := p.checkLimits(ctx, c); !ok {
		return res
	}
	defer func() {
		p.mu.Lock()
		p.entering--
		p.mu.Unlock()
	}()

	pre, err := p.deps.Checks.QuickPreCheck(ctx, c)
	if err != nil {
		log.Warn().Err(err).Msg("pre-check unavailable")
		return Result{Outcome: OutcomeSkipped, Reason: ReasonPreCheckError}
	}
	if !pre.ShouldAnalyze {
		return Result{Outcome: OutcomeRejected, Reason: pre.Reason}
	}

	checklist, err := p.deps.Checks.RunFullChecklist(ctx, c.Mint)
	if err != nil {
		log.Warn().Err(err).Msg("checklist unavailable")
		return Result{Outcome: OutcomeSkipped, Reason: ReasonChecklistError}
	}
	if !checklist.Passed {
		return Result{
			Outcome:        OutcomeRejected,
			Reason:         ReasonChecklistFailed,
			FailureReasons: checklist.FailureReasons,
		}
	}

	size, res, ok := p.tradeSize(ctx, log)
	if !ok {
		return res
	}

	return p.enter(ctx, c, size, log)
}

// checkLimits applies the cooldown, risk gate and position limits. On
// success it reserves a position slot that the caller must give back.
func (p *Pipeline) checkLimits(ctx context.Context, c domain.Candidate) (Result, bool) {
	p.mu.Lock()
	last := p.lastTrade
	p.mu.Unlock()
	if p.cfg.TradeCooldown > 0 && !last.IsZero() && p.cfg.Now().Sub(last) < p.cfg.TradeCooldown {
		return Result{Outcome: OutcomeSkipped, Reason: ReasonTradeCooldown}, false
	}

	if d := p.deps.Risk.IsTradingAllowed(ctx); !d.Allowed {
		return Result{Outcome: OutcomeRejected, Reason: d.Reason}, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg.MaxOpenPositions > 0 && p.deps.Positions.Count()+p.entering >= p.cfg.MaxOpenPositions {
		return Result{Outcome: OutcomeRejected, Reason: ReasonMaxPositions}, false
	}
	if p.deps.Positions.HasOpenPosition(c.Mint) {
		return Result{Outcome: OutcomeRejected, Reason: ReasonPositionOpen}, false
	}
	p.entering++
	return Result{}, true
}

// tradeSize is min(MaxTradeSOL, balance - ReserveSOL).
func (p *Pipeline) tradeSize(ctx context.Context, log zerolog.Logger) (float64, Result, bool) {
	balance, err := p.deps.Executor.Balance(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("balance unavailable")
		return 0, Result{Outcome: OutcomeSkipped, Reason: ReasonBalanceError}, false
	}

	size := min(p.cfg.MaxTradeSOL, balance-p.cfg.ReserveSOL)
	if size < p.cfg.MinTradeSOL || size <= 0 {
		log.Info().Float64("balance_sol", balance).Float64("size_sol", size).Msg("insufficient balance")
		return 0, Result{Outcome: OutcomeRejected, Reason: ReasonInsufficientBalance}, false
	}
	return size, Result{}, true
}

func (p *Pipeline) enter(ctx context.Context, c domain.Candidate, size float64, log zerolog.Logger) Result {
	t1 := size * p.cfg.Tranche1Pct / 100
	t2 := size - t1

	buy := p.deps.Executor.Buy(ctx, c.Mint, t1, p.cfg.SlippagePct)
	if !buy.Success {
		p.cfg.Metrics.RecordTranche(1, "failed")
		log.Warn().Err(buy.Err).Float64("size_sol", t1).Msg("tranche 1 buy failed")
		return Result{Outcome: OutcomeRejected, Reason: ReasonEntryFailed}
	}
	p.cfg.Metrics.RecordTranche(1, "filled")

	p.mu.Lock()
	p.lastTrade = p.cfg.Now()
	p.mu.Unlock()

	pos, err := p.deps.Positions.CreatePosition(ctx, position.Entry{
		Mint:      c.Mint,
		Symbol:    c.Symbol,
		Price:     fillPrice(buy, t1),
		Quantity:  buy.QuantityReceived,
		CostBasis: t1,
		Signature: buy.Signature,
	})
	if err != nil {
		log.Error().Err(err).Str("signature", buy.Signature).Msg("buy filled but position not recorded")
		return Result{Outcome: OutcomeRejected, Reason: ReasonEntryFailed}
	}
	log.Info().
		Str("position_id", pos.ID).
		Float64("size_sol", t1).
		Float64("price", pos.EntryPrice).
		Str("signature", buy.Signature).
		Msg("tranche 1 filled")

	if t2 <= 0 {
		return Result{Outcome: OutcomeEntered, Position: pos}
	}

	if !p.confirm(ctx, c.Mint, pos.EntryPrice) {
		p.cfg.Metrics.RecordTranche(2, "unconfirmed")
		log.Warn().Str("position_id", pos.ID).Msg("entry not confirmed, keeping tranche 1 only")
		return Result{Outcome: OutcomeEntered, Position: pos}
	}

	buy2 := p.deps.Executor.Buy(ctx, c.Mint, t2, p.cfg.SlippagePct)
	if !buy2.Success {
		p.cfg.Metrics.RecordTranche(2, "failed")
		log.Warn().Err(buy2.Err).Str("position_id", pos.ID).Msg("tranche 2 buy failed, keeping tranche 1 only")
		return Result{Outcome: OutcomeEntered, Position: pos}
	}

	updated, err := p.deps.Positions.AddTranche(ctx, pos.ID, fillPrice(buy2, t2), t2, buy2.Signature)
	if err != nil {
		p.cfg.Metrics.RecordTranche(2, "failed")
		log.Error().Err(err).Str("signature", buy2.Signature).Msg("tranche 2 filled but not recorded")
		return Result{Outcome: OutcomeEntered, Position: pos}
	}
	p.cfg.Metrics.RecordTranche(2, "filled")
	log.Info().
		Str("position_id", updated.ID).
		Float64("size_sol", t2).
		Float64("entry_price", updated.EntryPrice).
		Msg("tranche 2 filled")

	return Result{Outcome: OutcomeEntered, Position: updated}
}

// confirm samples the price ConfirmSamples times. A missing sample or one
// below entry is a non-confirmation.
func (p *Pipeline) confirm(ctx context.Context, mint string, entry float64) bool {
	for i := 0; i < p.cfg.ConfirmSamples; i++ {
		if err := sleep(ctx, p.cfg.ConfirmInterval); err != nil {
			return false
		}
		sample, err := p.deps.Market.FetchPrice(ctx, mint)
		if err != nil || sample == nil || sample.Price <= 0 {
			return false
		}
		if sample.Price < entry {
			return false
		}
	}
	return true
}

func (p *Pipeline) finish(c domain.Candidate, res Result, log zerolog.Logger) {
	switch res.Outcome {
	case OutcomeEntered:
		p.deps.Queue.MarkProcessed(c.Mint)
		if p.cfg.OnEntered != nil {
			p.cfg.OnEntered(res.Position.Clone())
		}
	case OutcomeRejected:
		p.deps.Queue.MarkRejected(c.Mint, res.Reason)
		ev := log.Info().Str("reason", res.Reason)
		if len(res.FailureReasons) > 0 {
			ev = ev.Strs("failures", res.FailureReasons)
		}
		ev.Msg("candidate rejected")
		if p.cfg.OnRejected != nil {
			p.cfg.OnRejected(c, res)
		}
	case OutcomeSkipped:
		requeued := p.deps.Queue.MarkSkipped(c.Mint)
		log.Debug().Str("reason", res.Reason).Bool("requeued", requeued).Msg("candidate skipped")
	}
}

// fillPrice prefers the realized price size/quantity over the quoted one.
func fillPrice(r domain.BuyResult, size float64) float64 {
	if r.QuantityReceived > 0 {
		return size / r.QuantityReceived
	}
	return r.Price
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
