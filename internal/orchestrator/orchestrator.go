// Package orchestrator runs the trading control loop.
// It coordinates: discovery → queue → pipeline → positions → exits
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"solana-token-trader/internal/domain"
	"solana-token-trader/internal/notify"
	"solana-token-trader/internal/observability"
	"solana-token-trader/internal/pipeline"
	"solana-token-trader/internal/position"
	"solana-token-trader/internal/queue"
	"solana-token-trader/internal/risk"
	"solana-token-trader/internal/strategy"
)

// ResumePolicy decides when discovery resumes after the last position closes.
type ResumePolicy string

const (
	ResumeImmediate     ResumePolicy = "immediate"
	ResumeAfterCooldown ResumePolicy = "after_cooldown"
)

// IsValid reports whether p is a known policy.
func (p ResumePolicy) IsValid() bool {
	return p == ResumeImmediate || p == ResumeAfterCooldown
}

var (
	// ErrNoOpenPosition is returned by RequestExit when the mint has no open position.
	ErrNoOpenPosition = errors.New("no open position for mint")

	// ErrInvalidExitReason is returned by RequestExit for an unknown reason.
	ErrInvalidExitReason = errors.New("invalid exit reason")
)

// Source streams discovered candidates until ctx is done.
type Source interface {
	Candidates(ctx context.Context) (<-chan domain.Candidate, error)
}

// Options configures an Orchestrator.
type Options struct {
	// Required collaborators
	Queue     *queue.Queue
	Risk      *risk.Gate
	Positions *position.Manager
	Pipeline  *pipeline.Pipeline
	Engine    *strategy.Engine
	Market    pipeline.MarketData
	Executor  pipeline.Executor
	Source    Source

	// Optional
	Notifier notify.Notifier
	Metrics  *observability.Metrics
	Logger   zerolog.Logger
	Now      func() time.Time

	// Loops
	MaxConcurrent   int           // pipeline candidates in flight
	PollInterval    time.Duration // pipeline idle wait
	MonitorInterval time.Duration // exit evaluation period
	CandleInterval  time.Duration // bar size fed to the exit engine
	DiscoveryRate   rate.Limit    // candidates admitted per second
	DiscoveryBurst  int

	// Discovery gating
	PauseWhileOpen bool
	ResumePolicy   ResumePolicy
	ResumeCooldown time.Duration

	// Exits
	SellSlippagePct float64
	ExitOnLossLimit bool // sell everything once a loss limit trips

	// Jobs (cron specs, evaluated in Location)
	CleanupSpec     string
	WeeklyResetSpec string
	Location        *time.Location

	DryRun bool
}

// DefaultOptions returns loop settings; collaborators must still be set.
func DefaultOptions() Options {
	return Options{
		MaxConcurrent:   2,
		PollInterval:    500 * time.Millisecond,
		MonitorInterval: 5 * time.Second,
		CandleInterval:  time.Minute,
		DiscoveryRate:   rate.Limit(5),
		DiscoveryBurst:  10,
		PauseWhileOpen:  true,
		ResumePolicy:    ResumeImmediate,
		ResumeCooldown:  5 * time.Minute,
		SellSlippagePct: 20,
		CleanupSpec:     "@every 1m",
		WeeklyResetSpec: "0 0 * * 1",
		Logger:          zerolog.Nop(),
	}
}

// Orchestrator owns the discovery, pipeline and monitor loops and the
// scheduled jobs. Run may be called once.
type Orchestrator struct {
	opts    Options
	log     zerolog.Logger
	limiter *rate.Limiter

	mu          sync.Mutex
	requested   map[string]domain.ExitReason // position ID -> pending exit
	resumeAt    time.Time                    // discovery blocked until then
	startedAt   time.Time
	lastMonitor time.Time
}

// New creates an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Queue == nil, opts.Risk == nil, opts.Positions == nil, opts.Pipeline == nil,
		opts.Engine == nil, opts.Market == nil, opts.Executor == nil, opts.Source == nil:
		return nil, errors.New("orchestrator: missing collaborator")
	}
	def := DefaultOptions()
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = def.MaxConcurrent
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = def.MonitorInterval
	}
	if opts.CandleInterval <= 0 {
		opts.CandleInterval = def.CandleInterval
	}
	if opts.DiscoveryRate <= 0 {
		opts.DiscoveryRate = def.DiscoveryRate
	}
	if opts.DiscoveryBurst <= 0 {
		opts.DiscoveryBurst = def.DiscoveryBurst
	}
	if opts.ResumePolicy == "" {
		opts.ResumePolicy = def.ResumePolicy
	}
	if !opts.ResumePolicy.IsValid() {
		return nil, fmt.Errorf("orchestrator: invalid resume policy %q", opts.ResumePolicy)
	}
	if opts.SellSlippagePct <= 0 {
		opts.SellSlippagePct = def.SellSlippagePct
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLogNotifier(opts.Logger)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Orchestrator{
		opts:      opts,
		log:       opts.Logger.With().Str("component", "orchestrator").Logger(),
		limiter:   rate.NewLimiter(opts.DiscoveryRate, opts.DiscoveryBurst),
		requested: make(map[string]domain.ExitReason),
	}, nil
}

// Run restores open positions, evaluates them once, then runs every loop
// until ctx is done or a loop fails. Open positions are left open on return.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	o.startedAt = o.opts.Now()
	o.mu.Unlock()

	n, err := o.opts.Positions.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore positions: %w", err)
	}
	if n > 0 {
		o.log.Info().Int("positions", n).Msg("restored open positions")
	}
	// Restored positions are monitored before discovery resumes.
	o.monitorOnce(ctx)

	sched, err := o.scheduleJobs(ctx)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() {
		<-sched.Stop().Done()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.ingestLoop(gctx) })
	g.Go(func() error { return o.pipelineLoop(gctx) })
	g.Go(func() error { return o.monitorLoop(gctx) })

	o.log.Info().Bool("dry_run", o.opts.DryRun).Msg("trader started")
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	o.log.Info().Int("open_positions", o.opts.Positions.Count()).Msg("trader stopped")
	return err
}

// RequestExit asks the monitor loop to fully close the position on mint
// with reason at its next evaluation.
func (o *Orchestrator) RequestExit(mint string, reason domain.ExitReason) error {
	if !reason.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidExitReason, reason)
	}
	p, err := o.opts.Positions.GetPositionByMint(mint)
	if err != nil {
		return ErrNoOpenPosition
	}

	o.mu.Lock()
	o.requested[p.ID] = reason
	o.mu.Unlock()
	o.log.Info().Str("mint", mint).Str("reason", reason.String()).Msg("exit requested")
	return nil
}

// Status reports a snapshot of the trader.
func (o *Orchestrator) Status() notify.Status {
	stats := o.opts.Queue.GetStats()
	o.mu.Lock()
	started := o.startedAt
	o.mu.Unlock()
	return notify.Status{
		StartedAt:       started,
		DryRun:          o.opts.DryRun,
		DiscoveryPaused: o.discoveryPaused(),
		Queued:          stats.Queued,
		Processed:       stats.Processed,
		OpenPositions:   o.opts.Positions.Count(),
		Risk:            o.opts.Risk.Snapshot(),
	}
}

// LastMonitorAt returns when the monitor loop last completed a pass.
func (o *Orchestrator) LastMonitorAt() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastMonitor
}

// Positions returns copies of the open positions.
func (o *Orchestrator) Positions() []*domain.Position {
	return o.opts.Positions.GetActivePositions()
}

// discoveryPaused reports whether new candidates are currently refused.
func (o *Orchestrator) discoveryPaused() bool {
	if o.opts.PauseWhileOpen && o.opts.Positions.Count() > 0 {
		return true
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opts.Now().Before(o.resumeAt)
}

func (o *Orchestrator) takeRequested(id string) domain.ExitReason {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.requested[id]
}

func (o *Orchestrator) clearRequested(id string) {
	o.mu.Lock()
	delete(o.requested, id)
	o.mu.Unlock()
}

// sleep waits for d or ctx.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
