package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-trader/internal/domain"
	"solana-token-trader/internal/pipeline"
	"solana-token-trader/internal/position"
	"solana-token-trader/internal/queue"
	"solana-token-trader/internal/risk"
	"solana-token-trader/internal/storage/memory"
	"solana-token-trader/internal/strategy"
)

type fakeMarket struct {
	mu    sync.Mutex
	price float64 // 0 = no data
}

func (f *fakeMarket) set(p float64) {
	f.mu.Lock()
	f.price = p
	f.mu.Unlock()
}

func (f *fakeMarket) get() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.price
}

func (f *fakeMarket) FetchPrice(context.Context, string) (*domain.PriceSample, error) {
	p := f.get()
	if p <= 0 {
		return nil, nil
	}
	return &domain.PriceSample{Price: p, Timestamp: time.Now()}, nil
}

func (f *fakeMarket) FetchCandles(context.Context, string, int, int) ([]domain.Candle, error) {
	return nil, nil
}

// fakeExecutor fills every swap at the market price.
type fakeExecutor struct {
	market *fakeMarket

	mu       sync.Mutex
	sells    []float64
	sellFail bool
}

func (f *fakeExecutor) Buy(_ context.Context, mint string, capitalSOL, _ float64) domain.BuyResult {
	p := f.market.get()
	return domain.BuyResult{Success: true, Signature: mint + "-buy", QuantityReceived: capitalSOL / p, Price: p}
}

func (f *fakeExecutor) Sell(_ context.Context, mint string, quantity, _ float64) domain.SellResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sellFail {
		return domain.SellResult{Err: errors.New("route not found")}
	}
	f.sells = append(f.sells, quantity)
	return domain.SellResult{Success: true, Signature: mint + "-sell", Proceeds: quantity * f.market.get()}
}

func (f *fakeExecutor) Balance(context.Context) (float64, error) { return 1, nil }

func (f *fakeExecutor) setSellFail(v bool) {
	f.mu.Lock()
	f.sellFail = v
	f.mu.Unlock()
}

func (f *fakeExecutor) sold() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.sells...)
}

type passChecks struct{}

func (passChecks) QuickPreCheck(context.Context, domain.Candidate) (domain.PreCheckResult, error) {
	return domain.PreCheckResult{ShouldAnalyze: true}, nil
}

func (passChecks) RunFullChecklist(context.Context, string) (domain.ChecklistResult, error) {
	return domain.ChecklistResult{Passed: true}, nil
}

type chanSource chan domain.Candidate

func (s chanSource) Candidates(context.Context) (<-chan domain.Candidate, error) {
	return s, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	opened []string
	exits  []domain.ExitEvent
	alerts []string
}

func (n *recordingNotifier) PositionOpened(_ context.Context, p *domain.Position) {
	n.mu.Lock()
	n.opened = append(n.opened, p.Mint)
	n.mu.Unlock()
}

func (n *recordingNotifier) PositionExited(_ context.Context, ev domain.ExitEvent) {
	n.mu.Lock()
	n.exits = append(n.exits, ev)
	n.mu.Unlock()
}

func (n *recordingNotifier) Alert(_ context.Context, msg string) {
	n.mu.Lock()
	n.alerts = append(n.alerts, msg)
	n.mu.Unlock()
}

func (n *recordingNotifier) exitReasons() []domain.ExitReason {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.ExitReason, 0, len(n.exits))
	for _, ev := range n.exits {
		out = append(out, ev.Reason)
	}
	return out
}

type harness struct {
	o         *Orchestrator
	q         *queue.Queue
	gate      *risk.Gate
	positions *position.Manager
	market    *fakeMarket
	exec      *fakeExecutor
	notifier  *recordingNotifier
	source    chanSource

	mu  sync.Mutex
	now time.Time
}

// newHarness builds an orchestrator on a manual clock, or on time.Now for
// every component when realClock is set.
func newHarness(t *testing.T, realClock bool, limits risk.Limits, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		now:      time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC),
		market:   &fakeMarket{price: 0.0001},
		notifier: &recordingNotifier{},
		source:   make(chanSource, 4),
	}
	h.exec = &fakeExecutor{market: h.market}
	clock := h.clock
	if realClock {
		clock = time.Now
	}

	qcfg := queue.DefaultConfig()
	qcfg.Now = clock
	h.q = queue.New(qcfg)

	gate, err := risk.New(context.Background(), risk.Config{Limits: limits, Location: time.UTC, Logger: zerolog.Nop(), Now: clock})
	require.NoError(t, err)
	h.gate = gate

	h.positions = position.NewManager(position.Config{
		Risk:    gate,
		Store:   memory.NewPositionStore(),
		Journal: memory.NewTradeJournal(),
		Logger:  zerolog.Nop(),
		Now:     clock,
	})

	pcfg := pipeline.DefaultConfig()
	pcfg.Tranche1Pct = 100
	pcfg.TradeCooldown = 0
	pcfg.Now = clock
	market := pipeline.MarketData(h.market)
	p := pipeline.New(pcfg, pipeline.Deps{
		Queue:     h.q,
		Risk:      gate,
		Positions: h.positions,
		Checks:    passChecks{},
		Market:    market,
		Executor:  h.exec,
	})

	engine, err := strategy.NewEngine(strategy.DefaultConfig())
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Queue = h.q
	opts.Risk = gate
	opts.Positions = h.positions
	opts.Pipeline = p
	opts.Engine = engine
	opts.Market = market
	opts.Executor = h.exec
	opts.Source = h.source
	opts.Notifier = h.notifier
	opts.Location = time.UTC
	opts.Now = clock
	if mutate != nil {
		mutate(&opts)
	}

	h.o, err = New(opts)
	require.NoError(t, err)
	return h
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	h.now = h.now.Add(d)
	h.mu.Unlock()
}

func (h *harness) open(t *testing.T, mint string) *domain.Position {
	t.Helper()
	p, err := h.positions.CreatePosition(context.Background(), position.Entry{
		Mint:      mint,
		Symbol:    "SYM",
		Price:     0.0001,
		Quantity:  1000,
		CostBasis: 0.1,
		Signature: "sig",
	})
	require.NoError(t, err)
	return p
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	h := newHarness(t, false, risk.DefaultLimits(), nil)
	opts := h.o.opts
	opts.ResumePolicy = "later"
	_, err = New(opts)
	assert.Error(t, err)
}

func TestMonitor_TakeProfitLadder(t *testing.T) {
	h := newHarness(t, false, risk.DefaultLimits(), nil)
	ctx := context.Background()
	p := h.open(t, "MINT")

	// +20%: TP1 sells 40%.
	h.market.set(0.00012)
	h.o.monitorOnce(ctx)
	got, err := h.positions.GetPosition(p.ID)
	require.NoError(t, err)
	assert.True(t, got.RungsHit.TP1)
	assert.InDelta(t, 600, got.Quantity, 1e-6)

	// Evaluating again at the same price does not repeat the rung.
	h.o.monitorOnce(ctx)
	assert.Len(t, h.exec.sold(), 1)

	// +40%: TP2 sells 30% of the remainder.
	h.market.set(0.00014)
	h.o.monitorOnce(ctx)
	got, err = h.positions.GetPosition(p.ID)
	require.NoError(t, err)
	assert.True(t, got.RungsHit.TP2)
	assert.InDelta(t, 420, got.Quantity, 1e-6)

	// 10.7% off the high: the runner exits.
	h.market.set(0.000125)
	h.o.monitorOnce(ctx)
	assert.Equal(t, 0, h.positions.Count())

	sold := h.exec.sold()
	require.Len(t, sold, 3)
	assert.InDelta(t, 400, sold[0], 1e-6)
	assert.InDelta(t, 180, sold[1], 1e-6)
	assert.InDelta(t, 420, sold[2], 1e-6)
	assert.Equal(t,
		[]domain.ExitReason{domain.ExitReasonTP1, domain.ExitReasonTP2, domain.ExitReasonRunnerExit},
		h.notifier.exitReasons())

	rec, ok := h.q.Rejection("MINT")
	require.True(t, ok)
	assert.Equal(t, domain.RejectionKindExited, rec.Kind)
	assert.Equal(t, "runner_exit", rec.Reason)
}

func TestMonitor_StopLoss(t *testing.T) {
	h := newHarness(t, false, risk.DefaultLimits(), nil)
	h.open(t, "MINT")

	h.market.set(0.000094)
	h.o.monitorOnce(context.Background())

	assert.Equal(t, 0, h.positions.Count())
	assert.Equal(t, []domain.ExitReason{domain.ExitReasonStopLoss}, h.notifier.exitReasons())
	assert.InDelta(t, -0.006, h.gate.Snapshot().PnlToday, 1e-9)
}

func TestMonitor_NoPriceHolds(t *testing.T) {
	h := newHarness(t, false, risk.DefaultLimits(), nil)
	h.open(t, "MINT")

	h.market.set(0)
	h.o.monitorOnce(context.Background())

	assert.Equal(t, 1, h.positions.Count())
	assert.Empty(t, h.exec.sold())
}

func TestMonitor_StalePriceDoesNotTriggerTimeStop(t *testing.T) {
	h := newHarness(t, false, risk.DefaultLimits(), nil)
	ctx := context.Background()
	h.open(t, "MINT")

	h.market.set(0.000097)
	h.o.monitorOnce(ctx)
	require.Equal(t, 1, h.positions.Count(), "-3% holds")

	h.advance(6 * time.Minute)
	h.market.set(0)
	h.o.monitorOnce(ctx)

	assert.Equal(t, 1, h.positions.Count())
	assert.Empty(t, h.exec.sold())
	assert.Empty(t, h.notifier.exitReasons())

	h.market.set(0.000097)
	h.o.monitorOnce(ctx)
	assert.Equal(t, 0, h.positions.Count(), "fresh price past the timeout exits")
	assert.Equal(t, []domain.ExitReason{domain.ExitReasonTimeStop}, h.notifier.exitReasons())
}

func TestMonitor_RequestedExitWithoutPrice(t *testing.T) {
	h := newHarness(t, false, risk.DefaultLimits(), nil)
	h.open(t, "MINT")

	h.market.set(0)
	require.NoError(t, h.o.RequestExit("MINT", domain.ExitReasonEmergency))
	h.o.monitorOnce(context.Background())

	assert.Equal(t, 0, h.positions.Count())
	assert.Equal(t, []float64{1000}, h.exec.sold())
	assert.Equal(t, []domain.ExitReason{domain.ExitReasonEmergency}, h.notifier.exitReasons())
}

func TestRequestExit(t *testing.T) {
	h := newHarness(t, false, risk.DefaultLimits(), nil)
	ctx := context.Background()

	assert.ErrorIs(t, h.o.RequestExit("NOPE", domain.ExitReasonManual), ErrNoOpenPosition)

	p := h.open(t, "MINT")
	assert.ErrorIs(t, h.o.RequestExit("MINT", "panic"), ErrInvalidExitReason)

	require.NoError(t, h.o.RequestExit("MINT", domain.ExitReasonManual))
	h.exec.setSellFail(true)
	h.o.monitorOnce(ctx)

	assert.Equal(t, 1, h.positions.Count(), "failed sell keeps the position")
	assert.Equal(t, domain.ExitReasonManual, h.o.takeRequested(p.ID))
	h.notifier.mu.Lock()
	assert.Len(t, h.notifier.alerts, 1)
	h.notifier.mu.Unlock()

	h.exec.setSellFail(false)
	h.o.monitorOnce(ctx)

	assert.Equal(t, 0, h.positions.Count())
	assert.Equal(t, []domain.ExitReason{domain.ExitReasonManual}, h.notifier.exitReasons())
	assert.Equal(t, domain.ExitReasonNone, h.o.takeRequested(p.ID))
}

func TestMonitor_ExitOnLossLimit(t *testing.T) {
	limits := risk.Limits{MaxDailyLossSOL: 0.05}
	h := newHarness(t, false, limits, func(o *Options) { o.ExitOnLossLimit = true })
	ctx := context.Background()
	h.open(t, "MINT")

	h.o.monitorOnce(ctx)
	assert.Equal(t, 1, h.positions.Count())

	require.NoError(t, h.gate.RecordRealizedPnl(ctx, -0.06))
	h.o.monitorOnce(ctx)

	assert.Equal(t, 0, h.positions.Count())
	assert.Equal(t, []domain.ExitReason{domain.ExitReasonDailyLimit}, h.notifier.exitReasons())
}

func TestAdmit_PausedWhileOpen(t *testing.T) {
	h := newHarness(t, false, risk.DefaultLimits(), nil)
	h.open(t, "HELD")

	h.o.admit(domain.Candidate{Mint: "NEW"})
	assert.Equal(t, 0, h.q.Len())
	assert.True(t, h.o.Status().DiscoveryPaused)

	h.market.set(0.00009)
	h.o.monitorOnce(context.Background())
	require.Equal(t, 0, h.positions.Count())

	h.o.admit(domain.Candidate{Mint: "NEW"})
	assert.Equal(t, 1, h.q.Len())

	// The exited mint is cooling down.
	h.o.admit(domain.Candidate{Mint: "HELD"})
	assert.Equal(t, 1, h.q.Len())
}

func TestResumeAfterCooldown(t *testing.T) {
	h := newHarness(t, false, risk.DefaultLimits(), func(o *Options) {
		o.ResumePolicy = ResumeAfterCooldown
		o.ResumeCooldown = 2 * time.Minute
	})
	h.open(t, "MINT")

	require.NoError(t, h.o.RequestExit("MINT", domain.ExitReasonEmergency))
	h.o.monitorOnce(context.Background())
	require.Equal(t, 0, h.positions.Count())

	assert.True(t, h.o.discoveryPaused())
	h.advance(2 * time.Minute)
	assert.False(t, h.o.discoveryPaused())
}

func TestSweepRejections(t *testing.T) {
	h := newHarness(t, false, risk.DefaultLimits(), nil)
	h.q.MarkRejected("A", "too_young")
	require.Equal(t, 1, h.q.GetStats().ActiveRejections)

	h.advance(queue.DefaultConfig().Cooldown)
	h.o.sweepRejections()
	assert.Equal(t, 0, h.q.GetStats().ActiveRejections)
}

func TestScheduleJobs_BadSpec(t *testing.T) {
	h := newHarness(t, false, risk.DefaultLimits(), func(o *Options) { o.WeeklyResetSpec = "every tuesday" })
	_, err := h.o.scheduleJobs(context.Background())
	assert.Error(t, err)
}

func TestRun_EntersAndExits(t *testing.T) {
	h := newHarness(t, true, risk.DefaultLimits(), func(o *Options) {
		o.PollInterval = 5 * time.Millisecond
		o.MonitorInterval = 10 * time.Millisecond
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.o.Run(ctx) }()

	h.source <- domain.Candidate{Mint: "MINT", Symbol: "SYM", DiscoveredAt: time.Now()}
	require.Eventually(t, func() bool { return h.positions.Count() == 1 }, 2*time.Second, 5*time.Millisecond)

	h.market.set(0.00009)
	require.Eventually(t, func() bool { return h.positions.Count() == 0 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}

	h.notifier.mu.Lock()
	defer h.notifier.mu.Unlock()
	assert.Equal(t, []string{"MINT"}, h.notifier.opened)
	require.Len(t, h.notifier.exits, 1)
	assert.Equal(t, domain.ExitReasonStopLoss, h.notifier.exits[0].Reason)
	assert.True(t, h.notifier.exits[0].Closed)
	assert.False(t, h.o.LastMonitorAt().IsZero())
}

func TestRun_RestoresPositions(t *testing.T) {
	store := memory.NewPositionStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &domain.Position{
		ID: "p1", Mint: "OLD", EntryPrice: 0.0001, CurrentPrice: 0.0001,
		Quantity: 1000, CostBasis: 0.1, Status: domain.PositionStatusActive,
		EntryTime: time.Now(), HighestPrice: 0.0001,
	}))

	h := newHarness(t, true, risk.DefaultLimits(), nil)
	h.positions = position.NewManager(position.Config{Store: store, Logger: zerolog.Nop()})
	h.o.opts.Positions = h.positions
	h.market.set(0.00009)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- h.o.Run(runCtx) }()

	require.Eventually(t, func() bool { return len(h.notifier.exitReasons()) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 0, h.positions.Count())
	assert.Equal(t, []domain.ExitReason{domain.ExitReasonStopLoss}, h.notifier.exitReasons())
	_, err := store.Get(ctx, "p1")
	assert.Error(t, err, "closed position is removed from the store")
}
