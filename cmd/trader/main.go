// Package main runs the trader: discovery, gating, entries, position
// monitoring and exits, with health, metrics and status served over HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"solana-token-trader/internal/config"
	"solana-token-trader/internal/discovery"
	"solana-token-trader/internal/gating"
	"solana-token-trader/internal/jupiter"
	"solana-token-trader/internal/logging"
	"solana-token-trader/internal/marketdata"
	"solana-token-trader/internal/notify"
	"solana-token-trader/internal/observability"
	"solana-token-trader/internal/orchestrator"
	"solana-token-trader/internal/pipeline"
	"solana-token-trader/internal/position"
	"solana-token-trader/internal/queue"
	"solana-token-trader/internal/retry"
	"solana-token-trader/internal/risk"
	"solana-token-trader/internal/solana"
	"solana-token-trader/internal/storage"
	chstore "solana-token-trader/internal/storage/clickhouse"
	"solana-token-trader/internal/storage/memory"
	"solana-token-trader/internal/storage/migrations"
	pgstore "solana-token-trader/internal/storage/postgres"
	"solana-token-trader/internal/strategy"
)

// stores holds the persistence backends.
type stores struct {
	positions storage.PositionStore
	risk      storage.RiskStateStore
	journal   storage.TradeJournal
	ping      func(ctx context.Context) error // nil when nothing to check
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Flags override env defaults
	dryRun := flag.Bool("dry-run", cfg.DryRun, "Quote swaps without sending transactions")
	storageMode := flag.String("storage", cfg.StorageMode, "Storage backend: memory or postgres")
	httpAddr := flag.String("http-addr", cfg.HTTPAddr, "Health, metrics and status HTTP address")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	pretty := flag.Bool("pretty", cfg.LogPretty, "Human-readable console logs")
	flag.Parse()

	cfg.DryRun = *dryRun
	cfg.Orchestrator.DryRun = *dryRun
	cfg.StorageMode = *storageMode
	cfg.HTTPAddr = *httpAddr

	logger := logging.New(logging.Config{Level: *logLevel, Pretty: *pretty, Service: "trader"})

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()

		// A second signal or a stuck shutdown forces exit
		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error().Msg("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, logger)
	close(done)
	cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("trader stopped with error")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg, "")

	st, cleanup, err := createStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	rpc := solana.NewHTTPClient(cfg.RPCEndpoint,
		solana.WithTimeout(cfg.RPCTimeout),
		solana.WithMetrics(metrics),
	)

	var wallet solana.Keypair
	if cfg.WalletKey != "" {
		wallet, err = solana.ParseKeypair(cfg.WalletKey)
		if err != nil {
			return fmt.Errorf("wallet: %w", err)
		}
		logger.Info().Str("wallet", wallet.PublicKey().String()).Msg("wallet loaded")
	}

	jc, err := jupiter.NewClient(cfg.JupiterURL, rpc, retry.DefaultPolicy(), metrics)
	if err != nil {
		return err
	}
	executor, err := jupiter.NewExecutor(jc, rpc, jupiter.ExecutorConfig{
		Wallet:        wallet,
		DryRun:        cfg.DryRun,
		DryRunBalance: cfg.DryRunBalance,
		Logger:        logging.Component(logger, "executor"),
	})
	if err != nil {
		return err
	}

	candles := marketdata.NewCandleClient(cfg.CandlesURL, 10*time.Second, retry.DefaultPolicy(), metrics)
	market := marketdata.NewProvider(jupiter.NewPriceSource(jc, cfg.PriceProbeSOL), candles, marketdata.Config{
		FallbackInterval: cfg.Orchestrator.CandleInterval,
		Logger:           logging.Component(logger, "marketdata"),
	})

	gcfg := cfg.Gating
	gcfg.Logger = logging.Component(logger, "gating")
	checks := gating.New(gcfg, rpc, candles)

	riskGate, err := risk.New(ctx, risk.Config{
		Limits:   cfg.Risk,
		Location: cfg.Location,
		Store:    st.risk,
		Logger:   logging.Component(logger, "risk"),
	})
	if err != nil {
		return err
	}

	positions := position.NewManager(position.Config{
		Risk:    riskGate,
		Store:   st.positions,
		Journal: st.journal,
		Metrics: metrics,
		Logger:  logging.Component(logger, "positions"),
	})

	qcfg := cfg.Queue
	qcfg.Logger = logging.Component(logger, "queue")
	q := queue.New(qcfg)

	pcfg := cfg.Pipeline
	pcfg.Logger = logging.Component(logger, "pipeline")
	pcfg.Metrics = metrics
	pipe := pipeline.New(pcfg, pipeline.Deps{
		Queue:     q,
		Risk:      riskGate,
		Positions: positions,
		Checks:    checks,
		Market:    market,
		Executor:  executor,
	})

	engine, err := strategy.NewEngine(cfg.Exit)
	if err != nil {
		return err
	}

	source := discovery.NewPumpPortal(discovery.Config{
		URL:     cfg.PumpPortalURL,
		Logger:  logging.Component(logger, "discovery"),
		Metrics: metrics,
	})

	notifiers := notify.Multi{notify.NewLogNotifier(logging.Component(logger, "events"))}
	var tg *notify.Telegram
	if cfg.TelegramToken != "" {
		tg, err = notify.NewTelegram(notify.TelegramConfig{
			Token:  cfg.TelegramToken,
			ChatID: cfg.TelegramChatID,
			Logger: logging.Component(logger, "telegram"),
		}, nil)
		if err != nil {
			return err
		}
		notifiers = append(notifiers, tg)
	}

	opts := cfg.Orchestrator
	opts.Queue = q
	opts.Risk = riskGate
	opts.Positions = positions
	opts.Pipeline = pipe
	opts.Engine = engine
	opts.Market = market
	opts.Executor = executor
	opts.Source = source
	opts.Notifier = notifiers
	opts.Metrics = metrics
	opts.Logger = logger
	orch, err := orchestrator.New(opts)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orch.Run(gctx) })
	if tg != nil {
		tg.SetController(orch)
		g.Go(func() error { return tg.Run(gctx) })
	}
	health := healthHandler(orch.LastMonitorAt, cfg.Orchestrator.MonitorInterval, st.ping, time.Now)
	g.Go(func() error { return serveHTTP(gctx, cfg.HTTPAddr, reg, orch, health, logger) })

	return g.Wait()
}

// createStores opens the configured backends and applies migrations.
func createStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, func(), error) {
	if cfg.StorageMode == config.StorageMemory {
		logger.Warn().Msg("in-memory storage: open positions are lost on restart")
		return &stores{
			positions: memory.NewPositionStore(),
			risk:      memory.NewRiskStateStore(),
			journal:   memory.NewTradeJournal(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPoolWithOptions(ctx, cfg.PostgresDSN, cfg.PostgresPool)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	st := &stores{
		positions: pgstore.NewPositionStore(pool),
		risk:      pgstore.NewRiskStateStore(pool),
		ping:      pool.Healthy,
	}
	if cfg.ClickhouseDSN == "" {
		logger.Info().Msg("no clickhouse dsn, exit journal disabled")
		return st, pool.Close, nil
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	st.journal = chstore.NewTradeJournal(conn)

	cleanup := func() {
		conn.Close()
		pool.Close()
	}
	return st, cleanup, nil
}

// statusResponse is the JSON body of /status.
type statusResponse struct {
	Status          string             `json:"status"`
	Uptime          string             `json:"uptime"`
	DryRun          bool               `json:"dry_run"`
	DiscoveryPaused bool               `json:"discovery_paused"`
	Queued          int                `json:"queued"`
	Processed       int                `json:"processed"`
	LastMonitor     time.Time          `json:"last_monitor,omitempty"`
	TradesToday     int                `json:"trades_today"`
	PnlToday        float64            `json:"pnl_today_sol"`
	PnlThisWeek     float64            `json:"pnl_week_sol"`
	Positions       []positionResponse `json:"positions"`
}

type positionResponse struct {
	ID               string    `json:"id"`
	Mint             string    `json:"mint"`
	Symbol           string    `json:"symbol"`
	Status           string    `json:"status"`
	EntryPrice       float64   `json:"entry_price"`
	CurrentPrice     float64   `json:"current_price"`
	Quantity         float64   `json:"quantity"`
	CostBasis        float64   `json:"cost_basis_sol"`
	UnrealizedPnl    float64   `json:"unrealized_pnl_sol"`
	UnrealizedPnlPct float64   `json:"unrealized_pnl_pct"`
	EntryTime        time.Time `json:"entry_time"`
}

// healthHandler reports unhealthy once the monitor loop has stalled or the
// database stops answering. ping may be nil.
func healthHandler(lastMonitor func() time.Time, monitorEvery time.Duration, ping func(context.Context) error, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		last := lastMonitor()
		if !last.IsZero() && now().Sub(last) > 3*monitorEvery+time.Minute {
			http.Error(w, "monitor stalled", http.StatusServiceUnavailable)
			return
		}
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

// serveHTTP serves /healthz, /metrics and /status until ctx is done.
func serveHTTP(ctx context.Context, addr string, g prometheus.Gatherer, orch *orchestrator.Orchestrator, health http.HandlerFunc, logger zerolog.Logger) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", health)

	mux.Handle("/metrics", observability.Handler(g))

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		s := orch.Status()
		resp := statusResponse{
			Status:          "running",
			Uptime:          time.Since(s.StartedAt).Truncate(time.Second).String(),
			DryRun:          s.DryRun,
			DiscoveryPaused: s.DiscoveryPaused,
			Queued:          s.Queued,
			Processed:       s.Processed,
			LastMonitor:     orch.LastMonitorAt(),
			TradesToday:     s.Risk.TradeCountToday,
			PnlToday:        s.Risk.PnlToday,
			PnlThisWeek:     s.Risk.PnlThisWeek,
			Positions:       []positionResponse{},
		}
		for _, p := range orch.Positions() {
			resp.Positions = append(resp.Positions, positionResponse{
				ID:               p.ID,
				Mint:             p.Mint,
				Symbol:           p.Symbol,
				Status:           string(p.Status),
				EntryPrice:       p.EntryPrice,
				CurrentPrice:     p.CurrentPrice,
				Quantity:         p.Quantity,
				CostBasis:        p.CostBasis,
				UnrealizedPnl:    p.UnrealizedPnl,
				UnrealizedPnlPct: p.UnrealizedPnlPct,
				EntryTime:        p.EntryTime,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("http server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
