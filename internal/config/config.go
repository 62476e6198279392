// Package config loads trader settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"solana-token-trader/internal/discovery"
	"solana-token-trader/internal/gating"
	"solana-token-trader/internal/jupiter"
	"solana-token-trader/internal/marketdata"
	"solana-token-trader/internal/orchestrator"
	"solana-token-trader/internal/pipeline"
	"solana-token-trader/internal/queue"
	"solana-token-trader/internal/risk"
	pgstore "solana-token-trader/internal/storage/postgres"
	"solana-token-trader/internal/strategy"
)

// Storage modes.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Fatal configuration errors.
var (
	ErrMissingWallet         = errors.New("config: WALLET_PRIVATE_KEY is required unless DRY_RUN is set")
	ErrMissingRPC            = errors.New("config: SOLANA_RPC_ENDPOINT is required")
	ErrInvalidStorage        = errors.New("config: STORAGE_MODE must be memory or postgres")
	ErrMissingPostgresDSN    = errors.New("config: POSTGRES_DSN is required for postgres storage")
	ErrMissingTelegramChat   = errors.New("config: TELEGRAM_CHAT_ID is required with TELEGRAM_TOKEN")
	ErrInvalidTradeSize      = errors.New("config: MIN_TRADE_SOL must not exceed MAX_TRADE_SOL")
	ErrInvalidTranche        = errors.New("config: TRANCHE1_PCT must be in (0, 100]")
	ErrInvalidResumePolicy   = errors.New("config: RESUME_POLICY must be immediate or after_cooldown")
	ErrInvalidMaxConcurrency = errors.New("config: MAX_CONCURRENT must be positive")
)

// Config is every trader setting.
type Config struct {
	DryRun    bool
	LogLevel  string
	LogPretty bool
	HTTPAddr  string
	Location  *time.Location // trading day boundary

	WalletKey   string
	RPCEndpoint string
	RPCTimeout  time.Duration

	JupiterURL    string
	PriceProbeSOL float64
	CandlesURL    string
	DryRunBalance float64

	PumpPortalURL string

	StorageMode   string
	PostgresDSN   string
	PostgresPool  pgstore.PoolOptions
	ClickhouseDSN string // optional trade journal

	TelegramToken  string
	TelegramChatID int64

	Queue        queue.Config
	Risk         risk.Limits
	Pipeline     pipeline.Config
	Exit         strategy.Config
	Gating       gating.Config
	Orchestrator orchestrator.Options // settings only, collaborators are wired by the caller
}

// Load reads files (default ".env", which may be missing) without
// overriding variables already set, then builds the config from the
// environment. Malformed values are reported together.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	} else if err := godotenv.Load(files...); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	var e env
	c := &Config{
		DryRun:    e.getBool("DRY_RUN", true),
		LogLevel:  e.getString("LOG_LEVEL", "info"),
		LogPretty: e.getBool("LOG_PRETTY", false),
		HTTPAddr:  e.getString("HTTP_ADDR", ":9090"),

		WalletKey:   os.Getenv("WALLET_PRIVATE_KEY"),
		RPCEndpoint: e.getString("SOLANA_RPC_ENDPOINT", "https://api.mainnet-beta.solana.com"),
		RPCTimeout:  e.getDuration("SOLANA_RPC_TIMEOUT", 15*time.Second),

		JupiterURL:    e.getString("JUPITER_API_URL", ""),
		PriceProbeSOL: e.getFloat("PRICE_PROBE_SOL", jupiter.DefaultProbeSOL),
		CandlesURL:    e.getString("CANDLES_API_URL", marketdata.DefaultCandlesURL),
		DryRunBalance: e.getFloat("DRY_RUN_BALANCE_SOL", 1),

		PumpPortalURL: e.getString("PUMPPORTAL_WS_URL", discovery.DefaultPumpPortalURL),

		StorageMode:   strings.ToLower(e.getString("STORAGE_MODE", StorageMemory)),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		ClickhouseDSN: os.Getenv("CLICKHOUSE_DSN"),

		TelegramToken:  os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatID: e.getInt64("TELEGRAM_CHAT_ID", 0),
	}

	c.PostgresPool = pgstore.PoolOptions{
		MaxConns:        int32(e.getInt("POSTGRES_MAX_CONNS", 4)),
		MaxConnLifetime: e.getDuration("POSTGRES_MAX_CONN_LIFETIME", time.Hour),
	}

	tz := e.getString("TRADING_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		e.fail("TRADING_TIMEZONE", err)
		loc = time.UTC
	}
	c.Location = loc

	c.Queue = queue.DefaultConfig()
	c.Queue.MaxSize = e.getInt("QUEUE_MAX_SIZE", c.Queue.MaxSize)
	c.Queue.Cooldown = e.getDuration("QUEUE_COOLDOWN", c.Queue.Cooldown)
	c.Queue.RetryDelay = e.getDuration("QUEUE_RETRY_DELAY", c.Queue.RetryDelay)
	c.Queue.MaxRetries = e.getInt("QUEUE_MAX_RETRIES", c.Queue.MaxRetries)

	c.Risk = risk.DefaultLimits()
	c.Risk.MaxTradesPerDay = e.getInt("MAX_TRADES_PER_DAY", c.Risk.MaxTradesPerDay)
	c.Risk.MaxDailyLossSOL = e.getFloat("MAX_DAILY_LOSS_SOL", c.Risk.MaxDailyLossSOL)
	c.Risk.MaxWeeklyLossSOL = e.getFloat("MAX_WEEKLY_LOSS_SOL", c.Risk.MaxWeeklyLossSOL)

	p := pipeline.DefaultConfig()
	p.MaxConcurrent = e.getInt("MAX_CONCURRENT", p.MaxConcurrent)
	p.MaxOpenPositions = e.getInt("MAX_OPEN_POSITIONS", p.MaxOpenPositions)
	p.TradeCooldown = e.getDuration("TRADE_COOLDOWN", p.TradeCooldown)
	p.MinTradeSOL = e.getFloat("MIN_TRADE_SOL", p.MinTradeSOL)
	p.MaxTradeSOL = e.getFloat("MAX_TRADE_SOL", p.MaxTradeSOL)
	p.ReserveSOL = e.getFloat("RESERVE_SOL", p.ReserveSOL)
	p.Tranche1Pct = e.getFloat("TRANCHE1_PCT", p.Tranche1Pct)
	p.SlippagePct = e.getFloat("BUY_SLIPPAGE_PCT", p.SlippagePct)
	p.ConfirmSamples = e.getInt("CONFIRM_SAMPLES", p.ConfirmSamples)
	p.ConfirmInterval = e.getDuration("CONFIRM_INTERVAL", p.ConfirmInterval)
	c.Pipeline = p

	x := strategy.DefaultConfig()
	x.StopLossPct = e.getFloat("STOP_LOSS_PCT", x.StopLossPct)
	x.NoNewHighTimeout = e.getDuration("NO_NEW_HIGH_TIMEOUT", x.NoNewHighTimeout)
	x.MaxHoldTime = e.getDuration("MAX_HOLD_TIME", x.MaxHoldTime)
	x.TP1Pct = e.getFloat("TP1_PCT", x.TP1Pct)
	x.TP1SellPct = e.getFloat("TP1_SELL_PCT", x.TP1SellPct)
	x.TP2Pct = e.getFloat("TP2_PCT", x.TP2Pct)
	x.TP2SellPct = e.getFloat("TP2_SELL_PCT", x.TP2SellPct)
	x.RunnerTrailPct = e.getFloat("RUNNER_TRAIL_PCT", x.RunnerTrailPct)
	x.StallCandles = e.getInt("STALL_CANDLES", x.StallCandles)
	x.StallRangePct = e.getFloat("STALL_RANGE_PCT", x.StallRangePct)
	c.Exit = x

	g := gating.DefaultConfig()
	g.MinAge = e.getDuration("MIN_TOKEN_AGE", g.MinAge)
	g.MaxAge = e.getDuration("MAX_TOKEN_AGE", g.MaxAge)
	g.MinCurveProgressPct = e.getFloat("MIN_CURVE_PROGRESS_PCT", g.MinCurveProgressPct)
	g.MaxCurveProgressPct = e.getFloat("MAX_CURVE_PROGRESS_PCT", g.MaxCurveProgressPct)
	g.MinMarketCapSOL = e.getFloat("MIN_MARKET_CAP_SOL", g.MinMarketCapSOL)
	g.MaxMarketCapSOL = e.getFloat("MAX_MARKET_CAP_SOL", g.MaxMarketCapSOL)
	g.MaxSingleHolderPct = e.getFloat("MAX_SINGLE_HOLDER_PCT", g.MaxSingleHolderPct)
	g.MaxTopHoldersPct = e.getFloat("MAX_TOP_HOLDERS_PCT", g.MaxTopHoldersPct)
	g.MomentumCandles = e.getInt("MOMENTUM_CANDLES", g.MomentumCandles)
	c.Gating = g

	o := orchestrator.DefaultOptions()
	o.MaxConcurrent = p.MaxConcurrent
	o.MonitorInterval = e.getDuration("MONITOR_INTERVAL", o.MonitorInterval)
	o.CandleInterval = e.getDuration("CANDLE_INTERVAL", o.CandleInterval)
	o.DiscoveryRate = rate.Limit(e.getFloat("DISCOVERY_RATE", float64(o.DiscoveryRate)))
	o.DiscoveryBurst = e.getInt("DISCOVERY_BURST", o.DiscoveryBurst)
	o.PauseWhileOpen = e.getBool("PAUSE_WHILE_OPEN", o.PauseWhileOpen)
	o.ResumePolicy = orchestrator.ResumePolicy(e.getString("RESUME_POLICY", string(o.ResumePolicy)))
	o.ResumeCooldown = e.getDuration("RESUME_COOLDOWN", o.ResumeCooldown)
	o.SellSlippagePct = e.getFloat("SELL_SLIPPAGE_PCT", o.SellSlippagePct)
	o.ExitOnLossLimit = e.getBool("EXIT_ON_LOSS_LIMIT", o.ExitOnLossLimit)
	o.CleanupSpec = e.getString("REJECTION_SWEEP_SCHEDULE", o.CleanupSpec)
	o.WeeklyResetSpec = e.getString("WEEKLY_RESET_SCHEDULE", o.WeeklyResetSpec)
	o.Location = loc
	o.DryRun = c.DryRun
	c.Orchestrator = o

	if err := e.err(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate reports every fatal configuration problem.
func (c *Config) Validate() error {
	var errs []error
	if !c.DryRun && strings.TrimSpace(c.WalletKey) == "" {
		errs = append(errs, ErrMissingWallet)
	}
	if c.RPCEndpoint == "" {
		errs = append(errs, ErrMissingRPC)
	}
	switch c.StorageMode {
	case StorageMemory:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, ErrMissingPostgresDSN)
		}
	default:
		errs = append(errs, ErrInvalidStorage)
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		errs = append(errs, ErrMissingTelegramChat)
	}
	if c.Pipeline.MinTradeSOL > c.Pipeline.MaxTradeSOL {
		errs = append(errs, ErrInvalidTradeSize)
	}
	if c.Pipeline.Tranche1Pct <= 0 || c.Pipeline.Tranche1Pct > 100 {
		errs = append(errs, ErrInvalidTranche)
	}
	if c.Pipeline.MaxConcurrent <= 0 {
		errs = append(errs, ErrInvalidMaxConcurrency)
	}
	if !c.Orchestrator.ResumePolicy.IsValid() {
		errs = append(errs, ErrInvalidResumePolicy)
	}
	if err := c.Exit.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// env reads typed variables and collects parse errors.
type env struct {
	errs []error
}

func (e *env) fail(key string, err error) {
	e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
}

func (e *env) err() error {
	return errors.Join(e.errs...)
}

func (e *env) getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return n
}

func (e *env) getInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return n
}

func (e *env) getFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return f
}

func (e *env) getBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return b
}

func (e *env) getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return d
}
