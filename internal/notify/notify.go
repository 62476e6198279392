// Package notify reports trading activity to the operator and accepts
// operator commands.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"solana-token-trader/internal/domain"
)

// Notifier receives trading events. Implementations must not block the
// caller for long.
type Notifier interface {
	PositionOpened(ctx context.Context, p *domain.Position)
	PositionExited(ctx context.Context, ev domain.ExitEvent)
	Alert(ctx context.Context, msg string)
}

// Status is a point-in-time view of the trader.
type Status struct {
	StartedAt       time.Time
	DryRun          bool
	DiscoveryPaused bool
	Queued          int
	Processed       int
	OpenPositions   int
	Risk            domain.RiskState
}

// Controller is the trader surface exposed to operator commands.
type Controller interface {
	Status() Status
	Positions() []*domain.Position
	RequestExit(mint string, reason domain.ExitReason) error
}

// LogNotifier writes events to the structured log.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a notifier backed by logger.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: logger}
}

func (n *LogNotifier) PositionOpened(_ context.Context, p *domain.Position) {
	n.log.Info().
		Str("position_id", p.ID).
		Str("mint", p.Mint).
		Str("symbol", p.Symbol).
		Float64("entry_price", p.EntryPrice).
		Float64("cost_basis", p.CostBasis).
		Msg("position opened")
}

func (n *LogNotifier) PositionExited(_ context.Context, ev domain.ExitEvent) {
	n.log.Info().
		Str("position_id", ev.PositionID).
		Str("mint", ev.Mint).
		Str("reason", ev.Reason.String()).
		Float64("percent", ev.PercentSold).
		Float64("realized_pnl", ev.RealizedPnl).
		Bool("closed", ev.Closed).
		Msg("position exit")
}

func (n *LogNotifier) Alert(_ context.Context, msg string) {
	n.log.Warn().Msg(msg)
}

// Multi fans events out to several notifiers.
type Multi []Notifier

func (m Multi) PositionOpened(ctx context.Context, p *domain.Position) {
	for _, n := range m {
		n.PositionOpened(ctx, p)
	}
}

func (m Multi) PositionExited(ctx context.Context, ev domain.ExitEvent) {
	for _, n := range m {
		n.PositionExited(ctx, ev)
	}
}

func (m Multi) Alert(ctx context.Context, msg string) {
	for _, n := range m {
		n.Alert(ctx, msg)
	}
}

func formatOpened(p *domain.Position) string {
	return fmt.Sprintf("BUY %s (%s)\nentry %.10f SOL\ncost %.4f SOL\nqty %.2f",
		p.Symbol, p.Mint, p.EntryPrice, p.CostBasis, p.Quantity)
}

func formatExited(ev domain.ExitEvent) string {
	kind := "PARTIAL SELL"
	if ev.Closed {
		kind = "SELL"
	}
	return fmt.Sprintf("%s %s [%s]\nsold %.0f%% at %.10f SOL\nproceeds %.4f SOL\npnl %+.4f SOL",
		kind, ev.Mint, ev.Reason, ev.PercentSold, ev.SellPrice, ev.Proceeds, ev.RealizedPnl)
}

func formatStatus(s Status, now time.Time) string {
	var b strings.Builder
	mode := "live"
	if s.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(&b, "mode: %s\n", mode)
	fmt.Fprintf(&b, "uptime: %s\n", now.Sub(s.StartedAt).Truncate(time.Second))
	fmt.Fprintf(&b, "discovery paused: %v\n", s.DiscoveryPaused)
	fmt.Fprintf(&b, "queued: %d, processed: %d\n", s.Queued, s.Processed)
	fmt.Fprintf(&b, "open positions: %d\n", s.OpenPositions)
	fmt.Fprintf(&b, "trades today: %d\n", s.Risk.TradeCountToday)
	fmt.Fprintf(&b, "pnl today: %+.4f SOL, week: %+.4f SOL", s.Risk.PnlToday, s.Risk.PnlThisWeek)
	return b.String()
}

func formatPositions(ps []*domain.Position) string {
	if len(ps) == 0 {
		return "no open positions"
	}
	var b strings.Builder
	for i, p := range ps {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s (%s) %s\n", p.Symbol, p.Mint, p.Status)
		fmt.Fprintf(&b, "entry %.10f now %.10f\n", p.EntryPrice, p.CurrentPrice)
		fmt.Fprintf(&b, "pnl %+.4f SOL (%+.2f%%)", p.UnrealizedPnl, p.UnrealizedPnlPct)
	}
	return b.String()
}
