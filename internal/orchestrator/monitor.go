package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solana-token-trader/internal/domain"
	"solana-token-trader/internal/risk"
	"solana-token-trader/internal/strategy"
)

var (
	errNothingToSell = errors.New("nothing to sell")
	errSellNotFilled = errors.New("sell not filled")
)

// monitorLoop evaluates every open position each MonitorInterval.
func (o *Orchestrator) monitorLoop(ctx context.Context) error {
	ticker := time.NewTicker(o.opts.MonitorInterval)
	defer ticker.Stop()

	last := o.opts.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.monitorOnce(ctx)
			now := o.opts.Now()
			o.opts.Metrics.AddUptime(now.Sub(last))
			last = now
		}
	}
}

// monitorOnce runs one evaluation pass over the open positions.
func (o *Orchestrator) monitorOnce(ctx context.Context) {
	if o.opts.ExitOnLossLimit {
		o.requestLossLimitExits(ctx)
	}

	for _, p := range o.opts.Positions.GetActivePositions() {
		if ctx.Err() != nil {
			return
		}
		o.evaluate(ctx, p)
	}

	now := o.opts.Now()
	o.mu.Lock()
	o.lastMonitor = now
	o.mu.Unlock()

	rs := o.opts.Risk.Snapshot()
	stats := o.opts.Queue.GetStats()
	o.opts.Metrics.MarkMonitorTick(now)
	o.opts.Metrics.SetOpenPositions(o.opts.Positions.Count())
	o.opts.Metrics.UpdateRisk(rs.TradeCountToday, rs.PnlToday, rs.PnlThisWeek)
	o.opts.Metrics.UpdateQueue(stats.Queued, stats.ActiveRejections)
}

// requestLossLimitExits flags every open position for a daily_limit_exit
// once a loss limit blocks trading.
func (o *Orchestrator) requestLossLimitExits(ctx context.Context) {
	d := o.opts.Risk.IsTradingAllowed(ctx)
	if d.Allowed || (d.Reason != risk.ReasonDailyLossLimit && d.Reason != risk.ReasonWeeklyLossLimit) {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, p := range o.opts.Positions.GetActivePositions() {
		if _, ok := o.requested[p.ID]; !ok {
			o.requested[p.ID] = domain.ExitReasonDailyLimit
		}
	}
}

// evaluate refreshes the price of p, asks the exit engine and executes a
// non-hold decision.
func (o *Orchestrator) evaluate(ctx context.Context, p *domain.Position) {
	log := o.log.With().Str("position_id", p.ID).Str("mint", p.Mint).Logger()

	requested := o.takeRequested(p.ID)
	sample, err := o.opts.Market.FetchPrice(ctx, p.Mint)
	switch {
	case err == nil && sample != nil && sample.Price > 0:
		updated, err := o.opts.Positions.UpdatePosition(ctx, p.ID, sample.Price)
		if err != nil {
			log.Debug().Err(err).Msg("position update skipped")
			return
		}
		p = updated
	case requested == domain.ExitReasonNone:
		// Rules only run on a fresh price.
		if err != nil {
			log.Warn().Err(err).Msg("price unavailable, holding")
		} else {
			log.Debug().Msg("no price data, holding")
		}
		return
	default:
		log.Warn().Err(err).Str("reason", requested.String()).Msg("no fresh price, executing requested exit")
	}

	var candles []domain.Candle
	if n := o.opts.Engine.Config().StallCandles; n > 0 && p.RungsHit.TP2 {
		candles, err = o.opts.Market.FetchCandles(ctx, p.Mint, int(o.opts.CandleInterval.Seconds()), n)
		if err != nil {
			log.Debug().Err(err).Msg("candles unavailable")
			candles = nil
		}
	}

	in := strategy.NewInput(p, candles, o.opts.Now())
	in.Requested = requested
	decision := o.opts.Engine.Evaluate(in)
	if decision.Action == domain.ExitActionHold {
		return
	}

	if err := o.exit(ctx, p, decision); err != nil {
		log.Error().Err(err).Str("reason", decision.Reason.String()).Msg("exit failed")
		o.opts.Notifier.Alert(ctx, fmt.Sprintf("exit %s [%s] failed: %v", p.Mint, decision.Reason, err))
	}
}

// exit sells the decided share of p and books it. A failed sell leaves the
// position and any pending request untouched for the next pass.
func (o *Orchestrator) exit(ctx context.Context, p *domain.Position, d domain.ExitDecision) error {
	qty := p.Quantity * d.PercentToSell / 100
	if qty <= 0 {
		return errNothingToSell
	}

	sell := o.opts.Executor.Sell(ctx, p.Mint, qty, o.opts.SellSlippagePct)
	if !sell.Success {
		return fmt.Errorf("sell: %w", sellErr(sell))
	}

	price := sell.Proceeds / qty
	if price <= 0 {
		price = p.CurrentPrice
	}
	res, err := o.opts.Positions.ClosePosition(ctx, p.ID, price, d.PercentToSell, d.Reason, sell.Signature)
	if err != nil {
		return fmt.Errorf("sold %s but not booked (signature %s): %w", p.Mint, sell.Signature, err)
	}
	o.clearRequested(p.ID)

	o.log.Info().
		Str("position_id", p.ID).
		Str("mint", p.Mint).
		Str("reason", d.Reason.String()).
		Float64("percent", d.PercentToSell).
		Float64("price", price).
		Float64("realized_pnl", res.RealizedPnl).
		Bool("closed", res.Closed).
		Msg("exit executed")
	o.opts.Notifier.PositionExited(ctx, res.Event)

	if res.Closed {
		o.opts.Queue.MarkExited(p.Mint, d.Reason.String())
		o.positionClosed()
	}
	return nil
}

// positionClosed applies the resume policy once no position is open.
func (o *Orchestrator) positionClosed() {
	if o.opts.Positions.Count() > 0 || o.opts.ResumePolicy != ResumeAfterCooldown {
		return
	}
	o.mu.Lock()
	o.resumeAt = o.opts.Now().Add(o.opts.ResumeCooldown)
	o.mu.Unlock()
}

func sellErr(r domain.SellResult) error {
	if r.Err != nil {
		return r.Err
	}
	return errSellNotFilled
}
