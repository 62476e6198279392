package orchestrator

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// scheduleJobs registers the rejection sweep and the weekly risk reset.
// The returned scheduler is not started.
func (o *Orchestrator) scheduleJobs(ctx context.Context) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(o.opts.Location))

	if o.opts.CleanupSpec != "" {
		if _, err := c.AddFunc(o.opts.CleanupSpec, o.sweepRejections); err != nil {
			return nil, fmt.Errorf("schedule rejection sweep %q: %w", o.opts.CleanupSpec, err)
		}
	}
	if o.opts.WeeklyResetSpec != "" {
		if _, err := c.AddFunc(o.opts.WeeklyResetSpec, func() { o.resetWeekly(ctx) }); err != nil {
			return nil, fmt.Errorf("schedule weekly reset %q: %w", o.opts.WeeklyResetSpec, err)
		}
	}
	return c, nil
}

func (o *Orchestrator) sweepRejections() {
	if n := o.opts.Queue.CleanupExpiredRejections(); n > 0 {
		o.log.Debug().Int("expired", n).Msg("rejections swept")
	}
	stats := o.opts.Queue.GetStats()
	o.opts.Metrics.UpdateQueue(stats.Queued, stats.ActiveRejections)
}

func (o *Orchestrator) resetWeekly(ctx context.Context) {
	if err := o.opts.Risk.ResetWeekly(ctx); err != nil {
		o.log.Error().Err(err).Msg("weekly risk reset failed")
		return
	}
	o.log.Info().Msg("weekly pnl reset")
}
