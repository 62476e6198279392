package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"solana-token-trader/internal/domain"
	"solana-token-trader/internal/pipeline"
)

// Queue drop reasons reported to metrics.
const (
	dropPaused    = "discovery_paused"
	dropCooldown  = "rejection_cooldown"
	dropDuplicate = "duplicate_or_full"
)

// ingestLoop moves discovered candidates into the queue. It returns nil
// when the source stream ends.
func (o *Orchestrator) ingestLoop(ctx context.Context) error {
	ch, err := o.opts.Source.Candidates(ctx)
	if err != nil {
		return fmt.Errorf("start discovery: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				o.log.Warn().Msg("discovery stream ended")
				return nil
			}
			if err := o.limiter.Wait(ctx); err != nil {
				return err
			}
			o.admit(c)
		}
	}
}

// admit offers c to the queue unless discovery is paused.
func (o *Orchestrator) admit(c domain.Candidate) {
	if o.discoveryPaused() {
		o.opts.Metrics.RecordQueueAdd(false, dropPaused)
		return
	}

	if o.opts.Queue.Add(c) {
		o.opts.Metrics.RecordQueueAdd(true, "")
		o.log.Debug().Str("mint", c.Mint).Str("symbol", c.Symbol).Msg("candidate queued")
	} else {
		reason := dropDuplicate
		if _, ok := o.opts.Queue.Rejection(c.Mint); ok {
			reason = dropCooldown
		}
		o.opts.Metrics.RecordQueueAdd(false, reason)
	}

	stats := o.opts.Queue.GetStats()
	o.opts.Metrics.UpdateQueue(stats.Queued, stats.ActiveRejections)
}

// pipelineLoop hands queued candidates to the pipeline, at most
// MaxConcurrent at a time. In-flight candidates finish before it returns.
func (o *Orchestrator) pipelineLoop(ctx context.Context) error {
	sem := semaphore.NewWeighted(int64(o.opts.MaxConcurrent))
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		c, ok := o.opts.Queue.GetNext()
		if !ok {
			sem.Release(1)
			if err := sleep(ctx, o.opts.PollInterval); err != nil {
				return err
			}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			o.process(ctx, c)
		}()
	}
}

func (o *Orchestrator) process(ctx context.Context, c domain.Candidate) {
	res := o.opts.Pipeline.Process(ctx, c)
	switch res.Outcome {
	case pipeline.OutcomeEntered:
		o.opts.Notifier.PositionOpened(ctx, res.Position)
	case pipeline.OutcomeBusy:
		// Busy leaves the entry in processing; hand it back.
		o.opts.Queue.MarkSkipped(c.Mint)
	}
	stats := o.opts.Queue.GetStats()
	o.opts.Metrics.UpdateQueue(stats.Queued, stats.ActiveRejections)
}
