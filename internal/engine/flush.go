package engine

import (
	"context"
	"fmt"

	"kudobot/internal/eventbus"
	"kudobot/internal/metrics"
	logx "kudobot/pkg/logx"
)

// Flush drains up to MaxDrain pending ids and sends one kudos per id,
// sequentially, paced by the send limiter.
//
// Semantics:
//   - An empty drain is a total no-op (no ledger writes, no API calls),
//     which also makes a double trigger safe: the second flush finds an
//     already-drained batch.
//   - An auth failure aborts before any send; the drained ids are lost.
//   - The active-day counter moves at most once per flush, before the
//     sends, and regardless of whether they succeed.
//   - A failed send is logged and skipped; the rest of the batch proceeds.
//   - A started flush runs to completion. The caller's context (an HTTP
//     request that times out, say) must not be able to drop the tail of
//     a drained batch, so the flush detaches from it up front.
func (e *Engine) Flush(ctx context.Context) (FlushResult, error) {
	ctx = context.WithoutCancel(ctx)

	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	cfg, limiter := e.config()
	now := e.clock.Now()

	ids, err := e.store.DrainPending(ctx, cfg.MaxDrain, now, cfg.ResetOpenOnPartialDrain)
	if err != nil {
		return FlushResult{}, fmt.Errorf("drain: %w", err)
	}
	if len(ids) == 0 {
		if e.bus != nil {
			e.bus.Publish(eventbus.Event{Type: "flush.skipped", Time: now})
		}
		return FlushResult{}, nil
	}

	res := FlushResult{Drained: len(ids)}
	start := now
	metrics.Flushes.Inc()

	if err := e.api.EnsureAuth(ctx); err != nil {
		// Accepted tradeoff: the drained ids are not re-queued.
		e.log.Error("flush aborted, no usable credential",
			logx.Int("lost", len(ids)),
			logx.Err(err),
		)
		return res, fmt.Errorf("auth: %w", err)
	}

	day := now.In(cfg.Location).Format("2006-01-02")
	firstToday, err := e.store.MarkActiveDay(ctx, day)
	if err != nil {
		return res, fmt.Errorf("mark active day: %w", err)
	}
	if firstToday {
		e.log.Info("first flush of the day", logx.String("day", day))
	}

	for _, id := range ids {
		if err := limiter.Wait(ctx); err != nil {
			return res, fmt.Errorf("send pacing: %w", err)
		}
		if err := e.api.GiveKudos(ctx, id); err != nil {
			res.Failed++
			metrics.KudosSendFailures.Inc()
			e.log.Warn("kudos failed", logx.Int64("activity", id), logx.Err(err))
			continue
		}
		res.Sent++
		metrics.KudosSent.Inc()
		if err := e.store.RecordSends(ctx, 1); err != nil {
			e.log.Error("ledger update failed", logx.Err(err))
		}
	}

	if err := e.store.SetLastFlush(ctx, e.clock.Now()); err != nil {
		return res, fmt.Errorf("set last flush: %w", err)
	}

	size, _, err := e.store.PendingState(ctx)
	if err == nil {
		res.Remaining = size
		metrics.PendingBatchSize.Set(float64(size))
	}

	res.Took = e.clock.Now().Sub(start)
	metrics.FlushDuration.Observe(res.Took.Seconds())
	e.log.Info("flush complete",
		logx.Int("sent", res.Sent),
		logx.Int("failed", res.Failed),
		logx.Int("remaining", res.Remaining),
		logx.Duration("took", res.Took),
	)
	if e.bus != nil {
		e.bus.Publish(eventbus.Event{Type: "flush.completed", Time: e.clock.Now(), Data: res})
	}
	return res, nil
}
