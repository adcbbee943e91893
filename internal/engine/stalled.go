package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/minisource/jobkeeper/internal/events"
	"github.com/minisource/jobkeeper/pkg/logging"
)

// armStalledMonitor starts the periodic stalled-run sweep (spec §4.9.7)
// at the clamp(250ms, min(heartbeatInterval, stalledAfter/2)) period.
func (e *Engine) armStalledMonitor() {
	period := e.cfg.stalledMonitorPeriod()
	e.stalledTimer = time.NewTicker(period)
	t := e.stalledTimer

	go func() {
		for {
			select {
			case <-e.stopCh:
				return
			case <-t.C:
				e.sweepStalled(context.Background())
			}
		}
	}()
}

// sweepStalled finds runs whose heartbeat has lapsed past StalledAfter
// and, exactly once per run (guarded by handledRuns), marks it stalled,
// releases any capacity it still holds, and either reschedules a retry
// or advances the trigger's plan (spec §4.9.7 step 2). The atomic guard
// makes the sweep itself reentrancy-safe: a sweep that is still running
// when its tick fires again is skipped rather than overlapped.
func (e *Engine) sweepStalled(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&e.stalledBusy, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&e.stalledBusy, 0)

	stalled, err := e.cfg.Store.FindStalledRuns(ctx, e.cfg.StalledAfter, e.now())
	if err != nil {
		e.log.Error("find stalled runs", err)
		return
	}

	for _, r := range stalled {
		e.mu.Lock()
		already := e.handledRuns[r.ID]
		e.handledRuns[r.ID] = true
		e.mu.Unlock()
		if already {
			continue
		}

		if err := e.cfg.Store.RecordRunEnd(ctx, r.ID, RunEndResult{Status: RunStalled, Err: "stalled: heartbeat lapsed"}); err != nil {
			e.log.Error("record stalled run", err, logging.F("run_id", r.ID))
			continue
		}
		e.bus.Emit(events.Stalled, events.StalledPayload{
			RunID: r.ID, TriggerID: r.TriggerID, Job: r.Job, LastHeartbeatAt: r.HeartbeatAt,
		})

		if release := e.takeReleaseThunk(r.ID); release != nil {
			release()
		}

		e.rescheduleAfterStall(ctx, r)
	}
}

// rescheduleAfterStall bumps the trigger's failureCount, evaluates the
// retry policy, and either schedules a retry or advances the trigger's
// plan, per spec §4.9.7 step 2 / §4.9.6.
func (e *Engine) rescheduleAfterStall(ctx context.Context, r *Run) {
	t, err := e.cfg.Store.GetTrigger(ctx, r.TriggerID)
	if err != nil {
		e.log.Warn("stalled run's trigger is gone", logging.F("run_id", r.ID), logging.F("trigger_id", r.TriggerID))
		return
	}

	job, err := e.cfg.Store.GetJob(ctx, r.Job)
	if err != nil {
		e.log.Warn("stalled run's job is gone", logging.F("run_id", r.ID), logging.F("job", r.Job))
		return
	}

	attempt := r.Attempt
	if attempt < 1 {
		attempt = 1
	}
	t.FailureCount = attempt

	def := e.resolveDef(job)
	if def.Retry != nil && attempt < def.Retry.maxAttempts() {
		delay := def.Retry.delay(attempt + 1)
		e.scheduleStalledRetry(ctx, t, attempt, delay)
		return
	}

	t.FailureCount = 0
	p := e.triggerPlan(t)
	if p == nil {
		e.log.Error("cannot resolve plan for stalled trigger", nil, logging.F("trigger_id", t.ID))
		return
	}
	next, ok := p.Next(r.ScheduledAt)
	e.advanceTrigger(ctx, t, next, ok)
}

// scheduleStalledRetry persists the trigger's next attempt after a
// stalled run hands control back to the store-driven path (spec
// §4.9.7, §4.9.4 step 7). Unlike the synchronous in-process retry loop
// in runWithRetries, there is no live goroutine left to run this
// attempt itself, so it is picked up by the next poll tick like any
// other due trigger.
func (e *Engine) scheduleStalledRetry(ctx context.Context, t *Trigger, attempt int, delay time.Duration) {
	now := e.now()
	nextRunID := newRunID(t.ID, now)
	runAt := now.Add(delay)
	t.setNextRunID(nextRunID)
	t.NextRunAt = &runAt

	e.bus.Emit(events.Retry, events.RetryPayload{
		RunID: nextRunID, TriggerID: t.ID, Job: t.Job,
		Attempt: attempt + 1, DelayMs: delay.Milliseconds(),
	})

	if err := e.cfg.Store.UpsertTrigger(ctx, t); err != nil {
		e.log.Error("schedule stalled retry", err, logging.F("trigger_id", t.ID))
		return
	}
	e.bus.Emit(events.Scheduled, events.ScheduledPayload{
		TriggerID: t.ID, Job: t.Job, RunID: nextRunID, ScheduledAt: runAt, QueuedAt: now,
	})
}
