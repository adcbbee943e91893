package engine

import (
	"context"
	"time"

	"github.com/minisource/jobkeeper/internal/events"
	"github.com/minisource/jobkeeper/internal/jobkeepererr"
	"github.com/minisource/jobkeeper/internal/plan"
	"github.com/minisource/jobkeeper/internal/runner"
	"github.com/minisource/jobkeeper/pkg/logging"
)

const dueTriggerBatch = 100

// armPollTimer starts the poll loop if it isn't already running (spec
// §4.9.3). Safe to call repeatedly; only the first call after disarm has
// an effect.
func (e *Engine) armPollTimer() {
	e.pollTimerMu.Lock()
	defer e.pollTimerMu.Unlock()
	if e.pollArmed {
		return
	}
	e.pollArmed = true
	e.pollTimer = time.AfterFunc(0, e.pollTick)
}

// rearmPollTimer wakes the poll loop immediately, coalescing with
// whatever is already pending. Used after Schedule/ResumeAll so a newly
// due trigger doesn't wait a full poll interval.
func (e *Engine) rearmPollTimer() {
	e.pollTimerMu.Lock()
	defer e.pollTimerMu.Unlock()
	if !e.pollArmed || e.pollTimer == nil {
		return
	}
	e.pollTimer.Stop()
	e.pollTimer = time.AfterFunc(0, e.pollTick)
}

func (e *Engine) disarmTimers() {
	e.pollTimerMu.Lock()
	e.pollArmed = false
	if e.pollTimer != nil {
		e.pollTimer.Stop()
	}
	e.pollTimerMu.Unlock()

	if e.stalledTimer != nil {
		e.stalledTimer.Stop()
	}
}

func (e *Engine) pollTick() {
	select {
	case <-e.stopCh:
		return
	default:
	}

	e.processTick(context.Background())

	e.pollTimerMu.Lock()
	if e.pollArmed {
		e.pollTimer = time.AfterFunc(e.cfg.PollInterval, e.pollTick)
	}
	e.pollTimerMu.Unlock()
}

func (e *Engine) isPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped || e.schedulerPaused
}

// processTick fetches up to dueTriggerBatch due triggers and processes
// each in turn (spec §4.9.3).
func (e *Engine) processTick(ctx context.Context) {
	if e.isPaused() {
		return
	}

	if e.cfg.Leader != nil {
		ok, err := e.cfg.Leader.TryAcquire(ctx)
		if err != nil {
			e.log.Error("leader gate", err)
			return
		}
		if !ok {
			return
		}
	}

	due, err := e.cfg.Store.ListDueTriggers(ctx, e.now(), dueTriggerBatch)
	if err != nil {
		e.log.Error("list due triggers", err)
		return
	}

	for _, t := range due {
		e.processTrigger(ctx, t.ID)
	}
}

// processTrigger claims the trigger's lease and, if won, processes it.
// Losing the claim race (another scheduler instance got there first, or
// the trigger was paused/deleted in the meantime) is a silent no-op.
func (e *Engine) processTrigger(ctx context.Context, id string) {
	t, err := e.cfg.Store.GetTrigger(ctx, id)
	if err != nil {
		return
	}
	if t.Paused {
		return
	}

	ok, err := e.cfg.Store.ClaimTrigger(ctx, id, e.cfg.ID, e.cfg.LeaseDuration)
	if err != nil {
		e.log.Error("claim trigger", err, logging.F("trigger_id", id))
		return
	}
	if !ok {
		return
	}

	e.processDueTrigger(ctx, t)
}

// processDueTrigger runs the misfire-adjusted occurrence(s) for a
// claimed trigger, then advances (or retires) it and releases the lease
// (spec §4.9.4).
func (e *Engine) processDueTrigger(ctx context.Context, t *Trigger) {
	defer func() {
		if err := e.cfg.Store.ReleaseTrigger(ctx, t.ID, e.cfg.ID); err != nil {
			e.log.Error("release trigger", err, logging.F("trigger_id", t.ID))
		}
	}()

	if t.NextRunAt == nil {
		return
	}
	scheduledAt := *t.NextRunAt

	job, err := e.cfg.Store.GetJob(ctx, t.Job)
	if err != nil {
		e.log.Warn("job missing for trigger", logging.F("trigger_id", t.ID), logging.F("job", t.Job))
		return
	}

	p := e.triggerPlan(t)
	if p == nil {
		e.log.Error("cannot resolve plan for trigger", nil, logging.F("trigger_id", t.ID))
		return
	}

	if job.Paused {
		next, ok := p.Next(scheduledAt)
		e.advanceTrigger(ctx, t, next, ok)
		return
	}

	now := e.now()
	toRun, next, ok := e.misfireDecision(t, p, scheduledAt, now)

	for _, occ := range toRun {
		if e.runWithRetries(ctx, t, job, occ) {
			// The stalled monitor already rescheduled or advanced this
			// trigger while this run was in flight (spec §4.9.4 step 6);
			// back off rather than advancing it a second time.
			return
		}
	}

	e.advanceTrigger(ctx, t, next, ok)
}

// misfireDecision wraps expandMisfire with the skip-policy logging spec §8
// scenario 3 requires.
func (e *Engine) misfireDecision(t *Trigger, p plan.Plan, scheduledAt, now time.Time) (toRun []time.Time, next time.Time, ok bool) {
	toRun, next, ok, skipped := expandMisfire(p, t.MisfirePolicy, scheduledAt, now, e.cfg.MisfireTolerance, e.cfg.MaxMisfireSkip)
	if skipped > 0 && (t.MisfirePolicy == MisfireSkip || t.MisfirePolicy == "") {
		e.log.Warn("misfire skip: advancing past missed occurrences",
			logging.F("trigger_id", t.ID), logging.F("skipped", skipped), logging.F("next_run_at", next))
	}
	return toRun, next, ok
}

func (e *Engine) triggerPlan(t *Trigger) plan.Plan {
	e.mu.Lock()
	p := e.plans[t.ID]
	e.mu.Unlock()
	if p != nil {
		return p
	}

	built, err := buildPlan(t.Plan)
	if err != nil {
		return nil
	}
	e.mu.Lock()
	e.plans[t.ID] = built
	e.mu.Unlock()
	return built
}

// advanceTrigger persists the trigger's next fire instant with a fresh
// run id and emits scheduled, or — once its plan is exhausted — deletes
// the trigger, drops its cached plan, and emits drain (spec §4.9.4 step
// 8).
func (e *Engine) advanceTrigger(ctx context.Context, t *Trigger, next time.Time, ok bool) {
	now := e.now()
	t.LastRunAt = &now

	if !ok {
		if err := e.cfg.Store.DeleteTrigger(ctx, t.ID); err != nil {
			e.log.Error("advance trigger: delete exhausted", err, logging.F("trigger_id", t.ID))
			return
		}
		e.mu.Lock()
		delete(e.plans, t.ID)
		e.mu.Unlock()
		e.bus.Emit(events.Drain, events.DrainPayload{PendingRuns: 0, At: now})
		return
	}

	nt := next
	t.NextRunAt = &nt
	runID := newRunID(t.ID, now)
	t.setNextRunID(runID)

	if err := e.cfg.Store.UpsertTrigger(ctx, t); err != nil {
		e.log.Error("advance trigger", err, logging.F("trigger_id", t.ID))
		return
	}
	e.bus.Emit(events.Scheduled, events.ScheduledPayload{
		TriggerID: t.ID, Job: t.Job, RunID: runID, ScheduledAt: nt, QueuedAt: now,
	})
}

// runWithRetries runs one occurrence of job, retrying per its retry
// policy until it succeeds or exhausts attempts (spec §4.9.6). attempt
// tracks 1:1 with the trigger's persisted failureCount (attempt =
// failureCount+1), zeroed on success or once attempts are exhausted.
// Returns true if the stalled monitor handled this run out from under
// it while it was in flight (spec §4.9.4 step 6); the caller must then
// stop processing the trigger rather than advance it a second time.
func (e *Engine) runWithRetries(ctx context.Context, t *Trigger, job *Job, scheduledAt time.Time) bool {
	def := e.resolveDef(job)
	maxAttempts := def.Retry.maxAttempts()

	runID := t.nextRunID()
	if runID == "" {
		runID = newRunID(t.ID, e.now())
	}

	for {
		attempt := t.FailureCount + 1

		startedAt := e.now()
		run := &Run{
			ID: runID, TriggerID: t.ID, Job: t.Job,
			ScheduledAt: scheduledAt, StartedAt: startedAt, HeartbeatAt: startedAt,
			Status: RunRunning, Attempt: attempt,
		}
		if err := e.cfg.Store.RecordRunStart(ctx, run); err != nil {
			e.log.Error("record run start", err, logging.F("run_id", runID))
			return false
		}

		release := e.acquireCapacity(t.Job)
		e.registerReleaseThunk(runID, release)
		e.activeRunWG.Add(1)

		e.bus.Emit(events.Run, events.RunPayload{
			TriggerID: t.ID, Job: t.Job, RunID: runID, Attempt: attempt,
			ScheduledAt: scheduledAt, StartedAt: startedAt,
		})

		out := runner.Run(ctx, runner.Input{
			JobName:     job.Name,
			Handler:     e.adaptHandler(def),
			Timeout:     e.effectiveTimeout(def),
			RunID:       runID,
			TriggerID:   t.ID,
			ScheduledAt: scheduledAt,
			Attempt:     attempt,
			Log:         e.log,
			Touch: func(progress *float64) error {
				if err := e.cfg.Store.TouchRun(ctx, runID, progress); err != nil {
					return err
				}
				if progress != nil {
					e.bus.Emit(events.Progress, events.ProgressPayload{
						RunID: runID, TriggerID: t.ID, Job: t.Job, Progress: *progress, At: e.now(),
					})
				}
				return nil
			},
		})

		if rel := e.takeReleaseThunk(runID); rel != nil {
			rel()
		}
		e.activeRunWG.Done()

		e.mu.Lock()
		handledByMonitor := e.handledRuns[runID]
		if handledByMonitor {
			delete(e.handledRuns, runID)
		}
		e.mu.Unlock()
		if handledByMonitor {
			return true
		}

		if out.Err == nil {
			if err := e.cfg.Store.RecordRunEnd(ctx, runID, RunEndResult{Status: RunCompleted, Result: out.Result}); err != nil {
				e.log.Error("record run end", err, logging.F("run_id", runID))
			}
			e.bus.Emit(events.Completed, events.CompletedPayload{
				TriggerID: t.ID, Job: t.Job, RunID: runID, Attempt: attempt,
				ScheduledAt: scheduledAt, CompletedAt: e.now(), Result: out.Result,
			})
			t.FailureCount = 0
			return false
		}

		if err := e.cfg.Store.RecordRunEnd(ctx, runID, RunEndResult{Status: RunFailed, Err: out.Err.Error()}); err != nil {
			e.log.Error("record run end", err, logging.F("run_id", runID))
		}
		e.bus.Emit(events.ErrorEvt, events.ErrorPayload{
			TriggerID: t.ID, Job: t.Job, RunID: runID, Attempt: attempt, Error: out.Err.Error(),
		})
		t.FailureCount++

		if attempt >= maxAttempts {
			t.FailureCount = 0
			return false
		}

		delay := def.Retry.delay(attempt + 1)
		nextRunID := newRunID(t.ID, e.now())
		t.setNextRunID(nextRunID)
		e.bus.Emit(events.Retry, events.RetryPayload{
			RunID: nextRunID, TriggerID: t.ID, Job: t.Job,
			Attempt: attempt + 1, DelayMs: delay.Milliseconds(),
		})

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-e.stopCh:
				return false
			}
		}

		runID = nextRunID
	}
}

func (e *Engine) effectiveTimeout(def JobDefinition) time.Duration {
	if def.Worker != nil {
		if wt := def.Worker.Timeout(); wt > 0 {
			return wt
		}
	}
	return def.Timeout
}

// adaptHandler bridges engine's Handler/Worker job shapes onto the
// runner package's plain HandlerFunc, so runner doesn't need to import
// engine (see internal/runner's package doc).
func (e *Engine) adaptHandler(def JobDefinition) runner.HandlerFunc {
	return func(ctx context.Context, rrc runner.RunContext) (interface{}, error) {
		erc := RunContext{
			RunID: rrc.RunID, TriggerID: rrc.TriggerID, Job: rrc.Job,
			ScheduledAt: rrc.ScheduledAt, Attempt: rrc.Attempt, Touch: rrc.Touch,
		}
		if def.Worker != nil {
			return def.Worker.Run(ctx, erc)
		}
		if def.Handler == nil {
			return nil, jobkeepererr.Configurationf("job %q has no handler registered on this process", rrc.Job)
		}
		return def.Handler(ctx, erc)
	}
}
