package engine

import (
	"context"
	"time"

	"github.com/minisource/jobkeeper/internal/events"
	"github.com/minisource/jobkeeper/internal/jobkeepererr"
)

// JobHandle lets a caller manage a registered job (spec §4.9.2).
type JobHandle struct {
	e    *Engine
	name string
}

// Pause pauses the job: the engine stops firing its triggers.
func (h *JobHandle) Pause(ctx context.Context) error {
	if err := h.e.cfg.Store.SetJobPaused(ctx, h.name, true); err != nil {
		return storeErr(err, "pause job")
	}
	h.e.bus.Emit(events.Paused, events.PausedPayload{Scope: events.ScopeJob, Identifier: h.name, At: h.e.now()})
	return nil
}

// Resume resumes a paused job.
func (h *JobHandle) Resume(ctx context.Context) error {
	if err := h.e.cfg.Store.SetJobPaused(ctx, h.name, false); err != nil {
		return storeErr(err, "resume job")
	}
	h.e.bus.Emit(events.Resumed, events.PausedPayload{Scope: events.ScopeJob, Identifier: h.name, At: h.e.now()})
	return nil
}

// Unregister removes the job but leaves any runs already persisted.
func (h *JobHandle) Unregister(ctx context.Context) error {
	if err := h.e.cfg.Store.RemoveJob(ctx, h.name); err != nil {
		return storeErr(err, "unregister job")
	}
	h.e.mu.Lock()
	delete(h.e.jobSemaphores, h.name)
	delete(h.e.jobRateLimiters, h.name)
	delete(h.e.defs, h.name)
	h.e.mu.Unlock()
	return nil
}

// RegisterJob validates and upserts a job definition (spec §4.9.2).
func (e *Engine) RegisterJob(ctx context.Context, def JobDefinition) (*JobHandle, error) {
	if def.Handler == nil && def.Worker == nil {
		return nil, jobkeepererr.Configurationf("job %q must have a handler or worker", def.Name)
	}
	if def.RateLimit != nil && def.RateLimit.Capacity <= 0 {
		return nil, jobkeepererr.Configurationf("job %q rate limit capacity must be > 0", def.Name)
	}

	job := &Job{Name: def.Name, Def: def}
	if err := e.cfg.Store.UpsertJob(ctx, job); err != nil {
		return nil, storeErr(err, "register job")
	}

	e.mu.Lock()
	e.defs[def.Name] = def
	e.rebuildJobCapacityLocked(job)
	e.mu.Unlock()

	return &JobHandle{e: e, name: def.Name}, nil
}

// JobHandleFor builds a handle for an already-registered job, letting a
// caller (e.g. internal/httpapi) manage it by name without re-registering.
func (e *Engine) JobHandleFor(name string) *JobHandle {
	return &JobHandle{e: e, name: name}
}

// TriggerHandle lets a caller manage a scheduled trigger (spec §4.9.2).
type TriggerHandle struct {
	e  *Engine
	id string
}

// TriggerHandleFor builds a handle for an existing trigger id, letting a
// caller manage it without the TriggerHandle returned by Schedule.
func (e *Engine) TriggerHandleFor(id string) *TriggerHandle {
	return &TriggerHandle{e: e, id: id}
}

// ID returns the trigger's id.
func (h *TriggerHandle) ID() string { return h.id }

// Pause pauses the trigger.
func (h *TriggerHandle) Pause(ctx context.Context) error {
	t, err := h.e.cfg.Store.GetTrigger(ctx, h.id)
	if err != nil {
		return storeErr(err, "get trigger")
	}
	t.Paused = true
	if err := h.e.cfg.Store.UpsertTrigger(ctx, t); err != nil {
		return storeErr(err, "pause trigger")
	}
	h.e.bus.Emit(events.Paused, events.PausedPayload{Scope: events.ScopeTrigger, Identifier: h.id, At: h.e.now()})
	return nil
}

// Resume resumes a paused trigger.
func (h *TriggerHandle) Resume(ctx context.Context) error {
	t, err := h.e.cfg.Store.GetTrigger(ctx, h.id)
	if err != nil {
		return storeErr(err, "get trigger")
	}
	t.Paused = false
	if err := h.e.cfg.Store.UpsertTrigger(ctx, t); err != nil {
		return storeErr(err, "resume trigger")
	}
	h.e.bus.Emit(events.Resumed, events.PausedPayload{Scope: events.ScopeTrigger, Identifier: h.id, At: h.e.now()})
	return nil
}

// Cancel deletes the trigger. A cancel racing with a claim loses: the
// in-flight run completes, but no further fire occurs (spec §5).
// Cancelling an unknown trigger is a no-op.
func (h *TriggerHandle) Cancel(ctx context.Context) error {
	t, err := h.e.cfg.Store.GetTrigger(ctx, h.id)
	if err != nil {
		if kind, ok := jobkeepererr.Of(err); ok && kind == jobkeepererr.NotFound {
			return nil
		}
		return storeErr(err, "get trigger")
	}

	if err := h.e.cfg.Store.DeleteTrigger(ctx, h.id); err != nil {
		return storeErr(err, "cancel trigger")
	}
	h.e.mu.Lock()
	delete(h.e.plans, h.id)
	h.e.mu.Unlock()

	h.e.bus.Emit(events.Canceled, events.CanceledPayload{
		TriggerID: h.id,
		Job:       t.Job,
		RunID:     t.nextRunID(),
		Reason:    "canceled",
	})
	return nil
}

// Schedule builds a plan from opts, computes the first fire instant, and
// persists the trigger (spec §4.9.2).
func (e *Engine) Schedule(ctx context.Context, jobName string, opts TriggerOptions) (*TriggerHandle, error) {
	if _, err := e.cfg.Store.GetJob(ctx, jobName); err != nil {
		return nil, storeErr(err, "schedule: job lookup")
	}

	if opts.Plan.Kind == "interval" && opts.Plan.IntervalStart.IsZero() {
		opts.Plan.IntervalStart = e.now()
	}

	p, err := buildPlan(opts)
	if err != nil {
		return nil, jobkeepererr.Configurationf("schedule: %v", err)
	}

	now := e.now()
	first, ok := p.Next(now.Add(-time.Nanosecond))
	if !ok {
		return nil, jobkeepererr.Statef("schedule: plan for job %q produced no first fire instant", jobName)
	}

	id := opts.IdempotencyKey
	if id == "" {
		id = newTriggerID(jobName, now)
	}

	misfire := opts.MisfirePolicy
	if misfire == "" {
		misfire = MisfireSkip
	}

	trig := &Trigger{
		ID:            id,
		Job:           jobName,
		Plan:          opts,
		Priority:      opts.Priority,
		NextRunAt:     &first,
		MisfirePolicy: misfire,
		Metadata:      cloneMeta(opts.Metadata),
	}
	runID := newRunID(id, now)
	trig.setNextRunID(runID)

	if err := e.cfg.Store.UpsertTrigger(ctx, trig); err != nil {
		return nil, storeErr(err, "schedule: persist trigger")
	}

	e.mu.Lock()
	e.plans[id] = p
	e.mu.Unlock()

	e.bus.Emit(events.Scheduled, events.ScheduledPayload{
		TriggerID: id, Job: jobName, RunID: runID, ScheduledAt: first, QueuedAt: now,
	})

	e.rearmPollTimer()

	return &TriggerHandle{e: e, id: id}, nil
}

func cloneMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ExecuteOverrides customizes a one-shot ExecuteNow call.
type ExecuteOverrides struct {
	RunAt time.Time
}

// ExecuteResult is returned by ExecuteNow once the run has been
// enqueued.
type ExecuteResult struct {
	TriggerID string
	RunID     string
}

// ExecuteNow synthesises a one-shot "at" trigger clamped to now (spec
// §4.9.2, §9 open question #1) and processes it immediately in the
// current call.
func (e *Engine) ExecuteNow(ctx context.Context, jobName string, overrides *ExecuteOverrides) (*ExecuteResult, error) {
	if _, err := e.cfg.Store.GetJob(ctx, jobName); err != nil {
		return nil, storeErr(err, "executeNow: job lookup")
	}

	now := e.now()
	runAt := now
	if overrides != nil && overrides.RunAt.After(now) {
		runAt = overrides.RunAt
	}

	id := newTriggerID(jobName, now)
	runID := newRunID(id, now)

	trig := &Trigger{
		ID:            id,
		Job:           jobName,
		Plan:          TriggerOptions{Plan: PlanOptions{Kind: "at", RunAt: runAt}, MisfirePolicy: MisfireSkip},
		NextRunAt:     &runAt,
		MisfirePolicy: MisfireSkip,
		Metadata:      map[string]string{},
	}
	trig.setNextRunID(runID)

	if err := e.cfg.Store.UpsertTrigger(ctx, trig); err != nil {
		return nil, storeErr(err, "executeNow: persist trigger")
	}

	p, err := buildPlan(trig.Plan)
	if err != nil {
		return nil, jobkeepererr.Statef("executeNow: %v", err)
	}
	e.mu.Lock()
	e.plans[id] = p
	e.mu.Unlock()

	e.bus.Emit(events.Scheduled, events.ScheduledPayload{
		TriggerID: id, Job: jobName, RunID: runID, ScheduledAt: runAt, QueuedAt: now,
	})

	e.processTrigger(ctx, id)

	return &ExecuteResult{TriggerID: id, RunID: runID}, nil
}

// PauseAll flips the scheduler-wide pause flag (spec §4.9.2).
func (e *Engine) PauseAll(ctx context.Context) error {
	e.mu.Lock()
	e.schedulerPaused = true
	e.mu.Unlock()
	e.bus.Emit(events.Paused, events.PausedPayload{Scope: events.ScopeScheduler, At: e.now()})
	return nil
}

// ResumeAll clears the scheduler-wide pause flag and re-arms the poll
// timer (spec §4.9.2).
func (e *Engine) ResumeAll(ctx context.Context) error {
	e.mu.Lock()
	e.schedulerPaused = false
	e.mu.Unlock()
	e.bus.Emit(events.Resumed, events.PausedPayload{Scope: events.ScopeScheduler, At: e.now()})
	e.rearmPollTimer()
	return nil
}

// ShutdownOptions configures Shutdown.
type ShutdownOptions struct {
	Graceful bool
	GraceMs  int64
}

// Shutdown stops the engine (spec §4.9.2). If Graceful, it races the set
// of active runs against a timeout (default 5s).
func (e *Engine) Shutdown(ctx context.Context, opts ShutdownOptions) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	e.mu.Unlock()

	close(e.stopCh)
	e.disarmTimers()

	if opts.Graceful {
		grace := time.Duration(opts.GraceMs) * time.Millisecond
		if grace <= 0 {
			grace = 5 * time.Second
		}
		waitCh := make(chan struct{})
		go func() {
			e.activeRunWG.Wait()
			close(waitCh)
		}()
		select {
		case <-waitCh:
		case <-time.After(grace):
		}
	}

	e.bus.Emit(events.Shutdown, events.ShutdownPayload{At: e.now(), Graceful: opts.Graceful})
	return nil
}
