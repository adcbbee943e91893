package engine

import (
	"context"
	"sync"
	"time"

	"github.com/minisource/jobkeeper/internal/concurrency"
	"github.com/minisource/jobkeeper/internal/events"
	"github.com/minisource/jobkeeper/internal/plan"
	"github.com/minisource/jobkeeper/pkg/logging"
)

// Engine is the scheduler engine (spec §4.9): it owns identity, clock,
// store, logger, bus, the per-job capacity caches, the plan cache, the
// active/handled run bookkeeping, and configuration.
type Engine struct {
	cfg Config
	bus *events.Bus
	log logging.Logger

	globalSem *concurrency.Semaphore
	globalTB  *concurrency.TokenBucket

	mu              sync.Mutex
	jobSemaphores   map[string]*concurrency.Semaphore
	jobRateLimiters map[string]*concurrency.TokenBucket
	plans           map[string]plan.Plan
	defs            map[string]JobDefinition // process-local handler/worker registry
	releaseThunks   map[string]func() // runId -> release capacity
	handledRuns     map[string]bool   // runId -> claimed by stalled monitor
	activeRunWG     sync.WaitGroup
	activeRunCount  int
	stopped         bool
	schedulerPaused bool

	bootstrapOnce sync.Once
	bootstrapErr  error
	bootstrapDone chan struct{}

	pollTimer    *time.Timer
	pollTimerMu  sync.Mutex
	pollArmed    bool
	stalledTimer *time.Ticker
	stalledBusy  int32 // reentrancy guard, accessed via atomic
	stopCh       chan struct{}
}

// New creates an Engine. Call Start before using it.
func New(cfg Config) *Engine {
	cfg.setDefaults()

	e := &Engine{
		cfg:             cfg,
		bus:             events.New(cfg.Logger),
		log:             cfg.Logger.Child(logging.F("scheduler_id", cfg.ID)),
		jobSemaphores:   make(map[string]*concurrency.Semaphore),
		jobRateLimiters: make(map[string]*concurrency.TokenBucket),
		plans:           make(map[string]plan.Plan),
		defs:            make(map[string]JobDefinition),
		releaseThunks:   make(map[string]func()),
		handledRuns:     make(map[string]bool),
		bootstrapDone:   make(chan struct{}),
		stopCh:          make(chan struct{}),
	}

	if cfg.MaxConcurrentRuns > 0 {
		e.globalSem = concurrency.NewSemaphore(cfg.MaxConcurrentRuns)
	}
	if cfg.GlobalRateLimit != nil {
		e.globalTB = concurrency.NewTokenBucket(concurrency.TokenBucketConfig{
			Capacity:         cfg.GlobalRateLimit.Capacity,
			RefillRate:       cfg.GlobalRateLimit.RefillRate,
			RefillIntervalMs: cfg.GlobalRateLimit.RefillIntervalMs,
			Burst:            cfg.GlobalRateLimit.Burst,
		}, cfg.Clock.Now)
	}

	return e
}

// Start runs bootstrap (spec §4.9.1) exactly once and arms the poll timer
// and stalled monitor.
func (e *Engine) Start(ctx context.Context) error {
	e.bootstrapOnce.Do(func() {
		e.bootstrapErr = e.bootstrap(ctx)
		close(e.bootstrapDone)
	})
	<-e.bootstrapDone
	return e.bootstrapErr
}

func (e *Engine) bootstrap(ctx context.Context) error {
	if err := e.cfg.Store.Init(ctx); err != nil {
		return storeErr(err, "init store")
	}

	jobs, err := e.cfg.Store.ListJobs(ctx)
	if err != nil {
		return storeErr(err, "list jobs")
	}
	e.mu.Lock()
	for _, j := range jobs {
		e.rebuildJobCapacityLocked(j)
	}
	e.mu.Unlock()

	triggers, err := e.cfg.Store.ListTriggers(ctx)
	if err != nil {
		return storeErr(err, "list triggers")
	}
	e.mu.Lock()
	for _, t := range triggers {
		if p, buildErr := buildPlan(t.Plan); buildErr == nil {
			e.plans[t.ID] = p
		} else {
			e.log.Warn("failed to rebuild plan for trigger", logging.F("trigger_id", t.ID), logging.F("error", buildErr.Error()))
		}
	}
	e.mu.Unlock()

	e.armPollTimer()
	e.armStalledMonitor()
	return nil
}

func (e *Engine) rebuildJobCapacityLocked(j *Job) {
	if j.Def.Concurrency > 0 {
		e.jobSemaphores[j.Name] = concurrency.NewSemaphore(j.Def.Concurrency)
	}
	if j.Def.RateLimit != nil {
		e.jobRateLimiters[j.Name] = concurrency.NewTokenBucket(concurrency.TokenBucketConfig{
			Capacity:         j.Def.RateLimit.Capacity,
			RefillRate:       j.Def.RateLimit.RefillRate,
			RefillIntervalMs: j.Def.RateLimit.RefillIntervalMs,
			Burst:            j.Def.RateLimit.Burst,
		}, e.cfg.Clock.Now)
	}
}

// resolveDef returns the handler/worker registered for job.Name in this
// process. A durable store (pgstore) round-trips only a job's scheduling
// metadata, not Go function values, so the handler/worker always comes
// from whichever process most recently called RegisterJob for that name
// — in a fleet where workers specialize by job kind, a trigger claimed by
// a process that never registered its job simply fails with
// E_CONFIGURATION rather than panicking.
func (e *Engine) resolveDef(job *Job) JobDefinition {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.defs[job.Name]; ok {
		return d
	}
	return job.Def
}

func buildPlan(opts TriggerOptions) (plan.Plan, error) {
	return plan.Build(plan.Options{
		Kind:          plan.Kind(opts.Plan.Kind),
		RunAt:         opts.Plan.RunAt,
		CronExpr:      opts.Plan.CronExpr,
		Location:      opts.Plan.Location,
		Interval:      opts.Plan.Interval,
		IntervalStart: opts.Plan.IntervalStart,
	})
}

// On registers an event listener (spec §4.9.2).
func (e *Engine) On(name events.Name, fn events.Listener) events.Unsubscribe {
	return e.bus.On(name, fn)
}

// GetRun proxies to the store (spec §4.9.2).
func (e *Engine) GetRun(ctx context.Context, runID string) (*Run, error) {
	return e.cfg.Store.GetRun(ctx, runID)
}

// ListJobs proxies to the store; used by internal/httpapi for read-only
// listing endpoints.
func (e *Engine) ListJobs(ctx context.Context) ([]*Job, error) {
	return e.cfg.Store.ListJobs(ctx)
}

// GetJob proxies to the store.
func (e *Engine) GetJob(ctx context.Context, name string) (*Job, error) {
	return e.cfg.Store.GetJob(ctx, name)
}

// ListTriggers proxies to the store.
func (e *Engine) ListTriggers(ctx context.Context) ([]*Trigger, error) {
	return e.cfg.Store.ListTriggers(ctx)
}

// GetTrigger proxies to the store.
func (e *Engine) GetTrigger(ctx context.Context, id string) (*Trigger, error) {
	return e.cfg.Store.GetTrigger(ctx, id)
}

// IsRunning reports whether the engine has not been shut down.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.stopped
}

func (e *Engine) now() time.Time { return e.cfg.Clock.Now() }
