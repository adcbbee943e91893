// Package engine implements the scheduler engine (spec §4.9): bootstrap,
// the tick loop, claim→run→reschedule, the stalled monitor, pause/resume,
// and graceful shutdown.
package engine

import (
	"context"
	"time"
)

// HandlerFunc is a flat job handler: it receives run context and returns
// a result or an error.
type HandlerFunc func(ctx context.Context, rc RunContext) (interface{}, error)

// Worker is the richer job shape bearing its own timeout (spec §4.9
// "Dynamic dispatch / duck-typed job shapes").
type Worker interface {
	Run(ctx context.Context, rc RunContext) (interface{}, error)
	Timeout() time.Duration // <= 0 means "use the job's configured timeout"
}

// RunContext is handed to a job's handler/worker for the duration of one
// run.
type RunContext struct {
	RunID       string
	TriggerID   string
	Job         string
	ScheduledAt time.Time
	Attempt     int
	Touch       func(progress *float64)
}

// RetryStrategy computes the delay before attempt n (1-based, the attempt
// about to run). Negative results clamp to 0 (spec §3 Retry Policy).
type RetryStrategy func(attempt int) time.Duration

// RetryPolicy is attached to a Job (spec §3).
type RetryPolicy struct {
	MaxAttempts int
	Strategy    RetryStrategy
}

func (p *RetryPolicy) maxAttempts() int {
	if p == nil || p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p *RetryPolicy) delay(attempt int) time.Duration {
	if p == nil || p.Strategy == nil {
		return 0
	}
	d := p.Strategy(attempt)
	if d < 0 {
		return 0
	}
	return d
}

// RateLimitConfig mirrors concurrency.TokenBucketConfig at the job/global
// boundary so callers of this package don't need to import concurrency
// directly.
type RateLimitConfig struct {
	Capacity         int64
	RefillRate       int64
	RefillIntervalMs int64
	Burst            int64
}

// JobDefinition is what callers pass to RegisterJob.
type JobDefinition struct {
	Name          string
	Handler       HandlerFunc
	Worker        Worker
	Concurrency   int // <= 0 disables the per-job cap
	RateLimit     *RateLimitConfig
	Timeout       time.Duration
	Retry         *RetryPolicy
}

// Job is the persisted, in-process job record (spec §3).
type Job struct {
	Name        string
	Def         JobDefinition
	Paused      bool
}

// MisfirePolicy controls behaviour when a trigger fires more than
// misfireToleranceMs late (spec §3, §4.9.4).
type MisfirePolicy string

const (
	MisfireSkip    MisfirePolicy = "skip"
	MisfireFireNow MisfirePolicy = "fire-now"
	MisfireCatchUp MisfirePolicy = "catch-up"
)

// TriggerOptions are the behavioural flags a caller supplies to Schedule
// (spec §6).
type TriggerOptions struct {
	Plan           PlanOptions
	IdempotencyKey string
	MisfirePolicy  MisfirePolicy
	Priority       int
	Metadata       map[string]string
}

// PlanOptions is re-exported here (rather than imported from package
// plan) so callers of engine don't need to know about the Plan
// collaborator's package layout; engine translates it internally.
type PlanOptions struct {
	Kind          string // "at" | "cron" | "interval"
	RunAt         time.Time
	CronExpr      string
	Location      *time.Location
	Interval      time.Duration
	IntervalStart time.Time
}

const MetaNextRunID = "nextRunId"

// Trigger is the persisted fire-time rule for a job (spec §3).
type Trigger struct {
	ID       string
	Job      string
	Plan     TriggerOptions
	Priority int

	NextRunAt *time.Time
	LastRunAt *time.Time

	Paused       bool
	Revision     int64
	LeaseOwner   string
	LeasedUntil  time.Time

	FailureCount int

	MisfirePolicy MisfirePolicy
	Metadata      map[string]string
}

func (t *Trigger) nextRunID() string {
	if t.Metadata == nil {
		return ""
	}
	return t.Metadata[MetaNextRunID]
}

func (t *Trigger) setNextRunID(id string) {
	if t.Metadata == nil {
		t.Metadata = map[string]string{}
	}
	t.Metadata[MetaNextRunID] = id
}

// RunStatus is the lifecycle state of a Run (spec §3).
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunStalled   RunStatus = "stalled"
)

// Run is a single execution instance of a job (spec §3).
type Run struct {
	ID        string
	TriggerID string
	Job       string

	ScheduledAt time.Time
	StartedAt   time.Time
	HeartbeatAt time.Time
	EndedAt     time.Time

	Status   RunStatus
	Attempt  int
	Progress *float64
	Result   interface{}
	Err      string
}
