package engine

import (
	"context"
	"time"
)

// RunEndResult is what RecordRunEnd persists for a terminal run.
type RunEndResult struct {
	Status RunStatus
	Result interface{}
	Err    string
}

// Store is the persistence boundary (spec §4.6). Implementations must
// take copies on read and write so callers cannot mutate persisted
// state through an aliased pointer.
type Store interface {
	Init(ctx context.Context) error

	UpsertJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, name string) (*Job, error)
	ListJobs(ctx context.Context) ([]*Job, error)
	SetJobPaused(ctx context.Context, name string, paused bool) error
	RemoveJob(ctx context.Context, name string) error

	UpsertTrigger(ctx context.Context, trig *Trigger) error
	GetTrigger(ctx context.Context, id string) (*Trigger, error)
	ListTriggers(ctx context.Context) ([]*Trigger, error)
	DeleteTrigger(ctx context.Context, id string) error

	// ListDueTriggers returns up to limit triggers with Paused=false,
	// NextRunAt <= now, and either no lease or an expired lease. Sort
	// order: ascending Priority, then ascending NextRunAt, then
	// ascending ID.
	ListDueTriggers(ctx context.Context, now time.Time, limit int) ([]*Trigger, error)

	// ClaimTrigger atomically attempts to take or renew the lease.
	ClaimTrigger(ctx context.Context, id, ownerID string, leaseDuration time.Duration) (bool, error)
	// ReleaseTrigger clears the lease if held by ownerID; no-op
	// otherwise.
	ReleaseTrigger(ctx context.Context, id, ownerID string) error

	RecordRunStart(ctx context.Context, run *Run) error
	RecordRunEnd(ctx context.Context, runID string, result RunEndResult) error
	TouchRun(ctx context.Context, runID string, progress *float64) error
	FindStalledRuns(ctx context.Context, heartbeatTimeout time.Duration, now time.Time) ([]*Run, error)
	GetRun(ctx context.Context, runID string) (*Run, error)
}
