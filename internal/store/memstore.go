// Package store provides Store implementations (spec §4.6): an
// in-memory reference store for tests and single-process embedding, and
// (in pgstore) a GORM/Postgres-backed durable store for clustered
// deployments.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/minisource/jobkeeper/internal/clock"
	"github.com/minisource/jobkeeper/internal/engine"
	"github.com/minisource/jobkeeper/internal/jobkeepererr"
)

// Memory is the in-memory reference Store implementation.
type Memory struct {
	clk clock.Clock

	mu       sync.Mutex
	jobs     map[string]*engine.Job
	triggers map[string]*engine.Trigger
	runs     map[string]*engine.Run
}

// NewMemory creates an empty in-memory Store driven by clk (nil uses the
// real wall clock).
func NewMemory(clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.New()
	}
	return &Memory{
		clk:      clk,
		jobs:     make(map[string]*engine.Job),
		triggers: make(map[string]*engine.Trigger),
		runs:     make(map[string]*engine.Run),
	}
}

func (m *Memory) Init(ctx context.Context) error { return nil }

func cloneJob(j *engine.Job) *engine.Job {
	c := *j
	return &c
}

func cloneTrigger(t *engine.Trigger) *engine.Trigger {
	c := *t
	if t.NextRunAt != nil {
		nr := *t.NextRunAt
		c.NextRunAt = &nr
	}
	if t.LastRunAt != nil {
		lr := *t.LastRunAt
		c.LastRunAt = &lr
	}
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func cloneRun(r *engine.Run) *engine.Run {
	c := *r
	if r.Progress != nil {
		p := *r.Progress
		c.Progress = &p
	}
	return &c
}

func (m *Memory) UpsertJob(ctx context.Context, job *engine.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.Name] = cloneJob(job)
	return nil
}

func (m *Memory) GetJob(ctx context.Context, name string) (*engine.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[name]
	if !ok {
		return nil, jobkeepererr.NotFoundf("job %q not found", name)
	}
	return cloneJob(j), nil
}

func (m *Memory) ListJobs(ctx context.Context) ([]*engine.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*engine.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, cloneJob(j))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out, nil
}

func (m *Memory) SetJobPaused(ctx context.Context, name string, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[name]
	if !ok {
		return jobkeepererr.NotFoundf("job %q not found", name)
	}
	j.Paused = paused
	return nil
}

func (m *Memory) RemoveJob(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, name)
	return nil
}

func (m *Memory) UpsertTrigger(ctx context.Context, trig *engine.Trigger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers[trig.ID] = cloneTrigger(trig)
	return nil
}

func (m *Memory) GetTrigger(ctx context.Context, id string) (*engine.Trigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.triggers[id]
	if !ok {
		return nil, jobkeepererr.NotFoundf("trigger %q not found", id)
	}
	return cloneTrigger(t), nil
}

func (m *Memory) ListTriggers(ctx context.Context) ([]*engine.Trigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*engine.Trigger, 0, len(m.triggers))
	for _, t := range m.triggers {
		out = append(out, cloneTrigger(t))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (m *Memory) DeleteTrigger(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.triggers, id)
	return nil
}

func (m *Memory) ListDueTriggers(ctx context.Context, now time.Time, limit int) ([]*engine.Trigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*engine.Trigger
	for _, t := range m.triggers {
		if t.Paused || t.NextRunAt == nil || t.NextRunAt.After(now) {
			continue
		}
		if t.LeaseOwner != "" && t.LeasedUntil.After(now) {
			continue
		}
		due = append(due, t)
	}

	sort.Slice(due, func(i, k int) bool {
		if due[i].Priority != due[k].Priority {
			return due[i].Priority < due[k].Priority
		}
		if !due[i].NextRunAt.Equal(*due[k].NextRunAt) {
			return due[i].NextRunAt.Before(*due[k].NextRunAt)
		}
		return due[i].ID < due[k].ID
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]*engine.Trigger, len(due))
	for i, t := range due {
		out[i] = cloneTrigger(t)
	}
	return out, nil
}

func (m *Memory) ClaimTrigger(ctx context.Context, id, ownerID string, leaseDuration time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.triggers[id]
	if !ok || t.Paused {
		return false, nil
	}
	now := m.clk.Now()
	if t.LeaseOwner != "" && t.LeaseOwner != ownerID && t.LeasedUntil.After(now) {
		return false, nil
	}

	t.LeaseOwner = ownerID
	t.LeasedUntil = now.Add(leaseDuration)
	t.Revision++
	return true, nil
}

func (m *Memory) ReleaseTrigger(ctx context.Context, id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.triggers[id]
	if !ok || t.LeaseOwner != ownerID {
		return nil
	}
	t.LeaseOwner = ""
	t.LeasedUntil = time.Time{}
	return nil
}

func (m *Memory) RecordRunStart(ctx context.Context, run *engine.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := cloneRun(run)
	r.Status = engine.RunRunning
	m.runs[r.ID] = r
	return nil
}

func (m *Memory) RecordRunEnd(ctx context.Context, runID string, result engine.RunEndResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return nil
	}
	r.Status = result.Status
	r.Result = result.Result
	r.Err = result.Err
	r.EndedAt = m.clk.Now()
	return nil
}

func (m *Memory) TouchRun(ctx context.Context, runID string, progress *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return nil
	}
	r.HeartbeatAt = m.clk.Now()
	if progress != nil {
		p := *progress
		r.Progress = &p
	}
	return nil
}

func (m *Memory) FindStalledRuns(ctx context.Context, heartbeatTimeout time.Duration, now time.Time) ([]*engine.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*engine.Run
	for _, r := range m.runs {
		if r.Status != engine.RunRunning {
			continue
		}
		last := r.HeartbeatAt
		if last.IsZero() {
			last = r.StartedAt
		}
		if last.Before(now.Add(-heartbeatTimeout)) {
			out = append(out, cloneRun(r))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (m *Memory) GetRun(ctx context.Context, runID string) (*engine.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return nil, jobkeepererr.NotFoundf("run %q not found", runID)
	}
	return cloneRun(r), nil
}

var _ engine.Store = (*Memory)(nil)
