package pgstore

import (
	"encoding/json"
	"time"

	"github.com/minisource/jobkeeper/internal/engine"
	"github.com/minisource/jobkeeper/internal/models"
)

func jobToRow(j *engine.Job) *models.JobRow {
	row := &models.JobRow{
		Name:             j.Name,
		Paused:           j.Paused,
		ConcurrencyLimit: j.Def.Concurrency,
		TimeoutMs:        j.Def.Timeout.Milliseconds(),
	}
	if j.Def.Retry != nil {
		row.RetryMaxAttempts = j.Def.Retry.MaxAttempts
	}
	if rl := j.Def.RateLimit; rl != nil {
		row.RateLimitCapacity = &rl.Capacity
		row.RateLimitRefillRate = &rl.RefillRate
		row.RateLimitRefillIntervalMs = &rl.RefillIntervalMs
		row.RateLimitBurst = &rl.Burst
	}
	return row
}

// rowToJob rebuilds the persisted scheduling metadata only; Handler and
// Worker are never populated here (see engine.Engine.resolveDef).
func rowToJob(row *models.JobRow) *engine.Job {
	def := engine.JobDefinition{
		Name:        row.Name,
		Concurrency: row.ConcurrencyLimit,
		Timeout:     time.Duration(row.TimeoutMs) * time.Millisecond,
	}
	if row.RetryMaxAttempts > 0 {
		def.Retry = &engine.RetryPolicy{MaxAttempts: row.RetryMaxAttempts}
	}
	if row.RateLimitCapacity != nil {
		def.RateLimit = &engine.RateLimitConfig{
			Capacity:         *row.RateLimitCapacity,
			RefillRate:       derefOr(row.RateLimitRefillRate, *row.RateLimitCapacity),
			RefillIntervalMs: derefOr(row.RateLimitRefillIntervalMs, 1000),
			Burst:            derefOr(row.RateLimitBurst, *row.RateLimitCapacity),
		}
	}
	return &engine.Job{Name: row.Name, Def: def, Paused: row.Paused}
}

func derefOr(p *int64, fallback int64) int64 {
	if p == nil {
		return fallback
	}
	return *p
}

func triggerToRow(t *engine.Trigger) (*models.TriggerRow, error) {
	metaJSON, err := json.Marshal(t.Metadata)
	if err != nil {
		return nil, err
	}

	row := &models.TriggerRow{
		ID:            t.ID,
		Job:           t.Job,
		Priority:      t.Priority,
		PlanKind:      t.Plan.Plan.Kind,
		PlanCronExpr:  t.Plan.Plan.CronExpr,
		NextRunAt:     t.NextRunAt,
		LastRunAt:     t.LastRunAt,
		Paused:        t.Paused,
		Revision:      t.Revision,
		LeaseOwner:    t.LeaseOwner,
		LeasedUntil:   t.LeasedUntil,
		FailureCount:  t.FailureCount,
		MisfirePolicy: string(t.MisfirePolicy),
		Metadata:      metaJSON,
	}
	if t.Plan.Plan.Location != nil {
		row.PlanLocation = t.Plan.Plan.Location.String()
	}
	if !t.Plan.Plan.RunAt.IsZero() {
		ra := t.Plan.Plan.RunAt
		row.PlanRunAt = &ra
	}
	if t.Plan.Plan.Interval > 0 {
		row.PlanIntervalMs = t.Plan.Plan.Interval.Milliseconds()
	}
	if !t.Plan.Plan.IntervalStart.IsZero() {
		is := t.Plan.Plan.IntervalStart
		row.PlanIntervalStartAt = &is
	}
	return row, nil
}

func rowToTrigger(row *models.TriggerRow) (*engine.Trigger, error) {
	var meta map[string]string
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &meta); err != nil {
			return nil, err
		}
	}

	plan := engine.PlanOptions{
		Kind:     row.PlanKind,
		CronExpr: row.PlanCronExpr,
		Interval: time.Duration(row.PlanIntervalMs) * time.Millisecond,
	}
	if row.PlanRunAt != nil {
		plan.RunAt = *row.PlanRunAt
	}
	if row.PlanIntervalStartAt != nil {
		plan.IntervalStart = *row.PlanIntervalStartAt
	}
	if row.PlanLocation != "" {
		if loc, err := time.LoadLocation(row.PlanLocation); err == nil {
			plan.Location = loc
		}
	}

	return &engine.Trigger{
		ID:       row.ID,
		Job:      row.Job,
		Priority: row.Priority,
		Plan: engine.TriggerOptions{
			Plan:          plan,
			MisfirePolicy: engine.MisfirePolicy(row.MisfirePolicy),
			Priority:      row.Priority,
			Metadata:      meta,
		},
		NextRunAt:     row.NextRunAt,
		LastRunAt:     row.LastRunAt,
		Paused:        row.Paused,
		Revision:      row.Revision,
		LeaseOwner:    row.LeaseOwner,
		LeasedUntil:   row.LeasedUntil,
		FailureCount:  row.FailureCount,
		MisfirePolicy: engine.MisfirePolicy(row.MisfirePolicy),
		Metadata:      meta,
	}, nil
}

func runToRow(r *engine.Run) (*models.RunRow, error) {
	resultJSON, err := json.Marshal(r.Result)
	if err != nil {
		return nil, err
	}
	return &models.RunRow{
		ID:          r.ID,
		TriggerID:   r.TriggerID,
		Job:         r.Job,
		ScheduledAt: r.ScheduledAt,
		StartedAt:   r.StartedAt,
		HeartbeatAt: r.HeartbeatAt,
		EndedAt:     r.EndedAt,
		Status:      string(r.Status),
		Attempt:     r.Attempt,
		Progress:    r.Progress,
		Result:      resultJSON,
		Err:         r.Err,
	}, nil
}

func rowToRun(row *models.RunRow) *engine.Run {
	var result interface{}
	if len(row.Result) > 0 {
		_ = json.Unmarshal(row.Result, &result)
	}
	return &engine.Run{
		ID:          row.ID,
		TriggerID:   row.TriggerID,
		Job:         row.Job,
		ScheduledAt: row.ScheduledAt,
		StartedAt:   row.StartedAt,
		HeartbeatAt: row.HeartbeatAt,
		EndedAt:     row.EndedAt,
		Status:      engine.RunStatus(row.Status),
		Attempt:     row.Attempt,
		Progress:    row.Progress,
		Result:      result,
		Err:         row.Err,
	}
}
