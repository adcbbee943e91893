// Package models defines the GORM row shapes backing
// internal/store/pgstore — the durable counterpart of internal/engine's
// in-process Job/Trigger/Run types. Adapted from the teacher's
// internal/models/job.go: same json-tag/gorm-tag conventions, but
// reshaped around scheduling metadata instead of HTTP-dispatch fields.
//
// Go function values (a job's Handler/Worker) cannot round-trip through
// a relational row, so JobRow persists only a job's scheduling
// configuration; the handler/worker itself is supplied process-locally
// by RegisterJob (see internal/engine's resolveDef).
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobRow is the durable record of a registered job's scheduling
// configuration.
type JobRow struct {
	Name             string `json:"name" gorm:"primaryKey;type:varchar(255)"`
	Paused           bool   `json:"paused" gorm:"index:idx_jobs_paused"`
	ConcurrencyLimit int    `json:"concurrency_limit"`
	TimeoutMs        int64  `json:"timeout_ms"`
	RetryMaxAttempts int    `json:"retry_max_attempts"`
	RetryDelayMs     int64  `json:"retry_delay_ms"`

	RateLimitCapacity         *int64 `json:"rate_limit_capacity,omitempty"`
	RateLimitRefillRate       *int64 `json:"rate_limit_refill_rate,omitempty"`
	RateLimitRefillIntervalMs *int64 `json:"rate_limit_refill_interval_ms,omitempty"`
	RateLimitBurst            *int64 `json:"rate_limit_burst,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (JobRow) TableName() string { return "jobkeeper_jobs" }

// TriggerRow is the durable record of a trigger's plan and lease state.
type TriggerRow struct {
	ID       string `json:"id" gorm:"primaryKey;type:varchar(255)"`
	Job      string `json:"job" gorm:"type:varchar(255);not null;index:idx_triggers_job"`
	Priority int    `json:"priority" gorm:"index:idx_triggers_due"`

	PlanKind            string     `json:"plan_kind" gorm:"type:varchar(20)"`
	PlanRunAt           *time.Time `json:"plan_run_at,omitempty"`
	PlanCronExpr        string     `json:"plan_cron_expr,omitempty" gorm:"type:varchar(100)"`
	PlanLocation        string     `json:"plan_location,omitempty" gorm:"type:varchar(64)"`
	PlanIntervalMs      int64      `json:"plan_interval_ms,omitempty"`
	PlanIntervalStartAt *time.Time `json:"plan_interval_start_at,omitempty"`

	NextRunAt *time.Time `json:"next_run_at,omitempty" gorm:"index:idx_triggers_due"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	Paused      bool      `json:"paused" gorm:"index:idx_triggers_due"`
	Revision    int64     `json:"revision"`
	LeaseOwner  string    `json:"lease_owner,omitempty" gorm:"type:varchar(128)"`
	LeasedUntil time.Time `json:"leased_until,omitempty"`

	FailureCount  int             `json:"failure_count"`
	MisfirePolicy string          `json:"misfire_policy" gorm:"type:varchar(20)"`
	Metadata      json.RawMessage `json:"metadata,omitempty" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (TriggerRow) TableName() string { return "jobkeeper_triggers" }

// RunRow is the durable record of a single job execution.
type RunRow struct {
	ID        string `json:"id" gorm:"primaryKey;type:varchar(255)"`
	TriggerID string `json:"trigger_id" gorm:"type:varchar(255);not null;index:idx_runs_trigger"`
	Job       string `json:"job" gorm:"type:varchar(255);not null;index:idx_runs_job"`

	ScheduledAt time.Time `json:"scheduled_at"`
	StartedAt   time.Time `json:"started_at"`
	HeartbeatAt time.Time `json:"heartbeat_at" gorm:"index:idx_runs_heartbeat"`
	EndedAt     time.Time `json:"ended_at,omitempty"`

	Status   string          `json:"status" gorm:"type:varchar(20);index:idx_runs_status"`
	Attempt  int             `json:"attempt"`
	Progress *float64        `json:"progress,omitempty"`
	Result   json.RawMessage `json:"result,omitempty" gorm:"type:jsonb"`
	Err      string          `json:"error,omitempty" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (RunRow) TableName() string { return "jobkeeper_runs" }

// JobRunStats is a daily success/failure/duration rollup per job,
// maintained by pgstore.RecordRunEnd (spec.md's run-history
// aggregation, adapted from the teacher's JobHistory model).
type JobRunStats struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Job          string    `json:"job" gorm:"type:varchar(255);not null;index:idx_stats_job_date,unique"`
	Date         time.Time `json:"date" gorm:"type:date;not null;index:idx_stats_job_date,unique"`
	TotalRuns    int64     `json:"total_runs"`
	SuccessCount int64     `json:"success_count"`
	FailureCount int64     `json:"failure_count"`

	TotalDurationMs int64 `json:"total_duration_ms"`
	MinDurationMs   int64 `json:"min_duration_ms"`
	MaxDurationMs   int64 `json:"max_duration_ms"`

	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (JobRunStats) TableName() string { return "jobkeeper_job_run_stats" }
