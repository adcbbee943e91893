package httpapi

import "time"

// CreateJobRequest registers a job whose handler is a webhook callback
// (see internal/webhook): the engine's RegisterJob needs a real
// Go function value, which cannot itself travel over JSON, so the HTTP
// surface instead builds one from an HTTP target.
type CreateJobRequest struct {
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	Method      string            `json:"method,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        []byte            `json:"body,omitempty"`
	Concurrency int               `json:"concurrency,omitempty"`
	TimeoutMs   int64             `json:"timeout_ms,omitempty"`

	RetryMaxAttempts int   `json:"retry_max_attempts,omitempty"`
	RetryDelayMs     int64 `json:"retry_delay_ms,omitempty"`

	RateLimitCapacity         int64 `json:"rate_limit_capacity,omitempty"`
	RateLimitRefillRate       int64 `json:"rate_limit_refill_rate,omitempty"`
	RateLimitRefillIntervalMs int64 `json:"rate_limit_refill_interval_ms,omitempty"`
	RateLimitBurst            int64 `json:"rate_limit_burst,omitempty"`
}

// ScheduleTriggerRequest schedules a trigger against an already
// registered job.
type ScheduleTriggerRequest struct {
	Kind               string            `json:"kind"` // "at" | "cron" | "interval"
	RunAt              *time.Time        `json:"run_at,omitempty"`
	CronExpr           string            `json:"cron_expr,omitempty"`
	Location           string            `json:"location,omitempty"`
	IntervalMs         int64             `json:"interval_ms,omitempty"`
	IntervalStart      *time.Time        `json:"interval_start,omitempty"`
	Priority           int               `json:"priority,omitempty"`
	MisfirePolicy      string            `json:"misfire_policy,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	IdempotencyKey     string            `json:"idempotency_key,omitempty"`
}

// ExecuteNowRequest customizes a manual one-shot run.
type ExecuteNowRequest struct {
	RunAt *time.Time `json:"run_at,omitempty"`
}

// JobView is the wire shape of a registered job.
type JobView struct {
	Name        string `json:"name"`
	Paused      bool   `json:"paused"`
	Concurrency int    `json:"concurrency,omitempty"`
	TimeoutMs   int64  `json:"timeout_ms,omitempty"`
}

// TriggerView is the wire shape of a scheduled trigger.
type TriggerView struct {
	ID            string     `json:"id"`
	Job           string     `json:"job"`
	Paused        bool       `json:"paused"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	FailureCount  int        `json:"failure_count"`
	MisfirePolicy string     `json:"misfire_policy"`
}

// RunView is the wire shape of a single execution.
type RunView struct {
	ID          string      `json:"id"`
	TriggerID   string      `json:"trigger_id"`
	Job         string      `json:"job"`
	ScheduledAt time.Time   `json:"scheduled_at"`
	StartedAt   time.Time   `json:"started_at"`
	EndedAt     *time.Time  `json:"ended_at,omitempty"`
	Status      string      `json:"status"`
	Attempt     int         `json:"attempt"`
	Progress    *float64    `json:"progress,omitempty"`
	Result      interface{} `json:"result,omitempty"`
	Err         string      `json:"error,omitempty"`
}

// HistoryPointView is one daily rollup row for a job.
type HistoryPointView struct {
	Date            string `json:"date"`
	TotalRuns       int64  `json:"total_runs"`
	SuccessCount    int64  `json:"success_count"`
	FailureCount    int64  `json:"failure_count"`
	TotalDurationMs int64  `json:"total_duration_ms"`
	MinDurationMs   int64  `json:"min_duration_ms"`
	MaxDurationMs   int64  `json:"max_duration_ms"`
}
