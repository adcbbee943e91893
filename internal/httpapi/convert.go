package httpapi

import (
	"time"

	"github.com/minisource/jobkeeper/internal/engine"
)

func msToDuration(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func jobView(j *engine.Job) JobView {
	return JobView{
		Name:        j.Name,
		Paused:      j.Paused,
		Concurrency: j.Def.Concurrency,
		TimeoutMs:   j.Def.Timeout.Milliseconds(),
	}
}

func triggerView(t *engine.Trigger) TriggerView {
	return TriggerView{
		ID:            t.ID,
		Job:           t.Job,
		Paused:        t.Paused,
		NextRunAt:     t.NextRunAt,
		LastRunAt:     t.LastRunAt,
		FailureCount:  t.FailureCount,
		MisfirePolicy: string(t.MisfirePolicy),
	}
}

func runView(r *engine.Run) RunView {
	v := RunView{
		ID:          r.ID,
		TriggerID:   r.TriggerID,
		Job:         r.Job,
		ScheduledAt: r.ScheduledAt,
		StartedAt:   r.StartedAt,
		Status:      string(r.Status),
		Attempt:     r.Attempt,
		Progress:    r.Progress,
		Result:      r.Result,
		Err:         r.Err,
	}
	if !r.EndedAt.IsZero() {
		ended := r.EndedAt
		v.EndedAt = &ended
	}
	return v
}
