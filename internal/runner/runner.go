// Package runner implements the Job Runner (spec §4.8): one handler
// invocation with timeout enforcement and a progress/heartbeat callback.
//
// This package is deliberately independent of package engine (which
// depends on it) — it dispatches a plain HandlerFunc over a RunContext
// rather than importing engine's Job/Worker shapes, so the two packages
// don't form an import cycle. Callers adapt their own handler/worker
// pair into a runner.HandlerFunc before calling Run.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/minisource/jobkeeper/internal/jobkeepererr"
	"github.com/minisource/jobkeeper/pkg/logging"
)

// RunContext is handed to a job's handler for the duration of one run.
type RunContext struct {
	RunID       string
	TriggerID   string
	Job         string
	ScheduledAt time.Time
	Attempt     int
	Touch       func(progress *float64)
}

// HandlerFunc is a flat job handler.
type HandlerFunc func(ctx context.Context, rc RunContext) (interface{}, error)

// TouchFunc is invoked by a running handler to report a heartbeat and,
// optionally, progress.
type TouchFunc func(progress *float64) error

// Input bundles everything Run needs for one invocation. Timeout is the
// already-resolved effective timeout (the caller has applied any
// worker-specific override); <= 0 means no timeout.
type Input struct {
	JobName     string
	Handler     HandlerFunc
	Timeout     time.Duration
	RunID       string
	TriggerID   string
	ScheduledAt time.Time
	Attempt     int
	Log         logging.Logger
	Touch       TouchFunc
}

// Output is the result of one handler invocation.
type Output struct {
	Result interface{}
	Err    error
}

// Run executes one handler invocation. If Timeout > 0, the call races
// against a timer; on expiry the run fails with an E_TIMEOUT error and
// the handler goroutine is abandoned (the contract does not require
// forcible termination, only that the run be terminated as failed).
func Run(ctx context.Context, in Input) Output {
	if in.Handler == nil {
		return Output{Err: jobkeepererr.Configurationf("job %q has no handler", in.JobName)}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if in.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, in.Timeout)
		defer cancel()
	}

	rc := RunContext{
		RunID:       in.RunID,
		TriggerID:   in.TriggerID,
		Job:         in.JobName,
		ScheduledAt: in.ScheduledAt,
		Attempt:     in.Attempt,
		Touch: func(progress *float64) {
			if in.Touch == nil {
				return
			}
			if err := in.Touch(progress); err != nil {
				in.Log.Warn("touch failed", logging.F("run_id", in.RunID), logging.F("error", err.Error()))
			}
		},
	}

	type done struct {
		result interface{}
		err    error
	}
	ch := make(chan done, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- done{err: fmt.Errorf("handler panicked: %v", r)}
			}
		}()
		result, err := in.Handler(callCtx, rc)
		ch <- done{result: result, err: err}
	}()

	if in.Timeout <= 0 {
		d := <-ch
		return Output{Result: d.result, Err: d.err}
	}

	select {
	case d := <-ch:
		return Output{Result: d.result, Err: d.err}
	case <-callCtx.Done():
		return Output{Err: jobkeepererr.Timeoutf("job %q run %s timed out after %s", in.JobName, in.RunID, in.Timeout)}
	}
}
