package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/minisource/jobkeeper/internal/clock"
	"github.com/minisource/jobkeeper/internal/events"
	"github.com/minisource/jobkeeper/internal/store"
	"github.com/minisource/jobkeeper/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, fake *clock.Fake) (*Engine, *store.Memory) {
	t.Helper()
	st := store.NewMemory(fake)
	e := New(Config{
		ID:                "test-scheduler",
		Clock:             fake,
		Logger:            logging.New(io.Discard, logging.LevelDisabled),
		Store:             st,
		PollInterval:      time.Hour, // tests drive the loop by calling processTick directly
		LeaseDuration:     time.Minute,
		HeartbeatInterval: time.Minute,
		StalledAfter:      time.Minute,
	})
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Shutdown(context.Background(), ShutdownOptions{}) })
	return e, st
}

// newTestEngineWithMisfireTolerance is newTestEngine plus a configurable
// MisfireTolerance and a logger backed by buf, for tests that need to
// assert on the skip-policy's logged warning.
func newTestEngineWithMisfireTolerance(t *testing.T, fake *clock.Fake, tolerance time.Duration, buf *bytes.Buffer) (*Engine, *store.Memory) {
	t.Helper()
	st := store.NewMemory(fake)
	e := New(Config{
		ID:                "test-scheduler",
		Clock:             fake,
		Logger:            logging.New(buf, logging.LevelWarn),
		Store:             st,
		PollInterval:      time.Hour,
		LeaseDuration:     time.Minute,
		HeartbeatInterval: time.Minute,
		StalledAfter:      time.Minute,
		MisfireTolerance:  tolerance,
	})
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Shutdown(context.Background(), ShutdownOptions{}) })
	return e, st
}

func TestExecuteNowRunsImmediatelyAndRecordsSuccess(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e, _ := newTestEngine(t, fake)
	ctx := context.Background()

	_, err := e.RegisterJob(ctx, JobDefinition{
		Name: "greet",
		Handler: func(ctx context.Context, rc RunContext) (interface{}, error) {
			return "hello", nil
		},
	})
	require.NoError(t, err)

	res, err := e.ExecuteNow(ctx, "greet", nil)
	require.NoError(t, err)

	run, err := e.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, run.Status)
	assert.Equal(t, "hello", run.Result)
}

func TestScheduleAtTriggerFiresOnPollAndRetires(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e, st := newTestEngine(t, fake)
	ctx := context.Background()

	var ran int32
	_, err := e.RegisterJob(ctx, JobDefinition{
		Name: "once",
		Handler: func(ctx context.Context, rc RunContext) (interface{}, error) {
			atomic.AddInt32(&ran, 1)
			return nil, nil
		},
	})
	require.NoError(t, err)

	runAt := fake.Now().Add(time.Minute)
	_, err = e.Schedule(ctx, "once", TriggerOptions{Plan: PlanOptions{Kind: "at", RunAt: runAt}})
	require.NoError(t, err)

	var drained events.DrainPayload
	var drainedCount int32
	e.bus.On(events.Drain, func(payload interface{}) {
		drained = payload.(events.DrainPayload)
		atomic.AddInt32(&drainedCount, 1)
	})

	fake.Advance(2 * time.Minute)
	e.processTick(ctx)

	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
	assert.Equal(t, int32(1), atomic.LoadInt32(&drainedCount), "an exhausted at-trigger emits drain once")
	assert.Equal(t, 0, drained.PendingRuns)

	triggers, err := st.ListTriggers(ctx)
	require.NoError(t, err)
	assert.Empty(t, triggers, "an exhausted at-trigger is deleted")
}

func TestScheduleSkipsWhenJobPaused(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e, _ := newTestEngine(t, fake)
	ctx := context.Background()

	var ran int32
	jh, err := e.RegisterJob(ctx, JobDefinition{
		Name: "paused-job",
		Handler: func(ctx context.Context, rc RunContext) (interface{}, error) {
			atomic.AddInt32(&ran, 1)
			return nil, nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, jh.Pause(ctx))

	_, err = e.Schedule(ctx, "paused-job", TriggerOptions{
		Plan: PlanOptions{Kind: "interval", Interval: time.Minute, IntervalStart: fake.Now()},
	})
	require.NoError(t, err)

	fake.Advance(2 * time.Minute)
	e.processTick(ctx)

	assert.Equal(t, int32(0), atomic.LoadInt32(&ran), "a paused job's due trigger advances without running")
}

func TestRunWithRetriesExhaustsAttemptsThenStops(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e, _ := newTestEngine(t, fake)
	ctx := context.Background()

	var attempts int32
	_, err := e.RegisterJob(ctx, JobDefinition{
		Name: "flaky",
		Handler: func(ctx context.Context, rc RunContext) (interface{}, error) {
			atomic.AddInt32(&attempts, 1)
			return nil, errors.New("boom")
		},
		Retry: &RetryPolicy{
			MaxAttempts: 3,
			Strategy:    func(attempt int) time.Duration { return 0 },
		},
	})
	require.NoError(t, err)

	res, err := e.ExecuteNow(ctx, "flaky", nil)
	require.NoError(t, err)

	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))

	run, err := e.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, RunFailed, run.Status, "the first attempt's run, whose id ExecuteNow returns, is recorded as failed")
}

func TestSweepStalledMarksLapsedRunsOnce(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e, st := newTestEngine(t, fake)
	ctx := context.Background()

	require.NoError(t, st.RecordRunStart(ctx, &Run{ID: "r1", Job: "j", StartedAt: fake.Now()}))

	fake.Advance(2 * time.Minute)
	e.sweepStalled(ctx)
	e.sweepStalled(ctx) // idempotent: second sweep must not re-emit

	run, err := e.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, RunStalled, run.Status)
}

func TestPauseAllSkipsProcessTick(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e, _ := newTestEngine(t, fake)
	ctx := context.Background()

	var ran int32
	_, err := e.RegisterJob(ctx, JobDefinition{
		Name: "x",
		Handler: func(ctx context.Context, rc RunContext) (interface{}, error) {
			atomic.AddInt32(&ran, 1)
			return nil, nil
		},
	})
	require.NoError(t, err)

	_, err = e.Schedule(ctx, "x", TriggerOptions{Plan: PlanOptions{Kind: "at", RunAt: fake.Now()}})
	require.NoError(t, err)

	require.NoError(t, e.PauseAll(ctx))
	fake.Advance(time.Minute)
	e.processTick(ctx)

	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
}

func TestShutdownGracefulWaitsForActiveRuns(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e, _ := newTestEngine(t, fake)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	_, err := e.RegisterJob(ctx, JobDefinition{
		Name: "slow",
		Handler: func(ctx context.Context, rc RunContext) (interface{}, error) {
			close(started)
			<-release
			return nil, nil
		},
	})
	require.NoError(t, err)

	go func() { _, _ = e.ExecuteNow(ctx, "slow", nil) }()
	<-started
	close(release)

	err = e.Shutdown(ctx, ShutdownOptions{Graceful: true, GraceMs: 1000})
	assert.NoError(t, err)
	assert.False(t, e.IsRunning())
}

// TestMisfireSkipAdvancesToWithinToleranceOccurrence is spec §8 scenario 3:
// an interval-50ms trigger whose tick only wakes at t+500ms, with a 20ms
// tolerance, must advance nextRunAt to the occurrence at t+500 (the first
// one within tolerance of now), log the 9 genuinely skipped occurrences,
// and run nothing on that tick — then fire exactly once, at scheduledAt
// t+500, on the very next tick.
func TestMisfireSkipAdvancesToWithinToleranceOccurrence(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	var buf bytes.Buffer
	e, st := newTestEngineWithMisfireTolerance(t, fake, 20*time.Millisecond, &buf)
	ctx := context.Background()

	t0 := fake.Now()
	var ran int32
	var gotScheduledAt time.Time
	_, err := e.RegisterJob(ctx, JobDefinition{
		Name: "tick",
		Handler: func(ctx context.Context, rc RunContext) (interface{}, error) {
			atomic.AddInt32(&ran, 1)
			gotScheduledAt = rc.ScheduledAt
			return nil, nil
		},
	})
	require.NoError(t, err)

	th, err := e.Schedule(ctx, "tick", TriggerOptions{
		Plan: PlanOptions{Kind: "interval", Interval: 50 * time.Millisecond, IntervalStart: t0},
	})
	require.NoError(t, err)

	fake.Advance(500 * time.Millisecond)
	e.processTick(ctx)

	assert.Equal(t, int32(0), atomic.LoadInt32(&ran), "skip policy runs nothing while lateness exceeds tolerance")
	assert.Contains(t, buf.String(), `"skipped":9`, "the 9 genuinely skipped occurrences are logged")

	trig, err := st.GetTrigger(ctx, th.ID())
	require.NoError(t, err)
	require.NotNil(t, trig.NextRunAt)
	assert.True(t, trig.NextRunAt.Equal(t0.Add(500*time.Millisecond)),
		"nextRunAt advances to the landing occurrence at +500ms, not past it to +550ms")

	e.processTick(ctx)

	assert.Equal(t, int32(1), atomic.LoadInt32(&ran), "the landing occurrence fires, un-misfired, on the next tick")
	assert.True(t, gotScheduledAt.Equal(t0.Add(500*time.Millisecond)))
}

// TestSweepStalledReschedulesRetryAndBumpsFailureCount is spec §8 scenario
// 4: a stalled run releases its capacity, bumps the trigger's
// failureCount, and — since its retry policy still allows another
// attempt — schedules a retry rather than silently advancing the plan.
func TestSweepStalledReschedulesRetryAndBumpsFailureCount(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e, st := newTestEngine(t, fake)
	ctx := context.Background()

	started := make(chan struct{})
	block := make(chan struct{})
	_, err := e.RegisterJob(ctx, JobDefinition{
		Name: "wedged",
		Handler: func(ctx context.Context, rc RunContext) (interface{}, error) {
			close(started)
			<-block
			return nil, nil
		},
		Retry: &RetryPolicy{
			MaxAttempts: 3,
			Strategy:    func(attempt int) time.Duration { return 0 },
		},
	})
	require.NoError(t, err)

	th, err := e.Schedule(ctx, "wedged", TriggerOptions{Plan: PlanOptions{Kind: "at", RunAt: fake.Now()}})
	require.NoError(t, err)

	var retried, scheduled int32
	e.bus.On(events.Retry, func(payload interface{}) { atomic.AddInt32(&retried, 1) })
	e.bus.On(events.Scheduled, func(payload interface{}) { atomic.AddInt32(&scheduled, 1) })

	go e.processTick(ctx)
	<-started

	fake.Advance(2 * time.Minute) // past StalledAfter, heartbeat lapsed
	e.sweepStalled(ctx)

	trig, err := st.GetTrigger(ctx, th.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, trig.FailureCount, "the stalled attempt bumps failureCount")
	require.NotNil(t, trig.NextRunAt)
	assert.True(t, trig.NextRunAt.After(fake.Now().Add(-time.Millisecond)),
		"a retry is scheduled rather than the trigger being silently dropped")
	assert.Equal(t, int32(1), atomic.LoadInt32(&retried), "a retry event fires for the stalled attempt")
	assert.Equal(t, int32(1), atomic.LoadInt32(&scheduled), "a scheduled event follows the persisted retry")

	close(block) // let the wedged handler return so the goroutine doesn't leak past the test
}
