package store

import (
	"context"
	"testing"
	"time"

	"github.com/minisource/jobkeeper/internal/clock"
	"github.com/minisource/jobkeeper/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryJobLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	require.NoError(t, m.UpsertJob(ctx, &engine.Job{Name: "send-email"}))

	got, err := m.GetJob(ctx, "send-email")
	require.NoError(t, err)
	assert.Equal(t, "send-email", got.Name)

	require.NoError(t, m.SetJobPaused(ctx, "send-email", true))
	got, err = m.GetJob(ctx, "send-email")
	require.NoError(t, err)
	assert.True(t, got.Paused)

	require.NoError(t, m.RemoveJob(ctx, "send-email"))
	_, err = m.GetJob(ctx, "send-email")
	assert.Error(t, err)
}

func TestMemoryGetJobNotFound(t *testing.T) {
	_, err := NewMemory(nil).GetJob(context.Background(), "missing")
	assert.Error(t, err)
}

func TestMemoryClonesOnReturn(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	require.NoError(t, m.UpsertJob(ctx, &engine.Job{Name: "j"}))

	got, err := m.GetJob(ctx, "j")
	require.NoError(t, err)
	got.Paused = true

	again, err := m.GetJob(ctx, "j")
	require.NoError(t, err)
	assert.False(t, again.Paused, "mutating a returned job must not affect stored state")
}

func TestMemoryListDueTriggersOrdersByPriorityThenTime(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	earlier := now.Add(-time.Minute)
	later := now.Add(-30 * time.Second)

	require.NoError(t, m.UpsertTrigger(ctx, &engine.Trigger{ID: "low-pri-early", NextRunAt: &earlier, Priority: 10}))
	require.NoError(t, m.UpsertTrigger(ctx, &engine.Trigger{ID: "high-pri-late", NextRunAt: &later, Priority: 1}))
	future := now.Add(time.Hour)
	require.NoError(t, m.UpsertTrigger(ctx, &engine.Trigger{ID: "not-due", NextRunAt: &future}))
	require.NoError(t, m.UpsertTrigger(ctx, &engine.Trigger{ID: "paused", NextRunAt: &earlier, Paused: true}))

	due, err := m.ListDueTriggers(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "high-pri-late", due[0].ID, "lower Priority value sorts first")
	assert.Equal(t, "low-pri-early", due[1].ID)
}

func TestMemoryListDueTriggersRespectsLease(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	due := now.Add(-time.Second)

	require.NoError(t, m.UpsertTrigger(ctx, &engine.Trigger{
		ID: "leased", NextRunAt: &due, LeaseOwner: "other-owner", LeasedUntil: now.Add(time.Minute),
	}))

	out, err := m.ListDueTriggers(ctx, now, 0)
	require.NoError(t, err)
	assert.Empty(t, out, "a trigger leased by someone else is not due")
}

func TestMemoryClaimTriggerIsExclusive(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := NewMemory(fake)

	require.NoError(t, m.UpsertTrigger(ctx, &engine.Trigger{ID: "t1"}))

	ok, err := m.ClaimTrigger(ctx, "t1", "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.ClaimTrigger(ctx, "t1", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a live lease held by another owner rejects the claim")

	fake.Advance(2 * time.Minute)
	ok, err = m.ClaimTrigger(ctx, "t1", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "an expired lease can be reclaimed")
}

func TestMemoryClaimTriggerRejectsPaused(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	require.NoError(t, m.UpsertTrigger(ctx, &engine.Trigger{ID: "t1", Paused: true}))

	ok, err := m.ClaimTrigger(ctx, "t1", "owner-a", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryReleaseTriggerOnlyByOwner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	require.NoError(t, m.UpsertTrigger(ctx, &engine.Trigger{ID: "t1"}))

	_, err := m.ClaimTrigger(ctx, "t1", "owner-a", time.Minute)
	require.NoError(t, err)

	require.NoError(t, m.ReleaseTrigger(ctx, "t1", "owner-b"))
	trig, err := m.GetTrigger(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "owner-a", trig.LeaseOwner, "release by a non-owner is a no-op")

	require.NoError(t, m.ReleaseTrigger(ctx, "t1", "owner-a"))
	trig, err = m.GetTrigger(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, trig.LeaseOwner)
}

func TestMemoryRunLifecycleAndStalledDetection(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := NewMemory(fake)

	require.NoError(t, m.RecordRunStart(ctx, &engine.Run{ID: "r1", StartedAt: fake.Now()}))

	fake.Advance(time.Minute)
	stalled, err := m.FindStalledRuns(ctx, 30*time.Second, fake.Now())
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	assert.Equal(t, "r1", stalled[0].ID)

	require.NoError(t, m.TouchRun(ctx, "r1", floatPtr(0.25)))
	stalled, err = m.FindStalledRuns(ctx, 30*time.Second, fake.Now())
	require.NoError(t, err)
	assert.Empty(t, stalled, "a fresh heartbeat clears the stall")

	require.NoError(t, m.RecordRunEnd(ctx, "r1", engine.RunEndResult{Status: engine.RunCompleted, Result: "done"}))
	run, err := m.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, engine.RunCompleted, run.Status)
	assert.Equal(t, "done", run.Result)
}

func floatPtr(f float64) *float64 { return &f }
