package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtPlan(t *testing.T) {
	runAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p, err := Build(Options{Kind: KindAt, RunAt: runAt})
	require.NoError(t, err)

	next, ok := p.Next(runAt.Add(-time.Second))
	require.True(t, ok)
	assert.Equal(t, runAt, next)

	_, ok = p.Next(runAt)
	assert.False(t, ok, "at-plan exhausts once reference reaches runAt")

	_, ok = p.Next(runAt.Add(time.Hour))
	assert.False(t, ok)
}

func TestIntervalPlan(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p, err := Build(Options{Kind: KindInterval, Interval: time.Minute, IntervalStart: start})
	require.NoError(t, err)

	next, ok := p.Next(start.Add(-time.Second))
	require.True(t, ok)
	assert.Equal(t, start, next, "reference before start yields start itself")

	next, ok = p.Next(start)
	require.True(t, ok)
	assert.Equal(t, start.Add(time.Minute), next)

	next, ok = p.Next(start.Add(90 * time.Second))
	require.True(t, ok)
	assert.Equal(t, start.Add(2*time.Minute), next, "skips to the next grid point strictly after reference")
}

func TestIntervalPlanRejectsNonPositive(t *testing.T) {
	_, err := Build(Options{Kind: KindInterval, Interval: 0})
	assert.Error(t, err)
}

func TestCronPlan(t *testing.T) {
	p, err := Build(Options{Kind: KindCron, CronExpr: "0 * * * * *"})
	require.NoError(t, err)

	ref := time.Date(2026, 1, 1, 0, 0, 30, 0, time.UTC)
	next, ok := p.Next(ref)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC), next)
}

func TestCronPlanInvalidExpr(t *testing.T) {
	_, err := Build(Options{Kind: KindCron, CronExpr: "not a cron expr"})
	assert.Error(t, err)
}

func TestBuildUnknownKind(t *testing.T) {
	_, err := Build(Options{Kind: "bogus"})
	assert.Error(t, err)
}
