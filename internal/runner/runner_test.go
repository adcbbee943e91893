package runner

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/minisource/jobkeeper/internal/jobkeepererr"
	"github.com/minisource/jobkeeper/pkg/logging"
	"github.com/stretchr/testify/assert"
)

func testLog() logging.Logger {
	return logging.New(io.Discard, logging.LevelDisabled)
}

func TestRunSuccess(t *testing.T) {
	out := Run(context.Background(), Input{
		JobName: "job",
		Handler: func(ctx context.Context, rc RunContext) (interface{}, error) {
			return "ok", nil
		},
		Log: testLog(),
	})

	assert.NoError(t, out.Err)
	assert.Equal(t, "ok", out.Result)
}

func TestRunPropagatesHandlerError(t *testing.T) {
	wantErr := errors.New("boom")
	out := Run(context.Background(), Input{
		JobName: "job",
		Handler: func(ctx context.Context, rc RunContext) (interface{}, error) {
			return nil, wantErr
		},
		Log: testLog(),
	})

	assert.ErrorIs(t, out.Err, wantErr)
}

func TestRunRecoversPanic(t *testing.T) {
	out := Run(context.Background(), Input{
		JobName: "job",
		Handler: func(ctx context.Context, rc RunContext) (interface{}, error) {
			panic("kaboom")
		},
		Log: testLog(),
	})

	assert.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "kaboom")
}

func TestRunTimesOut(t *testing.T) {
	out := Run(context.Background(), Input{
		JobName: "job",
		Handler: func(ctx context.Context, rc RunContext) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		Timeout: 10 * time.Millisecond,
		RunID:   "run-1",
		Log:     testLog(),
	})

	assert.Error(t, out.Err)
	kind, ok := jobkeepererr.Of(out.Err)
	assert.True(t, ok)
	assert.Equal(t, jobkeepererr.Timeout, kind)
}

func TestRunMissingHandler(t *testing.T) {
	out := Run(context.Background(), Input{JobName: "job", Log: testLog()})

	assert.Error(t, out.Err)
	kind, ok := jobkeepererr.Of(out.Err)
	assert.True(t, ok)
	assert.Equal(t, jobkeepererr.Configuration, kind)
}

func TestRunTouchForwardsProgress(t *testing.T) {
	var seen *float64
	out := Run(context.Background(), Input{
		JobName: "job",
		Handler: func(ctx context.Context, rc RunContext) (interface{}, error) {
			p := 0.5
			rc.Touch(&p)
			return nil, nil
		},
		Touch: func(progress *float64) error {
			seen = progress
			return nil
		},
		Log: testLog(),
	})

	assert.NoError(t, out.Err)
	if assert.NotNil(t, seen) {
		assert.Equal(t, 0.5, *seen)
	}
}
