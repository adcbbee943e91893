package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minisource/jobkeeper/internal/clock"
	"github.com/minisource/jobkeeper/internal/engine"
	"github.com/minisource/jobkeeper/internal/store"
	"github.com/minisource/jobkeeper/pkg/logging"
)

func newTestApp(t *testing.T) (*fiber.App, *engine.Engine) {
	t.Helper()
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	st := store.NewMemory(fake)
	eng := engine.New(engine.Config{
		ID:           "http-test",
		Clock:        fake,
		Logger:       logging.New(io.Discard, logging.LevelDisabled),
		Store:        st,
		PollInterval: time.Hour,
	})
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() { _ = eng.Shutdown(context.Background(), engine.ShutdownOptions{}) })

	app := fiber.New()
	SetupRouter(app, NewHandlers(eng, nil, nil))
	return app, eng
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestCreateAndGetJob(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/api/v1/jobs/", CreateJobRequest{Name: "notify", URL: "http://example.invalid/hook"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created Response
	decode(t, resp, &created)
	assert.True(t, created.Success)

	resp = doJSON(t, app, http.MethodGet, "/api/v1/jobs/notify", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var got Response
	decode(t, resp, &got)
	assert.True(t, got.Success)
}

func TestCreateJobRequiresNameAndURL(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/api/v1/jobs/", CreateJobRequest{Name: "no-url"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetUnknownJobReturns404(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/api/v1/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPauseResumeJobLifecycle(t *testing.T) {
	app, _ := newTestApp(t)
	doJSON(t, app, http.MethodPost, "/api/v1/jobs/", CreateJobRequest{Name: "j", URL: "http://example.invalid"})

	resp := doJSON(t, app, http.MethodPost, "/api/v1/jobs/j/pause", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/api/v1/jobs/j", nil)
	var got Response
	decode(t, resp, &got)
	data := got.Data.(map[string]interface{})
	assert.Equal(t, true, data["paused"])

	resp = doJSON(t, app, http.MethodPost, "/api/v1/jobs/j/resume", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestDeleteJob(t *testing.T) {
	app, _ := newTestApp(t)
	doJSON(t, app, http.MethodPost, "/api/v1/jobs/", CreateJobRequest{Name: "j", URL: "http://example.invalid"})

	resp := doJSON(t, app, http.MethodDelete, "/api/v1/jobs/j", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/api/v1/jobs/j", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScheduleTriggerAndListIt(t *testing.T) {
	app, _ := newTestApp(t)
	doJSON(t, app, http.MethodPost, "/api/v1/jobs/", CreateJobRequest{Name: "j", URL: "http://example.invalid"})

	runAt := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)
	resp := doJSON(t, app, http.MethodPost, "/api/v1/jobs/j/triggers", ScheduleTriggerRequest{Kind: "at", RunAt: &runAt})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created Response
	decode(t, resp, &created)
	require.True(t, created.Success)

	resp = doJSON(t, app, http.MethodGet, "/api/v1/triggers/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var list Response
	decode(t, resp, &list)
	triggers := list.Data.([]interface{})
	assert.Len(t, triggers, 1)
}

func TestExecuteNowAndFetchRun(t *testing.T) {
	app, _ := newTestApp(t)
	doJSON(t, app, http.MethodPost, "/api/v1/jobs/", CreateJobRequest{Name: "j", URL: "http://example.invalid/webhook"})

	resp := doJSON(t, app, http.MethodPost, "/api/v1/jobs/j/execute", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var created Response
	decode(t, resp, &created)
	data := created.Data.(map[string]interface{})
	runID, ok := data["RunID"]
	require.True(t, ok)

	resp = doJSON(t, app, http.MethodGet, "/api/v1/runs/"+runID.(string), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHistoryUnsupportedWithoutDurableStore(t *testing.T) {
	app, _ := newTestApp(t)
	doJSON(t, app, http.MethodPost, "/api/v1/jobs/", CreateJobRequest{Name: "j", URL: "http://example.invalid"})

	resp := doJSON(t, app, http.MethodGet, "/api/v1/jobs/j/history", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
