package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/minisource/jobkeeper/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerRunSuccess(t *testing.T) {
	var gotMethod, gotJob, gotRun, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotJob = r.Header.Get("X-Jobkeeper-Job")
		gotRun = r.Header.Get("X-Jobkeeper-Run-Id")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	w := New(Config{URL: srv.URL, Body: []byte(`{"x":1}`)}, nil)
	out, err := w.Run(context.Background(), engine.RunContext{Job: "send-email", RunID: "run-1"})
	require.NoError(t, err)

	res := out.(Result)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, `{"ok":true}`, res.Body)
	assert.Equal(t, http.MethodPost, gotMethod, "defaults to POST when Method is empty")
	assert.Equal(t, "send-email", gotJob)
	assert.Equal(t, "run-1", gotRun)
	assert.Equal(t, `{"x":1}`, gotBody)
}

func TestWorkerRunErrorsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := New(Config{URL: srv.URL, Method: http.MethodGet}, nil)
	_, err := w.Run(context.Background(), engine.RunContext{Job: "j", RunID: "r"})
	assert.Error(t, err)
}

func TestWorkerAppliesCustomHeaders(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Api-Key")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := New(Config{URL: srv.URL, Method: http.MethodGet, Headers: map[string]string{"X-Api-Key": "secret"}}, nil)
	_, err := w.Run(context.Background(), engine.RunContext{Job: "j", RunID: "r"})
	require.NoError(t, err)
	assert.Equal(t, "secret", gotHeader)
}

func TestWorkerTimeoutZeroMeansUseJobTimeout(t *testing.T) {
	w := New(Config{URL: "http://example.invalid"}, nil)
	assert.Equal(t, 0, int(w.Timeout()))
}
