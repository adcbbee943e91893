// Package webhook is a built-in engine.Worker that dispatches a job as
// an HTTP request, adapted from the teacher's internal/scheduler/executor.go.
// It gives internal/httpapi's job-registration endpoint something real to
// hand RegisterJob: a job's Handler/Worker is a Go function value and
// cannot itself arrive over JSON, but an HTTP callback target can.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minisource/jobkeeper/internal/engine"
)

// Config describes the HTTP call a Worker makes for one job.
type Config struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration // <= 0 means "use the job's configured timeout"
}

// Worker implements engine.Worker by issuing an HTTP request and folding
// the response into the run's result.
type Worker struct {
	cfg    Config
	client *http.Client
}

// New builds a Worker. client may be nil, in which case a client with a
// 30s timeout is used.
func New(cfg Config, client *http.Client) *Worker {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	return &Worker{cfg: cfg, client: client}
}

// Result is the run result recorded for a webhook job.
type Result struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Timeout satisfies engine.Worker.
func (w *Worker) Timeout() time.Duration { return w.cfg.Timeout }

// Run satisfies engine.Worker.
func (w *Worker) Run(ctx context.Context, rc engine.RunContext) (interface{}, error) {
	start := time.Now()

	var body io.Reader
	if len(w.cfg.Body) > 0 {
		body = bytes.NewReader(w.cfg.Body)
	}

	req, err := http.NewRequestWithContext(ctx, w.cfg.Method, w.cfg.URL, body)
	if err != nil {
		return nil, fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("User-Agent", "jobkeeper/1.0")
	req.Header.Set("X-Jobkeeper-Job", rc.Job)
	req.Header.Set("X-Jobkeeper-Run-Id", rc.RunID)
	req.Header.Set("X-Jobkeeper-Trigger-Id", rc.TriggerID)
	if len(w.cfg.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range w.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("webhook: read response: %w", err)
	}

	result := Result{
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if resp.StatusCode >= 400 {
		return result, fmt.Errorf("webhook: %s returned HTTP %d", w.cfg.URL, resp.StatusCode)
	}
	return result, nil
}

var _ engine.Worker = (*Worker)(nil)
