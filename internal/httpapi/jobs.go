package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/minisource/jobkeeper/internal/engine"
	"github.com/minisource/jobkeeper/internal/webhook"
)

// JobHandler handles job lifecycle endpoints.
type JobHandler struct {
	engine *engine.Engine
}

// NewJobHandler builds a JobHandler over eng.
func NewJobHandler(eng *engine.Engine) *JobHandler {
	return &JobHandler{engine: eng}
}

// Create registers a webhook-backed job.
// @Summary Register a job
// @Description Register a job whose handler calls out to an HTTP endpoint
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body CreateJobRequest true "Job registration request"
// @Success 201 {object} Response{data=JobView}
// @Failure 400 {object} Response
// @Router /api/v1/jobs [post]
func (h *JobHandler) Create(c *fiber.Ctx) error {
	var req CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}
	if req.Name == "" || req.URL == "" {
		return BadRequest(c, "name and url are required")
	}

	worker := webhook.New(webhook.Config{
		Method:  req.Method,
		URL:     req.URL,
		Headers: req.Headers,
		Body:    req.Body,
	}, nil)

	def := engine.JobDefinition{
		Name:        req.Name,
		Worker:      worker,
		Concurrency: req.Concurrency,
		Timeout:     msToDuration(req.TimeoutMs),
	}
	if req.RetryMaxAttempts > 0 {
		delay := msToDuration(req.RetryDelayMs)
		def.Retry = &engine.RetryPolicy{
			MaxAttempts: req.RetryMaxAttempts,
			Strategy:    func(int) time.Duration { return delay },
		}
	}
	if req.RateLimitCapacity > 0 {
		def.RateLimit = &engine.RateLimitConfig{
			Capacity:         req.RateLimitCapacity,
			RefillRate:       req.RateLimitRefillRate,
			RefillIntervalMs: req.RateLimitRefillIntervalMs,
			Burst:            req.RateLimitBurst,
		}
	}

	if _, err := h.engine.RegisterJob(c.Context(), def); err != nil {
		return EngineError(c, err)
	}

	job, err := h.engine.GetJob(c.Context(), req.Name)
	if err != nil {
		return EngineError(c, err)
	}
	return Created(c, jobView(job))
}

// List lists registered jobs.
// @Summary List jobs
// @Tags jobs
// @Produce json
// @Success 200 {object} Response{data=[]JobView}
// @Router /api/v1/jobs [get]
func (h *JobHandler) List(c *fiber.Ctx) error {
	jobs, err := h.engine.ListJobs(c.Context())
	if err != nil {
		return EngineError(c, err)
	}
	out := make([]JobView, len(jobs))
	for i, j := range jobs {
		out[i] = jobView(j)
	}
	return Success(c, out)
}

// Get retrieves a job by name.
// @Summary Get a job
// @Tags jobs
// @Produce json
// @Param name path string true "Job name"
// @Success 200 {object} Response{data=JobView}
// @Failure 404 {object} Response
// @Router /api/v1/jobs/{name} [get]
func (h *JobHandler) Get(c *fiber.Ctx) error {
	job, err := h.engine.GetJob(c.Context(), c.Params("name"))
	if err != nil {
		return EngineError(c, err)
	}
	return Success(c, jobView(job))
}

// Pause pauses a job.
// @Summary Pause a job
// @Tags jobs
// @Param name path string true "Job name"
// @Success 204
// @Router /api/v1/jobs/{name}/pause [post]
func (h *JobHandler) Pause(c *fiber.Ctx) error {
	return h.withJobHandle(c, func(h *engine.JobHandle) error { return h.Pause(c.Context()) })
}

// Resume resumes a paused job.
// @Summary Resume a job
// @Tags jobs
// @Param name path string true "Job name"
// @Success 204
// @Router /api/v1/jobs/{name}/resume [post]
func (h *JobHandler) Resume(c *fiber.Ctx) error {
	return h.withJobHandle(c, func(h *engine.JobHandle) error { return h.Resume(c.Context()) })
}

// Delete unregisters a job.
// @Summary Unregister a job
// @Tags jobs
// @Param name path string true "Job name"
// @Success 204
// @Router /api/v1/jobs/{name} [delete]
func (h *JobHandler) Delete(c *fiber.Ctx) error {
	return h.withJobHandle(c, func(h *engine.JobHandle) error { return h.Unregister(c.Context()) })
}

func (h *JobHandler) withJobHandle(c *fiber.Ctx, fn func(*engine.JobHandle) error) error {
	name := c.Params("name")
	if _, err := h.engine.GetJob(c.Context(), name); err != nil {
		return EngineError(c, err)
	}
	handle := h.engine.JobHandleFor(name)
	if err := fn(handle); err != nil {
		return EngineError(c, err)
	}
	return NoContent(c)
}
