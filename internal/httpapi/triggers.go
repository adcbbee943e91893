package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/minisource/jobkeeper/internal/engine"
)

// TriggerHandler handles trigger scheduling endpoints.
type TriggerHandler struct {
	engine *engine.Engine
}

// NewTriggerHandler builds a TriggerHandler over eng.
func NewTriggerHandler(eng *engine.Engine) *TriggerHandler {
	return &TriggerHandler{engine: eng}
}

// Create schedules a trigger for a job.
// @Summary Schedule a trigger
// @Tags triggers
// @Accept json
// @Produce json
// @Param name path string true "Job name"
// @Param request body ScheduleTriggerRequest true "Trigger schedule request"
// @Success 201 {object} Response{data=TriggerView}
// @Failure 400 {object} Response
// @Router /api/v1/jobs/{name}/triggers [post]
func (h *TriggerHandler) Create(c *fiber.Ctx) error {
	jobName := c.Params("name")

	var req ScheduleTriggerRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}
	if req.Kind == "" {
		return BadRequest(c, "kind is required")
	}

	opts := engine.TriggerOptions{
		Plan: engine.PlanOptions{
			Kind:     req.Kind,
			CronExpr: req.CronExpr,
			Interval: msToDuration(req.IntervalMs),
		},
		Priority:       req.Priority,
		Metadata:       req.Metadata,
		IdempotencyKey: req.IdempotencyKey,
		MisfirePolicy:  engine.MisfirePolicy(req.MisfirePolicy),
	}
	if req.RunAt != nil {
		opts.Plan.RunAt = *req.RunAt
	}
	if req.IntervalStart != nil {
		opts.Plan.IntervalStart = *req.IntervalStart
	}
	if req.Location != "" {
		loc, err := time.LoadLocation(req.Location)
		if err != nil {
			return BadRequest(c, "invalid location: "+err.Error())
		}
		opts.Plan.Location = loc
	}

	handle, err := h.engine.Schedule(c.Context(), jobName, opts)
	if err != nil {
		return EngineError(c, err)
	}

	trig, err := h.engine.GetTrigger(c.Context(), handle.ID())
	if err != nil {
		return EngineError(c, err)
	}
	return Created(c, triggerView(trig))
}

// List lists all scheduled triggers.
// @Summary List triggers
// @Tags triggers
// @Produce json
// @Success 200 {object} Response{data=[]TriggerView}
// @Router /api/v1/triggers [get]
func (h *TriggerHandler) List(c *fiber.Ctx) error {
	triggers, err := h.engine.ListTriggers(c.Context())
	if err != nil {
		return EngineError(c, err)
	}
	out := make([]TriggerView, len(triggers))
	for i, t := range triggers {
		out[i] = triggerView(t)
	}
	return Success(c, out)
}

// Get retrieves a trigger by id.
// @Summary Get a trigger
// @Tags triggers
// @Produce json
// @Param id path string true "Trigger id"
// @Success 200 {object} Response{data=TriggerView}
// @Failure 404 {object} Response
// @Router /api/v1/triggers/{id} [get]
func (h *TriggerHandler) Get(c *fiber.Ctx) error {
	trig, err := h.engine.GetTrigger(c.Context(), c.Params("id"))
	if err != nil {
		return EngineError(c, err)
	}
	return Success(c, triggerView(trig))
}

// Pause pauses a trigger.
// @Summary Pause a trigger
// @Tags triggers
// @Param id path string true "Trigger id"
// @Success 204
// @Router /api/v1/triggers/{id}/pause [post]
func (h *TriggerHandler) Pause(c *fiber.Ctx) error {
	if err := h.engine.TriggerHandleFor(c.Params("id")).Pause(c.Context()); err != nil {
		return EngineError(c, err)
	}
	return NoContent(c)
}

// Resume resumes a paused trigger.
// @Summary Resume a trigger
// @Tags triggers
// @Param id path string true "Trigger id"
// @Success 204
// @Router /api/v1/triggers/{id}/resume [post]
func (h *TriggerHandler) Resume(c *fiber.Ctx) error {
	if err := h.engine.TriggerHandleFor(c.Params("id")).Resume(c.Context()); err != nil {
		return EngineError(c, err)
	}
	return NoContent(c)
}

// Cancel cancels (deletes) a trigger.
// @Summary Cancel a trigger
// @Tags triggers
// @Param id path string true "Trigger id"
// @Success 204
// @Router /api/v1/triggers/{id} [delete]
func (h *TriggerHandler) Cancel(c *fiber.Ctx) error {
	if err := h.engine.TriggerHandleFor(c.Params("id")).Cancel(c.Context()); err != nil {
		return EngineError(c, err)
	}
	return NoContent(c)
}

// ExecuteNow triggers a job to run immediately, outside its regular plan.
// @Summary Execute a job now
// @Tags jobs
// @Accept json
// @Produce json
// @Param name path string true "Job name"
// @Param request body ExecuteNowRequest false "Execute override"
// @Success 202 {object} Response{data=engine.ExecuteResult}
// @Failure 400 {object} Response
// @Router /api/v1/jobs/{name}/execute [post]
func (h *TriggerHandler) ExecuteNow(c *fiber.Ctx) error {
	jobName := c.Params("name")

	var req ExecuteNowRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return BadRequest(c, "invalid request body")
		}
	}

	var overrides *engine.ExecuteOverrides
	if req.RunAt != nil {
		overrides = &engine.ExecuteOverrides{RunAt: *req.RunAt}
	}

	result, err := h.engine.ExecuteNow(c.Context(), jobName, overrides)
	if err != nil {
		return EngineError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(Response{Success: true, Data: result})
}
