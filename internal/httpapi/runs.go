package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/minisource/jobkeeper/internal/engine"
)

// RunHandler handles run lookup endpoints.
type RunHandler struct {
	engine *engine.Engine
}

// NewRunHandler builds a RunHandler over eng.
func NewRunHandler(eng *engine.Engine) *RunHandler {
	return &RunHandler{engine: eng}
}

// Get retrieves a run by id.
// @Summary Get a run
// @Tags runs
// @Produce json
// @Param id path string true "Run id"
// @Success 200 {object} Response{data=RunView}
// @Failure 404 {object} Response
// @Router /api/v1/runs/{id} [get]
func (h *RunHandler) Get(c *fiber.Ctx) error {
	run, err := h.engine.GetRun(c.Context(), c.Params("id"))
	if err != nil {
		return EngineError(c, err)
	}
	return Success(c, runView(run))
}
