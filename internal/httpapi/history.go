package httpapi

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/minisource/jobkeeper/internal/store/pgstore"
)

// HistoryProvider is satisfied by pgstore.Store. It is nil for
// deployments running the in-memory store, which keeps no daily rollups.
type HistoryProvider interface {
	JobHistory(ctx context.Context, job string, limit int) ([]pgstore.HistoryPoint, error)
}

// HistoryHandler handles the read-only run-history rollup endpoint.
type HistoryHandler struct {
	store HistoryProvider
}

// NewHistoryHandler builds a HistoryHandler. store may be nil.
func NewHistoryHandler(store HistoryProvider) *HistoryHandler {
	return &HistoryHandler{store: store}
}

// GetByJob returns the daily run-history rollup for a job.
// @Summary Get a job's run history
// @Tags history
// @Produce json
// @Param name path string true "Job name"
// @Param limit query int false "Number of days" default(30)
// @Success 200 {object} Response{data=[]HistoryPointView}
// @Failure 503 {object} Response
// @Router /api/v1/jobs/{name}/history [get]
func (h *HistoryHandler) GetByJob(c *fiber.Ctx) error {
	if h.store == nil {
		return fail(c, fiber.StatusServiceUnavailable, "NOT_SUPPORTED", "run history requires the durable store")
	}

	points, err := h.store.JobHistory(c.Context(), c.Params("name"), c.QueryInt("limit", 30))
	if err != nil {
		return EngineError(c, err)
	}
	out := make([]HistoryPointView, len(points))
	for i, p := range points {
		out[i] = HistoryPointView{
			Date:            p.Date.Format("2006-01-02"),
			TotalRuns:       p.TotalRuns,
			SuccessCount:    p.SuccessCount,
			FailureCount:    p.FailureCount,
			TotalDurationMs: p.TotalDurationMs,
			MinDurationMs:   p.MinDurationMs,
			MaxDurationMs:   p.MaxDurationMs,
		}
	}
	return Success(c, out)
}
