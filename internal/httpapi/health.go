package httpapi

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/minisource/jobkeeper/internal/engine"
)

// HealthHandler handles health/readiness/liveness endpoints, adapted from
// the teacher's internal/handler/health_handler.go. db is nil for
// deployments running the in-memory store.
type HealthHandler struct {
	engine *engine.Engine
	db     *gorm.DB
}

// NewHealthHandler builds a HealthHandler. db may be nil.
func NewHealthHandler(eng *engine.Engine, db *gorm.DB) *HealthHandler {
	return &HealthHandler{engine: eng, db: db}
}

func (h *HealthHandler) pingStore() (string, error) {
	if h.db == nil {
		return "in-memory", nil
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return "disconnected", err
	}
	if err := sqlDB.Ping(); err != nil {
		return "disconnected", err
	}
	return "connected", nil
}

// Health returns the service health status.
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} Response
// @Failure 503 {object} Response
// @Router /health [get]
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	storeStatus, err := h.pingStore()
	data := fiber.Map{
		"status":  "healthy",
		"engine":  h.engine.IsRunning(),
		"store":   storeStatus,
	}
	if err != nil || !h.engine.IsRunning() {
		data["status"] = "unhealthy"
		return c.Status(fiber.StatusServiceUnavailable).JSON(Response{Success: false, Data: data})
	}
	return Success(c, data)
}

// Ready returns the service readiness status.
// @Summary Readiness check
// @Tags health
// @Produce json
// @Success 200 {object} Response
// @Failure 503 {object} Response
// @Router /ready [get]
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if !h.engine.IsRunning() {
		return fail(c, fiber.StatusServiceUnavailable, "NOT_READY", "engine is not running")
	}
	if _, err := h.pingStore(); err != nil {
		return fail(c, fiber.StatusServiceUnavailable, "NOT_READY", err.Error())
	}
	return Success(c, fiber.Map{"status": "ready"})
}

// Live returns the liveness status.
// @Summary Liveness check
// @Tags health
// @Produce json
// @Success 200 {object} Response
// @Router /live [get]
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return Success(c, fiber.Map{"status": "alive"})
}
