package httpapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"gorm.io/gorm"

	"github.com/minisource/jobkeeper/internal/engine"
)

// Handlers bundles the HTTP handlers mounted by SetupRouter.
type Handlers struct {
	Job     *JobHandler
	Trigger *TriggerHandler
	Run     *RunHandler
	History *HistoryHandler
	Health  *HealthHandler
}

// NewHandlers builds the full handler set. db and history may be nil for
// in-memory-store deployments.
func NewHandlers(eng *engine.Engine, db *gorm.DB, history HistoryProvider) *Handlers {
	return &Handlers{
		Job:     NewJobHandler(eng),
		Trigger: NewTriggerHandler(eng),
		Run:     NewRunHandler(eng),
		History: NewHistoryHandler(history),
		Health:  NewHealthHandler(eng, db),
	}
}

// SetupRouter configures the Fiber router, adapted from the teacher's
// internal/router/router.go.
func SetupRouter(app *fiber.App, h *Handlers) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} - ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
	}))

	app.Get("/swagger/*", swagger.HandlerDefault)

	app.Get("/health", h.Health.Health)
	app.Get("/ready", h.Health.Ready)
	app.Get("/live", h.Health.Live)

	v1 := app.Group("/api/v1")

	jobs := v1.Group("/jobs")
	jobs.Post("/", h.Job.Create)
	jobs.Get("/", h.Job.List)
	jobs.Get("/:name", h.Job.Get)
	jobs.Delete("/:name", h.Job.Delete)
	jobs.Post("/:name/pause", h.Job.Pause)
	jobs.Post("/:name/resume", h.Job.Resume)
	jobs.Post("/:name/triggers", h.Trigger.Create)
	jobs.Post("/:name/execute", h.Trigger.ExecuteNow)
	jobs.Get("/:name/history", h.History.GetByJob)

	triggers := v1.Group("/triggers")
	triggers.Get("/", h.Trigger.List)
	triggers.Get("/:id", h.Trigger.Get)
	triggers.Delete("/:id", h.Trigger.Cancel)
	triggers.Post("/:id/pause", h.Trigger.Pause)
	triggers.Post("/:id/resume", h.Trigger.Resume)

	runs := v1.Group("/runs")
	runs.Get("/:id", h.Run.Get)
}
