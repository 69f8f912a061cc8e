package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/grade-roster-api/internal/config"
	"github.com/noah-isme/grade-roster-api/internal/handler"
	"github.com/noah-isme/grade-roster-api/internal/middleware"
	"github.com/noah-isme/grade-roster-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	IngestionHandler   *handler.IngestionHandler
	GradeRecordHandler *handler.GradeRecordHandler
	Store              handler.StorePinger
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Store))

	if deps.IngestionHandler != nil {
		uploads := api.Group("/uploads")
		if cfg.UploadsPerMinute > 0 {
			uploads.Use(middleware.RateLimit("uploads", cfg.UploadsPerMinute, time.Minute))
		}
		deps.IngestionHandler.Register(uploads)
	}

	if deps.GradeRecordHandler != nil {
		deps.GradeRecordHandler.Register(api.Group("/records"))
		deps.GradeRecordHandler.RegisterSummary(api.Group("/summary"))
	}
}
