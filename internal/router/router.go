package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/codequest-edu/codequest-go-api/internal/config"
	"github.com/codequest-edu/codequest-go-api/internal/handler"
	"github.com/codequest-edu/codequest-go-api/internal/middleware"
	"github.com/codequest-edu/codequest-go-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	SessionHandler *handler.SessionHandler
	JWTMiddleware  fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	// Exam sessions. Submissions fan out to the remote judge, so the group
	// is rate limited per user on top of the JWT guard.
	if deps.SessionHandler != nil {
		exam := app.Group("/api/v2/exam", jwtMiddleware, middleware.RateLimit("exam", 60, time.Minute))
		deps.SessionHandler.Register(exam.Group("/sessions"))
	}
}
