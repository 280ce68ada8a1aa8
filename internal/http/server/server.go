package server

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"pinredeem/internal/config"
	"pinredeem/internal/http/handlers"
	"pinredeem/internal/http/middleware"
	"pinredeem/internal/infra/logging"
)

// Deps are the collaborators the HTTP layer serves.
type Deps struct {
	Config   config.Config
	Redeemer handlers.Redeemer
	Browser  handlers.BrowserStatus
}

// New creates and configures the Fiber app.
func New(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		Prefork:               d.Config.Server.Prefork,
		BodyLimit:             d.Config.Server.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	middleware.Register(app, d.Config, d.Browser.Ready)
	RegisterRoutes(app, d)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

// RegisterRoutes mounts all route handlers.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Post("/redeem", handlers.Redeem(d.Redeemer))
	app.Get("/health", handlers.Health(d.Browser))
	app.Get("/metrics", handlers.Metrics(d.Browser, time.Now()))
	app.Get("/monitor", monitor.New(monitor.Config{Title: "pinredeem"}))
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}

	logging.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": msg,
		},
	})
}
