package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/xid"

	"pinredeem/internal/config"
	"pinredeem/internal/infra/logging"
	"pinredeem/internal/infra/ratelimit"
)

const (
	LivenessPath  = "/ops/live"
	ReadinessPath = "/ops/ready"
)

// ReadyProbe reports whether the service can take redemptions.
type ReadyProbe func(ctx context.Context) bool

// Register attaches global middleware to the app.
func Register(app *fiber.App, cfg config.Config, ready ReadyProbe) {
	store := ratelimit.NewStore(ratelimit.RedisConfig{
		Addr: cfg.RateLimiter.RedisHost,
		DB:   cfg.RateLimiter.RedisDB,
	})

	app.Use(cors.New())

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	app.Use(healthcheck.New(healthcheck.Config{
		LivenessEndpoint:  LivenessPath,
		ReadinessEndpoint: ReadinessPath,
		ReadinessProbe: func(c *fiber.Ctx) bool {
			if ready == nil {
				return true
			}
			return ready(c.UserContext())
		},
	}))

	app.Use(UserRateLimit(cfg, store))
	app.Use(RequestLogger())
}

// RequestLogger logs every request once it has been handled.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = c.GetRespHeader(fiber.HeaderXRequestID)
		}
		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		logging.Info("Request handled",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"request_id", requestID,
			"elapsed", time.Since(start),
		)
		return err
	}
}

// probePath reports requests for health and metrics endpoints, which are
// never rate limited.
func probePath(c *fiber.Ctx) bool {
	p := c.Path()
	return strings.HasPrefix(p, "/ops/") || p == "/health" || p == "/metrics"
}
