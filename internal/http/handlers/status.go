package handlers

import (
	"context"
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"

	"pinredeem/internal/infra/chrome"
)

// BrowserStatus exposes readiness and usage of the shared browser.
type BrowserStatus interface {
	Ready(ctx context.Context) bool
	Stats() chrome.Stats
}

// Health reports whether the browser answers. It returns 503 until the
// browser is launched and after it is lost.
func Health(b BrowserStatus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !b.Ready(c.UserContext()) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":        "unavailable",
				"browser_ready": false,
			})
		}
		return c.JSON(fiber.Map{
			"status":        "ok",
			"browser_ready": true,
		})
	}
}

const mb = 1024 * 1024

// Metrics reports process memory, goroutines and browser usage.
func Metrics(b BrowserStatus, started time.Time) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		return c.JSON(fiber.Map{
			"heap_alloc_mb":     round1(float64(m.HeapAlloc) / mb),
			"sys_mb":            round1(float64(m.Sys) / mb),
			"num_gc":            m.NumGC,
			"goroutines":        runtime.NumGoroutine(),
			"uptime_seconds":    int64(time.Since(started).Seconds()),
			"browser_connected": b.Ready(c.UserContext()),
			"browser":           b.Stats(),
		})
	}
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
