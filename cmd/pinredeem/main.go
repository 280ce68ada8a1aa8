package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"pinredeem/internal/config"
	"pinredeem/internal/http/server"
	"pinredeem/internal/infra/chrome"
	"pinredeem/internal/infra/logging"
	"pinredeem/internal/redeem"
	"pinredeem/internal/site"
)

func main() {
	if err := run(); err != nil {
		logging.Error("Service failed to start", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)

	browser := chrome.New(cfg.Browser)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Browser.LaunchTimeout)
	err := browser.Launch(ctx)
	cancel()
	if err != nil {
		browser.Close()
		return fmt.Errorf("start browser: %w", err)
	}
	defer browser.Close()

	executor := redeem.NewExecutor(browser, site.NewForm(cfg.Site), cfg)
	app := server.New(server.Deps{
		Config:   cfg,
		Redeemer: executor,
		Browser:  browser,
	})
	logging.Info("Service ready", "addr", cfg.Server.Host+cfg.Server.Port, "site", cfg.Site.URL)

	idleConnsClosed := make(chan struct{})
	if err := startServer(app, cfg, idleConnsClosed); err != nil {
		return err
	}
	<-idleConnsClosed
	return nil
}

// startServer starts the Fiber app and blocks until a shutdown signal arrives
// or the listener fails.
func startServer(app *fiber.App, cfg config.Config, idleConnsClosed chan struct{}) error {
	listenErr := make(chan error, 1)
	go func() {
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			listenErr <- err
		}
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigint)

	select {
	case err := <-listenErr:
		close(idleConnsClosed)
		return fmt.Errorf("listen: %w", err)
	case <-sigint:
	}

	logging.Warn("Shutdown signal received, closing server...")

	// In-flight redemptions get the full request budget to finish.
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	logging.Info("Server stopped cleanly")
	return nil
}

func shutdownTimeout(cfg config.Config) time.Duration {
	if cfg.Redeem.Timeout > 0 {
		return cfg.Redeem.Timeout
	}
	return 5 * time.Second
}
