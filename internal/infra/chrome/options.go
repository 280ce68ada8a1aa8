package chrome

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"pinredeem/internal/config"
)

const defaultLaunchTimeout = 20 * time.Second

func launchTimeout(cfg config.BrowserConfig) time.Duration {
	if cfg.LaunchTimeout > 0 {
		return cfg.LaunchTimeout
	}
	return defaultLaunchTimeout
}

// allocatorOptions keeps the process lean: no GPU, no background services,
// no extensions and a capped V8 heap.
func allocatorOptions(cfg config.BrowserConfig, profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		chromedp.WSURLReadTimeout(launchTimeout(cfg)),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-software-rasterizer", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("disable-component-update", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-ipc-flooding-protection", true),
		chromedp.Flag("js-flags", "--max-old-space-size=256"),
	)
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}
	if cfg.NoSandbox {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	if cfg.Headful {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	for _, raw := range cfg.ExtraFlags {
		if name, value, ok := parseFlag(raw); ok {
			opts = append(opts, chromedp.Flag(name, value))
		}
	}
	return opts
}

// parseFlag turns "--name=value" or "--name" into a chromedp flag pair.
func parseFlag(raw string) (string, any, bool) {
	raw = strings.TrimLeft(strings.TrimSpace(raw), "-")
	if raw == "" {
		return "", nil, false
	}
	name, value, found := strings.Cut(raw, "=")
	if !found {
		return name, true, true
	}
	return name, value, true
}

// createProfileDir makes a throwaway user-data-dir under cfg.UserDataDir, or
// the OS temp dir when unset.
func createProfileDir(cfg config.BrowserConfig) (string, error) {
	base := cfg.UserDataDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("cannot create profile base dir: %w", err)
	}
	dir, err := os.MkdirTemp(base, "pinredeem-chrome-*")
	if err != nil {
		return "", fmt.Errorf("cannot create temp profile dir: %w", err)
	}
	return dir, nil
}
