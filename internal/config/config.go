package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config.yaml"

// Config is the full service configuration, loaded from YAML.
type Config struct {
	Server struct {
		Host      string `yaml:"host"`
		Port      string `yaml:"port"`
		Prefork   bool   `yaml:"prefork"`
		BodyLimit int    `yaml:"body_limit"`
	} `yaml:"server"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	Browser BrowserConfig `yaml:"browser"`
	Site    SiteConfig    `yaml:"site"`
	Redeem  RedeemConfig  `yaml:"redeem"`

	RateLimiter struct {
		Interval  time.Duration `yaml:"interval"`
		UserLimit int           `yaml:"user_limit"`
		RedisHost string        `yaml:"redis_host"`
		RedisDB   int           `yaml:"redis_db"`
	} `yaml:"rate_limiter"`
}

// BrowserConfig controls how the shared headless Chrome is launched.
type BrowserConfig struct {
	ChromePath     string        `yaml:"chrome_path"`
	NoSandbox      bool          `yaml:"no_sandbox"`
	Headful        bool          `yaml:"headful"`
	UserDataDir    string        `yaml:"user_data_dir"`
	MaxSessions    int           `yaml:"max_sessions"`
	LaunchTimeout  time.Duration `yaml:"launch_timeout"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	ExtraFlags     []string      `yaml:"extra_flags"`
}

// SiteConfig describes the redemption page: where it lives and how its
// markup is addressed. Everything that breaks when the site changes lives here.
type SiteConfig struct {
	URL                  string       `yaml:"url"`
	Locale               string       `yaml:"locale"`
	ViewportWidth        int64        `yaml:"viewport_width"`
	ViewportHeight       int64        `yaml:"viewport_height"`
	Selectors            Selectors    `yaml:"selectors"`
	Endpoints            Endpoints    `yaml:"endpoints"`
	Timeouts             SiteTimeouts `yaml:"timeouts"`
	BlockedResourceTypes []string     `yaml:"blocked_resource_types"`
	BlockedDomains       []string     `yaml:"blocked_domains"`
}

// Selectors are CSS selectors for the elements of the redemption form.
type Selectors struct {
	PIN            string `yaml:"pin"`
	ValidateButton string `yaml:"validate_button"`
	DetailsCard    string `yaml:"details_card"`
	AccountID      string `yaml:"account_id"`
	Name           string `yaml:"name"`
	BirthDate      string `yaml:"birth_date"`
	Country        string `yaml:"country"`
	Checkboxes     string `yaml:"checkboxes"`
	VerifyButton   string `yaml:"verify_button"`
	RedeemButton   string `yaml:"redeem_button"`
	Form           string `yaml:"form"`
}

// Endpoints are URL fragments of the XHR calls the page makes.
type Endpoints struct {
	Validate string `yaml:"validate"`
	Account  string `yaml:"account"`
	Confirm  string `yaml:"confirm"`
}

// SiteTimeouts bound every blocking browser step.
type SiteTimeouts struct {
	Navigation     time.Duration `yaml:"navigation"`
	Response       time.Duration `yaml:"response"`
	Details        time.Duration `yaml:"details"`
	Confirm        time.Duration `yaml:"confirm"`
	SubmitFallback time.Duration `yaml:"submit_fallback"`
	Element        time.Duration `yaml:"element"`
}

// RedeemConfig holds the request budget and the outcome classification rules.
type RedeemConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	Keywords Keywords      `yaml:"keywords"`
}

// Keywords are matched case-insensitively against rendered page text.
type Keywords struct {
	PINError     []string `yaml:"pin_error"`
	Success      []string `yaml:"success"`
	DetailsForm  []string `yaml:"details_form"`
	StillOnForm  []string `yaml:"still_on_form"`
	ConfirmError []string `yaml:"confirm_error"`
}

// Load reads the configuration from CONFIG_PATH (or ./config.yaml when present).
// A .env file in the working directory is applied to the environment first.
func Load() Config {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}
	return LoadFrom(path)
}

// LoadFrom reads the YAML file at path, applies defaults and env overrides and
// validates the result. It panics on unreadable or invalid configuration.
// An empty path yields the defaults.
func LoadFrom(path string) Config {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			panic(fmt.Sprintf("config: read %s: %v", path, err))
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			panic(fmt.Sprintf("config: parse %s: %v", path, err))
		}
	}

	applyEnv(&cfg)
	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return cfg
}

func applyEnv(cfg *Config) {
	// Allow common container env var to override chrome_path.
	if cfg.Browser.ChromePath == "" {
		if v := os.Getenv("CHROME_BIN"); v != "" {
			cfg.Browser.ChromePath = v
		}
	}
	if v := os.Getenv("REDEEM_URL"); v != "" {
		cfg.Site.URL = v
	}
}

// Validate rejects values the service cannot run with.
func (c Config) Validate() error {
	u, err := url.ParseRequestURI(c.Site.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("site.url must be an http(s) URL, got %q", c.Site.URL)
	}
	if c.Browser.MaxSessions < 1 {
		return fmt.Errorf("browser.max_sessions must be at least 1")
	}
	if c.Redeem.Timeout <= 0 || c.Site.Timeouts.Navigation <= 0 {
		return fmt.Errorf("redeem.timeout and site.timeouts.navigation must be positive")
	}
	if c.RateLimiter.UserLimit < 0 {
		return fmt.Errorf("rate_limiter.user_limit must not be negative")
	}
	if len(nonEmpty(c.Redeem.Keywords.Success)) == 0 || len(nonEmpty(c.Redeem.Keywords.PINError)) == 0 {
		return fmt.Errorf("redeem.keywords.success and redeem.keywords.pin_error must not be empty")
	}
	return nil
}

func nonEmpty(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
