// Package config loads docsync settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Source kinds.
const (
	SourceDir = "dir"
	SourceGit = "git"
)

// Config is the process configuration. Command-line flags override it.
type Config struct {
	DBPath     string `env:"DOCSYNC_DB_PATH"     envDefault:"docsync.db"`
	SourceKind string `env:"DOCSYNC_SOURCE_KIND" envDefault:"dir"`
	SourceRoot string `env:"DOCSYNC_SOURCE_ROOT" envDefault:"."`
	// SourceDir is the corpus directory inside a git repository.
	SourceDir string `env:"DOCSYNC_SOURCE_DIR"`
	GitRef    string `env:"DOCSYNC_GIT_REF"     envDefault:"HEAD"`
	IDPrefix  string `env:"DOCSYNC_ID_PREFIX"   envDefault:"RFD"`

	Interval         time.Duration `env:"DOCSYNC_INTERVAL"          envDefault:"1h"`
	CycleTimeout     time.Duration `env:"DOCSYNC_CYCLE_TIMEOUT"     envDefault:"10m"`
	FetchConcurrency int           `env:"DOCSYNC_FETCH_CONCURRENCY" envDefault:"8"`
	FetchRate        float64       `env:"DOCSYNC_FETCH_RATE"        envDefault:"0"`

	HTTPAddr string        `env:"DOCSYNC_HTTP_ADDR" envDefault:":8080"`
	Watch    bool          `env:"DOCSYNC_WATCH"     envDefault:"false"`
	Debounce time.Duration `env:"DOCSYNC_DEBOUNCE"  envDefault:"2s"`

	NotifySkipMetadata bool `env:"DOCSYNC_NOTIFY_SKIP_METADATA" envDefault:"false"`

	LogFile      string `env:"DOCSYNC_LOG_FILE"`
	LogMaxSizeMB int    `env:"DOCSYNC_LOG_MAX_SIZE_MB" envDefault:"50"`
	OTELEndpoint string `env:"DOCSYNC_OTEL_ENDPOINT"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment into a Config, applies overrides in order
// (the CLI uses them for explicitly set flags), and validates the result.
func Load(overrides ...func(*Config)) (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	for _, o := range overrides {
		o(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("DOCSYNC_DB_PATH must not be empty"))
	}
	if c.SourceKind != SourceDir && c.SourceKind != SourceGit {
		errs = append(errs, fmt.Errorf("DOCSYNC_SOURCE_KIND must be %q or %q, got %q", SourceDir, SourceGit, c.SourceKind))
	}
	if c.SourceRoot == "" {
		errs = append(errs, errors.New("DOCSYNC_SOURCE_ROOT must not be empty"))
	}
	if c.IDPrefix == "" {
		errs = append(errs, errors.New("DOCSYNC_ID_PREFIX must not be empty"))
	}
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("DOCSYNC_INTERVAL must be positive, got %s", c.Interval))
	}
	if c.CycleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("DOCSYNC_CYCLE_TIMEOUT must be positive, got %s", c.CycleTimeout))
	}
	if c.FetchConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("DOCSYNC_FETCH_CONCURRENCY must be positive, got %d", c.FetchConcurrency))
	}
	if c.FetchRate < 0 {
		errs = append(errs, fmt.Errorf("DOCSYNC_FETCH_RATE must not be negative, got %g", c.FetchRate))
	}
	if c.Debounce < 0 {
		errs = append(errs, fmt.Errorf("DOCSYNC_DEBOUNCE must not be negative, got %s", c.Debounce))
	}
	if c.Watch && c.SourceKind != SourceDir {
		errs = append(errs, errors.New("DOCSYNC_WATCH requires DOCSYNC_SOURCE_KIND=dir"))
	}
	if c.LogMaxSizeMB <= 0 {
		errs = append(errs, fmt.Errorf("DOCSYNC_LOG_MAX_SIZE_MB must be positive, got %d", c.LogMaxSizeMB))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
