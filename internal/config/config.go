// Package config loads and validates the site configuration file.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sitebuilder/internal/freshness"
)

// Config represents the application configuration.
type Config struct {
	Site    SiteConfig    `yaml:"site"`
	Content ContentConfig `yaml:"content"`
	Output  OutputConfig  `yaml:"output"`
	Cache   CacheConfig   `yaml:"cache"`
	Build   BuildConfig   `yaml:"build"`
	Watch   WatchConfig   `yaml:"watch"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// SiteConfig holds site-wide presentation settings.
type SiteConfig struct {
	Title   string `yaml:"title"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// ContentConfig locates the source inputs.
type ContentConfig struct {
	Dir        string `yaml:"dir"`         // markdown pages
	LayoutsDir string `yaml:"layouts_dir"` // templates and partials
}

// OutputConfig locates the generated site.
type OutputConfig struct {
	Directory string `yaml:"directory"`
}

// CacheConfig drives the freshness engine.
type CacheConfig struct {
	// Dir is the project cache directory; the manifest lives under
	// <dir>/cache/manifest.json and build history under <dir>/history.db.
	Dir string `yaml:"dir"`

	DefaultTTLSeconds          int `yaml:"default_ttl_seconds"`
	MaxAgeCapDays              int `yaml:"max_age_cap_days,omitempty"`
	ClockDriftToleranceSeconds int `yaml:"clock_drift_tolerance_seconds"`

	AgingRules []freshness.AgingRule `yaml:"aging_rules,omitempty"`

	// PendingTTLDays expires pending invalidation records that never match
	// any page. Zero keeps them forever.
	PendingTTLDays int `yaml:"pending_ttl_days,omitempty"`
}

// BuildConfig tunes a single build cycle.
type BuildConfig struct {
	Workers              int `yaml:"workers"`
	RenderTimeoutSeconds int `yaml:"render_timeout_seconds"`

	// CheckpointEvery persists the manifest after this many committed
	// renders, bounding rework lost to a crash mid-cycle. Zero saves only
	// at end of cycle.
	CheckpointEvery int `yaml:"checkpoint_every,omitempty"`
}

// WatchConfig tunes watch/dev mode.
type WatchConfig struct {
	QuietWindowMS int `yaml:"quiet_window_ms"`
	MaxDelayMS    int `yaml:"max_delay_ms"`

	// ReevalIntervalSeconds runs a full re-evaluation periodically so TTL
	// expiry is noticed without a file event. Zero disables it.
	ReevalIntervalSeconds int `yaml:"reeval_interval_seconds"`
}

// MetricsConfig enables the Prometheus endpoint in watch mode.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen,omitempty"`
}

// Load reads configuration from the specified file, overlays .env variables,
// applies defaults, and validates. A missing config file is not an error:
// the defaults describe a conventional project layout.
func Load(configPath string) (*Config, error) {
	// A .env next to the project config may hold machine-local overrides.
	// Missing files are fine; existing process env always wins.
	_ = godotenv.Load()

	var config Config
	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
