package config

import (
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/freshness"
)

// Defaults for a conventional project layout.
const (
	DefaultContentDir = "content"
	DefaultLayoutsDir = "layouts"
	DefaultOutputDir  = "site"
	DefaultCacheDir   = ".sitebuilder"

	DefaultTTLSeconds          = 21600 // 6h
	DefaultClockDriftTolerance = 30    // seconds
	DefaultWorkers             = 4
	DefaultRenderTimeout       = 30 // seconds
	DefaultQuietWindowMS       = 250
	DefaultMaxDelayMS          = 2000
	DefaultReevalInterval      = 300 // seconds
	DefaultMetricsListen       = ":9090"
)

// ApplyDefaults fills unset fields and normalizes the aging rule order.
func (c *Config) ApplyDefaults() {
	if c.Site.Title == "" {
		c.Site.Title = "Site"
	}
	if c.Content.Dir == "" {
		c.Content.Dir = DefaultContentDir
	}
	if c.Content.LayoutsDir == "" {
		c.Content.LayoutsDir = DefaultLayoutsDir
	}
	if c.Output.Directory == "" {
		c.Output.Directory = DefaultOutputDir
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = DefaultCacheDir
	}
	if c.Cache.DefaultTTLSeconds <= 0 {
		c.Cache.DefaultTTLSeconds = DefaultTTLSeconds
	}
	if c.Cache.ClockDriftToleranceSeconds <= 0 {
		c.Cache.ClockDriftToleranceSeconds = DefaultClockDriftTolerance
	}
	c.Cache.AgingRules = freshness.SortRules(c.Cache.AgingRules)

	if c.Build.Workers <= 0 {
		c.Build.Workers = DefaultWorkers
	}
	if c.Build.RenderTimeoutSeconds <= 0 {
		c.Build.RenderTimeoutSeconds = DefaultRenderTimeout
	}
	if c.Build.CheckpointEvery < 0 {
		c.Build.CheckpointEvery = 0
	}

	if c.Watch.QuietWindowMS <= 0 {
		c.Watch.QuietWindowMS = DefaultQuietWindowMS
	}
	if c.Watch.MaxDelayMS <= 0 {
		c.Watch.MaxDelayMS = DefaultMaxDelayMS
	}
	if c.Watch.ReevalIntervalSeconds < 0 {
		c.Watch.ReevalIntervalSeconds = 0
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		c.Metrics.Listen = DefaultMetricsListen
	}
}

// FreshnessPolicy assembles the evaluator policy from the cache settings.
func (c *Config) FreshnessPolicy() freshness.Policy {
	return freshness.Policy{
		AgingRules:          c.Cache.AgingRules,
		DefaultTTL:          time.Duration(c.Cache.DefaultTTLSeconds) * time.Second,
		MaxAgeCapDays:       c.Cache.MaxAgeCapDays,
		ClockDriftTolerance: time.Duration(c.Cache.ClockDriftToleranceSeconds) * time.Second,
	}
}

// RenderTimeout returns the per-page render bound.
func (c *Config) RenderTimeout() time.Duration {
	return time.Duration(c.Build.RenderTimeoutSeconds) * time.Second
}

// QuietWindow returns the watch-mode debounce window.
func (c *Config) QuietWindow() time.Duration {
	return time.Duration(c.Watch.QuietWindowMS) * time.Millisecond
}

// MaxDelay returns the watch-mode debounce hard cap.
func (c *Config) MaxDelay() time.Duration {
	return time.Duration(c.Watch.MaxDelayMS) * time.Millisecond
}

// PendingTTL returns the pending-invalidation expiry; zero disables it.
func (c *Config) PendingTTL() time.Duration {
	return time.Duration(c.Cache.PendingTTLDays) * 24 * time.Hour
}
