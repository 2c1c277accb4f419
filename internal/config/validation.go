package config

import (
	sberrors "git.home.luguber.info/inful/sitebuilder/internal/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/freshness"
)

// Validate rejects configurations the engine cannot honor. Called after
// ApplyDefaults, so zero values have already been filled.
func (c *Config) Validate() error {
	if err := freshness.ValidateRules(c.Cache.AgingRules); err != nil {
		return sberrors.Wrap(err, sberrors.CategoryConfig, sberrors.SeverityFatal, "invalid aging rules")
	}
	if c.Cache.MaxAgeCapDays < 0 {
		return sberrors.New(sberrors.CategoryConfig, sberrors.SeverityFatal, "max_age_cap_days must be >= 0")
	}
	if c.Cache.PendingTTLDays < 0 {
		return sberrors.New(sberrors.CategoryConfig, sberrors.SeverityFatal, "pending_ttl_days must be >= 0")
	}
	if c.Content.Dir == c.Output.Directory {
		return sberrors.New(sberrors.CategoryConfig, sberrors.SeverityFatal, "content dir and output dir must differ")
	}
	return nil
}
