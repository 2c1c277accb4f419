// Package freshness implements the pure decision function at the core of the
// ISG engine: given a page's prior cache entry, its current hashes, the aging
// policy, and any pending invalidations, decide whether the cached output can
// be reused or the page must be re-rendered.
package freshness

import (
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/invalidate"
	"git.home.luguber.info/inful/sitebuilder/internal/manifest"
	"git.home.luguber.info/inful/sitebuilder/internal/util/sets"
)

// Reason explains why a page was marked stale.
type Reason string

const (
	ReasonCold              Reason = "cold"
	ReasonForced            Reason = "forced"
	ReasonContentChanged    Reason = "content-changed"
	ReasonDependencyChanged Reason = "dependency-changed"
	ReasonInvalidated       Reason = "invalidated"
	ReasonTTLExpired        Reason = "ttl-expired"
)

// Decision is the evaluator's verdict for one page.
type Decision struct {
	Fresh  bool
	Reason Reason // empty when Fresh

	// ClockAnomaly is set when builtAt was in the future beyond tolerance.
	// The page is forced stale; callers log it, it is not an error.
	ClockAnomaly bool
}

func fresh() Decision              { return Decision{Fresh: true} }
func stale(reason Reason) Decision { return Decision{Reason: reason} }

// Policy carries the site-wide freshness configuration. Page-level overrides
// in the cache entry take precedence where present.
type Policy struct {
	// AgingRules must be sorted ascending by UntilDays (config normalization
	// guarantees this).
	AgingRules []AgingRule

	DefaultTTL time.Duration

	// MaxAgeCapDays: pages older than this are never auto-expired by TTL;
	// only content, dependency, invalidation, or force triggers apply.
	// Zero disables the cap.
	MaxAgeCapDays int

	// ClockDriftTolerance is the allowed timestamp disagreement between
	// build machines. It widens the TTL window (never narrows it) and bounds
	// how far in the future builtAt may sit before being treated as an anomaly.
	ClockDriftTolerance time.Duration
}

// Input bundles everything Evaluate needs. Evaluate reads only this value
// and touches no ambient state, so identical inputs always yield identical
// decisions.
type Input struct {
	Entry *manifest.PageCacheEntry // nil when the page has no prior entry

	PageURL    string
	SourcePath string

	CurrentContentHash      string
	CurrentDependencyHashes map[string]string

	Pending []manifest.PendingInvalidation

	Policy Policy
	Now    time.Time
	Force  bool
}

// Evaluate runs the decision ladder; the first matching step wins.
func Evaluate(in Input) Decision {
	entry := in.Entry

	// 1. Cold start: no prior entry.
	if entry == nil {
		return stale(ReasonCold)
	}

	// 2. Forced: CLI --force, or the entry was flagged after a failed
	// dependency resolution / aborted render.
	if in.Force || entry.ForceRebuild {
		return stale(ReasonForced)
	}

	// 3. Content changed.
	if in.CurrentContentHash != entry.ContentHash {
		return stale(ReasonContentChanged)
	}

	// 4. Dependency set or any dependency's content changed.
	if dependenciesChanged(entry.DependencyHashes, in.CurrentDependencyHashes) {
		return stale(ReasonDependencyChanged)
	}

	// 5. Pending invalidation newer than the last render.
	tags := sets.New(entry.Tags...)
	for _, rec := range in.Pending {
		if rec.RequestedAt.After(entry.BuiltAt) &&
			invalidate.Matches(rec, in.PageURL, in.SourcePath, tags) {
			return stale(ReasonInvalidated)
		}
	}

	// 6. Clock anomaly: builtAt in the future beyond tolerance. Backward
	// clock jumps are suspicious, never silently trusted.
	if entry.BuiltAt.After(in.Now.Add(in.Policy.ClockDriftTolerance)) {
		d := stale(ReasonForced)
		d.ClockAnomaly = true
		return d
	}

	// 7. Effective TTL from the aging policy, unless the age cap applies.
	ageDays := pageAgeDays(entry, in.Now)
	if capped(entry, in.Policy, ageDays) {
		return fresh()
	}
	ttl := effectiveTTL(in.Policy.AgingRules, ageDays, entry.TTLSeconds, in.Policy.DefaultTTL)

	// 8. TTL check. Tolerance is added, not subtracted: entries a little past
	// their nominal TTL stay fresh, preventing rebuild thrashing from small
	// clock disagreements across CI runners.
	if in.Now.Sub(entry.BuiltAt) > ttl+in.Policy.ClockDriftTolerance {
		return stale(ReasonTTLExpired)
	}

	// 9. Fresh.
	return fresh()
}

// pageAgeDays measures page age from publishedAt when present, else builtAt.
// Invalidation forces one rebuild but does not reset publishedAt, so aging
// resumes from the original publication date.
func pageAgeDays(entry *manifest.PageCacheEntry, now time.Time) float64 {
	origin := entry.BuiltAt
	if entry.PublishedAt != nil && !entry.PublishedAt.IsZero() {
		origin = *entry.PublishedAt
	}
	age := now.Sub(origin)
	if age < 0 {
		return 0
	}
	return age.Hours() / 24
}

func capped(entry *manifest.PageCacheEntry, policy Policy, ageDays float64) bool {
	limit := policy.MaxAgeCapDays
	if entry.MaxAgeCapDays != nil {
		limit = *entry.MaxAgeCapDays
	}
	return limit > 0 && ageDays > float64(limit)
}

// dependenciesChanged compares the recorded dependency hashes against the
// currently resolved ones. A new dependency without a recorded hash, a
// changed hash, or a dependency that disappeared all count as a change: any
// of them means the layout chain the cached output was rendered with no
// longer exists in that form.
func dependenciesChanged(recorded, current map[string]string) bool {
	if len(recorded) != len(current) {
		return true
	}
	for path, hash := range current {
		if recorded[path] != hash {
			return true
		}
	}
	return false
}
