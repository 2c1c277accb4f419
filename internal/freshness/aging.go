package freshness

import (
	"fmt"
	"sort"
	"time"
)

// AgingRule maps a page-age range to a TTL: pages no older than UntilDays
// use TTLSeconds. Older content generally tolerates longer TTLs, so a policy
// is a short ascending list of ranges.
type AgingRule struct {
	UntilDays  int `yaml:"until_days" json:"untilDays"`
	TTLSeconds int `yaml:"ttl_seconds" json:"ttlSeconds"`
}

// ValidateRules checks that rules are usable as a policy: positive bounds
// and TTLs, strictly ascending UntilDays (which also rules out overlap).
func ValidateRules(rules []AgingRule) error {
	prev := 0
	for i, r := range rules {
		if r.UntilDays <= 0 {
			return fmt.Errorf("aging rule %d: until_days must be > 0", i)
		}
		if r.TTLSeconds <= 0 {
			return fmt.Errorf("aging rule %d: ttl_seconds must be > 0", i)
		}
		if r.UntilDays <= prev {
			return fmt.Errorf("aging rule %d: until_days %d overlaps previous bound %d", i, r.UntilDays, prev)
		}
		prev = r.UntilDays
	}
	return nil
}

// SortRules returns a copy of rules sorted ascending by UntilDays. The
// evaluator assumes this order; config normalization calls it once.
func SortRules(rules []AgingRule) []AgingRule {
	out := make([]AgingRule, len(rules))
	copy(out, rules)
	sort.Slice(out, func(i, j int) bool { return out[i].UntilDays < out[j].UntilDays })
	return out
}

// effectiveTTL computes the TTL for a page of the given age: the first rule
// (ascending) whose bound covers the age wins. With no matching rule the
// page-level override applies, then the global default.
func effectiveTTL(rules []AgingRule, ageDays float64, pageOverride *int, defaultTTL time.Duration) time.Duration {
	for _, r := range rules {
		if ageDays <= float64(r.UntilDays) {
			return time.Duration(r.TTLSeconds) * time.Second
		}
	}
	if pageOverride != nil {
		return time.Duration(*pageOverride) * time.Second
	}
	return defaultTTL
}
