// Package manifest defines the durable, versioned index of per-page cache
// entries and pending invalidation requests, plus its on-disk JSON store.
package manifest

import (
	"time"
)

// SchemaVersion is the current manifest schema. A loaded manifest with any
// other version is discarded wholesale; there is no partial migration.
const SchemaVersion = "1"

// PageCacheEntry records the state of one page as of its last successful
// render. Entries are keyed by normalized page URL in Manifest.Entries.
type PageCacheEntry struct {
	// ContentHash covers the markdown body plus the frontmatter fields that
	// affect rendered output.
	ContentHash string `json:"contentHash"`

	// DependencyHashes maps each template/partial/layout file the page used
	// during its last render to that file's hash at render time. Rebuilding
	// the page replaces this map, which prunes stale edges.
	DependencyHashes map[string]string `json:"dependencyHashes,omitempty"`

	BuiltAt     time.Time  `json:"builtAt"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`

	// Per-page overrides from frontmatter. Nil means "use the global value".
	TTLSeconds    *int `json:"ttlSeconds,omitempty"`
	MaxAgeCapDays *int `json:"maxAgeCapDays,omitempty"`

	Tags []string `json:"tags,omitempty"`

	// ForceRebuild is set when the page's dependency resolution failed or a
	// render was aborted; the evaluator treats the entry as stale on the next
	// cycle regardless of hashes or TTL.
	ForceRebuild bool `json:"forceRebuild,omitempty"`
}

// InvalidationKind discriminates pending invalidation records.
type InvalidationKind string

const (
	InvalidateTag  InvalidationKind = "tag"
	InvalidatePath InvalidationKind = "path"
)

// PendingInvalidation is a durable record of a manual invalidation request.
// It persists across process restarts until a build cycle has applied it to
// every currently matching page.
type PendingInvalidation struct {
	Kind        InvalidationKind `json:"kind"`
	Value       string           `json:"value"`
	RequestedAt time.Time        `json:"requestedAt"`
}

// Key returns a stable identity for sweep bookkeeping.
func (p PendingInvalidation) Key() string {
	return string(p.Kind) + "\x00" + p.Value + "\x00" + p.RequestedAt.UTC().Format(time.RFC3339Nano)
}

// Manifest is the full durable state read at cycle start and written back at
// checkpoints. Entries are keyed by normalized page URL.
type Manifest struct {
	SchemaVersion        string                     `json:"schemaVersion"`
	GeneratedAt          time.Time                  `json:"generatedAt"`
	Entries              map[string]*PageCacheEntry `json:"entries"`
	PendingInvalidations []PendingInvalidation      `json:"pendingInvalidations"`
}

// New returns an empty manifest at the current schema version.
func New() *Manifest {
	return &Manifest{
		SchemaVersion:        SchemaVersion,
		Entries:              make(map[string]*PageCacheEntry),
		PendingInvalidations: []PendingInvalidation{},
	}
}

// Entry returns the cache entry for url, or nil when absent.
func (m *Manifest) Entry(url string) *PageCacheEntry {
	return m.Entries[url]
}

// Put overwrites the entry for url.
func (m *Manifest) Put(url string, e *PageCacheEntry) {
	if m.Entries == nil {
		m.Entries = make(map[string]*PageCacheEntry)
	}
	m.Entries[url] = e
}

// PruneOrphans removes entries whose page is no longer discovered and
// returns the removed URLs.
func (m *Manifest) PruneOrphans(discovered map[string]struct{}) []string {
	var removed []string
	for url := range m.Entries {
		if _, ok := discovered[url]; !ok {
			delete(m.Entries, url)
			removed = append(removed, url)
		}
	}
	return removed
}

// AppendPending adds a pending invalidation record, preserving request order.
func (m *Manifest) AppendPending(rec PendingInvalidation) {
	m.PendingInvalidations = append(m.PendingInvalidations, rec)
}

// RemovePending drops every pending record whose Key is in consumed.
// Called once a full cycle has applied those records to all matching pages.
func (m *Manifest) RemovePending(consumed map[string]struct{}) {
	if len(consumed) == 0 {
		return
	}
	kept := m.PendingInvalidations[:0]
	for _, rec := range m.PendingInvalidations {
		if _, ok := consumed[rec.Key()]; !ok {
			kept = append(kept, rec)
		}
	}
	m.PendingInvalidations = kept
}

// ExpirePending drops pending records requested before cutoff. Records that
// never match any page would otherwise accumulate forever; callers pass a
// zero cutoff to disable expiry.
func (m *Manifest) ExpirePending(cutoff time.Time) int {
	if cutoff.IsZero() {
		return 0
	}
	kept := m.PendingInvalidations[:0]
	dropped := 0
	for _, rec := range m.PendingInvalidations {
		if rec.RequestedAt.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, rec)
	}
	m.PendingInvalidations = kept
	return dropped
}
