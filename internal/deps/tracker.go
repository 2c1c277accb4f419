// Package deps tracks which template/partial/layout files each page used
// during rendering and maintains the reverse index from file to dependent
// pages. The reverse index drives watch-mode selective rebuilds and the
// evaluator's dependency-staleness checks.
package deps

import (
	"sync"

	"git.home.luguber.info/inful/sitebuilder/internal/util/sets"
)

// Tracker is append-only during the render phase and snapshotted read-only
// for the evaluation phase; the two phases are strictly sequenced by the
// orchestrator, so a single mutex is enough.
type Tracker struct {
	mu      sync.Mutex
	forward map[string]sets.Set[string] // page URL -> dependency file paths
	reverse map[string]sets.Set[string] // file path -> dependent page URLs
	failed  sets.Set[string]            // pages whose dependency resolution failed
}

// NewTracker returns an empty tracker. The graph is rebuilt fresh each build
// cycle; it is never trusted across process restarts because file discovery
// can change between runs.
func NewTracker() *Tracker {
	return &Tracker{
		forward: make(map[string]sets.Set[string]),
		reverse: make(map[string]sets.Set[string]),
		failed:  sets.New[string](),
	}
}

// Register records that page used path during rendering. Re-registering an
// existing edge is a no-op.
func (t *Tracker) Register(page, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fwd, ok := t.forward[page]
	if !ok {
		fwd = sets.New[string]()
		t.forward[page] = fwd
	}
	fwd.Add(path)

	rev, ok := t.reverse[path]
	if !ok {
		rev = sets.New[string]()
		t.reverse[path] = rev
	}
	rev.Add(page)
}

// MarkResolutionFailed records a page whose layout/partial chain could not
// be resolved. The page keeps an empty dependency list and is flagged for
// forced re-evaluation next cycle; other pages are unaffected.
func (t *Tracker) MarkResolutionFailed(page string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failed.Add(page)
	if _, ok := t.forward[page]; !ok {
		t.forward[page] = sets.New[string]()
	}
}

// Dependents returns the pages known to depend on path, sorted.
func (t *Tracker) Dependents(path string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	rev, ok := t.reverse[path]
	if !ok {
		return nil
	}
	return sets.Sorted(rev)
}

// Snapshot produces the read-only dependency graph for this cycle, taken
// once all pages have rendered at least once in the cycle.
func (t *Tracker) Snapshot() *Graph {
	t.mu.Lock()
	defer t.mu.Unlock()

	g := &Graph{
		Forward: make(map[string][]string, len(t.forward)),
		reverse: make(map[string]sets.Set[string], len(t.reverse)),
		failed:  t.failed.Clone(),
	}
	for page, deps := range t.forward {
		g.Forward[page] = sets.Sorted(deps)
	}
	for path, pages := range t.reverse {
		g.reverse[path] = pages.Clone()
	}
	return g
}

// Graph is an immutable snapshot: deterministic sorted forward lists keyed by
// page URL, plus the reverse index. Read-only within a cycle.
type Graph struct {
	Forward map[string][]string
	reverse map[string]sets.Set[string]
	failed  sets.Set[string]
}

// Dependencies returns the sorted dependency list for page.
func (g *Graph) Dependencies(page string) []string {
	return g.Forward[page]
}

// Dependents returns the pages depending on path, sorted.
func (g *Graph) Dependents(path string) []string {
	rev, ok := g.reverse[path]
	if !ok {
		return nil
	}
	return sets.Sorted(rev)
}

// ResolutionFailed reports whether page's dependency resolution failed this
// cycle.
func (g *Graph) ResolutionFailed(page string) bool {
	return g.failed.Has(page)
}

// FailedPages returns all pages with failed resolution, sorted.
func (g *Graph) FailedPages() []string {
	return sets.Sorted(g.failed)
}
