package deps

import (
	"reflect"
	"sync"
	"testing"
)

func TestRegisterIdempotent(t *testing.T) {
	tr := NewTracker()
	tr.Register("/blog/post/", "layouts/_layout.html")
	tr.Register("/blog/post/", "layouts/_layout.html")

	deps := tr.Snapshot().Dependencies("/blog/post/")
	if len(deps) != 1 {
		t.Errorf("duplicate edge registered: %v", deps)
	}
	dependents := tr.Dependents("layouts/_layout.html")
	if len(dependents) != 1 || dependents[0] != "/blog/post/" {
		t.Errorf("reverse index wrong: %v", dependents)
	}
}

func TestDependentsSorted(t *testing.T) {
	tr := NewTracker()
	tr.Register("/z/", "layouts/_layout.html")
	tr.Register("/a/", "layouts/_layout.html")
	tr.Register("/m/", "layouts/_layout.html")

	got := tr.Dependents("layouts/_layout.html")
	want := []string{"/a/", "/m/", "/z/"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Dependents = %v, want %v", got, want)
	}
}

func TestDependentsUnknownPath(t *testing.T) {
	tr := NewTracker()
	if got := tr.Dependents("layouts/nope.html"); got != nil {
		t.Errorf("unknown path should have no dependents, got %v", got)
	}
}

func TestSnapshotDeterministicOrder(t *testing.T) {
	tr := NewTracker()
	tr.Register("/p/", "layouts/b.html")
	tr.Register("/p/", "layouts/a.html")
	tr.Register("/p/", "layouts/partials/nav.html")

	g := tr.Snapshot()
	want := []string{"layouts/a.html", "layouts/b.html", "layouts/partials/nav.html"}
	if !reflect.DeepEqual(g.Dependencies("/p/"), want) {
		t.Errorf("forward list not sorted: %v", g.Dependencies("/p/"))
	}
}

func TestSnapshotIsolatedFromLaterWrites(t *testing.T) {
	tr := NewTracker()
	tr.Register("/p/", "layouts/a.html")
	g := tr.Snapshot()

	tr.Register("/p/", "layouts/b.html")
	tr.Register("/q/", "layouts/a.html")

	if len(g.Dependencies("/p/")) != 1 {
		t.Error("snapshot must not see writes made after it was taken")
	}
	if len(g.Dependents("layouts/a.html")) != 1 {
		t.Error("snapshot reverse index must not see later writes")
	}
}

func TestResolutionFailure(t *testing.T) {
	tr := NewTracker()
	tr.Register("/ok/", "layouts/_layout.html")
	tr.MarkResolutionFailed("/broken/")

	g := tr.Snapshot()
	if !g.ResolutionFailed("/broken/") {
		t.Error("failed page not flagged")
	}
	if g.ResolutionFailed("/ok/") {
		t.Error("healthy page wrongly flagged")
	}
	if deps := g.Dependencies("/broken/"); len(deps) != 0 {
		t.Errorf("failed page must have an empty dependency list, got %v", deps)
	}
	if got := g.FailedPages(); len(got) != 1 || got[0] != "/broken/" {
		t.Errorf("FailedPages = %v", got)
	}
}

func TestConcurrentRegister(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	pages := []string{"/a/", "/b/", "/c/", "/d/"}
	for _, page := range pages {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				tr.Register(p, "layouts/_layout.html")
				tr.Register(p, "layouts/partials/nav.html")
			}
		}(page)
	}
	wg.Wait()

	if got := tr.Dependents("layouts/_layout.html"); len(got) != len(pages) {
		t.Errorf("expected %d dependents, got %v", len(pages), got)
	}
}
