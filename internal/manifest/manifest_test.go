package manifest

import (
	"testing"
	"time"
)

func TestPruneOrphans(t *testing.T) {
	m := New()
	m.Put("/a/", &PageCacheEntry{ContentHash: "xxh64:1"})
	m.Put("/b/", &PageCacheEntry{ContentHash: "xxh64:2"})
	m.Put("/c/", &PageCacheEntry{ContentHash: "xxh64:3"})

	discovered := map[string]struct{}{"/a/": {}, "/c/": {}}
	removed := m.PruneOrphans(discovered)

	if len(removed) != 1 || removed[0] != "/b/" {
		t.Errorf("expected only /b/ pruned, got %v", removed)
	}
	if m.Entry("/a/") == nil || m.Entry("/c/") == nil {
		t.Error("surviving entries must be untouched")
	}
}

func TestRemovePending(t *testing.T) {
	now := time.Now().UTC()
	a := PendingInvalidation{Kind: InvalidateTag, Value: "blog", RequestedAt: now}
	b := PendingInvalidation{Kind: InvalidatePath, Value: "/docs/*", RequestedAt: now.Add(time.Second)}

	m := New()
	m.AppendPending(a)
	m.AppendPending(b)

	m.RemovePending(map[string]struct{}{a.Key(): {}})

	if len(m.PendingInvalidations) != 1 {
		t.Fatalf("expected 1 pending record, got %d", len(m.PendingInvalidations))
	}
	if m.PendingInvalidations[0].Value != "/docs/*" {
		t.Errorf("wrong record swept: %+v", m.PendingInvalidations[0])
	}
}

func TestPendingKeyDistinguishesRepeats(t *testing.T) {
	t0 := time.Now().UTC()
	first := PendingInvalidation{Kind: InvalidateTag, Value: "blog", RequestedAt: t0}
	second := PendingInvalidation{Kind: InvalidateTag, Value: "blog", RequestedAt: t0.Add(time.Minute)}
	if first.Key() == second.Key() {
		t.Error("re-requested invalidations must have distinct keys")
	}
}

func TestExpirePending(t *testing.T) {
	now := time.Now().UTC()
	m := New()
	m.AppendPending(PendingInvalidation{Kind: InvalidateTag, Value: "old", RequestedAt: now.Add(-48 * time.Hour)})
	m.AppendPending(PendingInvalidation{Kind: InvalidateTag, Value: "new", RequestedAt: now})

	if dropped := m.ExpirePending(time.Time{}); dropped != 0 {
		t.Errorf("zero cutoff must disable expiry, dropped %d", dropped)
	}
	if dropped := m.ExpirePending(now.Add(-24 * time.Hour)); dropped != 1 {
		t.Errorf("expected 1 expired record, got %d", dropped)
	}
	if len(m.PendingInvalidations) != 1 || m.PendingInvalidations[0].Value != "new" {
		t.Errorf("wrong record expired: %+v", m.PendingInvalidations)
	}
}
