package manifest

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func randomEntry(rng *rand.Rand, i int) *PageCacheEntry {
	e := &PageCacheEntry{
		ContentHash: fmt.Sprintf("xxh64:%016x", rng.Uint64()),
		BuiltAt:     time.Unix(rng.Int63n(2_000_000_000), 0).UTC(),
		DependencyHashes: map[string]string{
			fmt.Sprintf("layouts/l%d.html", i): fmt.Sprintf("xxh64:%016x", rng.Uint64()),
		},
	}
	if rng.Intn(2) == 0 {
		pub := e.BuiltAt.Add(-time.Duration(rng.Intn(100)) * 24 * time.Hour)
		e.PublishedAt = &pub
	}
	if rng.Intn(3) == 0 {
		ttl := rng.Intn(86400)
		e.TTLSeconds = &ttl
	}
	if rng.Intn(4) == 0 {
		cap := rng.Intn(730)
		e.MaxAgeCapDays = &cap
	}
	if rng.Intn(2) == 0 {
		e.Tags = []string{"blog", fmt.Sprintf("t%d", rng.Intn(5))}
	}
	return e
}

func TestRoundTrip(t *testing.T) {
	s := newTestStore(t)
	rng := rand.New(rand.NewSource(42))

	m := New()
	for i := 0; i < 100; i++ {
		m.Put(fmt.Sprintf("/page-%03d/", i), randomEntry(rng, i))
	}
	m.AppendPending(PendingInvalidation{Kind: InvalidateTag, Value: "blog", RequestedAt: time.Now().UTC().Truncate(time.Second)})

	require.NoError(t, s.Save(m))
	loaded := s.Load()

	require.Equal(t, SchemaVersion, loaded.SchemaVersion)
	require.Len(t, loaded.Entries, 100)
	for url, want := range m.Entries {
		got := loaded.Entry(url)
		require.NotNil(t, got, "missing entry %s", url)
		require.Equal(t, want.ContentHash, got.ContentHash, url)
		require.Equal(t, want.DependencyHashes, got.DependencyHashes, url)
		require.True(t, want.BuiltAt.Equal(got.BuiltAt), url)
		require.Equal(t, want.TTLSeconds, got.TTLSeconds, url)
		require.Equal(t, want.MaxAgeCapDays, got.MaxAgeCapDays, url)
		require.Equal(t, want.Tags, got.Tags, url)
		if want.PublishedAt == nil {
			require.Nil(t, got.PublishedAt, url)
		} else {
			require.True(t, want.PublishedAt.Equal(*got.PublishedAt), url)
		}
	}
	require.Equal(t, m.PendingInvalidations, loaded.PendingInvalidations)
}

func TestLoadMissingFile(t *testing.T) {
	s := newTestStore(t)
	m := s.Load()
	require.NotNil(t, m)
	require.Empty(t, m.Entries)
	require.Equal(t, SchemaVersion, m.SchemaVersion)
}

func TestLoadCorruptJSON(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"schemaVersion": "1", "entries": {`), 0o644))

	m := s.Load()
	require.Empty(t, m.Entries, "corrupt manifest must degrade to empty")
}

func TestLoadSchemaMismatch(t *testing.T) {
	s := newTestStore(t)
	m := New()
	m.Put("/a/", &PageCacheEntry{ContentHash: "xxh64:1"})
	require.NoError(t, s.Save(m))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	mutated := strings.Replace(string(data), `"schemaVersion": "1"`, `"schemaVersion": "0"`, 1)
	require.NoError(t, os.WriteFile(s.Path(), []byte(mutated), 0o644))

	loaded := s.Load()
	require.Empty(t, loaded.Entries, "schema mismatch must invalidate the whole manifest")
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(New()))

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "manifest.json", entries[0].Name())
}

func TestAppendPendingInvalidationPersists(t *testing.T) {
	s := newTestStore(t)
	rec := PendingInvalidation{Kind: InvalidatePath, Value: "/blog/*", RequestedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, s.AppendPendingInvalidation(rec))

	// A fresh store over the same directory simulates a separate process.
	reopened := &Store{dir: filepath.Dir(s.Path()), logger: s.logger}
	loaded := reopened.Load()
	require.Len(t, loaded.PendingInvalidations, 1)
	require.Equal(t, rec, loaded.PendingInvalidations[0])
}
