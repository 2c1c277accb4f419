package invalidate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sberrors "git.home.luguber.info/inful/sitebuilder/internal/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/manifest"
	"git.home.luguber.info/inful/sitebuilder/internal/util/sets"
)

func TestParseQuery(t *testing.T) {
	kind, value, err := ParseQuery("tag=blog")
	require.NoError(t, err)
	assert.Equal(t, manifest.InvalidateTag, kind)
	assert.Equal(t, "blog", value)

	kind, value, err = ParseQuery("path=/docs/*")
	require.NoError(t, err)
	assert.Equal(t, manifest.InvalidatePath, kind)
	assert.Equal(t, "/docs/*", value)
}

func TestParseQueryRejectsMalformed(t *testing.T) {
	cases := []string{"", "blog", "release=1.0", "tag=", "tag=has space", "path=", "path=[unclosed"}
	for _, q := range cases {
		_, _, err := ParseQuery(q)
		require.Error(t, err, "query %q should be rejected", q)
		assert.True(t, sberrors.IsCategory(err, sberrors.CategoryValidation), "query %q", q)
	}
}

func TestGatewayRejectsBeforeMutation(t *testing.T) {
	store, err := manifest.NewStore(t.TempDir())
	require.NoError(t, err)
	g := NewGateway(store)

	_, err = g.ByTag("  ")
	require.Error(t, err)
	_, err = g.ByPath("[bad")
	require.Error(t, err)

	// Rejected queries must not leave any pending record behind.
	assert.Empty(t, store.Load().PendingInvalidations)
}

func TestGatewayRecordsDurably(t *testing.T) {
	store, err := manifest.NewStore(t.TempDir())
	require.NoError(t, err)
	g := NewGateway(store)

	rec, err := g.ByTag("blog")
	require.NoError(t, err)
	assert.Equal(t, manifest.InvalidateTag, rec.Kind)
	assert.False(t, rec.RequestedAt.IsZero())

	_, err = g.ByPath("/blog/*")
	require.NoError(t, err)

	pending := store.Load().PendingInvalidations
	require.Len(t, pending, 2)
	assert.Equal(t, "blog", pending[0].Value)
	assert.Equal(t, "/blog/*", pending[1].Value)
}

func TestMatchesTag(t *testing.T) {
	rec := manifest.PendingInvalidation{Kind: manifest.InvalidateTag, Value: "blog", RequestedAt: time.Now()}
	assert.True(t, Matches(rec, "/blog/post/", "blog/post.md", sets.New("blog", "news")))
	assert.False(t, Matches(rec, "/blog/post/", "blog/post.md", sets.New("news")))
	assert.False(t, Matches(rec, "/blog/post/", "blog/post.md", sets.New[string]()))
}

func TestMatchesPathGlob(t *testing.T) {
	rec := manifest.PendingInvalidation{Kind: manifest.InvalidatePath, Value: "/blog/*"}
	assert.True(t, Matches(rec, "/blog/my-post/", "content/blog/my-post.md", nil))
	assert.False(t, Matches(rec, "/docs/setup/", "content/docs/setup.md", nil))

	exact := manifest.PendingInvalidation{Kind: manifest.InvalidatePath, Value: "/about/"}
	assert.True(t, Matches(exact, "/about/", "content/about.md", nil))

	source := manifest.PendingInvalidation{Kind: manifest.InvalidatePath, Value: "content/blog/*.md"}
	assert.True(t, Matches(source, "/blog/my-post/", "content/blog/my-post.md", nil))
}
