// Package content discovers markdown pages and parses their frontmatter.
// It is a collaborator of the cache engine: the engine consumes page records
// read-only and never touches content files itself.
package content

import (
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/hashing"
)

// Page is one discovered markdown page.
type Page struct {
	// URL is the normalized page URL, the unique key for the manifest and
	// the dependency graph.
	URL string

	// SourcePath is relative to the project root (e.g. "content/blog/a.md").
	SourcePath string

	// AbsPath is the absolute location of the source file.
	AbsPath string

	Frontmatter Frontmatter

	// Body is the markdown body with frontmatter removed.
	Body []byte
}

// ContentHash fingerprints the page source: the markdown body plus the
// frontmatter fields that affect rendered output. Cache-control fields
// (ttl_seconds, max_age_cap_days) are deliberately excluded: tuning a TTL
// must not force a rebuild of unchanged content.
func (p *Page) ContentHash() string {
	fm := p.Frontmatter
	published := ""
	if fm.PublishedAt != nil {
		published = fm.PublishedAt.UTC().Format(time.RFC3339)
	}
	return hashing.Fields(
		string(p.Body),
		fm.Title,
		fm.Layout,
		fm.Description,
		published,
		strconv.FormatBool(fm.Draft),
		strings.Join(fm.Tags, ","),
	)
}
