package content

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Frontmatter holds the page metadata the cache engine consumes. Unknown
// keys are ignored; templates receive the raw map separately if they need it.
type Frontmatter struct {
	Title       string     `yaml:"title"`
	Layout      string     `yaml:"layout"`
	Description string     `yaml:"description"`
	PublishedAt *time.Time `yaml:"published_at"`
	Draft       bool       `yaml:"draft"`
	Tags        []string   `yaml:"tags"`

	// Per-page freshness overrides.
	TTLSeconds    *int `yaml:"ttl_seconds"`
	MaxAgeCapDays *int `yaml:"max_age_cap_days"`
}

var delimiter = []byte("---\n")

// splitFrontmatter separates `---` delimited YAML frontmatter from the
// markdown body. Documents without a leading delimiter are all body.
func splitFrontmatter(raw []byte) (fm []byte, body []byte, had bool, err error) {
	// Normalize CRLF up front so delimiter scanning only deals with \n.
	raw = bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))

	if !bytes.HasPrefix(raw, delimiter) {
		return nil, raw, false, nil
	}

	rest := raw[len(delimiter):]
	end := bytes.Index(rest, []byte("\n---\n"))
	if end < 0 {
		if bytes.HasPrefix(rest, delimiter[:3]) && len(bytes.TrimSpace(rest[3:])) == 0 {
			return []byte{}, []byte{}, true, nil
		}
		return nil, nil, false, fmt.Errorf("frontmatter opened but never closed")
	}

	return rest[:end+1], rest[end+len("\n---\n"):], true, nil
}

// parseFrontmatter decodes the YAML block into the typed struct.
func parseFrontmatter(fm []byte) (Frontmatter, error) {
	var out Frontmatter
	if len(fm) == 0 {
		return out, nil
	}
	if err := yaml.Unmarshal(fm, &out); err != nil {
		return Frontmatter{}, fmt.Errorf("parse frontmatter: %w", err)
	}
	return out, nil
}
