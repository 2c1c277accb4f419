package content

import (
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes accented characters and removes the combining marks,
// so "Café" slugs to "cafe" instead of dropping the rune entirely.
var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeURL maps a source path relative to the content dir onto the
// page's canonical URL: "blog/My Post.md" -> "/blog/my-post/". The URL is
// the manifest key and the dependency-graph sort key, so the mapping must be
// stable across runs and machines.
func NormalizeURL(relPath string) string {
	p := strings.TrimSuffix(path.Clean(strings.ReplaceAll(relPath, "\\", "/")), ".md")

	segments := strings.Split(p, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" || seg == "." {
			continue
		}
		out = append(out, slugify(seg))
	}

	// index pages collapse onto their directory URL.
	if n := len(out); n > 0 && out[n-1] == "index" {
		out = out[:n-1]
	}

	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/") + "/"
}

func slugify(segment string) string {
	if folded, _, err := transform.String(stripMarks, segment); err == nil {
		segment = folded
	}
	segment = strings.ToLower(segment)

	var b strings.Builder
	prevHyphen := false
	for _, r := range segment {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevHyphen = false
		case r == '-' || r == '_' || r == ' ' || r == '.':
			if !prevHyphen && b.Len() > 0 {
				b.WriteByte('-')
				prevHyphen = true
			}
		default:
			// drop anything else
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
