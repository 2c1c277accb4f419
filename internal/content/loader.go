package content

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sberrors "git.home.luguber.info/inful/sitebuilder/internal/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// Loader discovers pages under a content directory.
type Loader struct {
	contentDir string
	logger     *slog.Logger
}

// NewLoader creates a loader rooted at contentDir.
func NewLoader(contentDir string) *Loader {
	return &Loader{contentDir: contentDir, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (l *Loader) WithLogger(logger *slog.Logger) *Loader {
	l.logger = logger
	return l
}

// Discover walks the content directory and returns all non-draft pages
// sorted by URL. Filesystem walk order is incidental, so the explicit sort
// keeps downstream manifests reproducible across runs. A page that fails to
// parse is skipped with a warning; it does not abort discovery.
func (l *Loader) Discover() ([]*Page, error) {
	var pages []*Page

	err := filepath.WalkDir(l.contentDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		page, perr := l.loadPage(p)
		if perr != nil {
			l.logger.Warn("Skipping unparseable page", logfields.Path(p), logfields.Error(perr))
			return nil
		}
		if page.Frontmatter.Draft {
			return nil
		}
		pages = append(pages, page)
		return nil
	})
	if err != nil {
		return nil, sberrors.Wrap(err, sberrors.CategoryFileSystem, sberrors.SeverityError, "walk content directory").
			WithContext("dir", l.contentDir)
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].URL < pages[j].URL })

	// Duplicate URLs (e.g. "a.md" and "A.md" slugging identically) would
	// silently overwrite each other in the manifest; keep the first and warn.
	deduped := pages[:0]
	for i, p := range pages {
		if i > 0 && p.URL == pages[i-1].URL {
			l.logger.Warn("Duplicate page URL; keeping first source",
				logfields.Page(p.URL), logfields.Path(p.SourcePath))
			continue
		}
		deduped = append(deduped, p)
	}
	return deduped, nil
}

func (l *Loader) loadPage(absPath string) (*Page, error) {
	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}

	fmRaw, body, _, err := splitFrontmatter(raw)
	if err != nil {
		return nil, err
	}
	fm, err := parseFrontmatter(fmRaw)
	if err != nil {
		return nil, err
	}

	rel, err := filepath.Rel(l.contentDir, absPath)
	if err != nil {
		return nil, err
	}
	rel = filepath.ToSlash(rel)

	return &Page{
		URL:         NormalizeURL(rel),
		SourcePath:  filepath.ToSlash(filepath.Join(filepath.Base(l.contentDir), rel)),
		AbsPath:     absPath,
		Frontmatter: fm,
		Body:        body,
	}, nil
}
