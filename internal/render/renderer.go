// Package render converts markdown pages to HTML through the site's layout
// chain. It reports, per page, the resolved template dependency list and the
// render outcome; the cache engine consumes both. Output is written to a
// temporary location and atomically moved into place only on success, so a
// crashed or cancelled render never leaves partial output behind.
package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"git.home.luguber.info/inful/sitebuilder/internal/content"
	sberrors "git.home.luguber.info/inful/sitebuilder/internal/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/hashing"
)

const (
	defaultLayout = "_layout.html"
	partialsDir   = "partials"
)

// Result is a successful render outcome.
type Result struct {
	OutputPath       string
	OutputHash       string
	Dependencies     []string
	DependencyHashes map[string]string
	Duration         time.Duration
}

// Renderer renders pages with layouts from layoutsDir into outputDir.
type Renderer struct {
	layoutsDir string
	outputDir  string
	timeout    time.Duration
	md         goldmark.Markdown
	logger     *slog.Logger
}

// NewRenderer constructs a renderer. timeout bounds a single page render;
// zero means no bound.
func NewRenderer(layoutsDir, outputDir string, timeout time.Duration) *Renderer {
	return &Renderer{
		layoutsDir: layoutsDir,
		outputDir:  outputDir,
		timeout:    timeout,
		md:         goldmark.New(),
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (r *Renderer) WithLogger(logger *slog.Logger) *Renderer {
	r.logger = logger
	return r
}

// ResolveDependencies returns the deterministic, sorted list of template
// files the page will use: the resolved layout plus every partial. This is
// static resolution, cheap enough to run for every page during evaluation,
// before any rendering happens.
func (r *Renderer) ResolveDependencies(page *content.Page) ([]string, error) {
	layout, err := r.resolveLayout(page)
	if err != nil {
		return nil, err
	}
	deps := []string{layout}

	partials, err := r.listPartials()
	if err != nil {
		return nil, err
	}
	deps = append(deps, partials...)
	sort.Strings(deps)
	return deps, nil
}

// HashDependencies hashes each dependency file's current content. A missing
// file surfaces as a dependency resolution failure for the page.
func (r *Renderer) HashDependencies(paths []string) (map[string]string, error) {
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		h, err := hashing.File(p)
		if err != nil {
			return nil, sberrors.Wrap(err, sberrors.CategoryDependency, sberrors.SeverityError, "hash dependency").
				WithContext("path", p)
		}
		out[p] = h
	}
	return out, nil
}

// Render converts the page and writes its output atomically. The returned
// result carries the dependency hashes as of this render, ready to commit
// into the page's cache entry.
func (r *Renderer) Render(ctx context.Context, page *content.Page) (*Result, error) {
	start := time.Now()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return nil, sberrors.RenderError(err, "render cancelled before start").WithContext("page", page.URL)
	}

	deps, err := r.ResolveDependencies(page)
	if err != nil {
		return nil, err
	}
	depHashes, err := r.HashDependencies(deps)
	if err != nil {
		return nil, err
	}

	html, err := r.execute(ctx, page, deps)
	if err != nil {
		return nil, err
	}

	outPath := r.outputPath(page.URL)
	if err := writeAtomic(outPath, html); err != nil {
		return nil, err
	}

	return &Result{
		OutputPath:       outPath,
		OutputHash:       hashing.Bytes(html),
		Dependencies:     deps,
		DependencyHashes: depHashes,
		Duration:         time.Since(start),
	}, nil
}

type pageData struct {
	Title       string
	Description string
	Tags        []string
	PublishedAt *time.Time
	URL         string
	Content     template.HTML
}

// execute runs markdown conversion and template execution in a goroutine so
// a hung template cannot block the build past the context deadline. On
// timeout the goroutine is abandoned; its buffer is private, so no partial
// output can escape.
func (r *Renderer) execute(ctx context.Context, page *content.Page, deps []string) ([]byte, error) {
	type outcome struct {
		html []byte
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		var body bytes.Buffer
		if err := r.md.Convert(page.Body, &body); err != nil {
			done <- outcome{nil, sberrors.RenderError(err, "markdown conversion failed").WithContext("page", page.URL)}
			return
		}

		tmpl, err := template.ParseFiles(deps...)
		if err != nil {
			done <- outcome{nil, sberrors.RenderError(err, "parse templates").WithContext("page", page.URL)}
			return
		}

		fm := page.Frontmatter
		data := pageData{
			Title:       fm.Title,
			Description: fm.Description,
			Tags:        fm.Tags,
			PublishedAt: fm.PublishedAt,
			URL:         page.URL,
			Content:     template.HTML(body.String()),
		}

		var out bytes.Buffer
		layoutName := filepath.Base(r.layoutFileFor(page, deps))
		if err := tmpl.ExecuteTemplate(&out, layoutName, data); err != nil {
			done <- outcome{nil, sberrors.RenderError(err, "execute layout").WithContext("page", page.URL)}
			return
		}
		done <- outcome{out.Bytes(), nil}
	}()

	select {
	case <-ctx.Done():
		return nil, sberrors.RenderError(ctx.Err(), "render cancelled or timed out").WithContext("page", page.URL)
	case res := <-done:
		return res.html, res.err
	}
}

// resolveLayout finds the layout file for a page: an explicit frontmatter
// layout name wins; otherwise the nearest _layout.html walking up from the
// page's directory; finally the root _layout.html.
func (r *Renderer) resolveLayout(page *content.Page) (string, error) {
	if name := page.Frontmatter.Layout; name != "" {
		p := filepath.Join(r.layoutsDir, name+".html")
		if fileExists(p) {
			return p, nil
		}
		return "", sberrors.New(sberrors.CategoryDependency, sberrors.SeverityError, "layout not found").
			WithContext("layout", name).WithContext("page", page.URL)
	}

	segments := strings.Split(strings.Trim(page.URL, "/"), "/")
	for i := len(segments); i > 0; i-- {
		p := filepath.Join(append(append([]string{r.layoutsDir}, segments[:i]...), defaultLayout)...)
		if fileExists(p) {
			return p, nil
		}
	}

	root := filepath.Join(r.layoutsDir, defaultLayout)
	if fileExists(root) {
		return root, nil
	}
	return "", sberrors.New(sberrors.CategoryDependency, sberrors.SeverityError, "no layout resolves for page").
		WithContext("page", page.URL).WithContext("layouts_dir", r.layoutsDir)
}

// layoutFileFor picks the layout out of an already-resolved dependency list
// (the only non-partial entry).
func (r *Renderer) layoutFileFor(page *content.Page, deps []string) string {
	prefix := filepath.Join(r.layoutsDir, partialsDir) + string(filepath.Separator)
	for _, d := range deps {
		if !strings.HasPrefix(d, prefix) {
			return d
		}
	}
	return filepath.Join(r.layoutsDir, defaultLayout)
}

func (r *Renderer) listPartials() ([]string, error) {
	dir := filepath.Join(r.layoutsDir, partialsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, sberrors.Wrap(err, sberrors.CategoryDependency, sberrors.SeverityError, "read partials directory").
			WithContext("dir", dir)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".html") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// outputPath maps "/blog/post/" to "<outputDir>/blog/post/index.html".
func (r *Renderer) outputPath(url string) string {
	return filepath.Join(r.outputDir, filepath.FromSlash(strings.Trim(url, "/")), "index.html")
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return sberrors.Wrap(err, sberrors.CategoryFileSystem, sberrors.SeverityError, "create output directory").
			WithContext("dir", dir)
	}
	tmp, err := os.CreateTemp(dir, ".render-*")
	if err != nil {
		return sberrors.Wrap(err, sberrors.CategoryFileSystem, sberrors.SeverityError, "create temp output")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return sberrors.Wrap(err, sberrors.CategoryFileSystem, sberrors.SeverityError, "write output")
	}
	if err := tmp.Close(); err != nil {
		return sberrors.Wrap(err, sberrors.CategoryFileSystem, sberrors.SeverityError, "close temp output")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return sberrors.Wrap(err, sberrors.CategoryFileSystem, sberrors.SeverityError,
			fmt.Sprintf("move output into place at %s", path))
	}
	return nil
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}
