package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/content"
	sberrors "git.home.luguber.info/inful/sitebuilder/internal/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/util/sets"
)

// changeSet is one rebuild request. A full set re-evaluates every page
// (needed for orphan pruning, new dependency files, and TTL re-checks);
// otherwise only the named pages are re-evaluated.
type changeSet struct {
	pages sets.Set[string]
	full  bool
}

func (c changeSet) merge(other changeSet) changeSet {
	if c.full || other.full {
		return changeSet{full: true}
	}
	merged := c.pages.Clone()
	for p := range other.pages {
		merged.Add(p)
	}
	return changeSet{pages: merged}
}

// Watcher is the dev-mode loop: it owns the filesystem watcher, the
// debouncer, the periodic re-evaluation job, and the rebuild worker.
type Watcher struct {
	cfg    *config.Config
	orch   *build.Orchestrator
	logger *slog.Logger

	requests chan changeSet

	// runCycle executes one rebuild; tests replace it to control timing.
	runCycle func(ctx context.Context, opts build.Options) error
}

// New creates a watcher around an orchestrator.
func New(cfg *config.Config, orch *build.Orchestrator) *Watcher {
	w := &Watcher{
		cfg:      cfg,
		orch:     orch,
		requests: make(chan changeSet, 16),
		logger:   slog.Default(),
	}
	w.runCycle = func(ctx context.Context, opts build.Options) error {
		_, err := orch.Run(ctx, opts)
		return err
	}
	return w
}

// WithLogger sets a custom logger.
func (w *Watcher) WithLogger(logger *slog.Logger) *Watcher {
	w.logger = logger
	return w
}

// Run blocks until ctx is cancelled. It performs one full build up front so
// the dependency graph exists before any selective rebuild is attempted.
func (w *Watcher) Run(ctx context.Context) error {
	// Wire metrics before the first build so every cycle is observed.
	var reg *prom.Registry
	if w.cfg.Metrics.Enabled {
		reg = prom.NewRegistry()
		w.orch.WithRecorder(metrics.NewPrometheusRecorder(reg))
	}

	if _, err := w.orch.Run(ctx, build.Options{Trigger: "watch"}); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return sberrors.Wrap(err, sberrors.CategoryWatch, sberrors.SeverityFatal, "create filesystem watcher")
	}
	defer fsw.Close()

	for _, root := range []string{w.cfg.Content.Dir, w.cfg.Content.LayoutsDir} {
		if err := addRecursive(fsw, root); err != nil {
			return err
		}
	}

	deb := NewDebouncer(w.cfg.QuietWindow(), w.cfg.MaxDelay(), func(paths []string) {
		cs := w.classify(paths)
		select {
		case w.requests <- cs:
		case <-ctx.Done():
		}
	})
	go deb.Run(ctx)
	go w.rebuildLoop(ctx)

	if interval := w.cfg.Watch.ReevalIntervalSeconds; interval > 0 {
		stop, err := w.startReeval(ctx, time.Duration(interval)*time.Second)
		if err != nil {
			return err
		}
		defer stop()
	}

	if reg != nil {
		go w.serveMetrics(ctx, reg)
	}

	w.logger.Info("Watching for changes",
		logfields.Path(w.cfg.Content.Dir), "layouts", w.cfg.Content.LayoutsDir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fsw, event, deb)
		case werr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Filesystem watcher error", logfields.Error(werr))
		}
	}
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, event fsnotify.Event, deb *Debouncer) {
	// New directories must be watched before files land in them.
	if event.Op&fsnotify.Create != 0 {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			if err := addRecursive(fsw, event.Name); err != nil {
				w.logger.Warn("Cannot watch new directory", logfields.Path(event.Name), logfields.Error(err))
			}
			return
		}
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	// Editors and atomic writers leave temp files behind; skip them.
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return
	}
	deb.Notify(filepath.Clean(event.Name))
}

// classify maps a batch of changed files to a rebuild request. Markdown files
// under the content dir map to their page URL; template files map through the
// dependency graph to their dependent pages. Anything the graph cannot place,
// and any deleted file, escalates to a full cycle: deletions need orphan
// pruning, and a brand-new partial changes every page's dependency list.
func (w *Watcher) classify(paths []string) changeSet {
	graph := w.orch.Graph()
	pages := sets.New[string]()

	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return changeSet{full: true}
		}

		if rel, ok := relTo(w.cfg.Content.Dir, p); ok && strings.HasSuffix(strings.ToLower(rel), ".md") {
			pages.Add(content.NormalizeURL(rel))
			continue
		}

		dependents := graph.Dependents(p)
		if len(dependents) == 0 {
			return changeSet{full: true}
		}
		for _, d := range dependents {
			pages.Add(d)
		}
	}
	return changeSet{pages: pages}
}

// rebuildLoop serializes rebuilds. A request arriving while a rebuild runs
// cancels it; the superseded request's pages are merged into the next one, so
// last-write-wins without losing earlier changes.
func (w *Watcher) rebuildLoop(ctx context.Context) {
	for {
		var cs changeSet
		select {
		case <-ctx.Done():
			return
		case cs = <-w.requests:
		}

		for {
			cs = w.drainInto(cs)
			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() {
				done <- w.runCycle(runCtx, w.options(cs))
			}()

			superseded := false
			select {
			case next := <-w.requests:
				cancel()
				<-done
				w.logger.Info("Rebuild superseded by newer changes")
				cs = cs.merge(next)
				superseded = true
			case err := <-done:
				cancel()
				if err != nil && ctx.Err() == nil {
					w.logger.Error("Watch rebuild failed", logfields.Error(err))
				}
			case <-ctx.Done():
				cancel()
				<-done
				return
			}
			if !superseded {
				break
			}
		}
	}
}

func (w *Watcher) drainInto(cs changeSet) changeSet {
	for {
		select {
		case next := <-w.requests:
			cs = cs.merge(next)
		default:
			return cs
		}
	}
}

func (w *Watcher) options(cs changeSet) build.Options {
	opts := build.Options{Trigger: "watch"}
	if !cs.full {
		opts.Only = cs.pages
	}
	return opts
}

// startReeval schedules the periodic full re-evaluation so TTL expiry is
// noticed without any file event.
func (w *Watcher) startReeval(ctx context.Context, interval time.Duration) (func(), error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, sberrors.Wrap(err, sberrors.CategoryWatch, sberrors.SeverityFatal, "create scheduler")
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			select {
			case w.requests <- changeSet{full: true}:
			case <-ctx.Done():
			}
		}),
		gocron.WithName("periodic-reeval"),
	)
	if err != nil {
		return nil, sberrors.Wrap(err, sberrors.CategoryWatch, sberrors.SeverityFatal, "schedule periodic re-evaluation")
	}
	scheduler.Start()
	w.logger.Info("Periodic re-evaluation scheduled", "interval", interval.String())
	return func() {
		if err := scheduler.Shutdown(); err != nil {
			w.logger.Warn("Scheduler shutdown failed", logfields.Error(err))
		}
	}, nil
}

func (w *Watcher) serveMetrics(ctx context.Context, reg *prom.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(reg))
	srv := &http.Server{Addr: w.cfg.Metrics.Listen, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	w.logger.Info("Metrics endpoint listening", "addr", w.cfg.Metrics.Listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		w.logger.Error("Metrics endpoint failed", logfields.Error(err))
	}
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == root {
				return nil
			}
			return sberrors.Wrap(err, sberrors.CategoryWatch, sberrors.SeverityFatal, "walk watched directory").
				WithContext("dir", root)
		}
		if !d.IsDir() {
			return nil
		}
		if werr := fsw.Add(p); werr != nil {
			return sberrors.Wrap(werr, sberrors.CategoryWatch, sberrors.SeverityFatal, "watch directory").
				WithContext("dir", p)
		}
		return nil
	})
}

func relTo(root, p string) (string, bool) {
	rel, err := filepath.Rel(root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
