// Package build drives one build cycle: load the manifest, discover pages,
// evaluate freshness, render what is stale, and commit outcomes back to the
// manifest store. The manifest is loaded once at cycle start, mutated only
// in memory, and persisted at checkpoints through the single-writer rule.
package build

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/content"
	"git.home.luguber.info/inful/sitebuilder/internal/deps"
	sberrors "git.home.luguber.info/inful/sitebuilder/internal/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/freshness"
	"git.home.luguber.info/inful/sitebuilder/internal/history"
	"git.home.luguber.info/inful/sitebuilder/internal/invalidate"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/manifest"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/render"
	"git.home.luguber.info/inful/sitebuilder/internal/util/sets"
)

// Options selects what a cycle does.
type Options struct {
	// Force bypasses the evaluator for all pages.
	Force bool
	// Clean discards the manifest before evaluation (cold start everywhere).
	Clean bool
	// Trigger labels the cycle for history and logs: cli|watch|schedule.
	Trigger string
	// Only restricts the cycle to these page URLs (watch-mode selective
	// rebuilds). Nil means all pages. Partial cycles never prune orphans or
	// sweep pending invalidations, because they did not see every page.
	Only sets.Set[string]
}

// Summary reports what a cycle did.
type Summary struct {
	CycleID    string
	Trigger    string
	Outcome    string // success|partial|failed
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Rendered   int
	Reused     int
	Failed     int
	Reasons    map[string]int
}

// Orchestrator owns the collaborators of a build cycle. One orchestrator
// serves many cycles (CLI builds run one; watch mode runs many).
type Orchestrator struct {
	cfg      *config.Config
	store    *manifest.Store
	loader   *content.Loader
	renderer *render.Renderer
	recorder metrics.Recorder
	history  *history.Store
	logger   *slog.Logger

	mu    sync.Mutex
	graph *deps.Graph
}

// NewOrchestrator wires a pipeline from configuration. Only failure to
// create the cache directory is fatal.
func NewOrchestrator(cfg *config.Config) (*Orchestrator, error) {
	store, err := manifest.NewStore(cfg.Cache.Dir)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		loader:   content.NewLoader(cfg.Content.Dir),
		renderer: render.NewRenderer(cfg.Content.LayoutsDir, cfg.Output.Directory, cfg.RenderTimeout()),
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}, nil
}

// WithRecorder sets a metrics recorder.
func (o *Orchestrator) WithRecorder(r metrics.Recorder) *Orchestrator {
	o.recorder = r
	return o
}

// WithHistory sets the optional build-history store.
func (o *Orchestrator) WithHistory(h *history.Store) *Orchestrator {
	o.history = h
	return o
}

// WithLogger sets a custom logger.
func (o *Orchestrator) WithLogger(logger *slog.Logger) *Orchestrator {
	o.logger = logger
	return o
}

// Store exposes the manifest store (the invalidation gateway shares it).
func (o *Orchestrator) Store() *manifest.Store {
	return o.store
}

// Graph returns the dependency graph snapshot from the last completed cycle.
// Watch mode uses it to map a changed file to affected pages.
func (o *Orchestrator) Graph() *deps.Graph {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.graph
}

// workItem is one stale page queued for rendering.
type workItem struct {
	page        *content.Page
	contentHash string
}

// Run executes one build cycle.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Summary, error) {
	started := time.Now()
	sum := &Summary{
		CycleID:   uuid.NewString(),
		Trigger:   opts.Trigger,
		StartedAt: started,
		Reasons:   make(map[string]int),
	}
	log := o.logger.With(logfields.CycleID(sum.CycleID), logfields.Trigger(opts.Trigger))

	man := o.store.Load()
	if opts.Clean {
		log.Info("Discarding manifest (clean build)")
		man = manifest.New()
	}

	pages, err := o.loader.Discover()
	if err != nil {
		return nil, err
	}

	tracker := deps.NewTracker()
	policy := o.cfg.FreshnessPolicy()

	// Evaluation phase. Strictly sequenced before the render phase: the
	// tracker is append-only here and in the render workers, and read-only
	// once snapshotted at the end of the cycle.
	var work []workItem
	discovered := make(map[string]struct{}, len(pages))
	for _, page := range pages {
		discovered[page.URL] = struct{}{}
		if opts.Only != nil && !opts.Only.Has(page.URL) {
			continue
		}
		sum.Total++

		curDeps, derr := o.renderer.ResolveDependencies(page)
		if derr != nil {
			o.failResolution(log, man, tracker, page, derr)
			sum.Failed++
			continue
		}
		curDepHashes, derr := o.renderer.HashDependencies(curDeps)
		if derr != nil {
			o.failResolution(log, man, tracker, page, derr)
			sum.Failed++
			continue
		}
		for _, d := range curDeps {
			tracker.Register(page.URL, d)
		}

		contentHash := page.ContentHash()
		decision := freshness.Evaluate(freshness.Input{
			Entry:                   man.Entry(page.URL),
			PageURL:                 page.URL,
			SourcePath:              page.SourcePath,
			CurrentContentHash:      contentHash,
			CurrentDependencyHashes: curDepHashes,
			Pending:                 man.PendingInvalidations,
			Policy:                  policy,
			Now:                     time.Now(),
			Force:                   opts.Force,
		})

		if decision.ClockAnomaly {
			log.Warn("Cache entry built in the future; forcing rebuild",
				logfields.Page(page.URL), "built_at", man.Entry(page.URL).BuiltAt)
		}

		if decision.Fresh {
			o.recorder.IncDecision("fresh")
			sum.Reused++
			continue
		}
		o.recorder.IncDecision(string(decision.Reason))
		sum.Reasons[string(decision.Reason)]++
		log.Debug("Page stale", logfields.Page(page.URL), logfields.Reason(string(decision.Reason)))
		work = append(work, workItem{page: page, contentHash: contentHash})
	}

	// Render phase: parallel across pages, no shared mutable state beyond
	// the tracker and the manifest map behind o.mu.
	var committed int
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Build.Workers)
	for _, item := range work {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, rerr := o.renderer.Render(gctx, item.page)
			if rerr != nil {
				o.recorder.ObserveRenderDuration(0, false)
				o.mu.Lock()
				sum.Failed++
				if prior := man.Entry(item.page.URL); prior != nil {
					prior.ForceRebuild = true
				}
				o.mu.Unlock()
				log.Error("Render failed; previous output untouched",
					logfields.Page(item.page.URL), logfields.Error(rerr))
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return nil // isolate per-page failures
			}
			o.recorder.ObserveRenderDuration(res.Duration, true)

			fm := item.page.Frontmatter
			entry := &manifest.PageCacheEntry{
				ContentHash:      item.contentHash,
				DependencyHashes: res.DependencyHashes,
				BuiltAt:          time.Now().UTC(),
				PublishedAt:      fm.PublishedAt,
				TTLSeconds:       fm.TTLSeconds,
				MaxAgeCapDays:    fm.MaxAgeCapDays,
				Tags:             fm.Tags,
			}

			o.mu.Lock()
			man.Put(item.page.URL, entry)
			sum.Rendered++
			committed++
			checkpoint := o.cfg.Build.CheckpointEvery > 0 && committed%o.cfg.Build.CheckpointEvery == 0
			if checkpoint {
				if serr := o.store.Save(man); serr != nil {
					log.Warn("Checkpoint save failed; continuing in memory", logfields.Error(serr))
				}
			}
			o.mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Cycle cancelled (watch supersede or shutdown). The manifest keeps
		// whatever renders committed before cancellation.
		if serr := o.store.Save(man); serr != nil {
			log.Warn("Manifest save after cancellation failed", logfields.Error(serr))
		}
		return nil, sberrors.Wrap(err, sberrors.CategoryInternal, sberrors.SeverityWarning, "build cycle cancelled")
	}

	fullCycle := opts.Only == nil
	if fullCycle {
		if removed := man.PruneOrphans(discovered); len(removed) > 0 {
			log.Info("Pruned orphaned cache entries", "count", len(removed))
		}
		o.sweepPending(log, man, pages, started)
		if ttl := o.cfg.PendingTTL(); ttl > 0 {
			if dropped := man.ExpirePending(started.Add(-ttl)); dropped > 0 {
				log.Info("Expired stale pending invalidations", "count", dropped)
			}
		}
	}

	if err := o.store.Save(man); err != nil {
		// Recoverable: the previous on-disk manifest is intact; this cycle's
		// in-memory updates are lost and the next cycle redoes some work.
		log.Warn("Manifest save failed; next cycle may redo work", logfields.Error(err))
	}

	o.mu.Lock()
	o.graph = tracker.Snapshot()
	o.mu.Unlock()

	sum.FinishedAt = time.Now()
	sum.Outcome = outcome(sum)
	o.finishCycle(ctx, log, man, sum)
	return sum, nil
}

func (o *Orchestrator) failResolution(log *slog.Logger, man *manifest.Manifest, tracker *deps.Tracker, page *content.Page, err error) {
	tracker.MarkResolutionFailed(page.URL)
	o.mu.Lock()
	if prior := man.Entry(page.URL); prior != nil {
		prior.ForceRebuild = true
	}
	o.mu.Unlock()
	log.Error("Dependency resolution failed; page skipped this cycle",
		logfields.Page(page.URL), logfields.Error(err))
}

// sweepPending removes pending invalidations that this full cycle has
// applied: records older than the cycle that matched at least one page, where
// every matching page now has an entry built after the request. Records with
// zero matches stay pending until a matching page appears.
func (o *Orchestrator) sweepPending(log *slog.Logger, man *manifest.Manifest, pages []*content.Page, asOf time.Time) {
	consumed := make(map[string]struct{})
	for _, rec := range man.PendingInvalidations {
		if rec.RequestedAt.After(asOf) {
			continue
		}
		matched := 0
		satisfied := true
		for _, page := range pages {
			entry := man.Entry(page.URL)
			var tags sets.Set[string]
			if entry != nil {
				tags = sets.New(entry.Tags...)
			}
			if !invalidate.Matches(rec, page.URL, page.SourcePath, tags) {
				continue
			}
			matched++
			if entry == nil || !entry.BuiltAt.After(rec.RequestedAt) {
				satisfied = false
				break
			}
		}
		if matched > 0 && satisfied {
			consumed[rec.Key()] = struct{}{}
			log.Info("Pending invalidation applied and swept",
				logfields.Pattern(rec.Value), "kind", string(rec.Kind), "pages", matched)
		}
	}
	man.RemovePending(consumed)
}

func (o *Orchestrator) finishCycle(ctx context.Context, log *slog.Logger, man *manifest.Manifest, sum *Summary) {
	dur := sum.FinishedAt.Sub(sum.StartedAt)
	o.recorder.ObserveCycleDuration(dur)
	o.recorder.IncCycleOutcome(sum.Outcome)
	o.recorder.SetPagesTracked(len(man.Entries))
	o.recorder.SetPendingInvalidations(len(man.PendingInvalidations))

	if o.history != nil {
		if err := o.history.Append(ctx, history.Cycle{
			ID:         sum.CycleID,
			Trigger:    sum.Trigger,
			Outcome:    sum.Outcome,
			StartedAt:  sum.StartedAt,
			FinishedAt: sum.FinishedAt,
			Total:      sum.Total,
			Rendered:   sum.Rendered,
			Reused:     sum.Reused,
			Failed:     sum.Failed,
			Reasons:    sum.Reasons,
		}); err != nil {
			log.Warn("Recording build history failed", logfields.Error(err))
		}
	}

	log.Info("Build cycle finished",
		logfields.Rendered(sum.Rendered), logfields.Reused(sum.Reused),
		logfields.Failed(sum.Failed), logfields.DurationMS(float64(dur.Milliseconds())),
		"outcome", sum.Outcome)
}

func outcome(sum *Summary) string {
	switch {
	case sum.Failed == 0:
		return "success"
	case sum.Rendered > 0:
		return "partial"
	default:
		return "failed"
	}
}
