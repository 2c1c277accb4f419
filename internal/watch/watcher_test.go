package watch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/util/sets"
)

func testWatcher(t *testing.T) *Watcher {
	t.Helper()
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	return New(cfg, nil)
}

func TestSupersededRebuildMergesIntoNext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := testWatcher(t)

	started := make(chan build.Options, 4)
	var calls int32
	var mu sync.Mutex
	var firstCancelled bool

	w.runCycle = func(runCtx context.Context, opts build.Options) error {
		n := atomic.AddInt32(&calls, 1)
		started <- opts
		if n == 1 {
			// Simulate a slow rebuild; it must be cancelled, not completed.
			<-runCtx.Done()
			mu.Lock()
			firstCancelled = true
			mu.Unlock()
			return runCtx.Err()
		}
		return nil
	}
	go w.rebuildLoop(ctx)

	w.requests <- changeSet{pages: sets.New("/first/")}
	opts1 := <-started
	require.NotNil(t, opts1.Only)
	assert.True(t, opts1.Only.Has("/first/"))
	assert.False(t, opts1.Only.Has("/second/"))

	// A new batch arriving mid-rebuild supersedes the in-flight run; the
	// follow-up covers both the old and the new pages.
	w.requests <- changeSet{pages: sets.New("/second/")}
	opts2 := <-started
	require.NotNil(t, opts2.Only)
	assert.True(t, opts2.Only.Has("/first/"))
	assert.True(t, opts2.Only.Has("/second/"))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstCancelled
	}, time.Second)

	// The merged run satisfied everything; no third rebuild follows.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFullBatchSupersedesSelectiveRebuild(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := testWatcher(t)

	started := make(chan build.Options, 4)
	var calls int32
	w.runCycle = func(runCtx context.Context, opts build.Options) error {
		started <- opts
		if atomic.AddInt32(&calls, 1) == 1 {
			<-runCtx.Done()
			return runCtx.Err()
		}
		return nil
	}
	go w.rebuildLoop(ctx)

	w.requests <- changeSet{pages: sets.New("/a/")}
	<-started

	w.requests <- changeSet{full: true}
	opts2 := <-started
	assert.Nil(t, opts2.Only, "a full batch must re-evaluate every page")
}

func TestQueuedBatchesDrainIntoOneRebuild(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := testWatcher(t)

	// Queue several batches before the loop starts; they coalesce.
	w.requests <- changeSet{pages: sets.New("/a/")}
	w.requests <- changeSet{pages: sets.New("/b/")}
	w.requests <- changeSet{pages: sets.New("/c/")}

	started := make(chan build.Options, 4)
	w.runCycle = func(runCtx context.Context, opts build.Options) error {
		started <- opts
		return nil
	}
	go w.rebuildLoop(ctx)

	opts := <-started
	require.NotNil(t, opts.Only)
	assert.True(t, opts.Only.Has("/a/"))
	assert.True(t, opts.Only.Has("/b/"))
	assert.True(t, opts.Only.Has("/c/"))
}
