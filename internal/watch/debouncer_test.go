package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/util/sets"
)

type flushCollector struct {
	mu      sync.Mutex
	batches [][]string
}

func (c *flushCollector) flush(paths []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, paths)
}

func (c *flushCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func (c *flushCollector) batch(i int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches[i]
}

func waitFor(t *testing.T, cond func() bool, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Fail(t, "condition not met within "+within.String())
}

func TestBurstCoalescesIntoOneFlush(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var col flushCollector
	d := NewDebouncer(50*time.Millisecond, time.Second, col.flush)
	go d.Run(ctx)

	d.Notify("a.md")
	d.Notify("b.md")
	d.Notify("a.md") // duplicate collapses

	waitFor(t, func() bool { return col.count() == 1 }, time.Second)
	assert.Equal(t, []string{"a.md", "b.md"}, col.batch(0))

	// No second flush without further events.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, col.count())
}

func TestMaxDelayBoundsContinuousEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var col flushCollector
	d := NewDebouncer(80*time.Millisecond, 200*time.Millisecond, col.flush)
	go d.Run(ctx)

	// Keep the quiet window from ever elapsing.
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				d.Notify("busy.md")
			}
		}
	}()
	defer close(stop)

	waitFor(t, func() bool { return col.count() >= 1 }, time.Second)
}

func TestSeparateBurstsFlushSeparately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var col flushCollector
	d := NewDebouncer(30*time.Millisecond, time.Second, col.flush)
	go d.Run(ctx)

	d.Notify("first.md")
	waitFor(t, func() bool { return col.count() == 1 }, time.Second)

	d.Notify("second.md")
	waitFor(t, func() bool { return col.count() == 2 }, time.Second)

	assert.Equal(t, []string{"first.md"}, col.batch(0))
	assert.Equal(t, []string{"second.md"}, col.batch(1))
}

func TestChangeSetMerge(t *testing.T) {
	a := changeSet{pages: sets.New("/a/")}
	b := changeSet{pages: sets.New("/b/")}
	merged := a.merge(b)
	assert.False(t, merged.full)
	assert.True(t, merged.pages.Has("/a/"))
	assert.True(t, merged.pages.Has("/b/"))

	full := a.merge(changeSet{full: true})
	assert.True(t, full.full)
}
