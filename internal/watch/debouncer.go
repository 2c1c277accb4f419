// Package watch runs the dev-mode loop: filesystem events are debounced into
// change batches, each batch maps through the dependency graph to the set of
// affected pages, and a new batch supersedes any rebuild still in flight.
package watch

import (
	"context"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/util/sets"
)

// Debouncer coalesces bursts of file change notifications into one flush.
// A flush fires once no event has arrived for the quiet window, or once the
// max delay since the first event of the burst elapses, whichever is first.
// MaxDelay guarantees an editor save-all cannot postpone a rebuild forever.
type Debouncer struct {
	quietWindow time.Duration
	maxDelay    time.Duration
	flush       func(paths []string)

	mu      sync.Mutex
	pending sets.Set[string]
	poke    chan struct{}
}

// NewDebouncer creates a debouncer delivering batches to flush. flush is
// called from the Run goroutine, never concurrently with itself.
func NewDebouncer(quietWindow, maxDelay time.Duration, flush func(paths []string)) *Debouncer {
	return &Debouncer{
		quietWindow: quietWindow,
		maxDelay:    maxDelay,
		flush:       flush,
		pending:     sets.New[string](),
		poke:        make(chan struct{}, 1),
	}
}

// Notify records a changed path. Safe from any goroutine; duplicate paths
// within a burst collapse into one.
func (d *Debouncer) Notify(path string) {
	d.mu.Lock()
	d.pending.Add(path)
	d.mu.Unlock()

	select {
	case d.poke <- struct{}{}:
	default:
	}
}

// Run owns the timers. It returns when ctx is cancelled; a burst still
// pending at that point is dropped.
func (d *Debouncer) Run(ctx context.Context) {
	quietTimer := newStoppedTimer()
	maxTimer := newStoppedTimer()
	var quietC, maxC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case <-d.poke:
			resetTimer(quietTimer, d.quietWindow)
			quietC = quietTimer.C
			if maxC == nil {
				resetTimer(maxTimer, d.maxDelay)
				maxC = maxTimer.C
			}

		case <-quietC:
			d.emit()
			quietC, maxC = nil, nil

		case <-maxC:
			d.emit()
			quietC, maxC = nil, nil
		}
	}
}

func (d *Debouncer) emit() {
	d.mu.Lock()
	batch := d.pending
	d.pending = sets.New[string]()
	d.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	d.flush(sets.Sorted(batch))
}

func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	stopTimer(t)
	return t
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func resetTimer(t *time.Timer, after time.Duration) {
	stopTimer(t)
	t.Reset(after)
}
