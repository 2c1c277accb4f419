// Package metrics defines observability hooks for the build pipeline.
package metrics

import "time"

// Recorder defines observability hooks for build-cycle and render metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc. The
// NoopRecorder is the default when metrics are not configured.
type Recorder interface {
	// IncDecision counts one freshness decision; reason is "fresh" or one of
	// the stale reasons (cold, forced, content-changed, dependency-changed,
	// invalidated, ttl-expired).
	IncDecision(reason string)
	ObserveRenderDuration(d time.Duration, success bool)
	ObserveCycleDuration(d time.Duration)
	IncCycleOutcome(outcome string) // outcome: success|partial|failed
	SetPagesTracked(n int)
	SetPendingInvalidations(n int)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) IncDecision(string)                        {}
func (NoopRecorder) ObserveRenderDuration(time.Duration, bool) {}
func (NoopRecorder) ObserveCycleDuration(time.Duration)        {}
func (NoopRecorder) IncCycleOutcome(string)                    {}
func (NoopRecorder) SetPagesTracked(int)                       {}
func (NoopRecorder) SetPendingInvalidations(int)               {}
