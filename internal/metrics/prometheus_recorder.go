package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	decisions       *prom.CounterVec
	renderDuration  *prom.HistogramVec
	cycleDuration   prom.Histogram
	cycleOutcome    *prom.CounterVec
	pagesTracked    prom.Gauge
	pendingInvalids prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		decisions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitebuilder",
			Name:      "freshness_decisions_total",
			Help:      "Freshness decisions by outcome reason",
		}, []string{"reason"}),
		renderDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "sitebuilder",
			Name:      "render_duration_seconds",
			Help:      "Duration of individual page renders",
			Buckets:   prom.DefBuckets,
		}, []string{"result"}),
		cycleDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "sitebuilder",
			Name:      "cycle_duration_seconds",
			Help:      "Total build cycle duration",
			Buckets:   prom.DefBuckets,
		}),
		cycleOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitebuilder",
			Name:      "cycle_outcomes_total",
			Help:      "Build cycle outcomes by final status",
		}, []string{"outcome"}),
		pagesTracked: prom.NewGauge(prom.GaugeOpts{
			Namespace: "sitebuilder",
			Name:      "pages_tracked",
			Help:      "Number of pages in the manifest after the last cycle",
		}),
		pendingInvalids: prom.NewGauge(prom.GaugeOpts{
			Namespace: "sitebuilder",
			Name:      "pending_invalidations",
			Help:      "Pending invalidation records after the last cycle",
		}),
	}
	reg.MustRegister(pr.decisions, pr.renderDuration, pr.cycleDuration,
		pr.cycleOutcome, pr.pagesTracked, pr.pendingInvalids)
	return pr
}

func (pr *PrometheusRecorder) IncDecision(reason string) {
	pr.decisions.WithLabelValues(reason).Inc()
}

func (pr *PrometheusRecorder) ObserveRenderDuration(d time.Duration, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	pr.renderDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (pr *PrometheusRecorder) ObserveCycleDuration(d time.Duration) {
	pr.cycleDuration.Observe(d.Seconds())
}

func (pr *PrometheusRecorder) IncCycleOutcome(outcome string) {
	pr.cycleOutcome.WithLabelValues(outcome).Inc()
}

func (pr *PrometheusRecorder) SetPagesTracked(n int) {
	pr.pagesTracked.Set(float64(n))
}

func (pr *PrometheusRecorder) SetPendingInvalidations(n int) {
	pr.pendingInvalids.Set(float64(n))
}

// HTTPHandler returns an http.Handler that serves Prometheus metrics for the
// provided registry.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
