package reconciler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the reconciler's tick loop, grounded on the same
// per-component Prometheus vector pattern used throughout the pack (counter
// vectors with a fixed label set, registered once at construction).
type Metrics struct {
	tickDuration prometheus.Histogram
	outcomes     *prometheus.CounterVec
	skipped      prometheus.Counter
}

// NewMetrics builds and registers the reconciler's Prometheus collectors
// against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dracd",
			Subsystem: "reconciler",
			Name:      "tick_duration_seconds",
			Help:      "Duration of a single reconciler sweep across eligible nodes.",
			Buckets:   prometheus.DefBuckets,
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dracd",
			Subsystem: "reconciler",
			Name:      "job_outcome_total",
			Help:      "Total RAID config job outcomes observed by the reconciler.",
		}, []string{"outcome"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dracd",
			Subsystem: "reconciler",
			Name:      "node_skipped_total",
			Help:      "Total nodes skipped in a tick because their lock was unavailable.",
		}),
	}

	reg.MustRegister(m.tickDuration, m.outcomes, m.skipped)
	return m
}

// ObserveTickDuration records how long a single Tick call took.
func (m *Metrics) ObserveTickDuration(d time.Duration) {
	m.tickDuration.Observe(d.Seconds())
}

// IncOutcome increments the named job-outcome counter ("completed",
// "completed_refresh_failed", "failed").
func (m *Metrics) IncOutcome(outcome string) {
	m.outcomes.WithLabelValues(outcome).Inc()
}

// IncSkipped records a node skipped because its lock could not be acquired.
func (m *Metrics) IncSkipped() {
	m.skipped.Inc()
}
