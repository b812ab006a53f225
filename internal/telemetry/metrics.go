// Package telemetry exposes Prometheus metrics for scheduling runs.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/me/nightsched/pkg/model"
)

// Metrics holds the engine's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	recomputes       *prometheus.CounterVec
	recomputeLatency prometheus.Histogram
	anomalies        *prometheus.CounterVec
	integrityErrors  prometheus.Counter
	pipelineErrors   prometheus.Counter
	timelineEntries  *prometheus.CounterVec
	blockedSlots     *prometheus.CounterVec
	utilization      *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		recomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nightsched_recomputes_total",
			Help: "Plan recomputes requested from the planning pipeline.",
		}, []string{"site"}),
		recomputeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nightsched_recompute_duration_seconds",
			Help:    "Wall-clock duration of planning pipeline runs.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nightsched_anomalies_total",
			Help: "Recoverable scheduling anomalies by kind.",
		}, []string{"kind"}),
		integrityErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nightsched_integrity_errors_total",
			Help: "Night/site runs aborted by malformed event generation.",
		}),
		pipelineErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nightsched_pipeline_errors_total",
			Help: "Night/site runs aborted by a failed plan recompute.",
		}),
		timelineEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nightsched_timeline_entries_total",
			Help: "Timeline entries recorded, by whether a plan was in force.",
		}, []string{"site", "plan"}),
		blockedSlots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nightsched_blocked_entries_total",
			Help: "Updates skipped because the site was blocked.",
		}, []string{"site"}),
		utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nightsched_night_utilization_ratio",
			Help: "Fraction of the last scheduled night covered by the final plan.",
		}, []string{"site"}),
	}
	reg.MustRegister(
		m.recomputes, m.recomputeLatency, m.anomalies, m.integrityErrors,
		m.pipelineErrors, m.timelineEntries, m.blockedSlots, m.utilization,
	)
	return m
}

// Recompute records one pipeline run at site.
func (m *Metrics) Recompute(site model.Site, d time.Duration) {
	if m == nil {
		return
	}
	m.recomputes.WithLabelValues(string(site)).Inc()
	m.recomputeLatency.Observe(d.Seconds())
}

// Anomaly counts a recoverable anomaly.
func (m *Metrics) Anomaly(kind string) {
	if m == nil {
		return
	}
	m.anomalies.WithLabelValues(kind).Inc()
}

// Failure counts an aborted night/site run.
func (m *Metrics) Failure(integrity bool) {
	if m == nil {
		return
	}
	if integrity {
		m.integrityErrors.Inc()
	} else {
		m.pipelineErrors.Inc()
	}
}

// Entry counts a timeline entry.
func (m *Metrics) Entry(site model.Site, hasPlan bool) {
	if m == nil {
		return
	}
	label := "none"
	if hasPlan {
		label = "some"
	}
	m.timelineEntries.WithLabelValues(string(site), label).Inc()
}

// Blocked counts an update taken on the null-plan path.
func (m *Metrics) Blocked(site model.Site) {
	if m == nil {
		return
	}
	m.blockedSlots.WithLabelValues(string(site)).Inc()
}

// Night publishes the utilization of a finished night.
func (m *Metrics) Night(n model.NightSummary) {
	if m == nil {
		return
	}
	m.utilization.WithLabelValues(string(n.Site)).Set(n.Utilization())
}
