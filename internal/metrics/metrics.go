// Package metrics exposes Prometheus counters for routing decisions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns a private registry so tests and multiple servers in one
// process do not collide.
type Recorder struct {
	registry *prometheus.Registry

	decisions   *prometheus.CounterVec
	escalations *prometheus.CounterVec
	sources     *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    prometheus.Histogram
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Name:      "decisions_total",
			Help:      "Routing decisions by label.",
		}, []string{"label"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Name:      "escalations_total",
			Help:      "Conversations handed to a human, by team.",
		}, []string{"type"}),
		sources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Name:      "replies_total",
			Help:      "Final replies by source.",
		}, []string{"source"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Name:      "downstream_failures_total",
			Help:      "Degraded turns by failing collaborator.",
		}, []string{"component"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "triage",
			Name:      "turn_duration_seconds",
			Help:      "Time to process one message.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	r.registry.MustRegister(
		r.decisions, r.escalations, r.sources, r.failures, r.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Decision records one routed turn.
func (r *Recorder) Decision(label, source, escalation string, took time.Duration) {
	r.decisions.WithLabelValues(label).Inc()
	r.sources.WithLabelValues(source).Inc()
	if escalation != "" {
		r.escalations.WithLabelValues(escalation).Inc()
	}
	r.duration.Observe(took.Seconds())
}

// Failure records a degraded call to component (store, generation, nats, slack).
func (r *Recorder) Failure(component string) {
	r.failures.WithLabelValues(component).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry is exposed for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
