// Package metric provides Prometheus metrics for ScriptGate.
//
// It exposes counters and histograms for script issuance, gate
// decisions, artifact ingestion, evaluation calls, and the HTTP
// surface.
//
// @design DS-0703
package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scriptgate"

// Registry holds all application metrics.
type Registry struct {
	reg *prometheus.Registry

	// Script lifecycle metrics.
	ScriptsIssued     prometheus.Counter
	GateRejections    *prometheus.CounterVec
	StatusTransitions *prometheus.CounterVec

	// Submission metrics.
	SubmissionsTotal *prometheus.CounterVec
	ArtifactBytes    prometheus.Histogram

	// Evaluation metrics.
	EvalTotal    *prometheus.CounterVec
	EvalDuration prometheus.Histogram

	// HTTP metrics.
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewRegistry creates a registry with all application metrics plus
// the standard Go and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	return &Registry{
		reg: reg,

		ScriptsIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scripts_issued_total",
			Help:      "Number of scripts issued.",
		}),
		GateRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_rejections_total",
			Help:      "Gate rejections by reason code.",
		}, []string{"gate", "reason"}),
		StatusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Script status transitions by target status.",
		}, []string{"to"}),

		SubmissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Artifact submissions by outcome.",
		}, []string{"outcome"}),
		ArtifactBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_bytes",
			Help:      "Size of accepted artifacts in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}),

		EvalTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eval_requests_total",
			Help:      "Evaluation API calls by outcome.",
		}, []string{"outcome"}),
		EvalDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "eval_duration_seconds",
			Help:      "Evaluation API call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registerer exposes the underlying registry for components that
// register their own collectors (e.g. storage size gauges).
func (r *Registry) Registerer() prometheus.Registerer {
	return r.reg
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveEval records one evaluation attempt. Matches the vision
// client's observer signature.
func (r *Registry) ObserveEval(outcome string, elapsed time.Duration) {
	r.EvalTotal.WithLabelValues(outcome).Inc()
	r.EvalDuration.Observe(elapsed.Seconds())
}
