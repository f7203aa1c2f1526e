// Package metrics defines the Prometheus metric collectors used across the
// platform and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RunsTotal            *prometheus.CounterVec
	ActiveRuns           prometheus.Gauge
	SamplesScoredTotal   *prometheus.CounterVec
	SamplesSkippedTotal  *prometheus.CounterVec
	StabilityScore       *prometheus.HistogramVec
	ExplainLatency       *prometheus.HistogramVec
	PredictLatency       *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stability_runs_total",
				Help: "Total stability evaluation runs by terminal state (done, failed).",
			},
			[]string{"state"},
		),
		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stability_active_runs",
				Help: "Number of evaluation runs currently scoring.",
			},
		),
		SamplesScoredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stability_samples_scored_total",
				Help: "Total samples that produced a retained similarity score.",
			},
			[]string{"method"},
		),
		SamplesSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stability_samples_skipped_total",
				Help: "Total samples skipped by reason (explanation_failed, undefined_similarity).",
			},
			[]string{"method", "reason"},
		),
		StabilityScore: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stability_jaccard_score",
				Help:    "Distribution of per-sample Jaccard similarity scores.",
				Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
			},
			[]string{"method"},
		),
		ExplainLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "explain_latency_seconds",
				Help:    "Latency of a single explanation call.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "cache_status"},
		),
		PredictLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "predict_latency_seconds",
				Help:    "Latency of a classifier predict-probabilities batch.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"classifier"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "explanation_cache_hits_total",
				Help: "Total explanation cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "explanation_cache_misses_total",
				Help: "Total explanation cache misses.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RunsTotal,
		m.ActiveRuns,
		m.SamplesScoredTotal,
		m.SamplesSkippedTotal,
		m.StabilityScore,
		m.ExplainLatency,
		m.PredictLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
