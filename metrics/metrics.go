// Package metrics provides Prometheus metrics for the intake service.
// HTTP metrics:
//   - http_request_total: Counter with method, path, and status labels
//   - http_request_duration_seconds: Histogram with method and path labels
//   - http_request_in_flight: Gauge for concurrent requests
//
// Domain metrics cover stage transitions, note analysis outcomes, saved
// cases, claim exports, catalog size and live sessions.
//
// All metrics are registered with the Prometheus default registry during
// package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (IPs seen in last ~5 minutes)",
		},
	)

	StageTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_stage_transitions_total",
			Help: "Stage transitions by source and target stage",
		},
		[]string{"from", "to"},
	)

	AnalysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "note_analysis_total",
			Help: "Note analyses by source of the detected conditions (service, fallback)",
		},
		[]string{"source"},
	)

	AnalysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "note_analysis_duration_seconds",
			Help:    "Latency of calls to the note analysis service",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	CasesSavedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cases_saved_total",
			Help: "Cases saved to the case store",
		},
	)

	ClaimsExportedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claims_exported_total",
			Help: "Claim documents rendered, by result",
		},
		[]string{"result"},
	)

	CatalogRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalog_rows",
			Help: "Rows loaded per reference dataset",
		},
		[]string{"dataset"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_sessions",
			Help: "Open workflow sessions",
		},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(RateLimiterBucketsTotal)
	prometheus.MustRegister(StageTransitionsTotal)
	prometheus.MustRegister(AnalysisTotal)
	prometheus.MustRegister(AnalysisDuration)
	prometheus.MustRegister(CasesSavedTotal)
	prometheus.MustRegister(ClaimsExportedTotal)
	prometheus.MustRegister(CatalogRows)
	prometheus.MustRegister(ActiveSessions)
}
