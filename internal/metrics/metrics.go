// Package metrics defines the Prometheus instrumentation for the prediction
// service: request counters, probability distributions, validation and drift
// counters, and storage health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	// Prediction metrics
	PredictionsTotal   prometheus.Counter   // Total predictions served
	PredictionFailures prometheus.Counter   // Predictions that errored
	PredictionLatency  prometheus.Histogram // End-to-end prediction latency
	PredictionScores   prometheus.Histogram // Distribution of predicted probabilities
	FallbackUse        prometheus.Counter   // Predictions served by the heuristic fallback
	ModelAgeSeconds    prometheus.Gauge     // Age of the bound model bundle

	// Outcome and validation metrics
	OutcomesTotal    prometheus.Counter // Outcome reports accepted
	OutcomeConflicts prometheus.Counter // Outcome reports rejected as conflicting
	ValidationRuns   prometheus.Counter // Validation runs executed
	DriftAlerts      prometheus.Counter // Drift detections flagged

	// System metrics
	StorageErrors prometheus.Counter     // Backing store failures
	HTTPRequests  *prometheus.CounterVec // HTTP requests by route and status
	HTTPDuration  prometheus.Histogram   // HTTP request duration
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics against a custom registry, which keeps
// tests isolated from the global state.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PredictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of flare-risk predictions served",
		}),
		PredictionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_failures_total",
			Help: "Total number of prediction requests that errored",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "End-to-end prediction latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		PredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_scores",
			Help:    "Distribution of predicted flare probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		FallbackUse: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_fallback_total",
			Help: "Predictions served by the heuristic fallback scorer",
		}),
		ModelAgeSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_age_seconds",
			Help: "Age of the currently bound model bundle in seconds",
		}),
		OutcomesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "outcomes_total",
			Help: "Total number of outcome reports accepted",
		}),
		OutcomeConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "outcome_conflicts_total",
			Help: "Outcome reports rejected because they disagreed with an attached outcome",
		}),
		ValidationRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "validation_runs_total",
			Help: "Total number of validation runs executed",
		}),
		DriftAlerts: factory.NewCounter(prometheus.CounterOpts{
			Name: "drift_alerts_total",
			Help: "Total number of drift detections flagged",
		}),
		StorageErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "storage_errors_total",
			Help: "Total number of backing store failures",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "status"}),
		HTTPDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
