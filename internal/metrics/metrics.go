// Package metrics holds the Prometheus collectors shared by the prediction components.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PredictorCalls counts predictor invocations by predictor and result (ok, error, timeout, panic).
	PredictorCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quorum_predictor_calls_total",
		Help: "Predictor invocations by predictor and result",
	}, []string{"predictor", "result"})

	// PredictorLatency tracks predictor invocation latency.
	PredictorLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quorum_predictor_latency_seconds",
		Help:    "Predictor invocation latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"predictor"})

	// Aggregations counts aggregated predictions by resolved method.
	Aggregations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quorum_aggregations_total",
		Help: "Aggregated predictions by method",
	}, []string{"method"})

	// NoViableModels counts aggregations where every predictor was filtered out.
	NoViableModels = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quorum_no_viable_models_total",
		Help: "Aggregations that ended without a viable predictor",
	})

	// AggregatedConfidence tracks the distribution of combined confidence.
	AggregatedConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quorum_aggregated_confidence",
		Help:    "Combined confidence of aggregated predictions",
		Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
	})

	// CalibrationUpdates counts calibration ledger appends.
	CalibrationUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quorum_calibration_updates_total",
		Help: "Calibration ledger updates",
	})

	// CalibrationError is the current bin-weighted calibration error.
	CalibrationError = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quorum_calibration_error",
		Help: "Bin-weighted mean absolute calibration error",
	})

	// StorageFailures counts persistence errors that were absorbed by in-memory state.
	StorageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quorum_storage_failures_total",
		Help: "Persistence failures by component and operation",
	}, []string{"component", "op"})

	// Selections counts model selections by context class and strategy.
	Selections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quorum_selections_total",
		Help: "Model selections by context class and strategy",
	}, []string{"class", "strategy"})

	// PerformanceUpdates counts selector performance ledger updates.
	PerformanceUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quorum_performance_updates_total",
		Help: "Selector performance updates by kind (usage, outcome)",
	}, []string{"kind"})

	// ExperimentAssignments counts A/B predictions by test and variant.
	ExperimentAssignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quorum_experiment_predictions_total",
		Help: "Experiment predictions by test and variant",
	}, []string{"test", "variant"})

	// ExperimentOutcomes counts outcomes recorded against experiment results.
	ExperimentOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quorum_experiment_outcomes_total",
		Help: "Experiment outcomes by test and variant",
	}, []string{"test", "variant"})

	// PendingPredictions is the number of predictions awaiting an outcome.
	PendingPredictions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quorum_pending_predictions",
		Help: "Predictions awaiting an outcome",
	})

	// OutcomeAccuracy tracks the accuracy of aggregated predictions once the outcome is known.
	OutcomeAccuracy = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quorum_outcome_accuracy",
		Help:    "Accuracy of aggregated predictions against recorded outcomes",
		Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
	})

	// HTTPRequests counts API requests by route pattern, method and status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quorum_http_requests_total",
		Help: "HTTP requests by route, method and status",
	}, []string{"route", "method", "status"})

	// HTTPDuration tracks API latency by route pattern.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quorum_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// Ticks counts maintenance ticks by result (ok, error).
	Ticks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quorum_ticks_total",
		Help: "Maintenance ticks by result",
	}, []string{"result"})
)

// Handler returns the HTTP handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
