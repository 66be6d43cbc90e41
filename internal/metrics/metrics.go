// Package metrics provides Prometheus metrics for the maintenance risk service.
// It covers classifier calls, assessment outcomes per risk band and the age
// of the loaded model, exposed on the dashboard's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Classifier metrics
	MLPredictions      prometheus.Counter   // Successful classifier evaluations
	MLFailures         prometheus.Counter   // Classifier evaluations that returned an error
	MLTimeouts         prometheus.Counter   // Classifier evaluations that ran out of time
	MLModelAge         prometheus.Gauge     // Age of the loaded artifact in seconds
	MLLatency          prometheus.Histogram // Classifier latency in seconds
	MLPredictionScores prometheus.Histogram // Distribution of failure probabilities

	// Assessment metrics
	Assessments        *prometheus.CounterVec // Assessments by risk band
	ContractViolations prometheus.Counter     // Predictions rejected as out of contract
	InvalidReadings    prometheus.Counter     // Submissions rejected by input validation

	// HTTP metrics
	RequestDuration *prometheus.HistogramVec // Dashboard request latency by route
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		MLPredictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of classifier predictions made",
		}),
		MLFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_failures_total",
			Help: "Total number of classifier prediction failures",
		}),
		MLTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_timeouts_total",
			Help: "Total number of classifier prediction timeouts",
		}),
		MLModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_model_age_seconds",
			Help: "Age of the loaded model artifact in seconds",
		}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "Classifier prediction latency in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		MLPredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_prediction_scores",
			Help:    "Distribution of predicted failure probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		Assessments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assessments_total",
			Help: "Total number of risk assessments by band",
		}, []string{"band"}),
		ContractViolations: factory.NewCounter(prometheus.CounterOpts{
			Name: "classifier_contract_violations_total",
			Help: "Predictions rejected because label or probability broke the classifier contract",
		}),
		InvalidReadings: factory.NewCounter(prometheus.CounterOpts{
			Name: "invalid_readings_total",
			Help: "Submitted readings rejected by input validation",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Dashboard request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}
}
