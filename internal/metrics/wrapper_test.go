package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWrapper(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestMetricsWrapper_ClassifierCounters(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	if v := testutil.ToFloat64(metrics.MLPredictions); v != 0 {
		t.Errorf("Expected initial counter value 0, got %f", v)
	}

	wrapper.MLPredictionsInc()
	wrapper.MLPredictionsInc()
	wrapper.MLFailuresInc()
	wrapper.MLTimeoutsInc()

	if v := testutil.ToFloat64(metrics.MLPredictions); v != 2 {
		t.Errorf("Expected 2 predictions, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.MLFailures); v != 1 {
		t.Errorf("Expected 1 failure, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.MLTimeouts); v != 1 {
		t.Errorf("Expected 1 timeout, got %f", v)
	}
}

func TestMetricsWrapper_ModelAge(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.MLModelAgeSet(3600)
	if v := testutil.ToFloat64(metrics.MLModelAge); v != 3600 {
		t.Errorf("Expected model age 3600, got %f", v)
	}
}

func TestMetricsWrapper_Histograms(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	wrapper.MLLatencyObserve(0.002)
	wrapper.MLPredictionScoresObserve(0.75)
	wrapper.MLPredictionScoresObserve(0.10)
	wrapper.RequestObserve("/predict", 200, 15*time.Millisecond)

	if n := testutil.CollectAndCount(metrics.MLPredictionScores); n != 1 {
		t.Errorf("Expected one score series, got %d", n)
	}
	if n := testutil.CollectAndCount(metrics.RequestDuration); n != 1 {
		t.Errorf("Expected one request series, got %d", n)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == "ml_prediction_scores" {
			if c := mf.GetMetric()[0].GetHistogram().GetSampleCount(); c != 2 {
				t.Errorf("Expected 2 score samples, got %d", c)
			}
		}
	}
}

func TestMetricsWrapper_Assessments(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.AssessmentObserve("HIGH", 0.8)
	wrapper.AssessmentObserve("HIGH", 0.9)
	wrapper.AssessmentObserve("LOW", 0.1)
	wrapper.ContractViolationInc()
	wrapper.InvalidReadingInc()

	if v := testutil.ToFloat64(metrics.Assessments.WithLabelValues("HIGH")); v != 2 {
		t.Errorf("Expected 2 HIGH assessments, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.Assessments.WithLabelValues("LOW")); v != 1 {
		t.Errorf("Expected 1 LOW assessment, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.ContractViolations); v != 1 {
		t.Errorf("Expected 1 contract violation, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.InvalidReadings); v != 1 {
		t.Errorf("Expected 1 invalid reading, got %f", v)
	}
}

func TestNewWithRegistry_Isolated(t *testing.T) {
	// two registries must not collide on metric names
	NewWithRegistry(prometheus.NewRegistry())
	NewWithRegistry(prometheus.NewRegistry())
}
