package ml

import (
	"context"
	"sync"
	"time"

	"predictive-maintenance/internal/features"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu               sync.Mutex
	predictions      int
	failures         int
	timeouts         int
	latencySum       float64
	modelAge         float64
	predictionScores []float64
}

func (m *MockMetrics) MLPredictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
}

func (m *MockMetrics) MLFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) MLTimeoutsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts++
}

func (m *MockMetrics) MLLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) MLModelAgeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAge = v
}

func (m *MockMetrics) MLPredictionScoresObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictionScores = append(m.predictionScores, v)
}

// StubClassifier returns a fixed prediction for any input.
type StubClassifier struct {
	Label       int
	Probability float64
	Err         error
	HealthErr   error

	mu    sync.Mutex
	calls []features.Vector
}

func (s *StubClassifier) PredictLabel(_ context.Context, v features.Vector) (int, error) {
	s.record(v)
	return s.Label, s.Err
}

func (s *StubClassifier) PredictProbability(_ context.Context, v features.Vector) (float64, error) {
	s.record(v)
	return s.Probability, s.Err
}

// Healthy returns HealthErr.
func (s *StubClassifier) Healthy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.HealthErr
}

func (s *StubClassifier) record(v features.Vector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, v)
}

// Calls returns every vector the stub was asked to score.
func (s *StubClassifier) Calls() []features.Vector {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]features.Vector, len(s.calls))
	copy(out, s.calls)
	return out
}

// NewStubModel wraps a stub in a Model as Load would.
func NewStubModel(label int, probability float64) (*Model, *StubClassifier) {
	stub := &StubClassifier{Label: label, Probability: probability}
	return &Model{
		Classifier: stub,
		Metadata:   ModelMetadata{Version: "stub", Features: features.Names[:]},
		Format:     "stub",
		Source:     "memory",
		LoadedAt:   time.Now(),
	}, stub
}
