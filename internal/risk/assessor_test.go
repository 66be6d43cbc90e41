package risk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"predictive-maintenance/internal/features"
	"predictive-maintenance/internal/ml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRecorder struct {
	mu   sync.Mutex
	seen []Assessment
	err  error
}

func (m *memRecorder) Record(a Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, a)
	return m.err
}

type countingObserver struct {
	bands      map[string]int
	violations int
}

func (o *countingObserver) AssessmentObserve(band string, _ float64) {
	if o.bands == nil {
		o.bands = make(map[string]int)
	}
	o.bands[band]++
}

func (o *countingObserver) ContractViolationInc() { o.violations++ }

func scenarioA() features.Reading {
	return features.Reading{
		Type:               features.TypeL,
		AirTemperature:     298.0,
		ProcessTemperature: 308.0,
		RotationalSpeed:    1500,
		Torque:             40.0,
		ToolWear:           50,
	}
}

func TestAssess_HighRisk(t *testing.T) {
	model, stub := ml.NewStubModel(1, 0.75)
	a := NewAssessor(model)

	got, err := a.Assess(context.Background(), scenarioA())
	require.NoError(t, err)

	assert.Equal(t, High, got.Band)
	assert.True(t, got.FailureLikely)
	assert.Equal(t, "High failure risk. Immediate inspection is recommended.", got.Advice)
	assert.Equal(t, 0.75, got.Probability)
	assert.Equal(t, "0.75", got.ProbabilityText())
	assert.Equal(t, 75, got.Percent())
	assert.Equal(t, "stub", got.ModelVersion)
	assert.NotEmpty(t, got.ID)

	// the classifier sees the assembled vector
	calls := stub.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, features.Vector{298.0, 308.0, 1500, 40.0, 50, 0, 1, 0}, calls[0])
	assert.Equal(t, calls[0], got.Features)
}

func TestAssess_LowRisk(t *testing.T) {
	model, _ := ml.NewStubModel(0, 0.10)

	got, err := NewAssessor(model).Assess(context.Background(), scenarioA())
	require.NoError(t, err)
	assert.Equal(t, Low, got.Band)
	assert.False(t, got.FailureLikely)
	assert.Equal(t, "Machine is operating normally. Continue routine monitoring.", got.Advice)
	assert.Equal(t, "0.10", got.ProbabilityText())
}

func TestAssess_BoundaryIsMedium(t *testing.T) {
	model, _ := ml.NewStubModel(0, 0.30)

	got, err := NewAssessor(model).Assess(context.Background(), scenarioA())
	require.NoError(t, err)
	assert.Equal(t, Medium, got.Band)
	assert.Equal(t, AdviceMedium, got.Advice)
}

func TestAssess_BandIgnoresLabel(t *testing.T) {
	// a positive label with a low probability is still LOW
	model, _ := ml.NewStubModel(1, 0.05)

	got, err := NewAssessor(model).Assess(context.Background(), scenarioA())
	require.NoError(t, err)
	assert.Equal(t, Low, got.Band)
	assert.True(t, got.FailureLikely)
}

func TestAssess_ContractViolation(t *testing.T) {
	testCases := []struct {
		name        string
		label       int
		probability float64
	}{
		{"probability above one", 1, 1.2},
		{"negative probability", 0, -0.01},
		{"label not binary", 2, 0.5},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			model, _ := ml.NewStubModel(tc.label, tc.probability)
			obs := &countingObserver{}
			rec := &memRecorder{}

			got, err := NewAssessor(model, WithObserver(obs), WithRecorder(rec)).Assess(context.Background(), scenarioA())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrContractViolation))

			var ce *ContractError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tc.probability, ce.Probability)

			assert.Empty(t, got.Band, "no band for a broken prediction")
			assert.Equal(t, 1, obs.violations)
			assert.Empty(t, rec.seen)
		})
	}
}

func TestAssess_ClassifierError(t *testing.T) {
	model, stub := ml.NewStubModel(0, 0)
	stub.Err = ml.ErrClassifierUnavailable

	_, err := NewAssessor(model).Assess(context.Background(), scenarioA())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ml.ErrClassifierUnavailable))
	assert.False(t, errors.Is(err, ErrContractViolation))
}

func TestAssess_RecorderAndObserver(t *testing.T) {
	model, _ := ml.NewStubModel(0, 0.45)
	rec := &memRecorder{err: errors.New("disk full")}
	obs := &countingObserver{}
	a := NewAssessor(model, WithRecorder(rec), WithObserver(obs))
	a.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	got, err := a.Assess(context.Background(), scenarioA())
	require.NoError(t, err, "history failures do not fail the assessment")

	require.Len(t, rec.seen, 1)
	assert.Equal(t, got, rec.seen[0])
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), got.AssessedAt)
	assert.Equal(t, 1, obs.bands["MEDIUM"])
}
