package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"predictive-maintenance/internal/features"
	"predictive-maintenance/internal/ml"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrContractViolation marks classifier output that breaks its contract: a
// label other than 0/1 or a probability outside [0, 1].
var ErrContractViolation = errors.New("classifier contract violation")

// ContractError carries the offending prediction. It matches
// ErrContractViolation with errors.Is.
type ContractError struct {
	Label       int
	Probability float64
	Err         error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%v: label=%d probability=%v: %v", ErrContractViolation, e.Label, e.Probability, e.Err)
}

func (e *ContractError) Unwrap() []error { return []error{ErrContractViolation, e.Err} }

// Assessment is the verdict for one reading.
type Assessment struct {
	ID            string           `json:"id"`
	AssessedAt    time.Time        `json:"assessed_at"`
	Reading       features.Reading `json:"reading"`
	Features      features.Vector  `json:"features"`
	FailureLikely bool             `json:"failure_likely"`
	Probability   float64          `json:"probability"`
	Band          Band             `json:"risk_band"`
	Advice        string           `json:"advice"`
	ModelVersion  string           `json:"model_version,omitempty"`
}

// ProbabilityText formats the probability the way the result card shows it.
func (a Assessment) ProbabilityText() string {
	return fmt.Sprintf("%.2f", a.Probability)
}

// Percent is the fill width of the proportional indicator.
func (a Assessment) Percent() int {
	return int(math.Round(a.Probability * 100))
}

// Recorder receives every successful assessment (history store).
type Recorder interface {
	Record(Assessment) error
}

// Observer receives assessment outcomes for metrics.
type Observer interface {
	AssessmentObserve(band string, probability float64)
	ContractViolationInc()
}

// Assessor scores readings against a loaded model. It holds no mutable
// state and is safe to share between handlers.
type Assessor struct {
	model    *ml.Model
	recorder Recorder
	observer Observer
	now      func() time.Time
}

// Option configures an Assessor.
type Option func(*Assessor)

func WithRecorder(r Recorder) Option { return func(a *Assessor) { a.recorder = r } }

func WithObserver(o Observer) Option { return func(a *Assessor) { a.observer = o } }

func NewAssessor(model *ml.Model, opts ...Option) *Assessor {
	a := &Assessor{model: model, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Model returns the model the assessor was built with.
func (a *Assessor) Model() *ml.Model { return a.model }

// Assess assembles the feature vector, scores it and derives band and advice.
// The reading is assumed to be range-checked by the caller.
func (a *Assessor) Assess(ctx context.Context, r features.Reading) (Assessment, error) {
	vec := features.Assemble(r)

	pred, err := ml.Score(ctx, a.model.Classifier, vec)
	if err != nil {
		return Assessment{}, fmt.Errorf("score reading: %w", err)
	}

	band, err := Interpret(pred.Probability)
	if err == nil && pred.Label != 0 && pred.Label != 1 {
		err = fmt.Errorf("label %d not in {0, 1}", pred.Label)
	}
	if err != nil {
		if a.observer != nil {
			a.observer.ContractViolationInc()
		}
		log.Error().
			Err(err).
			Int("label", pred.Label).
			Float64("probability", pred.Probability).
			Interface("features", vec).
			Msg("Classifier returned invalid prediction")
		return Assessment{}, &ContractError{Label: pred.Label, Probability: pred.Probability, Err: err}
	}

	out := Assessment{
		ID:            uuid.NewString(),
		AssessedAt:    a.now().UTC(),
		Reading:       r,
		Features:      vec,
		FailureLikely: pred.Label == 1,
		Probability:   pred.Probability,
		Band:          band,
		Advice:        band.Advice(),
		ModelVersion:  a.model.Metadata.Version,
	}

	if a.observer != nil {
		a.observer.AssessmentObserve(string(band), pred.Probability)
	}
	if a.recorder != nil {
		if err := a.recorder.Record(out); err != nil {
			// history is best effort; the verdict is still valid
			log.Warn().Err(err).Str("assessment_id", out.ID).Msg("Failed to record assessment")
		}
	}

	log.Debug().
		Str("assessment_id", out.ID).
		Str("type", string(r.Type)).
		Float64("probability", out.Probability).
		Str("band", string(out.Band)).
		Bool("failure_likely", out.FailureLikely).
		Msg("Reading assessed")

	return out, nil
}
