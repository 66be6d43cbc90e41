// Package ml wraps pre-trained failure classifiers behind a single contract.
//
// A classifier is an opaque, already-trained artifact. Each serialization
// format gets its own adapter (scikit-learn pickles and ONNX graphs through a
// resident Python worker, gradient-boosted trees exported as JSON evaluated
// natively, or a remote model server over HTTP). Load picks the adapter,
// verifies the artifact's input schema against the feature assembler and
// returns an immutable Model that is shared read-only for the process
// lifetime.
package ml

import (
	"context"
	"errors"

	"predictive-maintenance/internal/features"
)

// Classifier is a binary failure classifier over the assembled feature vector.
type Classifier interface {
	// PredictLabel returns 1 when failure is predicted, 0 otherwise.
	PredictLabel(ctx context.Context, v features.Vector) (int, error)

	// PredictProbability returns the probability of the failure class.
	PredictProbability(ctx context.Context, v features.Vector) (float64, error)
}

// Scorer is implemented by adapters that produce label and probability in a
// single evaluation.
type Scorer interface {
	Score(ctx context.Context, v features.Vector) (Prediction, error)
}

// Prediction is the raw classifier output. Values are passed through as the
// artifact produced them; range checks happen in the risk layer.
type Prediction struct {
	Label       int     `json:"label"`
	Probability float64 `json:"probability"`
}

// Score evaluates v with c, in one call when c is a Scorer.
func Score(ctx context.Context, c Classifier, v features.Vector) (Prediction, error) {
	if c == nil {
		return Prediction{}, ErrClassifierUnavailable
	}
	if s, ok := c.(Scorer); ok {
		return s.Score(ctx, v)
	}
	label, err := c.PredictLabel(ctx, v)
	if err != nil {
		return Prediction{}, err
	}
	prob, err := c.PredictProbability(ctx, v)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{Label: label, Probability: prob}, nil
}

var (
	// ErrArtifactUnavailable means the model artifact is missing, unreadable or
	// corrupt. It is fatal at startup.
	ErrArtifactUnavailable = errors.New("model artifact unavailable")

	ErrUnsupportedFormat     = errors.New("unsupported model format")
	ErrClassifierUnavailable = errors.New("classifier unavailable")
)

// Supported artifact formats.
const (
	FormatJoblib   = "joblib"
	FormatONNX     = "onnx"
	FormatTreeJSON = "gbdt-json"
	FormatRemote   = "remote"
)

// Formats lists every format Load understands.
var Formats = []string{FormatJoblib, FormatONNX, FormatTreeJSON, FormatRemote}

// closer is implemented by adapters holding OS resources.
type closer interface {
	Close() error
}
