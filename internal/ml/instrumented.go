package ml

import (
	"context"
	"errors"
	"time"

	"predictive-maintenance/internal/features"
)

// MetricsInterface defines metrics methods needed by the classifier wrapper
type MetricsInterface interface {
	MLPredictionsInc()
	MLFailuresInc()
	MLTimeoutsInc()
	MLLatencyObserve(float64)
	MLModelAgeSet(float64)
	MLPredictionScoresObserve(float64)
}

// Instrumented records call count, failures, latency and the probability
// distribution of the wrapped classifier.
type Instrumented struct {
	inner   Classifier
	metrics MetricsInterface
}

func NewInstrumented(c Classifier, m MetricsInterface) *Instrumented {
	return &Instrumented{inner: c, metrics: m}
}

func (i *Instrumented) Score(ctx context.Context, v features.Vector) (Prediction, error) {
	start := time.Now()
	pred, err := Score(ctx, i.inner, v)
	i.metrics.MLLatencyObserve(time.Since(start).Seconds())

	if err != nil {
		i.metrics.MLFailuresInc()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			i.metrics.MLTimeoutsInc()
		}
		return pred, err
	}
	i.metrics.MLPredictionsInc()
	i.metrics.MLPredictionScoresObserve(pred.Probability)
	return pred, nil
}

func (i *Instrumented) PredictLabel(ctx context.Context, v features.Vector) (int, error) {
	pred, err := i.Score(ctx, v)
	return pred.Label, err
}

func (i *Instrumented) PredictProbability(ctx context.Context, v features.Vector) (float64, error) {
	pred, err := i.Score(ctx, v)
	return pred.Probability, err
}

func unwrap(c Classifier) Classifier {
	if i, ok := c.(*Instrumented); ok {
		return i.inner
	}
	return c
}
