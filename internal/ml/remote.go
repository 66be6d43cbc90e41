package ml

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"predictive-maintenance/internal/features"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// RemoteClassifier scores readings on an external model server.
type RemoteClassifier struct {
	base     string
	rest     *resty.Client
	declared []string
	version  string
}

type remoteRequest struct {
	Features []float64 `json:"features"`
	Columns  []string  `json:"columns"`
}

type remoteResponse struct {
	Probabilities []float64 `json:"probabilities"`
	Prediction    int       `json:"prediction"`
	Error         string    `json:"error,omitempty"`
}

type remoteInfo struct {
	Version  string   `json:"version"`
	Features []string `json:"features"`
}

// NewRemoteClassifier connects to base and reads its model info. A server
// that cannot be reached at startup is treated like a missing artifact.
func NewRemoteClassifier(ctx context.Context, base string, timeout time.Duration) (*RemoteClassifier, error) {
	if base == "" {
		return nil, fmt.Errorf("%w: remote model URL is empty", ErrArtifactUnavailable)
	}
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second)
	}
	r.SetHeader("Accept", "application/json")

	rc := &RemoteClassifier{base: strings.TrimRight(base, "/"), rest: r}

	info := &remoteInfo{}
	resp, err := r.R().SetContext(ctx).SetResult(info).Get(rc.base + "/model/info")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactUnavailable, rc.base, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		log.Warn().Str("model_url", rc.base).Msg("Model server does not publish /model/info")
	case resp.IsError():
		return nil, fmt.Errorf("%w: %s/model/info: %s", ErrArtifactUnavailable, rc.base, resp.Status())
	default:
		rc.declared = info.Features
		rc.version = info.Version
	}
	return rc, nil
}

func (rc *RemoteClassifier) DeclaredFeatures() []string { return rc.declared }

// Version is the model version reported by the server, if any.
func (rc *RemoteClassifier) Version() string { return rc.version }

func (rc *RemoteClassifier) Score(ctx context.Context, v features.Vector) (Prediction, error) {
	out := &remoteResponse{}
	resp, err := rc.rest.R().
		SetContext(ctx).
		SetBody(remoteRequest{Features: v.Slice(), Columns: features.Names[:]}).
		SetResult(out).
		SetError(out).
		Post(rc.base + "/predict")
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}
	if resp.IsError() || out.Error != "" {
		return Prediction{}, fmt.Errorf("model server: %s %s", resp.Status(), out.Error)
	}
	if len(out.Probabilities) != 2 {
		return Prediction{}, fmt.Errorf("expected 2 class probabilities, got %d", len(out.Probabilities))
	}
	return Prediction{Label: out.Prediction, Probability: out.Probabilities[1]}, nil
}

func (rc *RemoteClassifier) PredictLabel(ctx context.Context, v features.Vector) (int, error) {
	pred, err := rc.Score(ctx, v)
	return pred.Label, err
}

func (rc *RemoteClassifier) PredictProbability(ctx context.Context, v features.Vector) (float64, error) {
	pred, err := rc.Score(ctx, v)
	return pred.Probability, err
}
