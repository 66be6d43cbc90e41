package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"predictive-maintenance/internal/features"
)

// TreeEnsemble is a binary gradient-boosted tree classifier exported as JSON
// and evaluated in-process. Splits follow the scikit-learn convention: a
// sample goes left when x[feature] <= threshold.
type TreeEnsemble struct {
	Format       string   `json:"format"`
	Version      string   `json:"version"`
	Features     []string `json:"features"`
	Init         float64  `json:"init"`
	LearningRate float64  `json:"learning_rate"`
	Trees        []Tree   `json:"trees"`
}

// Tree is a flat node table; node 0 is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

type Node struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
}

// LoadTreeEnsemble reads and validates a JSON ensemble.
func LoadTreeEnsemble(path string) (*TreeEnsemble, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactUnavailable, err)
	}

	var te TreeEnsemble
	if err := json.Unmarshal(data, &te); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrArtifactUnavailable, path, err)
	}
	if err := te.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactUnavailable, path, err)
	}
	return &te, nil
}

func (te *TreeEnsemble) validate() error {
	if te.Format != "" && te.Format != FormatTreeJSON {
		return fmt.Errorf("format %q, expected %q", te.Format, FormatTreeJSON)
	}
	if len(te.Trees) == 0 {
		return fmt.Errorf("ensemble has no trees")
	}
	if te.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %v", te.LearningRate)
	}
	for ti, tree := range te.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d has no nodes", ti)
		}
		for ni, n := range tree.Nodes {
			if n.Leaf {
				continue
			}
			if n.Feature < 0 || n.Feature >= features.Size {
				return fmt.Errorf("tree %d node %d: feature index %d out of range", ti, ni, n.Feature)
			}
			// children must come after their parent, which also rules out cycles
			if n.Left <= ni || n.Left >= len(tree.Nodes) || n.Right <= ni || n.Right >= len(tree.Nodes) {
				return fmt.Errorf("tree %d node %d: invalid children %d/%d", ti, ni, n.Left, n.Right)
			}
		}
	}
	return nil
}

// DeclaredFeatures returns the column names stored with the ensemble.
func (te *TreeEnsemble) DeclaredFeatures() []string {
	return te.Features
}

func (te *TreeEnsemble) rawScore(v features.Vector) float64 {
	sum := 0.0
	for _, tree := range te.Trees {
		i := 0
		for !tree.Nodes[i].Leaf {
			n := tree.Nodes[i]
			if v[n.Feature] <= n.Threshold {
				i = n.Left
			} else {
				i = n.Right
			}
		}
		sum += tree.Nodes[i].Value
	}
	return te.Init + te.LearningRate*sum
}

func (te *TreeEnsemble) Score(_ context.Context, v features.Vector) (Prediction, error) {
	prob := sigmoid(te.rawScore(v))
	label := 0
	if prob > 0.5 {
		label = 1
	}
	return Prediction{Label: label, Probability: prob}, nil
}

func (te *TreeEnsemble) PredictLabel(ctx context.Context, v features.Vector) (int, error) {
	pred, err := te.Score(ctx, v)
	return pred.Label, err
}

func (te *TreeEnsemble) PredictProbability(ctx context.Context, v features.Vector) (float64, error) {
	pred, err := te.Score(ctx, v)
	return pred.Probability, err
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
