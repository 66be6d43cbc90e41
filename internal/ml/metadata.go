package ml

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ModelMetadata describes the loaded artifact. It is read from an optional
// sidecar file next to the artifact (<artifact>.meta.yaml).
type ModelMetadata struct {
	Version       string    `yaml:"version" json:"version"`
	Algorithm     string    `yaml:"algorithm" json:"algorithm,omitempty"`
	TrainedAt     time.Time `yaml:"trained_at" json:"trained_at,omitempty"`
	Features      []string  `yaml:"features" json:"features"`
	Accuracy      float64   `yaml:"accuracy" json:"accuracy,omitempty"`
	ValidationAcc float64   `yaml:"validation_accuracy" json:"validation_accuracy,omitempty"`
	TrainingRows  int       `yaml:"training_rows" json:"training_rows,omitempty"`
}

func metadataPath(artifact string) string {
	return artifact + ".meta.yaml"
}

// loadMetadata returns nil, nil when no sidecar exists.
func loadMetadata(artifact string) (*ModelMetadata, error) {
	data, err := os.ReadFile(metadataPath(artifact))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var md ModelMetadata
	if err := yaml.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("parse %s: %w", metadataPath(artifact), err)
	}
	return &md, nil
}
