package ml

import (
	"context"
	"fmt"
	"os"
	"time"

	"predictive-maintenance/internal/features"

	"github.com/rs/zerolog/log"
)

// ModelConfig selects and configures the artifact adapter.
type ModelConfig struct {
	Path       string
	Format     string
	URL        string // FormatRemote only
	PythonPath string
	ScriptPath string
	Timeout    time.Duration
	Metrics    MetricsInterface
}

// Model is the process-wide, read-only classifier context built once at
// startup and handed to the scoring path.
type Model struct {
	Classifier Classifier
	Metadata   ModelMetadata
	Format     string
	Source     string
	LoadedAt   time.Time
	ModifiedAt time.Time
}

// Close releases adapter resources (the Python worker).
func (m *Model) Close() error {
	if m == nil {
		return nil
	}
	if c, ok := unwrap(m.Classifier).(closer); ok {
		return c.Close()
	}
	return nil
}

// healthChecker is implemented by adapters that can go down after load.
type healthChecker interface {
	Healthy() error
}

// Healthy reports whether the classifier can still serve predictions.
// Adapters without a failure state are always healthy.
func (m *Model) Healthy() error {
	if m == nil || m.Classifier == nil {
		return ErrClassifierUnavailable
	}
	if h, ok := unwrap(m.Classifier).(healthChecker); ok {
		return h.Healthy()
	}
	return nil
}

type schemaDeclarer interface {
	DeclaredFeatures() []string
}

// Load builds the classifier for cfg, checks its declared input schema and
// runs one smoke prediction. Errors wrap ErrArtifactUnavailable or
// features.ErrSchemaMismatch and should stop the process.
func Load(ctx context.Context, cfg ModelConfig) (*Model, error) {
	m := &Model{Format: cfg.Format, Source: cfg.Path, LoadedAt: time.Now()}

	var c Classifier
	switch cfg.Format {
	case FormatJoblib, FormatONNX:
		pc, err := NewPythonClassifier(ctx, PythonOptions{
			Format:     cfg.Format,
			ModelPath:  cfg.Path,
			PythonPath: cfg.PythonPath,
			ScriptPath: cfg.ScriptPath,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		c = pc
	case FormatTreeJSON:
		te, err := LoadTreeEnsemble(cfg.Path)
		if err != nil {
			return nil, err
		}
		m.Metadata.Version = te.Version
		m.Metadata.Algorithm = "gradient boosting"
		c = te
	case FormatRemote:
		rc, err := NewRemoteClassifier(ctx, cfg.URL, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		m.Source = cfg.URL
		m.Metadata.Version = rc.Version()
		c = rc
	default:
		return nil, fmt.Errorf("%w: %q (supported: %v)", ErrUnsupportedFormat, cfg.Format, Formats)
	}
	m.Classifier = c

	if err := m.describe(cfg); err != nil {
		m.Close()
		return nil, err
	}

	if err := smokeTest(ctx, c); err != nil {
		m.Close()
		return nil, fmt.Errorf("%w: smoke prediction: %v", ErrArtifactUnavailable, err)
	}

	if cfg.Metrics != nil {
		if !m.ModifiedAt.IsZero() {
			cfg.Metrics.MLModelAgeSet(time.Since(m.ModifiedAt).Seconds())
		}
		m.Classifier = NewInstrumented(c, cfg.Metrics)
	}

	log.Info().
		Str("format", m.Format).
		Str("source", m.Source).
		Str("version", m.Metadata.Version).
		Msg("Model loaded successfully")
	return m, nil
}

// describe fills metadata and enforces the feature order contract. The
// sidecar wins over what the adapter reports; an artifact that declares
// nothing is accepted with a warning.
func (m *Model) describe(cfg ModelConfig) error {
	if cfg.Format != FormatRemote {
		if info, err := os.Stat(cfg.Path); err == nil {
			m.ModifiedAt = info.ModTime()
		}
		md, err := loadMetadata(cfg.Path)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrArtifactUnavailable, err)
		}
		if md != nil {
			if md.Version == "" {
				md.Version = m.Metadata.Version
			}
			if md.Algorithm == "" {
				md.Algorithm = m.Metadata.Algorithm
			}
			m.Metadata = *md
		}
	}

	if m.Metadata.Version == "" {
		m.Metadata.Version = "unknown"
	}

	if len(m.Metadata.Features) == 0 {
		if d, ok := m.Classifier.(schemaDeclarer); ok {
			m.Metadata.Features = d.DeclaredFeatures()
		}
	}
	if len(m.Metadata.Features) == 0 {
		log.Warn().
			Str("source", m.Source).
			Msg("Artifact does not declare its input columns, feature order cannot be verified")
		m.Metadata.Features = features.Names[:]
		return nil
	}
	if err := features.CheckSchema(m.Metadata.Features); err != nil {
		return fmt.Errorf("artifact %s: %w", m.Source, err)
	}
	return nil
}

func smokeTest(ctx context.Context, c Classifier) error {
	pred, err := Score(ctx, c, features.Assemble(features.DefaultReading()))
	if err != nil {
		return err
	}
	if pred.Probability < 0 || pred.Probability > 1 || pred.Probability != pred.Probability {
		return fmt.Errorf("probability %v outside [0, 1]", pred.Probability)
	}
	if pred.Label != 0 && pred.Label != 1 {
		return fmt.Errorf("label %d not in {0, 1}", pred.Label)
	}
	return nil
}
