// Command modelcheck loads a model artifact the way the service does and
// scores one reading with it. It exits non-zero when the artifact cannot be
// loaded, the reading is out of range or the model breaks its contract.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"predictive-maintenance/internal/common"
	"predictive-maintenance/internal/features"
	"predictive-maintenance/internal/ml"
	"predictive-maintenance/internal/risk"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	def := features.DefaultReading()
	var (
		modelPath   = flag.String("model", common.DefaultModelPath, "Path to the model artifact")
		format      = flag.String("format", common.DefaultModelFormat, "Artifact format: joblib, onnx, gbdt-json, remote")
		modelURL    = flag.String("url", "", "Model server base URL (remote format)")
		pythonPath  = flag.String("python", "", "Python interpreter for joblib/onnx artifacts")
		timeout     = flag.Duration("timeout", 10*time.Second, "Inference timeout")
		logLevel    = flag.String("log-level", "warn", "Log level: debug, info, warn, error")
		asJSON      = flag.Bool("json", false, "Print the assessment as JSON")
		productType = flag.String("type", string(def.Type), "Product type: L, M or H")
		air         = flag.Float64("air", def.AirTemperature, "Air temperature [K]")
		process     = flag.Float64("process", def.ProcessTemperature, "Process temperature [K]")
		speed       = flag.Int("speed", def.RotationalSpeed, "Rotational speed [rpm]")
		torque      = flag.Float64("torque", def.Torque, "Torque [Nm]")
		wear        = flag.Int("wear", def.ToolWear, "Tool wear [min]")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	reading := features.Reading{
		Type:               features.ProductType(*productType),
		AirTemperature:     *air,
		ProcessTemperature: *process,
		RotationalSpeed:    *speed,
		Torque:             *torque,
		ToolWear:           *wear,
	}
	if err := reading.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid reading")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout+30*time.Second)
	defer cancel()

	model, err := ml.Load(ctx, ml.ModelConfig{
		Path:       *modelPath,
		Format:     *format,
		URL:        *modelURL,
		PythonPath: *pythonPath,
		Timeout:    *timeout,
	})
	if err != nil {
		log.Fatal().Err(err).Str("path", *modelPath).Str("format", *format).Msg("model load failed")
	}

	assessment, err := risk.NewAssessor(model).Assess(ctx, reading)
	model.Close()
	if err != nil {
		log.Fatal().Err(err).Msg("assessment failed")
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(assessment); err != nil {
			log.Fatal().Err(err).Msg("encode failed")
		}
		return
	}
	printAssessment(model, assessment)
}

func printAssessment(model *ml.Model, a risk.Assessment) {
	verdict := "No Immediate Machine Failure Detected"
	if a.FailureLikely {
		verdict = "Machine Failure Likely"
	}
	fmt.Printf("Model:        %s (%s, version %s)\n", model.Source, model.Format, model.Metadata.Version)
	fmt.Printf("Features:     %v\n", a.Features.Slice())
	fmt.Printf("Verdict:      %s\n", verdict)
	fmt.Printf("Probability:  %s\n", a.ProbabilityText())
	fmt.Printf("Risk level:   %s %s\n", a.Band.Indicator(), a.Band)
	fmt.Printf("Advice:       %s\n", a.Advice)
}
