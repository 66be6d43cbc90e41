// Command historyexport dumps recorded assessments as newline-delimited JSON,
// one flat record per assessment with the model's column names, so the
// trail can be compared against training data offline.
package main

import (
	"encoding/json"
	"flag"
	"os"
	"time"

	"predictive-maintenance/internal/features"
	"predictive-maintenance/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ExportRecord is one line of output.
type ExportRecord struct {
	ID            string             `json:"id"`
	Timestamp     int64              `json:"timestamp"`
	Type          string             `json:"type"`
	Features      map[string]float64 `json:"features"`
	Probability   float64            `json:"probability"`
	FailureLikely bool               `json:"failure_likely"`
	RiskBand      string             `json:"risk_band"`
	ModelVersion  string             `json:"model_version,omitempty"`
}

func main() {
	var (
		dataPath   = flag.String("data", "data", "History directory (DATA_PATH of the service)")
		outputPath = flag.String("output", "", "Output file (stdout when empty)")
		days       = flag.Int("days", 30, "Number of days to export (0 for all)")
		band       = flag.String("band", "", "Only export this risk band (LOW, MEDIUM, HIGH)")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	store, err := storage.New(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *dataPath).Msg("failed to open history")
	}
	defer store.Close()

	end := time.Now()
	start := time.Unix(0, 0)
	if *days > 0 {
		start = end.AddDate(0, 0, -*days)
	}
	items, err := store.Between(start, end)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read history")
	}

	out := os.Stdout
	if *outputPath != "" {
		f, err := os.Create(*outputPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create output file")
		}
		defer f.Close()
		out = f
	}

	encoder := json.NewEncoder(out)
	counts := make(map[string]int)
	for _, a := range items {
		if *band != "" && string(a.Band) != *band {
			continue
		}
		record := ExportRecord{
			ID:            a.ID,
			Timestamp:     a.AssessedAt.Unix(),
			Type:          string(a.Reading.Type),
			Features:      features.Assemble(a.Reading).Map(),
			Probability:   a.Probability,
			FailureLikely: a.FailureLikely,
			RiskBand:      string(a.Band),
			ModelVersion:  a.ModelVersion,
		}
		if err := encoder.Encode(record); err != nil {
			log.Fatal().Err(err).Msg("failed to write record")
		}
		counts[record.RiskBand]++
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		log.Warn().Msg("no assessments matched")
		return
	}
	log.Info().
		Int("records", total).
		Int("low", counts["LOW"]).
		Int("medium", counts["MEDIUM"]).
		Int("high", counts["HIGH"]).
		Msg("export complete")
}
