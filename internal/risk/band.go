// Package risk maps classifier output to a maintenance verdict: a three-level
// risk band with a fixed recommendation.
package risk

import (
	"errors"
	"fmt"
	"math"
)

// Band is the coarse risk level derived from the failure probability.
type Band string

const (
	Low    Band = "LOW"
	Medium Band = "MEDIUM"
	High   Band = "HIGH"
)

// Lower bounds of the MEDIUM and HIGH bands, both inclusive.
const (
	MediumThreshold = 0.30
	HighThreshold   = 0.60
)

const (
	AdviceLow    = "Machine is operating normally. Continue routine monitoring."
	AdviceMedium = "Moderate risk detected. Schedule preventive maintenance."
	AdviceHigh   = "High failure risk. Immediate inspection is recommended."
)

var ErrProbabilityOutOfRange = errors.New("probability outside [0, 1]")

// Interpret returns the band for a failure probability. Values outside [0, 1]
// (and NaN) mean the classifier misbehaved and are rejected, not clamped.
func Interpret(probability float64) (Band, error) {
	switch {
	case math.IsNaN(probability) || probability < 0 || probability > 1:
		return "", fmt.Errorf("%w: %v", ErrProbabilityOutOfRange, probability)
	case probability < MediumThreshold:
		return Low, nil
	case probability < HighThreshold:
		return Medium, nil
	default:
		return High, nil
	}
}

// Advice is the recommended action for the band.
func (b Band) Advice() string {
	switch b {
	case Low:
		return AdviceLow
	case Medium:
		return AdviceMedium
	case High:
		return AdviceHigh
	}
	return ""
}

// Indicator is the colored marker shown next to the band.
func (b Band) Indicator() string {
	switch b {
	case Low:
		return "🟢"
	case Medium:
		return "🟡"
	case High:
		return "🔴"
	}
	return ""
}

func (b Band) String() string { return string(b) }
