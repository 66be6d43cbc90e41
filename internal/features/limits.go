package features

import (
	"errors"
	"fmt"
	"math"
)

// Range describes one numeric input of the form.
type Range struct {
	Min, Max, Default, Step float64
}

func (r Range) contains(v float64) bool {
	return !math.IsNaN(v) && v >= r.Min && v <= r.Max
}

// Limits are the bounds enforced by input surfaces before a Reading is
// assembled.
var Limits = struct {
	AirTemperature     Range
	ProcessTemperature Range
	RotationalSpeed    Range
	Torque             Range
	ToolWear           Range
}{
	AirTemperature:     Range{Min: 295.0, Max: 305.0, Default: 298.0, Step: 0.1},
	ProcessTemperature: Range{Min: 305.0, Max: 315.0, Default: 308.0, Step: 0.1},
	RotationalSpeed:    Range{Min: 1000, Max: 3000, Default: 1500, Step: 10},
	Torque:             Range{Min: 10.0, Max: 80.0, Default: 40.0, Step: 0.5},
	ToolWear:           Range{Min: 0, Max: 300, Default: 50, Step: 1},
}

// DefaultReading is what the form shows before the user edits anything.
func DefaultReading() Reading {
	return Reading{
		Type:               TypeL,
		AirTemperature:     Limits.AirTemperature.Default,
		ProcessTemperature: Limits.ProcessTemperature.Default,
		RotationalSpeed:    int(Limits.RotationalSpeed.Default),
		Torque:             Limits.Torque.Default,
		ToolWear:           int(Limits.ToolWear.Default),
	}
}

var ErrOutOfRange = errors.New("reading out of range")

// Validate checks the type and every numeric field against Limits. All
// violations are reported together.
func (r Reading) Validate() error {
	var errs []error
	if _, err := ParseProductType(string(r.Type)); err != nil {
		errs = append(errs, err)
	}
	check := func(name, unit string, v float64, rng Range) {
		if !rng.contains(v) {
			errs = append(errs, fmt.Errorf("%w: %s %g %s not in [%g, %g]", ErrOutOfRange, name, v, unit, rng.Min, rng.Max))
		}
	}
	check("air temperature", "K", r.AirTemperature, Limits.AirTemperature)
	check("process temperature", "K", r.ProcessTemperature, Limits.ProcessTemperature)
	check("rotational speed", "rpm", float64(r.RotationalSpeed), Limits.RotationalSpeed)
	check("torque", "Nm", r.Torque, Limits.Torque)
	check("tool wear", "min", float64(r.ToolWear), Limits.ToolWear)
	return errors.Join(errs...)
}
