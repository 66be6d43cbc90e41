// Package features turns raw machine readings into the fixed-order feature
// vector the failure classifier was trained on.
//
// The column order is an external contract with the trained artifact: a
// reordered vector is accepted by the classifier without error and silently
// scores the wrong machine. CheckSchema exists so that loaders can refuse an
// artifact whose declared inputs differ from Names.
package features

import (
	"errors"
	"fmt"
	"strings"
)

// ProductType is the machine quality variant: low, medium or high.
type ProductType string

const (
	TypeL ProductType = "L"
	TypeM ProductType = "M"
	TypeH ProductType = "H"
)

// ProductTypes lists the selectable types in form order.
var ProductTypes = []ProductType{TypeL, TypeM, TypeH}

var ErrUnknownProductType = errors.New("unknown product type")

// ParseProductType accepts L, M or H (case-insensitive, surrounding space ignored).
func ParseProductType(s string) (ProductType, error) {
	switch ProductType(strings.ToUpper(strings.TrimSpace(s))) {
	case TypeL:
		return TypeL, nil
	case TypeM:
		return TypeM, nil
	case TypeH:
		return TypeH, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProductType, s)
}

// Reading is one set of sensor values entered for a single evaluation.
type Reading struct {
	Type               ProductType `json:"type"`
	AirTemperature     float64     `json:"air_temperature"`     // K
	ProcessTemperature float64     `json:"process_temperature"` // K
	RotationalSpeed    int         `json:"rotational_speed"`    // rpm
	Torque             float64     `json:"torque"`              // Nm
	ToolWear           int         `json:"tool_wear"`           // min
}

// Feature positions inside a Vector.
const (
	IdxAirTemperature = iota
	IdxProcessTemperature
	IdxRotationalSpeed
	IdxTorque
	IdxToolWear
	IdxTypeH
	IdxTypeL
	IdxTypeM

	Size
)

// Names are the training-time column names, index-aligned with Vector.
var Names = [Size]string{
	IdxAirTemperature:     "Air temperature [K]",
	IdxProcessTemperature: "Process temperature [K]",
	IdxRotationalSpeed:    "Rotational speed [rpm]",
	IdxTorque:             "Torque [Nm]",
	IdxToolWear:           "Tool wear [min]",
	IdxTypeH:              "Type_H",
	IdxTypeL:              "Type_L",
	IdxTypeM:              "Type_M",
}

// Vector is the classifier input.
type Vector [Size]float64

// Assemble builds the feature vector for r. It does not check ranges.
func Assemble(r Reading) Vector {
	var v Vector
	v[IdxAirTemperature] = r.AirTemperature
	v[IdxProcessTemperature] = r.ProcessTemperature
	v[IdxRotationalSpeed] = float64(r.RotationalSpeed)
	v[IdxTorque] = r.Torque
	v[IdxToolWear] = float64(r.ToolWear)

	switch r.Type {
	case TypeH:
		v[IdxTypeH] = 1
	case TypeL:
		v[IdxTypeL] = 1
	case TypeM:
		v[IdxTypeM] = 1
	}
	return v
}

// Slice returns a copy of the vector as a slice, for adapters that ship
// features over the wire.
func (v Vector) Slice() []float64 {
	out := make([]float64, Size)
	copy(out, v[:])
	return out
}

// Float32 is Slice for runtimes that take single-precision input (ONNX).
func (v Vector) Float32() []float32 {
	out := make([]float32, Size)
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

// Map keys the vector by column name.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, Size)
	for i, name := range Names {
		m[name] = v[i]
	}
	return m
}

var ErrSchemaMismatch = errors.New("feature schema mismatch")

// CheckSchema reports whether a classifier's declared input columns are
// exactly Names, in the same order.
func CheckSchema(declared []string) error {
	if len(declared) != Size {
		return fmt.Errorf("%w: expected %d features, artifact declares %d", ErrSchemaMismatch, Size, len(declared))
	}
	for i, name := range declared {
		if name != Names[i] {
			return fmt.Errorf("%w: position %d is %q, expected %q", ErrSchemaMismatch, i, name, Names[i])
		}
	}
	return nil
}
