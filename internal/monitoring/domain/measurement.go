package monitoring

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// MeasurementType identifies the physiological quantity measured.
type MeasurementType string

const (
	TypeHeartRate     MeasurementType = "HEART_RATE"
	TypeSpO2          MeasurementType = "SPO2"
	TypeSteps         MeasurementType = "STEPS"
	TypeBloodPressure MeasurementType = "BLOOD_PRESSURE"
	TypeGlucose       MeasurementType = "GLUCOSE"
	TypeWeight        MeasurementType = "WEIGHT"
)

// MeasurementTypes lists every type in declaration order.
var MeasurementTypes = []MeasurementType{
	TypeHeartRate,
	TypeSpO2,
	TypeSteps,
	TypeBloodPressure,
	TypeGlucose,
	TypeWeight,
}

// Valid reports whether t is a known measurement type.
func (t MeasurementType) Valid() bool {
	for _, known := range MeasurementTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseMeasurementType parses a type name, case-insensitively.
func ParseMeasurementType(value string) (MeasurementType, error) {
	t := MeasurementType(strings.ToUpper(strings.TrimSpace(value)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown measurement type %q", ErrValidation, value)
	}
	return t, nil
}

// Measurement is one immutable physiological reading.
type Measurement struct {
	ID         string          `json:"id"`
	PatientID  string          `json:"patientId"`
	Type       MeasurementType `json:"type"`
	Value      float64         `json:"value"`
	Value2     *float64        `json:"value2"`
	Unit       string          `json:"unit,omitempty"`
	MeasuredAt time.Time       `json:"measuredAt"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Validate checks the fields required before persistence.
func (m Measurement) Validate() error {
	if strings.TrimSpace(m.PatientID) == "" {
		return fmt.Errorf("%w: patientId is required", ErrValidation)
	}
	if !m.Type.Valid() {
		return fmt.Errorf("%w: type is required", ErrValidation)
	}
	if !finite(m.Value) {
		return fmt.Errorf("%w: value must be a finite number", ErrValidation)
	}
	if m.Value2 != nil && !finite(*m.Value2) {
		return fmt.Errorf("%w: value2 must be a finite number", ErrValidation)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
