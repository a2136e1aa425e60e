package monitoring

import (
	"math"
	"strconv"
	"strings"
)

// missingDiastolic stands in for an absent blood pressure secondary value.
const missingDiastolic = -1.0

// Verdict is the alert descriptor produced for an out-of-range measurement.
type Verdict struct {
	Severity Severity
	Message  string
}

// Evaluate checks a measurement against the clinical thresholds.
// CRITICAL bands are tested before ALERT bands. STEPS and WEIGHT are never assessed.
func Evaluate(t MeasurementType, v float64, v2 *float64) (Verdict, bool) {
	switch t {
	case TypeHeartRate:
		if v < 40 || v > 130 {
			return critical("Heart rate critical: " + formatValue(v) + " bpm")
		}
		if v < 50 || v > 110 {
			return alert("Heart rate out-of-range: " + formatValue(v) + " bpm")
		}
	case TypeSpO2:
		if v < 88 {
			return critical("SpO2 critical: " + formatValue(v) + "%")
		}
		if v < 92 {
			return alert("SpO2 low: " + formatValue(v) + "%")
		}
	case TypeBloodPressure:
		dia := missingDiastolic
		if v2 != nil {
			dia = *v2
		}
		reading := formatValue(v) + "/" + formatValue(dia) + " mmHg"
		if v >= 180 || dia >= 110 || v < 85 || dia < 50 {
			return critical("BP critical: " + reading)
		}
		if v >= 160 || dia >= 100 || v < 90 || dia < 55 {
			return alert("BP out-of-range: " + reading)
		}
	case TypeGlucose:
		if v < 60 || v > 250 {
			return critical("Glucose critical: " + formatValue(v) + " mg/dL")
		}
		if v < 70 || v > 180 {
			return alert("Glucose out-of-range: " + formatValue(v) + " mg/dL")
		}
	}
	return Verdict{}, false
}

func critical(message string) (Verdict, bool) {
	return Verdict{Severity: SeverityCritical, Message: message}, true
}

func alert(message string) (Verdict, bool) {
	return Verdict{Severity: SeverityAlert, Message: message}, true
}

// formatValue renders v with at least one fractional digit, so 90 prints as "90.0".
func formatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if math.IsNaN(v) || math.IsInf(v, 0) || strings.Contains(s, ".") {
		return s
	}
	return s + ".0"
}
