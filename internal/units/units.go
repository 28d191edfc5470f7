// Package units converts vehicle speeds between display units
package units

import "strings"

// Unit constants
const (
	KMPH  = "kmph"
	KPH   = "kph"
	MPH   = "mph"
	MPS   = "mps"
	Knots = "knots"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{KMPH, KPH, MPH, MPS, Knots}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertSpeed converts a speed from km/h to the target units.
// OBD and GPS speeds are recorded in km/h.
func ConvertSpeed(kmh float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return kmh / 1.609344
	case MPS:
		return kmh / 3.6
	case Knots:
		return kmh / 1.852
	default:
		return kmh
	}
}

// Label returns the short suffix shown after a converted speed.
func Label(unit string) string {
	switch unit {
	case MPH:
		return "mph"
	case MPS:
		return "m/s"
	case Knots:
		return "kn"
	default:
		return "km/h"
	}
}
