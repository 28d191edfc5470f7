package units

import (
	"math"
	"testing"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"valid kmph", KMPH, true},
		{"valid kph", KPH, true},
		{"valid mph", MPH, true},
		{"valid mps", MPS, true},
		{"valid knots", Knots, true},
		{"invalid unit", "furlongs", false},
		{"empty unit", "", false},
		{"uppercase MPH", "MPH", false}, // Case-sensitive
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.unit); got != tt.expected {
				t.Errorf("IsValid(%s) = %v, want %v", tt.unit, got, tt.expected)
			}
		})
	}
}

func TestGetValidUnitsString(t *testing.T) {
	expected := "kmph, kph, mph, mps, knots"
	if got := GetValidUnitsString(); got != expected {
		t.Errorf("GetValidUnitsString() = %s, want %s", got, expected)
	}
}

func TestConvertSpeed(t *testing.T) {
	tests := []struct {
		name     string
		kmh      float64
		unit     string
		expected float64
	}{
		{"0 km/h to mph", 0, MPH, 0},
		{"100 km/h to mph", 100, MPH, 62.1371},
		{"36 km/h to mps", 36, MPS, 10},
		{"18.52 km/h to knots", 18.52, Knots, 10},
		{"49 km/h to kmph", 49, KMPH, 49},
		{"49 km/h to kph", 49, KPH, 49},
		{"unknown unit leaves km/h", 49, "furlongs", 49},
		{"negative sentinel passes through", -1, KMPH, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertSpeed(tt.kmh, tt.unit)
			if math.Abs(got-tt.expected) > 0.0001 {
				t.Errorf("ConvertSpeed(%f, %s) = %f, want %f", tt.kmh, tt.unit, got, tt.expected)
			}
		})
	}
}

func TestLabel(t *testing.T) {
	for unit, want := range map[string]string{KMPH: "km/h", KPH: "km/h", MPH: "mph", MPS: "m/s", Knots: "kn", "": "km/h"} {
		if got := Label(unit); got != want {
			t.Errorf("Label(%q) = %q, want %q", unit, got, want)
		}
	}
}
