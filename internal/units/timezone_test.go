package units

import (
	"testing"
	"time"
)

func TestIsTimezoneValid(t *testing.T) {
	tests := []struct {
		name     string
		timezone string
		expected bool
	}{
		{"valid UTC", "UTC", true},
		{"valid Rome", "Europe/Rome", true},
		{"invalid", "Invalid/Timezone", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := IsTimezoneValid(tt.timezone); res != tt.expected {
				t.Errorf("IsTimezoneValid(%s) = %v, want %v", tt.timezone, res, tt.expected)
			}
		})
	}
}

func TestLocation(t *testing.T) {
	for _, tz := range []string{"", "Local"} {
		loc, err := Location(tz)
		if err != nil || loc != time.Local {
			t.Errorf("Location(%q) = %v, %v; want time.Local", tz, loc, err)
		}
	}
	if _, err := Location("Invalid/Timezone"); err == nil {
		t.Error("expected error for an unknown zone")
	}
}
