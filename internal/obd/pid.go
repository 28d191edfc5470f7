package obd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// PID addresses a diagnostic parameter. Mode 01 parameters live at
// 0x100 + the standard PID number. Values at or above MaxPIDs are synthetic
// message kinds that never reach the dongle.
type PID uint16

// Mode 01 parameters polled by the driver.
const (
	MilStatus  PID = 0x101 // monitor status since codes cleared
	FuelStatus PID = 0x103
	EngineLoad PID = 0x104
	Coolant    PID = 0x105
	STrim1     PID = 0x106
	LTrim1     PID = 0x107
	STrim2     PID = 0x108
	LTrim2     PID = 0x109
	RPM        PID = 0x10c
	Speed      PID = 0x10d
	Timing     PID = 0x10e
	AirTemp    PID = 0x10f
	Intake     PID = 0x10f // same address as AirTemp; kept for compatibility with existing data
	MAF        PID = 0x110
	Throttle   PID = 0x111
	Runtime    PID = 0x11f
	MilDist    PID = 0x121
	FuelRailM  PID = 0x122
	FuelRailD  PID = 0x123
	EGR        PID = 0x12c
	EGRError   PID = 0x12d
	Evap       PID = 0x12e
	FuelLevel  PID = 0x12f
	Warmups    PID = 0x130
	Baro       PID = 0x133
	Cat1S1     PID = 0x13c
	Cat2S1     PID = 0x13d
	Cat1S2     PID = 0x13e
	Cat2S2     PID = 0x13f
)

// MaxPIDs is the exclusive ceiling of addressable parameters.
const MaxPIDs PID = 0x180

// Synthetic message kinds carried in ObdSample.PID.
const (
	Battery    PID = 0x181 // battery voltage, tenths of a volt
	Trouble    PID = 0x182 // trouble code; 0 terminates the list
	Capability PID = 0x183 // raw 32-bit capability bitmap
)

var pidNames = map[PID]string{
	MilStatus:  "milstat",
	FuelStatus: "fstatus",
	EngineLoad: "eload",
	Coolant:    "ectemp",
	STrim1:     "sftrim1",
	LTrim1:     "lftrim1",
	STrim2:     "sftrim2",
	LTrim2:     "lftrim2",
	RPM:        "rpm",
	Speed:      "speed",
	Timing:     "timing",
	AirTemp:    "airtemp",
	MAF:        "maflow",
	Throttle:   "throt",
	Runtime:    "runtime",
	MilDist:    "mil",
	FuelRailM:  "fpressm",
	FuelRailD:  "fpressd",
	EGR:        "egr",
	EGRError:   "eegr",
	Evap:       "evap",
	FuelLevel:  "fuel",
	Warmups:    "warmups",
	Baro:       "bpress",
	Cat1S1:     "cata1s1",
	Cat2S1:     "cata2s1",
	Cat1S2:     "cata1s2",
	Cat2S2:     "cata2s2",
	Battery:    "battery",
	Trouble:    "trouble",
	Capability: "capa",
}

var pidByName = func() map[string]PID {
	m := make(map[string]PID, len(pidNames)+1)
	for p, n := range pidNames {
		m[n] = p
	}
	m["intake"] = Intake
	return m
}()

// Addressable reports whether p can be requested from the dongle.
func (p PID) Addressable() bool {
	return p < MaxPIDs
}

// String returns the short parameter name, or the hex address.
func (p PID) String() string {
	if n, ok := pidNames[p]; ok {
		return n
	}
	return fmt.Sprintf("%03x", uint16(p))
}

// ParsePID accepts a parameter name ("rpm") or a hex address ("10c", "0x10c").
func ParsePID(s string) (PID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if p, ok := pidByName[s]; ok {
		return p, nil
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown parameter %q", s)
	}
	return PID(v), nil
}

// Names returns every known parameter name, sorted.
func Names() []string {
	names := make([]string, 0, len(pidByName))
	for n := range pidByName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
