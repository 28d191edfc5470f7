package display

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/cardash/internal/obd"
	"github.com/banshee-data/cardash/internal/telemetry"
	"github.com/banshee-data/cardash/internal/timeutil"
	"github.com/banshee-data/cardash/internal/units"
)

type lines []string

func (l *lines) logf(format string, v ...interface{}) {
	*l = append(*l, fmt.Sprintf(format, v...))
}

func newTestConsole() (*Console, *timeutil.MockClock, *lines) {
	clock := timeutil.NewMockClock(time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC))
	out := &lines{}
	cfg := DefaultConfig()
	cfg.Clock = clock
	cfg.Logf = out.logf
	return NewConsole(cfg), clock, out
}

func obdSample(p obd.PID, v int32) telemetry.ObdSample {
	return telemetry.ObdSample{PID: uint32(p), Val: v}
}

func TestConsole_EmptyLine(t *testing.T) {
	c, _, _ := newTestConsole()
	assert.Equal(t,
		"rpm - | speed - | throt - | eload - | fstatus - | airtemp - | ectemp - | sftrim1 - | lftrim1 - | egr - | battery - | gps -",
		c.Line())
}

func TestConsole_Values(t *testing.T) {
	c, _, _ := newTestConsole()
	for _, ev := range []telemetry.Event{
		obdSample(obd.RPM, 17260),
		obdSample(obd.Speed, 500),
		obdSample(obd.Throttle, 251),
		obdSample(obd.EngineLoad, 0),
		obdSample(obd.FuelStatus, 0x0200),
		obdSample(obd.AirTemp, -50),
		obdSample(obd.Coolant, 900),
		obdSample(obd.STrim1, -16),
		obdSample(obd.LTrim1, 8),
		obdSample(obd.EGR, 1000),
		obdSample(obd.Battery, 125),
		obdSample(obd.Trouble, 103),
		obdSample(obd.Capability, -1),
		telemetry.GpsTime{Speed: 49, Alt: -1, Track: -1},
		telemetry.NoFix(0),
		telemetry.ImuSample{Acc: [3]int16{1, 2, 3}, Rot: [2]int16{-4, 5}},
		telemetry.UserNotice{Synced: true},
	} {
		c.Show(ev)
	}
	assert.Equal(t,
		"rpm 1726 | speed 50 km/h | throt 25.1% | eload 0.0% | fstatus closed | airtemp -5° | ectemp 90° | "+
			"sftrim1 -1.6 | lftrim1 0.8 | egr 100.0% | battery 12.5 V | gps 49 km/h | acc 2,1 rot -4,5 | Sync",
		c.Line())

	c.Show(telemetry.NewPosition(0, 45, 9))
	c.Show(obdSample(obd.Speed, 0))
	c.Show(telemetry.GpsTime{Speed: -1})
	assert.Contains(t, c.Line(), "speed stopped")
	assert.Contains(t, c.Line(), "gps - |")
	assert.Contains(t, c.Line(), "| GPS")
}

func TestConsole_NaNPositionHasNoFix(t *testing.T) {
	c, _, _ := newTestConsole()
	c.Show(telemetry.Position{Lat: math.NaN(), Lon: math.NaN()})
	assert.NotContains(t, c.Line(), "GPS")
}

func TestConsole_RateLimit(t *testing.T) {
	c, clock, out := newTestConsole()

	c.Show(obdSample(obd.RPM, 8000))
	c.Show(obdSample(obd.RPM, 9000))
	assert.Len(t, *out, 1)

	clock.Advance(999 * time.Millisecond)
	c.Show(obdSample(obd.RPM, 10000))
	assert.Len(t, *out, 1)

	clock.Advance(time.Millisecond)
	c.Show(obdSample(obd.RPM, 11000))
	assert.Len(t, *out, 2)
	assert.Contains(t, (*out)[1], "rpm 1100")

	c.Show(telemetry.UserNotice{Synced: true})
	assert.Len(t, *out, 3, "sync indicator changes are printed at once")
	c.Show(telemetry.UserNotice{Synced: true})
	assert.Len(t, *out, 3)
}

func TestConsole_Units(t *testing.T) {
	clock := timeutil.NewMockClock(time.Now())
	cfg := DefaultConfig()
	cfg.Clock = clock
	cfg.Logf = func(string, ...interface{}) {}
	cfg.Units = units.MPH
	c := NewConsole(cfg)

	c.Show(obdSample(obd.Speed, 1000))
	assert.Contains(t, c.Line(), "speed 62 mph")

	cfg.Units = "parsecs"
	assert.Contains(t, NewConsole(cfg).Line(), "speed -")
}

func TestConsole_ShowTrouble(t *testing.T) {
	c, _, out := newTestConsole()
	c.ShowTrouble(103)
	assert.Equal(t, lines{"ATTENTION: trouble code P0103"}, *out)
	assert.Equal(t, "P9999", TroubleCode(9999))
}
