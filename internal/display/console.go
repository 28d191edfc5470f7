// Package display renders the live dashboard as a status line in the process
// log.
package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/cardash/internal/monitoring"
	"github.com/banshee-data/cardash/internal/obd"
	"github.com/banshee-data/cardash/internal/telemetry"
	"github.com/banshee-data/cardash/internal/timeutil"
	"github.com/banshee-data/cardash/internal/units"
)

// Config holds the console settings.
type Config struct {
	// Every is the minimum time between two status lines.
	Every time.Duration

	// Units selects the speed unit, one of units.ValidUnits.
	Units string

	Clock timeutil.Clock
	Logf  func(format string, v ...interface{})
}

// DefaultConfig returns one line per second in km/h.
func DefaultConfig() Config {
	return Config{
		Every: time.Second,
		Units: units.KMPH,
		Clock: timeutil.RealClock{},
	}
}

// shown lists the parameters on the status line, in order.
var shown = []obd.PID{
	obd.RPM, obd.Speed, obd.Throttle, obd.EngineLoad, obd.FuelStatus,
	obd.AirTemp, obd.Coolant, obd.STrim1, obd.LTrim1, obd.EGR, obd.Battery,
}

// Console keeps the latest value of everything it is shown. It is used from
// the dispatcher goroutine only.
type Console struct {
	cfg Config

	obd      map[obd.PID]int32
	gpsSpeed int32
	fix      bool
	synced   bool
	acc      [3]int16
	rot      [2]int16
	haveImu  bool // acc and rot are valid

	last     time.Time
	rendered bool
}

// NewConsole returns an empty console.
func NewConsole(cfg Config) *Console {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Logf == nil {
		cfg.Logf = monitoring.Logf
	}
	if !units.IsValid(cfg.Units) {
		cfg.Units = units.KMPH
	}
	return &Console{cfg: cfg, obd: make(map[obd.PID]int32), gpsSpeed: -1}
}

// ShowTrouble announces a stored trouble code.
func (c *Console) ShowTrouble(code int32) {
	c.cfg.Logf("ATTENTION: trouble code %s", TroubleCode(code))
}

// TroubleCode formats a decoded trouble code the way it is printed on the
// vehicle's documentation.
func TroubleCode(code int32) string {
	return fmt.Sprintf("P%04d", code)
}

// Show records ev and prints a status line if the last one is old enough.
// A change of the sync indicator is printed at once.
func (c *Console) Show(ev telemetry.Event) {
	force := false
	switch e := ev.(type) {
	case telemetry.ObdSample:
		p := obd.PID(e.PID)
		if p == obd.Trouble || p == obd.Capability {
			return
		}
		c.obd[p] = e.Val
	case telemetry.GpsTime:
		c.gpsSpeed = e.Speed
	case telemetry.Position:
		c.fix = e.Fix
	case telemetry.ImuSample:
		c.acc, c.rot, c.haveImu = e.Acc, e.Rot, true
	case telemetry.UserNotice:
		force = c.synced != e.Synced
		c.synced = e.Synced
	}

	now := c.cfg.Clock.Now()
	if !force && c.rendered && now.Sub(c.last) < c.cfg.Every {
		return
	}
	c.last, c.rendered = now, true
	c.cfg.Logf("%s", c.Line())
}

// Line renders the current state. Missing values print as "-".
func (c *Console) Line() string {
	var b strings.Builder
	for i, p := range shown {
		if i > 0 {
			b.WriteString(" | ")
		}
		b.WriteString(c.field(p))
	}

	b.WriteString(" | gps ")
	if c.gpsSpeed < 0 {
		b.WriteString("-")
	} else {
		b.WriteString(c.speed(c.gpsSpeed * 10))
	}

	if c.haveImu {
		fmt.Fprintf(&b, " | acc %d,%d rot %d,%d", c.acc[1], c.acc[0], c.rot[0], c.rot[1])
	}
	if c.synced {
		b.WriteString(" | Sync")
	}
	if c.fix {
		b.WriteString(" | GPS")
	}
	return b.String()
}

func (c *Console) field(p obd.PID) string {
	v, ok := c.obd[p]
	label := p.String()
	if !ok {
		return label + " -"
	}
	switch p {
	case obd.RPM:
		return fmt.Sprintf("%s %d", label, v/10)
	case obd.Speed:
		if v == 0 {
			return label + " stopped"
		}
		return label + " " + c.speed(v)
	case obd.Throttle, obd.EngineLoad, obd.EGR:
		return fmt.Sprintf("%s %s%%", label, tenths(v))
	case obd.AirTemp, obd.Coolant:
		return fmt.Sprintf("%s %d°", label, v/10)
	case obd.Battery:
		return fmt.Sprintf("%s %s V", label, tenths(v))
	case obd.FuelStatus:
		return label + " " + fuelStatus(v)
	default:
		return fmt.Sprintf("%s %s", label, tenths(v))
	}
}

// speed formats a speed given in tenths of km/h.
func (c *Console) speed(v int32) string {
	s := units.ConvertSpeed(float64(v)/10, c.cfg.Units)
	return fmt.Sprintf("%.0f %s", s, units.Label(c.cfg.Units))
}

// fuelStatus decodes the first fuel system's status byte.
func fuelStatus(v int32) string {
	switch v >> 8 {
	case 0x01:
		return "open"
	case 0x02:
		return "closed"
	case 0x04:
		return "cut"
	case 0x08:
		return "fault"
	default:
		return "-"
	}
}

func tenths(v int32) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	return fmt.Sprintf("%s%d.%d", sign, v/10, v%10)
}
