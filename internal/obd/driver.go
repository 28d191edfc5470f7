// Package obd drives an ELM327-compatible OBD-II dongle over a serial port
// and emits decoded parameters as telemetry.ObdSample events.
package obd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/cardash/internal/bus"
	"github.com/banshee-data/cardash/internal/monitoring"
	"github.com/banshee-data/cardash/internal/serialport"
	"github.com/banshee-data/cardash/internal/telemetry"
	"github.com/banshee-data/cardash/internal/timeutil"
)

// ErrDeviceLost is returned by Run when the device could not be opened within
// the configured number of attempts.
var ErrDeviceLost = errors.New("obd: device unavailable, giving up")

// errSessionEnded marks an orderly end of a session that should be followed
// by a reconnect.
var errSessionEnded = errors.New("obd: session ended")

const (
	// DefaultTimeout bounds every serial read and write.
	DefaultTimeout = 3100 * time.Millisecond
	// DefaultRetryWait separates attempts to open the port.
	DefaultRetryWait = 2777 * time.Millisecond
	// DefaultFailWait is the cooldown after a session ends.
	DefaultFailWait = 1777 * time.Millisecond
	// DefaultAttempts is the number of consecutive failed opens tolerated.
	DefaultAttempts = 10

	batteryEvery = 5
)

var configCommands = []string{
	"ate0\n",  // echo off
	"atsp0\n", // protocol auto
	"ats0\n",  // no spaces
	"atal\n",  // allow long messages
	"ath0\n",  // headers off
	"atd0\n",  // no DLC
}

// Config holds the driver settings and its injectable dependencies.
type Config struct {
	// Device is the serial device path. Empty selects simulation.
	Device string

	// Port holds the line settings. Defaults to 115200 8N1.
	Port serialport.PortOptions

	// Attempts is the number of consecutive failed opens before giving up.
	Attempts int

	RetryWait   time.Duration
	FailWait    time.Duration
	WakeSettle  time.Duration
	ResetSettle time.Duration

	Factory serialport.Factory
	Clock   timeutil.Clock
	Ticks   timeutil.TickSource

	// Seed makes the simulator deterministic. Zero picks a random seed.
	Seed uint64
}

// DefaultConfig returns the settings used in the vehicle.
func DefaultConfig(device string, ticks timeutil.TickSource) Config {
	return Config{
		Device:      device,
		Port:        serialport.DefaultOptions(DefaultTimeout),
		Attempts:    DefaultAttempts,
		RetryWait:   DefaultRetryWait,
		FailWait:    DefaultFailWait,
		WakeSettle:  300 * time.Millisecond,
		ResetSettle: 700 * time.Millisecond,
		Factory:     serialport.RealFactory{},
		Clock:       timeutil.RealClock{},
		Ticks:       ticks,
	}
}

// Driver owns one dongle connection at a time.
type Driver struct {
	cfg  Config
	out  bus.Sender[telemetry.Event]
	id   string // session id, distinguishes restarts in the log
	logf func(format string, v ...interface{})
}

// New returns a driver sending to out.
func New(cfg Config, out bus.Sender[telemetry.Event]) *Driver {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Ticks == nil {
		cfg.Ticks = timeutil.NewStopwatch(cfg.Clock)
	}
	if cfg.Factory == nil {
		cfg.Factory = serialport.RealFactory{}
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	id := uuid.NewString()[:8]
	return &Driver{cfg: cfg, out: out, id: id, logf: monitoring.Prefixed("obd[" + id + "]")}
}

// Run drives the dongle until ctx is done, the output queue is closed or the
// device cannot be opened any more. It returns nil in the first two cases
// and ErrDeviceLost in the last.
func (d *Driver) Run(ctx context.Context) error {
	if d.cfg.Device == "" {
		d.logf("no device, simulating")
		return d.simulate(ctx)
	}

	failures := 0
	for {
		port, err := d.cfg.Factory.Open(d.cfg.Device, d.cfg.Port)
		if err != nil {
			failures++
			if failures >= d.cfg.Attempts {
				d.logf("serial port %s not available, giving up: %v", d.cfg.Device, err)
				return fmt.Errorf("%w: %s: %w", ErrDeviceLost, d.cfg.Device, err)
			}
			d.logf("serial port %s not available, retrying (%d): %v", d.cfg.Device, failures, err)
			if err := timeutil.SleepContext(ctx, d.cfg.Clock, d.cfg.RetryWait); err != nil {
				return nil
			}
			continue
		}

		polled, err := d.session(ctx, port)
		if cerr := port.Close(); cerr != nil {
			d.logf("closing %s: %v", d.cfg.Device, cerr)
		}
		if polled {
			failures = 0
		} else {
			failures++
		}
		switch {
		case errors.Is(err, bus.ErrClosed), ctx.Err() != nil:
			return nil
		case failures >= d.cfg.Attempts:
			d.logf("dongle never became ready, giving up: %v", err)
			return fmt.Errorf("%w: %s: %w", ErrDeviceLost, d.cfg.Device, err)
		}
		d.logf("session ended, reconnecting: %v", err)

		if err := timeutil.SleepContext(ctx, d.cfg.Clock, d.cfg.FailWait); err != nil {
			return nil
		}
	}
}

// session state, rebuilt from scratch on every connection.
type session struct {
	d     *Driver
	link  *link
	capa  Capabilities
	rpm   int32
	crash bool
}

// session initialises the dongle and polls it until something fails. polled
// reports whether the poll loop was reached.
func (d *Driver) session(ctx context.Context, port serialport.Port) (polled bool, err error) {
	s := &session{d: d, link: newLink(port)}

	if err := s.reset(ctx); err != nil {
		return false, err
	}
	if err := s.configure(); err != nil {
		return false, err
	}
	s.identify()
	if err := s.discover(); err != nil {
		return false, err
	}
	if err := s.troubles(); err != nil {
		return false, err
	}
	return true, s.poll(ctx)
}

func (s *session) send(p PID, val int32) error {
	return s.d.out.Send(telemetry.ObdSample{T: s.d.cfg.Ticks.Ticks(), PID: uint32(p), Val: val})
}

// reset wakes the dongle and restarts its firmware. The replies carry no
// information; only a dead link is an error.
func (s *session) reset(ctx context.Context) error {
	if _, err := s.link.command("\n"); errors.Is(err, ErrLink) {
		return err
	}
	if err := timeutil.SleepContext(ctx, s.d.cfg.Clock, s.d.cfg.WakeSettle); err != nil {
		return err
	}
	if _, err := s.link.command("atz\n"); errors.Is(err, ErrLink) {
		return err
	}
	return timeutil.SleepContext(ctx, s.d.cfg.Clock, s.d.cfg.ResetSettle)
}

func (s *session) configure() error {
	for _, cmd := range configCommands {
		if err := s.link.expectOK(cmd); err != nil {
			return fmt.Errorf("dongle configuration: %w", err)
		}
	}
	return nil
}

// identify logs the VIN and calibration id when the vehicle reports them.
func (s *session) identify() {
	if vin, err := s.link.multi("0902\n"); err == nil && vin != "" {
		s.d.logf("vin %s", decodeASCII(vin))
	}
	if cal, err := s.link.multi("0904\n"); err == nil && cal != "" {
		s.d.logf("calibration %s", decodeASCII(cal))
	}
}

// discover queries the four "supported PIDs" bitmaps. A group whose query
// fails keeps its defaults. RPM is always marked capable afterwards so that a
// disconnected dongle is noticed on the first poll.
func (s *session) discover() error {
	var carry uint32
	for q := PID(0x100); q < MaxPIDs; q += GroupSize {
		bitmap, err := s.link.pid(q, 4)
		if err != nil {
			if errors.Is(err, ErrLink) {
				return err
			}
			s.d.logf("capabilities at %03x: %v", uint16(q), err)
			_ = s.capa.Set(q, carry == 1)
			carry = 0
			continue
		}
		word, next := alignBitmap(carry, bitmap)
		if err := s.capa.MarkGroup(q, word); err != nil {
			return err
		}
		carry = next
		if err := s.send(Capability, int32(bitmap)); err != nil {
			return err
		}
	}
	_ = s.capa.Set(RPM, true)
	s.d.logf("%d parameters supported", s.capa.Count())
	return nil
}

// troubles reads stored trouble codes and emits them followed by a zero
// terminator.
func (s *session) troubles() error {
	r, err := s.link.command("03\n")
	if errors.Is(err, ErrLink) {
		return err
	}
	for _, code := range troubleCodes(r) {
		s.d.logf("trouble code %04d", code)
		if err := s.send(Trouble, code); err != nil {
			return err
		}
	}
	return s.send(Trouble, 0)
}

func (s *session) poll(ctx context.Context) error {
	if err := s.emit(milStatusParam); err != nil {
		return err
	}

	batWait := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if batWait == 0 {
			v, err := s.link.numeric("atrv\n")
			if err != nil {
				return fmt.Errorf("battery: %w", err)
			}
			if err := s.send(Battery, int32(v*10)); err != nil {
				return err
			}
		}
		batWait = (batWait + 1) % batteryEvery

		if s.crash {
			return errSessionEnded
		}

		for _, group := range runningGroups {
			if err := s.emitAll(basicParams); err != nil {
				return err
			}
			if s.rpm > 0 {
				if err := s.emitAll(group); err != nil {
					return err
				}
			}
		}
	}
}

func (s *session) emitAll(params []param) error {
	for _, p := range params {
		if err := s.emit(p); err != nil {
			return err
		}
	}
	return nil
}

// emit reads one capable parameter and sends its scaled value. Read errors
// are dropped, except that a failed RPM read or a broken link flags the
// session as crashed. Only a closed output queue is returned.
func (s *session) emit(p param) error {
	if !s.capa.Has(p.pid) {
		return nil
	}
	raw, err := s.link.pid(p.pid, p.bytes)
	if err != nil {
		if p.pid == RPM || errors.Is(err, ErrLink) {
			if !s.crash {
				s.d.logf("%s: %v", p.pid, err)
			}
			s.crash = true
		}
		return nil
	}
	val := p.scale(raw)
	if p.pid == RPM {
		s.rpm = val
	}
	return s.send(p.pid, val)
}
