// Package imu reads the inertial unit's ASCII record stream from a serial
// port and emits telemetry.ImuSample events.
package imu

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/banshee-data/cardash/internal/bus"
	"github.com/banshee-data/cardash/internal/monitoring"
	"github.com/banshee-data/cardash/internal/serialport"
	"github.com/banshee-data/cardash/internal/telemetry"
	"github.com/banshee-data/cardash/internal/timeutil"
)

// ErrDeviceLost is returned by Run when the unit could not be opened within
// the configured number of attempts.
var ErrDeviceLost = errors.New("imu: device unavailable, giving up")

// ErrSilent ends a session when a read times out with no data.
var ErrSilent = errors.New("imu: read timed out")

var logf = monitoring.Prefixed("imu")

const (
	simStep  = 2
	simLimit = 64
)

// Config holds the reader settings.
type Config struct {
	// Device is the serial device path. Empty selects simulation.
	Device string

	Port serialport.PortOptions

	Attempts  int
	RetryWait time.Duration
	FailWait  time.Duration

	// SimInterval separates simulated samples.
	SimInterval time.Duration

	Factory serialport.Factory
	Clock   timeutil.Clock
	Ticks   timeutil.TickSource
	Seed    uint64
}

// DefaultConfig returns the settings used in the vehicle. The unit shares the
// dongle's line settings and retry timing.
func DefaultConfig(device string, ticks timeutil.TickSource) Config {
	return Config{
		Device:      device,
		Port:        serialport.DefaultOptions(3100 * time.Millisecond),
		Attempts:    10,
		RetryWait:   2777 * time.Millisecond,
		FailWait:    1777 * time.Millisecond,
		SimInterval: 10 * time.Millisecond,
		Factory:     serialport.RealFactory{},
		Clock:       timeutil.RealClock{},
		Ticks:       ticks,
	}
}

// Reader owns the unit's serial port.
type Reader struct {
	cfg Config
	out bus.Sender[telemetry.Event]
}

// New returns a reader sending to out.
func New(cfg Config, out bus.Sender[telemetry.Event]) *Reader {
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
		cfg.Attempts = 10
	}
	if cfg.SimInterval <= 0 {
		cfg.SimInterval = 10 * time.Millisecond
	}
	return &Reader{cfg: cfg, out: out}
}

// Run reads the unit until ctx is done, the output queue closes or the port
// stays unusable for Attempts consecutive tries. A session that produced at
// least one sample resets the count.
func (r *Reader) Run(ctx context.Context) error {
	if r.cfg.Device == "" {
		logf("no device, simulating")
		return r.simulate(ctx)
	}

	failures := 0
	for {
		port, err := r.cfg.Factory.Open(r.cfg.Device, r.cfg.Port)
		if err != nil {
			failures++
			if failures >= r.cfg.Attempts {
				logf("serial port %s not available, giving up: %v", r.cfg.Device, err)
				return fmt.Errorf("%w: %s: %w", ErrDeviceLost, r.cfg.Device, err)
			}
			logf("serial port %s not available, retrying (%d): %v", r.cfg.Device, failures, err)
			if timeutil.SleepContext(ctx, r.cfg.Clock, r.cfg.RetryWait) != nil {
				return nil
			}
			continue
		}

		n, err := r.session(ctx, port)
		port.Close()
		if n > 0 {
			failures = 0
		} else {
			failures++
		}
		if errors.Is(err, bus.ErrClosed) || ctx.Err() != nil {
			return nil
		}
		logf("session ended after %d samples: %v", n, err)
		if failures >= r.cfg.Attempts {
			return fmt.Errorf("%w: %s: %w", ErrDeviceLost, r.cfg.Device, err)
		}
		if timeutil.SleepContext(ctx, r.cfg.Clock, r.cfg.FailWait) != nil {
			return nil
		}
	}
}

// session reads records until the port fails or goes quiet. It returns the
// number of samples sent.
func (r *Reader) session(ctx context.Context, port serialport.Port) (int, error) {
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer stop()

	var (
		ps   Parser
		buf  = make([]byte, 100)
		sent int
	)
	for {
		n, err := port.Read(buf)
		if err != nil {
			return sent, fmt.Errorf("read: %w", err)
		}
		if n == 0 {
			return sent, ErrSilent
		}
		for _, s := range ps.Feed(buf[:n], r.cfg.Ticks.Ticks()) {
			if err := r.out.Send(s); err != nil {
				return sent, err
			}
			sent++
		}
	}
}

// simulate sends a sample every SimInterval. Each axis is a random walk of
// at most simStep per sample, held within ±simLimit.
func (r *Reader) simulate(ctx context.Context) error {
	seed := r.cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, 0))
	step := func(v *int16) int16 {
		*v = max(-simLimit, min(simLimit, *v+int16(rng.IntN(2*simStep+1)-simStep)))
		return *v
	}
	var mag, acc [3]int16
	var rot [2]int16

	tick := r.cfg.Clock.NewTicker(r.cfg.SimInterval)
	defer tick.Stop()
	for {
		s := telemetry.ImuSample{
			T:   r.cfg.Ticks.Ticks(),
			Mag: [3]int16{step(&mag[0]), step(&mag[1]), step(&mag[2])},
			Acc: [3]int16{step(&acc[0]), step(&acc[1]), step(&acc[2])},
			Rot: [2]int16{step(&rot[0]), step(&rot[1])},
		}
		if err := r.out.Send(s); err != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C():
		}
	}
}
