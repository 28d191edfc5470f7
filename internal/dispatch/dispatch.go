// Package dispatch is the main loop of the dashboard: it receives every
// producer event, shows it and forwards it unchanged to persistence.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/cardash/internal/bus"
	"github.com/banshee-data/cardash/internal/monitoring"
	"github.com/banshee-data/cardash/internal/obd"
	"github.com/banshee-data/cardash/internal/telemetry"
	"github.com/banshee-data/cardash/internal/timeutil"
)

var logf = monitoring.Prefixed("dispatch")

// Sink renders events. It is called from the dispatcher goroutine only.
type Sink interface {
	Show(ev telemetry.Event)
	ShowTrouble(code int32)
}

// Config holds the dispatcher settings.
type Config struct {
	// TroubleHold keeps trouble codes on screen before the dashboard starts.
	TroubleHold time.Duration
	Clock       timeutil.Clock
}

// DefaultConfig returns the settings used in the vehicle.
func DefaultConfig() Config {
	return Config{TroubleHold: 7 * time.Second, Clock: timeutil.RealClock{}}
}

// Dispatcher connects the producer queue to the display and persistence.
type Dispatcher struct {
	cfg  Config
	in   *bus.Queue[telemetry.Event]
	out  bus.Sender[telemetry.Event]
	sink Sink

	release     chan struct{}
	releaseOnce sync.Once
	outLost     bool
}

// New returns a dispatcher reading in and forwarding to out.
func New(cfg Config, in *bus.Queue[telemetry.Event], out bus.Sender[telemetry.Event], sink Sink) *Dispatcher {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Dispatcher{cfg: cfg, in: in, out: out, sink: sink, release: make(chan struct{})}
}

// EndPreamble starts the dashboard without waiting for the end of the
// trouble code list. It is used when the OBD driver stops before sending
// it, and is safe to call from any goroutine.
func (d *Dispatcher) EndPreamble() {
	d.releaseOnce.Do(func() { close(d.release) })
}

// Run dispatches until ctx is done or the input queue is closed and drained.
func (d *Dispatcher) Run(ctx context.Context) error {
	shown, err := d.preamble(ctx)
	if err != nil {
		return nil
	}
	if shown > 0 {
		if timeutil.SleepContext(ctx, d.cfg.Clock, d.cfg.TroubleHold) != nil {
			return nil
		}
	}

	for {
		ev, err := d.in.Recv(ctx)
		if err != nil {
			return nil
		}
		d.sink.Show(ev)
		d.forward(ev)
	}
}

// preamble forwards events while waiting for the trouble code terminator,
// showing each code on the way. It returns the number of codes shown.
func (d *Dispatcher) preamble(ctx context.Context) (int, error) {
	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-d.release:
			cancel()
		case <-pctx.Done():
		}
	}()

	shown := 0
	for {
		ev, err := d.in.Recv(pctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, bus.ErrClosed) {
				logf("no trouble code list, starting dashboard")
				return shown, nil
			}
			return shown, err
		}
		d.forward(ev)

		s, ok := ev.(telemetry.ObdSample)
		if !ok || obd.PID(s.PID) != obd.Trouble {
			continue
		}
		if s.Val == 0 {
			return shown, nil
		}
		d.sink.ShowTrouble(s.Val)
		shown++
	}
}

func (d *Dispatcher) forward(ev telemetry.Event) {
	if d.outLost {
		return
	}
	if err := d.out.Send(ev); err != nil {
		logf("persistence stopped, display only: %v", err)
		d.outLost = true
	}
}
