// Package gpsd reads position reports from a local gpsd daemon and emits
// GpsTime and Position events.
package gpsd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/cardash/internal/bus"
	"github.com/banshee-data/cardash/internal/monitoring"
	"github.com/banshee-data/cardash/internal/telemetry"
	"github.com/banshee-data/cardash/internal/timeutil"
)

// ErrUnavailable is returned by Run when the daemon could not be reached
// within the configured number of attempts.
var ErrUnavailable = errors.New("gpsd: daemon unavailable, giving up")

var logf = monitoring.Prefixed("gpsd")

// Watch asks gpsd to stream JSON reports.
const Watch = `?WATCH={"enable":true,"json":true}`

// maxLine bounds a single report line.
const maxLine = 64 * 1024

// Dialer opens the daemon connection.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config holds the client settings.
type Config struct {
	Addr string

	// Attempts is the number of consecutive failed connections tolerated.
	Attempts int

	// RetryWait separates failed connection attempts.
	RetryWait time.Duration

	// SessionPause follows the end of a connection.
	SessionPause time.Duration

	Dialer Dialer
	Clock  timeutil.Clock
	Ticks  timeutil.TickSource
}

// DefaultConfig returns the settings used in the vehicle.
func DefaultConfig(ticks timeutil.TickSource) Config {
	return Config{
		Addr:         "127.0.0.1:2947",
		Attempts:     10,
		RetryWait:    3000 * time.Millisecond,
		SessionPause: 1000 * time.Millisecond,
		Dialer:       &net.Dialer{Timeout: 5 * time.Second},
		Clock:        timeutil.RealClock{},
		Ticks:        ticks,
	}
}

// Client is a gpsd consumer.
type Client struct {
	cfg Config
	out bus.Sender[telemetry.Event]
}

// New returns a client sending to out.
func New(cfg Config, out bus.Sender[telemetry.Event]) *Client {
	if cfg.Dialer == nil {
		cfg.Dialer = &net.Dialer{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Ticks == nil {
		cfg.Ticks = timeutil.NewStopwatch(cfg.Clock)
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 10
	}
	return &Client{cfg: cfg, out: out}
}

// Run connects to gpsd and forwards reports until ctx is done, the output
// queue closes, or the daemon stays unreachable for Attempts consecutive
// tries. A connection that delivered at least one report resets the count.
func (c *Client) Run(ctx context.Context) error {
	failures := 0
	for {
		conn, err := c.cfg.Dialer.DialContext(ctx, "tcp", c.cfg.Addr)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			if failures >= c.cfg.Attempts {
				logf("%s not available, giving up: %v", c.cfg.Addr, err)
				return fmt.Errorf("%w: %w", ErrUnavailable, err)
			}
			logf("%s not available, retrying (%d): %v", c.cfg.Addr, failures, err)
			if timeutil.SleepContext(ctx, c.cfg.Clock, c.cfg.RetryWait) != nil {
				return nil
			}
			continue
		}

		reports, err := c.session(ctx, conn)
		if reports > 0 {
			failures = 0
		} else {
			failures++
		}
		if errors.Is(err, bus.ErrClosed) || ctx.Err() != nil {
			return nil
		}
		logf("session ended after %d reports: %v", reports, err)
		if failures >= c.cfg.Attempts {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		if timeutil.SleepContext(ctx, c.cfg.Clock, c.cfg.SessionPause) != nil {
			return nil
		}
	}
}

// session subscribes and reads lines until the connection fails. It returns
// the number of reports forwarded.
func (c *Client) session(ctx context.Context, conn net.Conn) (int, error) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	if _, err := conn.Write([]byte(Watch)); err != nil {
		return 0, fmt.Errorf("watch: %w", err)
	}

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), maxLine)
	reports := 0
	for sc.Scan() {
		fix, err := ParseLine(sc.Text(), c.cfg.Ticks.Ticks())
		if errors.Is(err, ErrIgnored) {
			continue
		}
		if err != nil {
			logf("%v", err)
			continue
		}
		if err := c.out.Send(fix.Time); err != nil {
			return reports, err
		}
		if err := c.out.Send(fix.Position); err != nil {
			return reports, err
		}
		reports++
	}
	if err := sc.Err(); err != nil {
		return reports, err
	}
	return reports, errors.New("connection closed by gpsd")
}
