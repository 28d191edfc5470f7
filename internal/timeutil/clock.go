// Package timeutil provides an injectable clock for the sensor producers and
// the persistence engine, so they can be tested without real waits.
package timeutil

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source of every component that sleeps or measures.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	Sleep(d time.Duration)
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers the time every interval until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// SleepContext waits for d on c. It returns ctx.Err() if ctx ends first, so
// retry waits in the producers stop promptly on shutdown.
func SleepContext(ctx context.Context, c Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.After(d):
		return nil
	}
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration        { return time.Since(t) }
func (RealClock) Sleep(d time.Duration)                  { time.Sleep(d) }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// MockClock only moves when told to.
//
// Sleep and After record the requested duration. Time moves when the test
// calls Advance, which fires every timer that came due. With
// SetAutoAdvance(true) each Sleep or After advances the clock itself, so a
// retry loop with long waits runs to completion at once.
type MockClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	timers []*mockTimer
	auto   bool
}

// mockTimer backs both After (period 0, fires once) and NewTicker.
type mockTimer struct {
	ch      chan time.Time
	due     time.Time
	period  time.Duration
	stopped bool
}

// NewMockClock returns a clock reading t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// SetAutoAdvance controls whether Sleep and After advance the clock.
func (c *MockClock) SetAutoAdvance(on bool) {
	c.mu.Lock()
	c.auto = on
	c.mu.Unlock()
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Advance moves the clock forward by d. One-shot timers that came due fire
// and are dropped; tickers fire once and are rescheduled from now. Sends
// never block: a ticker whose last tick was not read skips this one.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	var fire []*mockTimer
	kept := c.timers[:0]
	for _, t := range c.timers {
		if t.stopped {
			continue
		}
		if now.Before(t.due) {
			kept = append(kept, t)
			continue
		}
		fire = append(fire, t)
		if t.period > 0 {
			t.due = now.Add(t.period)
			kept = append(kept, t)
		}
	}
	c.timers = kept
	c.mu.Unlock()

	for _, t := range fire {
		select {
		case t.ch <- now:
		default:
		}
	}
}

// Sleep records d and returns immediately, advancing the clock in auto mode.
func (c *MockClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	auto := c.auto
	c.mu.Unlock()

	if auto {
		c.Advance(d)
	}
}

// Sleeps returns every duration passed to Sleep and After, in call order.
func (c *MockClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// After returns a channel that receives the time once the clock has been
// advanced by d.
func (c *MockClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	t := &mockTimer{ch: make(chan time.Time, 1), due: c.now.Add(d)}
	c.timers = append(c.timers, t)
	auto := c.auto
	c.mu.Unlock()

	if auto {
		c.Advance(d)
	}
	return t.ch
}

// NewTicker returns a ticker driven by Advance.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTimer{ch: make(chan time.Time, 1), due: c.now.Add(d), period: d}
	c.timers = append(c.timers, t)
	return &mockTicker{clock: c, t: t}
}

type mockTicker struct {
	clock *MockClock
	t     *mockTimer
}

func (m *mockTicker) C() <-chan time.Time { return m.t.ch }

func (m *mockTicker) Stop() {
	m.clock.mu.Lock()
	m.t.stopped = true
	m.clock.mu.Unlock()
}
