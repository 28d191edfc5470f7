package timeutil

import "time"

// TickSource yields the free-running producer timestamp stored in every
// persisted event.
type TickSource interface {
	Ticks() uint32
}

// Stopwatch measures time since it was started. Its tick counter is the
// number of microseconds since start, truncated to 32 bits, so it wraps
// roughly every 71 minutes. Consumers only compare ticks within one
// producer's stream.
type Stopwatch struct {
	clock Clock
	start time.Time
}

// NewStopwatch starts a stopwatch on c.
func NewStopwatch(c Clock) *Stopwatch {
	return &Stopwatch{clock: c, start: c.Now()}
}

// Start returns the instant the stopwatch was started.
func (s *Stopwatch) Start() time.Time { return s.start }

// Elapsed returns the time since start.
func (s *Stopwatch) Elapsed() time.Duration {
	return s.clock.Since(s.start)
}

// Ticks returns the elapsed microseconds, wrapping at 2^32.
func (s *Stopwatch) Ticks() uint32 {
	return uint32(s.Elapsed().Microseconds())
}
