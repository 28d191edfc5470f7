package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cardash/internal/bus"
	"github.com/banshee-data/cardash/internal/monitoring"
	"github.com/banshee-data/cardash/internal/obd"
	"github.com/banshee-data/cardash/internal/telemetry"
	"github.com/banshee-data/cardash/internal/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

type fakeSink struct {
	mu       sync.Mutex
	shown    []telemetry.Event
	troubles []int32
}

func (s *fakeSink) Show(ev telemetry.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = append(s.shown, ev)
}

func (s *fakeSink) ShowTrouble(code int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.troubles = append(s.troubles, code)
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.shown)
}

type capture struct {
	mu     sync.Mutex
	events []telemetry.Event
	err    error
	calls  int
}

func (c *capture) Send(ev telemetry.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func trouble(code int32) telemetry.ObdSample {
	return telemetry.ObdSample{T: 1, PID: uint32(obd.Trouble), Val: code}
}

func testConfig() (Config, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	clock.SetAutoAdvance(true)
	cfg := DefaultConfig()
	cfg.Clock = clock
	return cfg, clock
}

func fill(events ...telemetry.Event) *bus.Queue[telemetry.Event] {
	q := bus.New[telemetry.Event]()
	for _, ev := range events {
		q.Send(ev)
	}
	q.Close()
	return q
}

func TestRun_TroubleCodePreamble(t *testing.T) {
	rpm := telemetry.ObdSample{T: 6, PID: uint32(obd.RPM), Val: 8000}
	events := []telemetry.Event{
		telemetry.GpsTime{T: 1, Alt: -1, Track: -1, Speed: -1},
		trouble(103),
		telemetry.ImuSample{T: 2},
		trouble(217),
		trouble(0),
		rpm,
	}
	cfg, clock := testConfig()
	sink, out := &fakeSink{}, &capture{}

	require.NoError(t, New(cfg, fill(events...), out, sink).Run(context.Background()))

	assert.Equal(t, []int32{103, 217}, sink.troubles)
	assert.Equal(t, []telemetry.Event{rpm}, sink.shown, "the dashboard starts after the terminator")
	assert.Equal(t, events, out.events, "everything is forwarded in order")
	assert.Equal(t, []time.Duration{7 * time.Second}, clock.Sleeps())
}

func TestRun_NoTroubleCodesNoHold(t *testing.T) {
	cfg, clock := testConfig()
	sink, out := &fakeSink{}, &capture{}
	imu := telemetry.ImuSample{T: 3}

	require.NoError(t, New(cfg, fill(trouble(0), imu), out, sink).Run(context.Background()))
	assert.Empty(t, sink.troubles)
	assert.Equal(t, []telemetry.Event{imu}, sink.shown)
	assert.Len(t, out.events, 2)
	assert.Empty(t, clock.Sleeps())
}

func TestRun_PersistenceGoneKeepsDisplay(t *testing.T) {
	cfg, _ := testConfig()
	sink := &fakeSink{}
	out := &capture{err: bus.ErrClosed}
	events := []telemetry.Event{trouble(0), telemetry.ImuSample{T: 1}, telemetry.ImuSample{T: 2}, telemetry.UserNotice{}}

	require.NoError(t, New(cfg, fill(events...), out, sink).Run(context.Background()))
	assert.Len(t, sink.shown, 3)
	assert.Equal(t, 1, out.calls, "a closed persistence queue is not retried")
}

func TestRun_EndPreamble(t *testing.T) {
	cfg, _ := testConfig()
	sink, out := &fakeSink{}, &capture{}
	in := bus.New[telemetry.Event]()
	require.NoError(t, in.Send(telemetry.ImuSample{T: 1}))

	d := New(cfg, in, out, sink)
	d.EndPreamble()
	d.EndPreamble()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return out.count() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, in.Send(telemetry.ImuSample{T: 2}))
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 2, out.count())
}

func TestRun_ContextCancelledDuringPreamble(t *testing.T) {
	cfg, _ := testConfig()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(cfg, bus.New[telemetry.Event](), &capture{}, &fakeSink{}).Run(ctx)
	assert.NoError(t, err)
}
