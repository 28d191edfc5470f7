package imu

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cardash/internal/bus"
	"github.com/banshee-data/cardash/internal/monitoring"
	"github.com/banshee-data/cardash/internal/serialport"
	"github.com/banshee-data/cardash/internal/telemetry"
	"github.com/banshee-data/cardash/internal/testutil"
	"github.com/banshee-data/cardash/internal/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

const (
	rec1 = "A\t11188\t623\t569\t647\t507\t526\t792\t600\t437\t539\tZ\n"
	rec2 = "A\t11189\t622\t570\t649\t507\t526\t794\t599\t437\t539\tZ\n"
)

var (
	want1 = telemetry.ImuSample{T: 9, Mag: [3]int16{111, 57, 135}, Acc: [3]int16{-5, 14, 280}, Rot: [2]int16{-2, 3}}
	want2 = telemetry.ImuSample{T: 9, Mag: [3]int16{110, 58, 137}, Acc: [3]int16{-5, 14, 282}, Rot: [2]int16{-3, 3}}
)

func TestParser_Records(t *testing.T) {
	var ps Parser
	got := ps.Feed([]byte(rec1+rec2), 9)
	assert.Equal(t, []telemetry.ImuSample{want1, want2}, got)
}

func TestParser_SplitAndNoise(t *testing.T) {
	var ps Parser
	stream := []byte("623\t569 Z\n\xff\xfe" + rec1[:20] + "\x80" + rec1[20:])

	var got []telemetry.ImuSample
	for i := range stream {
		got = append(got, ps.Feed(stream[i:i+1], 9)...)
	}
	assert.Equal(t, []telemetry.ImuSample{want1}, got, "bytes before the first record start are ignored")
}

func TestParser_ShortAndBadFields(t *testing.T) {
	var ps Parser
	assert.Empty(t, ps.Feed([]byte("A 1 2 3 4 5 Z"), 0))

	got := ps.Feed([]byte("A 7 x 512 512 99999 512 512 512 512 Z"), 0)
	require.Len(t, got, 1)
	assert.Equal(t, [3]int16{0, 0, 0}, got[0].Mag, "unparseable fields read as the centre value")
	assert.Equal(t, int16(0), got[0].Acc[0], "out of range for 16 bits")
}

func TestParser_GyroMountCorrection(t *testing.T) {
	var ps Parser
	got := ps.Feed([]byte("A 0 512 512 512 512 512 512 0 1000 Z"), 0)
	require.Len(t, got, 1)
	assert.Equal(t, [2]int16{-511, 511}, got[0].Rot)

	got = ps.Feed([]byte("A 0 512 512 512 512 512 512 512 512 Z"), 0)
	require.Len(t, got, 1)
	assert.Equal(t, [2]int16{-90, 78}, got[0].Rot)
}

type fixedTicks uint32

func (f fixedTicks) Ticks() uint32 { return uint32(f) }

func testConfig(factory serialport.Factory) (Config, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	clock.SetAutoAdvance(true)
	cfg := DefaultConfig("/dev/ttyIMU", fixedTicks(9))
	cfg.Factory = factory
	cfg.Clock = clock
	return cfg, clock
}

func TestReader_Session(t *testing.T) {
	port := serialport.NewTestablePort()
	port.TimeoutOnEmpty = true
	port.AddReadData([]byte("garbage" + rec1 + rec2))
	factory := serialport.NewMockFactory(port)

	cfg, clock := testConfig(factory)
	cfg.Attempts = 1
	q := bus.New[telemetry.Event]()

	err := New(cfg, q).Run(context.Background())
	require.ErrorIs(t, err, ErrDeviceLost, "the second session reads nothing")

	got := testutil.Drain(q)
	assert.Equal(t, []telemetry.Event{want1, want2}, got)
	assert.Equal(t, 2, factory.Calls())
	assert.Equal(t, 115200, factory.LastCall().Opts.BaudRate)
	assert.True(t, port.IsClosed())
	assert.Contains(t, clock.Sleeps(), 1777*time.Millisecond)
}

func TestReader_OpenGivesUp(t *testing.T) {
	boom := errors.New("no such device")
	factory := &serialport.MockFactory{Errors: []error{boom, boom, boom}}
	cfg, clock := testConfig(factory)
	cfg.Attempts = 3

	err := New(cfg, bus.New[telemetry.Event]()).Run(context.Background())
	require.ErrorIs(t, err, ErrDeviceLost)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, factory.Calls())
	assert.Equal(t, []time.Duration{2777 * time.Millisecond, 2777 * time.Millisecond}, clock.Sleeps())
}

func TestReader_StopsWhenQueueClosed(t *testing.T) {
	port := serialport.NewTestablePort()
	port.TimeoutOnEmpty = true
	port.AddReadData([]byte(rec1))
	cfg, _ := testConfig(serialport.NewMockFactory(port))

	q := bus.New[telemetry.Event]()
	q.Close()
	assert.NoError(t, New(cfg, q).Run(context.Background()))
}

// ticking advances the mock clock on every send so the simulator's ticker
// fires, and closes after limit samples.
type ticking struct {
	clock *timeutil.MockClock
	limit int
	got   []telemetry.ImuSample
}

func (s *ticking) Send(ev telemetry.Event) error {
	if len(s.got) == s.limit {
		return bus.ErrClosed
	}
	s.got = append(s.got, ev.(telemetry.ImuSample))
	s.clock.Advance(10 * time.Millisecond)
	return nil
}

func TestSimulation(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := DefaultConfig("", fixedTicks(1))
	cfg.Clock = clock
	cfg.Seed = 42
	out := &ticking{clock: clock, limit: 200}

	require.NoError(t, New(cfg, out).Run(context.Background()))
	require.Len(t, out.got, 200)

	axes := func(s telemetry.ImuSample) []int16 {
		return append(append(s.Mag[:], s.Acc[:]...), s.Rot[:]...)
	}
	prev := make([]int16, 8)
	moved := false
	for i, s := range out.got {
		for j, v := range axes(s) {
			assert.LessOrEqual(t, v, int16(simLimit))
			assert.GreaterOrEqual(t, v, int16(-simLimit))
			d := v - prev[j]
			assert.LessOrEqual(t, d, int16(simStep), "sample %d axis %d jumps", i, j)
			assert.GreaterOrEqual(t, d, int16(-simStep), "sample %d axis %d jumps", i, j)
			if v > simStep || v < -simStep {
				moved = true
			}
			prev[j] = v
		}
	}
	assert.True(t, moved, "values drift away from the start")
}
