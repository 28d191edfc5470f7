// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/cardash/internal/bus"
	"github.com/banshee-data/cardash/internal/telemetry"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Drain returns every item currently queued in q without blocking.
func Drain[T any](q *bus.Queue[T]) []T {
	var out []T
	for {
		v, ok := q.TryRecv()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

// WriteDataFile encodes events into dir/name and returns the path.
func WriteDataFile(t testing.TB, dir, name string, events ...telemetry.Event) string {
	t.Helper()
	var data []byte
	for _, ev := range events {
		var err error
		data, err = telemetry.AppendRecord(data, ev)
		AssertNoError(t, err)
	}
	path := filepath.Join(dir, name)
	AssertNoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// SampleDrive returns a short, realistic event sequence covering every
// persisted variant.
func SampleDrive() []telemetry.Event {
	return []telemetry.Event{
		telemetry.ObdSample{T: 1000, PID: 0x182, Val: 0},
		telemetry.ObdSample{T: 2000, PID: 0x101, Val: 0x7e500},
		telemetry.GpsTime{T: 3000, TS: 1_772_600_767, Alt: 120, Track: 90, Speed: 49},
		telemetry.NewPosition(3000, 45.0, 9.0),
		telemetry.ObdSample{T: 1_004_000, PID: 0x10c, Val: 17260},
		telemetry.ObdSample{T: 1_005_000, PID: 0x10d, Val: 500},
		telemetry.ImuSample{T: 1_006_000, Mag: [3]int16{111, 57, 135}, Acc: [3]int16{-5, 14, 280}, Rot: [2]int16{-2, 3}},
		telemetry.ObdSample{T: 2_004_000, PID: 0x10c, Val: 18000},
		telemetry.ObdSample{T: 2_005_000, PID: 0x10d, Val: 520},
		telemetry.NoFix(2_006_000),
	}
}
