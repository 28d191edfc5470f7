package telemetry

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func sampleEvents() []Event {
	return []Event{
		GpsTime{T: 10, TS: 1700000000, Alt: 120, Track: 90, Speed: 49},
		GpsTime{T: 11, TS: 0, Alt: -1, Track: -1, Speed: -1},
		NewPosition(12, 45.0, 9.0),
		NoFix(13),
		ObdSample{T: 14, PID: 0x10c, Val: 12345},
		ObdSample{T: 15, PID: 0x10e, Val: -16384},
		ObdSample{T: math.MaxUint32, PID: 0x182, Val: 0},
		ImuSample{T: 16, Mag: [3]int16{-512, 0, 511}, Acc: [3]int16{1, -2, 3}, Rot: [2]int16{-511, 511}},
	}
}

func TestRoundTrip(t *testing.T) {
	events := sampleEvents()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, ev := range events {
		if err := w.Write(ev); err != nil {
			t.Fatalf("Write(%v): %v", ev, err)
		}
	}
	if w.Count() != len(events) {
		t.Errorf("Count() = %d, want %d", w.Count(), len(events))
	}
	if buf.Len() != len(events)*RecordSize {
		t.Fatalf("encoded %d bytes, want %d", buf.Len(), len(events)*RecordSize)
	}

	got, err := ReadAll(&buf)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if diff := cmp.Diff(events, got, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeRecordLayout(t *testing.T) {
	rec := make([]byte, RecordSize)
	if err := EncodeRecord(rec, ObdSample{T: 0x01020304, PID: 0x10c, Val: -1}); err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	want := []byte{
		TagObd, FormatVersion, 0, 0,
		0x04, 0x03, 0x02, 0x01,
		0x0c, 0x01, 0, 0,
		0xff, 0xff, 0xff, 0xff,
		0, 0, 0, 0,
		0, 0, 0, 0,
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
}

func TestPositionNoFixEncodesNaN(t *testing.T) {
	rec := make([]byte, RecordSize)
	if err := EncodeRecord(rec, Position{T: 1, Lat: 0, Lon: 0, Fix: false}); err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	ev, err := DecodeRecord(rec)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	pos := ev.(Position)
	if pos.Fix || !math.IsNaN(pos.Lat) || !math.IsNaN(pos.Lon) {
		t.Errorf("decoded %+v, want no fix with NaN coordinates", pos)
	}
}

func TestEncodeUserNotice(t *testing.T) {
	_, err := AppendRecord(nil, UserNotice{Synced: true})
	if !errors.Is(err, ErrNotPersisted) {
		t.Errorf("AppendRecord(UserNotice) error = %v, want ErrNotPersisted", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		rec  []byte
		want error
	}{
		{"short", make([]byte, RecordSize-1), ErrShortRecord},
		{"unknown tag", append([]byte{9, FormatVersion}, make([]byte, RecordSize-2)...), ErrUnknownTag},
		{"zero tag", append([]byte{0, FormatVersion}, make([]byte, RecordSize-2)...), ErrUnknownTag},
		{"version", append([]byte{TagObd, 7}, make([]byte, RecordSize-2)...), ErrVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeRecord(tt.rec); !errors.Is(err, tt.want) {
				t.Errorf("DecodeRecord error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReaderTrailingBytes(t *testing.T) {
	data, err := AppendRecord(nil, ObdSample{T: 1, PID: 0x10d, Val: 500})
	if err != nil {
		t.Fatalf("AppendRecord: %v", err)
	}
	data = append(data, 1, 2, 3)

	r := NewReader(bytes.NewReader(data))
	if _, err := r.Next(); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, ErrShortRecord) {
		t.Errorf("second Next error = %v, want ErrShortRecord", err)
	}
}

func TestReaderEmpty(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("Next on empty stream = %v, want io.EOF", err)
	}
}

func TestPersistedAndKind(t *testing.T) {
	if Persisted(UserNotice{}) {
		t.Error("UserNotice must not be persisted")
	}
	for _, ev := range sampleEvents() {
		if !Persisted(ev) {
			t.Errorf("%v should be persisted", ev)
		}
	}
	if got := Kind(NoFix(0)); got != "pos" {
		t.Errorf("Kind(Position) = %q", got)
	}
}

func TestNewPositionPartialNaN(t *testing.T) {
	p := NewPosition(1, 45.0, math.NaN())
	if p.Fix {
		t.Error("a single NaN coordinate must not be a fix")
	}
	if !math.IsNaN(p.Lat) {
		t.Error("latitude should be cleared to NaN without a fix")
	}
}
