package telemetry

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// RecordSize is the size in bytes of one encoded event.
const RecordSize = 24

// FormatVersion is written in byte 1 of every record.
const FormatVersion = 1

// Record tags. Zero is never written.
const (
	TagGps byte = 1
	TagPos byte = 2
	TagObd byte = 3
	TagImu byte = 4
)

const payloadOffset = 8

var (
	// ErrNotPersisted is returned when encoding a local-only event.
	ErrNotPersisted = errors.New("telemetry: event is not persisted")
	// ErrUnknownTag is returned when decoding a record with an unknown tag.
	ErrUnknownTag = errors.New("telemetry: unknown record tag")
	// ErrVersion is returned when decoding a record of an unsupported format version.
	ErrVersion = errors.New("telemetry: unsupported record version")
	// ErrShortRecord is returned when a stream ends in the middle of a record.
	ErrShortRecord = errors.New("telemetry: short record")
)

var le = binary.LittleEndian

// AppendRecord appends the encoding of ev to dst.
//
// Layout, little-endian:
//
//	0     tag
//	1     format version
//	2..3  zero
//	4..7  t
//	8..23 payload
//	      gps  ts u32, alt i32, track i32, speed i32
//	      pos  lat f64, lon f64 (NaN = no fix)
//	      obd  pid u32, val i32, extra i32, extra2 i32
//	      imu  mag[3] i16, acc[3] i16, rot[2] i16
func AppendRecord(dst []byte, ev Event) ([]byte, error) {
	var rec [RecordSize]byte
	if err := EncodeRecord(rec[:], ev); err != nil {
		return dst, err
	}
	return append(dst, rec[:]...), nil
}

// EncodeRecord writes the encoding of ev into rec, which must be at least
// RecordSize bytes long.
func EncodeRecord(rec []byte, ev Event) error {
	if len(rec) < RecordSize {
		return fmt.Errorf("telemetry: record buffer too small: %d", len(rec))
	}
	rec = rec[:RecordSize]
	clear(rec)
	rec[1] = FormatVersion
	p := rec[payloadOffset:]

	switch e := ev.(type) {
	case GpsTime:
		rec[0] = TagGps
		le.PutUint32(rec[4:], e.T)
		le.PutUint32(p[0:], e.TS)
		le.PutUint32(p[4:], uint32(e.Alt))
		le.PutUint32(p[8:], uint32(e.Track))
		le.PutUint32(p[12:], uint32(e.Speed))
	case Position:
		rec[0] = TagPos
		le.PutUint32(rec[4:], e.T)
		lat, lon := e.Lat, e.Lon
		if !e.Fix {
			lat, lon = math.NaN(), math.NaN()
		}
		le.PutUint64(p[0:], math.Float64bits(lat))
		le.PutUint64(p[8:], math.Float64bits(lon))
	case ObdSample:
		rec[0] = TagObd
		le.PutUint32(rec[4:], e.T)
		le.PutUint32(p[0:], e.PID)
		le.PutUint32(p[4:], uint32(e.Val))
		le.PutUint32(p[8:], uint32(e.Extra))
		le.PutUint32(p[12:], uint32(e.Extra2))
	case ImuSample:
		rec[0] = TagImu
		le.PutUint32(rec[4:], e.T)
		for i, v := range e.Mag {
			le.PutUint16(p[i*2:], uint16(v))
		}
		for i, v := range e.Acc {
			le.PutUint16(p[6+i*2:], uint16(v))
		}
		for i, v := range e.Rot {
			le.PutUint16(p[12+i*2:], uint16(v))
		}
	case UserNotice:
		return ErrNotPersisted
	default:
		return fmt.Errorf("telemetry: cannot encode %T", ev)
	}
	return nil
}

// DecodeRecord decodes one record.
func DecodeRecord(rec []byte) (Event, error) {
	if len(rec) < RecordSize {
		return nil, ErrShortRecord
	}
	if rec[1] != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, rec[1])
	}
	t := le.Uint32(rec[4:])
	p := rec[payloadOffset:RecordSize]

	switch rec[0] {
	case TagGps:
		return GpsTime{
			T:     t,
			TS:    le.Uint32(p[0:]),
			Alt:   int32(le.Uint32(p[4:])),
			Track: int32(le.Uint32(p[8:])),
			Speed: int32(le.Uint32(p[12:])),
		}, nil
	case TagPos:
		lat := math.Float64frombits(le.Uint64(p[0:]))
		lon := math.Float64frombits(le.Uint64(p[8:]))
		return NewPosition(t, lat, lon), nil
	case TagObd:
		return ObdSample{
			T:      t,
			PID:    le.Uint32(p[0:]),
			Val:    int32(le.Uint32(p[4:])),
			Extra:  int32(le.Uint32(p[8:])),
			Extra2: int32(le.Uint32(p[12:])),
		}, nil
	case TagImu:
		var e ImuSample
		e.T = t
		for i := range e.Mag {
			e.Mag[i] = int16(le.Uint16(p[i*2:]))
		}
		for i := range e.Acc {
			e.Acc[i] = int16(le.Uint16(p[6+i*2:]))
		}
		for i := range e.Rot {
			e.Rot[i] = int16(le.Uint16(p[12+i*2:]))
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, rec[0])
	}
}

// Writer encodes events to an underlying stream.
type Writer struct {
	w   io.Writer
	buf [RecordSize]byte
	n   int
}

// NewWriter returns a Writer that writes records to w. Callers that want
// buffering should pass a *bufio.Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes ev and writes it.
func (w *Writer) Write(ev Event) error {
	if err := EncodeRecord(w.buf[:], ev); err != nil {
		return err
	}
	if _, err := w.w.Write(w.buf[:]); err != nil {
		return err
	}
	w.n++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int { return w.n }

// Reader decodes records from a stream.
type Reader struct {
	r   *bufio.Reader
	buf [RecordSize]byte
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next event, or io.EOF at a clean end of stream.
func (r *Reader) Next() (Event, error) {
	n, err := io.ReadFull(r.r, r.buf[:])
	switch {
	case err == io.EOF:
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrShortRecord, n)
	case err != nil:
		return nil, err
	}
	return DecodeRecord(r.buf[:])
}

// ReadAll decodes every record in r.
func ReadAll(r io.Reader) ([]Event, error) {
	rd := NewReader(r)
	var events []Event
	for {
		ev, err := rd.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

// ReadFile decodes every record in the data file at path. Events decoded
// before an error are returned with it.
func ReadFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	events, err := ReadAll(f)
	if err != nil {
		return events, fmt.Errorf("%s: %w", path, err)
	}
	return events, nil
}
