package imu

import (
	"bytes"
	"strconv"

	"github.com/banshee-data/cardash/internal/telemetry"
)

const (
	recordStart = 'A'
	recordEnd   = 'Z'

	// center is subtracted from every raw reading; it also replaces an
	// unreadable field so that field decodes to zero.
	center = 512

	// minFields covers the counter, three magnetometer, three accelerometer
	// and two gyro fields. The unit also sends a third gyro axis, unused.
	minFields = 9

	maxRecord = 256
)

// Parser splits the unit's byte stream into records. A record looks like
//
//	A	11188	623	569	647	507	526	792	600	437	539	Z
//
// The zero value is ready to use and waits for the first 'A'.
type Parser struct {
	buf     []byte
	inFrame bool
}

// Feed consumes p and returns the samples completed by it, stamped with t.
// Bytes outside 7-bit ASCII are dropped, as is anything before a record
// start. Records with too few fields are skipped.
func (ps *Parser) Feed(p []byte, t uint32) []telemetry.ImuSample {
	var out []telemetry.ImuSample
	for _, b := range p {
		if b >= 0x7f {
			continue
		}
		if !ps.inFrame {
			ps.inFrame = b == recordStart
			continue
		}
		if b != recordEnd {
			if len(ps.buf) < maxRecord {
				ps.buf = append(ps.buf, b)
			}
			continue
		}
		ps.inFrame = false
		if s, ok := decodeRecord(ps.buf, t); ok {
			out = append(out, s)
		}
		ps.buf = ps.buf[:0]
	}
	return out
}

// decodeRecord converts the fields between the markers.
func decodeRecord(rec []byte, t uint32) (telemetry.ImuSample, bool) {
	fields := bytes.Fields(rec)
	if len(fields) < minFields {
		return telemetry.ImuSample{}, false
	}
	v := make([]int32, len(fields))
	for i, f := range fields {
		v[i] = fieldValue(f)
	}
	return telemetry.ImuSample{
		T:   t,
		Mag: [3]int16{int16(v[1]), int16(v[2]), int16(v[3])},
		Acc: [3]int16{int16(v[4]), int16(v[5]), int16(v[6])},
		Rot: [2]int16{int16(max(v[7]-90, -511)), int16(min(v[8]+78, 511))},
	}, true
}

// fieldValue parses an unsigned 16-bit reading and centres it on zero.
func fieldValue(f []byte) int32 {
	u, err := strconv.ParseUint(string(f), 10, 16)
	if err != nil {
		u = center
	}
	return int32(u) - center
}
