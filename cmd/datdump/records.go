package main

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/banshee-data/cardash/internal/config"
	"github.com/banshee-data/cardash/internal/obd"
	"github.com/banshee-data/cardash/internal/telemetry"
	"github.com/banshee-data/cardash/internal/units"
)

// record is the export form of one event. Exactly one of the variant
// fields is set.
type record struct {
	File string     `json:"file" yaml:"file" cbor:"file"`
	Kind string     `json:"kind" yaml:"kind" cbor:"kind"`
	T    uint32     `json:"t" yaml:"t" cbor:"t"`
	GPS  *gpsRecord `json:"gps,omitempty" yaml:"gps,omitempty" cbor:"gps,omitempty"`
	Pos  *posRecord `json:"pos,omitempty" yaml:"pos,omitempty" cbor:"pos,omitempty"`
	OBD  *obdRecord `json:"obd,omitempty" yaml:"obd,omitempty" cbor:"obd,omitempty"`
	IMU  *imuRecord `json:"imu,omitempty" yaml:"imu,omitempty" cbor:"imu,omitempty"`
}

type gpsRecord struct {
	Time  string  `json:"time,omitempty" yaml:"time,omitempty" cbor:"time,omitempty"`
	TS    uint32  `json:"ts" yaml:"ts" cbor:"ts"`
	Alt   int32   `json:"alt" yaml:"alt" cbor:"alt"`
	Track int32   `json:"track" yaml:"track" cbor:"track"`
	Speed float64 `json:"speed" yaml:"speed" cbor:"speed"`
	Units string  `json:"units" yaml:"units" cbor:"units"`
}

type posRecord struct {
	Fix bool     `json:"fix" yaml:"fix" cbor:"fix"`
	Lat *float64 `json:"lat,omitempty" yaml:"lat,omitempty" cbor:"lat,omitempty"`
	Lon *float64 `json:"lon,omitempty" yaml:"lon,omitempty" cbor:"lon,omitempty"`
}

type obdRecord struct {
	PID   string  `json:"pid" yaml:"pid" cbor:"pid"`
	Addr  string  `json:"addr" yaml:"addr" cbor:"addr"`
	Raw   int32   `json:"raw" yaml:"raw" cbor:"raw"`
	Value float64 `json:"value" yaml:"value" cbor:"value"`
}

type imuRecord struct {
	Mag [3]int16 `json:"mag" yaml:"mag,flow" cbor:"mag"`
	Acc [3]int16 `json:"acc" yaml:"acc,flow" cbor:"acc"`
	Rot [2]int16 `json:"rot" yaml:"rot,flow" cbor:"rot"`
}

// converter turns events into records using the display settings of a
// chart config.
type converter struct {
	units string
	loc   *time.Location
}

func newConverter(cfg *config.ChartConfig) converter {
	return converter{units: cfg.GetUnits(), loc: cfg.GetLocation()}
}

// gpsTime formats a GPS time stamp, or returns "" when the receiver had none.
func (c converter) gpsTime(ts uint32) string {
	if ts == 0 {
		return ""
	}
	return time.Unix(int64(ts), 0).In(c.loc).Format(time.RFC3339)
}

// value returns an OBD sample in engineering units, with speeds in the
// configured units.
func (c converter) value(pid obd.PID, raw int32) float64 {
	v := obd.Physical(pid, raw)
	if pid == obd.Speed {
		v = units.ConvertSpeed(v, c.units)
	}
	return v
}

// record converts ev. It reports false for events that are never persisted.
func (c converter) record(file string, ev telemetry.Event) (record, bool) {
	r := record{File: file, Kind: telemetry.Kind(ev)}
	switch e := ev.(type) {
	case telemetry.GpsTime:
		r.T = e.T
		speed := float64(e.Speed)
		if e.Speed >= 0 {
			speed = units.ConvertSpeed(speed, c.units)
		}
		r.GPS = &gpsRecord{Time: c.gpsTime(e.TS), TS: e.TS, Alt: e.Alt, Track: e.Track, Speed: speed, Units: c.units}
	case telemetry.Position:
		r.T = e.T
		r.Pos = &posRecord{Fix: e.Fix}
		if e.Fix {
			lat, lon := e.Lat, e.Lon
			r.Pos.Lat, r.Pos.Lon = &lat, &lon
		}
	case telemetry.ObdSample:
		r.T = e.T
		pid := obd.PID(e.PID)
		r.OBD = &obdRecord{PID: pid.String(), Addr: fmt.Sprintf("%03x", e.PID), Raw: e.Val, Value: c.value(pid, e.Val)}
	case telemetry.ImuSample:
		r.T = e.T
		r.IMU = &imuRecord{Mag: e.Mag, Acc: e.Acc, Rot: e.Rot}
	default:
		return record{}, false
	}
	return r, true
}

var csvHeader = []string{
	"file", "kind", "t",
	"time", "ts", "alt", "track", "speed",
	"fix", "lat", "lon",
	"pid", "raw", "value",
	"mag_x", "mag_y", "mag_z", "acc_x", "acc_y", "acc_z", "rot_x", "rot_y",
}

// csvRow flattens r into the columns of csvHeader. Columns of other variants
// stay empty.
func (r record) csvRow() []string {
	row := make([]string, len(csvHeader))
	row[0], row[1], row[2] = r.File, r.Kind, strconv.FormatUint(uint64(r.T), 10)
	itoa := func(v int32) string { return strconv.FormatInt(int64(v), 10) }
	ftoa := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	switch {
	case r.GPS != nil:
		g := r.GPS
		row[3], row[4], row[5], row[6], row[7] = g.Time, strconv.FormatUint(uint64(g.TS), 10), itoa(g.Alt), itoa(g.Track), ftoa(g.Speed)
	case r.Pos != nil:
		row[8] = strconv.FormatBool(r.Pos.Fix)
		if r.Pos.Fix {
			row[9], row[10] = ftoa(*r.Pos.Lat), ftoa(*r.Pos.Lon)
		}
	case r.OBD != nil:
		row[11], row[12], row[13] = r.OBD.PID, itoa(r.OBD.Raw), ftoa(r.OBD.Value)
	case r.IMU != nil:
		for i, v := range append(append(r.IMU.Mag[:], r.IMU.Acc[:]...), r.IMU.Rot[:]...) {
			row[14+i] = strconv.Itoa(int(v))
		}
	}
	return row
}

// timeline unwraps the 32-bit microsecond tick counter into seconds since
// the first event. Ticks that step back by less than half the counter range
// are treated as producer jitter, not as a wrap.
type timeline struct {
	started bool
	first   uint32
	last    uint32
	wraps   uint64
}

func (tl *timeline) seconds(t uint32) float64 {
	if !tl.started {
		tl.started, tl.first, tl.last = true, t, t
	}
	if t < tl.last && tl.last-t > math.MaxUint32/2 {
		tl.wraps++
	}
	if tl.wraps > 0 && t > tl.last && t-tl.last > math.MaxUint32/2 {
		// A late event from before the last wrap.
		return (float64((tl.wraps-1)<<32) + float64(t) - float64(tl.first)) / 1e6
	}
	tl.last = t
	return (float64(tl.wraps<<32) + float64(t) - float64(tl.first)) / 1e6
}
