// Package telemetry defines the sensor events carried through the pipeline and
// their fixed-size on-disk record encoding.
package telemetry

import (
	"fmt"
	"math"
)

// Event is one producer-timestamped instant of sensor data. The set of
// implementations is closed: UserNotice, GpsTime, Position, ObdSample and
// ImuSample.
type Event interface {
	isEvent()
}

// Timestamped is implemented by every persisted variant.
type Timestamped interface {
	Event
	// Timestamp returns the producer-local tick counter value.
	Timestamp() uint32
}

// UserNotice is a local-only control signal for the display. It is never
// written to disk.
type UserNotice struct {
	Synced bool
}

// GpsTime carries GPS time, altitude (m), heading (degrees) and speed (km/h).
// Alt, Track and Speed are negative when unknown.
type GpsTime struct {
	T     uint32
	TS    uint32 // unix seconds, 0 when the receiver has no valid time
	Alt   int32
	Track int32
	Speed int32
}

// Position is a latitude/longitude pair. Fix reports whether the coordinates
// are valid; on disk a missing fix is stored as NaN.
type Position struct {
	T   uint32
	Lat float64
	Lon float64
	Fix bool
}

// NewPosition builds a Position, deriving Fix from the coordinates.
func NewPosition(t uint32, lat, lon float64) Position {
	fix := !math.IsNaN(lat) && !math.IsNaN(lon)
	if !fix {
		lat, lon = math.NaN(), math.NaN()
	}
	return Position{T: t, Lat: lat, Lon: lon, Fix: fix}
}

// NoFix returns a Position without coordinates.
func NoFix(t uint32) Position {
	return NewPosition(t, math.NaN(), math.NaN())
}

// ObdSample is one decoded OBD parameter. Val is usually fixed-point tenths.
// PID also identifies synthetic values such as battery voltage, trouble codes
// and capability bitmaps. Extra and Extra2 are reserved.
type ObdSample struct {
	T      uint32
	PID    uint32
	Val    int32
	Extra  int32
	Extra2 int32
}

// ImuSample holds magnetometer xyz, accelerometer xyz and gyroscope xy.
type ImuSample struct {
	T   uint32
	Mag [3]int16
	Acc [3]int16
	Rot [2]int16
}

func (UserNotice) isEvent() {}
func (GpsTime) isEvent()    {}
func (Position) isEvent()   {}
func (ObdSample) isEvent()  {}
func (ImuSample) isEvent()  {}

func (e GpsTime) Timestamp() uint32   { return e.T }
func (e Position) Timestamp() uint32  { return e.T }
func (e ObdSample) Timestamp() uint32 { return e.T }
func (e ImuSample) Timestamp() uint32 { return e.T }

// Persisted reports whether ev is written to disk.
func Persisted(ev Event) bool {
	_, ok := ev.(Timestamped)
	return ok
}

// Kind returns a short lowercase name for the variant of ev.
func Kind(ev Event) string {
	switch ev.(type) {
	case UserNotice:
		return "notice"
	case GpsTime:
		return "gps"
	case Position:
		return "pos"
	case ObdSample:
		return "obd"
	case ImuSample:
		return "imu"
	default:
		return fmt.Sprintf("unknown(%T)", ev)
	}
}

func (e UserNotice) String() string {
	if e.Synced {
		return "notice synced"
	}
	return "notice unsynced"
}

func (e GpsTime) String() string {
	return fmt.Sprintf("gps t=%d ts=%d alt=%d track=%d speed=%d", e.T, e.TS, e.Alt, e.Track, e.Speed)
}

func (e Position) String() string {
	if !e.Fix {
		return fmt.Sprintf("pos t=%d nofix", e.T)
	}
	return fmt.Sprintf("pos t=%d lat=%.6f lon=%.6f", e.T, e.Lat, e.Lon)
}

func (e ObdSample) String() string {
	return fmt.Sprintf("obd t=%d pid=%03x val=%d", e.T, e.PID, e.Val)
}

func (e ImuSample) String() string {
	return fmt.Sprintf("imu t=%d mag=%v acc=%v rot=%v", e.T, e.Mag, e.Acc, e.Rot)
}
