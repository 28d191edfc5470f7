package gpsd

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/banshee-data/cardash/internal/telemetry"
)

// ErrIgnored is returned for well-formed lines that carry no fix, such as
// gpsd VERSION or SKY reports.
var ErrIgnored = errors.New("gpsd: line ignored")

// Unknown marks a missing altitude, track or speed.
const Unknown = -1

// minYear rejects receiver clocks that have not synchronised yet.
const minYear = 2016

// tpv is the subset of a gpsd TPV report used here.
type tpv struct {
	Class  string   `json:"class"`
	Time   string   `json:"time"`
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
	Alt    *float64 `json:"alt"`
	AltMSL *float64 `json:"altMSL"`
	Track  *float64 `json:"track"`
	Speed  *float64 `json:"speed"`
}

// Fix is one decoded report.
type Fix struct {
	Time     telemetry.GpsTime
	Position telemetry.Position
}

// ParseLine decodes one line from gpsd, either a JSON report or a relayed NMEA
// sentence. t is the producer tick stored in both events.
func ParseLine(line string, t uint32) (Fix, error) {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "{"):
		return ParseTPV([]byte(line), t)
	case strings.HasPrefix(line, "$"):
		return ParseNMEA(line, t)
	default:
		return Fix{}, ErrIgnored
	}
}

// ParseTPV decodes a TPV report. Reports of any other class return
// ErrIgnored.
func ParseTPV(data []byte, t uint32) (Fix, error) {
	var r tpv
	if err := json.Unmarshal(data, &r); err != nil {
		return Fix{}, fmt.Errorf("gpsd: bad report: %w", err)
	}
	if r.Class != "TPV" {
		return Fix{}, ErrIgnored
	}

	alt := r.Alt
	if alt == nil {
		alt = r.AltMSL
	}
	g := telemetry.GpsTime{
		T:     t,
		TS:    unixSeconds(r.Time),
		Alt:   truncOr(alt),
		Track: truncOr(r.Track),
		Speed: Unknown,
	}
	if r.Speed != nil {
		g.Speed = speedKmh(*r.Speed)
	}

	lat, lon := math.NaN(), math.NaN()
	if r.Lat != nil && r.Lon != nil {
		lat, lon = *r.Lat, *r.Lon
	}
	return Fix{Time: g, Position: telemetry.NewPosition(t, lat, lon)}, nil
}

// ParseNMEA decodes an RMC sentence. Other sentence types return ErrIgnored.
func ParseNMEA(line string, t uint32) (Fix, error) {
	s, err := nmea.Parse(line)
	if err != nil {
		return Fix{}, fmt.Errorf("gpsd: bad sentence: %w", err)
	}
	rmc, ok := s.(nmea.RMC)
	if !ok {
		return Fix{}, ErrIgnored
	}

	g := telemetry.GpsTime{T: t, Alt: Unknown, Track: Unknown, Speed: Unknown}
	if rmc.Date.Valid && rmc.Time.Valid {
		ts := time.Date(2000+rmc.Date.YY, time.Month(rmc.Date.MM), rmc.Date.DD,
			rmc.Time.Hour, rmc.Time.Minute, rmc.Time.Second, rmc.Time.Millisecond*int(time.Millisecond), time.UTC)
		if ts.Year() >= minYear {
			g.TS = uint32(ts.Unix())
		}
	}
	if rmc.Validity != nmea.ValidRMC {
		return Fix{Time: g, Position: telemetry.NoFix(t)}, nil
	}
	g.Track = int32(rmc.Course)
	g.Speed = speedKmh(rmc.Speed * knotMetres)
	return Fix{Time: g, Position: telemetry.NewPosition(t, rmc.Latitude, rmc.Longitude)}, nil
}

// knotMetres converts knots to metres per second.
const knotMetres = 1852.0 / 3600.0

// speedKmh converts m/s to km/h, truncating to a tenth first and then to an
// integer: 13.8 m/s becomes 49.
func speedKmh(ms float64) int32 {
	return int32(math.Floor(ms*36) / 10)
}

func truncOr(v *float64) int32 {
	if v == nil {
		return Unknown
	}
	return int32(*v)
}

// unixSeconds parses an ISO 8601 UTC time such as "2016-02-19T00:16:14.000Z".
// Unparseable times and years before minYear yield 0.
func unixSeconds(s string) uint32 {
	if s == "" {
		return 0
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil || ts.Year() < minYear {
		return 0
	}
	return uint32(ts.Unix())
}
