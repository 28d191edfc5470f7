package main

import (
	"fmt"
	"math"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/cardash/internal/display"
	"github.com/banshee-data/cardash/internal/obd"
	"github.com/banshee-data/cardash/internal/telemetry"
)

type fileSummary struct {
	Name    string  `yaml:"name"`
	Records int     `yaml:"records"`
	Seconds float64 `yaml:"seconds"`
}

type paramStats struct {
	Count int     `yaml:"count"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
	Mean  float64 `yaml:"mean"`
	sum   float64
}

func (s *paramStats) add(v float64) {
	if s.Count == 0 || v < s.Min {
		s.Min = v
	}
	if s.Count == 0 || v > s.Max {
		s.Max = v
	}
	s.Count++
	s.sum += v
	s.Mean = math.Round(s.sum/float64(s.Count)*100) / 100
}

type gpsSummary struct {
	First    string  `yaml:"first,omitempty"`
	Last     string  `yaml:"last,omitempty"`
	Fixes    int     `yaml:"fixes"`
	NoFix    int     `yaml:"no_fix"`
	MaxSpeed float64 `yaml:"max_speed"`
	Units    string  `yaml:"units"`
}

// summary is the YAML document printed by the summary command.
type summary struct {
	Files        []fileSummary          `yaml:"files"`
	Records      int                    `yaml:"records"`
	Seconds      float64                `yaml:"seconds"`
	Kinds        map[string]int         `yaml:"kinds"`
	Params       map[string]*paramStats `yaml:"params,omitempty"`
	TroubleCodes []string               `yaml:"trouble_codes,omitempty"`
	GPS          gpsSummary             `yaml:"gps"`
}

func summarize(files []dataFile, conv converter) *summary {
	s := &summary{
		Kinds:  make(map[string]int),
		Params: make(map[string]*paramStats),
		GPS:    gpsSummary{Units: conv.units},
	}
	seenCode := make(map[int32]bool)
	var tl timeline
	var firstTS, lastTS uint32

	for _, df := range files {
		fs := fileSummary{Name: df.Name(), Records: len(df.Events)}
		var fileStart float64
		for i, ev := range df.Events {
			s.Kinds[telemetry.Kind(ev)]++
			if ts, ok := ev.(telemetry.Timestamped); ok {
				x := tl.seconds(ts.Timestamp())
				if i == 0 {
					fileStart = x
				}
				fs.Seconds = round2(x - fileStart)
				s.Seconds = round2(x)
			}
			switch e := ev.(type) {
			case telemetry.ObdSample:
				pid := obd.PID(e.PID)
				switch pid {
				case obd.Trouble:
					if e.Val != 0 && !seenCode[e.Val] {
						seenCode[e.Val] = true
						s.TroubleCodes = append(s.TroubleCodes, display.TroubleCode(e.Val))
					}
					continue
				case obd.Capability:
					continue
				}
				st := s.Params[pid.String()]
				if st == nil {
					st = &paramStats{}
					s.Params[pid.String()] = st
				}
				st.add(conv.value(pid, e.Val))
			case telemetry.GpsTime:
				if e.TS != 0 {
					if firstTS == 0 {
						firstTS = e.TS
					}
					lastTS = e.TS
				}
				if r, ok := conv.record("", e); ok && r.GPS.Speed > s.GPS.MaxSpeed {
					s.GPS.MaxSpeed = r.GPS.Speed
				}
			case telemetry.Position:
				if e.Fix {
					s.GPS.Fixes++
				} else {
					s.GPS.NoFix++
				}
			}
		}
		s.Records += fs.Records
		s.Files = append(s.Files, fs)
	}
	s.GPS.First = conv.gpsTime(firstTS)
	s.GPS.Last = conv.gpsTime(lastTS)
	return s
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func runSummary(e *env, args []string) error {
	fs := newFlagSet(e, "summary")
	cfgPath := fs.String("config", "", "chart config JSON file (units, timezone)")
	if ok, err := parse(fs, args); !ok {
		return err
	}
	cfg, err := chartConfig(*cfgPath)
	if err != nil {
		return err
	}
	files, err := loadFiles(e, fs.Args())
	if err != nil {
		return err
	}
	start := time.Now()
	s := summarize(files, newConverter(cfg))

	enc := yaml.NewEncoder(e.stdout)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	fmt.Fprintf(e.stderr, "summarized %d records in %v\n", s.Records, time.Since(start).Round(time.Millisecond))
	return nil
}
