package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/cardash/internal/config"
	"github.com/banshee-data/cardash/internal/obd"
	"github.com/banshee-data/cardash/internal/telemetry"
	"github.com/banshee-data/cardash/internal/units"
)

// series is one parameter over time. X is seconds since the first event.
type series struct {
	Name string
	X, Y []float64
}

var pidUsage = "parameters to draw, by name or hex address (default rpm,speed,throt,ectemp); names: " +
	strings.Join(obd.Names(), ",")

// label returns the legend text, with the speed unit where it applies.
func label(pid obd.PID, speedUnits string) string {
	if pid == obd.Speed {
		return fmt.Sprintf("%s (%s)", pid, units.Label(speedUnits))
	}
	return pid.String()
}

// buildSeries extracts the configured parameters from files, averaged over
// the configured bucket. Parameters without samples are dropped.
func buildSeries(files []dataFile, cfg *config.ChartConfig) ([]series, error) {
	conv := newConverter(cfg)
	pids := cfg.GetPIDs()
	index := make(map[obd.PID]int, len(pids))
	out := make([]series, len(pids))
	for i, p := range pids {
		index[p] = i
		out[i].Name = label(p, conv.units)
	}

	var tl timeline
	for _, df := range files {
		for _, ev := range df.Events {
			ts, ok := ev.(telemetry.Timestamped)
			if !ok {
				continue
			}
			x := tl.seconds(ts.Timestamp())
			s, ok := ev.(telemetry.ObdSample)
			if !ok {
				continue
			}
			pid := obd.PID(s.PID)
			i, ok := index[pid]
			if !ok {
				continue
			}
			out[i].X = append(out[i].X, x)
			out[i].Y = append(out[i].Y, conv.value(pid, s.Val))
		}
	}

	bucket := cfg.GetBucket()
	kept := out[:0]
	for _, s := range out {
		if len(s.X) == 0 {
			continue
		}
		if bucket > 0 {
			s = s.average(bucket)
		}
		kept = append(kept, s)
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("no samples for %v", pids)
	}
	return kept, nil
}

// average replaces the samples of each bucket-wide window by their mean,
// placed at the window start.
func (s series) average(bucket time.Duration) series {
	width := bucket.Seconds()
	avg := series{Name: s.Name}
	var (
		start, sum float64
		n          int
	)
	emit := func() {
		if n > 0 {
			avg.X = append(avg.X, start)
			avg.Y = append(avg.Y, sum/float64(n))
		}
	}
	for i, x := range s.X {
		w := float64(int64(x/width)) * width
		if n == 0 || w != start {
			emit()
			start, sum, n = w, 0, 0
		}
		sum += s.Y[i]
		n++
	}
	emit()
	return avg
}
