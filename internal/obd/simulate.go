package obd

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/banshee-data/cardash/internal/timeutil"
)

// walk describes one simulated parameter: a bounded random walk in natural
// units, emitted in tenths.
type walk struct {
	pid      PID
	min, max float64
}

var simulated = []walk{
	{Battery, 11.8, 14.6},
	{RPM, 800, 3000},
	{EngineLoad, 0, 100},
	{Speed, 0, 80},
	{Throttle, 0, 100},
	{Coolant, 20, 120},
	{AirTemp, -5, 50},
	{STrim1, -100, 100},
	{LTrim1, -100, 100},
	{EGR, 0, 100},
}

const (
	simMinPause = 300 * time.Millisecond
	simPauseJit = 300
)

// stepWalk moves v by a fraction of the range. diff is in [-1, 1].
func stepWalk(v, min, max, diff float64) float64 {
	v += math.Abs(max-min) / 20 * diff
	return math.Min(math.Max(v, min), max)
}

// simulate reports a clean vehicle and then runs one random walk per
// parameter until ctx is done or the output queue closes.
func (d *Driver) simulate(ctx context.Context) error {
	s := &session{d: d}
	if err := s.send(Trouble, 0); err != nil {
		return nil
	}
	if err := s.send(MilStatus, 0); err != nil {
		return nil
	}

	seed := d.cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	var wg sync.WaitGroup
	for i, w := range simulated {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.walk(ctx, w, rand.New(rand.NewPCG(seed, uint64(i))))
		}()
	}
	wg.Wait()
	return nil
}

func (s *session) walk(ctx context.Context, w walk, rng *rand.Rand) {
	v := w.min + math.Abs(w.max-w.min)/2
	for {
		if err := s.send(w.pid, int32(v*10)); err != nil {
			return
		}
		diff := float64(rng.IntN(2001)-1000) / 1000
		v = stepWalk(v, w.min, w.max, diff)

		pause := simMinPause + time.Duration(rng.IntN(simPauseJit))*time.Millisecond
		if err := timeutil.SleepContext(ctx, s.d.cfg.Clock, pause); err != nil {
			return
		}
	}
}
