// Command cardash is the in-vehicle data logger. It reads the OBD-II dongle,
// gpsd and the inertial unit, shows a live status line and writes every
// event to a new data file once a minute.
//
//	cardash <obd-device> <imu-device> <output-dir>
//
// An empty device path simulates that sensor.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/banshee-data/cardash/internal/bus"
	"github.com/banshee-data/cardash/internal/dispatch"
	"github.com/banshee-data/cardash/internal/display"
	"github.com/banshee-data/cardash/internal/gpsd"
	"github.com/banshee-data/cardash/internal/imu"
	"github.com/banshee-data/cardash/internal/journal"
	"github.com/banshee-data/cardash/internal/monitoring"
	"github.com/banshee-data/cardash/internal/obd"
	"github.com/banshee-data/cardash/internal/persist"
	"github.com/banshee-data/cardash/internal/telemetry"
	"github.com/banshee-data/cardash/internal/timeutil"
	"github.com/banshee-data/cardash/internal/version"
)

const usage = "usage: cardash <obd-device> <imu-device> <output-dir>"

var errUsage = errors.New(usage)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], gpsd.DefaultConfig(nil)); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		log.Fatalf("cardash: %v", err)
	}
}

// run wires the pipeline and blocks until ctx is done. Producers stop first;
// the dispatcher and the persistence engine then drain their queues, so the
// last partial batch still reaches disk.
func run(ctx context.Context, args []string, gpsCfg gpsd.Config) error {
	if len(args) != 3 {
		return errUsage
	}
	obdDevice, imuDevice, dir := args[0], args[1], args[2]
	if dir == "" {
		return errUsage
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("output directory: %w", err)
	}
	monitoring.Logf("cardash %s: obd=%q imu=%q dir=%s", version.String(), obdDevice, imuDevice, dir)

	clock := timeutil.RealClock{}
	ticks := timeutil.NewStopwatch(clock)

	events := bus.New[telemetry.Event]()
	toDisk := bus.New[telemetry.Event]()

	engine := persist.New(persist.DefaultConfig(dir), events)
	j, err := journal.Open(journal.PathIn(dir))
	if err != nil {
		monitoring.Logf("journal unavailable, continuing without it: %v", err)
	} else {
		engine.SetRecorder(j)
	}

	dispatcher := dispatch.New(dispatch.DefaultConfig(), events, toDisk, display.NewConsole(display.DefaultConfig()))

	gpsCfg.Ticks = ticks
	producers := []struct {
		name string
		run  func(context.Context) error
		done func()
	}{
		{"obd", obd.New(obd.DefaultConfig(obdDevice, ticks), events).Run, dispatcher.EndPreamble},
		{"gpsd", gpsd.New(gpsCfg, events).Run, nil},
		{"imu", imu.New(imu.DefaultConfig(imuDevice, ticks), events).Run, nil},
	}

	var producersWG, consumersWG sync.WaitGroup
	for _, p := range producers {
		producersWG.Add(1)
		go func() {
			defer producersWG.Done()
			if p.done != nil {
				defer p.done()
			}
			if err := p.run(ctx); err != nil {
				monitoring.Logf("%s stopped: %v", p.name, err)
				return
			}
			monitoring.Logf("%s stopped", p.name)
		}()
	}

	consumersWG.Add(2)
	go func() {
		defer consumersWG.Done()
		defer toDisk.Close()
		dispatcher.Run(context.Background())
	}()
	go func() {
		defer consumersWG.Done()
		// A dead engine must not leave the dispatcher queueing for it.
		defer toDisk.Close()
		if err := engine.Run(context.Background(), toDisk); err != nil {
			monitoring.Logf("persistence stopped: %v", err)
		}
	}()

	<-ctx.Done()
	monitoring.Logf("shutting down")
	producersWG.Wait()
	dispatcher.EndPreamble()
	events.Close()
	consumersWG.Wait()
	monitoring.Logf("queue high-water marks: events=%d persist=%d", events.Peak(), toDisk.Peak())

	if j != nil {
		if err := j.Close(); err != nil {
			monitoring.Logf("journal close: %v", err)
		}
	}
	return nil
}
