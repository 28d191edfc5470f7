// Package persist batches telemetry events in memory and writes them to a new
// data file once a minute.
//
// Each flush creates "dat.<local date>.<local time>.<8 hex digits>.tmp" with
// exclusive create, writes the batch as fixed-size records, renames the file
// to its final name and syncs the whole filesystem. A shipping process picks
// up only renamed files, so it never sees a partial write.
package persist

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/banshee-data/cardash/internal/bus"
	"github.com/banshee-data/cardash/internal/fsutil"
	"github.com/banshee-data/cardash/internal/journal"
	"github.com/banshee-data/cardash/internal/monitoring"
	"github.com/banshee-data/cardash/internal/obd"
	"github.com/banshee-data/cardash/internal/telemetry"
	"github.com/banshee-data/cardash/internal/timeutil"
)

var logf = monitoring.Prefixed("persist")

// Fatal errors. Both stop the engine; the batch being flushed is lost.
var (
	ErrCreate = errors.New("persist: cannot create data file")
	ErrWrite  = errors.New("persist: data file write failed")
)

const (
	// FilePrefix starts every data file name.
	FilePrefix = "dat."
	// TempSuffix marks a file that was not renamed yet.
	TempSuffix = ".tmp"

	stampLayout = "20060102.150405"
)

// Config holds the engine settings.
type Config struct {
	// Dir is the output directory.
	Dir string

	// Interval separates flush boundaries.
	Interval time.Duration

	// MaxEventRate is the expected peak of events per second. The batch is
	// preallocated for three intervals at that rate.
	MaxEventRate int

	// BufferSize is the write buffer size in bytes.
	BufferSize int

	// CreateRetries is how many times file creation is retried, each time
	// with the next disambiguator, before the engine gives up.
	CreateRetries int
	CreateWait    time.Duration

	// RenameWait is the pause after a failed rename.
	RenameWait time.Duration

	// NoticeHold is how long the "synced" indicator stays on.
	NoticeHold time.Duration

	FS    fsutil.FileSystem
	Clock timeutil.Clock
}

// DefaultConfig returns the settings used in the vehicle.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:           dir,
		Interval:      60 * time.Second,
		MaxEventRate:  115,
		BufferSize:    512 * 1024,
		CreateRetries: 5,
		CreateWait:    100 * time.Millisecond,
		RenameWait:    1000 * time.Millisecond,
		NoticeHold:    2377 * time.Millisecond,
		FS:            fsutil.OSFileSystem{},
		Clock:         timeutil.RealClock{},
	}
}

// Recorder receives a note of every flush and every trouble code. It is
// called from the engine goroutine only.
type Recorder interface {
	RecordFlush(f journal.Flush) error
	RecordTrouble(code int32, t time.Time) error
}

// Engine owns the current batch. All methods must be called from one
// goroutine.
type Engine struct {
	cfg      Config
	notices  bus.Sender[telemetry.Event]
	recorder Recorder

	batch    []telemetry.Event
	start    time.Time
	boundary time.Duration
	lastT    uint32
}

// New returns an engine whose flush clock starts now. Synced notices are sent
// to notices, which may be nil.
func New(cfg Config, notices bus.Sender[telemetry.Event]) *Engine {
	if cfg.FS == nil {
		cfg.FS = fsutil.OSFileSystem{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4096
	}
	return &Engine{
		cfg:      cfg,
		notices:  notices,
		batch:    make([]telemetry.Event, 0, cfg.MaxEventRate*3*int(cfg.Interval/time.Second)),
		start:    cfg.Clock.Now(),
		boundary: cfg.Interval,
	}
}

// SetRecorder attaches a flush journal.
func (e *Engine) SetRecorder(r Recorder) {
	e.recorder = r
}

// Len returns the number of events waiting for the next flush.
func (e *Engine) Len() int {
	return len(e.batch)
}

// Boundary returns the elapsed time at which the next flush is due.
func (e *Engine) Boundary() time.Duration {
	return e.boundary
}

// Run consumes in until it is closed or ctx is done, then flushes whatever is
// left. It returns nil on an orderly stop and a fatal error otherwise.
func (e *Engine) Run(ctx context.Context, in *bus.Queue[telemetry.Event]) error {
	for {
		ev, err := in.Recv(ctx)
		if err != nil {
			if len(e.batch) > 0 {
				if _, ferr := e.flush(); ferr != nil {
					return ferr
				}
			}
			return nil
		}
		if err := e.Accept(ev); err != nil {
			logf("%v", err)
			return err
		}
	}
}

// Accept adds ev to the batch and flushes when the interval boundary has
// passed. UserNotice events are ignored.
func (e *Engine) Accept(ev telemetry.Event) error {
	ts, ok := ev.(telemetry.Timestamped)
	if !ok {
		return nil
	}
	e.batch = append(e.batch, ev)
	e.lastT = ts.Timestamp()
	e.noteTrouble(ev)

	if e.cfg.Clock.Since(e.start) < e.boundary {
		return nil
	}

	flushed, err := e.flush()
	if err != nil {
		return err
	}
	e.announce(flushed)
	return nil
}

func (e *Engine) noteTrouble(ev telemetry.Event) {
	s, ok := ev.(telemetry.ObdSample)
	if !ok || s.PID != uint32(obd.Trouble) || s.Val == 0 || e.recorder == nil {
		return
	}
	if err := e.recorder.RecordTrouble(s.Val, e.cfg.Clock.Now()); err != nil {
		logf("journal: %v", err)
	}
}

// flush writes the batch, clears it, advances the boundary, renames the file
// and syncs. It reports whether anything reached disk.
func (e *Engine) flush() (bool, error) {
	now := e.cfg.Clock.Now()
	stamp := now.In(time.Local).Format(stampLayout)

	var (
		tmp, final string
		w          io.WriteCloser
		err        error
	)
	for tries := 0; ; tries++ {
		uniq := e.lastT + uint32(tries)
		final = filepath.Join(e.cfg.Dir, fmt.Sprintf("%s%s.%08x", FilePrefix, stamp, uniq))
		tmp = final + TempSuffix
		w, err = e.cfg.FS.CreateExclusive(tmp)
		if err == nil {
			break
		}
		if tries >= e.cfg.CreateRetries {
			e.batch = e.batch[:0]
			return false, fmt.Errorf("%w: %s: %w", ErrCreate, tmp, err)
		}
		logf("create %s: %v, retrying", tmp, err)
		e.cfg.Clock.Sleep(e.cfg.CreateWait)
	}

	batch := e.batch
	e.batch = e.batch[:0]

	hasher := blake3.New()
	bw := bufio.NewWriterSize(w, e.cfg.BufferSize)
	rw := telemetry.NewWriter(&teeWriter{w: bw, h: hasher})
	var first uint32
	for i, ev := range batch {
		if i == 0 {
			first = ev.(telemetry.Timestamped).Timestamp()
		}
		if err := rw.Write(ev); err != nil {
			w.Close()
			return false, fmt.Errorf("%w: %s: %w", ErrWrite, tmp, err)
		}
	}
	if err := bw.Flush(); err != nil {
		w.Close()
		return false, fmt.Errorf("%w: %s: %w", ErrWrite, tmp, err)
	}
	if err := w.Close(); err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrWrite, tmp, err)
	}
	clear(batch)

	elapsed := e.cfg.Clock.Since(e.start)
	for e.boundary <= elapsed {
		e.boundary += e.cfg.Interval
	}

	renamed := true
	if err := e.cfg.FS.Rename(tmp, final); err != nil {
		logf("rename %s: %v", final, err)
		renamed = false
		e.cfg.Clock.Sleep(e.cfg.RenameWait)
	}

	if err := e.cfg.FS.SyncAll(); err != nil {
		logf("sync: %v", err)
	}

	e.record(journal.Flush{
		Name:      filepath.Base(final),
		TempName:  filepath.Base(tmp),
		Records:   rw.Count(),
		Bytes:     int64(rw.Count()) * telemetry.RecordSize,
		Renamed:   renamed,
		FirstTick: first,
		LastTick:  e.lastT,
		Digest:    hex.EncodeToString(hasher.Sum(nil)),
		At:        now,
	})
	return true, nil
}

func (e *Engine) record(f journal.Flush) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordFlush(f); err != nil {
		logf("journal: %v", err)
	}
}

// announce drives the display's sync indicator.
func (e *Engine) announce(flushed bool) {
	if !flushed || e.notices == nil {
		return
	}
	if err := e.notices.Send(telemetry.UserNotice{Synced: true}); err != nil {
		return
	}
	e.cfg.Clock.Sleep(e.cfg.NoticeHold)
	_ = e.notices.Send(telemetry.UserNotice{Synced: false})
}

type teeWriter struct {
	w *bufio.Writer
	h *blake3.Hasher
}

func (t *teeWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	t.h.Write(p[:n])
	return n, err
}
