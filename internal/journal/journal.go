// Package journal keeps a small SQLite record of every flush written by the
// persistence engine and of the trouble codes seen on the way. It lives next
// to the data files so that the files can be verified after the fact.
package journal

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/cardash/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Dir is the journal directory inside the output directory.
const Dir = ".cardash"

// FileName is the journal database file name.
const FileName = "journal.db"

// ErrNotFound is returned by FlushByName for an unknown file.
var ErrNotFound = errors.New("journal: flush not found")

// Flush describes one completed flush.
type Flush struct {
	Name      string // final file name, without directory
	TempName  string // temporary file name the data was written to
	Records   int
	Bytes     int64
	Renamed   bool // false when the file stayed under TempName
	FirstTick uint32
	LastTick  uint32
	Digest    string // hex BLAKE3-256 of the file contents
	At        time.Time
}

// File returns the name the data can be found under.
func (f Flush) File() string {
	if f.Renamed {
		return f.Name
	}
	return f.TempName
}

// TroubleCode is a diagnostic code with the times it was first and last seen.
type TroubleCode struct {
	Code        int32
	FirstSeen   time.Time
	LastSeen    time.Time
	Occurrences int
}

// Journal is a handle on the journal database. It is not safe for
// concurrent use.
type Journal struct {
	db *sql.DB
}

// PathIn returns the journal path for an output directory.
func PathIn(outputDir string) string {
	return filepath.Join(outputDir, Dir, FileName)
}

// Open opens or creates the journal at path and applies pending migrations.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	} {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// Closing m would close db as well.
	m.Log = &migrateLogger{}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Version returns the applied schema version.
func (j *Journal) Version() (uint, error) {
	var v uint
	err := j.db.QueryRow(`SELECT version FROM schema_migrations LIMIT 1`).Scan(&v)
	return v, err
}

var migrateLogf = monitoring.Prefixed("journal: migrate")

type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	migrateLogf(format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordFlush stores f. A second flush with the same final name replaces the
// first.
func (j *Journal) RecordFlush(f Flush) error {
	_, err := j.db.Exec(`
		INSERT INTO flushes (name, temp_name, records, bytes, renamed, first_tick, last_tick, digest, flushed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			temp_name = excluded.temp_name,
			records = excluded.records,
			bytes = excluded.bytes,
			renamed = excluded.renamed,
			first_tick = excluded.first_tick,
			last_tick = excluded.last_tick,
			digest = excluded.digest,
			flushed_at = excluded.flushed_at`,
		f.Name, f.TempName, f.Records, f.Bytes, f.Renamed, f.FirstTick, f.LastTick, f.Digest, f.At.UnixMilli())
	if err != nil {
		return fmt.Errorf("record flush %s: %w", f.Name, err)
	}
	return nil
}

// RecordTrouble notes that code was reported at t.
func (j *Journal) RecordTrouble(code int32, t time.Time) error {
	_, err := j.db.Exec(`
		INSERT INTO trouble_codes (code, first_seen, last_seen, occurrences)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(code) DO UPDATE SET
			last_seen = excluded.last_seen,
			occurrences = occurrences + 1`,
		code, t.UnixMilli(), t.UnixMilli())
	if err != nil {
		return fmt.Errorf("record trouble code %d: %w", code, err)
	}
	return nil
}

const flushColumns = `name, temp_name, records, bytes, renamed, first_tick, last_tick, digest, flushed_at`

func scanFlush(row interface{ Scan(...any) error }) (Flush, error) {
	var f Flush
	var at int64
	err := row.Scan(&f.Name, &f.TempName, &f.Records, &f.Bytes, &f.Renamed, &f.FirstTick, &f.LastTick, &f.Digest, &at)
	f.At = time.UnixMilli(at)
	return f, err
}

// Flushes returns every recorded flush, oldest first.
func (j *Journal) Flushes() ([]Flush, error) {
	rows, err := j.db.Query(`SELECT ` + flushColumns + ` FROM flushes ORDER BY flushed_at, flush_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Flush
	for rows.Next() {
		f, err := scanFlush(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// FlushByName looks a flush up by its final or temporary file name.
func (j *Journal) FlushByName(name string) (Flush, error) {
	row := j.db.QueryRow(`SELECT `+flushColumns+` FROM flushes WHERE name = ? OR temp_name = ?`, name, name)
	f, err := scanFlush(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Flush{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return f, err
}

// TroubleCodes returns every code seen, in order of first appearance.
func (j *Journal) TroubleCodes() ([]TroubleCode, error) {
	rows, err := j.db.Query(`SELECT code, first_seen, last_seen, occurrences FROM trouble_codes ORDER BY first_seen, code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TroubleCode
	for rows.Next() {
		var tc TroubleCode
		var first, last int64
		if err := rows.Scan(&tc.Code, &first, &last, &tc.Occurrences); err != nil {
			return nil, err
		}
		tc.FirstSeen = time.UnixMilli(first)
		tc.LastSeen = time.UnixMilli(last)
		out = append(out, tc)
	}
	return out, rows.Err()
}
