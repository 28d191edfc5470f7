package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/zeebo/blake3"

	"github.com/banshee-data/cardash/internal/display"
	"github.com/banshee-data/cardash/internal/journal"
	"github.com/banshee-data/cardash/internal/telemetry"
)

// fileDigest returns the hex BLAKE3-256 digest and size of the file at path.
func fileDigest(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := blake3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// journalFor returns path, or the journal of the directory holding the
// first argument.
func journalFor(path string, args []string) (string, error) {
	if path != "" {
		return path, nil
	}
	if len(args) == 0 {
		return "", fmt.Errorf("%w: no journal or output directory given", errUsage)
	}
	dir := args[0]
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	return journal.PathIn(dir), nil
}

// openJournal opens an existing journal. Open would create a missing one.
func openJournal(path string) (*journal.Journal, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return journal.Open(path)
}

func runVerify(e *env, args []string) error {
	fs := newFlagSet(e, "verify")
	jpath := fs.String("journal", "", "journal database (default <dir>/"+filepath.Join(journal.Dir, journal.FileName)+")")
	if ok, err := parse(fs, args); !ok {
		return err
	}
	path, err := journalFor(*jpath, fs.Args())
	if err != nil {
		return err
	}
	files, err := collectFiles(fs.Args())
	if err != nil {
		return err
	}
	j, err := openJournal(path)
	if err != nil {
		return err
	}
	defer j.Close()

	failed := 0
	for _, p := range files {
		name := filepath.Base(p)
		digest, size, err := fileDigest(p)
		if err != nil {
			return err
		}
		f, err := j.FlushByName(name)
		switch {
		case errors.Is(err, journal.ErrNotFound):
			fmt.Fprintf(e.stdout, "UNKNOWN  %s\n", name)
			failed++
		case err != nil:
			return err
		case f.Digest != digest:
			fmt.Fprintf(e.stdout, "MISMATCH %s digest %s, journal %s\n", name, digest[:16], f.Digest[:min(16, len(f.Digest))])
			failed++
		case f.Bytes != size || int64(f.Records)*telemetry.RecordSize != size:
			fmt.Fprintf(e.stdout, "MISMATCH %s %d bytes, journal %d records in %d bytes\n", name, size, f.Records, f.Bytes)
			failed++
		default:
			fmt.Fprintf(e.stdout, "OK       %s %d records\n", name, f.Records)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed verification", failed, len(files))
	}
	return nil
}

func runJournal(e *env, args []string) error {
	fs := newFlagSet(e, "journal")
	jpath := fs.String("journal", "", "journal database (default <dir>/"+filepath.Join(journal.Dir, journal.FileName)+")")
	if ok, err := parse(fs, args); !ok {
		return err
	}
	path, err := journalFor(*jpath, fs.Args())
	if err != nil {
		return err
	}
	j, err := openJournal(path)
	if err != nil {
		return err
	}
	defer j.Close()

	flushes, err := j.Flushes()
	if err != nil {
		return err
	}
	codes, err := j.TroubleCodes()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FLUSHED\tFILE\tRECORDS\tBYTES\tTICKS\tDIGEST")
	for _, f := range flushes {
		digest := f.Digest
		if len(digest) > 16 {
			digest = digest[:16]
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d-%d\t%s\n",
			f.At.Local().Format(time.DateTime), f.File(), f.Records, f.Bytes, f.FirstTick, f.LastTick, digest)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(codes) == 0 {
		fmt.Fprintln(e.stdout, "\nno trouble codes")
		return nil
	}
	fmt.Fprintln(e.stdout)
	tw = tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tFIRST SEEN\tLAST SEEN\tTIMES")
	for _, c := range codes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", display.TroubleCode(c.Code),
			c.FirstSeen.Local().Format(time.DateTime), c.LastSeen.Local().Format(time.DateTime), c.Occurrences)
	}
	return tw.Flush()
}
