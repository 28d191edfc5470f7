// Command datdump inspects and converts the data files written by cardash.
//
//	datdump <command> [flags] <file|dir>...
//
// Directory arguments expand to the dat.* files they contain, in name order.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/banshee-data/cardash/internal/config"
	"github.com/banshee-data/cardash/internal/telemetry"
	"github.com/banshee-data/cardash/internal/version"
)

var errUsage = errors.New("usage error")

// env carries the process streams so commands can be run from tests.
type env struct {
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	name    string
	summary string
	run     func(e *env, args []string) error
}

var commands = []command{
	{"dump", "print every event as a text line", runDump},
	{"export", "convert events to csv, json, cbor or yaml", runExport},
	{"summary", "count events per kind and parameter (yaml)", runSummary},
	{"plot", "draw selected parameters into a PNG", runPlot},
	{"chart", "write an interactive HTML chart", runChart},
	{"verify", "check file digests against the flush journal", runVerify},
	{"journal", "list recorded flushes and trouble codes", runJournal},
	{"publish", "replay events to an MQTT broker", runPublish},
	{"version", "show build information", runVersion},
}

func main() {
	e := &env{stdout: os.Stdout, stderr: os.Stderr}
	if err := run(e, os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "datdump: %v\n", err)
		os.Exit(1)
	}
}

func run(e *env, args []string) error {
	if len(args) < 1 {
		printUsage(e.stderr)
		return errUsage
	}
	name := args[0]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage(e.stdout)
		return nil
	}
	for _, c := range commands {
		if c.name == name {
			return c.run(e, args[1:])
		}
	}
	fmt.Fprintf(e.stderr, "Unknown command: %s\n\n", name)
	printUsage(e.stderr)
	return errUsage
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "datdump - inspect cardash data files")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: datdump <command> [flags] <file|dir>...")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-9s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'datdump <command> --help' for the flags of a command.")
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(e *env, name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.Usage = func() {
		fmt.Fprintf(e.stderr, "Usage: datdump %s [flags] <file|dir>...\n\n", name)
		fs.PrintDefaults()
	}
	return fs
}

// parse parses args and maps --help to a clean return. It reports whether
// the command should go on.
func parse(fs *pflag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", errUsage, err)
	}
	return true, nil
}

// chartConfig loads path, or returns the defaults when path is empty.
func chartConfig(path string) (*config.ChartConfig, error) {
	if path == "" {
		return config.DefaultChartConfig(), nil
	}
	return config.LoadChartConfig(path)
}

// dataFile is one decoded data file.
type dataFile struct {
	Path   string
	Events []telemetry.Event
}

// Name returns the file name without its directory.
func (d dataFile) Name() string { return filepath.Base(d.Path) }

// collectFiles expands directories to the data files inside them.
func collectFiles(args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: no data files given", errUsage)
	}
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		var names []string
		for _, ent := range entries {
			if ent.Type().IsRegular() && strings.HasPrefix(ent.Name(), "dat.") {
				names = append(names, ent.Name())
			}
		}
		sort.Strings(names)
		for _, n := range names {
			files = append(files, filepath.Join(arg, n))
		}
	}
	if len(files) == 0 {
		return nil, errors.New("no data files found")
	}
	return files, nil
}

// loadFiles decodes every file. A file cut short by a power loss keeps the
// records before the damage and a warning goes to stderr.
func loadFiles(e *env, args []string) ([]dataFile, error) {
	paths, err := collectFiles(args)
	if err != nil {
		return nil, err
	}
	out := make([]dataFile, 0, len(paths))
	for _, p := range paths {
		events, err := telemetry.ReadFile(p)
		if err != nil {
			if !errors.Is(err, telemetry.ErrShortRecord) {
				return nil, err
			}
			fmt.Fprintf(e.stderr, "warning: %v\n", err)
		}
		out = append(out, dataFile{Path: p, Events: events})
	}
	return out, nil
}

func runVersion(e *env, args []string) error {
	fmt.Fprintf(e.stdout, "datdump %s\n", version.String())
	return nil
}

func runDump(e *env, args []string) error {
	fs := newFlagSet(e, "dump")
	withFile := fs.BoolP("filename", "f", false, "prefix every line with its file name")
	if ok, err := parse(fs, args); !ok {
		return err
	}
	files, err := loadFiles(e, fs.Args())
	if err != nil {
		return err
	}
	for _, df := range files {
		for _, ev := range df.Events {
			if *withFile {
				fmt.Fprintf(e.stdout, "%s: ", df.Name())
			}
			fmt.Fprintln(e.stdout, ev)
		}
	}
	return nil
}
