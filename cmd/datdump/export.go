package main

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"gopkg.in/yaml.v3"
)

// cborMode encodes with Core Deterministic Encoding, so equal input always
// gives identical bytes.
var cborMode cbor.EncMode

func init() {
	var err error
	cborMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("datdump: CBOR encoder initialization failed: " + err.Error())
	}
}

// compression names the stream compression of an export.
type compression string

const (
	compressNone compression = "none"
	compressZstd compression = "zstd"
	compressLZ4  compression = "lz4"
)

func parseCompression(name string) (compression, error) {
	switch c := compression(name); c {
	case compressNone, compressZstd, compressLZ4:
		return c, nil
	default:
		return "", fmt.Errorf("unknown compression %q (want none, zstd or lz4)", name)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// compressor wraps w. Closing the result flushes the compressed stream but
// leaves w open.
func compressor(w io.Writer, c compression) (io.WriteCloser, error) {
	switch c {
	case compressZstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		return enc, nil
	case compressLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nopWriteCloser{w}, nil
	}
}

var exportFormats = map[string]func(io.Writer, []record) error{
	"csv":  writeCSV,
	"json": writeJSON,
	"cbor": writeCBOR,
	"yaml": writeYAML,
}

// writeCSV writes a header row followed by one row per record.
func writeCSV(w io.Writer, records []record) error {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(r.csvRow()); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

// writeJSON writes one JSON object per line.
func writeJSON(w io.Writer, records []record) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// writeCBOR writes a CBOR sequence, one data item per record.
func writeCBOR(w io.Writer, records []record) error {
	enc := cborMode.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// writeYAML writes all records as a single YAML list.
func writeYAML(w io.Writer, records []record) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(records); err != nil {
		return err
	}
	return enc.Close()
}

func runExport(e *env, args []string) error {
	fs := newFlagSet(e, "export")
	format := fs.String("format", "csv", "output format: csv, json, cbor or yaml")
	compress := fs.String("compress", "none", "stream compression: none, zstd or lz4")
	out := fs.StringP("out", "o", "", "output file (default stdout)")
	cfgPath := fs.String("config", "", "chart config JSON file (units, timezone)")
	if ok, err := parse(fs, args); !ok {
		return err
	}

	write, ok := exportFormats[*format]
	if !ok {
		return fmt.Errorf("%w: unknown format %q", errUsage, *format)
	}
	comp, err := parseCompression(*compress)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	cfg, err := chartConfig(*cfgPath)
	if err != nil {
		return err
	}
	files, err := loadFiles(e, fs.Args())
	if err != nil {
		return err
	}

	conv := newConverter(cfg)
	var records []record
	for _, df := range files {
		for _, ev := range df.Events {
			if r, ok := conv.record(df.Name(), ev); ok {
				records = append(records, r)
			}
		}
	}

	dst := e.stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		dst = f
	}
	cw, err := compressor(dst, comp)
	if err != nil {
		return err
	}
	if err := write(cw, records); err != nil {
		cw.Close()
		return fmt.Errorf("export %s: %w", *format, err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("export %s: %w", *compress, err)
	}
	if f, ok := dst.(*os.File); ok && *out != "" {
		return f.Sync()
	}
	return nil
}
