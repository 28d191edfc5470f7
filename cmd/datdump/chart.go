package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// renderChart writes an HTML page with one line per series, in real units,
// sharing a value time axis.
func renderChart(w io.Writer, title, subtitle string, all []series) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value"}),
	)
	for _, s := range all {
		data := make([]opts.LineData, len(s.X))
		for i := range s.X {
			data[i] = opts.LineData{Value: []interface{}{s.X[i], s.Y[i]}}
		}
		line.AddSeries(s.Name, data, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}
	return line.Render(w)
}

func runChart(e *env, args []string) error {
	fs := newFlagSet(e, "chart")
	pids := fs.StringSlice("pid", nil, pidUsage)
	out := fs.StringP("out", "o", "cardash.html", "output HTML file")
	cfgPath := fs.String("config", "", "chart config JSON file")
	if ok, err := parse(fs, args); !ok {
		return err
	}
	cfg, err := chartConfig(*cfgPath)
	if err != nil {
		return err
	}
	if len(*pids) > 0 {
		cfg.PIDs = *pids
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
	}
	files, err := loadFiles(e, fs.Args())
	if err != nil {
		return err
	}
	all, err := buildSeries(files, cfg)
	if err != nil {
		return err
	}

	subtitle := fmt.Sprintf("%d files, %s to %s", len(files), files[0].Name(), files[len(files)-1].Name())
	var buf bytes.Buffer
	if err := renderChart(&buf, cfg.GetTitle(), subtitle, all); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	if err := os.WriteFile(*out, buf.Bytes(), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "wrote %s\n", *out)
	return nil
}
