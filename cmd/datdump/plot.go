package main

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var palette = []color.Color{
	color.RGBA{R: 31, G: 119, B: 180, A: 255},
	color.RGBA{R: 255, G: 127, B: 14, A: 255},
	color.RGBA{R: 44, G: 160, B: 44, A: 255},
	color.RGBA{R: 214, G: 39, B: 40, A: 255},
	color.RGBA{R: 148, G: 103, B: 189, A: 255},
	color.RGBA{R: 140, G: 86, B: 75, A: 255},
}

// newPlot draws every series as a line. Each series is scaled to its own
// maximum so parameters of different magnitude share one axis.
func newPlot(title string, all []series) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "fraction of maximum"
	p.Add(plotter.NewGrid())

	for i, s := range all {
		peak := floats.Max(s.Y)
		if lo := -floats.Min(s.Y); lo > peak {
			peak = lo
		}
		if peak == 0 {
			peak = 1
		}
		pts := make(plotter.XYs, len(s.X))
		for j := range s.X {
			pts[j].X = s.X[j]
			pts[j].Y = s.Y[j] / peak
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name, err)
		}
		line.Color = palette[i%len(palette)]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%s max %.1f", s.Name, peak), line)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func runPlot(e *env, args []string) error {
	fs := newFlagSet(e, "plot")
	pids := fs.StringSlice("pid", nil, pidUsage)
	out := fs.StringP("out", "o", "cardash.png", "output image; the extension selects png, svg or pdf")
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
	p, err := newPlot(cfg.GetTitle(), all)
	if err != nil {
		return err
	}
	width := vg.Length(cfg.GetWidthCm()) * vg.Centimeter
	height := vg.Length(cfg.GetHeightCm()) * vg.Centimeter
	if err := p.Save(width, height, *out); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	fmt.Fprintf(e.stdout, "wrote %s\n", *out)
	return nil
}
