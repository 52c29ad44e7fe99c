package monitor

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/nearfilter/internal/lidar/nearfilter"
	"github.com/banshee-data/nearfilter/internal/lidar/pipeline"
)

var (
	keptColor    = color.RGBA{R: 0x1f, G: 0x9e, B: 0x89, A: 0xff}
	droppedColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
)

// Plotter writes a PNG of every Nth revolution, kept points over dropped
// ones, into a directory. It implements pipeline.Sink.
type Plotter struct {
	mu        sync.Mutex
	outputDir string
	every     int
	seen      int
	written   []string
}

// NewPlotter creates outputDir and returns a plotter for every Nth
// revolution. every <= 0 plots all of them.
func NewPlotter(outputDir string, every int) (*Plotter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create plot dir: %w", err)
	}
	if every <= 0 {
		every = 1
	}
	return &Plotter{outputDir: outputDir, every: every}, nil
}

// Written returns the paths of the plots saved so far.
func (p *Plotter) Written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.written...)
}

// RecordRevolution plots res if it falls on the sampling interval.
func (p *Plotter) RecordRevolution(_ context.Context, res *pipeline.Result) error {
	p.mu.Lock()
	p.seen++
	due := (p.seen-1)%p.every == 0
	p.mu.Unlock()
	if !due {
		return nil
	}

	path := filepath.Join(p.outputDir, fmt.Sprintf("revolution_%06d.png", res.RevolutionID))
	if err := savePlot(res, path); err != nil {
		return err
	}

	p.mu.Lock()
	p.written = append(p.written, path)
	p.mu.Unlock()
	return nil
}

func savePlot(res *pipeline.Result, path string) error {
	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("Revolution %d (kept %d of %d, strict=%v)",
		res.RevolutionID, res.Stats.Output, res.Stats.Input, res.Strict)
	pl.X.Label.Text = "X (mm)"
	pl.Y.Label.Text = "Y (mm)"
	pl.Add(plotter.NewGrid())

	if err := addScatter(pl, "dropped", res.Dropped, droppedColor, 1.5); err != nil {
		return err
	}
	if err := addScatter(pl, "kept", res.Kept, keptColor, 2); err != nil {
		return err
	}

	pl.Legend.Top = true
	pl.Legend.Left = false
	pl.Legend.XOffs = -10
	pl.Legend.YOffs = -10

	if err := pl.Save(6*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save revolution plot: %w", err)
	}
	return nil
}

func addScatter(pl *plot.Plot, label string, points []nearfilter.Point, c color.Color, radius float64) error {
	if len(points) == 0 {
		return nil
	}
	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i].X, xys[i].Y = pointXY(pt)
	}
	s, err := plotter.NewScatter(xys)
	if err != nil {
		return fmt.Errorf("%s scatter: %w", label, err)
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Radius = vg.Points(radius)
	pl.Add(s)
	pl.Legend.Add(label, s)
	return nil
}
