// Package plot renders predicted-versus-actual efficiency charts.
package plot

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Figure size, matching a 10x8 inch figure.
const (
	Width  = 10 * vg.Inch
	Height = 8 * vg.Inch
)

var (
	predictedColor = color.RGBA{R: 220, G: 30, B: 30, A: 255}
	actualColor    = color.RGBA{R: 30, G: 60, B: 220, A: 255}
)

// Predictions draws predicted (red) and actual (blue) values against the
// sample index, each as points joined by lines, and saves the figure to
// path. The image format follows the file extension (png, svg, pdf, ...).
func Predictions(path, title string, predicted, actual []float64) error {
	if len(predicted) != len(actual) {
		return fmt.Errorf("plot: %d predicted vs %d actual values", len(predicted), len(actual))
	}
	if len(predicted) == 0 {
		return errors.New("plot: no values")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "sample"
	p.Y.Label.Text = "efficiency"
	p.Add(plotter.NewGrid())

	if err := addSeries(p, "predicted", predicted, predictedColor); err != nil {
		return err
	}
	if err := addSeries(p, "actual", actual, actualColor); err != nil {
		return err
	}
	p.Legend.Top = true

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("plot: create %s: %w", dir, err)
		}
	}
	if err := p.Save(Width, Height, path); err != nil {
		return fmt.Errorf("plot: save %s: %w", path, err)
	}
	return nil
}

func addSeries(p *plot.Plot, name string, values []float64, c color.Color) error {
	pts := make(plotter.XYs, len(values))
	for i, v := range values {
		pts[i].X = float64(i)
		pts[i].Y = v
	}

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return fmt.Errorf("plot: %s series: %w", name, err)
	}
	line.Color = c
	line.LineStyle.Width = vg.Points(1)
	points.Color = c
	points.Shape = draw.CircleGlyph{}
	points.Radius = vg.Points(1.5)

	p.Add(line, points)
	p.Legend.Add(name, line, points)
	return nil
}
