// Package monitor renders meshes and compensation runs as images and HTML
// pages, and serves them alongside the stored history.
package monitor

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/bedmesh/internal/bedmesh"
	"github.com/banshee-data/bedmesh/internal/gcode"
)

// ErrNoData is returned when there is nothing to draw.
var ErrNoData = errors.New("monitor: nothing to plot")

// meshGrid adapts a mesh to plotter.GridXYZ. Columns are X, rows are Y.
type meshGrid struct{ m *bedmesh.SurfaceMesh }

func (g meshGrid) Dims() (c, r int)   { return g.m.Nx(), g.m.Ny() }
func (g meshGrid) Z(c, r int) float64 { return g.m.Z[r][c] }
func (g meshGrid) X(c int) float64    { return g.m.X[c] }
func (g meshGrid) Y(r int) float64    { return g.m.Y[r] }

// HeatMapOptions controls RenderHeatMap.
type HeatMapOptions struct {
	Title string
	// Width and Height default to 8 and 7 inches.
	Width, Height vg.Length
	// Probes, when set, is drawn as points over the map, typically the
	// sparse mesh under a dense one.
	Probes *bedmesh.SurfaceMesh
}

// RenderHeatMap writes a PNG heat map of m to w.
func RenderHeatMap(w io.Writer, m *bedmesh.SurfaceMesh, o HeatMapOptions) error {
	if m.Nx() < 2 || m.Ny() < 2 {
		return fmt.Errorf("%w: heat map needs at least 2x2 samples, got %dx%d", ErrNoData, m.Nx(), m.Ny())
	}
	if !m.IsFinite() {
		return fmt.Errorf("%w: mesh has non-finite heights", ErrNoData)
	}

	p := plot.New()
	p.Title.Text = o.Title
	if p.Title.Text == "" {
		p.Title.Text = "Bed mesh"
	}
	p.X.Label.Text = "X (mm)"
	p.Y.Label.Text = "Y (mm)"

	h := plotter.NewHeatMap(meshGrid{m}, palette.Heat(16, 1))
	// A flat mesh still needs a non-empty colour range.
	if h.Max == h.Min {
		h.Min -= 0.0005
		h.Max += 0.0005
	}
	p.Add(h)
	p.Title.Text += fmt.Sprintf(" (z %.3f..%.3f mm)", h.Min, h.Max)

	if o.Probes != nil {
		pts := make(plotter.XYs, 0, o.Probes.Nx()*o.Probes.Ny())
		for _, y := range o.Probes.Y {
			for _, x := range o.Probes.X {
				pts = append(pts, plotter.XY{X: x, Y: y})
			}
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("probe overlay: %w", err)
		}
		s.GlyphStyle.Shape = draw.CrossGlyph{}
		s.GlyphStyle.Color = color.Black
		s.GlyphStyle.Radius = vg.Points(3)
		p.Add(s)
		p.Legend.Add("probe", s)
		p.Legend.Top = true
	}

	width, height := o.Width, o.Height
	if width == 0 {
		width = 8 * vg.Inch
	}
	if height == 0 {
		height = 7 * vg.Inch
	}
	diagf("heat map %dx%d, z %.4f..%.4f", m.Nx(), m.Ny(), h.Min, h.Max)
	return writePNG(w, p, width, height)
}

// RenderProfile writes a PNG line plot of nominal and corrected Z for each
// recorded segment, in emission order.
func RenderProfile(w io.Writer, samples []gcode.Sample, title string) error {
	if len(samples) == 0 {
		return ErrNoData
	}

	nominal := make(plotter.XYs, len(samples))
	corrected := make(plotter.XYs, len(samples))
	for i, s := range samples {
		nominal[i] = plotter.XY{X: float64(i), Y: s.NominalZ}
		corrected[i] = plotter.XY{X: float64(i), Y: s.CorrectedZ}
	}

	p := plot.New()
	p.Title.Text = title
	if p.Title.Text == "" {
		p.Title.Text = "Z correction profile"
	}
	p.X.Label.Text = "Segment"
	p.Y.Label.Text = "Z (mm)"
	p.Add(plotter.NewGrid())

	nomLine, err := plotter.NewLine(nominal)
	if err != nil {
		return fmt.Errorf("nominal line: %w", err)
	}
	nomLine.Width = vg.Points(1)
	nomLine.Color = color.RGBA{R: 120, G: 120, B: 120, A: 255}
	nomLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	corrLine, err := plotter.NewLine(corrected)
	if err != nil {
		return fmt.Errorf("corrected line: %w", err)
	}
	corrLine.Width = vg.Points(1)
	corrLine.Color = color.RGBA{R: 200, G: 40, B: 40, A: 255}

	p.Add(nomLine, corrLine)
	p.Legend.Add("nominal", nomLine)
	p.Legend.Add("corrected", corrLine)
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	tracef("profile plot: %d samples", len(samples))
	return writePNG(w, p, 14*vg.Inch, 6*vg.Inch)
}

func writePNG(w io.Writer, p *plot.Plot, width, height vg.Length) error {
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}
