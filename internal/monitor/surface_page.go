package monitor

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/bedmesh/internal/bedmesh"
)

// viridis ramp shared by every page.
var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// SurfaceSeries is one mesh shown on a surface page.
type SurfaceSeries struct {
	Name string
	Mesh *bedmesh.SurfaceMesh
}

// SurfacePageOptions controls RenderSurfacePage.
type SurfacePageOptions struct {
	Title    string
	Subtitle string
	// AssetsHost overrides where the echarts scripts are loaded from.
	AssetsHost string
}

func surfaceData(m *bedmesh.SurfaceMesh) []opts.Chart3DData {
	data := make([]opts.Chart3DData, 0, m.Nx()*m.Ny())
	for r, y := range m.Y {
		for c, x := range m.X {
			data = append(data, opts.Chart3DData{Value: []interface{}{x, y, m.Z[r][c]}})
		}
	}
	return data
}

// zRange returns the common height range over all series.
func zRange(series []SurfaceSeries) (lo, hi float64) {
	first := true
	for _, s := range series {
		for _, row := range s.Mesh.Z {
			for _, v := range row {
				if first || v < lo {
					lo = v
				}
				if first || v > hi {
					hi = v
				}
				first = false
			}
		}
	}
	return lo, hi
}

// RenderSurfacePage writes an HTML page with one interactive 3D surface per
// series, sharing a colour scale.
func RenderSurfacePage(w io.Writer, series []SurfaceSeries, o SurfacePageOptions) error {
	if len(series) == 0 {
		return ErrNoData
	}
	for _, s := range series {
		if s.Mesh == nil || s.Mesh.Nx() == 0 {
			return fmt.Errorf("%w: series %q has no mesh", ErrNoData, s.Name)
		}
	}
	lo, hi := zRange(series)

	page := components.NewPage()
	if o.AssetsHost != "" {
		page.SetAssetsHost(o.AssetsHost)
	}
	for _, s := range series {
		surf := charts.NewSurface3D()
		initOpts := opts.Initialization{PageTitle: o.Title, Theme: "dark", Width: "900px", Height: "700px"}
		if o.AssetsHost != "" {
			initOpts.AssetsHost = o.AssetsHost
		}
		surf.SetGlobalOptions(
			charts.WithInitializationOpts(initOpts),
			charts.WithTitleOpts(opts.Title{
				Title:    s.Name,
				Subtitle: fmt.Sprintf("%dx%d samples, z %.3f..%.3f mm %s", s.Mesh.Nx(), s.Mesh.Ny(), lo, hi, o.Subtitle),
			}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithVisualMapOpts(opts.VisualMap{
				Show:       opts.Bool(true),
				Calculable: opts.Bool(true),
				Min:        float32(lo),
				Max:        float32(hi),
				InRange:    &opts.VisualMapInRange{Color: viridis},
			}),
		)
		surf.AddSeries(s.Name, surfaceData(s.Mesh))
		page.AddCharts(surf)
	}
	tracef("surface page: %d series", len(series))
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render surface page: %w", err)
	}
	return nil
}
