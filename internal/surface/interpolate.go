package surface

import (
	"fmt"

	"github.com/banshee-data/bedmesh/internal/bedmesh"
)

// Evaluator is a continuous height field. It must accept any (x, y),
// extrapolating outside the grid it was fitted to.
type Evaluator interface {
	At(x, y float64) float64
}

// Fitter builds an Evaluator that passes through every node of a mesh.
type Fitter interface {
	Fit(m *bedmesh.SurfaceMesh) (Evaluator, error)
}

// BicubicFitter fits a tensor-product cubic Spline.
type BicubicFitter struct {
	Boundary Boundary
}

// Fit implements Fitter.
func (f BicubicFitter) Fit(m *bedmesh.SurfaceMesh) (Evaluator, error) {
	s, err := NewSpline(m, f.Boundary)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// InterpolationMode selects the resampling domain.
type InterpolationMode string

const (
	// Interior resamples over the mesh's own bounds.
	Interior InterpolationMode = "interior"
	// Extended resamples over [offset, min+max-offset] on each axis.
	Extended InterpolationMode = "extended"
)

// InterpolateInterior fits m and resamples it on a resolution x resolution
// grid spanning exactly the original bounds.
func InterpolateInterior(m *bedmesh.SurfaceMesh, resolution int, fit Fitter) (*bedmesh.SurfaceMesh, error) {
	if resolution < 2 {
		return nil, fmt.Errorf("interpolate: resolution must be at least 2, got %d", resolution)
	}
	minX, maxX, minY, maxY := m.Bounds()
	return Resample(m, fit,
		bedmesh.Linspace(minX, maxX, resolution),
		bedmesh.Linspace(minY, maxY, resolution))
}

// InterpolateExtended fits m and resamples it on a resolution x resolution
// grid over [offset, min+max-offset] per axis. The domain is measured from
// the coordinate origin, so cells near the edges are extrapolated whenever
// min > offset.
func InterpolateExtended(m *bedmesh.SurfaceMesh, resolution int, offset float64, fit Fitter) (*bedmesh.SurfaceMesh, error) {
	if resolution < 2 {
		return nil, fmt.Errorf("interpolate: resolution must be at least 2, got %d", resolution)
	}
	minX, maxX, minY, maxY := m.Bounds()
	x0, x1 := 0+offset, (minX+maxX)-offset
	y0, y1 := 0+offset, (minY+maxY)-offset
	if !(x1 > x0) || !(y1 > y0) {
		return nil, fmt.Errorf("interpolate: edge offset %g leaves an empty domain [%g, %g] x [%g, %g]", offset, x0, x1, y0, y1)
	}
	if x0 < minX || x1 > maxX || y0 < minY || y1 > maxY {
		opsf("interpolate: extended domain [%.3f, %.3f] x [%.3f, %.3f] extrapolates beyond mesh [%.3f, %.3f] x [%.3f, %.3f]",
			x0, x1, y0, y1, minX, maxX, minY, maxY)
	}
	return Resample(m, fit,
		bedmesh.Linspace(x0, x1, resolution),
		bedmesh.Linspace(y0, y1, resolution))
}

// Resample fits m and evaluates the fit at every (xs[col], ys[row]).
func Resample(m *bedmesh.SurfaceMesh, fit Fitter, xs, ys []float64) (*bedmesh.SurfaceMesh, error) {
	if fit == nil {
		fit = BicubicFitter{}
	}
	ev, err := fit.Fit(m)
	if err != nil {
		return nil, fmt.Errorf("interpolate: %w", err)
	}
	z := make([][]float64, len(ys))
	for row, y := range ys {
		z[row] = make([]float64, len(xs))
		for col, x := range xs {
			z[row][col] = ev.At(x, y)
		}
	}
	out, err := bedmesh.New(xs, ys, z)
	if err != nil {
		return nil, fmt.Errorf("interpolate: %w", err)
	}
	diagf("interpolate: %dx%d -> %dx%d, z_top %.6f", m.Nx(), m.Ny(), out.Nx(), out.Ny(), out.ZTop())
	return out, nil
}
