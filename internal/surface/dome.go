package surface

import (
	"fmt"
	"math"

	"github.com/banshee-data/bedmesh/internal/bedmesh"
)

// DomeProfile is the one-axis bowing shape 1 - (2u/L - 1)^2, where u is the
// offset from the axis minimum and L the axis span. It is 0 at both edges and
// 1 at the centre.
func DomeProfile(u, span float64) float64 {
	t := 2*u/span - 1
	return 1 - t*t
}

// DomeBias returns amplitude * px^2 * py^2 for the point (x, y) of m.
func DomeBias(m *bedmesh.SurfaceMesh, amplitude, x, y float64) float64 {
	minX, maxX, minY, maxY := m.Bounds()
	px := DomeProfile(x-minX, maxX-minX)
	py := DomeProfile(y-minY, maxY-minY)
	return amplitude * px * px * py * py
}

// CompensateDome adds fraction * DomeBias to every cell of m. A fraction of
// 0 returns an equal mesh; 1 applies the full modelled bias.
func CompensateDome(m *bedmesh.SurfaceMesh, amplitude, fraction float64) (*bedmesh.SurfaceMesh, error) {
	if !(fraction >= 0 && fraction <= 1) {
		return nil, fmt.Errorf("dome: compensation fraction %g outside [0, 1]", fraction)
	}
	if math.IsNaN(amplitude) || math.IsInf(amplitude, 0) {
		return nil, fmt.Errorf("dome: amplitude %g is not finite", amplitude)
	}
	minX, maxX, minY, maxY := m.Bounds()
	if maxX == minX || maxY == minY {
		return nil, fmt.Errorf("dome: mesh has zero span (x %g..%g, y %g..%g)", minX, maxX, minY, maxY)
	}

	z := m.CloneZ()
	for row, y := range m.Y {
		for col, x := range m.X {
			z[row][col] += fraction * DomeBias(m, amplitude, x, y)
		}
	}
	out, err := m.WithZ(z)
	if err != nil {
		return nil, err
	}
	diagf("dome: amplitude %.4f fraction %.2f, z_top %.6f -> %.6f", amplitude, fraction, m.ZTop(), out.ZTop())
	return out, nil
}
