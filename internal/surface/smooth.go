// Package surface holds the transform stages applied to a bed mesh: Laplacian
// smoothing, dome bias compensation and bicubic resampling. Every stage takes
// an immutable *bedmesh.SurfaceMesh and returns a new one.
package surface

import (
	"fmt"

	"github.com/banshee-data/bedmesh/internal/bedmesh"
)

// SmoothMode selects the Laplacian update rule.
type SmoothMode string

const (
	// SmoothFull replaces each interior height with the mean of its four
	// orthogonal neighbours.
	SmoothFull SmoothMode = "full"
	// SmoothDamped blends each interior height with that mean by lambda.
	SmoothDamped SmoothMode = "damped"
)

// SmoothLaplacian runs full Laplacian relaxation over the interior of m.
func SmoothLaplacian(m *bedmesh.SurfaceMesh, iterations int) (*bedmesh.SurfaceMesh, error) {
	return smooth(m, iterations, 1, SmoothFull)
}

// SmoothLaplacianDamped runs damped relaxation:
// z' = (1-lambda)*z + lambda*mean(neighbours).
func SmoothLaplacianDamped(m *bedmesh.SurfaceMesh, iterations int, lambda float64) (*bedmesh.SurfaceMesh, error) {
	if !(lambda >= 0 && lambda <= 1) {
		return nil, fmt.Errorf("smooth: lambda %g outside [0, 1]", lambda)
	}
	return smooth(m, iterations, lambda, SmoothDamped)
}

func smooth(m *bedmesh.SurfaceMesh, iterations int, lambda float64, mode SmoothMode) (*bedmesh.SurfaceMesh, error) {
	if iterations < 0 {
		return nil, fmt.Errorf("smooth: negative iteration count %d", iterations)
	}
	ny, nx := m.Ny(), m.Nx()
	cur := m.CloneZ()
	if ny < 3 || nx < 3 || iterations == 0 {
		return m.WithZ(cur)
	}

	next := m.CloneZ()
	for it := 0; it < iterations; it++ {
		for i := 1; i < ny-1; i++ {
			for j := 1; j < nx-1; j++ {
				mean := (cur[i-1][j] + cur[i+1][j] + cur[i][j-1] + cur[i][j+1]) / 4
				if mode == SmoothFull {
					next[i][j] = mean
				} else {
					next[i][j] = (1-lambda)*cur[i][j] + lambda*mean
				}
			}
		}
		// Border cells of next were copied from the input and never written.
		cur, next = next, cur
		tracef("smooth %s: iteration %d/%d done", mode, it+1, iterations)
	}

	out, err := m.WithZ(cur)
	if err != nil {
		return nil, err
	}
	diagf("smooth %s: %d iterations over %dx%d, z_top %.6f -> %.6f", mode, iterations, nx, ny, m.ZTop(), out.ZTop())
	return out, nil
}
