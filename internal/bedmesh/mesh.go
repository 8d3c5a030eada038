// Package bedmesh models a printer bed-height grid and reads it from the
// firmware's saved-config text dump.
package bedmesh

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidMesh is returned when axes and height matrix do not describe a
// rectangular grid over strictly increasing coordinates.
var ErrInvalidMesh = errors.New("invalid surface mesh")

// SurfaceMesh is an immutable rectangular height grid. Z[row][col] is the
// height at (X[col], Y[row]).
//
// Transform stages never modify a mesh; they build a new one with New or
// WithZ, both of which recompute ZTop.
type SurfaceMesh struct {
	X []float64
	Y []float64
	Z [][]float64

	zTop float64
}

// New copies x, y and z into a new mesh after checking the grid shape.
func New(x, y []float64, z [][]float64) (*SurfaceMesh, error) {
	if len(x) == 0 || len(y) == 0 {
		return nil, fmt.Errorf("%w: empty axis (x=%d, y=%d)", ErrInvalidMesh, len(x), len(y))
	}
	if err := checkIncreasing("x", x); err != nil {
		return nil, err
	}
	if err := checkIncreasing("y", y); err != nil {
		return nil, err
	}
	if len(z) != len(y) {
		return nil, fmt.Errorf("%w: %d rows for %d y samples", ErrInvalidMesh, len(z), len(y))
	}

	m := &SurfaceMesh{
		X: append([]float64(nil), x...),
		Y: append([]float64(nil), y...),
		Z: make([][]float64, len(z)),
	}
	for row := range z {
		if len(z[row]) != len(x) {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrInvalidMesh, row, len(z[row]), len(x))
		}
		m.Z[row] = append([]float64(nil), z[row]...)
	}
	m.zTop = maxOf(m.Z)
	return m, nil
}

// WithZ returns a mesh over the same axes with a replacement height matrix.
func (m *SurfaceMesh) WithZ(z [][]float64) (*SurfaceMesh, error) {
	return New(m.X, m.Y, z)
}

// ZTop is the maximum height in the grid.
func (m *SurfaceMesh) ZTop() float64 { return m.zTop }

// Nx is the number of columns.
func (m *SurfaceMesh) Nx() int { return len(m.X) }

// Ny is the number of rows.
func (m *SurfaceMesh) Ny() int { return len(m.Y) }

// CloneZ returns a deep copy of the height matrix.
func (m *SurfaceMesh) CloneZ() [][]float64 {
	out := make([][]float64, len(m.Z))
	for row := range m.Z {
		out[row] = append([]float64(nil), m.Z[row]...)
	}
	return out
}

// Bounds returns the first and last coordinate of each axis.
func (m *SurfaceMesh) Bounds() (minX, maxX, minY, maxY float64) {
	return m.X[0], m.X[len(m.X)-1], m.Y[0], m.Y[len(m.Y)-1]
}

// Contains reports whether (x, y) lies inside the grid's rectangle.
func (m *SurfaceMesh) Contains(x, y float64) bool {
	minX, maxX, minY, maxY := m.Bounds()
	return x >= minX && x <= maxX && y >= minY && y <= maxY
}

// IsSquare reports whether the grid has as many rows as columns.
func (m *SurfaceMesh) IsSquare() bool { return len(m.X) == len(m.Y) }

// IsFinite reports whether every height is a finite number.
func (m *SurfaceMesh) IsFinite() bool {
	for _, row := range m.Z {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// Equal reports whether both meshes hold identical axes and heights.
func (m *SurfaceMesh) Equal(o *SurfaceMesh) bool {
	if m == nil || o == nil {
		return m == o
	}
	if !floats.Equal(m.X, o.X) || !floats.Equal(m.Y, o.Y) || len(m.Z) != len(o.Z) {
		return false
	}
	for row := range m.Z {
		if !floats.Equal(m.Z[row], o.Z[row]) {
			return false
		}
	}
	return m.zTop == o.zTop
}

// Linspace returns n evenly spaced samples over [lo, hi], endpoints included.
func Linspace(lo, hi float64, n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

func checkIncreasing(name string, axis []float64) error {
	for i := 1; i < len(axis); i++ {
		if !(axis[i] > axis[i-1]) {
			return fmt.Errorf("%w: %s axis not strictly increasing at index %d (%g after %g)",
				ErrInvalidMesh, name, i, axis[i], axis[i-1])
		}
	}
	return nil
}

func maxOf(z [][]float64) float64 {
	top := math.Inf(-1)
	for _, row := range z {
		if len(row) == 0 {
			continue
		}
		if v := floats.Max(row); v > top {
			top = v
		}
	}
	return top
}
