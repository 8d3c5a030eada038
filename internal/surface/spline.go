package surface

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/bedmesh/internal/bedmesh"
)

// Boundary selects the end condition applied on both ends of each spline axis.
type Boundary string

const (
	// NotAKnot makes the third derivative continuous across the second and
	// second-to-last knots.
	NotAKnot Boundary = "not-a-knot"
	// Natural sets the second derivative to zero at both ends.
	Natural Boundary = "natural"
)

// ParseBoundary maps a config string onto a Boundary. The empty string
// selects NotAKnot.
func ParseBoundary(s string) (Boundary, error) {
	switch Boundary(s) {
	case "", NotAKnot:
		return NotAKnot, nil
	case Natural:
		return Natural, nil
	}
	return "", fmt.Errorf("unknown spline boundary %q", s)
}

// warnCondition is the condition number above which a solve is logged to ops.
const warnCondition = 1e12

// axis is one knot vector plus its factorised second-derivative system.
type axis struct {
	knots []float64
	h     []float64
	lu    *mat.LU // nil for two knots, where the spline is linear
}

func newAxis(knots []float64, bc Boundary) (*axis, error) {
	n := len(knots)
	if n < 2 {
		return nil, fmt.Errorf("spline: need at least 2 knots per axis, got %d", n)
	}
	a := &axis{knots: knots, h: make([]float64, n-1)}
	for i := range a.h {
		a.h[i] = knots[i+1] - knots[i]
	}
	if n == 2 {
		return a, nil
	}

	h := a.h
	sys := mat.NewDense(n, n, nil)
	for i := 1; i < n-1; i++ {
		sys.Set(i, i-1, h[i-1])
		sys.Set(i, i, 2*(h[i-1]+h[i]))
		sys.Set(i, i+1, h[i])
	}
	switch {
	case bc == Natural:
		sys.Set(0, 0, 1)
		sys.Set(n-1, n-1, 1)
	case n == 3:
		// Not-a-knot over three knots is a single parabola.
		sys.Set(0, 0, 1)
		sys.Set(0, 1, -1)
		sys.Set(2, 1, 1)
		sys.Set(2, 2, -1)
	default:
		sys.Set(0, 0, -h[1])
		sys.Set(0, 1, h[0]+h[1])
		sys.Set(0, 2, -h[0])
		sys.Set(n-1, n-3, -h[n-2])
		sys.Set(n-1, n-2, h[n-3]+h[n-2])
		sys.Set(n-1, n-1, -h[n-3])
	}

	var lu mat.LU
	lu.Factorize(sys)
	cond := lu.Cond()
	if math.IsInf(cond, 1) {
		return nil, fmt.Errorf("spline: singular %s system over %d knots", bc, n)
	}
	if cond > warnCondition {
		opsf("spline: %s system over %d knots is ill-conditioned (cond %.3g)", bc, n, cond)
	}
	a.lu = &lu
	return a, nil
}

// secondDerivatives returns, for every column of f sampled at the knots, the
// second derivative of its cubic spline at each knot.
func (a *axis) secondDerivatives(f mat.Matrix) (*mat.Dense, error) {
	n, k := f.Dims()
	out := mat.NewDense(n, k, nil)
	if a.lu == nil {
		return out, nil
	}
	rhs := mat.NewDense(n, k, nil)
	for c := 0; c < k; c++ {
		for i := 1; i < n-1; i++ {
			right := (f.At(i+1, c) - f.At(i, c)) / a.h[i]
			left := (f.At(i, c) - f.At(i-1, c)) / a.h[i-1]
			rhs.Set(i, c, 6*(right-left))
		}
	}
	if err := a.lu.SolveTo(out, false, rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("spline: solve: %w", err)
		}
		opsf("spline: solve reported condition %.3g", float64(cond))
	}
	return out, nil
}

// weights locates t and returns the interval index along with the value
// weights (va, vb) and curvature weights (ca, cb) of its end knots. Points
// outside the knot range use the nearest end interval's cubic.
func (a *axis) weights(t float64) (i int, va, vb, ca, cb float64) {
	i = sort.SearchFloat64s(a.knots, t) - 1
	if i < 0 {
		i = 0
	}
	if last := len(a.knots) - 2; i > last {
		i = last
	}
	h := a.h[i]
	va = (a.knots[i+1] - t) / h
	vb = 1 - va
	ca = (va*va*va - va) * h * h / 6
	cb = (vb*vb*vb - vb) * h * h / 6
	return i, va, vb, ca, cb
}

func (a *axis) contains(t float64) bool {
	return t >= a.knots[0] && t <= a.knots[len(a.knots)-1]
}

// Spline is a C2 tensor-product bicubic interpolant of a SurfaceMesh. It
// reproduces every grid node exactly and extrapolates outside the grid with
// the polynomial of the nearest edge cell.
type Spline struct {
	ax, ay *axis
	z      *mat.Dense // Ny x Nx heights
	zxx    *mat.Dense // d2z/dx2 at the nodes
	zyy    *mat.Dense // d2z/dy2 at the nodes
	zxxyy  *mat.Dense // d4z/dx2dy2 at the nodes
}

// NewSpline fits m. Both axes need at least two samples.
func NewSpline(m *bedmesh.SurfaceMesh, bc Boundary) (*Spline, error) {
	if bc == "" {
		bc = NotAKnot
	}
	ax, err := newAxis(m.X, bc)
	if err != nil {
		return nil, fmt.Errorf("x axis: %w", err)
	}
	ay, err := newAxis(m.Y, bc)
	if err != nil {
		return nil, fmt.Errorf("y axis: %w", err)
	}

	ny, nx := m.Ny(), m.Nx()
	z := mat.NewDense(ny, nx, nil)
	for row := range m.Z {
		z.SetRow(row, m.Z[row])
	}

	mx, err := ax.secondDerivatives(z.T())
	if err != nil {
		return nil, fmt.Errorf("x axis: %w", err)
	}
	zxx := mat.DenseCopyOf(mx.T())
	zyy, err := ay.secondDerivatives(z)
	if err != nil {
		return nil, fmt.Errorf("y axis: %w", err)
	}
	zxxyy, err := ay.secondDerivatives(zxx)
	if err != nil {
		return nil, fmt.Errorf("y axis: %w", err)
	}

	diagf("spline: fitted %dx%d grid (%s)", nx, ny, bc)
	return &Spline{ax: ax, ay: ay, z: z, zxx: zxx, zyy: zyy, zxxyy: zxxyy}, nil
}

// At evaluates the surface at (x, y).
func (s *Spline) At(x, y float64) float64 {
	i, vx0, vx1, cx0, cx1 := s.ax.weights(x)
	j, vy0, vy1, cy0, cy1 := s.ay.weights(y)
	vx, cx := [2]float64{vx0, vx1}, [2]float64{cx0, cx1}
	vy, cy := [2]float64{vy0, vy1}, [2]float64{cy0, cy1}

	var sum float64
	for dj := 0; dj < 2; dj++ {
		r := j + dj
		for di := 0; di < 2; di++ {
			c := i + di
			sum += vx[di]*vy[dj]*s.z.At(r, c) +
				cx[di]*vy[dj]*s.zxx.At(r, c) +
				vx[di]*cy[dj]*s.zyy.At(r, c) +
				cx[di]*cy[dj]*s.zxxyy.At(r, c)
		}
	}
	return sum
}

// Contains reports whether (x, y) lies inside the fitted grid, where At
// interpolates rather than extrapolates.
func (s *Spline) Contains(x, y float64) bool {
	return s.ax.contains(x) && s.ay.contains(y)
}
