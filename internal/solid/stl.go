// Package solid turns a finished surface mesh into a closed printable body:
// the measured surface underneath, a flat lid at the mesh's highest point and
// four walls joining the two.
package solid

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/bedmesh/internal/bedmesh"
)

var (
	// ErrNotSquare is returned for meshes with Nx != Ny.
	ErrNotSquare = errors.New("solid: mesh is not square")
	// ErrNotFinite is returned when a height is NaN or infinite.
	ErrNotFinite = errors.New("solid: mesh has non-finite heights")
)

// Exporter writes a solid built from m.
type Exporter interface {
	Export(w io.Writer, m *bedmesh.SurfaceMesh) error
}

// Triangle is one facet. Vertices wind counter-clockwise seen from outside,
// and Normal is their unit normal, or zero for a degenerate facet.
type Triangle struct {
	Normal r3.Vec
	V      [3]r3.Vec
}

func newTriangle(a, b, c r3.Vec) Triangle {
	n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	if r3.Norm(n) > 0 {
		n = r3.Unit(n)
	}
	return Triangle{Normal: n, V: [3]r3.Vec{a, b, c}}
}

// Triangulate builds the closed body for m. The bottom surface has two
// triangles per grid cell, the lid the same at ZTop, and each wall two per
// perimeter edge.
func Triangulate(m *bedmesh.SurfaceMesh) ([]Triangle, error) {
	if !m.IsSquare() {
		return nil, fmt.Errorf("%w: %dx%d", ErrNotSquare, m.Nx(), m.Ny())
	}
	if !m.IsFinite() {
		return nil, ErrNotFinite
	}
	n := m.Nx()
	if n < 2 {
		return nil, fmt.Errorf("solid: need at least a 2x2 mesh, got %dx%d", n, n)
	}
	top := m.ZTop()
	bottom := func(i, j int) r3.Vec { return r3.Vec{X: m.X[i], Y: m.Y[j], Z: m.Z[j][i]} }
	lid := func(i, j int) r3.Vec { return r3.Vec{X: m.X[i], Y: m.Y[j], Z: top} }

	tris := make([]Triangle, 0, 4*(n-1)*(n-1)+8*(n-1))
	for j := 0; j < n-1; j++ {
		for i := 0; i < n-1; i++ {
			b0, b1, b2, b3 := bottom(i, j), bottom(i+1, j), bottom(i, j+1), bottom(i+1, j+1)
			tris = append(tris, newTriangle(b0, b2, b1), newTriangle(b1, b2, b3))
			t0, t1, t2, t3 := lid(i, j), lid(i+1, j), lid(i, j+1), lid(i+1, j+1)
			tris = append(tris, newTriangle(t0, t1, t2), newTriangle(t1, t3, t2))
		}
	}

	// wall joins bottom edge (a, b) to the lid; flip winds it for walls
	// whose outside faces +Y or -X.
	wall := func(ai, aj, bi, bj int, flip bool) {
		p0, p1, p2, p3 := bottom(ai, aj), bottom(bi, bj), lid(ai, aj), lid(bi, bj)
		if flip {
			tris = append(tris, newTriangle(p0, p2, p1), newTriangle(p1, p2, p3))
			return
		}
		tris = append(tris, newTriangle(p0, p1, p2), newTriangle(p1, p3, p2))
	}
	last := n - 1
	for k := 0; k < last; k++ {
		wall(k, 0, k+1, 0, false)      // front, -Y
		wall(k, last, k+1, last, true) // back, +Y
		wall(0, k, 0, k+1, true)       // left, -X
		wall(last, k, last, k+1, false)
	}
	return tris, nil
}

// Volume returns the enclosed volume of a closed, outward-wound body.
func Volume(tris []Triangle) float64 {
	var v float64
	for _, t := range tris {
		v += r3.Dot(t.V[0], r3.Cross(t.V[1], t.V[2]))
	}
	return v / 6
}

// STL writes the body as an STL file, binary or ASCII.
type STL struct {
	Binary bool
	// Name goes into the ASCII "solid" line or the binary header.
	Name string
}

// Export implements Exporter.
func (s STL) Export(w io.Writer, m *bedmesh.SurfaceMesh) error {
	tris, err := Triangulate(m)
	if err != nil {
		return err
	}
	name := s.Name
	if name == "" {
		name = "bed_mesh"
	}
	bw := bufio.NewWriter(w)
	if s.Binary {
		err = writeBinary(bw, name, tris)
	} else {
		err = writeASCII(bw, name, tris)
	}
	if err != nil {
		return fmt.Errorf("solid: write stl: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("solid: write stl: %w", err)
	}
	return nil
}

func writeBinary(w io.Writer, name string, tris []Triangle) error {
	var header [80]byte
	copy(header[:], name)
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if uint64(len(tris)) > math.MaxUint32 {
		return fmt.Errorf("%d triangles exceed the binary STL limit", len(tris))
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(tris))); err != nil {
		return err
	}

	// normal, three vertices, attribute byte count
	var rec [50]byte
	for _, t := range tris {
		off := 0
		for _, v := range []r3.Vec{t.Normal, t.V[0], t.V[1], t.V[2]} {
			for _, c := range [3]float64{v.X, v.Y, v.Z} {
				binary.LittleEndian.PutUint32(rec[off:], math.Float32bits(float32(c)))
				off += 4
			}
		}
		binary.LittleEndian.PutUint16(rec[off:], 0)
		if _, err := w.Write(rec[:]); err != nil {
			return err
		}
	}
	return nil
}

func writeASCII(w io.Writer, name string, tris []Triangle) error {
	if _, err := fmt.Fprintf(w, "solid %s\n", name); err != nil {
		return err
	}
	for _, t := range tris {
		if _, err := fmt.Fprintf(w, "  facet normal %e %e %e\n    outer loop\n", t.Normal.X, t.Normal.Y, t.Normal.Z); err != nil {
			return err
		}
		for _, v := range t.V {
			if _, err := fmt.Fprintf(w, "      vertex %e %e %e\n", v.X, v.Y, v.Z); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "    endloop\n  endfacet\n"); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "endsolid %s\n", name)
	return err
}
