package bedmesh

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatPoints renders the height matrix as a "points:" block, one row per
// line, six decimals per value.
func FormatPoints(m *SurfaceMesh) string {
	var b strings.Builder
	b.WriteString("points:")
	for _, row := range m.Z {
		b.WriteString("\n  ")
		for col, v := range row {
			if col > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.FormatFloat(v, 'f', 6, 64))
		}
	}
	return b.String()
}

// Format renders a complete mesh document that Parse accepts. Counts and
// bounds are taken from m; the remaining keys come from meta.
func Format(m *SurfaceMesh, meta Metadata) string {
	profile := meta.Profile
	if profile == "" {
		profile = "bed_mesh default"
	}
	minX, maxX, minY, maxY := m.Bounds()

	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n", profile)
	b.WriteString("version: 1\n")
	b.WriteString(FormatPoints(m))
	b.WriteString("\n")
	fmt.Fprintf(&b, "x_count: %d\n", m.Nx())
	fmt.Fprintf(&b, "y_count: %d\n", m.Ny())
	fmt.Fprintf(&b, "mesh_x_pps: %d\n", meta.MeshXPPS)
	fmt.Fprintf(&b, "mesh_y_pps: %d\n", meta.MeshYPPS)
	fmt.Fprintf(&b, "algo: %s\n", meta.Algo)
	fmt.Fprintf(&b, "tension: %s\n", formatScalar(meta.Tension))
	fmt.Fprintf(&b, "min_x: %s\n", formatScalar(minX))
	fmt.Fprintf(&b, "max_x: %s\n", formatScalar(maxX))
	fmt.Fprintf(&b, "min_y: %s\n", formatScalar(minY))
	fmt.Fprintf(&b, "max_y: %s\n", formatScalar(maxY))
	return b.String()
}

// formatScalar always keeps a decimal point so the value reads back as a float.
func formatScalar(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
