// Package testutil provides shared test utilities and fixtures.
//
// Fixtures here are plain text and slices so that any package, including
// bedmesh itself, can use them without an import cycle.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// SampleMeshText is a 9x9 profile as saved by the firmware, including the
// comment prefix it writes inside printer.cfg.
const SampleMeshText = `#*# [bed_mesh raw, 120C]
#*# version = 1
#*# points =
#*# 	0.093000, 0.276000, 0.416000, 0.528000, 0.571000, 0.549000, 0.464000, 0.331000, 0.149000
#*# 	0.041000, 0.219000, 0.356000, 0.456000, 0.486000, 0.441000, 0.326000, 0.176000, -0.004000
#*# 	0.036000, 0.206000, 0.321000, 0.416000, 0.439000, 0.394000, 0.259000, 0.131000, -0.054000
#*# 	0.001000, 0.206000, 0.309000, 0.409000, 0.431000, 0.369000, 0.256000, 0.126000, -0.074000
#*# 	-0.029000, 0.189000, 0.321000, 0.421000, 0.424000, 0.386000, 0.292000, 0.154000, -0.027000
#*# 	-0.024000, 0.201000, 0.334000, 0.441000, 0.469000, 0.441000, 0.339000, 0.211000, 0.022000
#*# 	0.034000, 0.214000, 0.376000, 0.574000, 0.543000, 0.521000, 0.421000, 0.304000, 0.133000
#*# 	0.098000, 0.299000, 0.451000, 0.621000, 0.651000, 0.644000, 0.553000, 0.431000, 0.261000
#*# 	0.187000, 0.381000, 0.578000, 0.786000, 0.883000, 0.841000, 0.734000, 0.624000, 0.463000
#*# x_count = 9
#*# y_count = 9
#*# mesh_x_pps = 2
#*# mesh_y_pps = 2
#*# algo = bicubic
#*# tension = 0.2
#*# min_x = 5.0
#*# max_x = 345.0
#*# min_y = 5.0
#*# max_y = 345.0
#*#
`

// ShimMeshText is a plain (unprefixed) profile using "key: value" metadata.
const ShimMeshText = `
[bed_mesh shim-70%-with-plate-9x9]
version: 1
points:
  -0.068000, -0.080000, -0.080000, -0.045000, -0.032000, -0.035000, -0.042000, 0.010000, 0.015000
  -0.069000, -0.090000, -0.067000, -0.074000, -0.072000, -0.062000, -0.099000, -0.095000, -0.062000
  -0.047000, -0.088000, -0.085000, -0.080000, -0.042000, -0.110000, -0.150000, -0.135000, -0.110000
  -0.072000, -0.089000, -0.060000, -0.025000, 0.010000, -0.057000, -0.125000, -0.152000, -0.117000
  -0.075000, -0.104000, -0.060000, -0.012000, -0.003000, -0.038000, -0.109000, -0.130000, -0.117000
  -0.119000, -0.119000, -0.079000, -0.075000, -0.110000, -0.075000, -0.080000, -0.107000, -0.120000
  -0.082000, -0.105000, -0.084000, -0.050000, -0.057000, -0.082000, -0.075000, -0.084000, -0.065000
  -0.062000, -0.090000, -0.010000, -0.005000, 0.008000, -0.020000, -0.013000, -0.003000, 0.057000
  0.053000, -0.007000, 0.033000, 0.068000, 0.096000, 0.103000, 0.108000, 0.100000, 0.173000
x_count: 9
y_count: 9
mesh_x_pps: 2
mesh_y_pps: 2
algo: bicubic
tension: 0.2
min_x: 5.0
max_x: 345.0
min_y: 5.0
max_y: 345.0
`

// RampMeshText is a 4x4 mesh over [0,15]x[0,15] whose height rises 0.05 per
// column and 0.1 per row, i.e. z = 0.01*x + 0.02*y.
const RampMeshText = `[bed_mesh ramp]
version: 1
points:
  0.0, 0.05, 0.1, 0.15
  0.1, 0.15, 0.2, 0.25
  0.2, 0.25, 0.3, 0.35
  0.3, 0.35, 0.4, 0.45
x_count: 4
y_count: 4
min_x: 0.0
max_x: 15.0
min_y: 0.0
max_y: 15.0
`

// Grid returns evenly spaced axes over [0, (nx-1)*step] x [0, (ny-1)*step]
// and heights from f.
func Grid(nx, ny int, step float64, f func(x, y float64) float64) (xs, ys []float64, z [][]float64) {
	xs = make([]float64, nx)
	for i := range xs {
		xs[i] = float64(i) * step
	}
	ys = make([]float64, ny)
	for j := range ys {
		ys[j] = float64(j) * step
	}
	z = make([][]float64, ny)
	for j := range z {
		z[j] = make([]float64, nx)
		for i := range z[j] {
			z[j][i] = f(xs[i], ys[j])
		}
	}
	return xs, ys, z
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}
