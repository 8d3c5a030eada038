package surface

import (
	"bytes"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/bedmesh/internal/bedmesh"
	"github.com/banshee-data/bedmesh/internal/config"
	"github.com/banshee-data/bedmesh/internal/testutil"
)

func TestSmooth_ZeroIterationsIsIdentity(t *testing.T) {
	t.Parallel()

	m := mustParse(t, testutil.SampleMeshText)
	full, err := SmoothLaplacian(m, 0)
	require.NoError(t, err)
	damped, err := SmoothLaplacianDamped(m, 0, 0.6)
	require.NoError(t, err)

	assert.True(t, m.Equal(full))
	assert.True(t, m.Equal(damped))
	assert.NotSame(t, m, full)
}

func TestSmooth_BorderNeverChanges(t *testing.T) {
	t.Parallel()

	m := mustParse(t, testutil.SampleMeshText)
	for _, n := range []int{1, 2, 7, 50} {
		for name, run := range map[string]func() (*bedmesh.SurfaceMesh, error){
			"full":   func() (*bedmesh.SurfaceMesh, error) { return SmoothLaplacian(m, n) },
			"damped": func() (*bedmesh.SurfaceMesh, error) { return SmoothLaplacianDamped(m, n, 0.6) },
		} {
			out, err := run()
			require.NoError(t, err)
			last := m.Ny() - 1
			assert.Equal(t, m.Z[0], out.Z[0], "%s n=%d top row", name, n)
			assert.Equal(t, m.Z[last], out.Z[last], "%s n=%d bottom row", name, n)
			for row := range m.Z {
				assert.Equal(t, m.Z[row][0], out.Z[row][0], "%s n=%d left col", name, n)
				assert.Equal(t, m.Z[row][m.Nx()-1], out.Z[row][m.Nx()-1], "%s n=%d right col", name, n)
			}
		}
	}
}

func TestSmooth_ReadsPreviousIterationOnly(t *testing.T) {
	t.Parallel()

	// Two interior cells side by side; an in-place update would let the
	// second read the first's new value.
	m := mustMesh(t, []float64{0, 1, 2, 3}, []float64{0, 1, 2}, [][]float64{
		{0, 0, 0, 0},
		{0, 4, 0, 0},
		{0, 0, 0, 0},
	})
	out, err := SmoothLaplacian(m, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1, 0}, out.Z[1])
	assert.Equal(t, 1.0, out.ZTop())

	damped, err := SmoothLaplacianDamped(m, 1, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2, 0.5, 0}, damped.Z[1])
	assert.Equal(t, 2.0, damped.ZTop())

	assert.Equal(t, 4.0, m.Z[1][1], "input must not be modified")
}

func TestSmooth_DampedLambdaOneMatchesFull(t *testing.T) {
	t.Parallel()

	m := mustParse(t, testutil.ShimMeshText)
	full, err := SmoothLaplacian(m, 3)
	require.NoError(t, err)
	damped, err := SmoothLaplacianDamped(m, 3, 1)
	require.NoError(t, err)
	assert.True(t, full.Equal(damped))
}

func TestSmooth_Rejects(t *testing.T) {
	t.Parallel()

	m := mustParse(t, testutil.RampMeshText)
	_, err := SmoothLaplacian(m, -1)
	assert.Error(t, err)
	_, err = SmoothLaplacianDamped(m, 1, 1.2)
	assert.Error(t, err)
	_, err = SmoothLaplacianDamped(m, 1, -0.1)
	assert.Error(t, err)
	_, err = SmoothLaplacianDamped(m, 1, math.NaN())
	assert.Error(t, err)
}

func TestSmooth_NarrowGridHasNoInterior(t *testing.T) {
	t.Parallel()

	m := mustMesh(t, []float64{0, 1, 2}, []float64{0, 1}, [][]float64{{1, 5, 1}, {2, 9, 2}})
	out, err := SmoothLaplacian(m, 10)
	require.NoError(t, err)
	assert.True(t, m.Equal(out))
}

func TestDome_ZeroFractionIsIdentity(t *testing.T) {
	t.Parallel()

	m := mustParse(t, testutil.SampleMeshText)
	out, err := CompensateDome(m, 0.3, 0)
	require.NoError(t, err)
	if diff := cmp.Diff(m.Z, out.Z); diff != "" {
		t.Errorf("z changed (-in +out):\n%s", diff)
	}
	assert.Equal(t, m.ZTop(), out.ZTop())
}

func TestDome_CentreAndEdges(t *testing.T) {
	t.Parallel()

	zero := [][]float64{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}}
	m := mustMesh(t, []float64{10, 15, 20}, []float64{100, 150, 200}, zero)
	out, err := CompensateDome(m, 0.3, 0.5)
	require.NoError(t, err)

	assert.InDelta(t, 0.15, out.Z[1][1], 1e-12)
	for _, rc := range [][2]int{{0, 0}, {0, 1}, {1, 0}, {2, 2}, {2, 1}} {
		assert.InDelta(t, 0, out.Z[rc[0]][rc[1]], 1e-12, "edge cell %v", rc)
	}
	assert.InDelta(t, 0.15, out.ZTop(), 1e-12)
}

func TestDome_BiasShape(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, DomeProfile(175, 350))
	assert.Equal(t, 0.0, DomeProfile(0, 350))
	assert.Equal(t, 0.0, DomeProfile(350, 350))
	assert.InDelta(t, 0.75, DomeProfile(87.5, 350), 1e-12)

	m := mustParse(t, testutil.SampleMeshText)
	// Profiles are measured from the mesh minimum, so the peak is at the
	// mesh centre (175, 175), not at half the bed size.
	assert.InDelta(t, 0.3, DomeBias(m, 0.3, 175, 175), 1e-12)
	assert.InDelta(t, 0.3*0.75*0.75, DomeBias(m, 0.3, 90, 175), 1e-12)
}

func TestDome_Rejects(t *testing.T) {
	t.Parallel()

	m := mustParse(t, testutil.RampMeshText)
	_, err := CompensateDome(m, 0.3, 1.5)
	assert.Error(t, err)
	_, err = CompensateDome(m, 0.3, -0.5)
	assert.Error(t, err)
	_, err = CompensateDome(m, 0.3, math.NaN())
	assert.Error(t, err)
	_, err = CompensateDome(m, math.NaN(), 0.5)
	assert.Error(t, err)
	_, err = CompensateDome(m, math.Inf(1), 0.5)
	assert.Error(t, err)

	flat := mustMesh(t, []float64{5}, []float64{0, 1}, [][]float64{{0}, {0}})
	_, err = CompensateDome(flat, 0.3, 0.5)
	assert.Error(t, err)
}

func TestInterpolateInterior(t *testing.T) {
	t.Parallel()

	m := mustParse(t, testutil.RampMeshText)
	out, err := InterpolateInterior(m, 6, BicubicFitter{})
	require.NoError(t, err)

	assert.Equal(t, 6, out.Nx())
	assert.Equal(t, 6, out.Ny())
	assert.Equal(t, []float64{0, 3, 6, 9, 12, 15}, out.X)
	for row, y := range out.Y {
		for col, x := range out.X {
			assert.InDelta(t, 0.01*x+0.02*y, out.Z[row][col], 1e-12)
		}
	}
	assert.InDelta(t, 0.45, out.ZTop(), 1e-12)
}

func TestInterpolateInterior_KeepsNodesOfSampleMesh(t *testing.T) {
	t.Parallel()

	m := mustParse(t, testutil.SampleMeshText)
	// 17 samples over 9 nodes puts every original node on the new grid.
	out, err := InterpolateInterior(m, 17, nil)
	require.NoError(t, err)
	for row := range m.Y {
		for col := range m.X {
			assert.InDelta(t, m.Z[row][col], out.Z[2*row][2*col], 1e-6)
		}
	}
	assert.GreaterOrEqual(t, out.ZTop(), m.ZTop()-1e-6)
}

func TestInterpolateExtended_OriginRelativeDomain(t *testing.T) {
	t.Parallel()

	m := mustParse(t, testutil.SampleMeshText)
	out, err := InterpolateExtended(m, 8, 0, BicubicFitter{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.X[0])
	assert.Equal(t, 350.0, out.X[7])
	assert.Equal(t, 0.0, out.Y[0])
	assert.Equal(t, 350.0, out.Y[7])

	out, err = InterpolateExtended(m, 3, 0.2, BicubicFitter{})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.2, 175, 349.8}, out.X, 1e-9)

	// A mesh away from the origin shows the literal formula most clearly.
	shifted := mustMesh(t, []float64{100, 110}, []float64{200, 220}, [][]float64{{0, 0}, {0, 0}})
	out, err = InterpolateExtended(shifted, 2, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 200}, out.X)
	assert.Equal(t, []float64{10, 410}, out.Y)
}

func TestInterpolateExtended_LogsExtrapolation(t *testing.T) {
	var ops bytes.Buffer
	SetLogWriters(&ops, nil, nil)
	t.Cleanup(func() { SetLogWriters(nil, nil, nil) })

	m := mustParse(t, testutil.SampleMeshText)
	_, err := InterpolateExtended(m, 4, 0, nil)
	require.NoError(t, err)
	assert.Contains(t, ops.String(), "extrapolates beyond mesh")
}

func TestInterpolate_Rejects(t *testing.T) {
	t.Parallel()

	m := mustParse(t, testutil.RampMeshText)
	_, err := InterpolateInterior(m, 1, nil)
	assert.Error(t, err)
	_, err = InterpolateExtended(m, 1, 0, nil)
	assert.Error(t, err)
	_, err = InterpolateExtended(m, 10, 8, nil)
	assert.ErrorContains(t, err, "empty domain")
}

func TestPipeline_Order(t *testing.T) {
	t.Parallel()

	smooth := Smooth{Mode: SmoothFull, Iterations: 1}
	dome := Dome{Amplitude: 0.3, Fraction: 0.5}
	dense := Interpolate{Mode: Interior, Resolution: 5}

	_, err := NewPipeline(smooth, dome, dense)
	require.NoError(t, err)
	_, err = NewPipeline(smooth, dense)
	require.NoError(t, err)

	for name, stages := range map[string][]Stage{
		"dome before smooth":      {dome, smooth, dense},
		"interpolate before dome": {smooth, dense, dome},
		"smooth twice":            {smooth, smooth},
		"nil stage":               {smooth, nil},
	} {
		_, err := NewPipeline(stages...)
		assert.Error(t, err, name)
	}
}

func TestPipeline_RunDoesNotModifyInput(t *testing.T) {
	t.Parallel()

	m := mustParse(t, testutil.SampleMeshText)
	before := m.CloneZ()
	p, err := NewPipeline(
		Smooth{Mode: SmoothDamped, Iterations: 2, Lambda: 0.6},
		Dome{Amplitude: 0.3, Fraction: 1},
		Interpolate{Mode: Extended, Resolution: 20, EdgeOffset: 0.2},
	)
	require.NoError(t, err)

	out, err := p.Run(m)
	require.NoError(t, err)
	assert.Equal(t, before, m.Z)
	assert.Equal(t, 20, out.Nx())
	assert.True(t, out.IsFinite())
	assert.Len(t, p.Stages(), 3)
	assert.Equal(t, "smooth(damped, n=2) -> dome(a=0.3, f=1) -> interpolate(extended, r=20)", p.String())
}

func TestPipeline_MatchesStageByStage(t *testing.T) {
	t.Parallel()

	m := mustParse(t, testutil.ShimMeshText)
	p, err := NewPipeline(Smooth{Mode: SmoothFull, Iterations: 3}, Interpolate{Mode: Extended, Resolution: 10, EdgeOffset: 0.2})
	require.NoError(t, err)
	got, err := p.Run(m)
	require.NoError(t, err)

	smoothed, err := SmoothLaplacian(m, 3)
	require.NoError(t, err)
	want, err := InterpolateExtended(smoothed, 10, 0.2, BicubicFitter{})
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestPipeline_ErrorNamesStage(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(Smooth{Mode: SmoothDamped, Iterations: 1, Lambda: 3})
	require.NoError(t, err)
	_, err = p.Run(mustParse(t, testutil.RampMeshText))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smooth(damped, n=1)")
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	p, err := FromConfig(config.EmptyConfig())
	require.NoError(t, err)
	assert.Equal(t, "smooth(damped, n=1) -> interpolate(extended, r=100)", p.String())

	cfg := &config.Config{
		SmoothMode:        config.String(config.SmoothFull),
		DomeCompensation:  config.Float64(0.5),
		InterpolationMode: config.String(config.InterpolationInterior),
		Resolution:        config.Int(12),
		Boundary:          config.String(config.BoundaryNatural),
	}
	p, err = FromConfig(cfg)
	require.NoError(t, err)
	stages := p.Stages()
	require.Len(t, stages, 3)
	assert.Equal(t, Dome{Amplitude: 0.3, Fraction: 0.5}, stages[1])
	assert.Equal(t, BicubicFitter{Boundary: Natural}, stages[2].(Interpolate).Fitter)

	_, err = FromConfig(&config.Config{Resolution: config.Int(1)})
	assert.ErrorIs(t, err, config.ErrConfig)
}
