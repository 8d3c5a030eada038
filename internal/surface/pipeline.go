package surface

import (
	"fmt"
	"strings"

	"github.com/banshee-data/bedmesh/internal/bedmesh"
	"github.com/banshee-data/bedmesh/internal/config"
)

// Stage is one pure mesh transform. Stages are ranked so a Pipeline can
// only run smoothing, then dome compensation, then interpolation.
type Stage interface {
	Name() string
	Apply(m *bedmesh.SurfaceMesh) (*bedmesh.SurfaceMesh, error)
	rank() int
}

const (
	rankSmooth = iota + 1
	rankDome
	rankInterpolate
)

// Smooth is the Laplacian relaxation stage.
type Smooth struct {
	Mode       SmoothMode
	Iterations int
	Lambda     float64 // used only by SmoothDamped
}

func (s Smooth) Name() string { return fmt.Sprintf("smooth(%s, n=%d)", s.Mode, s.Iterations) }
func (Smooth) rank() int      { return rankSmooth }

// Apply implements Stage.
func (s Smooth) Apply(m *bedmesh.SurfaceMesh) (*bedmesh.SurfaceMesh, error) {
	switch s.Mode {
	case SmoothFull:
		return SmoothLaplacian(m, s.Iterations)
	case SmoothDamped, "":
		return SmoothLaplacianDamped(m, s.Iterations, s.Lambda)
	}
	return nil, fmt.Errorf("smooth: unknown mode %q", s.Mode)
}

// Dome is the dome bias compensation stage.
type Dome struct {
	Amplitude float64
	Fraction  float64
}

func (d Dome) Name() string { return fmt.Sprintf("dome(a=%g, f=%g)", d.Amplitude, d.Fraction) }
func (Dome) rank() int      { return rankDome }

// Apply implements Stage.
func (d Dome) Apply(m *bedmesh.SurfaceMesh) (*bedmesh.SurfaceMesh, error) {
	return CompensateDome(m, d.Amplitude, d.Fraction)
}

// Interpolate is the dense resampling stage.
type Interpolate struct {
	Mode       InterpolationMode
	Resolution int
	EdgeOffset float64 // used only by Extended
	Fitter     Fitter  // nil selects BicubicFitter{}
}

func (in Interpolate) Name() string {
	return fmt.Sprintf("interpolate(%s, r=%d)", in.Mode, in.Resolution)
}
func (Interpolate) rank() int { return rankInterpolate }

// Apply implements Stage.
func (in Interpolate) Apply(m *bedmesh.SurfaceMesh) (*bedmesh.SurfaceMesh, error) {
	switch in.Mode {
	case Interior:
		return InterpolateInterior(m, in.Resolution, in.Fitter)
	case Extended, "":
		return InterpolateExtended(m, in.Resolution, in.EdgeOffset, in.Fitter)
	}
	return nil, fmt.Errorf("interpolate: unknown mode %q", in.Mode)
}

// Pipeline is a fixed, ordered list of stages.
type Pipeline struct {
	stages []Stage
}

// NewPipeline checks that stages appear in smooth, dome, interpolate order,
// each at most once.
func NewPipeline(stages ...Stage) (*Pipeline, error) {
	last := 0
	for i, s := range stages {
		if s == nil {
			return nil, fmt.Errorf("pipeline: stage %d is nil", i)
		}
		if s.rank() <= last {
			return nil, fmt.Errorf("pipeline: stage %d %s is out of order (want smooth, dome, interpolate)", i, s.Name())
		}
		last = s.rank()
	}
	return &Pipeline{stages: append([]Stage(nil), stages...)}, nil
}

// Stages returns a copy of the stage list.
func (p *Pipeline) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

// String lists the stage names joined by arrows.
func (p *Pipeline) String() string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return strings.Join(names, " -> ")
}

// Run applies every stage in order. The input mesh is never modified.
func (p *Pipeline) Run(m *bedmesh.SurfaceMesh) (*bedmesh.SurfaceMesh, error) {
	cur := m
	for _, s := range p.stages {
		next, err := s.Apply(cur)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name(), err)
		}
		cur = next
	}
	diagf("pipeline: %s done, z_top %.6f", p, cur.ZTop())
	return cur, nil
}

// FromConfig builds the standard smooth, dome, interpolate pipeline. The
// dome stage is left out when dome_compensation is 0.
func FromConfig(cfg *config.Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bc, err := ParseBoundary(cfg.GetBoundary())
	if err != nil {
		return nil, err
	}
	stages := []Stage{Smooth{
		Mode:       SmoothMode(cfg.GetSmoothMode()),
		Iterations: cfg.GetSmoothIterations(),
		Lambda:     cfg.GetSmoothLambda(),
	}}
	if f := cfg.GetDomeCompensation(); f > 0 {
		stages = append(stages, Dome{Amplitude: cfg.GetDomeAmplitude(), Fraction: f})
	}
	stages = append(stages, Interpolate{
		Mode:       InterpolationMode(cfg.GetInterpolationMode()),
		Resolution: cfg.GetResolution(),
		EdgeOffset: cfg.GetEdgeOffset(),
		Fitter:     BicubicFitter{Boundary: bc},
	})
	return NewPipeline(stages...)
}
