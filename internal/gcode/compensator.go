package gcode

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/banshee-data/bedmesh/internal/bedmesh"
	"github.com/banshee-data/bedmesh/internal/config"
	"github.com/banshee-data/bedmesh/internal/surface"
)

// maxLineBytes bounds a single G-code line read by Run.
const maxLineBytes = 1024 * 1024

// Options controls move subdivision and segment collapsing.
type Options struct {
	// MoveCheckDistance is the longest XY step between correction samples.
	MoveCheckDistance float64
	// SplitDeltaZ is the largest corrected-Z change merged into one segment.
	SplitDeltaZ float64
	// RecordProfile keeps a Sample for every emitted segment.
	RecordProfile bool
}

// OptionsFromConfig reads the compensator settings from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MoveCheckDistance: cfg.GetMoveCheckDistance(),
		SplitDeltaZ:       cfg.GetSplitDeltaZ(),
	}
}

func (o Options) validate() error {
	if !(o.MoveCheckDistance > 0) {
		return &config.ConfigError{Field: "move_check_distance", Reason: fmt.Sprintf("must be positive, got %g", o.MoveCheckDistance)}
	}
	if !(o.SplitDeltaZ >= 0) {
		return &config.ConfigError{Field: "split_delta_z", Reason: fmt.Sprintf("must be non-negative, got %g", o.SplitDeltaZ)}
	}
	return nil
}

// Sample is one emitted segment, kept for plotting.
type Sample struct {
	Line       int     `json:"line"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	NominalZ   float64 `json:"nominal_z"`
	CorrectedZ float64 `json:"corrected_z"`
}

// Compensator rewrites a toolpath one line at a time. It carries the printer
// position between lines, so a Compensator serves exactly one file and is
// not safe for concurrent use.
type Compensator struct {
	mesh    *bedmesh.SurfaceMesh
	surface surface.Evaluator
	opts    Options

	state   PrinterState
	stats   Stats
	lineNo  int
	samples []Sample
}

// NewCompensator fits m with fit (a BicubicFitter when nil) and returns a
// compensator positioned at the origin.
func NewCompensator(m *bedmesh.SurfaceMesh, fit surface.Fitter, opts Options) (*Compensator, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if fit == nil {
		fit = surface.BicubicFitter{}
	}
	ev, err := fit.Fit(m)
	if err != nil {
		return nil, fmt.Errorf("fit surface: %w", err)
	}
	return &Compensator{mesh: m, surface: ev, opts: opts}, nil
}

// State returns the current nominal printer state.
func (c *Compensator) State() PrinterState { return c.state }

// Stats returns the counters accumulated so far.
func (c *Compensator) Stats() Stats {
	s := c.stats
	s.ParameterErrors = append([]ParameterError(nil), c.stats.ParameterErrors...)
	return s
}

// Samples returns the recorded segments when Options.RecordProfile is set.
func (c *Compensator) Samples() []Sample { return c.samples }

// ProcessLine returns the output lines for one input line.
func (c *Compensator) ProcessLine(line string) []string {
	c.lineNo++
	c.stats.LinesIn++

	if IsPassthrough(line) {
		c.stats.Passthrough++
		return c.emit(line)
	}
	ml := ParseLine(line)
	if !IsMotion(ml.Command) {
		c.stats.Unhandled++
		tracef("line %d: %q not a motion command, copied", c.lineNo, ml.Command)
		return c.emit(line)
	}
	c.stats.Motion++
	c.recordRaw(ml)

	target := c.state.Resolve(ml)
	points := SplitMove(c.state.Position, target, c.opts.MoveCheckDistance)
	segs := make([]Segment, len(points))
	for i, p := range points {
		delta := c.surface.At(p.X, p.Y)
		segs[i] = Segment{Position: p, NominalZ: p.Z}
		segs[i].Z = p.Z + delta
		c.stats.addCorrection(delta)
		c.stats.Segments++
		if !c.mesh.Contains(p.X, p.Y) {
			c.stats.Extrapolated++
		}
	}
	kept := CollapseSegments(segs, c.opts.SplitDeltaZ)
	c.stats.Collapsed += len(segs) - len(kept)
	tracef("line %d: %d segments, %d kept", c.lineNo, len(segs), len(kept))

	out := make([]string, len(kept))
	for i, s := range kept {
		out[i] = FormatLine(ml, s.Position)
		if c.opts.RecordProfile {
			c.samples = append(c.samples, Sample{Line: c.lineNo, X: s.X, Y: s.Y, NominalZ: s.NominalZ, CorrectedZ: s.Z})
		}
	}
	c.state = c.state.Advance(ml, target)
	c.stats.LinesOut += len(out)
	return out
}

func (c *Compensator) emit(line string) []string {
	c.stats.LinesOut++
	return []string{line}
}

func (c *Compensator) recordRaw(ml MotionLine) {
	if len(ml.Raw) == 0 {
		return
	}
	codes := make([]string, 0, len(ml.Raw))
	for code := range ml.Raw {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		pe := ParameterError{Line: c.lineNo, Code: code, Raw: ml.Raw[code]}
		c.stats.ParameterErrors = append(c.stats.ParameterErrors, pe)
		opsf("%v; kept verbatim", pe)
	}
}

// Apply rewrites lines in order and returns the output lines.
func (c *Compensator) Apply(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, c.ProcessLine(line)...)
	}
	diagf("compensate: %s", c.stats)
	return out
}

// Run streams r through the compensator into w, one output line per
// newline-terminated line. Line endings are normalised to "\n" and the
// output always ends with one.
func (c *Compensator) Run(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	bw := bufio.NewWriter(w)

	for scanner.Scan() {
		for _, out := range c.ProcessLine(scanner.Text()) {
			if _, err := bw.WriteString(out); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			if err := bw.WriteByte('\n'); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read gcode at line %d: %w", c.lineNo+1, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	diagf("compensate: %s", c.stats)
	return nil
}
