package main

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/bedmesh/internal/bedmesh"
	"github.com/banshee-data/bedmesh/internal/monitor"
	"github.com/banshee-data/bedmesh/internal/solid"
	"github.com/banshee-data/bedmesh/internal/surface"
)

func parseFractions(s string) ([]float64, error) {
	var out []float64
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad fraction %q", errUsage, f)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: --fractions is empty", errUsage)
	}
	return out, nil
}

func handleDome(args []string, e *env) error {
	fs := newFlagSet("dome", e)
	meshPath := fs.String("mesh", "", "Bed mesh file (required)")
	fractions := fs.String("fractions", "0.3,0.5,0.8", "Comma-separated compensation fractions")
	amplitude := fs.Float64("amplitude", 0.3, "Dome bias amplitude (mm)")
	iterations := fs.Int("iterations", 1, "Damped smoothing passes before compensation")
	lambda := fs.Float64("lambda", 0.6, "Damped smoothing weight")
	verbose, trace := logFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	setLogWriters(e.stderr, *verbose, *trace)
	if err := requireFlag("mesh", *meshPath); err != nil {
		return err
	}
	fracs, err := parseFractions(*fractions)
	if err != nil {
		return err
	}

	mesh, _, err := readMesh(e, *meshPath)
	if err != nil {
		return err
	}
	smoothed, err := surface.Smooth{Mode: surface.SmoothDamped, Iterations: *iterations, Lambda: *lambda}.Apply(mesh)
	if err != nil {
		return err
	}
	for _, f := range fracs {
		corrected, err := surface.CompensateDome(smoothed, *amplitude, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "Compensation: %.1f\n", f)
		fmt.Fprintln(e.stdout, bedmesh.FormatPoints(corrected))
		fmt.Fprintf(e.stdout, "Z top: %.6f\n\n", corrected.ZTop())
	}
	return nil
}

func handleSTL(args []string, e *env) error {
	fs := newFlagSet("stl", e)
	meshPath := fs.String("mesh", "", "Bed mesh file (required)")
	outPath := fs.String("out", "", "Output STL file, or - for stdout (required)")
	ascii := fs.Bool("ascii", false, "Write ASCII STL instead of binary")
	iterations := fs.Int("smooth-iterations", 3, "Full smoothing passes")
	resolution := fs.Int("resolution", 50, "Dense grid samples per axis")
	edgeOffset := fs.Float64("edge-offset", 0.2, "Extended domain inset (mm)")
	verbose, trace := logFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	setLogWriters(e.stderr, *verbose, *trace)
	if err := requireFlag("mesh", *meshPath); err != nil {
		return err
	}
	if err := requireFlag("out", *outPath); err != nil {
		return err
	}

	mesh, meta, err := readMesh(e, *meshPath)
	if err != nil {
		return err
	}
	pipeline, err := surface.NewPipeline(
		surface.Smooth{Mode: surface.SmoothFull, Iterations: *iterations},
		surface.Interpolate{Mode: surface.Extended, Resolution: *resolution, EdgeOffset: *edgeOffset},
	)
	if err != nil {
		return err
	}
	dense, err := pipeline.Run(mesh)
	if err != nil {
		return err
	}

	name := meta.Profile
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(*meshPath), filepath.Ext(*meshPath))
	}
	var exp solid.Exporter = solid.STL{Binary: !*ascii, Name: name}
	out, err := createOutput(e, *outPath)
	if err != nil {
		return err
	}
	if err := exp.Export(out, dense); err != nil {
		out.Close()
		discardOutput(e, *outPath)
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", *outPath, err)
	}
	if *outPath != "-" {
		fmt.Fprintf(e.stdout, "STL saved to %s (%dx%d, z top %.6f)\n", *outPath, dense.Nx(), dense.Ny(), dense.ZTop())
	}
	return nil
}

func handlePlot(args []string, e *env) error {
	fs := newFlagSet("plot", e)
	meshPath := fs.String("mesh", "", "Bed mesh file (required)")
	outPath := fs.String("out", "", "Output PNG file (required)")
	dense := fs.Bool("dense", false, "Plot the processed surface with the probe points on top")
	cf := addConfigFlags(fs)
	verbose, trace := logFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	setLogWriters(e.stderr, *verbose, *trace)
	if err := requireFlag("mesh", *meshPath); err != nil {
		return err
	}
	if err := requireFlag("out", *outPath); err != nil {
		return err
	}

	mesh, meta, err := readMesh(e, *meshPath)
	if err != nil {
		return err
	}
	o := monitor.HeatMapOptions{Title: meta.Profile}
	target := mesh
	if *dense {
		cfg, err := cf.resolve(e)
		if err != nil {
			return err
		}
		pipeline, err := surface.FromConfig(cfg)
		if err != nil {
			return err
		}
		if target, err = pipeline.Run(mesh); err != nil {
			return err
		}
		o.Probes = mesh
	}

	var buf bytes.Buffer
	if err := monitor.RenderHeatMap(&buf, target, o); err != nil {
		return err
	}
	if err := e.fs.WriteFile(*outPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", *outPath, err)
	}
	fmt.Fprintf(e.stdout, "Heat map saved to %s\n", *outPath)
	return nil
}
