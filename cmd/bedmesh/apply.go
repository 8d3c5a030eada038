package main

import (
	"bytes"
	"flag"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/bedmesh/internal/config"
	"github.com/banshee-data/bedmesh/internal/gcode"
	"github.com/banshee-data/bedmesh/internal/monitor"
	"github.com/banshee-data/bedmesh/internal/surface"
	"github.com/banshee-data/bedmesh/internal/timeutil"
)

// configFlags registers one override flag per Config field. Only flags the
// user actually sets end up in the returned Config.
type configFlags struct {
	fs   *flag.FlagSet
	file *string

	smoothMode        *string
	smoothIterations  *int
	smoothLambda      *float64
	domeAmplitude     *float64
	domeCompensation  *float64
	interpolationMode *string
	resolution        *int
	edgeOffset        *float64
	boundary          *string
	moveCheckDistance *float64
	splitDeltaZ       *float64
}

func addConfigFlags(fs *flag.FlagSet) *configFlags {
	d := config.DefaultConfig()
	return &configFlags{
		fs:                fs,
		file:              fs.String("config", "", "JSON configuration file"),
		smoothMode:        fs.String("smooth-mode", *d.SmoothMode, "Smoothing mode: full or damped"),
		smoothIterations:  fs.Int("smooth-iterations", *d.SmoothIterations, "Smoothing passes"),
		smoothLambda:      fs.Float64("smooth-lambda", *d.SmoothLambda, "Damped smoothing weight in [0,1]"),
		domeAmplitude:     fs.Float64("dome-amplitude", *d.DomeAmplitude, "Dome bias amplitude (mm)"),
		domeCompensation:  fs.Float64("dome-compensation", *d.DomeCompensation, "Dome compensation fraction; 0 disables"),
		interpolationMode: fs.String("interpolation", *d.InterpolationMode, "Interpolation domain: extended or interior"),
		resolution:        fs.Int("resolution", *d.Resolution, "Dense grid samples per axis"),
		edgeOffset:        fs.Float64("edge-offset", *d.EdgeOffset, "Extended domain inset (mm)"),
		boundary:          fs.String("boundary", *d.Boundary, "Spline end condition: not-a-knot or natural"),
		moveCheckDistance: fs.Float64("move-check-distance", *d.MoveCheckDistance, "Longest XY step between corrections (mm)"),
		splitDeltaZ:       fs.Float64("split-delta-z", *d.SplitDeltaZ, "Largest Z change merged into one segment (mm)"),
	}
}

func (cf *configFlags) overrides() *config.Config {
	o := config.EmptyConfig()
	cf.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "smooth-mode":
			o.SmoothMode = config.String(*cf.smoothMode)
		case "smooth-iterations":
			o.SmoothIterations = config.Int(*cf.smoothIterations)
		case "smooth-lambda":
			o.SmoothLambda = config.Float64(*cf.smoothLambda)
		case "dome-amplitude":
			o.DomeAmplitude = config.Float64(*cf.domeAmplitude)
		case "dome-compensation":
			o.DomeCompensation = config.Float64(*cf.domeCompensation)
		case "interpolation":
			o.InterpolationMode = config.String(*cf.interpolationMode)
		case "resolution":
			o.Resolution = config.Int(*cf.resolution)
		case "edge-offset":
			o.EdgeOffset = config.Float64(*cf.edgeOffset)
		case "boundary":
			o.Boundary = config.String(*cf.boundary)
		case "move-check-distance":
			o.MoveCheckDistance = config.Float64(*cf.moveCheckDistance)
		case "split-delta-z":
			o.SplitDeltaZ = config.Float64(*cf.splitDeltaZ)
		}
	})
	return o
}

// resolve layers defaults, the --config file and explicit flags, in that
// order, and validates the result.
func (cf *configFlags) resolve(e *env) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if *cf.file != "" {
		fileCfg, err := config.LoadConfigFS(e.fs, *cf.file)
		if err != nil {
			return nil, err
		}
		cfg = cfg.Merge(fileCfg)
	}
	cfg = cfg.Merge(cf.overrides())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func handleApply(args []string, e *env) error {
	fs := newFlagSet("apply", e)
	meshPath := fs.String("mesh", "", "Bed mesh file (required)")
	gcodePath := fs.String("gcode", "", "Input G-code file (required)")
	outPath := fs.String("out", "", "Output G-code file, or - for stdout (required)")
	dbPath := fs.String("db", "", "Record the mesh and run in this SQLite database")
	profilePath := fs.String("profile", "", "Write a nominal vs corrected Z plot (PNG)")
	cf := addConfigFlags(fs)
	verbose, trace := logFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	setLogWriters(e.stderr, *verbose, *trace)
	for _, req := range [][2]string{{"mesh", *meshPath}, {"gcode", *gcodePath}, {"out", *outPath}} {
		if err := requireFlag(req[0], req[1]); err != nil {
			return err
		}
	}

	cfg, err := cf.resolve(e)
	if err != nil {
		return err
	}
	clock := timeutil.RealClock{}
	started := clock.Now()

	mesh, meta, err := readMesh(e, *meshPath)
	if err != nil {
		return err
	}
	pipeline, err := surface.FromConfig(cfg)
	if err != nil {
		return err
	}
	dense, err := pipeline.Run(mesh)
	if err != nil {
		return err
	}
	bc, err := surface.ParseBoundary(cfg.GetBoundary())
	if err != nil {
		return err
	}
	opts := gcode.OptionsFromConfig(cfg)
	opts.RecordProfile = *profilePath != ""
	comp, err := gcode.NewCompensator(dense, surface.BicubicFitter{Boundary: bc}, opts)
	if err != nil {
		return err
	}

	in, err := e.fs.Open(*gcodePath)
	if err != nil {
		return fmt.Errorf("open gcode: %w", err)
	}
	defer in.Close()
	out, err := createOutput(e, *outPath)
	if err != nil {
		return err
	}
	if err := comp.Run(in, out); err != nil {
		out.Close()
		discardOutput(e, *outPath)
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", *outPath, err)
	}
	stats := comp.Stats()

	if *profilePath != "" {
		var buf bytes.Buffer
		if err := monitor.RenderProfile(&buf, comp.Samples(), filepath.Base(*gcodePath)); err != nil {
			return err
		}
		if err := e.fs.WriteFile(*profilePath, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write profile: %w", err)
		}
	}

	if *dbPath != "" {
		if err := recordRun(*dbPath, mesh, meta, cfg, pipeline, filepath.Base(*gcodePath), stats, started, clock.Now()); err != nil {
			return err
		}
	}

	// Status goes to stderr when the G-code itself is on stdout.
	status := e.stdout
	if *outPath == "-" {
		status = e.stderr
	}
	fmt.Fprintf(status, "G-code saved to %s\n", *outPath)
	fmt.Fprintf(status, "Pipeline: %s\n", pipeline)
	fmt.Fprintf(status, "Stats: %s\n", stats)
	return nil
}
