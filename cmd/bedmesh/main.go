// Command bedmesh turns a probed bed mesh into a dense correction surface
// and rewrites G-code toolpaths to follow it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/bedmesh/internal/bedmesh"
	"github.com/banshee-data/bedmesh/internal/db"
	"github.com/banshee-data/bedmesh/internal/fsutil"
	"github.com/banshee-data/bedmesh/internal/gcode"
	"github.com/banshee-data/bedmesh/internal/monitor"
	"github.com/banshee-data/bedmesh/internal/surface"
	"github.com/banshee-data/bedmesh/internal/version"
)

// env is what a command may touch outside its arguments.
type env struct {
	ctx    context.Context
	fs     fsutil.FileSystem
	stdout io.Writer
	stderr io.Writer
}

// errUsage marks failures that should be followed by the command's usage.
var errUsage = errors.New("usage")

func main() {
	flag.Usage = printUsage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := &env{ctx: ctx, fs: fsutil.OSFileSystem{}, stdout: os.Stdout, stderr: os.Stderr}
	os.Exit(run(flag.Args(), e))
}

// run dispatches one command and returns the process exit code.
func run(args []string, e *env) int {
	if len(args) < 1 {
		printUsageTo(e.stderr)
		return 2
	}
	command, rest := args[0], args[1:]

	var err error
	switch command {
	case "apply":
		err = handleApply(rest, e)
	case "dome":
		err = handleDome(rest, e)
	case "stl":
		err = handleSTL(rest, e)
	case "plot":
		err = handlePlot(rest, e)
	case "history":
		err = handleHistory(rest, e)
	case "serve":
		err = handleServe(rest, e)
	case "migrate":
		err = handleMigrate(rest, e)
	case "version":
		fmt.Fprintln(e.stdout, version.String())
	case "help":
		printUsageTo(e.stdout)
	default:
		fmt.Fprintf(e.stderr, "Unknown command: %s\n\n", command)
		printUsageTo(e.stderr)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintf(e.stderr, "bedmesh %s: %v\n", command, err)
		return 2
	default:
		fmt.Fprintf(e.stderr, "bedmesh %s: %v\n", command, err)
		return 1
	}
}

func printUsage() { printUsageTo(os.Stderr) }

func printUsageTo(w io.Writer) {
	fmt.Fprint(w, `bedmesh - bed mesh processing and G-code Z compensation

Usage: bedmesh <command> [options]

Commands:
  apply      Rewrite a G-code file so Z follows the processed mesh
  dome       Print dome-compensated meshes for a list of fractions
  stl        Export the processed mesh as a closed STL solid
  plot       Write a heat map PNG of the raw or processed mesh
  history    List stored compensation runs
  serve      Serve stored meshes, plots and the SQL console over HTTP
  migrate    Manage the history database schema (up, down, version)
  version    Show version information
  help       Show this help message

Common Flags:
  --mesh <file>        Bed mesh text (firmware saved-config section)
  --config <file>      JSON configuration (see config/bedmesh.defaults.json)
  --db <file>          SQLite history database
  --verbose            Log stage summaries to stderr
  --trace              Log per-line detail to stderr (implies --verbose)

Examples:
  bedmesh apply --mesh printer.cfg --gcode part.gcode --out part.comp.gcode
  bedmesh apply --mesh printer.cfg --gcode part.gcode --out - --dome-compensation 0.5 --db history.db
  bedmesh stl --mesh printer.cfg --out bed.stl --ascii
  bedmesh serve --db history.db --listen :8080
`)
}

// logFlags registers --verbose and --trace on fs.
func logFlags(fs *flag.FlagSet) (verbose, trace *bool) {
	verbose = fs.Bool("verbose", false, "Log stage summaries to stderr")
	trace = fs.Bool("trace", false, "Log per-line detail to stderr")
	return verbose, trace
}

// setLogWriters routes every package's log streams. Ops warnings always go
// to w.
func setLogWriters(w io.Writer, verbose, trace bool) {
	var diag, tr io.Writer
	if verbose || trace {
		diag = w
	}
	if trace {
		tr = w
	}
	surface.SetLogWriters(w, diag, tr)
	gcode.SetLogWriters(w, diag, tr)
	db.SetLogWriters(w, diag, tr)
	monitor.SetLogWriters(w, diag, tr)
}

func newFlagSet(name string, e *env) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	return nil
}

func requireFlag(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: --%s is required", errUsage, name)
	}
	return nil
}

func readMesh(e *env, path string) (*bedmesh.SurfaceMesh, bedmesh.Metadata, error) {
	data, err := e.fs.ReadFile(path)
	if err != nil {
		return nil, bedmesh.Metadata{}, fmt.Errorf("read mesh: %w", err)
	}
	m, meta, err := bedmesh.ParseWithMetadata(string(data))
	if err != nil {
		return nil, bedmesh.Metadata{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, meta, nil
}

// createOutput opens path for writing; "-" is stdout.
func createOutput(e *env, path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopCloser{e.stdout}, nil
	}
	w, err := e.fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return w, nil
}

// discardOutput removes a partly written output file after a failure.
func discardOutput(e *env, path string) {
	if path == "-" {
		return
	}
	if err := e.fs.Remove(path); err != nil {
		fmt.Fprintf(e.stderr, "bedmesh: remove partial %s: %v\n", path, err)
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
