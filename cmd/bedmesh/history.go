package main

import (
	"errors"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/bedmesh/internal/bedmesh"
	"github.com/banshee-data/bedmesh/internal/config"
	"github.com/banshee-data/bedmesh/internal/db"
	"github.com/banshee-data/bedmesh/internal/gcode"
	"github.com/banshee-data/bedmesh/internal/monitor"
	"github.com/banshee-data/bedmesh/internal/surface"
)

func recordRun(path string, m *bedmesh.SurfaceMesh, meta bedmesh.Metadata, cfg *config.Config, p *surface.Pipeline, gcodeName string, stats gcode.Stats, started, finished time.Time) error {
	store, err := db.NewDB(path)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	rec, err := store.InsertMesh(m, meta)
	if err != nil {
		return err
	}
	cfgJSON, err := cfg.JSON()
	if err != nil {
		return err
	}
	return store.InsertRun(&db.RunRecord{
		MeshID:     rec.ID,
		GCodeName:  gcodeName,
		Pipeline:   p.String(),
		Config:     cfgJSON,
		Stats:      stats,
		StartedAt:  started,
		FinishedAt: finished,
	})
}

func handleHistory(args []string, e *env) error {
	fs := newFlagSet("history", e)
	dbPath := fs.String("db", "", "SQLite history database (required)")
	meshID := fs.String("mesh", "", "Only list runs for this mesh id")
	limit := fs.Int("limit", 20, "Maximum runs to list; 0 lists all")
	verbose, trace := logFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	setLogWriters(e.stderr, *verbose, *trace)
	if err := requireFlag("db", *dbPath); err != nil {
		return err
	}

	store, err := db.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(*meshID, *limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(e.stdout, "No runs recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FINISHED\tRUN\tMESH\tGCODE\tLINES\tCORRECTION\tPIPELINE")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d->%d\t%.4f..%.4f\t%s\n",
			r.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			r.ID, r.MeshID, r.GCodeName,
			r.Stats.LinesIn, r.Stats.LinesOut,
			r.Stats.MinCorrection, r.Stats.MaxCorrection,
			r.Pipeline)
	}
	return tw.Flush()
}

func handleServe(args []string, e *env) error {
	fs := newFlagSet("serve", e)
	dbPath := fs.String("db", "", "SQLite history database (required)")
	listen := fs.String("listen", "127.0.0.1:8080", "HTTP listen address")
	assets := fs.String("assets-host", "", "Load chart scripts from this host instead of the CDN")
	cf := addConfigFlags(fs)
	verbose, trace := logFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	setLogWriters(e.stderr, *verbose, *trace)
	if err := requireFlag("db", *dbPath); err != nil {
		return err
	}

	cfg, err := cf.resolve(e)
	if err != nil {
		return err
	}
	pipeline, err := surface.FromConfig(cfg)
	if err != nil {
		return err
	}
	store, err := db.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	ws, err := monitor.NewWebServer(monitor.WebServerConfig{
		Address:    *listen,
		DB:         store,
		Pipeline:   pipeline,
		AssetsHost: *assets,
	})
	if err != nil {
		return err
	}
	return ws.Start(e.ctx)
}

func handleMigrate(args []string, e *env) error {
	fs := newFlagSet("migrate", e)
	dbPath := fs.String("db", "", "SQLite history database (required)")
	verbose, trace := logFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	setLogWriters(e.stderr, *verbose, *trace)
	if err := requireFlag("db", *dbPath); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: want one of up, down, version", errUsage)
	}
	action := fs.Arg(0)

	migrations, err := db.MigrationsFS()
	if err != nil {
		return err
	}
	store, err := db.OpenDB(*dbPath)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	switch action {
	case "up":
		err = store.MigrateUp(migrations)
	case "down":
		err = store.MigrateDown(migrations)
	case "version":
	default:
		return fmt.Errorf("%w: unknown migrate action %q", errUsage, action)
	}
	if err != nil {
		return err
	}
	v, dirty, err := store.MigrateVersion(migrations)
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(e.stdout, "Schema version %d (%s)\n", v, state)
	return nil
}
