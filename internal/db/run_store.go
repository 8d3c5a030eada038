package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/bedmesh/internal/gcode"
)

// RunRecord is one compensation pass over a G-code file.
type RunRecord struct {
	ID        string `json:"id"`
	MeshID    string `json:"mesh_id"`
	GCodeName string `json:"gcode_name"`
	// Pipeline is the stage list that produced the surface, as printed by
	// surface.Pipeline.String.
	Pipeline   string          `json:"pipeline"`
	Config     json.RawMessage `json:"config"`
	Stats      gcode.Stats     `json:"stats"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Duration is the wall time of the run.
func (r *RunRecord) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// InsertRun stores r, assigning an ID when empty and stamping FinishedAt
// when zero. The mesh must already exist.
func (db *DB) InsertRun(r *RunRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.FinishedAt.IsZero() {
		r.FinishedAt = db.clock.Now().UTC()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = r.FinishedAt
	}
	cfg := r.Config
	if len(cfg) == 0 {
		cfg = json.RawMessage("{}")
	}
	stats, err := json.Marshal(r.Stats)
	if err != nil {
		return fmt.Errorf("encode run stats: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO runs (
			run_id, mesh_id, gcode_name, pipeline, config_json, stats_json,
			lines_in, lines_out, min_correction, max_correction,
			started_unix_ns, finished_unix_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.MeshID, r.GCodeName, r.Pipeline, string(cfg), string(stats),
		r.Stats.LinesIn, r.Stats.LinesOut, r.Stats.MinCorrection, r.Stats.MaxCorrection,
		r.StartedAt.UnixNano(), r.FinishedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	diagf("stored run %s for mesh %s: %s", r.ID, r.MeshID, r.Stats)
	return nil
}

const runColumns = `run_id, mesh_id, gcode_name, pipeline, config_json, stats_json, started_unix_ns, finished_unix_ns`

func scanRun(row interface{ Scan(...any) error }) (*RunRecord, error) {
	var (
		r                 RunRecord
		cfg, stats        string
		started, finished int64
	)
	if err := row.Scan(&r.ID, &r.MeshID, &r.GCodeName, &r.Pipeline, &cfg, &stats, &started, &finished); err != nil {
		return nil, err
	}
	r.Config = json.RawMessage(cfg)
	if err := json.Unmarshal([]byte(stats), &r.Stats); err != nil {
		return nil, fmt.Errorf("decode stats of run %s: %w", r.ID, err)
	}
	r.StartedAt = time.Unix(0, started).UTC()
	r.FinishedAt = time.Unix(0, finished).UTC()
	return &r, nil
}

// GetRun returns the run stored under id, or ErrNotFound.
func (db *DB) GetRun(id string) (*RunRecord, error) {
	r, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first. A non-empty meshID keeps
// only that mesh's runs. limit <= 0 means all.
func (db *DB) ListRuns(meshID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if meshID != "" {
		query += ` WHERE mesh_id = ?`
		args = append(args, meshID)
	}
	query += ` ORDER BY started_unix_ns DESC, run_id LIMIT ?`
	args = append(args, limit)
	tracef("%s %v", query, args)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}
