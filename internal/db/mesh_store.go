package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/bedmesh/internal/bedmesh"
)

// MeshRecord is one stored mesh. Text is the full document as rendered by
// bedmesh.Format. Heights are kept to the six decimals the firmware writes,
// so a mesh parsed from firmware output is rebuilt unchanged.
type MeshRecord struct {
	ID        string    `json:"id"`
	Profile   string    `json:"profile"`
	XCount    int       `json:"x_count"`
	YCount    int       `json:"y_count"`
	ZTop      float64   `json:"z_top"`
	Text      string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Mesh parses the stored document.
func (r *MeshRecord) Mesh() (*bedmesh.SurfaceMesh, bedmesh.Metadata, error) {
	m, meta, err := bedmesh.ParseWithMetadata(r.Text)
	if err != nil {
		return nil, bedmesh.Metadata{}, fmt.Errorf("stored mesh %s: %w", r.ID, err)
	}
	return m, meta, nil
}

// InsertMesh stores m with a new id.
func (db *DB) InsertMesh(m *bedmesh.SurfaceMesh, meta bedmesh.Metadata) (*MeshRecord, error) {
	rec := &MeshRecord{
		ID:        uuid.NewString(),
		Profile:   meta.Profile,
		XCount:    m.Nx(),
		YCount:    m.Ny(),
		ZTop:      m.ZTop(),
		Text:      bedmesh.Format(m, meta),
		CreatedAt: db.clock.Now().UTC(),
	}
	_, err := db.Exec(`
		INSERT INTO meshes (mesh_id, profile, x_count, y_count, z_top, mesh_text, created_unix_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Profile, rec.XCount, rec.YCount, rec.ZTop, rec.Text, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert mesh: %w", err)
	}
	diagf("stored mesh %s (%dx%d, %q)", rec.ID, rec.XCount, rec.YCount, rec.Profile)
	return rec, nil
}

const meshColumns = `mesh_id, profile, x_count, y_count, z_top, mesh_text, created_unix_ns`

func scanMesh(row interface{ Scan(...any) error }) (*MeshRecord, error) {
	var rec MeshRecord
	var created int64
	if err := row.Scan(&rec.ID, &rec.Profile, &rec.XCount, &rec.YCount, &rec.ZTop, &rec.Text, &created); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(0, created).UTC()
	return &rec, nil
}

// GetMesh returns the mesh stored under id, or ErrNotFound.
func (db *DB) GetMesh(id string) (*MeshRecord, error) {
	tracef("get mesh %s", id)
	rec, err := scanMesh(db.QueryRow(`SELECT `+meshColumns+` FROM meshes WHERE mesh_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mesh %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get mesh %s: %w", id, err)
	}
	return rec, nil
}

// ListMeshes returns up to limit meshes, newest first. limit <= 0 means all.
func (db *DB) ListMeshes(limit int) ([]MeshRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`SELECT `+meshColumns+` FROM meshes ORDER BY created_unix_ns DESC, mesh_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list meshes: %w", err)
	}
	defer rows.Close()

	var out []MeshRecord
	for rows.Next() {
		rec, err := scanMesh(rows)
		if err != nil {
			return nil, fmt.Errorf("list meshes: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list meshes: %w", err)
	}
	return out, nil
}

// DeleteMesh removes a mesh and, through the foreign key, its runs.
func (db *DB) DeleteMesh(id string) error {
	res, err := db.Exec(`DELETE FROM meshes WHERE mesh_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete mesh %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("mesh %s: %w", id, ErrNotFound)
	}
	return nil
}
