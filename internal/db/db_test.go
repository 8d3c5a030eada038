package db

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/bedmesh/internal/bedmesh"
	"github.com/banshee-data/bedmesh/internal/gcode"
	"github.com/banshee-data/bedmesh/internal/testutil"
	"github.com/banshee-data/bedmesh/internal/timeutil"
)

var epoch = time.Date(2024, 5, 4, 10, 30, 0, 0, time.UTC)

func newTestDB(t *testing.T) (*DB, *timeutil.MockClock) {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	clock := timeutil.NewMockClock(epoch)
	clock.AutoAdvance(time.Second)
	db.SetClock(clock)
	return db, clock
}

func sampleMesh(t *testing.T) (*bedmesh.SurfaceMesh, bedmesh.Metadata) {
	t.Helper()
	m, meta, err := bedmesh.ParseWithMetadata(testutil.ShimMeshText)
	require.NoError(t, err)
	return m, meta
}

func TestPragmasApplied(t *testing.T) {
	db, _ := newTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout, foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 5000, busyTimeout)
	assert.Equal(t, 1, foreignKeys)
}

func TestMigrations(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	defer db.Close()

	migrations, err := MigrationsFS()
	require.NoError(t, err)
	ups, err := fs.Glob(migrations, "*.up.sql")
	require.NoError(t, err)
	require.Len(t, ups, 2)

	version, dirty, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateUp(migrations))
	require.NoError(t, db.MigrateUp(migrations), "up is idempotent")
	version, _, err = db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.True(t, tableExists(t, db, "runs"))

	require.NoError(t, db.MigrateDown(migrations))
	version, _, err = db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, tableExists(t, db, "runs"))
	assert.True(t, tableExists(t, db, "meshes"))
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n))
	return n == 1
}

func TestMeshRoundTrip(t *testing.T) {
	db, _ := newTestDB(t)
	m, meta := sampleMesh(t)

	rec, err := db.InsertMesh(m, meta)
	require.NoError(t, err)
	assert.Len(t, rec.ID, 36)
	assert.Equal(t, epoch, rec.CreatedAt)

	got, err := db.GetMesh(rec.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("GetMesh mismatch (-want +got):\n%s", diff)
	}

	back, backMeta, err := got.Mesh()
	require.NoError(t, err)
	assert.True(t, back.Equal(m))
	assert.Equal(t, meta, backMeta)
}

func TestGetMeshNotFound(t *testing.T) {
	db, _ := newTestDB(t)
	_, err := db.GetMesh("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.DeleteMesh("missing"), ErrNotFound)
}

func TestListMeshesNewestFirst(t *testing.T) {
	db, _ := newTestDB(t)
	m, meta := sampleMesh(t)

	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := db.InsertMesh(m, meta)
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	all, err := db.ListMeshes(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{all[0].ID, all[1].ID, all[2].ID})

	two, err := db.ListMeshes(2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestRunsStoredAndCascade(t *testing.T) {
	db, _ := newTestDB(t)
	m, meta := sampleMesh(t)
	mesh, err := db.InsertMesh(m, meta)
	require.NoError(t, err)

	stats := gcode.Stats{
		LinesIn: 10, LinesOut: 14, Motion: 6, Segments: 12, Collapsed: 4,
		MinCorrection: -0.02, MaxCorrection: 0.05,
		ParameterErrors: []gcode.ParameterError{{Line: 3, Code: "Y", Raw: "abc"}},
	}
	run := &RunRecord{
		MeshID:    mesh.ID,
		GCodeName: "part.gcode",
		Pipeline:  "smooth(damped, n=1) -> interpolate(extended, r=100)",
		Config:    json.RawMessage(`{"resolution":100}`),
		Stats:     stats,
		StartedAt: epoch.Add(-time.Minute),
	}
	require.NoError(t, db.InsertRun(run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, epoch.Add(time.Second), run.FinishedAt)
	assert.Equal(t, time.Minute+time.Second, run.Duration())

	got, err := db.GetRun(run.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(run, got); diff != "" {
		t.Errorf("GetRun mismatch (-want +got):\n%s", diff)
	}

	other, err := db.InsertMesh(m, meta)
	require.NoError(t, err)
	require.NoError(t, db.InsertRun(&RunRecord{MeshID: other.ID}))

	all, err := db.ListRuns("", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	forMesh, err := db.ListRuns(mesh.ID, 10)
	require.NoError(t, err)
	require.Len(t, forMesh, 1)
	assert.Equal(t, run.ID, forMesh[0].ID)

	require.NoError(t, db.DeleteMesh(mesh.ID))
	_, err = db.GetRun(run.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertRunRequiresMesh(t *testing.T) {
	db, _ := newTestDB(t)
	err := db.InsertRun(&RunRecord{MeshID: "no-such-mesh"})
	assert.Error(t, err)
}

func TestBackupHandler(t *testing.T) {
	db, _ := newTestDB(t)
	m, meta := sampleMesh(t)
	_, err := db.InsertMesh(m, meta)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	db.BackupHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/backup", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	disposition := rec.Header().Get("Content-Disposition")
	assert.True(t, strings.HasPrefix(disposition, "attachment; filename=history-backup-"), disposition)
	assert.True(t, strings.HasSuffix(disposition, ".db.gz"), disposition)

	gz, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("SQLite format 3\x00")))
}

func TestAttachAdminRoutes(t *testing.T) {
	db, _ := newTestDB(t)
	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/", nil)
	req.RemoteAddr = "127.0.0.1:4321"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Body.String(), "tailsql")
}
