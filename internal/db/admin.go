package db

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/bedmesh/internal/security"
)

// AttachAdminRoutes mounts the tsweb debug index on mux with a live SQL
// console over the history database and a backup download.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Bed mesh history",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Download a gzipped copy of the history database", db.BackupHandler())
	return nil
}

// BackupHandler snapshots the database with VACUUM INTO and streams the copy
// gzip-compressed.
func (db *DB) BackupHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dir, err := os.MkdirTemp("", "bedmesh-backup-")
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			if err := os.RemoveAll(dir); err != nil {
				opsf("failed to remove backup dir %s: %v", dir, err)
			}
		}()

		base := strings.TrimSuffix(filepath.Base(db.path), filepath.Ext(db.path))
		name := fmt.Sprintf("%s-backup-%d.db", security.SanitizeFilename(base), db.clock.Now().Unix())
		backupPath := filepath.Join(dir, name)
		if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		f, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer f.Close()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
		w.Header().Set("Content-Type", "application/gzip")

		gz := gzip.NewWriter(w)
		if _, err := io.Copy(gz, f); err != nil {
			opsf("backup stream interrupted: %v", err)
			return
		}
		if err := gz.Close(); err != nil {
			opsf("backup stream interrupted: %v", err)
			return
		}
		diagf("served backup %s", name)
	})
}
