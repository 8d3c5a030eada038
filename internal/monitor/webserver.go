package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/bedmesh/internal/bedmesh"
	"github.com/banshee-data/bedmesh/internal/db"
	"github.com/banshee-data/bedmesh/internal/httputil"
	"github.com/banshee-data/bedmesh/internal/security"
	"github.com/banshee-data/bedmesh/internal/surface"
	"github.com/banshee-data/bedmesh/internal/version"
)

// WebServer serves the stored mesh history: an index page, JSON listings,
// surface pages and heat maps, plus the database debug routes.
type WebServer struct {
	address    string
	db         *db.DB
	pipeline   *surface.Pipeline
	assetsHost string
	server     *http.Server
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string
	DB      *db.DB
	// Pipeline builds the dense view requested with dense=1. Without one
	// only the stored probe grid is shown.
	Pipeline   *surface.Pipeline
	AssetsHost string
}

// NewWebServer creates a web server with the provided configuration.
func NewWebServer(config WebServerConfig) (*WebServer, error) {
	if config.DB == nil {
		return nil, errors.New("monitor: web server needs a database")
	}
	ws := &WebServer{
		address:    config.Address,
		db:         config.DB,
		pipeline:   config.Pipeline,
		assetsHost: config.AssetsHost,
	}
	mux, err := ws.setupRoutes()
	if err != nil {
		return nil, err
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return ws, nil
}

// Handler exposes the route table, mainly for tests.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ws.address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", ws.address, err)
	}
	return ws.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (ws *WebServer) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		opsf("serving mesh history on http://%s", ln.Addr())
		if err := ws.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	diagf("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		opsf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			opsf("HTTP server force close error: %v", err)
		}
	}
	return <-errCh
}

func (ws *WebServer) setupRoutes() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleIndex)
	mux.HandleFunc("/api/meshes", ws.handleMeshes)
	mux.HandleFunc("/api/runs", ws.handleRuns)
	mux.HandleFunc("/mesh/surface", ws.handleSurface)
	mux.HandleFunc("/mesh/heatmap.png", ws.handleHeatMap)
	if err := ws.db.AttachAdminRoutes(mux); err != nil {
		return nil, err
	}
	return mux, nil
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	if err := httputil.WriteJSONError(w, status, msg); err != nil {
		opsf("%v", err)
	}
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, v any) {
	if err := httputil.WriteJSON(w, http.StatusOK, v); err != nil {
		opsf("%v", err)
	}
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, map[string]string{"status": "ok", "version": version.Version})
}

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Bed mesh history</title></head>
<body>
<h1>Bed mesh history</h1>
{{if not .Meshes}}<p>No meshes stored yet.</p>{{else}}
<table>
<tr><th>Created</th><th>Profile</th><th>Grid</th><th>Z top</th><th></th></tr>
{{range .Meshes}}<tr>
<td>{{.CreatedAt.Format "2006-01-02 15:04:05"}}</td>
<td>{{.Profile}}</td>
<td>{{.XCount}}x{{.YCount}}</td>
<td>{{printf "%.3f" .ZTop}}</td>
<td><a href="/mesh/surface?id={{.ID}}">surface</a>
{{if $.Dense}}<a href="/mesh/surface?id={{.ID}}&amp;dense=1">dense</a>{{end}}
<a href="/mesh/heatmap.png?id={{.ID}}">heat map</a>
<a href="/api/runs?mesh={{.ID}}">runs</a></td>
</tr>
{{end}}</table>{{end}}
<p><a href="/debug/">debug</a></p>
</body></html>
`))

func (ws *WebServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	meshes, err := ws.db.ListMeshes(100)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var buf bytes.Buffer
	data := struct {
		Meshes []db.MeshRecord
		Dense  bool
	}{meshes, ws.pipeline != nil}
	if err := indexTemplate.Execute(&buf, data); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render index: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func limitParam(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit %q", s)
	}
	return n, nil
}

func (ws *WebServer) handleMeshes(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	meshes, err := ws.db.ListMeshes(limit)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if meshes == nil {
		meshes = []db.MeshRecord{}
	}
	ws.writeJSON(w, meshes)
}

func (ws *WebServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := ws.db.ListRuns(r.URL.Query().Get("mesh"), limit)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []db.RunRecord{}
	}
	ws.writeJSON(w, runs)
}

// loadMesh resolves the id query parameter, writing the error response
// itself when it fails.
func (ws *WebServer) loadMesh(w http.ResponseWriter, r *http.Request) (*db.MeshRecord, *bedmesh.SurfaceMesh, bool) {
	id := r.URL.Query().Get("id")
	if id == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'id' parameter")
		return nil, nil, false
	}
	rec, err := ws.db.GetMesh(id)
	if errors.Is(err, db.ErrNotFound) {
		ws.writeJSONError(w, http.StatusNotFound, err.Error())
		return nil, nil, false
	}
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return nil, nil, false
	}
	m, _, err := rec.Mesh()
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return nil, nil, false
	}
	return rec, m, true
}

// dense runs the configured pipeline when the request asks for it.
func (ws *WebServer) dense(w http.ResponseWriter, r *http.Request, m *bedmesh.SurfaceMesh) (*bedmesh.SurfaceMesh, bool) {
	if r.URL.Query().Get("dense") != "1" {
		return nil, true
	}
	if ws.pipeline == nil {
		ws.writeJSONError(w, http.StatusBadRequest, "dense view is not configured")
		return nil, false
	}
	d, err := ws.pipeline.Run(m)
	if err != nil {
		ws.writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return nil, false
	}
	return d, true
}

func (ws *WebServer) handleSurface(w http.ResponseWriter, r *http.Request) {
	rec, m, ok := ws.loadMesh(w, r)
	if !ok {
		return
	}
	d, ok := ws.dense(w, r, m)
	if !ok {
		return
	}

	series := []SurfaceSeries{{Name: "probed", Mesh: m}}
	subtitle := ""
	if d != nil {
		series = append(series, SurfaceSeries{Name: "processed", Mesh: d})
		subtitle = ws.pipeline.String()
	}
	var buf bytes.Buffer
	err := RenderSurfacePage(&buf, series, SurfacePageOptions{
		Title:      fmt.Sprintf("%s %s", rec.Profile, rec.ID),
		Subtitle:   subtitle,
		AssetsHost: ws.assetsHost,
	})
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (ws *WebServer) handleHeatMap(w http.ResponseWriter, r *http.Request) {
	rec, m, ok := ws.loadMesh(w, r)
	if !ok {
		return
	}
	d, ok := ws.dense(w, r, m)
	if !ok {
		return
	}

	o := HeatMapOptions{Title: rec.Profile}
	if d != nil {
		o.Probes = m
		m = d
	}
	var buf bytes.Buffer
	if err := RenderHeatMap(&buf, m, o); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render heat map: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s.png", security.SanitizeFilename(rec.Profile)))
	_, _ = w.Write(buf.Bytes())
}
