package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/EthanOConnor/ml-georeferencer/internal/georef/monitor"
	"github.com/EthanOConnor/ml-georeferencer/internal/httputil"
)

// latestSnapshot returns the diagnostics snapshot of the most recent
// successful solve.
func (s *Server) latestSnapshot() (monitor.SolveSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSolve == nil {
		return monitor.SolveSnapshot{}, false
	}
	return *s.lastSolve, true
}

func (s *Server) writeChart(w http.ResponseWriter, r *http.Request, render func(monitor.SolveSnapshot) ([]byte, error)) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	snap, ok := s.latestSnapshot()
	if !ok {
		httputil.NotFound(w, "no solve has run yet")
		return
	}

	html, err := render(snap)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}

// handleResidualScatter serves the residual scatter chart of the last
// solve.
func (s *Server) handleResidualScatter(w http.ResponseWriter, r *http.Request) {
	s.writeChart(w, r, monitor.ResidualScatterHTML)
}

// handleResidualBar serves the per-constraint residual bar chart of the
// last solve.
func (s *Server) handleResidualBar(w http.ResponseWriter, r *http.Request) {
	s.writeChart(w, r, monitor.ResidualBarHTML)
}

// requirePlotter returns the attached plotter, or writes 503 when the
// server runs without one.
func (s *Server) requirePlotter(w http.ResponseWriter) (*monitor.ResidualPlotter, bool) {
	if s.plotter == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "plotting not configured")
		return nil, false
	}
	return s.plotter, true
}

func (s *Server) handlePlotStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	plotter, ok := s.requirePlotter(w)
	if !ok {
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"enabled":    plotter.IsEnabled(),
		"output_dir": plotter.GetOutputDir(),
		"snapshots":  plotter.GetSnapshotCount(),
	})
}

type plotStartRequest struct {
	OutputDir string `json:"output_dir,omitempty"`
}

// handlePlotStart enables PNG plotting. With no directory in the body a
// timestamped one is created under the configured chart dir, named
// after the map being georeferenced.
func (s *Server) handlePlotStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	plotter, ok := s.requirePlotter(w)
	if !ok {
		return
	}

	var req plotStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		httputil.BadRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	dir := req.OutputDir
	if dir == "" {
		dir = monitor.MakePlotOutputDir(s.cfg.GetChartDir(), s.session.MapPath())
	}
	if err := s.checkExportPath(dir); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid output directory: %v", err))
		return
	}

	if err := plotter.Start(dir); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("start plotting: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":     "started",
		"output_dir": dir,
	})
}

func (s *Server) handlePlotStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	plotter, ok := s.requirePlotter(w)
	if !ok {
		return
	}

	plotter.Stop()
	httputil.WriteJSONOK(w, map[string]interface{}{"status": "stopped"})
}

// handlePlotGenerate writes the recorded snapshots out as PNG files.
func (s *Server) handlePlotGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	plotter, ok := s.requirePlotter(w)
	if !ok {
		return
	}
	if !plotter.IsEnabled() {
		httputil.WriteJSONError(w, http.StatusConflict, "plotting not started")
		return
	}

	count, err := plotter.GeneratePlots()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("generate plots: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"plots":      count,
		"output_dir": plotter.GetOutputDir(),
	})
}

func (s *Server) handleStreamStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.stream == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "solve streaming not configured")
		return
	}

	httputil.WriteJSONOK(w, s.stream.Stats())
}
