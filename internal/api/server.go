package api

import (
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/EthanOConnor/ml-georeferencer/internal/config"
	"github.com/EthanOConnor/ml-georeferencer/internal/db"
	"github.com/EthanOConnor/ml-georeferencer/internal/georef"
	"github.com/EthanOConnor/ml-georeferencer/internal/georef/monitor"
	"github.com/EthanOConnor/ml-georeferencer/internal/georef/stream"
	"github.com/EthanOConnor/ml-georeferencer/internal/httputil"
	"github.com/EthanOConnor/ml-georeferencer/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes one georeferencing session over HTTP, plus the project
// store, diagnostics charts and the solve stream when attached.
type Server struct {
	session *georef.Session
	db      *db.DB
	cfg     *config.Config

	stream  *stream.Publisher        // nil when streaming is not hosted
	plotter *monitor.ResidualPlotter // nil when PNG plotting is not hosted

	mu        sync.Mutex
	lastSolve *monitor.SolveSnapshot
}

// NewServer wires the session, project store and effective config into
// an HTTP server. database may be nil; project routes then report 503.
func NewServer(session *georef.Session, database *db.DB, cfg *config.Config) *Server {
	if cfg == nil {
		cfg = config.EmptyConfig()
	}
	return &Server{
		session: session,
		db:      database,
		cfg:     cfg,
	}
}

// AttachStream publishes every successful solve to pub.
func (s *Server) AttachStream(pub *stream.Publisher) {
	s.stream = pub
}

// AttachPlotter records every successful solve on p for PNG generation.
func (s *Server) AttachPlotter(p *monitor.ResidualPlotter) {
	s.plotter = p
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.showHealth)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/paths", s.handlePaths)
	mux.HandleFunc("/api/constraints", s.handleConstraints)
	mux.HandleFunc("/api/constraints/", s.handleConstraintByID)
	mux.HandleFunc("/api/solve", s.handleSolve)
	mux.HandleFunc("/api/export/projstring", s.handleProjString)
	mux.HandleFunc("/api/export/worldfile", s.handleExportWorldFile)
	mux.HandleFunc("/api/export/composed", s.handleExportComposed)
	mux.HandleFunc("/api/query/pixel", s.handlePixelQuery)
	mux.HandleFunc("/api/query/scale", s.handleMetricScale)
	mux.HandleFunc("/api/query/crs", s.handleReferenceCRS)
	mux.HandleFunc("/api/query/crs/suggest", s.handleSuggestCRS)
	mux.HandleFunc("/api/projects", s.handleProjects)
	mux.HandleFunc("/api/projects/", s.handleProjectByID)
	mux.HandleFunc("/api/charts/residuals", s.handleResidualScatter)
	mux.HandleFunc("/api/charts/residuals/bar", s.handleResidualBar)
	mux.HandleFunc("/api/plots", s.handlePlotStatus)
	mux.HandleFunc("/api/plots/start", s.handlePlotStart)
	mux.HandleFunc("/api/plots/stop", s.handlePlotStop)
	mux.HandleFunc("/api/plots/generate", s.handlePlotGenerate)
	mux.HandleFunc("/api/stream/stats", s.handleStreamStats)
	return mux
}

// statusForError maps a domain error kind onto an HTTP status. Bad
// inputs and unfittable geometry are the client's problem; a missing
// reference georeference conflicts with the session state; everything
// else is ours.
func statusForError(err error) int {
	switch georef.KindOf(err) {
	case georef.InvalidParameter, georef.UnsupportedMethod, georef.InsufficientData,
		georef.DegenerateGeometry, georef.ParseFailure:
		return http.StatusBadRequest
	case georef.ConversionUnavailable:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError renders a georef error with its mapped status.
func writeDomainError(w http.ResponseWriter, err error) {
	httputil.WriteJSONError(w, statusForError(err), err.Error())
}

func (s *Server) showHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":     "ok",
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	cfg := map[string]interface{}{
		"units":             s.cfg.GetDefaultUnit(),
		"fit_method":        s.cfg.GetDefaultFitMethod(),
		"ransac_threshold":  s.cfg.GetRANSACThreshold(),
		"ransac_iterations": s.cfg.GetRANSACIterations(),
		"chart_dir":         s.cfg.GetChartDir(),
	}
	if scale := s.cfg.GetMapScale(); scale > 0 {
		cfg["map_scale"] = scale
	}

	httputil.WriteJSONOK(w, cfg)
}
