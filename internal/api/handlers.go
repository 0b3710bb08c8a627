package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/EthanOConnor/ml-georeferencer/internal/georef"
	"github.com/EthanOConnor/ml-georeferencer/internal/georef/monitor"
	"github.com/EthanOConnor/ml-georeferencer/internal/georef/stream"
	"github.com/EthanOConnor/ml-georeferencer/internal/httputil"
	"github.com/EthanOConnor/ml-georeferencer/internal/security"
	"github.com/EthanOConnor/ml-georeferencer/internal/units"
)

type pathsRequest struct {
	MapPath       *string `json:"map_path,omitempty"`
	ReferencePath *string `json:"reference_path,omitempty"`
}

// handlePaths sets the map and/or reference image paths. Setting the
// reference re-resolves its georeferencing; the response reports
// whether anything usable was found.
func (s *Server) handlePaths(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		httputil.MethodNotAllowed(w)
		return
	}

	var req pathsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.MapPath == nil && req.ReferencePath == nil {
		httputil.BadRequest(w, "map_path or reference_path is required")
		return
	}

	if req.MapPath != nil {
		s.session.SetMapPath(*req.MapPath)
	}
	if req.ReferencePath != nil {
		s.session.SetReferencePath(*req.ReferencePath)
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"map_path":                s.session.MapPath(),
		"reference_path":          s.session.ReferencePath(),
		"reference_georeferenced": s.session.ReferenceGeoref() != nil,
	})
}

// handleConstraints handles list and add operations.
func (s *Server) handleConstraints(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListConstraints(w, r)
	case http.MethodPost:
		s.handleAddConstraint(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) handleListConstraints(w http.ResponseWriter, r *http.Request) {
	constraints := s.session.Constraints()

	encoded := make([]json.RawMessage, 0, len(constraints))
	for _, c := range constraints {
		b, err := georef.MarshalConstraint(c)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("encode constraint %d: %v", c.ConstraintID(), err))
			return
		}
		encoded = append(encoded, b)
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"constraints": encoded,
		"count":       len(encoded),
	})
}

// handleAddConstraint stores one constraint posted as a {kind, data}
// envelope and echoes it back with its assigned id.
func (s *Server) handleAddConstraint(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("read body: %v", err))
		return
	}

	c, err := georef.UnmarshalConstraint(body)
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid constraint: %v", err))
		return
	}

	stored, err := s.session.AddConstraint(c)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	encoded, err := georef.MarshalConstraint(stored)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("encode constraint: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, json.RawMessage(encoded))
}

// handleConstraintByID deletes the constraint named in the URL path.
func (s *Server) handleConstraintByID(w http.ResponseWriter, r *http.Request) {
	idText := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/api/constraints/"))
	if idText == "" {
		httputil.BadRequest(w, "constraint id is required")
		return
	}
	id, err := strconv.ParseUint(idText, 10, 64)
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid constraint id %q", idText))
		return
	}

	if r.Method != http.MethodDelete {
		httputil.MethodNotAllowed(w)
		return
	}

	if !s.session.DeleteConstraint(id) {
		httputil.NotFound(w, "constraint not found")
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":        "deleted",
		"constraint_id": id,
	})
}

type solveRequest struct {
	Method     string   `json:"method,omitempty"`
	Unit       string   `json:"unit,omitempty"`
	MapScale   *float64 `json:"map_scale,omitempty"`
	RANSAC     bool     `json:"ransac,omitempty"`
	Threshold  *float64 `json:"threshold,omitempty"`
	Iterations *int     `json:"iterations,omitempty"`
	ProjectID  string   `json:"project_id,omitempty"`
}

type solveResponse struct {
	Method  string                `json:"method"`
	Unit    string                `json:"unit"`
	Stack   georef.TransformStack `json:"stack"`
	Quality georef.QualityMetrics `json:"quality"`
}

// handleSolve fits the requested transform on the session's current
// constraints. Omitted fields fall back to config defaults; an empty
// body solves with defaults throughout. A project_id appends the run to
// that project's solve history.
func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req solveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		httputil.BadRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	method := req.Method
	if method == "" {
		method = s.cfg.GetDefaultFitMethod()
	}
	unit := req.Unit
	if unit == "" {
		unit = s.cfg.GetDefaultUnit()
	}
	if !units.IsValid(unit) {
		httputil.BadRequest(w, fmt.Sprintf("invalid unit %q; valid units: %s", unit, units.GetValidUnitsString()))
		return
	}
	mapScale := req.MapScale
	if mapScale == nil {
		if scale := s.cfg.GetMapScale(); scale > 0 {
			mapScale = &scale
		}
	}

	var (
		stack   georef.TransformStack
		quality georef.QualityMetrics
		err     error
	)
	if req.RANSAC {
		threshold := s.cfg.GetRANSACThreshold()
		if req.Threshold != nil {
			threshold = *req.Threshold
		}
		iterations := s.cfg.GetRANSACIterations()
		if req.Iterations != nil {
			iterations = *req.Iterations
		}
		stack, quality, err = s.session.SolveRANSAC(threshold, iterations, unit, mapScale)
		method = georef.MethodSimilarity // RANSAC fits a similarity
	} else {
		stack, quality, err = s.session.Solve(method, unit, mapScale)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.afterSolve(method, stack, quality)

	if req.ProjectID != "" && s.db != nil {
		rec := &georef.SolveRecord{
			ProjectID: req.ProjectID,
			Method:    method,
			Unit:      quality.Unit,
			RMSE:      quality.RMSE,
			P90Error:  quality.P90Error,
			PairCount: len(quality.Residuals),
			Stack:     stack,
			Warnings:  quality.Warnings,
		}
		if err := georef.RecordSolve(s.db.DB, rec, s.session.Clock()); err != nil {
			log.Printf("[API] failed to record solve for project %s: %v", req.ProjectID, err)
		}
	}

	httputil.WriteJSONOK(w, solveResponse{
		Method:  method,
		Unit:    quality.Unit,
		Stack:   stack,
		Quality: quality,
	})
}

// afterSolve feeds the diagnostics sinks: the latest-solve snapshot for
// chart routes, the PNG plotter, and the gRPC stream.
func (s *Server) afterSolve(method string, stack georef.TransformStack, quality georef.QualityMetrics) {
	now := s.session.Clock().Now()
	snap := monitor.NewSolveSnapshot(method, s.session.Constraints(), quality, now)

	s.mu.Lock()
	s.lastSolve = &snap
	s.mu.Unlock()

	if s.plotter != nil {
		s.plotter.Record(snap)
	}
	if s.stream != nil {
		s.stream.Publish(stream.NewSolveFrame(method, stack, quality, len(quality.Residuals), now))
	}
}

type exportRequest struct {
	Base   string `json:"base"`
	Method string `json:"method,omitempty"`
}

func (s *Server) handleProjString(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		httputil.BadRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	method := req.Method
	if method == "" {
		method = s.cfg.GetDefaultFitMethod()
	}

	proj, err := s.session.ProjString(method)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"method": method,
		"proj":   proj,
	})
}

func (s *Server) handleExportWorldFile(w http.ResponseWriter, r *http.Request) {
	base, method, ok := s.decodeExport(w, r)
	if !ok {
		return
	}

	if err := s.session.ExportWorldFile(base, method); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"status": "written",
		"method": method,
		"tfw":    base + ".tfw",
	})
}

func (s *Server) handleExportComposed(w http.ResponseWriter, r *http.Request) {
	base, method, ok := s.decodeExport(w, r)
	if !ok {
		return
	}

	if err := s.session.ExportComposed(base, method); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"status": "written",
		"method": method,
		"tfw":    base + ".tfw",
		"prj":    base + ".prj",
	})
}

// decodeExport parses an export request and validates its output path.
// On failure the response has already been written.
func (s *Server) decodeExport(w http.ResponseWriter, r *http.Request) (base, method string, ok bool) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return "", "", false
	}

	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return "", "", false
	}
	if req.Base == "" {
		httputil.BadRequest(w, "base path is required")
		return "", "", false
	}
	if err := s.checkExportPath(req.Base); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid export path: %v", err))
		return "", "", false
	}

	method = req.Method
	if method == "" {
		method = s.cfg.GetDefaultFitMethod()
	}
	return req.Base, method, true
}

// checkExportPath accepts paths under the temp or working directory,
// plus any configured export directories.
func (s *Server) checkExportPath(base string) error {
	err := security.ValidateExportPath(base)
	if err == nil {
		return nil
	}
	if dirs := s.cfg.GetExportDirs(); len(dirs) > 0 {
		if dirErr := security.ValidatePathWithinAllowedDirs(base, dirs); dirErr == nil {
			return nil
		}
	}
	return err
}

func parseFloatParam(query url.Values, name string) (float64, error) {
	raw := query.Get(name)
	if raw == "" {
		return 0, fmt.Errorf("missing %q parameter", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %q parameter: %v", name, err)
	}
	return v, nil
}

func datumPolicyFromQuery(query url.Values) (georef.DatumPolicy, error) {
	switch d := query.Get("datum"); d {
	case "", string(georef.PolicyWGS84):
		return georef.PolicyWGS84, nil
	case string(georef.PolicyNAD83):
		return georef.PolicyNAD83, nil
	default:
		return "", fmt.Errorf("invalid 'datum' parameter %q", d)
	}
}

// handlePixelQuery converts a reference pixel under a conversion mode
// (lonlat, local_m, utm, projected_m, pixel).
func (s *Server) handlePixelQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	x, err := parseFloatParam(query, "x")
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	y, err := parseFloatParam(query, "y")
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	mode := query.Get("mode")
	if mode == "" {
		mode = georef.ModeLonLat
	}
	policy, err := datumPolicyFromQuery(query)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	out, err := s.session.PixelTo(mode, georef.Vec2{X: x, Y: y}, policy)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"mode": mode,
		"x":    out.X,
		"y":    out.Y,
	})
}

// handleMetricScale reports local ground meters per pixel at a
// reference pixel.
func (s *Server) handleMetricScale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	x, err := parseFloatParam(query, "x")
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	y, err := parseFloatParam(query, "y")
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	scale, err := s.session.MetricScaleAt(georef.Vec2{X: x, Y: y})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"meters_per_pixel": scale,
	})
}

func (s *Server) handleReferenceCRS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	info, err := s.session.ReferenceCRS()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSONOK(w, info)
}

func (s *Server) handleSuggestCRS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	policy, err := datumPolicyFromQuery(r.URL.Query())
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	suggestion, err := s.session.SuggestOutputCRS(policy)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSONOK(w, suggestion)
}
