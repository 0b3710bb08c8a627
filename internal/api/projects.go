package api

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/EthanOConnor/ml-georeferencer/internal/georef"
	"github.com/EthanOConnor/ml-georeferencer/internal/httputil"
)

// projectPayload is a project with its constraints in the {kind, data}
// envelope form the constraint routes use.
type projectPayload struct {
	ProjectID     string            `json:"project_id"`
	Name          string            `json:"name"`
	MapPath       string            `json:"map_path"`
	ReferencePath string            `json:"reference_path"`
	CreatedAt     string            `json:"created_at"`
	UpdatedAt     string            `json:"updated_at"`
	Constraints   []json.RawMessage `json:"constraints"`
}

func encodeProject(p *georef.Project) (projectPayload, error) {
	out := projectPayload{
		ProjectID:     p.ProjectID,
		Name:          p.Name,
		MapPath:       p.MapPath,
		ReferencePath: p.ReferencePath,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		Constraints:   []json.RawMessage{},
	}
	for _, c := range p.Constraints {
		b, err := georef.MarshalConstraint(c)
		if err != nil {
			return projectPayload{}, fmt.Errorf("encode constraint %d: %w", c.ConstraintID(), err)
		}
		out.Constraints = append(out.Constraints, b)
	}
	return out, nil
}

// projectStore returns the SQL handle, or writes 503 when the server
// runs without a database.
func (s *Server) projectStore(w http.ResponseWriter) (*sql.DB, bool) {
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "project store not configured")
		return nil, false
	}
	return s.db.DB, true
}

// handleProjects handles list and save operations.
func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListProjects(w, r)
	case http.MethodPost:
		s.handleSaveProject(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	store, ok := s.projectStore(w)
	if !ok {
		return
	}

	projects, err := georef.ListProjects(store)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list projects: %v", err))
		return
	}
	if projects == nil {
		projects = []*georef.Project{}
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"projects": projects,
		"count":    len(projects),
	})
}

type saveProjectRequest struct {
	ProjectID string `json:"project_id,omitempty"`
	Name      string `json:"name"`
}

// handleSaveProject snapshots the session (paths + constraints) under
// the given name. Posting an existing project_id overwrites it.
func (s *Server) handleSaveProject(w http.ResponseWriter, r *http.Request) {
	store, ok := s.projectStore(w)
	if !ok {
		return
	}

	var req saveProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.Name == "" {
		httputil.BadRequest(w, "project name is required")
		return
	}

	p := &georef.Project{
		ProjectID:     req.ProjectID,
		Name:          req.Name,
		MapPath:       s.session.MapPath(),
		ReferencePath: s.session.ReferencePath(),
		Constraints:   s.session.Constraints(),
	}
	if err := georef.SaveProject(store, p, s.session.Clock()); err != nil {
		writeDomainError(w, err)
		return
	}

	payload, err := encodeProject(p)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, payload)
}

// handleProjectByID handles get, delete, load-into-session and solve
// history for a specific project.
func (s *Server) handleProjectByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/projects/"), "/")
	parts := strings.Split(rest, "/")
	projectID := parts[0]
	if projectID == "" {
		httputil.BadRequest(w, "project id is required")
		return
	}

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			s.handleGetProject(w, r, projectID)
		case http.MethodDelete:
			s.handleDeleteProject(w, r, projectID)
		default:
			httputil.MethodNotAllowed(w)
		}
	case len(parts) == 2 && parts[1] == "load":
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		s.handleLoadProject(w, r, projectID)
	case len(parts) == 2 && parts[1] == "solves":
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		s.handleListSolves(w, r, projectID)
	default:
		httputil.NotFound(w, "not found")
	}
}

// loadProjectOr404 fetches a project, translating the unknown-id error
// into a 404. Returns nil after writing the response on failure.
func (s *Server) loadProjectOr404(w http.ResponseWriter, store *sql.DB, projectID string) *georef.Project {
	p, err := georef.LoadProject(store, projectID)
	if err != nil {
		if georef.IsKind(err, georef.InvalidParameter) {
			httputil.NotFound(w, err.Error())
		} else {
			httputil.InternalServerError(w, fmt.Sprintf("load project: %v", err))
		}
		return nil
	}
	return p
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request, projectID string) {
	store, ok := s.projectStore(w)
	if !ok {
		return
	}

	p := s.loadProjectOr404(w, store, projectID)
	if p == nil {
		return
	}

	payload, err := encodeProject(p)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, payload)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request, projectID string) {
	store, ok := s.projectStore(w)
	if !ok {
		return
	}

	if err := georef.DeleteProject(store, projectID); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":     "deleted",
		"project_id": projectID,
	})
}

// handleLoadProject restores a saved project into the live session,
// replacing its paths and constraint list.
func (s *Server) handleLoadProject(w http.ResponseWriter, r *http.Request, projectID string) {
	store, ok := s.projectStore(w)
	if !ok {
		return
	}

	p := s.loadProjectOr404(w, store, projectID)
	if p == nil {
		return
	}

	s.session.SetMapPath(p.MapPath)
	s.session.SetReferencePath(p.ReferencePath)
	s.session.ReplaceConstraints(p.Constraints)

	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":                  "loaded",
		"project_id":              p.ProjectID,
		"name":                    p.Name,
		"constraints":             len(p.Constraints),
		"reference_georeferenced": s.session.ReferenceGeoref() != nil,
	})
}

func (s *Server) handleListSolves(w http.ResponseWriter, r *http.Request, projectID string) {
	store, ok := s.projectStore(w)
	if !ok {
		return
	}

	limit := 0 // ListSolves applies its own default
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	records, err := georef.ListSolves(store, projectID, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list solves: %v", err))
		return
	}
	if records == nil {
		records = []*georef.SolveRecord{}
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"solves": records,
		"count":  len(records),
	})
}
