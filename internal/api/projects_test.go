package api

import (
	"net/http"
	"testing"

	"github.com/EthanOConnor/ml-georeferencer/internal/georef"
	"github.com/EthanOConnor/ml-georeferencer/internal/testutil"
)

func TestProjects_NoDatabase(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/projects", "/api/projects/p1", "/api/projects/p1/solves"} {
		rec := doRequest(t, s, http.MethodGet, path, nil)
		testutil.AssertStatusCode(t, rec.Code, http.StatusServiceUnavailable)
	}
}

func TestSaveProject_RequiresName(t *testing.T) {
	s := newTestServerWithDB(t)

	rec := doRequest(t, s, http.MethodPost, "/api/projects", map[string]string{})
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}

func TestSaveProject_RoundTrip(t *testing.T) {
	s := newTestServerWithDB(t)
	addSolvablePairs(t, s)
	s.session.SetMapPath("maps/harbour.png")

	rec := doRequest(t, s, http.MethodPost, "/api/projects", map[string]string{"name": "harbour 1891"})
	testutil.AssertStatusCode(t, rec.Code, http.StatusCreated)

	var saved projectPayload
	decodeBody(t, rec, &saved)
	if saved.ProjectID == "" {
		t.Fatal("expected an assigned project id")
	}
	if saved.CreatedAt == "" || saved.UpdatedAt == "" {
		t.Error("expected timestamps on the saved project")
	}

	rec = doRequest(t, s, http.MethodGet, "/api/projects/"+saved.ProjectID, nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var got projectPayload
	decodeBody(t, rec, &got)
	if got.Name != "harbour 1891" {
		t.Errorf("unexpected name %q", got.Name)
	}
	if got.MapPath != "maps/harbour.png" {
		t.Errorf("unexpected map path %q", got.MapPath)
	}
	if len(got.Constraints) != 3 {
		t.Fatalf("expected 3 constraints, got %d", len(got.Constraints))
	}
	c, err := georef.UnmarshalConstraint(got.Constraints[0])
	if err != nil {
		t.Fatalf("stored constraint does not decode: %v", err)
	}
	if c.Variant() != "point_pair" {
		t.Errorf("unexpected constraint variant %q", c.Variant())
	}
}

func TestListProjects(t *testing.T) {
	s := newTestServerWithDB(t)

	rec := doRequest(t, s, http.MethodGet, "/api/projects", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var list struct {
		Projects []*georef.Project `json:"projects"`
		Count    int               `json:"count"`
	}
	decodeBody(t, rec, &list)
	if list.Count != 0 {
		t.Fatalf("expected empty store, got %d projects", list.Count)
	}

	for _, name := range []string{"alpha", "beta"} {
		rec = doRequest(t, s, http.MethodPost, "/api/projects", map[string]string{"name": name})
		testutil.AssertStatusCode(t, rec.Code, http.StatusCreated)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/projects", nil)
	decodeBody(t, rec, &list)
	if list.Count != 2 {
		t.Fatalf("expected 2 projects, got %d", list.Count)
	}
}

func TestGetProject_Unknown(t *testing.T) {
	s := newTestServerWithDB(t)

	rec := doRequest(t, s, http.MethodGet, "/api/projects/no-such-id", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestDeleteProject(t *testing.T) {
	s := newTestServerWithDB(t)

	rec := doRequest(t, s, http.MethodPost, "/api/projects", map[string]string{"name": "doomed"})
	testutil.AssertStatusCode(t, rec.Code, http.StatusCreated)
	var saved projectPayload
	decodeBody(t, rec, &saved)

	rec = doRequest(t, s, http.MethodDelete, "/api/projects/"+saved.ProjectID, nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	rec = doRequest(t, s, http.MethodGet, "/api/projects/"+saved.ProjectID, nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestLoadProject_RestoresSession(t *testing.T) {
	s := newTestServerWithDB(t)
	addSolvablePairs(t, s)
	s.session.SetMapPath("maps/original.png")

	rec := doRequest(t, s, http.MethodPost, "/api/projects", map[string]string{"name": "restore me"})
	testutil.AssertStatusCode(t, rec.Code, http.StatusCreated)
	var saved projectPayload
	decodeBody(t, rec, &saved)

	// Mutate the session so the load visibly restores it.
	s.session.SetMapPath("maps/other.png")
	s.session.ReplaceConstraints(nil)

	rec = doRequest(t, s, http.MethodPost, "/api/projects/"+saved.ProjectID+"/load", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var body struct {
		Status      string `json:"status"`
		Constraints int    `json:"constraints"`
	}
	decodeBody(t, rec, &body)
	if body.Status != "loaded" {
		t.Errorf("unexpected status %q", body.Status)
	}
	if body.Constraints != 3 {
		t.Errorf("expected 3 restored constraints, got %d", body.Constraints)
	}
	if s.session.MapPath() != "maps/original.png" {
		t.Errorf("map path not restored, got %q", s.session.MapPath())
	}
	if got := len(s.session.Constraints()); got != 3 {
		t.Errorf("expected 3 constraints in session, got %d", got)
	}
}

func TestLoadProject_Unknown(t *testing.T) {
	s := newTestServerWithDB(t)

	rec := doRequest(t, s, http.MethodPost, "/api/projects/no-such-id/load", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestListSolves_Empty(t *testing.T) {
	s := newTestServerWithDB(t)

	rec := doRequest(t, s, http.MethodPost, "/api/projects", map[string]string{"name": "quiet"})
	testutil.AssertStatusCode(t, rec.Code, http.StatusCreated)
	var saved projectPayload
	decodeBody(t, rec, &saved)

	rec = doRequest(t, s, http.MethodGet, "/api/projects/"+saved.ProjectID+"/solves", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var body struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &body)
	if body.Count != 0 {
		t.Errorf("expected no solves, got %d", body.Count)
	}
}

func TestListSolves_InvalidLimit(t *testing.T) {
	s := newTestServerWithDB(t)

	rec := doRequest(t, s, http.MethodGet, "/api/projects/p1/solves?limit=0", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = doRequest(t, s, http.MethodGet, "/api/projects/p1/solves?limit=abc", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}

func TestProjectRoutes_UnknownSubpath(t *testing.T) {
	s := newTestServerWithDB(t)

	rec := doRequest(t, s, http.MethodGet, "/api/projects/p1/history", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}
