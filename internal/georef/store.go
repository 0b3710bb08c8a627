package georef

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/EthanOConnor/ml-georeferencer/internal/timeutil"
)

// Project is a saved georeferencing session: the image pair plus the
// constraint list needed to reproduce a solve.
type Project struct {
	ProjectID     string       `json:"project_id"`
	Name          string       `json:"name"`
	MapPath       string       `json:"map_path"`
	ReferencePath string       `json:"reference_path"`
	CreatedAt     string       `json:"created_at"`
	UpdatedAt     string       `json:"updated_at"`
	Constraints   []Constraint `json:"-"`
}

// SolveRecord is one solve run: the fitted transform plus the quality
// metrics it scored.
type SolveRecord struct {
	SolveID   string         `json:"solve_id"`
	ProjectID string         `json:"project_id"`
	Method    string         `json:"method"`
	Unit      string         `json:"unit"`
	RMSE      float64        `json:"rmse"`
	P90Error  float64        `json:"p90_error"`
	PairCount int            `json:"pair_count"`
	Stack     TransformStack `json:"stack"`
	Warnings  []string       `json:"warnings"`
	CreatedAt string         `json:"created_at"`
}

// SaveProject inserts or updates a project and replaces its constraint
// rows. A project with no ID is assigned a new UUID. CreatedAt is only
// written on first save; UpdatedAt always advances to the clock's now.
func SaveProject(db *sql.DB, p *Project, clock timeutil.Clock) error {
	if p == nil {
		return Errorf(InvalidParameter, "nil project")
	}
	if p.Name == "" {
		return Errorf(InvalidParameter, "project name is required")
	}
	if p.ProjectID == "" {
		p.ProjectID = uuid.NewString()
	}

	now := clock.Now().UTC().Format(time.RFC3339)
	if p.CreatedAt == "" {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin save project tx: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO projects (project_id, name, map_path, reference_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			name = excluded.name,
			map_path = excluded.map_path,
			reference_path = excluded.reference_path,
			updated_at = excluded.updated_at
	`, p.ProjectID, p.Name, p.MapPath, p.ReferencePath, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("upsert project: %w", err)
	}

	// Replace the constraint rows wholesale; ids are stable within the
	// session so the stored set mirrors the in-memory list exactly.
	if _, err := tx.Exec(`DELETE FROM constraints WHERE project_id = ?`, p.ProjectID); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear project constraints: %w", err)
	}

	for _, c := range p.Constraints {
		payload, err := MarshalConstraint(c)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encode constraint %d: %w", c.ConstraintID(), err)
		}
		_, err = tx.Exec(`
			INSERT INTO constraints (project_id, constraint_id, kind, payload)
			VALUES (?, ?, ?, ?)
		`, p.ProjectID, c.ConstraintID(), c.Variant(), string(payload))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert constraint %d: %w", c.ConstraintID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save project tx: %w", err)
	}

	return nil
}

// LoadProject reads a project and its constraints.
func LoadProject(db *sql.DB, projectID string) (*Project, error) {
	p := &Project{}
	err := db.QueryRow(`
		SELECT project_id, name, map_path, reference_path, created_at, updated_at
		FROM projects
		WHERE project_id = ?
	`, projectID).Scan(&p.ProjectID, &p.Name, &p.MapPath, &p.ReferencePath, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, Errorf(InvalidParameter, "unknown project id %q", projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("query project: %w", err)
	}

	rows, err := db.Query(`
		SELECT payload
		FROM constraints
		WHERE project_id = ?
		ORDER BY constraint_id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query project constraints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan constraint: %w", err)
		}
		c, err := UnmarshalConstraint([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("decode constraint: %w", err)
		}
		p.Constraints = append(p.Constraints, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate constraints: %w", err)
	}

	return p, nil
}

// ListProjects returns project summaries (no constraints), most recently
// updated first.
func ListProjects(db *sql.DB) ([]*Project, error) {
	rows, err := db.Query(`
		SELECT project_id, name, map_path, reference_path, created_at, updated_at
		FROM projects
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p := &Project{}
		if err := rows.Scan(&p.ProjectID, &p.Name, &p.MapPath, &p.ReferencePath, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}

	return projects, nil
}

// DeleteProject removes a project with its constraints and solve history.
func DeleteProject(db *sql.DB, projectID string) error {
	if projectID == "" {
		return Errorf(InvalidParameter, "project id is required to delete")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete project tx: %w", err)
	}

	// Explicit child deletes: sqlite only honours the FK cascade when
	// foreign_keys is on, which the driver does not guarantee.
	steps := []string{
		`DELETE FROM solves WHERE project_id = ?`,
		`DELETE FROM constraints WHERE project_id = ?`,
		`DELETE FROM projects WHERE project_id = ?`,
	}
	for _, q := range steps {
		if _, err := tx.Exec(q, projectID); err != nil {
			tx.Rollback()
			return fmt.Errorf("delete project step failed: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete project tx: %w", err)
	}

	return nil
}

// RecordSolve appends a solve run to a project's history. A record with
// no ID is assigned a new UUID; CreatedAt comes from the clock.
func RecordSolve(db *sql.DB, rec *SolveRecord, clock timeutil.Clock) error {
	if rec == nil {
		return Errorf(InvalidParameter, "nil solve record")
	}
	if rec.ProjectID == "" {
		return Errorf(InvalidParameter, "solve record needs a project id")
	}
	if rec.SolveID == "" {
		rec.SolveID = uuid.NewString()
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = clock.Now().UTC().Format(time.RFC3339)
	}

	stackJSON, err := json.Marshal(rec.Stack)
	if err != nil {
		return fmt.Errorf("encode transform stack: %w", err)
	}

	warnings := rec.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO solves (solve_id, project_id, method, unit, rmse, p90_error, pair_count, transform, warnings, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.SolveID, rec.ProjectID, rec.Method, rec.Unit, rec.RMSE, rec.P90Error, rec.PairCount,
		string(stackJSON), string(warningsJSON), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert solve: %w", err)
	}

	return nil
}

// ListSolves returns a project's solve history, newest first.
func ListSolves(db *sql.DB, projectID string, limit int) ([]*SolveRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.Query(`
		SELECT solve_id, project_id, method, unit, rmse, p90_error, pair_count, transform, warnings, created_at
		FROM solves
		WHERE project_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("query solves: %w", err)
	}
	defer rows.Close()

	var records []*SolveRecord
	for rows.Next() {
		rec := &SolveRecord{}
		var stackJSON, warningsJSON string
		if err := rows.Scan(&rec.SolveID, &rec.ProjectID, &rec.Method, &rec.Unit,
			&rec.RMSE, &rec.P90Error, &rec.PairCount, &stackJSON, &warningsJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan solve: %w", err)
		}
		if err := json.Unmarshal([]byte(stackJSON), &rec.Stack); err != nil {
			return nil, fmt.Errorf("decode transform stack: %w", err)
		}
		if err := json.Unmarshal([]byte(warningsJSON), &rec.Warnings); err != nil {
			return nil, fmt.Errorf("decode warnings: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate solves: %w", err)
	}

	return records, nil
}
