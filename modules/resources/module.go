// Package resources owns the bookable tools, machines, and rooms.
package resources

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/TheLab-ms/bench/engine"
	"github.com/TheLab-ms/bench/engine/db"
	"github.com/TheLab-ms/bench/modules/audit"
	"github.com/TheLab-ms/bench/modules/auth"
	"github.com/julienschmidt/httprouter"
)

const migration = `
CREATE TABLE IF NOT EXISTS resources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    name TEXT NOT NULL UNIQUE,
    category TEXT NOT NULL DEFAULT '',
    max_concurrent INTEGER NOT NULL DEFAULT 1,
    certification TEXT NOT NULL DEFAULT '',
    availability TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL DEFAULT 'active',
    notes TEXT NOT NULL DEFAULT ''
) STRICT;
`

// Resource statuses. Only active resources accept bookings.
const (
	StatusActive      = "active"
	StatusMaintenance = "maintenance"
	StatusRetired     = "retired"
)

type Resource struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	MaxConcurrent int             `json:"maxConcurrent"`
	Certification string          `json:"certification,omitempty"`
	Availability  json.RawMessage `json:"availability"`
	Status        string          `json:"status"`
	Notes         string          `json:"notes,omitempty"`
}

type Module struct {
	db  *sql.DB
	rec *audit.Recorder
}

func New(d *sql.DB, rec *audit.Recorder) *Module {
	db.MustMigrate(d, migration)
	return &Module{db: d, rec: rec}
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("GET", "/api/resources", router.WithAuth(m.handleList))
	router.Handle("GET", "/api/resources/:id", router.WithAuth(m.handleGet))
	router.Handle("POST", "/api/resources", router.WithTender(m.handleCreate))
	router.Handle("PATCH", "/api/resources/:id", router.WithTender(m.handleUpdate))
}

const selectCols = "id, name, category, max_concurrent, certification, availability, status, notes"

func scanResource(row interface{ Scan(...any) error }) (*Resource, error) {
	res := &Resource{}
	var avail string
	err := row.Scan(&res.ID, &res.Name, &res.Category, &res.MaxConcurrent, &res.Certification, &avail, &res.Status, &res.Notes)
	if err != nil {
		return nil, err
	}
	res.Availability = json.RawMessage(avail)
	return res, nil
}

func (m *Module) handleList(r *http.Request, _ httprouter.Params) engine.Response {
	q := "SELECT " + selectCols + " FROM resources WHERE status != 'retired'"
	args := []any{}
	if cat := r.URL.Query().Get("category"); cat != "" {
		q += " AND category = ?"
		args = append(args, cat)
	}
	q += " ORDER BY name"

	rows, err := m.db.QueryContext(r.Context(), q, args...)
	if err != nil {
		return engine.Errorf("querying resources: %s", err)
	}
	defer rows.Close()

	out := []*Resource{}
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return engine.Errorf("scanning resources: %s", err)
		}
		out = append(out, res)
	}
	return engine.JSON(out)
}

func (m *Module) handleGet(r *http.Request, ps httprouter.Params) engine.Response {
	res, err := scanResource(m.db.QueryRowContext(r.Context(),
		"SELECT "+selectCols+" FROM resources WHERE id = ?", ps.ByName("id")))
	if err == sql.ErrNoRows {
		return engine.NotFoundf("resource not found")
	}
	if err != nil {
		return engine.Errorf("querying resource: %s", err)
	}
	return engine.JSON(res)
}

type resourceRequest struct {
	Name          *string         `json:"name"`
	Category      *string         `json:"category"`
	MaxConcurrent *int            `json:"maxConcurrent"`
	Certification *string         `json:"certification"`
	Availability  json.RawMessage `json:"availability"`
	Status        *string         `json:"status"`
	Notes         *string         `json:"notes"`
}

func (m *Module) handleCreate(r *http.Request, _ httprouter.Params) engine.Response {
	body := resourceRequest{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return engine.ClientErrorf(400, "invalid request body: %s", err)
	}
	if body.Name == nil || *body.Name == "" {
		return engine.ClientErrorf(400, "name is required")
	}

	maxConcurrent := 1
	if body.MaxConcurrent != nil {
		if *body.MaxConcurrent < 1 {
			return engine.ClientErrorf(400, "maxConcurrent must be at least 1")
		}
		maxConcurrent = *body.MaxConcurrent
	}
	avail := "{}"
	if len(body.Availability) > 0 {
		if _, err := ParseAvailability(body.Availability); err != nil {
			return engine.ClientErrorf(400, "invalid availability: %s", err)
		}
		avail = string(body.Availability)
	}

	result, err := m.db.ExecContext(r.Context(),
		"INSERT INTO resources (name, category, max_concurrent, certification, availability) VALUES (?, ?, ?, ?, ?)",
		*body.Name, strOr(body.Category), maxConcurrent, strOr(body.Certification), avail)
	if err != nil {
		return engine.Error(engine.Conflict(engine.CodeConflict, "a resource with this name already exists"))
	}
	id, _ := result.LastInsertId()

	actor := auth.GetUserMeta(r.Context())
	m.rec.Record(r.Context(), actor.ID, "resource.create", "resource", id, *body.Name)

	res, err := scanResource(m.db.QueryRowContext(r.Context(), "SELECT "+selectCols+" FROM resources WHERE id = ?", id))
	if err != nil {
		return engine.Errorf("reading back resource: %s", err)
	}
	return engine.JSONStatus(http.StatusCreated, res)
}

func (m *Module) handleUpdate(r *http.Request, ps httprouter.Params) engine.Response {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		return engine.ClientErrorf(400, "invalid resource id")
	}

	body := resourceRequest{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return engine.ClientErrorf(400, "invalid request body: %s", err)
	}

	q := "UPDATE resources SET id = id"
	args := []any{}
	if body.Name != nil {
		q += ", name = ?"
		args = append(args, *body.Name)
	}
	if body.Category != nil {
		q += ", category = ?"
		args = append(args, *body.Category)
	}
	if body.MaxConcurrent != nil {
		if *body.MaxConcurrent < 1 {
			return engine.ClientErrorf(400, "maxConcurrent must be at least 1")
		}
		q += ", max_concurrent = ?"
		args = append(args, *body.MaxConcurrent)
	}
	if body.Certification != nil {
		q += ", certification = ?"
		args = append(args, *body.Certification)
	}
	if len(body.Availability) > 0 {
		if _, err := ParseAvailability(body.Availability); err != nil {
			return engine.ClientErrorf(400, "invalid availability: %s", err)
		}
		q += ", availability = ?"
		args = append(args, string(body.Availability))
	}
	if body.Status != nil {
		switch *body.Status {
		case StatusActive, StatusMaintenance, StatusRetired:
		default:
			return engine.ClientErrorf(400, "invalid status %q", *body.Status)
		}
		q += ", status = ?"
		args = append(args, *body.Status)
	}
	if body.Notes != nil {
		q += ", notes = ?"
		args = append(args, *body.Notes)
	}
	q += " WHERE id = ?"
	args = append(args, id)

	result, err := m.db.ExecContext(r.Context(), q, args...)
	if err != nil {
		return engine.Errorf("updating resource: %s", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return engine.NotFoundf("resource not found")
	}

	actor := auth.GetUserMeta(r.Context())
	m.rec.Record(r.Context(), actor.ID, "resource.update", "resource", id, "")
	return engine.Empty()
}

func strOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
