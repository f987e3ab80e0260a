// Package members owns the member records and their certifications.
package members

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/TheLab-ms/bench/engine"
	"github.com/TheLab-ms/bench/engine/db"
	"github.com/TheLab-ms/bench/modules/audit"
	"github.com/TheLab-ms/bench/modules/auth"
	"github.com/julienschmidt/httprouter"
	"golang.org/x/crypto/bcrypt"
)

const migration = `
CREATE TABLE IF NOT EXISTS members (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    email TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL DEFAULT 'participant',
    active INTEGER NOT NULL DEFAULT 1
) STRICT;

CREATE TABLE IF NOT EXISTS member_certifications (
    member INTEGER NOT NULL REFERENCES members(id) ON DELETE CASCADE,
    certification TEXT NOT NULL,
    granted_by INTEGER REFERENCES members(id) ON DELETE SET NULL,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    PRIMARY KEY (member, certification)
) STRICT;
`

type Module struct {
	db  *sql.DB
	rec *audit.Recorder
}

func New(d *sql.DB, rec *audit.Recorder) *Module {
	db.MustMigrate(d, migration)
	return &Module{db: d, rec: rec}
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("GET", "/api/admin/members", router.WithTender(m.handleList))
	router.Handle("POST", "/api/admin/members", router.WithTender(m.handleCreate))
	router.Handle("PATCH", "/api/admin/members/:id", router.WithTender(m.handleUpdate))
	router.Handle("POST", "/api/admin/members/:id/certifications", router.WithTender(m.handleGrantCert))
	router.Handle("DELETE", "/api/admin/members/:id/certifications/:cert", router.WithTender(m.handleRevokeCert))
}

type member struct {
	ID     int64  `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
}

func (m *Module) handleList(r *http.Request, _ httprouter.Params) engine.Response {
	rows, err := m.db.QueryContext(r.Context(), "SELECT id, email, name, role, active FROM members ORDER BY id")
	if err != nil {
		return engine.Errorf("querying members: %s", err)
	}
	defer rows.Close()

	members := []*member{}
	for rows.Next() {
		mem := &member{}
		if err := rows.Scan(&mem.ID, &mem.Email, &mem.Name, &mem.Role, &mem.Active); err != nil {
			return engine.Errorf("scanning members: %s", err)
		}
		mem.Role = auth.NormalizeRole(mem.Role)
		members = append(members, mem)
	}
	return engine.JSON(members)
}

func (m *Module) handleCreate(r *http.Request, _ httprouter.Params) engine.Response {
	body := struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Role     string `json:"role"`
		Password string `json:"password"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return engine.ClientErrorf(400, "invalid request body: %s", err)
	}
	if body.Email == "" || body.Password == "" {
		return engine.ClientErrorf(400, "email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		return engine.Errorf("hashing password: %s", err)
	}

	result, err := m.db.ExecContext(r.Context(),
		"INSERT INTO members (email, name, role, password_hash) VALUES (?, ?, ?, ?)",
		body.Email, body.Name, auth.NormalizeRole(body.Role), string(hash))
	if err != nil {
		return engine.Error(engine.Conflict(engine.CodeConflict, "a member with this email already exists"))
	}
	id, _ := result.LastInsertId()

	actor := auth.GetUserMeta(r.Context())
	m.rec.Record(r.Context(), actor.ID, "member.create", "member", id, body.Email)

	mem := &member{ID: id, Email: body.Email, Name: body.Name, Role: auth.NormalizeRole(body.Role), Active: true}
	return engine.JSONStatus(http.StatusCreated, mem)
}

func (m *Module) handleUpdate(r *http.Request, ps httprouter.Params) engine.Response {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		return engine.ClientErrorf(400, "invalid member id")
	}

	body := struct {
		Name   *string `json:"name"`
		Role   *string `json:"role"`
		Active *bool   `json:"active"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return engine.ClientErrorf(400, "invalid request body: %s", err)
	}

	q := "UPDATE members SET id = id"
	args := []any{}
	if body.Name != nil {
		q += ", name = ?"
		args = append(args, *body.Name)
	}
	if body.Role != nil {
		q += ", role = ?"
		args = append(args, auth.NormalizeRole(*body.Role))
	}
	if body.Active != nil {
		q += ", active = ?"
		args = append(args, *body.Active)
	}
	q += " WHERE id = ?"
	args = append(args, id)

	result, err := m.db.ExecContext(r.Context(), q, args...)
	if err != nil {
		return engine.Errorf("updating member: %s", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return engine.NotFoundf("member not found")
	}

	actor := auth.GetUserMeta(r.Context())
	m.rec.Record(r.Context(), actor.ID, "member.update", "member", id, "")
	return engine.Empty()
}

func (m *Module) handleGrantCert(r *http.Request, ps httprouter.Params) engine.Response {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		return engine.ClientErrorf(400, "invalid member id")
	}
	body := struct {
		Certification string `json:"certification"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Certification == "" {
		return engine.ClientErrorf(400, "certification is required")
	}

	actor := auth.GetUserMeta(r.Context())
	_, err = m.db.ExecContext(r.Context(),
		"INSERT OR IGNORE INTO member_certifications (member, certification, granted_by) VALUES (?, ?, ?)",
		id, body.Certification, actor.ID)
	if err != nil {
		return engine.Errorf("granting certification: %s", err)
	}

	m.rec.Record(r.Context(), actor.ID, "member.certify", "member", id, body.Certification)
	return engine.Empty()
}

func (m *Module) handleRevokeCert(r *http.Request, ps httprouter.Params) engine.Response {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		return engine.ClientErrorf(400, "invalid member id")
	}
	cert := ps.ByName("cert")

	result, err := m.db.ExecContext(r.Context(),
		"DELETE FROM member_certifications WHERE member = ? AND certification = ?", id, cert)
	if err != nil {
		return engine.Errorf("revoking certification: %s", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return engine.NotFoundf("certification not found")
	}

	actor := auth.GetUserMeta(r.Context())
	m.rec.Record(r.Context(), actor.ID, "member.decertify", "member", id, cert)
	return engine.Empty()
}

// ErrDuplicateEmail is returned by Create when the address is already taken.
var ErrDuplicateEmail = errors.New("a member with this email already exists")

// Create inserts a member directly. Used by tests and bootstrap seeding.
func (m *Module) Create(email, password, role string) (int64, error) {
	var existing int64
	if err := m.db.QueryRow("SELECT id FROM members WHERE email = ?", email).Scan(&existing); err == nil {
		return 0, ErrDuplicateEmail
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}
	result, err := m.db.Exec(
		"INSERT INTO members (email, role, password_hash) VALUES (?, ?, ?)",
		email, auth.NormalizeRole(role), string(hash))
	if err != nil {
		return 0, fmt.Errorf("inserting member: %w", err)
	}
	return result.LastInsertId()
}
