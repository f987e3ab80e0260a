// Package series manages recurring bookings: a recurrence rule is expanded
// into concrete dates, materialized as individual bookings in a rolling
// window, and governed by an active/paused/cancelled lifecycle.
package series

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/TheLab-ms/bench/engine"
	"github.com/TheLab-ms/bench/engine/db"
	"github.com/TheLab-ms/bench/modules/audit"
	"github.com/TheLab-ms/bench/modules/auth"
	"github.com/TheLab-ms/bench/modules/bookings"
	"github.com/TheLab-ms/bench/modules/resources"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

const migration = `
CREATE TABLE IF NOT EXISTS series (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    resource INTEGER NOT NULL REFERENCES resources(id),
    member INTEGER NOT NULL REFERENCES members(id),
    rule TEXT NOT NULL,
    start_min INTEGER NOT NULL,
    end_min INTEGER NOT NULL,
    purpose TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'active',
    planned INTEGER NOT NULL,
    materialized INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    horizon TEXT NOT NULL,
    last_date TEXT NOT NULL,
    revision TEXT NOT NULL,
    CHECK (end_min > start_min)
) STRICT;

CREATE INDEX IF NOT EXISTS series_status_idx ON series(status);
`

const (
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCancelled = "cancelled"
)

// horizonDays is how far ahead of today instances are materialized. The
// rolling window worker keeps extending it until the rule is exhausted.
const horizonDays = 60

type Series struct {
	ID           int64  `json:"id"`
	Resource     int64  `json:"resource"`
	Member       int64  `json:"member"`
	Rule         Rule   `json:"rule"`
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
	Purpose      string `json:"purpose,omitempty"`
	Status       string `json:"status"`
	Planned      int    `json:"planned"`
	Materialized int    `json:"materialized"`
	Skipped      int    `json:"skipped"`
	Horizon      string `json:"horizon"`
	Revision     string `json:"revision"`

	startMin, endMin int
	lastDate         string
}

type Module struct {
	db  *sql.DB
	rec *audit.Recorder
	now func() time.Time
}

func New(d *sql.DB, rec *audit.Recorder) *Module {
	db.MustMigrate(d, migration)
	return &Module{db: d, rec: rec, now: time.Now}
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("POST", "/api/series", router.WithAuth(m.handleCreate))
	router.Handle("GET", "/api/series/:id", router.WithAuth(m.handleGet))
	router.Handle("POST", "/api/series/:id/pause", router.WithAuth(m.handleTransition("pause", StatusPaused, StatusActive)))
	router.Handle("POST", "/api/series/:id/resume", router.WithAuth(m.handleTransition("resume", StatusActive, StatusPaused)))
	router.Handle("POST", "/api/series/:id/cancel", router.WithAuth(m.handleCancel))
}

const selectCols = "id, resource, member, rule, start_min, end_min, purpose, status, planned, materialized, skipped, horizon, last_date, revision"

func scanSeries(row interface{ Scan(...any) error }) (*Series, error) {
	s := &Series{}
	var rawRule string
	err := row.Scan(&s.ID, &s.Resource, &s.Member, &rawRule, &s.startMin, &s.endMin, &s.Purpose,
		&s.Status, &s.Planned, &s.Materialized, &s.Skipped, &s.Horizon, &s.lastDate, &s.Revision)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rawRule), &s.Rule); err != nil {
		return nil, fmt.Errorf("decoding rule: %w", err)
	}
	s.StartTime = resources.FormatClock(s.startMin)
	s.EndTime = resources.FormatClock(s.endMin)
	return s, nil
}

type resourceInfo struct {
	MaxConcurrent int
	Certification string
	Availability  resources.Availability
	Status        string
}

func loadResource(ctx context.Context, q bookings.Querier, id int64) (*resourceInfo, error) {
	info := &resourceInfo{}
	var avail string
	err := q.QueryRowContext(ctx,
		"SELECT max_concurrent, certification, availability, status FROM resources WHERE id = ?", id).
		Scan(&info.MaxConcurrent, &info.Certification, &avail, &info.Status)
	if err == sql.ErrNoRows {
		return nil, engine.NotFound("resource not found")
	}
	if err != nil {
		return nil, err
	}
	info.Availability, err = resources.ParseAvailability([]byte(avail))
	return info, err
}

type createRequest struct {
	Resource  int64  `json:"resource"`
	Rule      Rule   `json:"rule"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Purpose   string `json:"purpose"`
}

func (m *Module) handleCreate(r *http.Request, _ httprouter.Params) engine.Response {
	meta := auth.GetUserMeta(r.Context())

	body := createRequest{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return engine.ClientErrorf(400, "invalid request body: %s", err)
	}
	body.Rule.ByWeekday = body.Rule.normalizedWeekdays()

	dates, err := Expand(&body.Rule)
	if err != nil {
		return engine.Error(err)
	}
	_, rng, err := bookings.ValidateRange(body.Rule.StartDate, body.StartTime, body.EndTime)
	if err != nil {
		return engine.Error(err)
	}

	info, err := loadResource(r.Context(), m.db, body.Resource)
	if err != nil {
		return engine.Error(err)
	}
	if info.Status != resources.StatusActive {
		return engine.Error(engine.Conflict(engine.CodeResourceUnavailable, "this resource is currently %s", info.Status))
	}
	if info.Certification != "" && meta.Role != auth.RoleTender && !meta.Certified(info.Certification) {
		return engine.Error(&engine.APIError{
			Status: 403, Code: engine.CodeCertRequired,
			Message: fmt.Sprintf("the %q certification is required to book this resource", info.Certification),
		})
	}

	horizon := m.now().AddDate(0, 0, horizonDays).Format(bookings.DateFormat)
	window := datesThrough(dates, "", horizon)

	rawRule, err := json.Marshal(body.Rule)
	if err != nil {
		return engine.Errorf("encoding rule: %s", err)
	}

	tx, err := m.db.BeginTx(r.Context(), nil)
	if err != nil {
		return engine.Errorf("starting transaction: %s", err)
	}
	defer tx.Rollback()

	s := &Series{
		Resource: body.Resource,
		Member:   meta.ID,
		Purpose:  body.Purpose,
		startMin: rng.Start,
		endMin:   rng.End,
	}
	result, err := tx.ExecContext(r.Context(),
		`INSERT INTO series (resource, member, rule, start_min, end_min, purpose, planned, horizon, last_date, revision)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		body.Resource, meta.ID, string(rawRule), rng.Start, rng.End, body.Purpose,
		len(dates), horizon, dates[len(dates)-1], uuid.NewString())
	if err != nil {
		return engine.Errorf("inserting series: %s", err)
	}
	s.ID, err = result.LastInsertId()
	if err != nil {
		return engine.Errorf("inserting series: %s", err)
	}

	created, skipped, err := materialize(r.Context(), tx, s, info, window)
	if err != nil {
		return engine.Errorf("materializing series: %s", err)
	}
	_, err = tx.ExecContext(r.Context(),
		"UPDATE series SET materialized = ?, skipped = ? WHERE id = ?",
		len(created), len(skipped), s.ID)
	if err != nil {
		return engine.Errorf("updating series counters: %s", err)
	}
	if err := tx.Commit(); err != nil {
		return engine.Errorf("committing series: %s", err)
	}

	m.rec.Record(r.Context(), meta.ID, "series.create", "series", s.ID,
		fmt.Sprintf("%s on resource %d, %d planned", body.Rule.Frequency, body.Resource, len(dates)))

	out, err := m.get(r, s.ID)
	if err != nil {
		return engine.Errorf("reading back series: %s", err)
	}
	return engine.WithHeader("ETag", `"`+out.Revision+`"`, engine.JSONStatus(http.StatusCreated, map[string]any{
		"series":       out,
		"materialized": created,
		"skipped":      skipped,
	}))
}

func (m *Module) get(r *http.Request, id int64) (*Series, error) {
	return scanSeries(m.db.QueryRowContext(r.Context(), "SELECT "+selectCols+" FROM series WHERE id = ?", id))
}

// authorizedSeries loads the series and checks that the caller owns it or is
// a tender.
func (m *Module) authorizedSeries(r *http.Request, ps httprouter.Params) (*Series, engine.Response) {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		return nil, engine.ClientErrorf(400, "invalid series id")
	}
	s, err := m.get(r, id)
	if err == sql.ErrNoRows {
		return nil, engine.NotFoundf("series not found")
	}
	if err != nil {
		return nil, engine.Errorf("querying series: %s", err)
	}
	meta := auth.GetUserMeta(r.Context())
	if s.Member != meta.ID && meta.Role != auth.RoleTender {
		return nil, engine.Error(engine.Forbidden("this is not your series"))
	}
	return s, nil
}

func (m *Module) handleGet(r *http.Request, ps httprouter.Params) engine.Response {
	s, resp := m.authorizedSeries(r, ps)
	if resp != nil {
		return resp
	}
	return engine.WithHeader("ETag", `"`+s.Revision+`"`, engine.JSON(s))
}

// handleTransition implements the reversible half of the lifecycle. The
// update is conditional on the expected current status so concurrent
// transitions can't race past each other.
func (m *Module) handleTransition(action, to string, from ...string) engine.Handler {
	return func(r *http.Request, ps httprouter.Params) engine.Response {
		s, resp := m.authorizedSeries(r, ps)
		if resp != nil {
			return resp
		}
		if s.Status == StatusCancelled {
			return engine.Error(engine.Conflict(engine.CodeConflict, "a cancelled series can't be %sd", action))
		}

		query := fmt.Sprintf("UPDATE series SET status = ?, revision = ? WHERE id = ? AND status IN (%s)",
			placeholders(len(from)))
		args := []any{to, uuid.NewString(), s.ID}
		for _, f := range from {
			args = append(args, f)
		}
		result, err := m.db.ExecContext(r.Context(), query, args...)
		if err != nil {
			return engine.Errorf("updating series status: %s", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return engine.Error(engine.Conflict(engine.CodeConflict, "the series is not %s", from[0]))
		}

		meta := auth.GetUserMeta(r.Context())
		m.rec.Record(r.Context(), meta.ID, "series."+action, "series", s.ID, "")

		out, err := m.get(r, s.ID)
		if err != nil {
			return engine.Errorf("reading back series: %s", err)
		}
		return engine.WithHeader("ETag", `"`+out.Revision+`"`, engine.JSON(out))
	}
}

// handleCancel marks the series terminal and cancels its future bookings.
// Past bookings keep their history.
func (m *Module) handleCancel(r *http.Request, ps httprouter.Params) engine.Response {
	s, resp := m.authorizedSeries(r, ps)
	if resp != nil {
		return resp
	}
	if s.Status == StatusCancelled {
		return engine.Error(engine.Conflict(engine.CodeConflict, "the series is already cancelled"))
	}

	tx, err := m.db.BeginTx(r.Context(), nil)
	if err != nil {
		return engine.Errorf("starting transaction: %s", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(r.Context(),
		"UPDATE series SET status = 'cancelled', revision = ? WHERE id = ? AND status != 'cancelled'",
		uuid.NewString(), s.ID)
	if err != nil {
		return engine.Errorf("cancelling series: %s", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return engine.Error(engine.Conflict(engine.CodeConflict, "the series is already cancelled"))
	}

	today := m.now().Format(bookings.DateFormat)
	_, err = tx.ExecContext(r.Context(),
		`UPDATE bookings SET status = 'cancelled', revision = lower(hex(randomblob(16)))
		 WHERE series = ? AND date >= ? AND status NOT IN ('cancelled', 'rejected')`,
		s.ID, today)
	if err != nil {
		return engine.Errorf("cancelling series bookings: %s", err)
	}
	if err := tx.Commit(); err != nil {
		return engine.Errorf("committing series cancellation: %s", err)
	}

	meta := auth.GetUserMeta(r.Context())
	m.rec.Record(r.Context(), meta.ID, "series.cancel", "series", s.ID, "")

	out, err := m.get(r, s.ID)
	if err != nil {
		return engine.Errorf("reading back series: %s", err)
	}
	return engine.WithHeader("ETag", `"`+out.Revision+`"`, engine.JSON(out))
}

func placeholders(n int) string {
	s := "?"
	for i := 1; i < n; i++ {
		s += ", ?"
	}
	return s
}
