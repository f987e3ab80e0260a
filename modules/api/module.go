// Package api exposes the token-authenticated machine API consumed by kioskd,
// the shop-floor agent that shows today's schedule and reports check-in scans.
package api

import (
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/TheLab-ms/bench/engine"
	"github.com/TheLab-ms/bench/engine/db"
	"github.com/TheLab-ms/bench/modules/resources"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

const migration = `
CREATE TABLE IF NOT EXISTS api_tokens (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    label TEXT NOT NULL DEFAULT '',
    token TEXT NOT NULL UNIQUE
) STRICT;

CREATE TABLE IF NOT EXISTS kiosk_events (
    uid TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    token TEXT NOT NULL
) STRICT;
`

type Module struct {
	db *sql.DB
}

func New(d *sql.DB) (*Module, error) {
	db.MustMigrate(d, migration)

	var id int
	if err := d.QueryRow("SELECT id FROM api_tokens").Scan(&id); err != nil {
		slog.Info("generating initial API token...")
		token := uuid.Must(uuid.NewRandom()).String() + "-" + uuid.Must(uuid.NewRandom()).String() // mega uuid lol
		_, err = d.Exec("INSERT INTO api_tokens (label, token) VALUES ('Automatically generated', ?)", token)
		if err != nil {
			return nil, err
		}
	}
	return &Module{db: d}, nil
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("GET", "/api/kiosk/schedule", m.withAuth(m.handleGetSchedule))
	router.Handle("POST", "/api/kiosk/events", m.withAuth(m.handlePostEvents))
}

func (m *Module) withAuth(next engine.Handler) engine.Handler {
	return func(r *http.Request, ps httprouter.Params) engine.Response {
		var id int
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		err := m.db.QueryRowContext(r.Context(), "SELECT id FROM api_tokens WHERE token = ?", token).Scan(&id)
		if err != nil {
			return engine.Unauthorized(err)
		}
		return next(r, ps)
	}
}

func (m *Module) handleGetSchedule(r *http.Request, ps httprouter.Params) engine.Response {
	tx, err := m.db.BeginTx(r.Context(), &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return engine.Errorf("starting transaction: %s", err)
	}
	defer tx.Rollback()

	resp := Schedule{Entries: []*ScheduleEntry{}}
	// Every booking mutation leaves an audit record, so the newest audit id
	// is a cheap monotonic revision for the schedule.
	err = tx.QueryRowContext(r.Context(),
		"SELECT COALESCE(MAX(id), 0), date('now') FROM audit_log WHERE entity_type = 'booking'").
		Scan(&resp.Revision, &resp.Date)
	if err != nil {
		return engine.Errorf("querying schedule revision: %s", err)
	}

	// Bail out if we don't have a newer schedule than the client
	if after, err := strconv.ParseInt(r.URL.Query().Get("after"), 10, 0); err == nil && after >= resp.Revision {
		return engine.Empty()
	}

	rows, err := tx.QueryContext(r.Context(),
		`SELECT b.id, r.name, m.name, b.start_min, b.end_min, b.status
		 FROM bookings b
		 JOIN resources r ON r.id = b.resource
		 JOIN members m ON m.id = b.member
		 WHERE b.date = date('now') AND b.status IN ('pending', 'approved')
		 ORDER BY b.start_min, r.name`)
	if err != nil {
		return engine.Errorf("querying schedule: %s", err)
	}
	defer rows.Close()

	for rows.Next() {
		entry := &ScheduleEntry{}
		var startMin, endMin int
		if err := rows.Scan(&entry.Booking, &entry.Resource, &entry.Member, &startMin, &endMin, &entry.Status); err != nil {
			return engine.Errorf("scanning schedule: %s", err)
		}
		entry.StartTime = resources.FormatClock(startMin)
		entry.EndTime = resources.FormatClock(endMin)
		resp.Entries = append(resp.Entries, entry)
	}
	return engine.JSON(&resp)
}

func (m *Module) handlePostEvents(r *http.Request, ps httprouter.Params) engine.Response {
	events := []*KioskEvent{}
	dec := json.NewDecoder(r.Body)
	for {
		event := &KioskEvent{}
		err := dec.Decode(event)
		if err == io.EOF {
			break
		}
		if err != nil {
			return engine.ClientErrorf(400, "invalid request: %s", err)
		}
		events = append(events, event)
	}

	tx, err := m.db.BeginTx(r.Context(), nil)
	if err != nil {
		return engine.Errorf("starting transaction: %s", err)
	}
	defer tx.Rollback()

	for _, event := range events {
		if event.Scan == nil {
			continue
		}
		_, err = tx.ExecContext(r.Context(),
			"INSERT INTO kiosk_events (uid, timestamp, token) VALUES (?, ?, ?) ON CONFLICT DO NOTHING",
			event.UID, event.Timestamp, event.Scan.Token)
		if err != nil {
			return engine.Errorf("storing kiosk event: %s", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return engine.Errorf("committing kiosk events: %s", err)
	}

	slog.Info("stored kiosk events", "count", len(events))
	return engine.Empty()
}
