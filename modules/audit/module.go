package audit

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/TheLab-ms/bench/engine"
	"github.com/julienschmidt/httprouter"
)

// Entries older than this are pruned.
const retention = 2 * 365 * 24 * time.Hour

type Module struct {
	db  *sql.DB
	rec *Recorder
}

func New(db *sql.DB) *Module {
	return &Module{db: db, rec: NewRecorder(db)}
}

func (m *Module) Recorder() *Recorder { return m.rec }

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("GET", "/api/admin/audit", router.WithTender(m.handleList))
	router.Handle("GET", "/api/admin/audit/export", router.WithTender(m.handleExport))
}

func (m *Module) AttachWorkers(mgr *engine.ProcMgr) {
	mgr.Add(engine.Poll(time.Hour, engine.Cleanup(m.db, "audit log",
		"DELETE FROM audit_log WHERE created < strftime('%s', 'now') - ?", int64(retention.Seconds()))))
}

type entry struct {
	ID         int64  `json:"id"`
	Created    int64  `json:"created"`
	Actor      *int64 `json:"actor"`
	Action     string `json:"action"`
	EntityType string `json:"entityType"`
	EntityID   *int64 `json:"entityId"`
	Details    string `json:"details"`
}

func (m *Module) handleList(r *http.Request, ps httprouter.Params) engine.Response {
	q := `SELECT id, created, actor, action, entity_type, entity_id, details FROM audit_log`
	args := []any{}
	if et := r.URL.Query().Get("entityType"); et != "" {
		q += ` WHERE entity_type = ?`
		args = append(args, et)
		if id, err := strconv.ParseInt(r.URL.Query().Get("entityId"), 10, 64); err == nil {
			q += ` AND entity_id = ?`
			args = append(args, id)
		}
	}
	q += ` ORDER BY id DESC LIMIT 200`

	rows, err := m.db.QueryContext(r.Context(), q, args...)
	if err != nil {
		return engine.Errorf("querying audit log: %s", err)
	}
	defer rows.Close()

	entries := []*entry{}
	for rows.Next() {
		e := &entry{}
		if err := rows.Scan(&e.ID, &e.Created, &e.Actor, &e.Action, &e.EntityType, &e.EntityID, &e.Details); err != nil {
			return engine.Errorf("scanning audit log: %s", err)
		}
		entries = append(entries, e)
	}
	return engine.JSON(entries)
}

func (m *Module) handleExport(r *http.Request, ps httprouter.Params) engine.Response {
	f, err := m.exportWorkbook(r.Context())
	if err != nil {
		return engine.Errorf("building audit export: %s", err)
	}
	return engine.WithHeader("Content-Disposition", `attachment; filename="audit.xlsx"`,
		engine.WithHeader("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			xlsxResponse{f}))
}
