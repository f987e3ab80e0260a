// Package audit maintains the append-only log of who changed what.
// Bookings are soft deleted rather than removed so that this log can always
// be correlated with the rows it references.
package audit

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/TheLab-ms/bench/engine/db"
)

const migration = `
CREATE TABLE IF NOT EXISTS audit_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    actor INTEGER,
    action TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id INTEGER,
    details TEXT NOT NULL DEFAULT ''
) STRICT;

CREATE INDEX IF NOT EXISTS audit_log_created_idx ON audit_log(created);
CREATE INDEX IF NOT EXISTS audit_log_entity_idx ON audit_log(entity_type, entity_id);
`

// Recorder writes audit entries. It is shared by every module that mutates state.
type Recorder struct {
	db *sql.DB
}

func NewRecorder(d *sql.DB) *Recorder {
	db.MustMigrate(d, migration)
	return &Recorder{db: d}
}

// Record inserts an audit entry. Failures are logged, not returned - an audit
// write must never fail the operation it describes.
func (r *Recorder) Record(ctx context.Context, actor int64, action, entityType string, entityID int64, details string) {
	if r == nil || r.db == nil {
		return
	}

	var actorPtr any
	if actor > 0 {
		actorPtr = actor
	}
	var entityPtr any
	if entityID > 0 {
		entityPtr = entityID
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (actor, action, entity_type, entity_id, details) VALUES (?, ?, ?, ?, ?)`,
		actorPtr, action, entityType, entityPtr, details)
	if err != nil {
		slog.Error("failed to write audit entry", "error", err, "action", action, "entityType", entityType)
	}
}
