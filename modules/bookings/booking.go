package bookings

import (
	"context"
	"database/sql"

	"github.com/TheLab-ms/bench/modules/resources"
	"github.com/google/uuid"
)

const migration = `
CREATE TABLE IF NOT EXISTS bookings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    resource INTEGER NOT NULL REFERENCES resources(id),
    member INTEGER NOT NULL REFERENCES members(id),
    date TEXT NOT NULL,
    start_min INTEGER NOT NULL,
    end_min INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    purpose TEXT NOT NULL DEFAULT '',
    series INTEGER REFERENCES series(id) ON DELETE SET NULL,
    revision TEXT NOT NULL,
    CHECK (end_min > start_min)
) STRICT;

CREATE INDEX IF NOT EXISTS bookings_resource_date_idx ON bookings(resource, date);
CREATE INDEX IF NOT EXISTS bookings_member_idx ON bookings(member);
CREATE INDEX IF NOT EXISTS bookings_series_idx ON bookings(series);
`

// Booking statuses. Cancelled bookings are kept forever - they're soft
// deletes that preserve the audit trail.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

type Booking struct {
	ID        int64  `json:"id"`
	Resource  int64  `json:"resource"`
	Member    int64  `json:"member"`
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Status    string `json:"status"`
	Purpose   string `json:"purpose,omitempty"`
	Series    *int64 `json:"series,omitempty"`
	Revision  string `json:"revision"`
}

// Querier is satisfied by both *sql.DB and *sql.Tx so the overlap check and
// insert can run inside a series materialization transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const selectCols = "id, resource, member, date, start_min, end_min, status, purpose, series, revision"

func scanBooking(row interface{ Scan(...any) error }) (*Booking, error) {
	b := &Booking{}
	var startMin, endMin int
	err := row.Scan(&b.ID, &b.Resource, &b.Member, &b.Date, &startMin, &endMin, &b.Status, &b.Purpose, &b.Series, &b.Revision)
	if err != nil {
		return nil, err
	}
	b.StartTime = resources.FormatClock(startMin)
	b.EndTime = resources.FormatClock(endMin)
	return b, nil
}

// Get loads one booking by id.
func Get(ctx context.Context, q Querier, id int64) (*Booking, error) {
	return scanBooking(q.QueryRowContext(ctx, "SELECT "+selectCols+" FROM bookings WHERE id = ?", id))
}

// ActiveRanges returns the time ranges of every booking that still holds the
// slot (neither cancelled nor rejected) for a resource on a date. excludeID
// is skipped when non-zero - used when editing an existing booking.
func ActiveRanges(ctx context.Context, q Querier, resource int64, date string, excludeID int64) ([]Range, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT start_min, end_min FROM bookings
		 WHERE resource = ? AND date = ? AND status NOT IN ('cancelled', 'rejected') AND id != ?`,
		resource, date, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ranges := []Range{}
	for rows.Next() {
		var r Range
		if err := rows.Scan(&r.Start, &r.End); err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return ranges, rows.Err()
}

// Insert creates a booking with a fresh revision and returns its id.
func Insert(ctx context.Context, q Querier, resource, member int64, date string, rng Range, purpose string, series *int64) (int64, string, error) {
	revision := uuid.NewString()
	result, err := q.ExecContext(ctx,
		`INSERT INTO bookings (resource, member, date, start_min, end_min, purpose, series, revision)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		resource, member, date, rng.Start, rng.End, purpose, series, revision)
	if err != nil {
		return 0, "", err
	}
	id, err := result.LastInsertId()
	return id, revision, err
}
