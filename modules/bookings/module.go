// Package bookings implements the booking engine: range validation, overlap
// detection against resource capacity, optimistic concurrency, and the undo
// window for cancellations.
package bookings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/TheLab-ms/bench/engine"
	"github.com/TheLab-ms/bench/engine/db"
	"github.com/TheLab-ms/bench/modules/audit"
	"github.com/TheLab-ms/bench/modules/auth"
	"github.com/TheLab-ms/bench/modules/metrics"
	"github.com/TheLab-ms/bench/modules/resources"
	"github.com/TheLab-ms/bench/modules/undo"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

type Module struct {
	db   *sql.DB
	rec  *audit.Recorder
	undo *undo.Coordinator
	self *url.URL

	undoSigner    *engine.ValueSigner[undoTicket]
	checkinSigner *engine.ValueSigner[int64]
}

func New(d *sql.DB, rec *audit.Recorder, u *undo.Coordinator, self *url.URL) *Module {
	db.MustMigrate(d, migration)
	return &Module{
		db:            d,
		rec:           rec,
		undo:          u,
		self:          self,
		undoSigner:    engine.NewValueSigner[undoTicket](),
		checkinSigner: engine.NewValueSigner[int64](),
	}
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("POST", "/api/bookings", router.WithAuth(m.handleCreate))
	router.Handle("GET", "/api/bookings/:id", router.WithAuth(m.handleGet))
	router.Handle("PATCH", "/api/bookings/:id", router.WithAuth(m.handleUpdate))
	router.Handle("POST", "/api/bookings/:id/cancel", router.WithAuth(m.handleCancel))
	router.Handle("POST", "/api/bookings/:id/approve", router.WithTender(m.handleDecision(StatusApproved)))
	router.Handle("POST", "/api/bookings/:id/reject", router.WithTender(m.handleDecision(StatusRejected)))
	router.Handle("GET", "/api/resources/:id/bookings", router.WithAuth(m.handleDaySchedule))
	router.Handle("POST", "/api/undo", router.WithAuth(m.handleUndo))
	router.Handle("GET", "/api/bookings/:id/qr", router.WithAuth(m.handleQR))
	router.Handle("POST", "/api/checkin", router.WithAuth(m.handleCheckin))
}

func (m *Module) AttachWorkers(mgr *engine.ProcMgr) {
	mgr.Add(engine.Poll(time.Hour, m.completeElapsed))
}

// completeElapsed moves approved bookings whose day has passed to completed.
func (m *Module) completeElapsed(ctx context.Context) bool {
	_, err := m.db.ExecContext(ctx,
		`UPDATE bookings SET status = 'completed', revision = lower(hex(randomblob(16)))
		 WHERE status = 'approved' AND date < date('now')`)
	if err != nil {
		slog.Error("failed to complete elapsed bookings", "error", err)
	}
	return false
}

type resourceInfo struct {
	MaxConcurrent int
	Certification string
	Availability  resources.Availability
	Status        string
}

func loadResource(r *http.Request, q Querier, id int64) (*resourceInfo, error) {
	info := &resourceInfo{}
	var avail string
	err := q.QueryRowContext(r.Context(),
		"SELECT max_concurrent, certification, availability, status FROM resources WHERE id = ?", id).
		Scan(&info.MaxConcurrent, &info.Certification, &avail, &info.Status)
	if err == sql.ErrNoRows {
		return nil, engine.NotFound("resource not found")
	}
	if err != nil {
		return nil, err
	}
	info.Availability, err = resources.ParseAvailability([]byte(avail))
	if err != nil {
		return nil, err
	}
	return info, nil
}

type bookingRequest struct {
	Resource  int64  `json:"resource"`
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Purpose   string `json:"purpose"`

	// Confirm acknowledges an OVERLAP_WARNING and books anyway.
	Confirm bool `json:"confirm"`
}

func (m *Module) handleCreate(r *http.Request, _ httprouter.Params) engine.Response {
	meta := auth.GetUserMeta(r.Context())

	body := bookingRequest{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return engine.ClientErrorf(400, "invalid request body: %s", err)
	}

	day, rng, err := ValidateRange(body.Date, body.StartTime, body.EndTime)
	if err != nil {
		return engine.Error(err)
	}

	info, err := loadResource(r, m.db, body.Resource)
	if err != nil {
		return engine.Error(err)
	}
	if resp := m.checkBookable(meta, info, day, rng); resp != nil {
		return resp
	}

	tx, err := m.db.BeginTx(r.Context(), nil)
	if err != nil {
		return engine.Errorf("starting transaction: %s", err)
	}
	defer tx.Rollback()

	existing, err := ActiveRanges(r.Context(), tx, body.Resource, body.Date, 0)
	if err != nil {
		return engine.Errorf("querying existing bookings: %s", err)
	}
	if resp := verdictResponse(CheckOverlap(rng, existing, info.MaxConcurrent), body.Confirm); resp != nil {
		return resp
	}

	id, _, err := Insert(r.Context(), tx, body.Resource, meta.ID, body.Date, rng, body.Purpose, nil)
	if err != nil {
		return engine.Errorf("inserting booking: %s", err)
	}
	if err := tx.Commit(); err != nil {
		return engine.Errorf("committing booking: %s", err)
	}

	metrics.BookingsCreated.Inc()
	m.rec.Record(r.Context(), meta.ID, "booking.create", "booking", id,
		fmt.Sprintf("resource %d on %s %s-%s", body.Resource, body.Date, body.StartTime, body.EndTime))

	booking, err := Get(r.Context(), m.db, id)
	if err != nil {
		return engine.Errorf("reading back booking: %s", err)
	}
	return withETag(booking, engine.JSONStatus(http.StatusCreated, booking))
}

// checkBookable enforces resource status, certification, and availability
// windows. Tenders can book certification-gated tools without holding the
// certification themselves.
func (m *Module) checkBookable(meta *auth.UserMetadata, info *resourceInfo, day time.Time, rng Range) engine.Response {
	if info.Status != resources.StatusActive {
		return engine.Error(engine.Conflict(engine.CodeResourceUnavailable, "this resource is currently %s", info.Status))
	}
	if info.Certification != "" && meta.Role != auth.RoleTender && !meta.Certified(info.Certification) {
		return engine.Error(&engine.APIError{
			Status: 403, Code: engine.CodeCertRequired,
			Message: fmt.Sprintf("the %q certification is required to book this resource", info.Certification),
		})
	}
	if !info.Availability.Covers(day.Weekday(), rng.Start, rng.End) {
		return engine.Error(engine.Conflict(engine.CodeResourceUnavailable, "the resource is not available during this window"))
	}
	return nil
}

func verdictResponse(verdict Verdict, confirm bool) engine.Response {
	switch verdict {
	case VerdictTaken:
		metrics.Conflicts.WithLabelValues("slot_taken").Inc()
		return engine.Error(engine.Conflict(engine.CodeSlotTaken, "the resource has no capacity left in this window"))
	case VerdictWarning:
		if !confirm {
			metrics.Conflicts.WithLabelValues("overlap_warning").Inc()
			return engine.Error(engine.Conflict(engine.CodeOverlapWarning, "this window overlaps other bookings - confirm to book anyway"))
		}
	}
	return nil
}

func withETag(b *Booking, resp engine.Response) engine.Response {
	return engine.WithHeader("ETag", `"`+b.Revision+`"`, resp)
}

func (m *Module) handleGet(r *http.Request, ps httprouter.Params) engine.Response {
	booking, resp := m.authorizedBooking(r, ps)
	if resp != nil {
		return resp
	}
	return withETag(booking, engine.JSON(booking))
}

// authorizedBooking loads the booking and checks that the caller owns it or
// is a tender.
func (m *Module) authorizedBooking(r *http.Request, ps httprouter.Params) (*Booking, engine.Response) {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		return nil, engine.ClientErrorf(400, "invalid booking id")
	}
	booking, err := Get(r.Context(), m.db, id)
	if err == sql.ErrNoRows {
		return nil, engine.NotFoundf("booking not found")
	}
	if err != nil {
		return nil, engine.Errorf("querying booking: %s", err)
	}
	meta := auth.GetUserMeta(r.Context())
	if booking.Member != meta.ID && meta.Role != auth.RoleTender {
		return nil, engine.Error(engine.Forbidden("this is not your booking"))
	}
	return booking, nil
}

func (m *Module) handleUpdate(r *http.Request, ps httprouter.Params) engine.Response {
	booking, resp := m.authorizedBooking(r, ps)
	if resp != nil {
		return resp
	}
	ifMatch := etagValue(r.Header.Get("If-Match"))
	if ifMatch == "" {
		return engine.ClientErrorf(http.StatusPreconditionRequired, "an If-Match header with the booking revision is required")
	}
	if booking.Status == StatusCancelled || booking.Status == StatusCompleted {
		return engine.Error(engine.Conflict(engine.CodeConflict, "a %s booking can't be edited", booking.Status))
	}

	body := bookingRequest{Date: booking.Date, StartTime: booking.StartTime, EndTime: booking.EndTime, Purpose: booking.Purpose}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return engine.ClientErrorf(400, "invalid request body: %s", err)
	}

	day, rng, err := ValidateRange(body.Date, body.StartTime, body.EndTime)
	if err != nil {
		return engine.Error(err)
	}

	info, err := loadResource(r, m.db, booking.Resource)
	if err != nil {
		return engine.Error(err)
	}
	meta := auth.GetUserMeta(r.Context())
	if resp := m.checkBookable(meta, info, day, rng); resp != nil {
		return resp
	}

	tx, err := m.db.BeginTx(r.Context(), nil)
	if err != nil {
		return engine.Errorf("starting transaction: %s", err)
	}
	defer tx.Rollback()

	existing, err := ActiveRanges(r.Context(), tx, booking.Resource, body.Date, booking.ID)
	if err != nil {
		return engine.Errorf("querying existing bookings: %s", err)
	}
	if resp := verdictResponse(CheckOverlap(rng, existing, info.MaxConcurrent), body.Confirm); resp != nil {
		return resp
	}

	result, err := tx.ExecContext(r.Context(),
		`UPDATE bookings SET date = ?, start_min = ?, end_min = ?, purpose = ?, revision = ?
		 WHERE id = ? AND revision = ?`,
		body.Date, rng.Start, rng.End, body.Purpose, uuid.NewString(), booking.ID, ifMatch)
	if err != nil {
		return engine.Errorf("updating booking: %s", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		metrics.Conflicts.WithLabelValues("version_mismatch").Inc()
		return engine.Error(engine.Conflict(engine.CodeVersionMismatch, "the booking was modified by someone else - re-fetch and try again"))
	}
	if err := tx.Commit(); err != nil {
		return engine.Errorf("committing booking update: %s", err)
	}

	m.rec.Record(r.Context(), meta.ID, "booking.update", "booking", booking.ID, "")

	updated, err := Get(r.Context(), m.db, booking.ID)
	if err != nil {
		return engine.Errorf("reading back booking: %s", err)
	}
	return withETag(updated, engine.JSON(updated))
}

// handleDecision approves or rejects a pending booking.
func (m *Module) handleDecision(status string) engine.Handler {
	return func(r *http.Request, ps httprouter.Params) engine.Response {
		id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
		if err != nil {
			return engine.ClientErrorf(400, "invalid booking id")
		}

		result, err := m.db.ExecContext(r.Context(),
			"UPDATE bookings SET status = ?, revision = ? WHERE id = ? AND status = 'pending'",
			status, uuid.NewString(), id)
		if err != nil {
			return engine.Errorf("deciding booking: %s", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			if _, err := Get(r.Context(), m.db, id); err == sql.ErrNoRows {
				return engine.NotFoundf("booking not found")
			}
			return engine.Error(engine.Conflict(engine.CodeConflict, "only pending bookings can be decided"))
		}

		meta := auth.GetUserMeta(r.Context())
		m.rec.Record(r.Context(), meta.ID, "booking."+status, "booking", id, "")

		booking, err := Get(r.Context(), m.db, id)
		if err != nil {
			return engine.Errorf("reading back booking: %s", err)
		}
		return withETag(booking, engine.JSON(booking))
	}
}

func (m *Module) handleDaySchedule(r *http.Request, ps httprouter.Params) engine.Response {
	resource, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		return engine.ClientErrorf(400, "invalid resource id")
	}
	date := r.URL.Query().Get("date")
	if _, err := ParseDate(date); err != nil {
		return engine.Error(err)
	}

	rows, err := m.db.QueryContext(r.Context(),
		`SELECT `+selectCols+` FROM bookings
		 WHERE resource = ? AND date = ? AND status NOT IN ('cancelled', 'rejected')
		 ORDER BY start_min`, resource, date)
	if err != nil {
		return engine.Errorf("querying schedule: %s", err)
	}
	defer rows.Close()

	out := []*Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return engine.Errorf("scanning schedule: %s", err)
		}
		out = append(out, b)
	}
	return engine.JSON(out)
}

func etagValue(header string) string {
	if len(header) >= 2 && header[0] == '"' && header[len(header)-1] == '"' {
		return header[1 : len(header)-1]
	}
	return header
}
