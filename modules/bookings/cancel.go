package bookings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/TheLab-ms/bench/engine"
	"github.com/TheLab-ms/bench/modules/auth"
	"github.com/TheLab-ms/bench/modules/metrics"
	"github.com/TheLab-ms/bench/modules/undo"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

// undoTicket ties an undo token to the member that opened the window so one
// member can't replay another's ticket.
type undoTicket struct {
	Member int64  `json:"m"`
	Key    string `json:"k"`
}

func undoKey(member, booking int64) string {
	return fmt.Sprintf("member/%d/booking/%d", member, booking)
}

func (m *Module) handleCancel(r *http.Request, ps httprouter.Params) engine.Response {
	booking, resp := m.authorizedBooking(r, ps)
	if resp != nil {
		return resp
	}
	if booking.Status == StatusCancelled {
		return engine.Error(engine.Conflict(engine.CodeConflict, "the booking is already cancelled"))
	}
	if ifMatch := etagValue(r.Header.Get("If-Match")); ifMatch != "" && ifMatch != booking.Revision {
		metrics.Conflicts.WithLabelValues("version_mismatch").Inc()
		return engine.Error(engine.Conflict(engine.CodeVersionMismatch, "the booking was modified by someone else - re-fetch and try again"))
	}

	prior := booking.Status
	result, err := m.db.ExecContext(r.Context(),
		"UPDATE bookings SET status = 'cancelled', revision = ? WHERE id = ? AND revision = ?",
		uuid.NewString(), booking.ID, booking.Revision)
	if err != nil {
		return engine.Errorf("cancelling booking: %s", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		metrics.Conflicts.WithLabelValues("version_mismatch").Inc()
		return engine.Error(engine.Conflict(engine.CodeVersionMismatch, "the booking was modified by someone else - re-fetch and try again"))
	}

	meta := auth.GetUserMeta(r.Context())
	metrics.BookingsCancelled.Inc()
	m.rec.Record(r.Context(), meta.ID, "booking.cancel", "booking", booking.ID, "was "+prior)

	// Open the undo window. The reversal restores the pre-cancel status, but
	// only while the row is still cancelled.
	key := undoKey(meta.ID, booking.ID)
	bookingID := booking.ID
	m.undo.Register(key, func() error {
		result, err := m.db.ExecContext(context.Background(),
			"UPDATE bookings SET status = ?, revision = ? WHERE id = ? AND status = 'cancelled'",
			prior, uuid.NewString(), bookingID)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return undo.ErrExpired
		}
		m.rec.Record(context.Background(), meta.ID, "booking.undo_cancel", "booking", bookingID, "restored to "+prior)
		return nil
	}, undo.DefaultTimeout)

	token := m.undoSigner.Sign(undoTicket{Member: meta.ID, Key: key}, undo.DefaultTimeout)
	return engine.JSON(map[string]any{
		"status":    StatusCancelled,
		"undoToken": token,
		"undoForMs": undo.DefaultTimeout.Milliseconds(),
	})
}

func (m *Module) handleUndo(r *http.Request, _ httprouter.Params) engine.Response {
	body := struct {
		Token string `json:"token"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return engine.ClientErrorf(400, "invalid request body: %s", err)
	}

	ticket, valid := m.undoSigner.Verify(body.Token)
	if !valid {
		metrics.UndoOutcomes.WithLabelValues("expired").Inc()
		return engine.Error(undo.ErrExpired)
	}
	if meta := auth.GetUserMeta(r.Context()); ticket.Member != meta.ID {
		return engine.Error(engine.Forbidden("this undo token belongs to another member"))
	}

	if err := m.undo.Invoke(ticket.Key); err != nil {
		metrics.UndoOutcomes.WithLabelValues("expired").Inc()
		return engine.Error(err)
	}
	metrics.UndoOutcomes.WithLabelValues("invoked").Inc()
	return engine.Empty()
}
