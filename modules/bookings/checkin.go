package bookings

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/TheLab-ms/bench/engine"
	"github.com/TheLab-ms/bench/modules/auth"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const qrTTL = 24 * time.Hour

// handleQR renders a QR code for the shop-floor kiosk. Scanning it checks
// the member in for their booking.
func (m *Module) handleQR(r *http.Request, ps httprouter.Params) engine.Response {
	booking, resp := m.authorizedBooking(r, ps)
	if resp != nil {
		return resp
	}
	if booking.Status != StatusApproved && booking.Status != StatusPending {
		return engine.Error(engine.Conflict(engine.CodeConflict, "a %s booking can't be checked in", booking.Status))
	}

	tok := m.checkinSigner.Sign(booking.ID, qrTTL)
	target := fmt.Sprintf("%s/api/checkin?val=%s", m.self, url.QueryEscape(tok))
	png, err := qrcode.Encode(target, qrcode.Medium, 512)
	if err != nil {
		return engine.Errorf("encoding qr code: %s", err)
	}
	return engine.PNG(png)
}

func (m *Module) handleCheckin(r *http.Request, _ httprouter.Params) engine.Response {
	val := r.URL.Query().Get("val")
	if val == "" {
		body := struct {
			Token string `json:"token"`
		}{}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			val = body.Token
		}
	}

	id, valid := m.checkinSigner.Verify(val)
	if !valid {
		return engine.ClientErrorf(400, "invalid or expired check-in code")
	}

	booking, err := Get(r.Context(), m.db, id)
	if err != nil {
		return engine.NotFoundf("booking not found")
	}

	meta := auth.GetUserMeta(r.Context())
	m.rec.Record(r.Context(), meta.ID, "booking.checkin", "booking", booking.ID, "")
	return engine.JSON(booking)
}
