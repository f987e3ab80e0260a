package e2e

import (
	"net/http"
	"testing"

	"github.com/TheLab-ms/bench/modules/auth"
	"github.com/gavv/httpexpect/v2"
)

func errCode(resp *httpexpect.Response) *httpexpect.String {
	return resp.JSON().Object().Value("error").Object().Value("code").String()
}

func TestBookingLifecycle(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	resource := env.createResource("cnc router", 1, "")
	client, _ := env.login(auth.RoleParticipant)
	tender, _ := env.login(auth.RoleTender)

	// Create
	resp := client.POST("/api/bookings").
		WithJSON(map[string]any{
			"resource":  resource,
			"date":      "2030-06-03",
			"startTime": "09:00",
			"endTime":   "11:00",
			"purpose":   "cutting panels",
		}).
		Expect().
		Status(http.StatusCreated)
	etag := resp.Header("ETag").NotEmpty().Raw()
	booking := resp.JSON().Object()
	booking.Value("status").IsEqual("pending")
	id := booking.Value("id").Number().Raw()

	// Invalid ranges are refused up front
	errCode(client.POST("/api/bookings").
		WithJSON(map[string]any{"resource": resource, "date": "2030-06-03", "startTime": "11:00", "endTime": "09:00"}).
		Expect().
		Status(422)).IsEqual("INVALID_RANGE")
	errCode(client.POST("/api/bookings").
		WithJSON(map[string]any{"resource": resource, "date": "2030-02-30", "startTime": "09:00", "endTime": "10:00"}).
		Expect().
		Status(422)).IsEqual("INVALID_DATE")

	// The machine only has one slot
	errCode(client.POST("/api/bookings").
		WithJSON(map[string]any{"resource": resource, "date": "2030-06-03", "startTime": "10:00", "endTime": "12:00"}).
		Expect().
		Status(409)).IsEqual("SLOT_TAKEN")

	// Back to back is fine
	client.POST("/api/bookings").
		WithJSON(map[string]any{"resource": resource, "date": "2030-06-03", "startTime": "11:00", "endTime": "12:00"}).
		Expect().
		Status(http.StatusCreated)

	// Updates require the revision that was read
	client.PATCH("/api/bookings/{id}", id).
		WithJSON(map[string]any{"endTime": "10:30"}).
		Expect().
		Status(http.StatusPreconditionRequired)

	resp = client.PATCH("/api/bookings/{id}", id).
		WithHeader("If-Match", etag).
		WithJSON(map[string]any{"endTime": "10:30"}).
		Expect().
		Status(200)
	resp.Header("ETag").NotEmpty().NotEqual(etag)
	resp.JSON().Object().Value("endTime").IsEqual("10:30")

	// The old revision is now stale
	errCode(client.PATCH("/api/bookings/{id}", id).
		WithHeader("If-Match", etag).
		WithJSON(map[string]any{"endTime": "10:00"}).
		Expect().
		Status(409)).IsEqual("VERSION_MISMATCH")

	// Only tenders decide
	client.POST("/api/bookings/{id}/approve", id).Expect().Status(403)
	tender.POST("/api/bookings/{id}/approve", id).
		Expect().
		Status(200).JSON().Object().Value("status").IsEqual("approved")

	// Approving twice fails: the booking is no longer pending
	errCode(tender.POST("/api/bookings/{id}/approve", id).
		Expect().
		Status(409)).IsEqual("CONFLICT")

	// The day schedule shows both bookings in order
	sched := client.GET("/api/resources/{id}/bookings", resource).
		WithQuery("date", "2030-06-03").
		Expect().
		Status(200).JSON().Array()
	sched.Length().IsEqual(2)
	sched.Value(0).Object().Value("startTime").IsEqual("09:00")
	sched.Value(1).Object().Value("startTime").IsEqual("11:00")
}

func TestBookingCancelAndUndo(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	resource := env.createResource("3d printer", 1, "")
	client, _ := env.login(auth.RoleParticipant)
	other, _ := env.login(auth.RoleParticipant)

	id := client.POST("/api/bookings").
		WithJSON(map[string]any{"resource": resource, "date": "2030-06-03", "startTime": "09:00", "endTime": "11:00"}).
		Expect().
		Status(http.StatusCreated).JSON().Object().Value("id").Number().Raw()

	// Strangers can't see or cancel it
	other.GET("/api/bookings/{id}", id).Expect().Status(403)
	other.POST("/api/bookings/{id}/cancel", id).Expect().Status(403)

	resp := client.POST("/api/bookings/{id}/cancel", id).Expect().Status(200).JSON().Object()
	resp.Value("status").IsEqual("cancelled")
	undoToken := resp.Value("undoToken").String().NotEmpty().Raw()

	// The slot frees up immediately
	client.GET("/api/resources/{id}/bookings", resource).
		WithQuery("date", "2030-06-03").
		Expect().
		Status(200).JSON().Array().IsEmpty()

	// Someone else's token doesn't work
	other.POST("/api/undo").WithJSON(map[string]string{"token": undoToken}).Expect().Status(403)

	// Undo restores the booking
	client.POST("/api/undo").WithJSON(map[string]string{"token": undoToken}).Expect().Status(http.StatusNoContent)
	client.GET("/api/bookings/{id}", id).
		Expect().
		Status(200).JSON().Object().Value("status").IsEqual("pending")

	// The window only opens once
	errCode(client.POST("/api/undo").WithJSON(map[string]string{"token": undoToken}).
		Expect().
		Status(410)).IsEqual("UNDO_EXPIRED")
}

func TestSharedCapacityWarnings(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	resource := env.createResource("classroom", 3, "")
	client, _ := env.login(auth.RoleParticipant)

	book := func(confirm bool) *httpexpect.Response {
		return client.POST("/api/bookings").
			WithJSON(map[string]any{
				"resource": resource, "date": "2030-06-03",
				"startTime": "09:00", "endTime": "11:00", "confirm": confirm,
			}).
			Expect()
	}

	book(false).Status(http.StatusCreated)

	// Overlapping within capacity warns until the caller confirms
	errCode(book(false).Status(409)).IsEqual("OVERLAP_WARNING")
	book(true).Status(http.StatusCreated)
	book(true).Status(http.StatusCreated)

	// Confirmation can't push past capacity
	errCode(book(true).Status(409)).IsEqual("SLOT_TAKEN")
}

func TestCertificationGate(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	resource := env.createResource("mill", 1, "mill-basics")

	uncertified, _ := env.login(auth.RoleParticipant)
	certified, _ := env.login(auth.RoleParticipant, "mill-basics")
	tender, _ := env.login(auth.RoleTender)

	body := map[string]any{"resource": resource, "date": "2030-06-03", "startTime": "09:00", "endTime": "10:00"}
	errCode(uncertified.POST("/api/bookings").WithJSON(body).
		Expect().
		Status(403)).IsEqual("CERT_REQUIRED")

	certified.POST("/api/bookings").WithJSON(body).Expect().Status(http.StatusCreated)

	// Tenders bypass the gate
	body["startTime"] = "10:00"
	body["endTime"] = "11:00"
	tender.POST("/api/bookings").WithJSON(body).Expect().Status(http.StatusCreated)
}

func TestResourceLifecycleGate(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	resource := env.createResource("old lathe", 1, "")
	client, _ := env.login(auth.RoleParticipant)
	tender, _ := env.login(auth.RoleTender)

	tender.PATCH("/api/resources/{id}", resource).
		WithJSON(map[string]string{"status": "maintenance"}).
		Expect().
		Status(http.StatusNoContent)

	errCode(client.POST("/api/bookings").
		WithJSON(map[string]any{"resource": resource, "date": "2030-06-03", "startTime": "09:00", "endTime": "10:00"}).
		Expect().
		Status(409)).IsEqual("RESOURCE_UNAVAILABLE")
}
