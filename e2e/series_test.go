package e2e

import (
	"net/http"
	"testing"
	"time"

	"github.com/TheLab-ms/bench/modules/auth"
)

func TestSeriesJourney(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	resource := env.createResource("pottery wheel", 1, "")
	client, _ := env.login(auth.RoleParticipant)
	other, _ := env.login(auth.RoleParticipant)

	// Dates relative to now so the rolling window covers the whole rule.
	day := func(offset int) string {
		return time.Now().AddDate(0, 0, offset).Format("2006-01-02")
	}

	// Another member already holds the slot on day 3
	other.POST("/api/bookings").
		WithJSON(map[string]any{"resource": resource, "date": day(3), "startTime": "18:00", "endTime": "20:00"}).
		Expect().
		Status(http.StatusCreated)

	resp := client.POST("/api/series").
		WithJSON(map[string]any{
			"resource":  resource,
			"startTime": "18:00",
			"endTime":   "20:00",
			"purpose":   "evening class",
			"rule": map[string]any{
				"frequency": "DAILY",
				"startDate": day(1),
				"count":     5,
			},
		}).
		Expect().
		Status(http.StatusCreated).JSON().Object()

	series := resp.Value("series").Object()
	series.Value("status").IsEqual("active")
	series.Value("planned").IsEqual(5)
	series.Value("materialized").IsEqual(4)
	series.Value("skipped").IsEqual(1)
	id := series.Value("id").Number().Raw()

	resp.Value("materialized").Array().Length().IsEqual(4)
	skip := resp.Value("skipped").Array()
	skip.Length().IsEqual(1)
	skip.Value(0).Object().Value("date").IsEqual(day(3))
	skip.Value(0).Object().Value("reason").IsEqual("slot_taken")

	// Rules that can't be expanded are refused as a whole
	errCode(client.POST("/api/series").
		WithJSON(map[string]any{
			"resource": resource, "startTime": "08:00", "endTime": "09:00",
			"rule": map[string]any{"frequency": "DAILY", "startDate": day(1)},
		}).
		Expect().
		Status(422)).IsEqual("INVALID_RECURRENCE")

	// Strangers can't manage the series
	other.POST("/api/series/{id}/pause", id).Expect().Status(403)

	// Pause and resume
	client.POST("/api/series/{id}/pause", id).
		Expect().
		Status(200).JSON().Object().Value("status").IsEqual("paused")
	errCode(client.POST("/api/series/{id}/pause", id).Expect().Status(409)).IsEqual("CONFLICT")
	client.POST("/api/series/{id}/resume", id).
		Expect().
		Status(200).JSON().Object().Value("status").IsEqual("active")

	// Pausing never touches the bookings that already exist
	client.GET("/api/resources/{id}/bookings", resource).
		WithQuery("date", day(1)).
		Expect().
		Status(200).JSON().Array().Length().IsEqual(1)

	// Cancelling tears down the future instances and is terminal
	client.POST("/api/series/{id}/cancel", id).
		Expect().
		Status(200).JSON().Object().Value("status").IsEqual("cancelled")
	for _, offset := range []int{1, 2, 4, 5} {
		client.GET("/api/resources/{id}/bookings", resource).
			WithQuery("date", day(offset)).
			Expect().
			Status(200).JSON().Array().IsEmpty()
	}
	errCode(client.POST("/api/series/{id}/resume", id).Expect().Status(409)).IsEqual("CONFLICT")

	// The other member's booking on day 3 survived all of it
	client.GET("/api/resources/{id}/bookings", resource).
		WithQuery("date", day(3)).
		Expect().
		Status(200).JSON().Array().Length().IsEqual(1)
}
