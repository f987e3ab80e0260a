// Package metrics exposes prometheus counters for the booking engine.
package metrics

import (
	"net/http"

	"github.com/TheLab-ms/bench/engine"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BookingsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bench",
		Name:      "bookings_created_total",
		Help:      "Count of bookings created.",
	})

	BookingsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bench",
		Name:      "bookings_cancelled_total",
		Help:      "Count of bookings cancelled.",
	})

	Conflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bench",
		Name:      "booking_conflicts_total",
		Help:      "Count of booking conflicts by kind.",
	}, []string{"kind"})

	SeriesInstances = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bench",
		Name:      "series_instances_total",
		Help:      "Count of recurring series instances by outcome.",
	}, []string{"outcome"})

	UndoOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bench",
		Name:      "undo_total",
		Help:      "Count of undo window outcomes.",
	}, []string{"outcome"})
)

type Module struct{}

func New() *Module { return &Module{} }

func (m *Module) AttachRoutes(router *engine.Router) {
	handler := promhttp.Handler()
	router.Handle("GET", "/metrics", func(r *http.Request, _ httprouter.Params) engine.Response {
		return handlerResponse{handler, r}
	})
}

type handlerResponse struct {
	handler http.Handler
	r       *http.Request
}

func (h handlerResponse) Write(w http.ResponseWriter) { h.handler.ServeHTTP(w, h.r) }
