// Package api exposes the HTTP surface: feeder registration and sample
// ingest, aircraft state reads, route resolution and the live stream.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router wires the HTTP routes to the handler
type Router struct {
	handler *Handler
}

// NewRouter creates the API router
func NewRouter(handler *Handler) *Router {
	return &Router{handler: handler}
}

// Routes builds the chi mux
func (r *Router) Routes() http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.Timeout(60 * time.Second))

	mux.Route("/api/v1", func(api chi.Router) {
		api.Get("/health", r.handler.GetHealth)

		api.Post("/feeders", r.handler.RegisterFeeder)
		api.Get("/feeders", r.handler.ListFeeders)

		api.Post("/samples", r.handler.IngestSamples)

		api.Route("/aircraft", func(aircraft chi.Router) {
			aircraft.Get("/", r.handler.ListAircraft)
			aircraft.Get("/{icao24}", r.handler.GetAircraft)
			aircraft.Get("/{icao24}/route", r.handler.GetRoute)
		})
	})

	mux.Get("/ws", r.handler.HandleWebSocket)

	return mux
}
