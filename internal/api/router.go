package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)

		r.Route("/slots", func(r chi.Router) {
			r.Get("/", s.handleListSlots)
			r.Get("/{name}", s.handleGetSlot)
		})

		r.Get("/controllers", s.handleBoundList(s.tracker.Controllers))
		r.Get("/trackers", s.handleBoundList(s.tracker.Trackers))
		r.Get("/base-stations", s.handleBoundList(s.tracker.BaseStations))
		r.Get("/hmd", s.handleHMD)
		r.Get("/camera-controller", s.handleCameraController)

		r.Get("/baselines/{serial}", s.handleGetBaseline)

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.handleGetSettings)
			r.Patch("/", s.handlePatchSettings)
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}
