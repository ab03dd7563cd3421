package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/perimeter-core/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Unauthenticated monitoring
		r.Get("/health", s.handleHealth)
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

		// Observer protocol authenticates from the query string.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/events", func(r chi.Router) {
				r.With(s.require(auth.PermEventRead)).Get("/", s.handleQueryEvents)
				r.With(s.require(auth.PermEventWrite)).Post("/", s.handleCreateEvent)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.require(auth.PermEventRead)).Get("/", s.handleGetEvent)
					r.With(s.require(auth.PermEventRespond)).Post("/respond", s.handleRespondToEvent)
					r.With(s.require(auth.PermEventWrite)).Patch("/status", s.handleUpdateEventStatus)
				})
			})

			r.Route("/devices", func(r chi.Router) {
				r.With(s.require(auth.PermDeviceRead)).Get("/", s.handleListDevices)
				r.With(s.require(auth.PermDeviceManage)).Post("/", s.handleCreateDevice)
				r.With(s.require(auth.PermDeviceManage)).Patch("/{id}/status", s.handleUpdateDeviceStatus)
			})

			r.Route("/zones", func(r chi.Router) {
				r.With(s.require(auth.PermZoneRead)).Get("/", s.handleListZones)
				r.With(s.require(auth.PermZoneManage)).Post("/", s.handleCreateZone)
			})

			r.With(s.require(auth.PermAuditRead)).Get("/audit", s.handleListAuditLogs)
		})
	})

	return r
}
