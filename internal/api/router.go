package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// Display inventory
		r.Route("/displays", func(r chi.Router) {
			r.Get("/", s.handleListDisplays)
			r.Get("/{number}", s.handleGetDisplay)
		})

		// Event history
		r.Get("/events", s.handleListEvents)

		// Force an immediate bus check
		r.Post("/rescan", s.handleRescan)

		// WebSocket event stream
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := map[string]string{}

	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			status = "degraded"
			checks["database"] = err.Error()
		} else {
			checks["database"] = "ok"
		}
	}
	if s.mqtt != nil {
		if s.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			status = "degraded"
			checks["mqtt"] = "disconnected"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}

// handleRescan requests an immediate hotplug check from the watch engine.
func (s *Server) handleRescan(w http.ResponseWriter, _ *http.Request) {
	if s.rescan == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "rescan not available")
		return
	}
	// Run outside the request goroutine; a scan can block on
	// stabilization delays.
	go s.rescan()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "rescan_requested"})
}
