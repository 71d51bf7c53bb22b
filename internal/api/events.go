package api

import (
	"net/http"
	"strconv"
)

// handleListEvents returns recent display status events, newest first.
//
// Query parameters:
//   - type: filter to one event type (e.g. "connected")
//   - limit: maximum rows to return (default 50, capped at 500)
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "event history not available")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.events.ListEvents(r.Context(), r.URL.Query().Get("type"), limit)
	if err != nil {
		s.logger.Error("event history query failed", "error", err)
		writeInternalError(w, "querying event history failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": records,
		"count":  len(records),
	})
}
