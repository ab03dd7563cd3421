package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/perimeter-core/internal/audit"
)

// handleListAuditLogs returns paginated audit log entries with optional filters.
//
// Query parameters:
//   - action: filter by action (create, respond, status)
//   - entity_type: filter by entity type (event, device, zone)
//   - entity_id, user_id: exact matches
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		UserID:     q.Get("user_id"),
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
