package api

import (
	"net/http"

	"github.com/nerrad567/perimeter-core/internal/audit"
	"github.com/nerrad567/perimeter-core/internal/zone"
)

// handleListZones returns zones, optionally only active ones (?active=true).
func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	zones := s.gateway.ListZones(r.URL.Query().Get("active") == "true")
	writeJSON(w, http.StatusOK, map[string]any{"zones": zones, "count": len(zones)})
}

// handleCreateZone stores a zone. Zones are active unless the body says otherwise.
func (s *Server) handleCreateZone(w http.ResponseWriter, r *http.Request) {
	z := zone.Zone{Active: true}
	if !decodeBody(w, r, &z) {
		return
	}

	if err := s.gateway.CreateZone(r.Context(), &z); err != nil {
		s.writeGatewayError(w, r, err)
		return
	}

	s.audit.Record(r.Context(), subject(r.Context()), audit.ActionCreate, audit.EntityZone, z.ID, map[string]any{
		"name": z.Name,
		"kind": string(z.Kind),
	})
	writeJSON(w, http.StatusCreated, z)
}
