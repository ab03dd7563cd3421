package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/perimeter-core/internal/audit"
	"github.com/nerrad567/perimeter-core/internal/device"
)

// handleListDevices returns every device sorted by name.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.gateway.ListDevices(r.Context())
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleCreateDevice registers a new field device.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var d device.Device
	if !decodeBody(w, r, &d) {
		return
	}

	if err := s.gateway.CreateDevice(r.Context(), &d); err != nil {
		s.writeGatewayError(w, r, err)
		return
	}

	s.audit.Record(r.Context(), subject(r.Context()), audit.ActionCreate, audit.EntityDevice, d.ID, map[string]any{
		"name": d.Name,
		"kind": string(d.Kind),
	})
	writeJSON(w, http.StatusCreated, d)
}

// handleUpdateDeviceStatus records a health report for a device.
func (s *Server) handleUpdateDeviceStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	d, err := s.gateway.UpdateDeviceStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}

	s.audit.Record(r.Context(), subject(r.Context()), audit.ActionStatus, audit.EntityDevice, d.ID, map[string]any{
		"status": string(d.Status),
	})
	writeJSON(w, http.StatusOK, d)
}
