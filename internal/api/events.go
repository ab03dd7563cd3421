package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/perimeter-core/internal/audit"
	"github.com/nerrad567/perimeter-core/internal/command"
	"github.com/nerrad567/perimeter-core/internal/ingest"
)

// statusRequest is the body of the status PATCH endpoints.
type statusRequest struct {
	Status string `json:"status"`
}

// handleCreateEvent ingests an operator-reported event.
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var raw ingest.RawEvent
	if !decodeBody(w, r, &raw) {
		return
	}

	ev, err := s.gateway.CreateEvent(r.Context(), raw)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}

	s.audit.Record(r.Context(), subject(r.Context()), audit.ActionCreate, audit.EntityEvent, ev.ID, map[string]any{
		"type":   ev.Type,
		"source": ev.Source,
	})
	writeJSON(w, http.StatusCreated, ev)
}

// handleQueryEvents returns recent events, newest first.
//
// Query parameters:
//   - type: filter by event type
//   - status: filter by status (active, acknowledged, resolved)
//   - hours: look-back window (default 24, max 168)
//   - limit, offset: pagination
func (s *Server) handleQueryEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := ingest.Query{
		Type:   query.Get("type"),
		Status: query.Get("status"),
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"hours", &q.Hours},
		{"limit", &q.Limit},
		{"offset", &q.Offset},
	} {
		v := query.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			writeValidationError(w, p.name, "must be an integer")
			return
		}
		*p.dst = n
	}

	events, err := s.gateway.QueryEvents(r.Context(), q)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// handleGetEvent returns one event with its responses.
func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	detail, err := s.gateway.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleRespondToEvent executes a manual response. A command that ran and
// failed is still a 200: the failure is recorded on the returned response.
func (s *Server) handleRespondToEvent(w http.ResponseWriter, r *http.Request) {
	var req ingest.RespondRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.OperatorID = subject(r.Context())
	eventID := chi.URLParam(r, "id")

	resp, err := s.gateway.RespondToEvent(r.Context(), eventID, req)
	if resp != nil {
		s.audit.Record(r.Context(), req.OperatorID, audit.ActionRespond, audit.EntityEvent, eventID, map[string]any{
			"response_id": resp.ID,
			"action":      string(resp.Action),
			"device_id":   resp.TargetDeviceID,
			"status":      string(resp.Status),
		})
	}

	var unsupported *command.UnsupportedActionError
	switch {
	case errors.As(err, &unsupported) && resp != nil:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"status":   http.StatusUnprocessableEntity,
			"code":     ErrCodeUnsupportedAction,
			"message":  err.Error(),
			"response": resp,
		})
	case err != nil:
		s.writeGatewayError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleUpdateEventStatus moves an event to a later status.
func (s *Server) handleUpdateEventStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ev, err := s.gateway.UpdateEventStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}

	s.audit.Record(r.Context(), subject(r.Context()), audit.ActionStatus, audit.EntityEvent, ev.ID, map[string]any{
		"status": string(ev.Status),
	})
	writeJSON(w, http.StatusOK, ev)
}
