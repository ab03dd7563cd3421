package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/perimeter-core/internal/command"
	"github.com/nerrad567/perimeter-core/internal/device"
	"github.com/nerrad567/perimeter-core/internal/event"
	"github.com/nerrad567/perimeter-core/internal/ingest"
	"github.com/nerrad567/perimeter-core/internal/zone"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeNotFound          = "not_found"
	ErrCodeUnauthorized      = "unauthorised"
	ErrCodeForbidden         = "forbidden"
	ErrCodeConflict          = "conflict"
	ErrCodeInternal          = "internal_error"
	ErrCodeValidation        = "validation_error"
	ErrCodeStorage           = "storage_error"
	ErrCodeUnsupportedAction = "unsupported_action"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeValidationError writes a 400 validation_error naming the field.
func writeValidationError(w http.ResponseWriter, field, reason string) {
	writeJSON(w, http.StatusBadRequest, Error{
		Status:  http.StatusBadRequest,
		Code:    ErrCodeValidation,
		Message: field + ": " + reason,
		Field:   field,
	})
}

// writeGatewayError maps gateway failures onto HTTP status codes.
// Unrecognised errors are logged and reported as 500.
func (s *Server) writeGatewayError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ingest.ValidationError
	switch {
	case errors.As(err, &verr):
		writeValidationError(w, verr.Field, verr.Reason)
	case errors.Is(err, event.ErrEventNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "event not found")
	case errors.Is(err, device.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "device not found")
	case errors.Is(err, zone.ErrZoneNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "zone not found")
	case errors.Is(err, device.ErrDeviceExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, "device already exists")
	case errors.Is(err, zone.ErrZoneExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, "zone already exists")
	case errors.Is(err, command.ErrUnsupportedAction):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeUnsupportedAction, err.Error())
	case errors.Is(err, ingest.ErrStorage):
		s.logger.Warn("storage unavailable",
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
			"error", err,
		)
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, ErrCodeStorage, "storage temporarily unavailable")
	default:
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
			"error", err,
		)
		writeInternalError(w, "internal server error")
	}
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return false
		}
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
