package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// healthCheckTimeout bounds each dependency check.
const healthCheckTimeout = 2 * time.Second

// componentHealth is one dependency's entry in the health response.
type componentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// handleHealth reports liveness, version and dependency health. The process
// is alive whenever it can answer, so the status code is always 200; a
// failing dependency only marks the result degraded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	components := make(map[string]componentHealth, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name](ctx)
		cancel()

		if err != nil {
			status = "degraded"
			components[name] = componentHealth{Status: "unhealthy", Error: err.Error()}
			continue
		}
		components[name] = componentHealth{Status: "healthy"}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    s.version,
		"observers":  s.observers.Count(),
		"components": components,
	})
}
