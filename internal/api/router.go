package api

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.timeoutMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/actuators/{name}", func(r chi.Router) {
		r.Get("/", s.handleGetActuator)
		r.Post("/reinit", s.handleReinitActuator)
		r.Get("/journal", s.handleActuatorJournal)
	})
	r.Route("/sensors/{name}", func(r chi.Router) {
		r.Get("/", s.handleGetSensor)
		r.Post("/reinit", s.handleReinitSensor)
	})

	r.Get("/journal", s.handleJournal)

	return r
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components,omitempty"`
}

// handleHealth reports "ok" when the loop answers and every check passes,
// "degraded" when the loop answers but a component does not, and 503 when
// the loop itself is unresponsive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Version: s.version}

	if _, err := s.controller.Status(r.Context()); err != nil {
		resp.Status = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	if len(s.checks) > 0 {
		names := make([]string, 0, len(s.checks))
		for name := range s.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		resp.Components = make(map[string]string, len(names))
		for _, name := range names {
			if err := s.checks[name].HealthCheck(r.Context()); err != nil {
				resp.Components[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Components[name] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleStatus returns the same report the device publishes on its status topic.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.controller.Status(r.Context())
	if err != nil {
		writeLoopError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
