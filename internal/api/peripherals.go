package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleGetActuator(w http.ResponseWriter, r *http.Request) {
	snap, err := s.controller.Actuator(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeLoopError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleGetSensor returns the latest reading. A sensor that is not Ready
// answers 409 rather than a stale sample.
func (s *Server) handleGetSensor(w http.ResponseWriter, r *http.Request) {
	reading, err := s.controller.Sensor(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeLoopError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

func (s *Server) handleReinitActuator(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.controller.ReinitializeActuator(r.Context(), name); err != nil {
		writeLoopError(w, err)
		return
	}
	s.logger.Info("actuator reinitialized via API", "name", name)

	snap, err := s.controller.Actuator(r.Context(), name)
	if err != nil {
		writeLoopError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleReinitSensor is the operator's way out of the Error status.
func (s *Server) handleReinitSensor(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.controller.ReinitializeSensor(r.Context(), name); err != nil {
		writeLoopError(w, err)
		return
	}
	s.logger.Info("sensor reinitialized via API", "name", name)

	writeJSON(w, http.StatusOK, map[string]string{
		"name":   name,
		"status": "ready",
	})
}
