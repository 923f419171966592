package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/liminal-dev/liminal-core/internal/controller"
	"github.com/liminal-dev/liminal-core/internal/peripheral"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeNotReady    = "not_ready"
	ErrCodeUnavailable = "unavailable"
	ErrCodeHardware    = "hardware_error"
	ErrCodeInternal    = "internal_error"
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

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeLoopError maps an error from the control loop or a registry to a
// response. Not-found and not-ready stay distinct.
func writeLoopError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, peripheral.ErrNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, peripheral.ErrNotReady):
		writeError(w, http.StatusConflict, ErrCodeNotReady, err.Error())
	case errors.Is(err, peripheral.ErrUnsupported):
		writeBadRequest(w, err.Error())
	case errors.Is(err, peripheral.ErrBusIO), errors.Is(err, peripheral.ErrUnknownDevice):
		writeError(w, http.StatusBadGateway, ErrCodeHardware, err.Error())
	case errors.Is(err, controller.ErrStopped),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "control loop not responding")
	default:
		writeInternalError(w, err.Error())
	}
}
