package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-dashsync/internal/devicesync"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeUpstream       = "upstream_error"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeNotImplemented = "not_implemented"
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

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeSyncError maps a synchronizer error onto a response.
//
// Auth is checked first: a MutationError whose cause is an AuthError is
// reported as 401, not as an upstream failure.
func (s *Server) writeSyncError(w http.ResponseWriter, err error) {
	var (
		validation *devicesync.ValidationError
		mutation   *devicesync.MutationError
		network    *devicesync.NetworkError
	)

	switch {
	case errors.Is(err, devicesync.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "synchronizer is closed")
	case devicesync.IsAuthError(err):
		writeUnauthorized(w, err.Error())
	case errors.Is(err, devicesync.ErrUnknownDevice):
		writeNotFound(w, err.Error())
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, devicesync.ErrSyncUnsupported):
		writeError(w, http.StatusNotImplemented, ErrCodeNotImplemented, err.Error())
	case errors.As(err, &mutation), errors.As(err, &network):
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
	default:
		s.logger.Error("unhandled synchronizer error", "error", err)
		writeInternalError(w, "internal server error")
	}
}
