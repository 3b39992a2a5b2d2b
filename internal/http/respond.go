package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"outlay/internal/core"
	"outlay/internal/log"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeJSONError writes the API error body. Every API failure, whatever
// the status, is {"error": string}.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// respondError maps a domain error to its API status. Anything outside
// the known sentinels is a 500 with a generic body; the cause goes to
// the log, not the client.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case isNotFoundError(err):
		writeJSONError(w, http.StatusNotFound, "not found")
	case isConflictError(err):
		writeJSONError(w, http.StatusConflict, err.Error())
	case isValidationError(err):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.ErrorContext(r.Context(), "request failed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldError, err.Error())
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func isNotFoundError(err error) bool {
	return errors.Is(err, core.ErrNotFound)
}

// isConflictError groups the sentinels that surface as a 409: the write
// collides with existing state rather than being malformed.
func isConflictError(err error) bool {
	return errors.Is(err, core.ErrCategoryInUse) || errors.Is(err, core.ErrDuplicateName)
}

// isValidationError groups the sentinels that mean the client sent a
// bad request body or parameters.
func isValidationError(err error) bool {
	for _, sentinel := range []error{
		core.ErrInvalidInput,
		core.ErrInvalidRange,
		core.ErrInvalidDay,
		core.ErrInvalidMonth,
		core.ErrInvalidAmount,
		core.ErrEmptyDescription,
		core.ErrEmptyName,
		core.ErrMissingCategory,
		core.ErrMissingUser,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
