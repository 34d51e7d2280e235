// Helper functions for sending standardized JSON responses.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vrsandeep/vidl/internal/jobs"
	"github.com/vrsandeep/vidl/internal/models"
	"github.com/vrsandeep/vidl/internal/source"
	"github.com/vrsandeep/vidl/internal/store"
)

// RespondWithJSON writes a JSON response with the given status code and payload.
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		// If marshaling fails, return an error response
		RespondWithError(w, http.StatusInternalServerError, "Failed to marshal response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// RespondWithError writes a standardized JSON error response.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, map[string]string{"error": message})
}

// StatusForError maps domain errors to HTTP status codes.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, source.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicate),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, jobs.ErrJobRunning):
		return http.StatusConflict
	case errors.Is(err, store.ErrStoreBusy):
		return http.StatusServiceUnavailable
	case source.IsTransient(err), errors.Is(err, source.ErrUnauthorized):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondWithDomainError writes err with the status StatusForError picks.
// Unexpected errors are logged and hidden from the client.
func (s *Server) respondWithDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusForError(err)
	if code == http.StatusInternalServerError {
		s.logger.Sugar().Errorw("Request failed", "path", r.URL.Path, "error", err)
		RespondWithError(w, code, "Internal server error")
		return
	}
	RespondWithError(w, code, err.Error())
}
