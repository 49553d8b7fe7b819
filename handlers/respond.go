package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/salulink/authi-claims/logging"
	"github.com/salulink/authi-claims/session"
	"github.com/salulink/authi-claims/store"
	"github.com/salulink/authi-claims/workflow"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
	Field   string `json:"field,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

// RespondWithJSON writes a JSON response
func RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	w.WriteHeader(code)
	_, _ = w.Write(data)
}

// RespondWithError writes a JSON error response
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	})
}

// respondWithDomainError maps workflow, session and store errors to HTTP
// statuses
func respondWithDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *workflow.ValidationError
	switch {
	case errors.As(err, &validation):
		RespondWithJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   http.StatusText(http.StatusUnprocessableEntity),
			Message: validation.Message,
			Code:    http.StatusUnprocessableEntity,
			Field:   validation.Field,
			Stage:   validation.Stage.String(),
		})
	case errors.Is(err, workflow.ErrWrongStage):
		RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, workflow.ErrUnknownStage):
		RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrSessionNotFound):
		RespondWithError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, store.ErrCaseNotFound):
		RespondWithError(w, http.StatusNotFound, "Case not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		RespondWithError(w, http.StatusServiceUnavailable, "Request cancelled")
	default:
		logging.Error("Request failed", "path", r.URL.Path, "error", err)
		RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeJSON reads a JSON body into dst, rejecting unknown fields
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
