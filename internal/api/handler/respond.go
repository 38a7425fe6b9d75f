package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/notifyhub/dispatch/internal/domain"
)

// Envelope is the uniform response body for every intake API endpoint.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    any             `json:"data,omitempty"`
	Error   *string         `json:"error,omitempty"`
	Meta    *PaginationMeta `json:"meta,omitempty"`
}

// PaginationMeta describes the page window of a list response.
type PaginationMeta struct {
	Total       int  `json:"total"`
	Limit       int  `json:"limit"`
	Page        int  `json:"page"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondData(w http.ResponseWriter, status int, message string, data any) {
	respondJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

func respondPage(w http.ResponseWriter, message string, data any, meta *PaginationMeta) {
	respondJSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data, Meta: meta})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, Envelope{Success: false, Message: msg, Error: &msg})
}

// mapError translates domain sentinel errors to HTTP status codes.
// All mapping lives here so individual handlers stay concise.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		respondError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, domain.ErrServiceUnavailable):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, domain.ErrTerminalStatus),
		errors.Is(err, domain.ErrDuplicateRequest):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrMissingRequestID),
		errors.Is(err, domain.ErrMissingUserID),
		errors.Is(err, domain.ErrMissingTemplate),
		errors.Is(err, domain.ErrInvalidChannel),
		errors.Is(err, domain.ErrInvalidPriority),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidNotificationID),
		errors.Is(err, domain.ErrNoEmailRecipient),
		errors.Is(err, domain.ErrNoPushRecipient),
		errors.Is(err, domain.ErrBulkEmpty),
		errors.Is(err, domain.ErrBulkTooLarge):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
