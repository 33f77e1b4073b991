package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/logger"
	"github.com/jask/recurring/internal/recurrence"
	"github.com/jask/recurring/internal/service"
)

// maxBody bounds request bodies, imports included.
const maxBody = 10 << 20

type errorBody struct {
	Error         string `json:"error"`
	TransactionID string `json:"transaction_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L.Error("encode response", "error", err)
	}
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrValidation), errors.Is(err, recurrence.ErrInvalidPattern):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAlreadyRealized), errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrNotScheduled), errors.Is(err, service.ErrSkipped), errors.Is(err, service.ErrInactive):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	var already *service.AlreadyRealizedError
	if errors.As(err, &already) {
		body.TransactionID = already.TransactionID
	}
	log := logger.FromContext(r.Context())
	if status == http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "error", err)
		body.Error = "internal error"
	} else {
		log.Warn("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, r *http.Request, format string, args ...any) {
	writeError(w, r, fmt.Errorf("%w: %s", service.ErrValidation, fmt.Sprintf(format, args...)))
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, r, "decode body: %v", err)
		return false
	}
	return true
}

// dateParam parses a required ISO date from a query value or path segment.
func dateParam(w http.ResponseWriter, r *http.Request, name, raw string) (date.Date, bool) {
	if raw == "" {
		badRequest(w, r, "%s is required", name)
		return date.Date{}, false
	}
	d, err := date.Parse(raw)
	if err != nil {
		badRequest(w, r, "%s: %v", name, err)
		return date.Date{}, false
	}
	return d, true
}
