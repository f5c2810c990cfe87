// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("permission denied")
	ErrUnauthorized = errors.New("unauthorized")
)

// StateCarrier is implemented by conflict errors that expose the current
// state of the resource so callers can react idempotently.
type StateCarrier interface {
	CurrentState() string
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Forbidden responses never carry the underlying reason.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrConflict):
		detail := ProblemDetail{Title: "Conflict", Status: http.StatusConflict, Detail: err.Error()}
		var carrier StateCarrier
		if errors.As(err, &carrier) {
			detail.CurrentState = carrier.CurrentState()
		}
		writeProblem(w, detail)
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", ErrForbidden.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// LogAndRespond logs unexpected errors before mapping them.
func LogAndRespond(logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	if logger != nil && Status(err) >= http.StatusInternalServerError {
		logger.Error("request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	RespondError(w, err)
}

// Status returns the HTTP status RespondError would use for err.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
