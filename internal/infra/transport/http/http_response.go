package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/mkrupp/feed/internal/domain"
)

const internalErrorMessage = "An internal error occurred."

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

// StatusOf maps an error to its HTTP status code by error kind.
// Errors of unknown kind are internal.
func StatusOf(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrUnsupportedMediaType):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as an ErrorResponse. Internal errors never expose their message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)

	resp := ErrorResponse{Message: internalErrorMessage}

	if status != http.StatusInternalServerError {
		if pub, ok := domain.PublicError(err); ok {
			resp.Message = pub.Message
			resp.Data = pub.Data
		} else {
			resp.Message = http.StatusText(status)
		}
	}

	WriteJSON(w, r, status, resp)
}

// DecodeJSON decodes the request body into v.
// A malformed body is reported as a validation error.
func DecodeJSON(r *http.Request, v any) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return errors.Join(ErrMalformedBody, err)
	}

	return nil
}

// ErrMalformedBody is returned when a request body can not be decoded.
//
//nolint:gochecknoglobals
var ErrMalformedBody = domain.NewValidationError("Malformed request body.")
