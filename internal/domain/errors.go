package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure that reaches a client wraps exactly one of these.
var (
	ErrValidation           = errors.New("validation failed")
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("not found")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
)

// Error is a failure with a client-facing message.
// Kind is one of the error kinds above and decides the response status.
type Error struct {
	Kind    error
	Message string
	Data    any
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// FieldError describes a single rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"msg"`
}

// NewValidationError creates a validation failure carrying the rejected fields as data.
func NewValidationError(message string, fields ...FieldError) *Error {
	err := &Error{Kind: ErrValidation, Message: message}
	if len(fields) > 0 {
		err.Data = fields
	}

	return err
}

// PublicError extracts the client-facing part of err.
// Returns false if err carries no *Error.
func PublicError(err error) (*Error, bool) {
	var pub *Error
	if !errors.As(err, &pub) {
		return nil, false
	}

	return pub, true
}

func fieldErrorf(field, format string, args ...any) FieldError {
	return FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}
