package ident

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/mkrupp/feed/internal/util/encoding"
)

// New returns a time-ordered UUIDv7 in its canonical textual form.
func New() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("new uuid: %w", err)
	}

	return id.String(), nil
}

// NewCompact returns a time-ordered UUIDv7 encoded as lowercase Crockford Base32.
func NewCompact() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("new uuid: %w", err)
	}

	return encoding.EncodeCrockfordB32LC(id[:]), nil
}
