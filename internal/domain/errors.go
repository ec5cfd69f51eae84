package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation failed")
	ErrInvalidState = errors.New("invalid state")
	ErrProvider     = errors.New("provider failure")
	ErrTimeout      = errors.New("timeout")
	ErrStore        = errors.New("store failure")
)

// ValidationError builds a request-rejection error that callers can match
// with errors.Is(err, ErrValidation).
func ValidationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
