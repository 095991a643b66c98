// Package apperr defines the error kinds shared across raido. Callers
// classify failures with errors.Is against the sentinels; the HTTP layer
// maps each kind to its status code.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrRateLimited  = errors.New("rate limited")
	ErrInternal     = errors.New("internal error")
)

// Validationf wraps ErrValidation with caller-facing detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// NotFoundf wraps ErrNotFound with the missing resource's name.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// Conflictf wraps ErrConflict with detail safe to show the caller.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConflict}, args...)...)
}

// RateLimitError carries the quota details surfaced in 429 responses.
type RateLimitError struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %d requests per window", e.Limit)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
