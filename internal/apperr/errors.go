// Package apperr holds the error taxonomy shared by the store, the session
// coordinator and the API layer.
package apperr

import "errors"

var (
	// ErrNotFound means a load or export target no longer exists.
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable wraps any durable store failure other than a missing key.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrValidationSkip rejects an operation before any store call is made.
	ErrValidationSkip = errors.New("validation skip")
	// ErrInvalidInput marks malformed caller input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")
)
