package models

import "errors"

// Error kinds. Package-level errors wrap one of these so callers can decide
// how to surface a failure without knowing every specific error.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)
