package apperrors

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrValidation  = errors.New("validation failed")
	ErrIntegrity   = errors.New("integrity violation")
	ErrUnavailable = errors.New("dependency unavailable")
)
