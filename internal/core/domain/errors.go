package domain

import "errors"

// Common errors for the domain layer
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidFilter = errors.New("invalid filter")
	ErrStorage       = errors.New("storage fault")
	ErrUnavailable   = errors.New("service unavailable")
)
