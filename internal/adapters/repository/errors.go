package repository

import "errors"

// Sentinel kinds for artifact store errors.
var (
	ErrNotFound    = errors.New("artifact not found")
	ErrTooLarge    = errors.New("artifact too large")
	ErrInvalidName = errors.New("invalid artifact name")
	ErrNotARegular = errors.New("artifact is not a regular file")
)
