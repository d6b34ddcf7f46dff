package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when an article is not found.
	ErrNotFound = errors.New("article not found")
)
