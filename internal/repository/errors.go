package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrUnavailable signals the backing store is unreachable or its breaker is open.
	ErrUnavailable = errors.New("repository: backend unavailable")
)
