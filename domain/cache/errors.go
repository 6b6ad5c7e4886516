package cache

import "errors"

// Domain errors for query cache operations.
var (
	// ErrInvalidKey is returned when a view key is empty.
	ErrInvalidKey = errors.New("invalid cache key")

	// ErrConnectionFailed is returned when the shared cache backend
	// cannot be reached at startup.
	ErrConnectionFailed = errors.New("cache connection failed")

	// ErrOperationTimeout is returned when the backend misses an
	// operation deadline.
	ErrOperationTimeout = errors.New("cache operation timeout")
)
