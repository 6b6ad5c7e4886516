package execution

import "errors"

// Domain errors for execution-state store operations.
var (
	// ErrStateNotFound is returned when an execution has no stored state.
	ErrStateNotFound = errors.New("execution state not found")

	// ErrStateExists is returned when creating a state that already exists.
	ErrStateExists = errors.New("execution state already exists")

	// ErrStaleEvent is returned when an event is older than the stored
	// state and is discarded.
	ErrStaleEvent = errors.New("event older than stored state")

	// ErrVersionConflict is returned when an optimistic update loses to
	// a concurrent writer.
	ErrVersionConflict = errors.New("version conflict")

	// ErrThrottled is returned when the store throttles a request.
	ErrThrottled = errors.New("store throttled request")

	// ErrStoreInternal is returned for unexpected store failures.
	ErrStoreInternal = errors.New("internal store error")
)
