package failure

import "errors"

// Domain errors for failure store operations.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateEvent is returned when an event marker already exists
	// for a write that must not repeat.
	ErrDuplicateEvent = errors.New("event already recorded")

	// ErrInvalidEvent is returned when an inbound event fails validation.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrEmptySelector is returned when a selector targets nothing.
	ErrEmptySelector = errors.New("selector targets nothing")

	// ErrBatchUnprocessed is returned when batched writes still have
	// unprocessed items after retries are exhausted.
	ErrBatchUnprocessed = errors.New("unprocessed items after retries")

	// ErrConditionFailed is returned when a conditional write was
	// rejected by the store.
	ErrConditionFailed = errors.New("conditional check failed")

	// ErrThrottled is returned when the store throttles a request.
	ErrThrottled = errors.New("store throttled request")

	// ErrMissingTable is returned when a required table name is not
	// configured.
	ErrMissingTable = errors.New("table name not configured")

	// ErrStoreInternal is returned for unexpected store failures.
	ErrStoreInternal = errors.New("internal store error")
)
