package event

import "errors"

// Validation errors for inbound events.
var (
	// ErrMissingEventID is returned when an envelope has no event id.
	ErrMissingEventID = errors.New("event id is required")

	// ErrMissingEventTime is returned when an envelope has no event time.
	ErrMissingEventTime = errors.New("event time is required")

	// ErrMissingExecutionID is returned when a detail names no execution.
	ErrMissingExecutionID = errors.New("execution id is required")

	// ErrUnknownStatus is returned for a status outside the workflow set.
	ErrUnknownStatus = errors.New("unknown workflow status")

	// ErrEmptyErrorCode is returned when an error entry has no code.
	ErrEmptyErrorCode = errors.New("error entry has empty code")

	// ErrEmptySelector is returned when a resolution detail names neither
	// an execution nor an error code.
	ErrEmptySelector = errors.New("resolution needs an execution id or error code")
)
