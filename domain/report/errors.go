package report

import "errors"

// Domain errors for report publishing.
var (
	// ErrInvalidDestination indicates the report destination cannot be
	// parsed into a known sink.
	ErrInvalidDestination = errors.New("invalid report destination")

	// ErrWriteFailed indicates the sink could not persist the summary.
	ErrWriteFailed = errors.New("report write failed")
)
