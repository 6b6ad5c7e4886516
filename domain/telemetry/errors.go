package telemetry

import "errors"

// ErrShutdownFailed is returned when one or more telemetry pipelines
// fail to flush on shutdown.
var ErrShutdownFailed = errors.New("shutdown failed")
