package config

import "errors"

// Domain errors for configuration loading and validation.
var (
	// ErrConfigNotFound is returned when the named configuration file
	// does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidFormat is returned when a configuration file fails to
	// parse.
	ErrInvalidFormat = errors.New("invalid configuration format")

	// ErrUnsupportedFormat is returned for file extensions the loader
	// does not handle.
	ErrUnsupportedFormat = errors.New("unsupported configuration format")

	// ErrValidationFailed is returned when a loaded configuration
	// violates a constraint.
	ErrValidationFailed = errors.New("configuration validation failed")

	// ErrMissingEnvVar is returned when a ${VAR} reference names an
	// unset variable.
	ErrMissingEnvVar = errors.New("required environment variable not set")
)
