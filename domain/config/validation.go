package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the JSON path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates tracker configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *Config) ValidationErrors {
	v.errors = nil

	v.validateRequired(config)
	v.validateStorage(config)
	v.validateIngest(config)
	v.validateJobs(config)
	v.validateCache(config)
	v.validateLogging(config)
	v.validateTelemetry(config)

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateRequired(config *Config) {
	if config.Name == "" {
		v.addError("name", "name is required")
	}
	if config.Version == "" {
		v.addError("version", "version is required")
	}
}

func (v *Validator) validateStorage(config *Config) {
	if config.Storage.ErrorsTable == "" {
		v.addError("storage.errors_table", "errors_table is required")
	}
	if config.Storage.ExecutionsTable == "" {
		v.addError("storage.executions_table", "executions_table is required")
	}
	if config.Storage.ErrorsTable != "" && config.Storage.ErrorsTable == config.Storage.ExecutionsTable {
		v.addError("storage.executions_table", "must differ from errors_table")
	}
	if config.Storage.QueryTimeout < 0 {
		v.addError("storage.query_timeout", "query_timeout must be non-negative")
	}
	if config.Storage.ShardCount <= 0 {
		v.addError("storage.shard_count", "shard_count must be positive")
	}
}

func (v *Validator) validateIngest(config *Config) {
	// A transaction needs room for a marker plus one aggregate/link pair.
	if config.Ingest.TransactLimit < 3 || config.Ingest.TransactLimit > 100 {
		v.addError("ingest.transact_limit", "transact_limit must be between 3 and 100")
	}
	if config.Ingest.BatchSize <= 0 || config.Ingest.BatchSize > 25 {
		v.addError("ingest.batch_size", "batch_size must be between 1 and 25")
	}
	if config.Ingest.MarkerTTL < 0 {
		v.addError("ingest.marker_ttl", "marker_ttl must be non-negative")
	}

	if config.Ingest.Retry.MaxAttempts <= 0 {
		v.addError("ingest.retry.max_attempts", "max_attempts must be positive")
	}
	if config.Ingest.Retry.InitialDelay < 0 {
		v.addError("ingest.retry.initial_delay", "initial_delay must be non-negative")
	}
	if config.Ingest.Retry.Multiplier < 1 {
		v.addError("ingest.retry.multiplier", "multiplier must be >= 1")
	}
}

func (v *Validator) validateJobs(config *Config) {
	if config.Jobs.Concurrency <= 0 {
		v.addError("jobs.concurrency", "concurrency must be positive")
	}
	if config.Jobs.PageSize <= 0 {
		v.addError("jobs.page_size", "page_size must be positive")
	}
}

func (v *Validator) validateCache(config *Config) {
	validBackends := map[string]bool{
		"memory": true, "redis": true, "none": true,
	}
	if !validBackends[config.Cache.Backend] {
		v.addError("cache.backend", fmt.Sprintf("invalid backend: %s", config.Cache.Backend))
	}
	if config.Cache.TTL < 0 {
		v.addError("cache.ttl", "ttl must be non-negative")
	}
	if config.Cache.Backend == "redis" {
		if config.Cache.Redis.Addr == "" {
			v.addError("cache.redis.addr", "addr is required for redis backend")
		}
		if config.Cache.Redis.DB < 0 {
			v.addError("cache.redis.db", "db must be non-negative")
		}
	}
}

func (v *Validator) validateLogging(config *Config) {
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(config.Logging.Level)] {
		v.addError("logging.level", fmt.Sprintf("invalid level: %s", config.Logging.Level))
	}
	validFormats := map[string]bool{
		"json": true, "console": true,
	}
	if !validFormats[strings.ToLower(config.Logging.Format)] {
		v.addError("logging.format", fmt.Sprintf("invalid format: %s", config.Logging.Format))
	}
}

func (v *Validator) validateTelemetry(config *Config) {
	if config.Telemetry.Enabled && config.Telemetry.ServiceName == "" {
		v.addError("telemetry.service_name", "service_name is required when enabled")
	}
}
