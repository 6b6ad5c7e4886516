// Package config provides domain models for tracker configuration.
package config

import "time"

// Config represents the complete tracker configuration.
type Config struct {
	// Name is a human-readable name for this deployment.
	Name string `json:"name" yaml:"name"`
	// Version is the configuration schema version.
	Version string `json:"version" yaml:"version"`

	// Storage contains table and client settings.
	Storage StorageConfig `json:"storage" yaml:"storage"`
	// Ingest contains event-ingestion settings.
	Ingest IngestConfig `json:"ingest,omitempty" yaml:"ingest,omitempty"`
	// Jobs contains repair and migration job settings.
	Jobs JobsConfig `json:"jobs,omitempty" yaml:"jobs,omitempty"`
	// Cache contains query-cache settings.
	Cache CacheConfig `json:"cache,omitempty" yaml:"cache,omitempty"`
	// Logging contains logging settings.
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
	// Telemetry contains tracing and metrics settings.
	Telemetry TelemetryConfig `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
}

// StorageConfig contains table and client settings.
type StorageConfig struct {
	// Region is the AWS region (empty uses the SDK default chain).
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	// Endpoint overrides the DynamoDB endpoint (local development).
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	// AccessKeyID with SecretAccessKey selects static credentials
	// instead of the SDK default chain (local endpoints).
	AccessKeyID string `json:"access_key_id,omitempty" yaml:"access_key_id,omitempty"`
	// SecretAccessKey is the static secret key.
	SecretAccessKey string `json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty"`
	// ErrorsTable is the failure-tracking table name. Required.
	ErrorsTable string `json:"errors_table" yaml:"errors_table"`
	// ExecutionsTable is the execution-state table name. Required.
	ExecutionsTable string `json:"executions_table" yaml:"executions_table"`
	// QueryTimeout bounds one store round trip.
	QueryTimeout Duration `json:"query_timeout,omitempty" yaml:"query_timeout,omitempty"`
	// ShardCount is the number of partitions in the global listing
	// index.
	ShardCount int `json:"shard_count,omitempty" yaml:"shard_count,omitempty"`
}

// IngestConfig contains event-ingestion settings.
type IngestConfig struct {
	// TransactLimit caps items per store transaction.
	TransactLimit int `json:"transact_limit,omitempty" yaml:"transact_limit,omitempty"`
	// BatchSize caps items per batched delete request.
	BatchSize int `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	// MarkerTTL is how long applied-event markers are retained. It must
	// outlive the delivery layer's redelivery horizon.
	MarkerTTL Duration `json:"marker_ttl,omitempty" yaml:"marker_ttl,omitempty"`
	// Retry configures write retry behavior.
	Retry RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum attempts per operation.
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	// InitialDelay is the first retry delay.
	InitialDelay Duration `json:"initial_delay,omitempty" yaml:"initial_delay,omitempty"`
	// Multiplier is the backoff multiplier.
	Multiplier float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
}

// JobsConfig contains repair and migration job settings.
type JobsConfig struct {
	// Concurrency is the number of items fixed in parallel.
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	// PageSize is the scan page size.
	PageSize int `json:"page_size,omitempty" yaml:"page_size,omitempty"`
	// ReportURI is where job summaries are written: an s3://bucket/key
	// prefix, a file path, or empty for log-only.
	ReportURI string `json:"report_uri,omitempty" yaml:"report_uri,omitempty"`
}

// CacheConfig contains query-cache settings.
type CacheConfig struct {
	// Backend selects the cache implementation (memory, redis, none).
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	// TTL is how long query results are served from cache.
	TTL Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	// Redis configures the redis backend.
	Redis RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// RedisConfig configures the redis cache backend.
type RedisConfig struct {
	// Addr is the host:port of the redis server.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
	// Password is the redis password.
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	// DB is the redis database number.
	DB int `json:"db,omitempty" yaml:"db,omitempty"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	// Format is the output format (json or console).
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// TelemetryConfig contains tracing and metrics settings.
type TelemetryConfig struct {
	// Enabled turns telemetry export on.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// Endpoint is the OTLP gRPC endpoint (empty exports to stdout).
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	// ServiceName identifies this service in traces and metrics.
	ServiceName string `json:"service_name,omitempty" yaml:"service_name,omitempty"`
	// Insecure disables TLS for the OTLP connection.
	Insecure bool `json:"insecure,omitempty" yaml:"insecure,omitempty"`
}

// Default returns a configuration with every tunable at its default.
// Table names have no default; they must come from a file or the
// environment.
func Default() *Config {
	return &Config{
		Name:    "tracker",
		Version: "1.0",
		Storage: StorageConfig{
			QueryTimeout: Duration(10 * time.Second),
			ShardCount:   8,
		},
		Ingest: IngestConfig{
			TransactLimit: 100,
			BatchSize:     25,
			MarkerTTL:     Duration(7 * 24 * time.Hour),
			Retry: RetryConfig{
				MaxAttempts:  6,
				InitialDelay: Duration(50 * time.Millisecond),
				Multiplier:   2.0,
			},
		},
		Jobs: JobsConfig{
			Concurrency: 8,
			PageSize:    100,
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     Duration(15 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "tracker",
		},
	}
}

// Duration is a time.Duration that supports JSON/YAML string representation.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	// Handle null
	if string(b) == "null" {
		return nil
	}

	// Remove quotes
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	// Parse duration
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
