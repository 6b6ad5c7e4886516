package config

import (
	"fmt"
	"time"

	domainconfig "github.com/elephant-oracle/tracker-go/domain/config"
	"github.com/elephant-oracle/tracker-go/infrastructure/logging"
	"github.com/elephant-oracle/tracker-go/infrastructure/resilience"
)

// Builder builds component settings from configuration.
type Builder struct {
	config *domainconfig.Config
}

// NewBuilder creates a new configuration builder.
func NewBuilder(config *domainconfig.Config) *Builder {
	return &Builder{config: config}
}

// BuildResult contains the built components from configuration.
type BuildResult struct {
	// Logging is the logger configuration.
	Logging logging.Config
	// WriteResilience governs ingest and resolution writes.
	WriteResilience resilience.Config
	// JobResilience governs repair and migration jobs.
	JobResilience resilience.Config
	// Cache selects and configures the query cache.
	Cache CacheSpec
	// Telemetry configures the trace/metric provider.
	Telemetry TelemetrySpec
}

// CacheSpec describes the query cache to construct.
type CacheSpec struct {
	Backend  string
	TTL      time.Duration
	Addr     string
	Password string
	DB       int
}

// TelemetrySpec describes the telemetry provider to construct.
type TelemetrySpec struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	Insecure    bool
}

// Build builds the component settings from configuration.
func (b *Builder) Build() (*BuildResult, error) {
	result := &BuildResult{}

	b.buildLogging(result)
	b.buildResilience(result)

	if err := b.buildCache(result); err != nil {
		return nil, fmt.Errorf("building cache: %w", err)
	}

	b.buildTelemetry(result)

	return result, nil
}

func (b *Builder) buildLogging(result *BuildResult) {
	result.Logging = logging.Config{
		Level:  b.config.Logging.Level,
		Format: b.config.Logging.Format,
	}
}

func (b *Builder) buildResilience(result *BuildResult) {
	retry := b.config.Ingest.Retry

	// Writes retry aggressively; a throttled transaction is transient.
	result.WriteResilience = resilience.Config{
		MaxConcurrent:          b.config.Jobs.Concurrency,
		RetryMaxAttempts:       retry.MaxAttempts,
		RetryInitialDelay:      retry.InitialDelay.Duration(),
		RetryBackoffMultiplier: retry.Multiplier,
		DefaultTimeout:         b.config.Storage.QueryTimeout.Duration(),
	}

	// Jobs run page by page; fewer attempts, same pacing.
	jobAttempts := retry.MaxAttempts / 2
	if jobAttempts < 1 {
		jobAttempts = 1
	}
	result.JobResilience = resilience.Config{
		MaxConcurrent:          b.config.Jobs.Concurrency,
		RetryMaxAttempts:       jobAttempts,
		RetryInitialDelay:      retry.InitialDelay.Duration(),
		RetryBackoffMultiplier: retry.Multiplier,
		DefaultTimeout:         b.config.Storage.QueryTimeout.Duration(),
	}
}

func (b *Builder) buildCache(result *BuildResult) error {
	cache := b.config.Cache

	switch cache.Backend {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("unknown cache backend: %s", cache.Backend)
	}

	result.Cache = CacheSpec{
		Backend:  cache.Backend,
		TTL:      cache.TTL.Duration(),
		Addr:     cache.Redis.Addr,
		Password: cache.Redis.Password,
		DB:       cache.Redis.DB,
	}
	return nil
}

func (b *Builder) buildTelemetry(result *BuildResult) {
	result.Telemetry = TelemetrySpec{
		Enabled:     b.config.Telemetry.Enabled,
		Endpoint:    b.config.Telemetry.Endpoint,
		ServiceName: b.config.Telemetry.ServiceName,
		Insecure:    b.config.Telemetry.Insecure,
	}
}
