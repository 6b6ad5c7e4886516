package application

import (
	"errors"
	"time"

	"github.com/elephant-oracle/tracker-go/domain/cache"
	"github.com/elephant-oracle/tracker-go/domain/execution"
	"github.com/elephant-oracle/tracker-go/domain/failure"
	"github.com/elephant-oracle/tracker-go/domain/report"
	"github.com/elephant-oracle/tracker-go/domain/telemetry"
	"github.com/elephant-oracle/tracker-go/infrastructure/observability"
	"github.com/elephant-oracle/tracker-go/infrastructure/resilience"
)

// Services bundles the tracker's application services wired over one
// shared set of stores and instruments.
type Services struct {
	Ingest     *IngestService
	State      *StateService
	Resolution *ResolutionService
	Query      *QueryService

	// Repair and Migration are nil when no maintenance surface is
	// available.
	Repair    *RepairService
	Migration *MigrationService
}

// ServicesConfig contains the shared dependencies for the service
// bundle.
type ServicesConfig struct {
	// Failures is the error-side store.
	Failures failure.Store

	// States is the state-side store.
	States execution.Store

	// Maintenance is the offline repair and migration surface. When
	// nil, Failures is probed for it.
	Maintenance failure.Maintenance

	// Cache backs the polled queries. Optional.
	Cache cache.Cache

	// CacheTTL overrides the query cache lifetime.
	CacheTTL time.Duration

	// Sink receives job run summaries. Optional.
	Sink report.Sink

	// JobResilience configures the repair and migration executors. The
	// zero value selects the defaults.
	JobResilience resilience.Config

	Tracer telemetry.Tracer
	Meter  telemetry.Meter

	// Clock overrides the ingest time source.
	Clock func() time.Time
}

// Option configures the service bundle.
type Option func(*ServicesConfig)

// WithFailureStore sets the error-side store.
func WithFailureStore(s failure.Store) Option {
	return func(c *ServicesConfig) {
		c.Failures = s
	}
}

// WithStateStore sets the state-side store.
func WithStateStore(s execution.Store) Option {
	return func(c *ServicesConfig) {
		c.States = s
	}
}

// WithMaintenance sets the repair and migration surface.
func WithMaintenance(m failure.Maintenance) Option {
	return func(c *ServicesConfig) {
		c.Maintenance = m
	}
}

// WithCache sets the query cache.
func WithCache(cc cache.Cache, ttl time.Duration) Option {
	return func(c *ServicesConfig) {
		c.Cache = cc
		c.CacheTTL = ttl
	}
}

// WithReportSink sets the job summary sink.
func WithReportSink(s report.Sink) Option {
	return func(c *ServicesConfig) {
		c.Sink = s
	}
}

// WithJobResilience sets the job executor configuration.
func WithJobResilience(cfg resilience.Config) Option {
	return func(c *ServicesConfig) {
		c.JobResilience = cfg
	}
}

// WithTracer sets the tracer.
func WithTracer(t telemetry.Tracer) Option {
	return func(c *ServicesConfig) {
		c.Tracer = t
	}
}

// WithMeter sets the meter backing the tracker instruments.
func WithMeter(m telemetry.Meter) Option {
	return func(c *ServicesConfig) {
		c.Meter = m
	}
}

// WithClock sets the ingest time source.
func WithClock(fn func() time.Time) Option {
	return func(c *ServicesConfig) {
		c.Clock = fn
	}
}

// NewServices wires the service bundle from shared dependencies.
func NewServices(config ServicesConfig) (*Services, error) {
	if config.Failures == nil {
		return nil, errors.New("failure store is required")
	}
	if config.States == nil {
		return nil, errors.New("execution store is required")
	}

	tracer := config.Tracer
	if tracer == nil {
		tracer = observability.NewNoopTracer()
	}
	meter := config.Meter
	if meter == nil {
		meter = observability.NewNoopMeter()
	}
	metrics := observability.NewTrackerMetrics(meter)

	state, err := NewStateService(StateConfig{
		States:  config.States,
		Tracer:  tracer,
		Metrics: metrics,
	})
	if err != nil {
		return nil, err
	}

	ingest, err := NewIngestService(IngestConfig{
		Failures: config.Failures,
		States:   state,
		Tracer:   tracer,
		Metrics:  metrics,
		Clock:    config.Clock,
	})
	if err != nil {
		return nil, err
	}

	resolution, err := NewResolutionService(ResolutionConfig{
		Failures: config.Failures,
		Tracer:   tracer,
		Metrics:  metrics,
	})
	if err != nil {
		return nil, err
	}

	query, err := NewQueryService(QueryConfig{
		Failures: config.Failures,
		States:   config.States,
		Cache:    config.Cache,
		TTL:      config.CacheTTL,
		Tracer:   tracer,
	})
	if err != nil {
		return nil, err
	}

	services := &Services{
		Ingest:     ingest,
		State:      state,
		Resolution: resolution,
		Query:      query,
	}

	maintenance := config.Maintenance
	if maintenance == nil {
		// Stores commonly serve both surfaces from one value.
		maintenance, _ = config.Failures.(failure.Maintenance)
	}
	if maintenance == nil {
		return services, nil
	}

	jobConfig := config.JobResilience
	if jobConfig.RetryMaxAttempts <= 0 {
		jobConfig = resilience.DefaultConfig()
	}

	repair, err := NewRepairService(RepairConfig{
		Maintenance: maintenance,
		Executor:    resilience.New[int](jobConfig),
		Sink:        config.Sink,
		Tracer:      tracer,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, err
	}

	migration, err := NewMigrationService(MigrationConfig{
		Maintenance: maintenance,
		Executor:    resilience.New[failure.MigrationOutcome](jobConfig),
		Sink:        config.Sink,
		Tracer:      tracer,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, err
	}

	services.Repair = repair
	services.Migration = migration
	return services, nil
}

// NewServicesWithOptions wires the service bundle with functional
// options.
func NewServicesWithOptions(opts ...Option) (*Services, error) {
	config := ServicesConfig{}
	for _, opt := range opts {
		opt(&config)
	}
	return NewServices(config)
}
