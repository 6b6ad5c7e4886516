package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/elephant-oracle/tracker-go/application"
	domaincache "github.com/elephant-oracle/tracker-go/domain/cache"
	domainconfig "github.com/elephant-oracle/tracker-go/domain/config"
	"github.com/elephant-oracle/tracker-go/infrastructure/config"
	"github.com/elephant-oracle/tracker-go/infrastructure/logging"
	"github.com/elephant-oracle/tracker-go/infrastructure/observability"
	"github.com/elephant-oracle/tracker-go/infrastructure/report"
	"github.com/elephant-oracle/tracker-go/infrastructure/storage/dynamodb"
	"github.com/elephant-oracle/tracker-go/infrastructure/storage/memory"
	"github.com/elephant-oracle/tracker-go/infrastructure/storage/redis"
)

// runtime holds the wired components behind a command invocation.
type runtime struct {
	config   *domainconfig.Config
	client   *dynamodb.Client
	services *application.Services
	provider *observability.Provider
	cache    domaincache.Cache
}

// buildRuntime resolves configuration and wires storage, cache,
// telemetry, and the application services for one command run.
func buildRuntime(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := config.Resolve(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	result, err := config.NewBuilder(cfg).Build()
	if err != nil {
		return nil, fmt.Errorf("building configuration: %w", err)
	}

	logging.Init(result.Logging)

	provider, err := newProvider(result.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	client, err := newStorageClient(ctx, cfg, result)
	if err != nil {
		shutdownProvider(provider)
		return nil, fmt.Errorf("connecting to storage: %w", err)
	}

	queryCache, err := newQueryCache(ctx, result.Cache)
	if err != nil {
		shutdownProvider(provider)
		return nil, fmt.Errorf("connecting to cache: %w", err)
	}

	sink, err := report.NewSink(ctx, cfg.Jobs.ReportURI)
	if err != nil {
		shutdownProvider(provider)
		return nil, fmt.Errorf("opening report sink: %w", err)
	}

	services, err := application.NewServices(application.ServicesConfig{
		Failures:      dynamodb.NewFailureStore(client),
		States:        dynamodb.NewStateStore(client),
		Cache:         queryCache,
		CacheTTL:      result.Cache.TTL,
		Sink:          sink,
		JobResilience: result.JobResilience,
		Tracer:        provider.Tracer(),
		Meter:         provider.Meter(),
	})
	if err != nil {
		shutdownProvider(provider)
		return nil, fmt.Errorf("wiring services: %w", err)
	}

	return &runtime{
		config:   cfg,
		client:   client,
		services: services,
		provider: provider,
		cache:    queryCache,
	}, nil
}

// shutdown flushes telemetry and releases cache connections.
func (r *runtime) shutdown() {
	if closer, ok := r.cache.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	shutdownProvider(r.provider)
}

func newProvider(spec config.TelemetrySpec) (*observability.Provider, error) {
	if !spec.Enabled {
		return observability.NewNoopProvider(), nil
	}

	opts := []observability.Option{
		observability.WithServiceName(spec.ServiceName),
		observability.WithServiceVersion(Version),
	}
	if spec.Endpoint == "" {
		opts = append(opts, observability.WithStdoutTracing(), observability.WithStdoutMetrics())
	} else {
		opts = append(opts, observability.WithOTLP(spec.Endpoint))
		if spec.Insecure {
			opts = append(opts, observability.WithTracingInsecure(), observability.WithMetricsInsecure())
		}
	}
	return observability.New(opts...)
}

func shutdownProvider(provider *observability.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = provider.Shutdown(ctx)
}

func newStorageClient(ctx context.Context, cfg *domainconfig.Config, result *config.BuildResult) (*dynamodb.Client, error) {
	opts := []dynamodb.ConfigOption{
		dynamodb.WithRegion(cfg.Storage.Region),
		dynamodb.WithErrorsTableName(cfg.Storage.ErrorsTable),
		dynamodb.WithExecutionsTableName(cfg.Storage.ExecutionsTable),
		dynamodb.WithQueryTimeout(cfg.Storage.QueryTimeout.Duration()),
		dynamodb.WithShardCount(cfg.Storage.ShardCount),
		dynamodb.WithTransactLimit(cfg.Ingest.TransactLimit),
		dynamodb.WithBatchSize(cfg.Ingest.BatchSize),
		dynamodb.WithMarkerTTL(cfg.Ingest.MarkerTTL.Duration()),
		dynamodb.WithRetryPolicy(
			result.WriteResilience.RetryMaxAttempts,
			result.WriteResilience.RetryInitialDelay,
			result.WriteResilience.RetryBackoffMultiplier,
		),
	}
	if cfg.Storage.Endpoint != "" {
		opts = append(opts, dynamodb.WithEndpoint(cfg.Storage.Endpoint))
	}
	if cfg.Storage.AccessKeyID != "" {
		opts = append(opts, dynamodb.WithStaticCredentials(cfg.Storage.AccessKeyID, cfg.Storage.SecretAccessKey))
	}
	return dynamodb.NewClient(ctx, opts...)
}

func newQueryCache(ctx context.Context, spec config.CacheSpec) (domaincache.Cache, error) {
	switch spec.Backend {
	case "redis":
		cc, err := redis.NewCache(ctx,
			redis.WithAddress(spec.Addr),
			redis.WithPassword(spec.Password),
			redis.WithDB(spec.DB),
		)
		if err != nil {
			return nil, err
		}
		return cc, nil
	case "memory":
		return memory.NewCache(), nil
	default:
		return nil, nil
	}
}
