package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/elephant-oracle/tracker-go/domain/config"
)

// Environment variables recognized by ApplyEnv. Lambda-style
// deployments configure the tracker entirely through these.
const (
	EnvRegion           = "TRACKER_AWS_REGION"
	EnvEndpoint         = "TRACKER_DYNAMODB_ENDPOINT"
	EnvAccessKeyID      = "TRACKER_AWS_ACCESS_KEY_ID"
	EnvSecretAccessKey  = "TRACKER_AWS_SECRET_ACCESS_KEY"
	EnvErrorsTable      = "TRACKER_ERRORS_TABLE"
	EnvExecutionsTable  = "TRACKER_EXECUTIONS_TABLE"
	EnvQueryTimeout     = "TRACKER_QUERY_TIMEOUT"
	EnvShardCount       = "TRACKER_SHARD_COUNT"
	EnvTransactLimit    = "TRACKER_TRANSACT_LIMIT"
	EnvBatchSize        = "TRACKER_BATCH_SIZE"
	EnvMarkerTTL        = "TRACKER_MARKER_TTL"
	EnvRetryMaxAttempts = "TRACKER_RETRY_MAX_ATTEMPTS"
	EnvJobConcurrency   = "TRACKER_JOB_CONCURRENCY"
	EnvJobPageSize      = "TRACKER_JOB_PAGE_SIZE"
	EnvReportURI        = "TRACKER_REPORT_URI"
	EnvCacheBackend     = "TRACKER_CACHE_BACKEND"
	EnvCacheTTL         = "TRACKER_CACHE_TTL"
	EnvRedisAddr        = "TRACKER_REDIS_ADDR"
	EnvRedisPassword    = "TRACKER_REDIS_PASSWORD"
	EnvRedisDB          = "TRACKER_REDIS_DB"
	EnvLogLevel         = "TRACKER_LOG_LEVEL"
	EnvLogFormat        = "TRACKER_LOG_FORMAT"
	EnvTelemetryEnabled = "TRACKER_TELEMETRY_ENABLED"
	EnvOTLPEndpoint     = "TRACKER_OTLP_ENDPOINT"
)

// ApplyEnv overlays TRACKER_* environment variables onto cfg. Unset
// variables leave the corresponding field untouched; malformed values
// are reported rather than silently ignored.
func ApplyEnv(cfg *config.Config) error {
	setString(EnvRegion, &cfg.Storage.Region)
	setString(EnvEndpoint, &cfg.Storage.Endpoint)
	setString(EnvAccessKeyID, &cfg.Storage.AccessKeyID)
	setString(EnvSecretAccessKey, &cfg.Storage.SecretAccessKey)
	setString(EnvErrorsTable, &cfg.Storage.ErrorsTable)
	setString(EnvExecutionsTable, &cfg.Storage.ExecutionsTable)
	setString(EnvReportURI, &cfg.Jobs.ReportURI)
	setString(EnvCacheBackend, &cfg.Cache.Backend)
	setString(EnvRedisAddr, &cfg.Cache.Redis.Addr)
	setString(EnvRedisPassword, &cfg.Cache.Redis.Password)
	setString(EnvLogLevel, &cfg.Logging.Level)
	setString(EnvLogFormat, &cfg.Logging.Format)
	setString(EnvOTLPEndpoint, &cfg.Telemetry.Endpoint)

	if err := setInt(EnvShardCount, &cfg.Storage.ShardCount); err != nil {
		return err
	}
	if err := setInt(EnvTransactLimit, &cfg.Ingest.TransactLimit); err != nil {
		return err
	}
	if err := setInt(EnvBatchSize, &cfg.Ingest.BatchSize); err != nil {
		return err
	}
	if err := setInt(EnvRetryMaxAttempts, &cfg.Ingest.Retry.MaxAttempts); err != nil {
		return err
	}
	if err := setInt(EnvJobConcurrency, &cfg.Jobs.Concurrency); err != nil {
		return err
	}
	if err := setInt(EnvJobPageSize, &cfg.Jobs.PageSize); err != nil {
		return err
	}
	if err := setInt(EnvRedisDB, &cfg.Cache.Redis.DB); err != nil {
		return err
	}

	if err := setDuration(EnvQueryTimeout, &cfg.Storage.QueryTimeout); err != nil {
		return err
	}
	if err := setDuration(EnvMarkerTTL, &cfg.Ingest.MarkerTTL); err != nil {
		return err
	}
	if err := setDuration(EnvCacheTTL, &cfg.Cache.TTL); err != nil {
		return err
	}

	if err := setBool(EnvTelemetryEnabled, &cfg.Telemetry.Enabled); err != nil {
		return err
	}

	return nil
}

func setString(key string, dst *string) {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		*dst = value
	}
}

func setInt(key string, dst *int) error {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not an integer", config.ErrInvalidFormat, key, value)
	}
	*dst = n
	return nil
}

func setDuration(key string, dst *config.Duration) error {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not a duration", config.ErrInvalidFormat, key, value)
	}
	*dst = config.Duration(d)
	return nil
}

func setBool(key string, dst *bool) error {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not a boolean", config.ErrInvalidFormat, key, value)
	}
	*dst = b
	return nil
}
