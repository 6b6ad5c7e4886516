package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/elephant-oracle/tracker-go/domain/failure"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	if cfg.Region != "us-east-1" {
		t.Errorf("Region = %q, want us-east-1", cfg.Region)
	}
	if cfg.QueryTimeout != 10*time.Second {
		t.Errorf("QueryTimeout = %v, want 10s", cfg.QueryTimeout)
	}
	if cfg.TransactLimit != 100 {
		t.Errorf("TransactLimit = %d, want 100", cfg.TransactLimit)
	}
	if cfg.BatchSize != 25 {
		t.Errorf("BatchSize = %d, want 25", cfg.BatchSize)
	}
	if cfg.MarkerTTL != 7*24*time.Hour {
		t.Errorf("MarkerTTL = %v, want 168h", cfg.MarkerTTL)
	}
	if cfg.ShardCount != 8 {
		t.Errorf("ShardCount = %d, want 8", cfg.ShardCount)
	}
	if cfg.RetryMaxAttempts != 6 {
		t.Errorf("RetryMaxAttempts = %d, want 6", cfg.RetryMaxAttempts)
	}
	if cfg.RetryInitialDelay != 50*time.Millisecond {
		t.Errorf("RetryInitialDelay = %v, want 50ms", cfg.RetryInitialDelay)
	}
	if cfg.RetryBackoffMultiplier != 2.0 {
		t.Errorf("RetryBackoffMultiplier = %v, want 2.0", cfg.RetryBackoffMultiplier)
	}
	if cfg.ErrorsTableName != "" || cfg.ExecutionsTableName != "" {
		t.Error("table names have defaults, want explicit configuration")
	}
}

func TestConfigOptions(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	for _, opt := range []ConfigOption{
		WithRegion("eu-west-1"),
		WithEndpoint("http://localhost:8000"),
		WithQueryTimeout(3 * time.Second),
		WithErrorsTableName("tracker-errors"),
		WithExecutionsTableName("tracker-executions"),
		WithTransactLimit(10),
		WithBatchSize(5),
		WithMarkerTTL(time.Hour),
		WithShardCount(2),
		WithRetryPolicy(3, 10*time.Millisecond, 1.5),
		WithStaticCredentials("local", "local"),
	} {
		opt(&cfg)
	}

	if cfg.Region != "eu-west-1" {
		t.Errorf("Region = %q", cfg.Region)
	}
	if cfg.Endpoint != "http://localhost:8000" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
	if cfg.QueryTimeout != 3*time.Second {
		t.Errorf("QueryTimeout = %v", cfg.QueryTimeout)
	}
	if cfg.ErrorsTableName != "tracker-errors" {
		t.Errorf("ErrorsTableName = %q", cfg.ErrorsTableName)
	}
	if cfg.ExecutionsTableName != "tracker-executions" {
		t.Errorf("ExecutionsTableName = %q", cfg.ExecutionsTableName)
	}
	if cfg.TransactLimit != 10 {
		t.Errorf("TransactLimit = %d", cfg.TransactLimit)
	}
	if cfg.BatchSize != 5 {
		t.Errorf("BatchSize = %d", cfg.BatchSize)
	}
	if cfg.MarkerTTL != time.Hour {
		t.Errorf("MarkerTTL = %v", cfg.MarkerTTL)
	}
	if cfg.ShardCount != 2 {
		t.Errorf("ShardCount = %d", cfg.ShardCount)
	}
	if cfg.RetryMaxAttempts != 3 || cfg.RetryInitialDelay != 10*time.Millisecond || cfg.RetryBackoffMultiplier != 1.5 {
		t.Errorf("retry policy = %d/%v/%v",
			cfg.RetryMaxAttempts, cfg.RetryInitialDelay, cfg.RetryBackoffMultiplier)
	}
	if cfg.AccessKeyID != "local" || cfg.SecretAccessKey != "local" {
		t.Errorf("static credentials = %q/%q", cfg.AccessKeyID, cfg.SecretAccessKey)
	}
}

func TestNewClient_RequiresTableNames(t *testing.T) {
	t.Parallel()

	_, err := NewClient(context.Background(), WithExecutionsTableName("tracker-executions"))
	if !errors.Is(err, failure.ErrMissingTable) {
		t.Errorf("missing errors table: err = %v, want ErrMissingTable", err)
	}

	_, err = NewClient(context.Background(), WithErrorsTableName("tracker-errors"))
	if !errors.Is(err, failure.ErrMissingTable) {
		t.Errorf("missing executions table: err = %v, want ErrMissingTable", err)
	}
}
