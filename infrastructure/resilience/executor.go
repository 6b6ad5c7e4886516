// Package resilience provides retry and concurrency-limiting patterns
// using fortify.
package resilience

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/retry"
)

// Executor applies bounded concurrency and bounded exponential-backoff
// retry to store operations: unprocessed batch items, contended
// conditional writes, and the repair jobs' per-item fixes.
type Executor[T any] struct {
	bulkhead bulkhead.Bulkhead[T]
	retry    retry.Retry[T]
	timeout  time.Duration
	limit    int
}

// Config configures the executor.
type Config struct {
	// MaxConcurrent limits concurrent operations.
	MaxConcurrent int

	// RetryMaxAttempts is the maximum number of attempts per operation.
	RetryMaxAttempts int

	// RetryInitialDelay is the delay before the first retry.
	RetryInitialDelay time.Duration

	// RetryBackoffMultiplier is the exponential backoff multiplier.
	RetryBackoffMultiplier float64

	// NonRetryable lists errors that are never retried (matched with
	// errors.Is); conditional-check failures are semantic outcomes, not
	// transient faults.
	NonRetryable []error

	// DefaultTimeout bounds one operation including its retries.
	DefaultTimeout time.Duration
}

// DefaultConfig returns a configuration with sensible defaults: six
// attempts starting at 50ms and doubling, which keeps every delay
// under a second.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:          8,
		RetryMaxAttempts:       6,
		RetryInitialDelay:      50 * time.Millisecond,
		RetryBackoffMultiplier: 2.0,
		DefaultTimeout:         30 * time.Second,
	}
}

// New creates a new executor.
func New[T any](config Config) *Executor[T] {
	maxConcurrent := config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultConfig().MaxConcurrent
	}

	return &Executor[T]{
		bulkhead: bulkhead.New[T](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
		}),
		retry: retry.New[T](retry.Config{
			MaxAttempts:        config.RetryMaxAttempts,
			InitialDelay:       config.RetryInitialDelay,
			BackoffPolicy:      retry.BackoffExponential,
			Multiplier:         config.RetryBackoffMultiplier,
			NonRetryableErrors: config.NonRetryable,
		}),
		timeout: config.DefaultTimeout,
		limit:   maxConcurrent,
	}
}

// NewDefault creates an executor with default configuration.
func NewDefault[T any]() *Executor[T] {
	return New[T](DefaultConfig())
}

// Concurrency returns the executor's concurrent-operation limit.
// Callers fanning work out ahead of Execute size their worker pools
// from it so submissions never outnumber the slots.
func (e *Executor[T]) Concurrency() int {
	return e.limit
}

// Execute runs op under the bulkhead and timeout, retrying retryable
// failures with exponential backoff.
func (e *Executor[T]) Execute(ctx context.Context, op func(context.Context) (T, error)) (T, error) {
	return e.bulkhead.Execute(ctx, func(ctx context.Context) (T, error) {
		ctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		return e.retry.Do(ctx, op)
	})
}

// ExecuteOnce runs op under the bulkhead and timeout without retry.
// Use it for operations whose failure the caller interprets itself.
func (e *Executor[T]) ExecuteOnce(ctx context.Context, op func(context.Context) (T, error)) (T, error) {
	return e.bulkhead.Execute(ctx, func(ctx context.Context) (T, error) {
		ctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		return op(ctx)
	})
}

// Retry runs op with backoff but without the bulkhead or timeout,
// inheriting whatever deadline ctx carries. Used inside store calls
// that already hold a slot.
func (e *Executor[T]) Retry(ctx context.Context, op func(context.Context) (T, error)) (T, error) {
	return e.retry.Do(ctx, op)
}
