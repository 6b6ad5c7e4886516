package resilience

import "time"

// Option configures the executor.
type Option func(*Config)

// WithMaxConcurrent sets the maximum concurrent operations.
func WithMaxConcurrent(n int) Option {
	return func(c *Config) {
		c.MaxConcurrent = n
	}
}

// WithRetryAttempts sets the maximum attempts per operation.
func WithRetryAttempts(n int) Option {
	return func(c *Config) {
		c.RetryMaxAttempts = n
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Config) {
		c.RetryInitialDelay = d
	}
}

// WithBackoffMultiplier sets the exponential backoff multiplier.
func WithBackoffMultiplier(m float64) Option {
	return func(c *Config) {
		c.RetryBackoffMultiplier = m
	}
}

// WithNonRetryable marks errors that must never be retried.
func WithNonRetryable(errs ...error) Option {
	return func(c *Config) {
		c.NonRetryable = append(c.NonRetryable, errs...)
	}
}

// WithTimeout sets the per-operation timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.DefaultTimeout = d
	}
}

// NewWithOptions creates an executor with the given options applied to
// the default configuration.
func NewWithOptions[T any](opts ...Option) *Executor[T] {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return New[T](config)
}
