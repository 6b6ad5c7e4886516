package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithMaxConcurrent(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	opt := WithMaxConcurrent(20)
	opt(&config)

	if config.MaxConcurrent != 20 {
		t.Errorf("MaxConcurrent = %d, want 20", config.MaxConcurrent)
	}
}

func TestWithRetryAttempts(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	opt := WithRetryAttempts(5)
	opt(&config)

	if config.RetryMaxAttempts != 5 {
		t.Errorf("RetryMaxAttempts = %d, want 5", config.RetryMaxAttempts)
	}
}

func TestWithRetryDelay(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	opt := WithRetryDelay(200 * time.Millisecond)
	opt(&config)

	if config.RetryInitialDelay != 200*time.Millisecond {
		t.Errorf("RetryInitialDelay = %v, want 200ms", config.RetryInitialDelay)
	}
}

func TestWithBackoffMultiplier(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	opt := WithBackoffMultiplier(3.0)
	opt(&config)

	if config.RetryBackoffMultiplier != 3.0 {
		t.Errorf("RetryBackoffMultiplier = %v, want 3.0", config.RetryBackoffMultiplier)
	}
}

func TestWithNonRetryable(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("conditional check failed")

	config := DefaultConfig()
	opt := WithNonRetryable(sentinel)
	opt(&config)

	if len(config.NonRetryable) != 1 || !errors.Is(config.NonRetryable[0], sentinel) {
		t.Errorf("NonRetryable = %v, want [sentinel]", config.NonRetryable)
	}
}

func TestWithTimeout(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	opt := WithTimeout(60 * time.Second)
	opt(&config)

	if config.DefaultTimeout != 60*time.Second {
		t.Errorf("DefaultTimeout = %v, want 60s", config.DefaultTimeout)
	}
}

func TestNewWithOptions(t *testing.T) {
	t.Parallel()

	t.Run("with no options uses defaults", func(t *testing.T) {
		t.Parallel()

		executor := NewWithOptions[int]()

		if executor == nil {
			t.Fatal("NewWithOptions() returned nil")
		}
	})

	t.Run("with multiple options", func(t *testing.T) {
		t.Parallel()

		executor := NewWithOptions[int](
			WithMaxConcurrent(20),
			WithRetryAttempts(2),
			WithRetryDelay(time.Millisecond),
			WithTimeout(time.Second),
		)

		if executor == nil {
			t.Fatal("NewWithOptions() returned nil")
		}

		got, err := executor.Execute(context.Background(), func(ctx context.Context) (int, error) {
			return 7, nil
		})
		if err != nil {
			t.Errorf("Execute() error = %v", err)
		}
		if got != 7 {
			t.Errorf("Execute() = %d, want 7", got)
		}
	})

	t.Run("options are applied in order", func(t *testing.T) {
		t.Parallel()

		config := DefaultConfig()
		WithMaxConcurrent(10)(&config)
		WithMaxConcurrent(25)(&config) // Should override to 25

		if config.MaxConcurrent != 25 {
			t.Errorf("MaxConcurrent = %d, want 25", config.MaxConcurrent)
		}
	})
}
