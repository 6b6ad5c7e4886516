package redis

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/elephant-oracle/tracker-go/domain/cache"
)

func TestNewCacheFromClient(t *testing.T) {
	t.Parallel()

	c := NewCacheFromClient(nil, "test:")
	if c == nil {
		t.Fatal("NewCacheFromClient() returned nil")
	}
	if c.keyPrefix != "test:" {
		t.Errorf("keyPrefix = %q, want test:", c.keyPrefix)
	}
	if got := c.Client(); got != nil {
		t.Errorf("Client() = %v, want the nil client it was built from", got)
	}
}

func TestCache_prefixKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		keyPrefix string
		key       string
		want      string
	}{
		{
			name:      "default prefix",
			keyPrefix: "tracker:",
			key:       "top-failed",
			want:      "tracker:query:top-failed",
		},
		{
			name:      "limit-qualified view",
			keyPrefix: "tracker:",
			key:       "top-errors:25",
			want:      "tracker:query:top-errors:25",
		},
		{
			name:      "empty prefix",
			keyPrefix: "",
			key:       "top-failed",
			want:      "query:top-failed",
		},
		{
			name:      "deployment prefix",
			keyPrefix: "staging:",
			key:       "top-failed",
			want:      "staging:query:top-failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewCacheFromClient(nil, tt.keyPrefix)

			if got := c.prefixKey(tt.key); got != tt.want {
				t.Errorf("prefixKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestCache_Stats(t *testing.T) {
	t.Parallel()

	c := NewCacheFromClient(nil, "test:")

	stats := c.Stats()
	if stats.Hits != 0 || stats.Misses != 0 {
		t.Errorf("initial stats = %d/%d, want 0/0", stats.Hits, stats.Misses)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.hits.Add(1)
				c.misses.Add(1)
			}
		}()
	}
	wg.Wait()

	stats = c.Stats()
	if stats.Hits != 400 || stats.Misses != 400 {
		t.Errorf("stats after concurrent bumps = %d/%d, want 400/400", stats.Hits, stats.Misses)
	}
	if stats.Size != 0 {
		t.Errorf("Size = %d, want 0 for the shared backend", stats.Size)
	}
}

type timeoutError struct{}

func (timeoutError) Error() string { return "i/o timeout" }
func (timeoutError) Timeout() bool { return true }

func TestCache_wrapError(t *testing.T) {
	t.Parallel()

	c := NewCacheFromClient(nil, "test:")

	if err := c.wrapError(nil); err != nil {
		t.Errorf("wrapError(nil) = %v, want nil", err)
	}

	err := c.wrapError(context.DeadlineExceeded)
	if !errors.Is(err, cache.ErrOperationTimeout) {
		t.Errorf("deadline exceeded: err = %v, want ErrOperationTimeout", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("deadline exceeded: wrapped error lost the cause")
	}

	err = c.wrapError(timeoutError{})
	if !errors.Is(err, cache.ErrOperationTimeout) {
		t.Errorf("net timeout: err = %v, want ErrOperationTimeout", err)
	}

	plain := errors.New("READONLY You can't write against a read only replica")
	if err := c.wrapError(plain); err != plain {
		t.Errorf("plain error: err = %v, want passthrough", err)
	}
}

func TestCache_RespectsDeadContext(t *testing.T) {
	t.Parallel()

	// Context checks run before the client is touched, so a nil
	// client never sees these calls.
	c := NewCacheFromClient(nil, "test:")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		call func() error
	}{
		{"Get", func() error {
			_, _, err := c.Get(ctx, "top-failed")
			return err
		}},
		{"Set", func() error {
			return c.Set(ctx, "top-failed", []byte("{}"), cache.SetOptions{})
		}},
		{"Delete", func() error {
			return c.Delete(ctx, "top-failed")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, context.Canceled) {
				t.Errorf("%s error = %v, want context.Canceled", tt.name, err)
			}
		})
	}
}

func TestCache_Set_EmptyKey(t *testing.T) {
	t.Parallel()

	c := NewCacheFromClient(nil, "test:")

	err := c.Set(context.Background(), "", []byte("{}"), cache.SetOptions{})
	if !errors.Is(err, cache.ErrInvalidKey) {
		t.Errorf("Set() error = %v, want ErrInvalidKey", err)
	}
}
