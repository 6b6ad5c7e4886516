package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/elephant-oracle/tracker-go/domain/cache"
	"github.com/elephant-oracle/tracker-go/infrastructure/storage/memory"
)

func TestCache_RoundTrip(t *testing.T) {
	t.Parallel()

	c := memory.NewCache()
	ctx := context.Background()

	if err := c.Set(ctx, "top-failed", []byte(`{"executionId":"exec-adams-1"}`), cache.SetOptions{}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	value, found, err := c.Get(ctx, "top-failed")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found {
		t.Fatal("Get() missed a key that was just set")
	}
	if string(value) != `{"executionId":"exec-adams-1"}` {
		t.Errorf("Get() = %s", value)
	}

	if err := c.Set(ctx, "top-failed", []byte(`{"executionId":"exec-blaine-2"}`), cache.SetOptions{}); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	value, _, _ = c.Get(ctx, "top-failed")
	if string(value) != `{"executionId":"exec-blaine-2"}` {
		t.Errorf("Get() after overwrite = %s", value)
	}

	if _, found, _ := c.Get(ctx, "top-errors:25"); found {
		t.Error("Get() found a key that was never set")
	}
}

func TestCache_CopiesBothWays(t *testing.T) {
	t.Parallel()

	c := memory.NewCache()
	ctx := context.Background()

	payload := []byte("adams")
	if err := c.Set(ctx, "view", payload, cache.SetOptions{}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	payload[0] = 'X'

	got, _, _ := c.Get(ctx, "view")
	if string(got) != "adams" {
		t.Errorf("stored value followed the caller's slice: %s", got)
	}

	got[0] = 'Y'
	again, _, _ := c.Get(ctx, "view")
	if string(again) != "adams" {
		t.Errorf("stored value followed a returned slice: %s", again)
	}
}

func TestCache_TTL(t *testing.T) {
	t.Parallel()

	c := memory.NewCache()
	ctx := context.Background()

	if err := c.Set(ctx, "expiring", []byte("v"), cache.SetOptions{TTL: 50 * time.Millisecond}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if _, found, _ := c.Get(ctx, "expiring"); !found {
		t.Error("entry expired before its TTL")
	}

	time.Sleep(100 * time.Millisecond)

	if _, found, _ := c.Get(ctx, "expiring"); found {
		t.Error("entry survived its TTL")
	}
}

func TestCache_RejectsEmptyKey(t *testing.T) {
	t.Parallel()

	c := memory.NewCache()

	err := c.Set(context.Background(), "", []byte("v"), cache.SetOptions{})
	if !errors.Is(err, cache.ErrInvalidKey) {
		t.Errorf("Set() error = %v, want ErrInvalidKey", err)
	}
}

func TestCache_RespectsDeadContext(t *testing.T) {
	t.Parallel()

	c := memory.NewCache()
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

func TestCache_Delete(t *testing.T) {
	t.Parallel()

	c := memory.NewCache()
	ctx := context.Background()

	c.Set(ctx, "view", []byte("v"), cache.SetOptions{})
	if err := c.Delete(ctx, "view"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, found, _ := c.Get(ctx, "view"); found {
		t.Error("deleted key still readable")
	}

	if err := c.Delete(ctx, "never-set"); err != nil {
		t.Errorf("Delete() of absent key error = %v", err)
	}
}

func TestCache_Stats(t *testing.T) {
	t.Parallel()

	c := memory.NewCache()
	ctx := context.Background()

	c.Set(ctx, "top-failed", []byte("{}"), cache.SetOptions{})
	c.Get(ctx, "top-failed")
	c.Get(ctx, "top-errors:25")

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %d/%d, want 1 hit and 1 miss", stats.Hits, stats.Misses)
	}
	if stats.Size != 1 {
		t.Errorf("Size = %d, want 1", stats.Size)
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := memory.NewCache(memory.WithMaxSize(2))
	ctx := context.Background()

	c.Set(ctx, "view-a", []byte("a"), cache.SetOptions{})
	time.Sleep(10 * time.Millisecond)
	c.Set(ctx, "view-b", []byte("b"), cache.SetOptions{})
	time.Sleep(10 * time.Millisecond)

	// Touching view-a leaves view-b as the eviction candidate.
	c.Get(ctx, "view-a")
	time.Sleep(10 * time.Millisecond)

	c.Set(ctx, "view-c", []byte("c"), cache.SetOptions{})

	if _, found, _ := c.Get(ctx, "view-a"); !found {
		t.Error("recently touched entry was evicted")
	}
	if _, found, _ := c.Get(ctx, "view-b"); found {
		t.Error("least recently used entry survived eviction")
	}
	if _, found, _ := c.Get(ctx, "view-c"); !found {
		t.Error("newly written entry missing")
	}
}

func TestCache_EvictionMakesRoom(t *testing.T) {
	t.Parallel()

	c := memory.NewCache(memory.WithMaxSize(1))
	ctx := context.Background()

	c.Set(ctx, "view-a", []byte("a"), cache.SetOptions{})
	if err := c.Set(ctx, "view-b", []byte("b"), cache.SetOptions{}); err != nil {
		t.Errorf("Set() at capacity error = %v, want eviction instead", err)
	}
	if got := c.Size(); got != 1 {
		t.Errorf("Size() = %d, want 1", got)
	}
}

func TestCache_Cleanup(t *testing.T) {
	t.Parallel()

	c := memory.NewCache()
	ctx := context.Background()

	c.Set(ctx, "expiring-1", []byte("v"), cache.SetOptions{TTL: 10 * time.Millisecond})
	c.Set(ctx, "expiring-2", []byte("v"), cache.SetOptions{TTL: 10 * time.Millisecond})
	c.Set(ctx, "permanent", []byte("v"), cache.SetOptions{})

	time.Sleep(50 * time.Millisecond)

	if removed := c.Cleanup(); removed != 2 {
		t.Errorf("Cleanup() = %d, want 2", removed)
	}
	if _, found, _ := c.Get(ctx, "permanent"); !found {
		t.Error("Cleanup() swept an entry with no TTL")
	}
	if got := c.Size(); got != 1 {
		t.Errorf("Size() after cleanup = %d, want 1", got)
	}
}
