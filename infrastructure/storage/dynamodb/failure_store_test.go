package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/elephant-oracle/tracker-go/domain/execution"
	"github.com/elephant-oracle/tracker-go/domain/failure"
)

func TestFailureStoreWrapError(t *testing.T) {
	t.Parallel()

	s := testFailureStore(100)

	if err := s.wrapError("op", nil); err != nil {
		t.Errorf("wrapError(nil) = %v", err)
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"throughput exceeded", &types.ProvisionedThroughputExceededException{}, failure.ErrThrottled},
		{"request limit", &types.RequestLimitExceeded{}, failure.ErrThrottled},
		{"transaction conflict", &types.TransactionConflictException{}, failure.ErrThrottled},
		{"missing table", &types.ResourceNotFoundException{}, failure.ErrMissingTable},
		{"anything else", errors.New("socket closed"), failure.ErrStoreInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := s.wrapError("op", tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("wrapError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestFailureStoreWrapError_ContextPassthrough(t *testing.T) {
	t.Parallel()

	s := testFailureStore(100)

	got := s.wrapError("op", context.DeadlineExceeded)
	if !errors.Is(got, context.DeadlineExceeded) {
		t.Errorf("wrapError lost the deadline: %v", got)
	}
	if errors.Is(got, failure.ErrStoreInternal) || errors.Is(got, failure.ErrThrottled) {
		t.Errorf("deadline misclassified as a store failure: %v", got)
	}

	got = s.wrapError("op", context.Canceled)
	if !errors.Is(got, context.Canceled) {
		t.Errorf("wrapError lost the cancellation: %v", got)
	}
}

func TestStateStoreWrapError(t *testing.T) {
	t.Parallel()

	s := testStateStore()

	if err := s.wrapError("op", nil); err != nil {
		t.Errorf("wrapError(nil) = %v", err)
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"throughput exceeded", &types.ProvisionedThroughputExceededException{}, execution.ErrThrottled},
		{"transaction conflict", &types.TransactionConflictException{}, execution.ErrThrottled},
		{"anything else", errors.New("socket closed"), execution.ErrStoreInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := s.wrapError("op", tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("wrapError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNewFailureStore_CopiesClientConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.ErrorsTableName = "tracker-errors"
	cfg.TransactLimit = 12
	cfg.MarkerTTL = 48 * time.Hour

	s := NewFailureStore(&Client{config: cfg})

	if s.tableName != "tracker-errors" {
		t.Errorf("tableName = %q", s.tableName)
	}
	if s.transactLimit != 12 {
		t.Errorf("transactLimit = %d", s.transactLimit)
	}
	if s.markerTTL != 48*time.Hour {
		t.Errorf("markerTTL = %v", s.markerTTL)
	}
	if s.queryTimeout != cfg.QueryTimeout {
		t.Errorf("queryTimeout = %v", s.queryTimeout)
	}
}

func TestNewStateStore_CopiesClientConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.ExecutionsTableName = "tracker-executions"
	cfg.ShardCount = 4

	s := NewStateStore(&Client{config: cfg})

	if s.tableName != "tracker-executions" {
		t.Errorf("tableName = %q", s.tableName)
	}
	if s.shardCount != 4 {
		t.Errorf("shardCount = %d", s.shardCount)
	}
}
