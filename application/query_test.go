package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/elephant-oracle/tracker-go/application"
	"github.com/elephant-oracle/tracker-go/domain/event"
	"github.com/elephant-oracle/tracker-go/domain/failure"
	"github.com/elephant-oracle/tracker-go/infrastructure/storage/memory"
)

// countingFailureStore counts how often the scan-backed queries reach
// the underlying store, so tests can tell cache hits from loads.
type countingFailureStore struct {
	failure.Store

	mu        sync.Mutex
	topFailed int
	topErrors int
}

func (s *countingFailureStore) TopFailedExecution(ctx context.Context) (*failure.FailedExecution, error) {
	s.mu.Lock()
	s.topFailed++
	s.mu.Unlock()
	return s.Store.TopFailedExecution(ctx)
}

func (s *countingFailureStore) TopErrorsByCount(ctx context.Context, limit int) ([]*failure.ErrorRecord, error) {
	s.mu.Lock()
	s.topErrors++
	s.mu.Unlock()
	return s.Store.TopErrorsByCount(ctx, limit)
}

func (s *countingFailureStore) loads() (topFailed, topErrors int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topFailed, s.topErrors
}

func newQueryService(t *testing.T, config application.QueryConfig) *application.QueryService {
	t.Helper()
	svc, err := application.NewQueryService(config)
	if err != nil {
		t.Fatalf("NewQueryService() error = %v", err)
	}
	return svc
}

func TestQueryService_RequiresStores(t *testing.T) {
	t.Parallel()

	if _, err := application.NewQueryService(application.QueryConfig{States: memory.NewStateStore()}); err == nil {
		t.Error("expected error for missing failure store")
	}
	if _, err := application.NewQueryService(application.QueryConfig{Failures: memory.NewFailureStore()}); err == nil {
		t.Error("expected error for missing execution store")
	}
}

func TestQueryService_TopFailedServedFromCache(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	seedFailure(t, store, "evt-1", "exec-1", "VA101", "VA101", "VB202")
	seedFailure(t, store, "evt-2", "exec-2", "VC303")
	counting := &countingFailureStore{Store: store}
	svc := newQueryService(t, application.QueryConfig{
		Failures: counting,
		States:   memory.NewStateStore(),
		Cache:    memory.NewCache(),
	})
	ctx := context.Background()

	first, err := svc.TopFailedExecution(ctx)
	if err != nil {
		t.Fatalf("TopFailedExecution() error = %v", err)
	}
	if first == nil || first.ExecutionID != "exec-1" {
		t.Fatalf("TopFailedExecution() = %+v, want exec-1", first)
	}

	second, err := svc.TopFailedExecution(ctx)
	if err != nil {
		t.Fatalf("TopFailedExecution() second call error = %v", err)
	}
	if second == nil || second.ExecutionID != first.ExecutionID || second.TotalOccurrences != first.TotalOccurrences {
		t.Errorf("cached result = %+v, want %+v", second, first)
	}

	if topFailed, _ := counting.loads(); topFailed != 1 {
		t.Errorf("store loads = %d, want 1", topFailed)
	}
}

func TestQueryService_TopFailedCachesAbsence(t *testing.T) {
	t.Parallel()

	counting := &countingFailureStore{Store: memory.NewFailureStore()}
	svc := newQueryService(t, application.QueryConfig{
		Failures: counting,
		States:   memory.NewStateStore(),
		Cache:    memory.NewCache(),
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		top, err := svc.TopFailedExecution(ctx)
		if err != nil {
			t.Fatalf("TopFailedExecution() error = %v", err)
		}
		if top != nil {
			t.Fatalf("TopFailedExecution() = %+v, want nil", top)
		}
	}

	if topFailed, _ := counting.loads(); topFailed != 1 {
		t.Errorf("store loads = %d, want 1", topFailed)
	}
}

func TestQueryService_TopErrorsCachedPerLimit(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	seedFailure(t, store, "evt-1", "exec-1", "VA101", "VB202", "VC303")
	seedFailure(t, store, "evt-2", "exec-2", "VA101", "VB202")
	seedFailure(t, store, "evt-3", "exec-3", "VA101")
	counting := &countingFailureStore{Store: store}
	svc := newQueryService(t, application.QueryConfig{
		Failures: counting,
		States:   memory.NewStateStore(),
		Cache:    memory.NewCache(),
	})
	ctx := context.Background()

	top2, err := svc.TopErrors(ctx, 2)
	if err != nil {
		t.Fatalf("TopErrors(2) error = %v", err)
	}
	if len(top2) != 2 || top2[0].Code != "VA101" || top2[1].Code != "VB202" {
		t.Fatalf("TopErrors(2) = %+v, want [VA101 VB202]", top2)
	}

	// A different limit is a different cache entry, not a truncated or
	// padded view of the first.
	top3, err := svc.TopErrors(ctx, 3)
	if err != nil {
		t.Fatalf("TopErrors(3) error = %v", err)
	}
	if len(top3) != 3 {
		t.Fatalf("TopErrors(3) returned %d records, want 3", len(top3))
	}

	if _, err := svc.TopErrors(ctx, 2); err != nil {
		t.Fatalf("TopErrors(2) repeat error = %v", err)
	}
	if _, topErrors := counting.loads(); topErrors != 2 {
		t.Errorf("store loads = %d, want 2", topErrors)
	}
}

func TestQueryService_NilCacheAlwaysLoads(t *testing.T) {
	t.Parallel()

	counting := &countingFailureStore{Store: memory.NewFailureStore()}
	svc := newQueryService(t, application.QueryConfig{
		Failures: counting,
		States:   memory.NewStateStore(),
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.TopFailedExecution(ctx); err != nil {
			t.Fatalf("TopFailedExecution() error = %v", err)
		}
	}

	if topFailed, _ := counting.loads(); topFailed != 2 {
		t.Errorf("store loads = %d, want 2", topFailed)
	}
}

func TestQueryService_ErrorByCode(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	seedFailure(t, store, "evt-1", "exec-1", "VA101")
	seedFailure(t, store, "evt-2", "exec-2", "VA101")
	svc := newQueryService(t, application.QueryConfig{
		Failures: store,
		States:   memory.NewStateStore(),
	})
	ctx := context.Background()

	detail, err := svc.ErrorByCode(ctx, "VA101")
	if err != nil {
		t.Fatalf("ErrorByCode() error = %v", err)
	}
	if detail.Record.Code != "VA101" || detail.Record.TotalCount != 2 {
		t.Errorf("Record = %+v, want VA101 with TotalCount 2", detail.Record)
	}
	if len(detail.Links) != 2 {
		t.Errorf("Links = %d, want 2", len(detail.Links))
	}

	if _, err := svc.ErrorByCode(ctx, "VZ999"); !errors.Is(err, failure.ErrNotFound) {
		t.Errorf("ErrorByCode(VZ999) error = %v, want %v", err, failure.ErrNotFound)
	}
}

func TestQueryService_ExecutionByID(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	seedFailure(t, store, "evt-1", "exec-1", "VA101", "VB202")
	svc := newQueryService(t, application.QueryConfig{
		Failures: store,
		States:   memory.NewStateStore(),
	})
	ctx := context.Background()

	got, err := svc.ExecutionByID(ctx, "exec-1")
	if err != nil {
		t.Fatalf("ExecutionByID() error = %v", err)
	}
	if got.Execution.ExecutionID != "exec-1" {
		t.Errorf("ExecutionID = %q, want exec-1", got.Execution.ExecutionID)
	}
	if len(got.Links) != 2 {
		t.Errorf("Links = %d, want 2", len(got.Links))
	}

	if _, err := svc.ExecutionByID(ctx, "exec-missing"); !errors.Is(err, failure.ErrNotFound) {
		t.Errorf("ExecutionByID(exec-missing) error = %v, want %v", err, failure.ErrNotFound)
	}
}

func TestQueryService_StateQueries(t *testing.T) {
	t.Parallel()

	states := memory.NewStateStore()
	stateSvc := newStateService(t, states)
	svc := newQueryService(t, application.QueryConfig{
		Failures: memory.NewFailureStore(),
		States:   states,
	})
	ctx := context.Background()

	for _, env := range []event.Envelope{
		progressEvent("evt-1", "exec-1", event.StatusInProgress, baseTime),
		progressEvent("evt-2", "exec-2", event.StatusInProgress, baseTime.Add(time.Minute)),
	} {
		if _, err := stateSvc.UpsertExecutionStateAndUpdateAggregates(ctx, env); err != nil {
			t.Fatalf("upsert %s error = %v", env.ID, err)
		}
	}

	recent, err := svc.RecentStates(ctx, 10)
	if err != nil {
		t.Fatalf("RecentStates() error = %v", err)
	}
	if len(recent) != 2 || recent[0].ExecutionID != "exec-2" || recent[1].ExecutionID != "exec-1" {
		t.Errorf("RecentStates() order = %+v, want [exec-2 exec-1]", recent)
	}

	state, err := svc.ExecutionState(ctx, "exec-1")
	if err != nil {
		t.Fatalf("ExecutionState() error = %v", err)
	}
	if state.Version != 1 {
		t.Errorf("Version = %d, want 1", state.Version)
	}

	aggs, err := svc.StepAggregates(ctx, "adams", "parcels")
	if err != nil {
		t.Fatalf("StepAggregates() error = %v", err)
	}
	if len(aggs) != 1 || aggs[0].InProgress != 2 {
		t.Errorf("StepAggregates() = %+v, want one row with InProgress 2", aggs)
	}

	across, err := svc.StepAcrossCounties(ctx, "transform", "normalize", "parcels")
	if err != nil {
		t.Fatalf("StepAcrossCounties() error = %v", err)
	}
	if len(across) != 1 || across[0].Key.County != "adams" {
		t.Errorf("StepAcrossCounties() = %+v, want one row for adams", across)
	}
}
