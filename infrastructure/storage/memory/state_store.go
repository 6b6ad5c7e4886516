package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/elephant-oracle/tracker-go/domain/execution"
)

// StateStore is an in-memory implementation of execution.Store. State
// writes and their aggregate counter shifts apply atomically under one
// lock, matching the transactional coupling of the DynamoDB store.
type StateStore struct {
	mu         sync.RWMutex
	states     map[string]*execution.State
	aggregates map[execution.StepKey]*execution.StepAggregate
}

// NewStateStore creates a new in-memory execution state store.
func NewStateStore() *StateStore {
	return &StateStore{
		states:     make(map[string]*execution.State),
		aggregates: make(map[execution.StepKey]*execution.StepAggregate),
	}
}

// Get retrieves one execution's current state.
func (s *StateStore) Get(ctx context.Context, executionID string) (*execution.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[executionID]
	if !ok {
		return nil, execution.ErrStateNotFound
	}
	return copyState(state), nil
}

// Create stores a first state row and applies the counter shift.
func (s *StateStore) Create(ctx context.Context, state execution.State, shift execution.AggregateShift) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[state.ExecutionID]; ok {
		return execution.ErrStateExists
	}
	s.states[state.ExecutionID] = copyState(&state)
	s.applyShift(shift, time.Now())
	return nil
}

// Update replaces a state row guarded by its version and applies the
// counter shift.
func (s *StateStore) Update(ctx context.Context, state execution.State, expectedVersion int64, shift execution.AggregateShift) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.states[state.ExecutionID]
	if !ok || stored.Version != expectedVersion {
		return execution.ErrVersionConflict
	}
	s.states[state.ExecutionID] = copyState(&state)
	s.applyShift(shift, time.Now())
	return nil
}

// applyShift adjusts the per-step bucket counters. Caller holds the
// write lock.
func (s *StateStore) applyShift(shift execution.AggregateShift, now time.Time) {
	if shift.IsZero() {
		return
	}
	if shift.Dec != nil {
		s.bump(shift.Dec.StepKey, shift.Dec.Bucket, -1, now)
	}
	if shift.Inc != nil {
		s.bump(shift.Inc.StepKey, shift.Inc.Bucket, 1, now)
	}
}

func (s *StateStore) bump(key execution.StepKey, bucket execution.Bucket, delta int64, now time.Time) {
	row, ok := s.aggregates[key]
	if !ok {
		row = &execution.StepAggregate{Key: key}
		s.aggregates[key] = row
	}
	switch bucket {
	case execution.BucketInProgress:
		row.InProgress += delta
	case execution.BucketFailed:
		row.Failed += delta
	case execution.BucketSucceeded:
		row.Succeeded += delta
	}
	row.UpdatedAt = now
}

// GetStepAggregate retrieves one step's counters. An untouched step
// reads as all-zero counts, not an error.
func (s *StateStore) GetStepAggregate(ctx context.Context, key execution.StepKey) (*execution.StepAggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.aggregates[key]
	if !ok {
		return &execution.StepAggregate{Key: key}, nil
	}
	return copyAggregate(row), nil
}

// ListStepAggregates returns every step row under one county and data
// group, ordered by phase then step.
func (s *StateStore) ListStepAggregates(ctx context.Context, county, dataGroup string) ([]*execution.StepAggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []*execution.StepAggregate
	for key, row := range s.aggregates {
		if key.County != county || key.DataGroup != dataGroup {
			continue
		}
		rows = append(rows, copyAggregate(row))
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Key.Phase == rows[j].Key.Phase {
			return rows[i].Key.Step < rows[j].Key.Step
		}
		return rows[i].Key.Phase < rows[j].Key.Phase
	})
	return rows, nil
}

// ListByStep returns every county's counters for one phase, step, and
// data group, ordered by county.
func (s *StateStore) ListByStep(ctx context.Context, phase, step, dataGroup string) ([]*execution.StepAggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []*execution.StepAggregate
	for key, row := range s.aggregates {
		if key.Phase != phase || key.Step != step || key.DataGroup != dataGroup {
			continue
		}
		rows = append(rows, copyAggregate(row))
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Key.County < rows[j].Key.County
	})
	return rows, nil
}

// ListStates returns the most recently touched executions, newest
// first.
func (s *StateStore) ListStates(ctx context.Context, limit int) ([]*execution.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make([]*execution.State, 0, len(s.states))
	for _, state := range s.states {
		states = append(states, copyState(state))
	}
	sort.Slice(states, func(i, j int) bool {
		if states[i].LastEventAt.Equal(states[j].LastEventAt) {
			return states[i].ExecutionID < states[j].ExecutionID
		}
		return states[i].LastEventAt.After(states[j].LastEventAt)
	})
	if len(states) > limit {
		states = states[:limit]
	}
	return states, nil
}

// Clear removes all stored state.
func (s *StateStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = make(map[string]*execution.State)
	s.aggregates = make(map[execution.StepKey]*execution.StepAggregate)
}

func copyState(st *execution.State) *execution.State {
	if st == nil {
		return nil
	}
	copied := *st
	return &copied
}

func copyAggregate(a *execution.StepAggregate) *execution.StepAggregate {
	if a == nil {
		return nil
	}
	copied := *a
	return &copied
}

var _ execution.Store = (*StateStore)(nil)
