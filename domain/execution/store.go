package execution

import "context"

// Store defines the interface for execution-state persistence.
// Implementations may be DynamoDB-backed or in-memory.
type Store interface {
	// Get retrieves the state of one execution.
	Get(ctx context.Context, executionID string) (*State, error)

	// Create persists a first-sighting state (Version 1), conditional
	// on no state existing, and applies the shift in the same
	// transaction. Returns ErrStateExists when the condition fails.
	Create(ctx context.Context, state State, shift AggregateShift) error

	// Update persists an accepted state (Version expectedVersion+1),
	// conditional on the stored version matching expectedVersion, and
	// applies the shift in the same transaction. Returns
	// ErrVersionConflict when a concurrent writer won.
	Update(ctx context.Context, state State, expectedVersion int64, shift AggregateShift) error

	// GetStepAggregate retrieves the live counters for one step.
	GetStepAggregate(ctx context.Context, key StepKey) (*StepAggregate, error)

	// ListStepAggregates returns every step counter for one
	// (county, data group) partition.
	ListStepAggregates(ctx context.Context, county, dataGroup string) ([]*StepAggregate, error)

	// ListByStep returns the per-county counters for one
	// (phase, step, data group), answered by the by-step index.
	ListByStep(ctx context.Context, phase, step, dataGroup string) ([]*StepAggregate, error)

	// ListStates returns up to limit states across all executions,
	// most recent event first, fanning out over the sharded global
	// index.
	ListStates(ctx context.Context, limit int) ([]*State, error)
}
