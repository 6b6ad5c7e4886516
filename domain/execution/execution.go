// Package execution provides the domain model for per-execution
// workflow state and the live per-step counters derived from it.
package execution

import (
	"time"

	"github.com/elephant-oracle/tracker-go/domain/event"
)

// Bucket is the coarse status of an execution, folded from the
// fine-grained workflow status.
type Bucket string

const (
	// BucketInProgress covers scheduled, parked, and running executions.
	BucketInProgress Bucket = "IN_PROGRESS"

	// BucketFailed covers executions whose last event reported failure.
	BucketFailed Bucket = "FAILED"

	// BucketSucceeded covers completed executions.
	BucketSucceeded Bucket = "SUCCEEDED"
)

// BucketFor folds a fine-grained workflow status into its bucket.
// SCHEDULED and PARKED count as IN_PROGRESS.
func BucketFor(status event.Status) Bucket {
	switch status {
	case event.StatusSucceeded:
		return BucketSucceeded
	case event.StatusFailed:
		return BucketFailed
	default:
		return BucketInProgress
	}
}

// State is the current position of one execution in the pipeline.
type State struct {
	// ExecutionID identifies the execution.
	ExecutionID string `json:"execution_id"`

	// County is the county the execution is processing.
	County string `json:"county,omitempty"`

	// DataGroup is the data-group label of the execution's input.
	DataGroup string `json:"data_group,omitempty"`

	// Phase is the pipeline phase of the last accepted event.
	Phase string `json:"phase"`

	// Step is the step within the phase.
	Step string `json:"step"`

	// Bucket is the coarse status derived from Status.
	Bucket Bucket `json:"bucket"`

	// Status is the fine-grained status as reported by the event.
	Status event.Status `json:"status"`

	// LastEventID is the id of the last accepted event.
	LastEventID string `json:"last_event_id,omitempty"`

	// LastEventAt is the event time of the last accepted event. Events
	// older than this are discarded.
	LastEventAt time.Time `json:"last_event_at"`

	// Version counts accepted writes, used for optimistic concurrency.
	Version int64 `json:"version"`
}

// StepKey identifies one step-aggregate row.
type StepKey struct {
	// County scopes the counter to one county.
	County string `json:"county"`

	// DataGroup scopes the counter to one data group.
	DataGroup string `json:"data_group"`

	// Phase is the pipeline phase.
	Phase string `json:"phase"`

	// Step is the step within the phase.
	Step string `json:"step"`
}

// StepKey returns the aggregate row the state currently counts toward.
func (s *State) StepKey() StepKey {
	return StepKey{
		County:    s.County,
		DataGroup: s.DataGroup,
		Phase:     s.Phase,
		Step:      s.Step,
	}
}

// Triple returns the (step, bucket) pair the state currently occupies.
func (s *State) Triple() BucketedStep {
	return BucketedStep{StepKey: s.StepKey(), Bucket: s.Bucket}
}

// BucketedStep is one counter slot: a step-aggregate row plus the
// bucket column within it.
type BucketedStep struct {
	StepKey

	// Bucket selects which of the row's three counters.
	Bucket Bucket `json:"bucket"`
}

// StepAggregate holds the live execution counts for one step.
type StepAggregate struct {
	// Key identifies the step.
	Key StepKey `json:"key"`

	// InProgress counts executions currently in this step.
	InProgress int64 `json:"in_progress"`

	// Failed counts executions whose last event in this step failed.
	Failed int64 `json:"failed"`

	// Succeeded counts executions that completed in this step.
	Succeeded int64 `json:"succeeded"`

	// UpdatedAt is when the counters last shifted.
	UpdatedAt time.Time `json:"updated_at"`
}

// CountFor returns the counter for one bucket.
func (a *StepAggregate) CountFor(b Bucket) int64 {
	switch b {
	case BucketInProgress:
		return a.InProgress
	case BucketFailed:
		return a.Failed
	case BucketSucceeded:
		return a.Succeeded
	}
	return 0
}

// AggregateShift is the counter move that accompanies a state write:
// decrement the slot the execution leaves, increment the slot it
// enters. Dec is nil on first sighting; both are nil when the event
// does not move the execution.
type AggregateShift struct {
	// Dec is the slot to decrement, if any.
	Dec *BucketedStep

	// Inc is the slot to increment, if any.
	Inc *BucketedStep
}

// IsZero reports whether the shift moves nothing.
func (s AggregateShift) IsZero() bool {
	return s.Dec == nil && s.Inc == nil
}

// ComputeShift derives the counter move for a transition from prev
// (nil on first sighting) to next. A transition that lands in the slot
// it left produces a zero shift.
func ComputeShift(prev *State, next *State) AggregateShift {
	to := next.Triple()
	if prev == nil {
		return AggregateShift{Inc: &to}
	}
	from := prev.Triple()
	if from == to {
		return AggregateShift{}
	}
	return AggregateShift{Dec: &from, Inc: &to}
}

// UpsertResult reports the outcome of one state update attempt.
type UpsertResult struct {
	// Accepted reports whether the event changed the stored state.
	Accepted bool `json:"accepted"`

	// SkipReason explains a rejected event (stale timestamp).
	SkipReason string `json:"skip_reason,omitempty"`

	// Previous is the state before the write, nil on first sighting.
	Previous *State `json:"previous,omitempty"`

	// New is the state after the write; on a skipped event it is the
	// untouched stored state.
	New *State `json:"new,omitempty"`
}
