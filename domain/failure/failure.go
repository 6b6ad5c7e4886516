// Package failure provides the domain model for pipeline failure
// tracking: per-code error aggregates, execution-error links, and
// per-execution rollups.
package failure

import (
	"encoding/json"
	"time"
)

// ErrorStatus is the resolution status of a tracked error.
type ErrorStatus string

const (
	// StatusFailed marks an error that is open and unresolved.
	StatusFailed ErrorStatus = "failed"

	// StatusMaybeSolved marks an error a repair attempt believes it fixed,
	// pending confirmation.
	StatusMaybeSolved ErrorStatus = "maybeSolved"

	// StatusSolved marks a confirmed-resolved error.
	StatusSolved ErrorStatus = "solved"

	// StatusMaybeUnrecoverable marks an error repair has given up on.
	StatusMaybeUnrecoverable ErrorStatus = "maybeUnrecoverable"
)

// Valid reports whether s is a known error status.
func (s ErrorStatus) Valid() bool {
	switch s {
	case StatusFailed, StatusMaybeSolved, StatusSolved, StatusMaybeUnrecoverable:
		return true
	}
	return false
}

// MixedErrorType is recorded on a rollup whose error codes do not share
// a single two-character type prefix.
const MixedErrorType = "MIXED"

// ErrorTypeOf returns the coarse category of an error code: its first
// two characters, or the whole code when shorter.
func ErrorTypeOf(code string) string {
	if len(code) < 2 {
		return code
	}
	return code[:2]
}

// MergeErrorType folds a newly observed type into a previously recorded
// one. An empty previous value adopts the new type; disagreement
// collapses to MixedErrorType.
func MergeErrorType(prev, next string) string {
	switch {
	case prev == "":
		return next
	case next == "":
		return prev
	case prev != next:
		return MixedErrorType
	}
	return prev
}

// ErrorRecord is the cross-execution aggregate for one error code.
type ErrorRecord struct {
	// Code is the unique error code this record aggregates.
	Code string `json:"code"`

	// ErrorType is the coarse category (two-character code prefix).
	ErrorType string `json:"error_type"`

	// Status is the resolution status of the error.
	Status ErrorStatus `json:"status"`

	// TotalCount is the occurrence count across all executions.
	TotalCount int64 `json:"total_count"`

	// LatestExecutionID is the execution that most recently produced
	// this error.
	LatestExecutionID string `json:"latest_execution_id,omitempty"`

	// LastDetail is the raw detail payload from the most recent
	// occurrence.
	LastDetail json.RawMessage `json:"last_detail,omitempty"`

	// CreatedAt is when the code was first observed.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the record last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// ExecutionErrorLink joins one execution to one error code it produced.
type ExecutionErrorLink struct {
	// ExecutionID identifies the execution side of the link.
	ExecutionID string `json:"execution_id"`

	// ErrorCode identifies the error side of the link.
	ErrorCode string `json:"error_code"`

	// Status is the per-execution resolution status of the error.
	Status ErrorStatus `json:"status"`

	// Occurrences counts how many times this execution produced the
	// error.
	Occurrences int64 `json:"occurrences"`

	// County is the county the execution was processing.
	County string `json:"county,omitempty"`

	// CreatedAt is when the pair was first observed.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the link last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// FailedExecution is the triage rollup for one execution that has
// produced at least one error.
type FailedExecution struct {
	// ExecutionID identifies the execution.
	ExecutionID string `json:"execution_id"`

	// County is the county the execution was processing.
	County string `json:"county,omitempty"`

	// Status is the rollup resolution status.
	Status ErrorStatus `json:"status"`

	// ErrorType is the shared two-character type of the execution's
	// error codes, or MIXED when they differ.
	ErrorType string `json:"error_type"`

	// TotalOccurrences sums every error occurrence across the
	// execution's events.
	TotalOccurrences int64 `json:"total_occurrences"`

	// OpenErrorCount counts the error codes still unresolved for this
	// execution. Decremented as links are resolved or deleted.
	OpenErrorCount int64 `json:"open_error_count"`

	// UniqueErrorCount accumulates the per-event unique-code counts.
	UniqueErrorCount int64 `json:"unique_error_count"`

	// TaskToken is the most recent callback token for the execution.
	// Overwritten by every event that carries one (last writer wins).
	TaskToken string `json:"task_token,omitempty"`

	// CreatedAt is when the execution first failed.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the rollup last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// IngestResult reports what one recorded event touched.
type IngestResult struct {
	// UniqueErrorCount is the number of distinct error codes in the
	// event.
	UniqueErrorCount int `json:"unique_error_count"`

	// TotalOccurrences is the number of error entries in the event.
	TotalOccurrences int64 `json:"total_occurrences"`

	// ErrorCodes lists the distinct codes touched, in event order.
	ErrorCodes []string `json:"error_codes"`

	// ChunksApplied counts the transaction chunks committed by this
	// delivery. Zero when every chunk had already been applied.
	ChunksApplied int `json:"chunks_applied,omitempty"`

	// Duplicate reports that every write had already been applied by an
	// earlier delivery of the same event.
	Duplicate bool `json:"duplicate,omitempty"`
}

// ResolutionResult reports the effect of a bulk link deletion.
type ResolutionResult struct {
	// DeletedCount is the number of links removed.
	DeletedCount int `json:"deleted_count"`

	// AffectedExecutionIDs lists the executions that lost links.
	AffectedExecutionIDs []string `json:"affected_execution_ids,omitempty"`

	// DeletedErrorCodes lists the distinct codes the removed links
	// referenced.
	DeletedErrorCodes []string `json:"deleted_error_codes,omitempty"`

	// OrphanedCodesRemoved lists aggregates deleted because no link
	// referenced them afterward.
	OrphanedCodesRemoved []string `json:"orphaned_codes_removed,omitempty"`
}

// MarkResult reports the effect of a bulk status transition.
type MarkResult struct {
	// UpdatedCount is the number of links transitioned.
	UpdatedCount int `json:"updated_count"`

	// AffectedExecutionIDs lists the executions whose links changed.
	AffectedExecutionIDs []string `json:"affected_execution_ids,omitempty"`
}
