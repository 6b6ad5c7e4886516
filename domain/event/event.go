// Package event provides the inbound event shapes emitted by the
// workflow orchestration layer.
package event

import (
	"encoding/json"
	"time"
)

// Status is the fine-grained workflow status carried on an event.
type Status string

// Workflow statuses emitted by the orchestration layer.
const (
	StatusScheduled  Status = "SCHEDULED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusParked     Status = "PARKED"
	StatusFailed     Status = "FAILED"
	StatusSucceeded  Status = "SUCCEEDED"
)

// Valid reports whether s is a known workflow status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusParked, StatusFailed, StatusSucceeded:
		return true
	}
	return false
}

// ErrorEntry is one validation or processing failure reported by an event.
type ErrorEntry struct {
	// Code identifies the failure; its first two characters are the
	// coarse error type.
	Code string `json:"code"`

	// Details is the opaque payload attached by the producer.
	Details json.RawMessage `json:"details,omitempty"`
}

// WorkflowDetail is the detail body of a workflow progress event.
type WorkflowDetail struct {
	// ExecutionID identifies one pipeline run for a single input.
	ExecutionID string `json:"executionId"`

	// County is the county the input belongs to.
	County string `json:"county"`

	// Status is the fine-grained workflow status.
	Status Status `json:"status"`

	// Phase is the coarse pipeline phase (e.g. "transform", "submit").
	Phase string `json:"phase"`

	// Step is the step within the phase.
	Step string `json:"step"`

	// DataGroup labels the data group the execution processes.
	DataGroup string `json:"dataGroupLabel,omitempty"`

	// TaskToken is the orchestration callback token, when one exists.
	TaskToken string `json:"taskToken,omitempty"`

	// Errors lists the failures observed by this event, possibly with
	// repeated codes.
	Errors []ErrorEntry `json:"errors,omitempty"`
}

// Envelope wraps a workflow detail with the delivery metadata the bus
// attaches. ID doubles as the idempotency token for ingest.
type Envelope struct {
	// ID is the bus-assigned event id, unique per publish.
	ID string `json:"id"`

	// Time is when the producer observed the transition.
	Time time.Time `json:"time"`

	// Detail is the event body.
	Detail WorkflowDetail `json:"detail"`
}

// ResolutionDetail signals that an error was resolved, or failed to
// resolve, for an execution and/or an error code. At least one selector
// must be present.
type ResolutionDetail struct {
	ExecutionID string `json:"executionId,omitempty"`
	ErrorCode   string `json:"errorCode,omitempty"`
}

// Validate checks the envelope for the fields ingest depends on.
func (e Envelope) Validate() error {
	if e.ID == "" {
		return ErrMissingEventID
	}
	if e.Time.IsZero() {
		return ErrMissingEventTime
	}
	return e.Detail.Validate()
}

// Validate checks the detail for the fields ingest depends on.
func (d WorkflowDetail) Validate() error {
	if d.ExecutionID == "" {
		return ErrMissingExecutionID
	}
	if !d.Status.Valid() {
		return ErrUnknownStatus
	}
	for _, entry := range d.Errors {
		if entry.Code == "" {
			return ErrEmptyErrorCode
		}
	}
	return nil
}

// Validate checks that at least one selector is present.
func (d ResolutionDetail) Validate() error {
	if d.ExecutionID == "" && d.ErrorCode == "" {
		return ErrEmptySelector
	}
	return nil
}

// CodeCount pairs an error code with its occurrence count in one event.
type CodeCount struct {
	Code  string
	Count int64
}

// UniqueCodes returns the distinct error codes of the event in first-seen
// order, each with the number of times it occurred in this event.
func (d WorkflowDetail) UniqueCodes() []CodeCount {
	if len(d.Errors) == 0 {
		return nil
	}
	index := make(map[string]int, len(d.Errors))
	counts := make([]CodeCount, 0, len(d.Errors))
	for _, entry := range d.Errors {
		if i, seen := index[entry.Code]; seen {
			counts[i].Count++
			continue
		}
		index[entry.Code] = len(counts)
		counts = append(counts, CodeCount{Code: entry.Code, Count: 1})
	}
	return counts
}

// TotalOccurrences returns the number of error entries on the event,
// counting repeats.
func (d WorkflowDetail) TotalOccurrences() int64 {
	return int64(len(d.Errors))
}

// LastDetailFor returns the details payload of the last entry carrying
// the given code, or nil when the code does not appear.
func (d WorkflowDetail) LastDetailFor(code string) json.RawMessage {
	var last json.RawMessage
	for _, entry := range d.Errors {
		if entry.Code == code {
			last = entry.Details
		}
	}
	return last
}
