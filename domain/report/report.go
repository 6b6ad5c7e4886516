// Package report provides domain models for maintenance job run
// summaries and the sink they are published to.
package report

import (
	"context"
	"time"
)

// Summary is the structured result of one maintenance job run. Repair
// and migration jobs publish one per run so operational dashboards can
// track outcomes without scraping logs.
type Summary struct {
	// RunID uniquely identifies the job run.
	RunID string `json:"run_id"`

	// Job names the job that produced the summary.
	Job string `json:"job"`

	// DryRun reports whether the run only listed candidates.
	DryRun bool `json:"dry_run,omitempty"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// DurationSeconds is the wall-clock run time.
	DurationSeconds float64 `json:"duration_seconds"`

	// Scanned counts the items the run examined.
	Scanned int `json:"scanned"`

	// Fixed counts the items the run changed.
	Fixed int `json:"fixed"`

	// AlreadyDone counts the items that needed no change.
	AlreadyDone int `json:"already_done"`

	// Failed counts the items that could not be processed after
	// retries.
	Failed int `json:"failed"`

	// FailedItems lists the identifiers of failed items.
	FailedItems []string `json:"failed_items,omitempty"`

	// Residual counts the violations a verification pass still found
	// after the run.
	Residual int `json:"residual,omitempty"`
}

// Succeeded reports whether the run finished with no failed items and
// no residual violations.
func (s *Summary) Succeeded() bool {
	return s.Failed == 0 && s.Residual == 0
}

// Sink publishes job summaries.
type Sink interface {
	// Write persists one summary.
	Write(ctx context.Context, summary *Summary) error
}
