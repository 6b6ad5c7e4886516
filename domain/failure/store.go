package failure

import (
	"context"
	"time"

	"github.com/elephant-oracle/tracker-go/domain/event"
)

// Selector targets execution-error links by execution, by error code,
// or by the intersection of both. At least one field must be set.
type Selector struct {
	// ExecutionID restricts the selection to one execution.
	ExecutionID string

	// ErrorCode restricts the selection to one error code.
	ErrorCode string
}

// Validate checks that the selector targets something.
func (s Selector) Validate() error {
	if s.ExecutionID == "" && s.ErrorCode == "" {
		return ErrEmptySelector
	}
	return nil
}

// Store defines the interface for failure persistence.
// Implementations may be DynamoDB-backed or in-memory.
type Store interface {
	// RecordEvent applies one workflow failure event: it upserts the
	// execution rollup plus, per unique error code, the error aggregate
	// and the execution-error link, all under the event's idempotency
	// marker. Replaying a fully applied event is a no-op reported via
	// IngestResult.Duplicate.
	RecordEvent(ctx context.Context, env event.Envelope, now time.Time) (*IngestResult, error)

	// DeleteExecution removes the rollup and every link under the
	// execution and returns the error codes the deleted links
	// referenced, so the caller can sweep newly orphaned aggregates.
	DeleteExecution(ctx context.Context, executionID string) ([]string, error)

	// DeleteErrorsForExecution removes every link under one execution
	// and sweeps aggregates that lost their last reference.
	DeleteErrorsForExecution(ctx context.Context, executionID string) (*ResolutionResult, error)

	// DeleteErrorFromAllExecutions removes one error's links across all
	// executions and deletes its aggregate.
	DeleteErrorFromAllExecutions(ctx context.Context, code string) (*ResolutionResult, error)

	// MarkMaybeSolved transitions matching links (and the aggregate,
	// when selecting by code) to StatusMaybeSolved.
	MarkMaybeSolved(ctx context.Context, sel Selector) (*MarkResult, error)

	// MarkUnrecoverable transitions matching links (and the aggregate,
	// when selecting by code) to StatusMaybeUnrecoverable.
	MarkUnrecoverable(ctx context.Context, sel Selector) (*MarkResult, error)

	// DeleteOrphanedAggregates deletes each listed aggregate iff no
	// link references its code anymore, and returns the codes removed.
	DeleteOrphanedAggregates(ctx context.Context, codes []string) ([]string, error)

	// GetError retrieves one error aggregate by code.
	GetError(ctx context.Context, code string) (*ErrorRecord, error)

	// ListErrorsByType returns aggregates sharing a coarse type prefix.
	ListErrorsByType(ctx context.Context, errorType string, limit int) ([]*ErrorRecord, error)

	// TopErrorsByCount returns aggregates ordered by descending total
	// count.
	TopErrorsByCount(ctx context.Context, limit int) ([]*ErrorRecord, error)

	// GetFailedExecution retrieves one execution rollup.
	GetFailedExecution(ctx context.Context, executionID string) (*FailedExecution, error)

	// TopFailedExecution returns the rollup with the highest total
	// occurrence count, or nil when none exist.
	TopFailedExecution(ctx context.Context) (*FailedExecution, error)

	// LinksForExecution returns every link under one execution.
	LinksForExecution(ctx context.Context, executionID string) ([]*ExecutionErrorLink, error)

	// LinksForError returns every link referencing one error code,
	// answered by the reverse index, never by a filtered scan.
	LinksForError(ctx context.Context, code string) ([]*ExecutionErrorLink, error)
}

// PageToken is an opaque continuation token for paged scans. An empty
// token starts a scan; an empty returned token ends it.
type PageToken []byte

// Empty reports whether the token is unset.
func (t PageToken) Empty() bool {
	return len(t) == 0
}

// MigrationOutcome is the result of re-partitioning one item.
type MigrationOutcome string

const (
	// MigrationMigrated means the item was moved by this call.
	MigrationMigrated MigrationOutcome = "migrated"

	// MigrationAlreadyDone means the item was already in the target
	// partition (or raced with another migrator), which counts as
	// success.
	MigrationAlreadyDone MigrationOutcome = "already_done"
)

// Maintenance is the offline repair and migration surface.
type Maintenance interface {
	// ScanFailedExecutions pages through rollups with a positive open
	// error count.
	ScanFailedExecutions(ctx context.Context, token PageToken, limit int) ([]*FailedExecution, PageToken, error)

	// CountLinks returns the number of links under one execution.
	CountLinks(ctx context.Context, executionID string) (int, error)

	// DeleteFailedExecution removes one rollup row.
	DeleteFailedExecution(ctx context.Context, executionID string) error

	// ScanLegacyCountIndex pages through error codes still filed under
	// the legacy shared count-index partition.
	ScanLegacyCountIndex(ctx context.Context, token PageToken, limit int) ([]string, PageToken, error)

	// RepartitionError moves one error aggregate to the dedicated
	// count-index partition. Safe to repeat and to run concurrently.
	RepartitionError(ctx context.Context, code string) (MigrationOutcome, error)
}
