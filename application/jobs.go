package application

import (
	"context"

	"github.com/elephant-oracle/tracker-go/domain/report"
	"github.com/elephant-oracle/tracker-go/infrastructure/logging"
)

// Job names as they appear in run summaries, metrics, and logs.
const (
	// JobRepairOrphans removes failed-execution rollups whose links are
	// gone.
	JobRepairOrphans = "repair-orphans"

	// JobMigrateErrorIndex moves error aggregates off the legacy shared
	// count-index partition.
	JobMigrateErrorIndex = "migrate-error-index"
)

// Per-item outcomes recorded by the maintenance jobs.
const (
	outcomeFixed       = "fixed"
	outcomeAlreadyDone = "already_done"
	outcomeFailed      = "failed"
)

// defaultScanPageSize is the page size for maintenance scans.
const defaultScanPageSize = 100

// publishSummary delivers the run summary to the sink. Delivery is
// best-effort; a failed write is logged and the run's own outcome
// stands.
func publishSummary(ctx context.Context, sink report.Sink, summary *report.Summary) {
	if sink == nil {
		return
	}
	if err := sink.Write(ctx, summary); err != nil {
		logging.Warn().
			Add(logging.Str("job", summary.Job)).
			Add(logging.Str("run_id", summary.RunID)).
			Add(logging.ErrorField(err)).
			Msg("run summary not delivered")
	}
}
