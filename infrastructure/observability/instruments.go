package observability

import (
	"context"
	"time"

	"github.com/elephant-oracle/tracker-go/domain/telemetry"
)

// TrackerMetrics provides pre-built instruments for the tracker's
// write and maintenance paths. Construct once and share.
type TrackerMetrics struct {
	// EventsIngested counts ingested failure events.
	EventsIngested telemetry.Counter

	// IngestDuration records end-to-end ingest latency.
	IngestDuration telemetry.Histogram

	// ChunksWritten counts transaction chunks committed by ingest.
	ChunksWritten telemetry.Counter

	// StateUpserts counts state upsert outcomes.
	StateUpserts telemetry.Counter

	// ResolutionDeletes counts rows removed by resolution operations.
	ResolutionDeletes telemetry.Counter

	// MarksApplied counts link status transitions.
	MarksApplied telemetry.Counter

	// JobItems counts per-item outcomes of repair and migration jobs.
	JobItems telemetry.Counter

	// JobDuration records whole-job runtime.
	JobDuration telemetry.Histogram
}

// NewTrackerMetrics creates the tracker instrument bundle.
func NewTrackerMetrics(meter telemetry.Meter) *TrackerMetrics {
	return &TrackerMetrics{
		EventsIngested: meter.Counter("tracker.events_ingested_total",
			telemetry.WithDescription("Total number of ingested failure events"),
			telemetry.WithUnit("{event}"),
		),
		IngestDuration: meter.Histogram("tracker.ingest.duration_seconds",
			telemetry.WithDescription("Duration of event ingestion"),
			telemetry.WithUnit("s"),
		),
		ChunksWritten: meter.Counter("tracker.ingest.chunks_total",
			telemetry.WithDescription("Total number of committed ingest transaction chunks"),
			telemetry.WithUnit("{chunk}"),
		),
		StateUpserts: meter.Counter("tracker.state.upserts_total",
			telemetry.WithDescription("Total number of execution state upserts by outcome"),
			telemetry.WithUnit("{upsert}"),
		),
		ResolutionDeletes: meter.Counter("tracker.resolution.deletes_total",
			telemetry.WithDescription("Total number of rows removed by resolution"),
			telemetry.WithUnit("{row}"),
		),
		MarksApplied: meter.Counter("tracker.resolution.marks_total",
			telemetry.WithDescription("Total number of error status transitions"),
			telemetry.WithUnit("{link}"),
		),
		JobItems: meter.Counter("tracker.job.items_total",
			telemetry.WithDescription("Per-item outcomes of repair and migration jobs"),
			telemetry.WithUnit("{item}"),
		),
		JobDuration: meter.Histogram("tracker.job.duration_seconds",
			telemetry.WithDescription("Duration of repair and migration jobs"),
			telemetry.WithUnit("s"),
		),
	}
}

// RecordIngest records one ingested event.
func (m *TrackerMetrics) RecordIngest(ctx context.Context, duplicate bool, chunks int, duration time.Duration) {
	m.EventsIngested.Add(ctx, 1, telemetry.Bool("duplicate", duplicate))
	if chunks > 0 {
		m.ChunksWritten.Add(ctx, int64(chunks))
	}
	m.IngestDuration.Record(ctx, duration.Seconds())
}

// RecordUpsert records one state upsert outcome.
func (m *TrackerMetrics) RecordUpsert(ctx context.Context, accepted bool, reason string) {
	attrs := []telemetry.Attribute{telemetry.Bool("accepted", accepted)}
	if reason != "" {
		attrs = append(attrs, telemetry.String("reason", reason))
	}
	m.StateUpserts.Add(ctx, 1, attrs...)
}

// RecordResolution records rows removed by one resolution call.
func (m *TrackerMetrics) RecordResolution(ctx context.Context, scope string, deleted int) {
	m.ResolutionDeletes.Add(ctx, int64(deleted), telemetry.String("scope", scope))
}

// RecordMark records link transitions applied by one mark call.
func (m *TrackerMetrics) RecordMark(ctx context.Context, status string, updated int) {
	m.MarksApplied.Add(ctx, int64(updated), telemetry.String("status", status))
}

// RecordJobItem records one repair or migration item outcome.
func (m *TrackerMetrics) RecordJobItem(ctx context.Context, job, outcome string) {
	m.JobItems.Add(ctx, 1,
		telemetry.String("job", job),
		telemetry.String("outcome", outcome),
	)
}

// RecordJobRun records one whole job run.
func (m *TrackerMetrics) RecordJobRun(ctx context.Context, job string, duration time.Duration) {
	m.JobDuration.Record(ctx, duration.Seconds(), telemetry.String("job", job))
}
