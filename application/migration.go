package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/elephant-oracle/tracker-go/domain/failure"
	"github.com/elephant-oracle/tracker-go/domain/report"
	"github.com/elephant-oracle/tracker-go/domain/telemetry"
	"github.com/elephant-oracle/tracker-go/infrastructure/logging"
	"github.com/elephant-oracle/tracker-go/infrastructure/observability"
	"github.com/elephant-oracle/tracker-go/infrastructure/resilience"
)

// MigrationService moves error aggregates off the legacy shared
// count-index partition onto the dedicated one. The job is
// idempotent: an aggregate already moved, or moved concurrently by
// another run, counts as done.
type MigrationService struct {
	maintenance failure.Maintenance
	executor    *resilience.Executor[failure.MigrationOutcome]
	sink        report.Sink
	tracer      telemetry.Tracer
	metrics     *observability.TrackerMetrics
	clock       func() time.Time
	newRunID    func() string
}

// MigrationConfig contains configuration for the migration service.
type MigrationConfig struct {
	Maintenance failure.Maintenance

	// Executor bounds per-item concurrency and retries transient store
	// faults.
	Executor *resilience.Executor[failure.MigrationOutcome]

	// Sink receives the run summary. Optional.
	Sink report.Sink

	Tracer  telemetry.Tracer
	Metrics *observability.TrackerMetrics
}

// NewMigrationService creates a new migration service.
func NewMigrationService(config MigrationConfig) (*MigrationService, error) {
	if config.Maintenance == nil {
		return nil, errors.New("maintenance store is required")
	}

	s := &MigrationService{
		maintenance: config.Maintenance,
		executor:    config.Executor,
		sink:        config.Sink,
		tracer:      config.Tracer,
		metrics:     config.Metrics,
		clock:       time.Now,
		newRunID:    uuid.NewString,
	}
	if s.executor == nil {
		s.executor = resilience.NewDefault[failure.MigrationOutcome]()
	}
	if s.tracer == nil {
		s.tracer = observability.NewNoopTracer()
	}
	if s.metrics == nil {
		s.metrics = observability.NewTrackerMetrics(observability.NewNoopMeter())
	}
	return s, nil
}

// MigrationOptions controls one migration run.
type MigrationOptions struct {
	// PageSize overrides the scan page size.
	PageSize int
}

// MigrateErrorIndex pages through the legacy count-index partition and
// re-partitions every aggregate still filed there. Paging continues
// from the scan token even as migrated items leave the partition; the
// token is a key position, not an offset.
func (s *MigrationService) MigrateErrorIndex(ctx context.Context, opts MigrationOptions) (*report.Summary, error) {
	ctx, span := s.tracer.StartSpan(ctx, "job.migrate_error_index")
	defer span.End()

	started := s.clock()
	summary := &report.Summary{
		RunID:     s.newRunID(),
		Job:       JobMigrateErrorIndex,
		StartedAt: started,
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultScanPageSize
	}

	logging.Info().
		Add(logging.Component("migration")).
		Add(logging.Str("run_id", summary.RunID)).
		Msg("error-index migration started")

	var token failure.PageToken
	for page := 1; ; page++ {
		codes, next, err := s.maintenance.ScanLegacyCountIndex(ctx, token, pageSize)
		if err != nil {
			span.RecordError(err)
			return summary, err
		}

		s.migratePage(ctx, codes, summary)

		logging.Debug().
			Add(logging.Component("migration")).
			Add(logging.Str("run_id", summary.RunID)).
			Add(logging.Int("page", page)).
			Add(logging.Count(len(codes))).
			Msg("legacy index page scanned")

		if next.Empty() {
			break
		}
		token = next
	}

	duration := s.clock().Sub(started)
	summary.DurationSeconds = duration.Seconds()
	s.metrics.RecordJobRun(ctx, JobMigrateErrorIndex, duration)
	publishSummary(ctx, s.sink, summary)

	logging.Info().
		Add(logging.Component("migration")).
		Add(logging.Str("run_id", summary.RunID)).
		Add(logging.Int("scanned", summary.Scanned)).
		Add(logging.Int("migrated", summary.Fixed)).
		Add(logging.Int("already_done", summary.AlreadyDone)).
		Add(logging.Int("failed", summary.Failed)).
		Add(logging.Duration(duration)).
		Msg("error-index migration finished")

	return summary, nil
}

// migratePage re-partitions one page of codes with bounded concurrency
// and folds the outcomes into the summary.
func (s *MigrationService) migratePage(ctx context.Context, codes []string, summary *report.Summary) {
	outcomes := make([]failure.MigrationOutcome, len(codes))
	errs := make([]error, len(codes))

	sem := make(chan struct{}, s.executor.Concurrency())
	var wg sync.WaitGroup
	for i := range codes {
		wg.Add(1)
		sem <- struct{}{}

		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			outcomes[i], errs[i] = s.executor.Execute(ctx, func(ctx context.Context) (failure.MigrationOutcome, error) {
				return s.maintenance.RepartitionError(ctx, codes[i])
			})
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		summary.Scanned++

		if errs[i] != nil {
			summary.Failed++
			summary.FailedItems = append(summary.FailedItems, code)
			s.metrics.RecordJobItem(ctx, JobMigrateErrorIndex, outcomeFailed)
			logging.Error().
				Add(logging.Component("migration")).
				Add(logging.ErrorCode(code)).
				Add(logging.ErrorField(errs[i])).
				Msg("aggregate migration failed")
			continue
		}

		switch outcomes[i] {
		case failure.MigrationMigrated:
			summary.Fixed++
			s.metrics.RecordJobItem(ctx, JobMigrateErrorIndex, outcomeFixed)
			logging.Info().
				Add(logging.Component("migration")).
				Add(logging.ErrorCode(code)).
				Msg("aggregate re-partitioned")
		case failure.MigrationAlreadyDone:
			summary.AlreadyDone++
			s.metrics.RecordJobItem(ctx, JobMigrateErrorIndex, outcomeAlreadyDone)
			logging.Debug().
				Add(logging.Component("migration")).
				Add(logging.ErrorCode(code)).
				Msg("aggregate already re-partitioned")
		}
	}
}
