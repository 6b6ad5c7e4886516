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

// RepairService finds and removes failed-execution rollups whose links
// are all gone: rollups orphaned by partial resolutions or interrupted
// deletes.
type RepairService struct {
	maintenance failure.Maintenance
	executor    *resilience.Executor[int]
	sink        report.Sink
	tracer      telemetry.Tracer
	metrics     *observability.TrackerMetrics
	clock       func() time.Time
	newRunID    func() string
}

// RepairConfig contains configuration for the repair service.
type RepairConfig struct {
	Maintenance failure.Maintenance

	// Executor bounds per-item concurrency and retries transient store
	// faults.
	Executor *resilience.Executor[int]

	// Sink receives the run summary. Optional.
	Sink report.Sink

	Tracer  telemetry.Tracer
	Metrics *observability.TrackerMetrics
}

// NewRepairService creates a new repair service.
func NewRepairService(config RepairConfig) (*RepairService, error) {
	if config.Maintenance == nil {
		return nil, errors.New("maintenance store is required")
	}

	s := &RepairService{
		maintenance: config.Maintenance,
		executor:    config.Executor,
		sink:        config.Sink,
		tracer:      config.Tracer,
		metrics:     config.Metrics,
		clock:       time.Now,
		newRunID:    uuid.NewString,
	}
	if s.executor == nil {
		s.executor = resilience.NewDefault[int]()
	}
	if s.tracer == nil {
		s.tracer = observability.NewNoopTracer()
	}
	if s.metrics == nil {
		s.metrics = observability.NewTrackerMetrics(observability.NewNoopMeter())
	}
	return s, nil
}

// RepairOptions controls one repair run.
type RepairOptions struct {
	// DryRun reports orphans without deleting them.
	DryRun bool

	// Verify re-scans after a live run and counts orphans that remain.
	// Ignored with DryRun.
	Verify bool

	// PageSize overrides the scan page size.
	PageSize int
}

// RepairOrphans scans every rollup with open errors, counts its links,
// and deletes the rollups no link references anymore. The returned
// summary is also delivered to the sink; callers decide the process
// exit from Summary.Succeeded.
func (s *RepairService) RepairOrphans(ctx context.Context, opts RepairOptions) (*report.Summary, error) {
	ctx, span := s.tracer.StartSpan(ctx, "job.repair_orphans",
		telemetry.WithAttributes(telemetry.Bool("dry_run", opts.DryRun)),
	)
	defer span.End()

	started := s.clock()
	summary := &report.Summary{
		RunID:     s.newRunID(),
		Job:       JobRepairOrphans,
		DryRun:    opts.DryRun,
		StartedAt: started,
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultScanPageSize
	}
	mode := "live"
	if opts.DryRun {
		mode = "dry-run"
	}

	logging.Info().
		Add(logging.Component("repair")).
		Add(logging.Str("run_id", summary.RunID)).
		Add(logging.Str("mode", mode)).
		Msg("orphan repair started")

	var token failure.PageToken
	for page := 1; ; page++ {
		rollups, next, err := s.maintenance.ScanFailedExecutions(ctx, token, pageSize)
		if err != nil {
			span.RecordError(err)
			return summary, err
		}

		s.repairPage(ctx, rollups, opts.DryRun, summary)

		logging.Debug().
			Add(logging.Component("repair")).
			Add(logging.Str("run_id", summary.RunID)).
			Add(logging.Int("page", page)).
			Add(logging.Count(len(rollups))).
			Msg("rollup page scanned")

		if next.Empty() {
			break
		}
		token = next
	}

	if opts.Verify && !opts.DryRun {
		residual, err := s.verifyClean(ctx, pageSize)
		summary.Residual = residual
		if err != nil {
			span.RecordError(err)
			return summary, err
		}
	}

	duration := s.clock().Sub(started)
	summary.DurationSeconds = duration.Seconds()
	s.metrics.RecordJobRun(ctx, JobRepairOrphans, duration)
	publishSummary(ctx, s.sink, summary)

	logging.Info().
		Add(logging.Component("repair")).
		Add(logging.Str("run_id", summary.RunID)).
		Add(logging.Int("scanned", summary.Scanned)).
		Add(logging.Int("fixed", summary.Fixed)).
		Add(logging.Int("already_done", summary.AlreadyDone)).
		Add(logging.Int("failed", summary.Failed)).
		Add(logging.Int("residual", summary.Residual)).
		Add(logging.Duration(duration)).
		Msg("orphan repair finished")

	return summary, nil
}

// repairPage examines one page of rollups with bounded concurrency and
// folds the outcomes into the summary.
func (s *RepairService) repairPage(ctx context.Context, rollups []*failure.FailedExecution, dryRun bool, summary *report.Summary) {
	outcomes := make([]string, len(rollups))
	errs := make([]error, len(rollups))

	sem := make(chan struct{}, s.executor.Concurrency())
	var wg sync.WaitGroup
	for i := range rollups {
		wg.Add(1)
		sem <- struct{}{}

		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			outcomes[i], errs[i] = s.repairOne(ctx, rollups[i], dryRun)
		}(i)
	}
	wg.Wait()

	for i, rollup := range rollups {
		summary.Scanned++
		s.metrics.RecordJobItem(ctx, JobRepairOrphans, outcomes[i])

		switch outcomes[i] {
		case outcomeFixed:
			summary.Fixed++
		case outcomeAlreadyDone:
			summary.AlreadyDone++
		case outcomeFailed:
			summary.Failed++
			summary.FailedItems = append(summary.FailedItems, rollup.ExecutionID)
			logging.Error().
				Add(logging.Component("repair")).
				Add(logging.ExecutionID(rollup.ExecutionID)).
				Add(logging.ErrorField(errs[i])).
				Msg("rollup repair failed")
		}
	}
}

// repairOne classifies one rollup, deleting it when orphaned. A rollup
// that still holds links needs nothing. Both store calls run under the
// job executor.
func (s *RepairService) repairOne(ctx context.Context, rollup *failure.FailedExecution, dryRun bool) (string, error) {
	links, err := s.executor.Execute(ctx, func(ctx context.Context) (int, error) {
		return s.maintenance.CountLinks(ctx, rollup.ExecutionID)
	})
	if err != nil {
		return outcomeFailed, err
	}
	if links > 0 {
		return outcomeAlreadyDone, nil
	}

	if dryRun {
		logging.Info().
			Add(logging.Component("repair")).
			Add(logging.ExecutionID(rollup.ExecutionID)).
			Add(logging.Occurrences(rollup.TotalOccurrences)).
			Msg("orphaned rollup found")
		return outcomeFixed, nil
	}

	if _, err := s.executor.Execute(ctx, func(ctx context.Context) (int, error) {
		return 0, s.maintenance.DeleteFailedExecution(ctx, rollup.ExecutionID)
	}); err != nil {
		return outcomeFailed, err
	}

	logging.Info().
		Add(logging.Component("repair")).
		Add(logging.ExecutionID(rollup.ExecutionID)).
		Msg("orphaned rollup deleted")
	return outcomeFixed, nil
}

// verifyClean re-scans the rollups and counts orphans that remain.
func (s *RepairService) verifyClean(ctx context.Context, pageSize int) (int, error) {
	residual := 0
	var token failure.PageToken
	for {
		rollups, next, err := s.maintenance.ScanFailedExecutions(ctx, token, pageSize)
		if err != nil {
			return residual, err
		}
		for _, rollup := range rollups {
			links, err := s.executor.Execute(ctx, func(ctx context.Context) (int, error) {
				return s.maintenance.CountLinks(ctx, rollup.ExecutionID)
			})
			if err != nil {
				return residual, err
			}
			if links == 0 {
				residual++
				logging.Warn().
					Add(logging.Component("repair")).
					Add(logging.ExecutionID(rollup.ExecutionID)).
					Msg("orphaned rollup still present after repair")
			}
		}
		if next.Empty() {
			return residual, nil
		}
		token = next
	}
}
