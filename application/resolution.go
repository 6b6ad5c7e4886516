package application

import (
	"context"
	"errors"

	"github.com/elephant-oracle/tracker-go/domain/event"
	"github.com/elephant-oracle/tracker-go/domain/failure"
	"github.com/elephant-oracle/tracker-go/domain/telemetry"
	"github.com/elephant-oracle/tracker-go/infrastructure/logging"
	"github.com/elephant-oracle/tracker-go/infrastructure/observability"
)

// ResolutionService handles resolution signals from the repair layer:
// deleting resolved errors, marking repair outcomes, and removing
// whole executions.
type ResolutionService struct {
	failures failure.Store
	tracer   telemetry.Tracer
	metrics  *observability.TrackerMetrics
}

// ResolutionConfig contains configuration for the resolution service.
type ResolutionConfig struct {
	Failures failure.Store
	Tracer   telemetry.Tracer
	Metrics  *observability.TrackerMetrics
}

// NewResolutionService creates a new resolution service.
func NewResolutionService(config ResolutionConfig) (*ResolutionService, error) {
	if config.Failures == nil {
		return nil, errors.New("failure store is required")
	}

	s := &ResolutionService{
		failures: config.Failures,
		tracer:   config.Tracer,
		metrics:  config.Metrics,
	}
	if s.tracer == nil {
		s.tracer = observability.NewNoopTracer()
	}
	if s.metrics == nil {
		s.metrics = observability.NewTrackerMetrics(observability.NewNoopMeter())
	}
	return s, nil
}

// Resolve handles an "error resolved" signal: links matching the
// detail are deleted and newly orphaned aggregates are swept. When the
// detail names an execution the resolution is execution-scoped, even
// if it also names a code; a code alone resolves the error across all
// executions.
func (s *ResolutionService) Resolve(ctx context.Context, detail event.ResolutionDetail) (*failure.ResolutionResult, error) {
	if err := detail.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.StartSpan(ctx, "resolution.resolve",
		telemetry.WithAttributes(
			telemetry.String("execution.id", detail.ExecutionID),
			telemetry.String("error.code", detail.ErrorCode),
		),
	)
	defer span.End()

	var (
		result *failure.ResolutionResult
		scope  string
		err    error
	)
	if detail.ExecutionID != "" {
		scope = "execution"
		result, err = s.failures.DeleteErrorsForExecution(ctx, detail.ExecutionID)
	} else {
		scope = "error"
		result, err = s.failures.DeleteErrorFromAllExecutions(ctx, detail.ErrorCode)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.metrics.RecordResolution(ctx, scope, result.DeletedCount)
	logging.Info().
		Add(logging.ExecutionID(detail.ExecutionID)).
		Add(logging.ErrorCode(detail.ErrorCode)).
		Add(logging.Count(result.DeletedCount)).
		Add(logging.Int("orphans_removed", len(result.OrphanedCodesRemoved))).
		Msg("resolved errors deleted")

	return result, nil
}

// FailedToResolve handles an "error failed to resolve" signal: links
// matching the detail transition to maybe-unrecoverable so repair
// stops retrying them.
func (s *ResolutionService) FailedToResolve(ctx context.Context, detail event.ResolutionDetail) (*failure.MarkResult, error) {
	if err := detail.Validate(); err != nil {
		return nil, err
	}
	return s.MarkUnrecoverable(ctx, failure.Selector{
		ExecutionID: detail.ExecutionID,
		ErrorCode:   detail.ErrorCode,
	})
}

// MarkMaybeSolved transitions matching links to maybe-solved, pending
// confirmation by the next pipeline run.
func (s *ResolutionService) MarkMaybeSolved(ctx context.Context, sel failure.Selector) (*failure.MarkResult, error) {
	ctx, span := s.tracer.StartSpan(ctx, "resolution.mark_maybe_solved")
	defer span.End()

	result, err := s.failures.MarkMaybeSolved(ctx, sel)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.metrics.RecordMark(ctx, "maybe_solved", result.UpdatedCount)
	logging.Info().
		Add(logging.ExecutionID(sel.ExecutionID)).
		Add(logging.ErrorCode(sel.ErrorCode)).
		Add(logging.Count(result.UpdatedCount)).
		Msg("errors marked maybe-solved")

	return result, nil
}

// MarkUnrecoverable transitions matching links to
// maybe-unrecoverable.
func (s *ResolutionService) MarkUnrecoverable(ctx context.Context, sel failure.Selector) (*failure.MarkResult, error) {
	ctx, span := s.tracer.StartSpan(ctx, "resolution.mark_unrecoverable")
	defer span.End()

	result, err := s.failures.MarkUnrecoverable(ctx, sel)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.metrics.RecordMark(ctx, "unrecoverable", result.UpdatedCount)
	logging.Info().
		Add(logging.ExecutionID(sel.ExecutionID)).
		Add(logging.ErrorCode(sel.ErrorCode)).
		Add(logging.Count(result.UpdatedCount)).
		Msg("errors marked unrecoverable")

	return result, nil
}

// DeleteExecution removes the rollup and every link under one
// execution, then sweeps aggregates the removal orphaned.
func (s *ResolutionService) DeleteExecution(ctx context.Context, executionID string) (*failure.ResolutionResult, error) {
	ctx, span := s.tracer.StartSpan(ctx, "resolution.delete_execution",
		telemetry.WithAttributes(telemetry.String("execution.id", executionID)),
	)
	defer span.End()

	codes, err := s.failures.DeleteExecution(ctx, executionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if codes == nil {
		return &failure.ResolutionResult{}, nil
	}

	orphaned, err := s.failures.DeleteOrphanedAggregates(ctx, codes)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := &failure.ResolutionResult{
		DeletedCount:         len(codes),
		AffectedExecutionIDs: []string{executionID},
		DeletedErrorCodes:    codes,
		OrphanedCodesRemoved: orphaned,
	}

	s.metrics.RecordResolution(ctx, "execution_delete", result.DeletedCount)
	logging.Info().
		Add(logging.ExecutionID(executionID)).
		Add(logging.Count(result.DeletedCount)).
		Add(logging.Int("orphans_removed", len(orphaned))).
		Msg("execution deleted")

	return result, nil
}
