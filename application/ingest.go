// Package application provides the tracker's application services:
// event ingest, resolution and marking, read-side queries, and the
// repair and migration jobs.
package application

import (
	"context"
	"errors"
	"time"

	"github.com/elephant-oracle/tracker-go/domain/event"
	"github.com/elephant-oracle/tracker-go/domain/execution"
	"github.com/elephant-oracle/tracker-go/domain/failure"
	"github.com/elephant-oracle/tracker-go/domain/telemetry"
	"github.com/elephant-oracle/tracker-go/infrastructure/logging"
	"github.com/elephant-oracle/tracker-go/infrastructure/observability"
)

// IngestService records workflow failure events: the error-side writes
// (aggregates, links, rollup) and the state-side write (execution
// state plus step-aggregate shift) for each envelope.
type IngestService struct {
	failures failure.Store
	states   *StateService
	tracer   telemetry.Tracer
	metrics  *observability.TrackerMetrics
	clock    func() time.Time
}

// IngestConfig contains configuration for the ingest service.
type IngestConfig struct {
	Failures failure.Store
	States   *StateService
	Tracer   telemetry.Tracer
	Metrics  *observability.TrackerMetrics
	Clock    func() time.Time
}

// NewIngestService creates a new ingest service.
func NewIngestService(config IngestConfig) (*IngestService, error) {
	if config.Failures == nil {
		return nil, errors.New("failure store is required")
	}
	if config.States == nil {
		return nil, errors.New("state service is required")
	}

	s := &IngestService{
		failures: config.Failures,
		states:   config.States,
		tracer:   config.Tracer,
		metrics:  config.Metrics,
		clock:    config.Clock,
	}
	if s.tracer == nil {
		s.tracer = observability.NewNoopTracer()
	}
	if s.metrics == nil {
		s.metrics = observability.NewTrackerMetrics(observability.NewNoopMeter())
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s, nil
}

// IngestOutcome reports what one delivered envelope changed.
type IngestOutcome struct {
	// Failures is the error-side result, nil when the error side was
	// skipped.
	Failures *failure.IngestResult `json:"failures,omitempty"`

	// State is the state-side result, nil when the state side was
	// skipped.
	State *execution.UpsertResult `json:"state,omitempty"`
}

// IngestOptions selects which sides of the write an envelope drives.
// The zero value runs both.
type IngestOptions struct {
	// ErrorsOnly skips the state-side write.
	ErrorsOnly bool

	// StateOnly skips the error-side write.
	StateOnly bool
}

// Ingest applies one envelope. The error side runs first; a state-side
// failure after a committed error side is safe to redeliver because
// the error side is idempotent under the event marker.
func (s *IngestService) Ingest(ctx context.Context, env event.Envelope, opts IngestOptions) (*IngestOutcome, error) {
	if err := env.Validate(); err != nil {
		return nil, errors.Join(failure.ErrInvalidEvent, err)
	}

	ctx, span := s.tracer.StartSpan(ctx, "ingest.event",
		telemetry.WithAttributes(
			telemetry.String("event.id", env.ID),
			telemetry.String("execution.id", env.Detail.ExecutionID),
			telemetry.Int("error.count", len(env.Detail.Errors)),
		),
	)
	defer span.End()

	outcome := &IngestOutcome{}

	if !opts.StateOnly {
		started := s.clock()
		result, err := s.failures.RecordEvent(ctx, env, started)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		s.metrics.RecordIngest(ctx, result.Duplicate, result.ChunksApplied, s.clock().Sub(started))
		outcome.Failures = result

		evt := logging.Info().
			Add(logging.EventID(env.ID)).
			Add(logging.ExecutionID(env.Detail.ExecutionID)).
			Add(logging.UniqueCodes(result.UniqueErrorCount)).
			Add(logging.Occurrences(result.TotalOccurrences))
		if result.Duplicate {
			evt.Msg("event already recorded, replay skipped")
		} else {
			evt.Msg("failure event recorded")
		}
	}

	if !opts.ErrorsOnly {
		result, err := s.states.UpsertExecutionStateAndUpdateAggregates(ctx, env)
		if err != nil {
			span.RecordError(err)
			return outcome, err
		}
		outcome.State = result
	}

	return outcome, nil
}
