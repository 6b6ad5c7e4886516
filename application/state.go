package application

import (
	"context"
	"errors"
	"time"

	"github.com/elephant-oracle/tracker-go/domain/event"
	"github.com/elephant-oracle/tracker-go/domain/execution"
	"github.com/elephant-oracle/tracker-go/domain/telemetry"
	"github.com/elephant-oracle/tracker-go/infrastructure/logging"
	"github.com/elephant-oracle/tracker-go/infrastructure/observability"
	"github.com/elephant-oracle/tracker-go/infrastructure/statemachine"
)

// upsertRetryAttempts bounds reload-and-retry cycles after a version
// conflict. Conflicts mean another delivery for the same execution won
// the write; the retry re-reads and re-checks monotonicity against the
// winner.
const upsertRetryAttempts = 3

// SkipReasonStale is recorded when an event is older than the stored
// state.
const SkipReasonStale = "stale_event"

// StateService applies workflow progress events to execution states
// and the step-aggregate counters derived from them.
type StateService struct {
	states  execution.Store
	tracer  telemetry.Tracer
	metrics *observability.TrackerMetrics
}

// StateConfig contains configuration for the state service.
type StateConfig struct {
	States  execution.Store
	Tracer  telemetry.Tracer
	Metrics *observability.TrackerMetrics
}

// NewStateService creates a new state service.
func NewStateService(config StateConfig) (*StateService, error) {
	if config.States == nil {
		return nil, errors.New("execution store is required")
	}

	s := &StateService{
		states:  config.States,
		tracer:  config.Tracer,
		metrics: config.Metrics,
	}
	if s.tracer == nil {
		s.tracer = observability.NewNoopTracer()
	}
	if s.metrics == nil {
		s.metrics = observability.NewTrackerMetrics(observability.NewNoopMeter())
	}
	return s, nil
}

// UpsertExecutionStateAndUpdateAggregates applies one workflow event
// to the execution's state row, shifting the step-aggregate counters
// the transition crosses in the same store transaction. An event older
// than the stored state is skipped and leaves the row untouched; an
// equal-time event is accepted. A version conflict reloads the state
// and retries, re-checking monotonicity against the winner, a bounded
// number of times before propagating.
func (s *StateService) UpsertExecutionStateAndUpdateAggregates(ctx context.Context, env event.Envelope) (*execution.UpsertResult, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.StartSpan(ctx, "state.upsert",
		telemetry.WithAttributes(
			telemetry.String("execution.id", env.Detail.ExecutionID),
			telemetry.String("event.id", env.ID),
		),
	)
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= upsertRetryAttempts; attempt++ {
		result, err := s.tryUpsert(ctx, env)
		if err == nil {
			s.metrics.RecordUpsert(ctx, result.Accepted, result.SkipReason)
			return result, nil
		}
		if !errors.Is(err, execution.ErrVersionConflict) && !errors.Is(err, execution.ErrStateExists) {
			span.RecordError(err)
			return nil, err
		}

		lastErr = err
		logging.Debug().
			Add(logging.ExecutionID(env.Detail.ExecutionID)).
			Add(logging.EventID(env.ID)).
			Add(logging.Attempt(attempt)).
			Msg("state write contended, reloading")
	}

	s.metrics.RecordUpsert(ctx, false, "version_conflict")
	span.RecordError(lastErr)
	return nil, lastErr
}

// tryUpsert runs one read-check-write cycle.
func (s *StateService) tryUpsert(ctx context.Context, env event.Envelope) (*execution.UpsertResult, error) {
	detail := env.Detail

	prev, err := s.states.Get(ctx, detail.ExecutionID)
	if err != nil && !errors.Is(err, execution.ErrStateNotFound) {
		return nil, err
	}

	next := stateFromEvent(env)

	if prev == nil {
		next.Version = 1
		if err := s.states.Create(ctx, next, execution.ComputeShift(nil, &next)); err != nil {
			return nil, err
		}

		logging.Info().
			Add(logging.ExecutionID(detail.ExecutionID)).
			Add(logging.EventID(env.ID)).
			Add(logging.County(detail.County)).
			Add(logging.Phase(detail.Phase)).
			Add(logging.Step(detail.Step)).
			Add(logging.Bucket(next.Bucket)).
			Msg("execution state created")

		created := next
		return &execution.UpsertResult{Accepted: true, New: &created}, nil
	}

	if env.Time.Before(prev.LastEventAt) {
		logging.Info().
			Add(logging.ExecutionID(detail.ExecutionID)).
			Add(logging.EventID(env.ID)).
			Add(logging.Reason(SkipReasonStale)).
			Msg("event older than stored state, skipped")

		return &execution.UpsertResult{
			Accepted:   false,
			SkipReason: SkipReasonStale,
			Previous:   prev,
			New:        prev,
		}, nil
	}

	s.checkLifecycle(prev, detail.Status, env.Time, env.ID)

	next.Version = prev.Version + 1
	if err := s.states.Update(ctx, next, prev.Version, execution.ComputeShift(prev, &next)); err != nil {
		return nil, err
	}

	logging.Debug().
		Add(logging.ExecutionID(detail.ExecutionID)).
		Add(logging.EventID(env.ID)).
		Add(logging.Phase(detail.Phase)).
		Add(logging.Step(detail.Step)).
		Add(logging.Bucket(next.Bucket)).
		Add(logging.Version(next.Version)).
		Msg("execution state updated")

	updated := next
	return &execution.UpsertResult{Accepted: true, Previous: prev, New: &updated}, nil
}

// checkLifecycle replays the stored position and the incoming status
// through the workflow statechart. A status change without an edge is
// still applied per the time rule, but logged so anomalous producers
// surface in triage.
func (s *StateService) checkLifecycle(prev *execution.State, to event.Status, at time.Time, eventID string) {
	machine, err := statemachine.NewWorkflowMachine()
	if err != nil {
		logging.Warn().
			Add(logging.ErrorField(err)).
			Msg("workflow statechart unavailable")
		return
	}

	lc := statemachine.NewLifecycle(machine, statemachine.NewContext(prev.ExecutionID))
	lc.Start()
	defer lc.Stop()

	if err := lc.ResumeFrom(prev.Status, prev.LastEventAt); err != nil {
		logging.Warn().
			Add(logging.ExecutionID(prev.ExecutionID)).
			Add(logging.ErrorField(err)).
			Msg("lifecycle restore failed")
		return
	}

	if err := lc.Advance(to, at, "event "+eventID); err != nil {
		logging.Warn().
			Add(logging.ExecutionID(prev.ExecutionID)).
			Add(logging.EventID(eventID)).
			Add(logging.Str("from_status", string(prev.Status))).
			Add(logging.Str("to_status", string(to))).
			Msg("status change outside the workflow statechart")
	}
}

// stateFromEvent builds the stored state an accepted event produces.
// The caller sets Version.
func stateFromEvent(env event.Envelope) execution.State {
	detail := env.Detail
	return execution.State{
		ExecutionID: detail.ExecutionID,
		County:      detail.County,
		DataGroup:   detail.DataGroup,
		Phase:       detail.Phase,
		Step:        detail.Step,
		Bucket:      execution.BucketFor(detail.Status),
		Status:      detail.Status,
		LastEventID: env.ID,
		LastEventAt: env.Time,
	}
}
