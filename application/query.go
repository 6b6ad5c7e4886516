package application

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/elephant-oracle/tracker-go/domain/cache"
	"github.com/elephant-oracle/tracker-go/domain/execution"
	"github.com/elephant-oracle/tracker-go/domain/failure"
	"github.com/elephant-oracle/tracker-go/domain/telemetry"
	"github.com/elephant-oracle/tracker-go/infrastructure/observability"
)

// defaultQueryTTL is how long polled query results are served from the
// cache. The auto-repair process polls top-failed faster than triage
// data changes.
const defaultQueryTTL = 15 * time.Second

// Cache keys for the polled queries.
const (
	cacheKeyTopFailed       = "top-failed"
	cacheKeyTopErrorsPrefix = "top-errors:"
)

// QueryService answers the read-side queries behind the CLI query
// commands and the auto-repair poller.
type QueryService struct {
	failures failure.Store
	states   execution.Store
	cache    cache.Cache
	ttl      time.Duration
	tracer   telemetry.Tracer
}

// QueryConfig contains configuration for the query service.
type QueryConfig struct {
	Failures failure.Store
	States   execution.Store

	// Cache is optional; nil disables result caching.
	Cache cache.Cache

	// TTL overrides the default cache lifetime.
	TTL time.Duration

	Tracer telemetry.Tracer
}

// NewQueryService creates a new query service.
func NewQueryService(config QueryConfig) (*QueryService, error) {
	if config.Failures == nil {
		return nil, errors.New("failure store is required")
	}
	if config.States == nil {
		return nil, errors.New("execution store is required")
	}

	s := &QueryService{
		failures: config.Failures,
		states:   config.States,
		cache:    config.Cache,
		ttl:      config.TTL,
		tracer:   config.Tracer,
	}
	if s.ttl <= 0 {
		s.ttl = defaultQueryTTL
	}
	if s.tracer == nil {
		s.tracer = observability.NewNoopTracer()
	}
	return s, nil
}

// TopFailedExecution returns the execution with the most error
// occurrences, nil when none are failed. The result is cached briefly;
// an absent result is cached too, so an idle system is not re-queried
// on every poll.
func (s *QueryService) TopFailedExecution(ctx context.Context) (*failure.FailedExecution, error) {
	ctx, span := s.tracer.StartSpan(ctx, "query.top_failed")
	defer span.End()

	return cachedQuery(ctx, s, cacheKeyTopFailed, func(ctx context.Context) (*failure.FailedExecution, error) {
		return s.failures.TopFailedExecution(ctx)
	})
}

// TopErrors returns up to limit error aggregates ordered by descending
// total count. The result is cached briefly per limit.
func (s *QueryService) TopErrors(ctx context.Context, limit int) ([]*failure.ErrorRecord, error) {
	ctx, span := s.tracer.StartSpan(ctx, "query.top_errors",
		telemetry.WithAttributes(telemetry.Int("limit", limit)),
	)
	defer span.End()

	key := cacheKeyTopErrorsPrefix + strconv.Itoa(limit)
	return cachedQuery(ctx, s, key, func(ctx context.Context) ([]*failure.ErrorRecord, error) {
		return s.failures.TopErrorsByCount(ctx, limit)
	})
}

// ErrorsByType returns aggregates sharing a coarse type prefix.
func (s *QueryService) ErrorsByType(ctx context.Context, errorType string, limit int) ([]*failure.ErrorRecord, error) {
	ctx, span := s.tracer.StartSpan(ctx, "query.errors_by_type",
		telemetry.WithAttributes(telemetry.String("error.type", errorType)),
	)
	defer span.End()

	return s.failures.ListErrorsByType(ctx, errorType, limit)
}

// ErrorDetail pairs an error aggregate with the executions linked to
// it.
type ErrorDetail struct {
	Record *failure.ErrorRecord          `json:"record"`
	Links  []*failure.ExecutionErrorLink `json:"links"`
}

// ErrorByCode returns one error aggregate with its links.
func (s *QueryService) ErrorByCode(ctx context.Context, code string) (*ErrorDetail, error) {
	ctx, span := s.tracer.StartSpan(ctx, "query.error",
		telemetry.WithAttributes(telemetry.String("error.code", code)),
	)
	defer span.End()

	record, err := s.failures.GetError(ctx, code)
	if err != nil {
		return nil, err
	}
	links, err := s.failures.LinksForError(ctx, code)
	if err != nil {
		return nil, err
	}
	return &ErrorDetail{Record: record, Links: links}, nil
}

// ExecutionErrors pairs an execution's rollup with its links.
type ExecutionErrors struct {
	Execution *failure.FailedExecution      `json:"execution"`
	Links     []*failure.ExecutionErrorLink `json:"links"`
}

// ExecutionByID returns one execution's rollup with its links.
func (s *QueryService) ExecutionByID(ctx context.Context, executionID string) (*ExecutionErrors, error) {
	ctx, span := s.tracer.StartSpan(ctx, "query.execution",
		telemetry.WithAttributes(telemetry.String("execution.id", executionID)),
	)
	defer span.End()

	rollup, err := s.failures.GetFailedExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	links, err := s.failures.LinksForExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	return &ExecutionErrors{Execution: rollup, Links: links}, nil
}

// StepAggregates returns the live step counters for one
// (county, data group) partition.
func (s *QueryService) StepAggregates(ctx context.Context, county, dataGroup string) ([]*execution.StepAggregate, error) {
	ctx, span := s.tracer.StartSpan(ctx, "query.step_aggregates",
		telemetry.WithAttributes(
			telemetry.String("county", county),
			telemetry.String("data.group", dataGroup),
		),
	)
	defer span.End()

	return s.states.ListStepAggregates(ctx, county, dataGroup)
}

// StepAcrossCounties returns the per-county counters for one
// (phase, step, data group).
func (s *QueryService) StepAcrossCounties(ctx context.Context, phase, step, dataGroup string) ([]*execution.StepAggregate, error) {
	ctx, span := s.tracer.StartSpan(ctx, "query.step_across_counties",
		telemetry.WithAttributes(
			telemetry.String("phase", phase),
			telemetry.String("step", step),
		),
	)
	defer span.End()

	return s.states.ListByStep(ctx, phase, step, dataGroup)
}

// RecentStates returns up to limit execution states, most recent event
// first.
func (s *QueryService) RecentStates(ctx context.Context, limit int) ([]*execution.State, error) {
	ctx, span := s.tracer.StartSpan(ctx, "query.recent_states",
		telemetry.WithAttributes(telemetry.Int("limit", limit)),
	)
	defer span.End()

	return s.states.ListStates(ctx, limit)
}

// ExecutionState returns one execution's state row.
func (s *QueryService) ExecutionState(ctx context.Context, executionID string) (*execution.State, error) {
	ctx, span := s.tracer.StartSpan(ctx, "query.execution_state",
		telemetry.WithAttributes(telemetry.String("execution.id", executionID)),
	)
	defer span.End()

	return s.states.Get(ctx, executionID)
}

// cachedQuery serves key from the cache when a fresh entry exists,
// otherwise loads and caches the result. Cache failures never fail the
// query; a corrupt entry falls through to a fresh load.
func cachedQuery[T any](ctx context.Context, s *QueryService, key string, load func(context.Context) (T, error)) (T, error) {
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var v T
			if err := json.Unmarshal(data, &v); err == nil {
				return v, nil
			}
		}
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(v); err == nil {
			_ = s.cache.Set(ctx, key, data, cache.SetOptions{TTL: s.ttl})
		}
	}
	return v, nil
}
