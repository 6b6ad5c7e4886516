// Package memory provides in-memory storage implementations.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/elephant-oracle/tracker-go/domain/event"
	"github.com/elephant-oracle/tracker-go/domain/failure"
)

// FailureStore is an in-memory implementation of failure.Store and
// failure.Maintenance with the same observable semantics as the
// DynamoDB store: idempotent event markers, open-count bookkeeping,
// orphan sweeps, and the legacy count-index partition.
type FailureStore struct {
	mu      sync.RWMutex
	records map[string]*failure.ErrorRecord
	links   map[string]map[string]*failure.ExecutionErrorLink
	rollups map[string]*failure.FailedExecution
	markers map[string]bool
	legacy  map[string]bool
}

// NewFailureStore creates a new in-memory failure store.
func NewFailureStore() *FailureStore {
	return &FailureStore{
		records: make(map[string]*failure.ErrorRecord),
		links:   make(map[string]map[string]*failure.ExecutionErrorLink),
		rollups: make(map[string]*failure.FailedExecution),
		markers: make(map[string]bool),
		legacy:  make(map[string]bool),
	}
}

// RecordEvent applies one workflow failure event under its idempotency
// marker. Replaying a recorded event changes nothing and reports
// Duplicate.
func (s *FailureStore) RecordEvent(ctx context.Context, env event.Envelope, now time.Time) (*failure.IngestResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := env.Validate(); err != nil {
		return nil, errors.Join(failure.ErrInvalidEvent, err)
	}

	codes := env.Detail.UniqueCodes()
	result := &failure.IngestResult{
		UniqueErrorCount: len(codes),
		TotalOccurrences: env.Detail.TotalOccurrences(),
	}
	for _, code := range codes {
		result.ErrorCodes = append(result.ErrorCodes, code.Code)
	}
	if len(codes) == 0 {
		return result, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.markers[env.ID] {
		result.Duplicate = true
		return result, nil
	}
	s.markers[env.ID] = true
	s.applyEvent(env, codes, now)
	result.ChunksApplied = 1
	return result, nil
}

// applyEvent mutates the rollup, aggregates, and links for one event.
// Caller holds the write lock.
func (s *FailureStore) applyEvent(env event.Envelope, codes []event.CodeCount, now time.Time) {
	detail := env.Detail

	rollup, ok := s.rollups[detail.ExecutionID]
	if !ok {
		rollup = &failure.FailedExecution{
			ExecutionID: detail.ExecutionID,
			Status:      failure.StatusFailed,
			CreatedAt:   now,
		}
		s.rollups[detail.ExecutionID] = rollup
	}

	merged := rollup.ErrorType
	newOpen := int64(0)
	for _, code := range codes {
		merged = failure.MergeErrorType(merged, failure.ErrorTypeOf(code.Code))
		if _, linked := s.links[detail.ExecutionID][code.Code]; !linked {
			newOpen++
		}
	}

	rollup.TotalOccurrences += detail.TotalOccurrences()
	rollup.UniqueErrorCount += int64(len(codes))
	rollup.OpenErrorCount += newOpen
	rollup.County = detail.County
	rollup.ErrorType = merged
	if detail.TaskToken != "" {
		rollup.TaskToken = detail.TaskToken
	}
	rollup.UpdatedAt = now

	for _, code := range codes {
		record, ok := s.records[code.Code]
		if !ok {
			record = &failure.ErrorRecord{
				Code:      code.Code,
				Status:    failure.StatusFailed,
				CreatedAt: now,
			}
			s.records[code.Code] = record
		}
		record.TotalCount += code.Count
		record.ErrorType = failure.ErrorTypeOf(code.Code)
		record.LatestExecutionID = detail.ExecutionID
		if d := detail.LastDetailFor(code.Code); len(d) > 0 {
			record.LastDetail = append(json.RawMessage(nil), d...)
		}
		record.UpdatedAt = now

		byCode := s.links[detail.ExecutionID]
		if byCode == nil {
			byCode = make(map[string]*failure.ExecutionErrorLink)
			s.links[detail.ExecutionID] = byCode
		}
		link, ok := byCode[code.Code]
		if !ok {
			link = &failure.ExecutionErrorLink{
				ExecutionID: detail.ExecutionID,
				ErrorCode:   code.Code,
				Status:      failure.StatusFailed,
				CreatedAt:   now,
			}
			byCode[code.Code] = link
		}
		link.Occurrences += code.Count
		link.County = detail.County
		link.UpdatedAt = now
	}
}

// DeleteExecution removes the rollup and every link under the
// execution and returns the codes the deleted links referenced.
func (s *FailureStore) DeleteExecution(ctx context.Context, executionID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, hasRollup := s.rollups[executionID]
	byCode := s.links[executionID]
	if !hasRollup && len(byCode) == 0 {
		return nil, nil
	}

	codes := sortedCodes(byCode)
	delete(s.links, executionID)
	delete(s.rollups, executionID)
	return codes, nil
}

// DeleteErrorsForExecution removes every link under one execution,
// zeroes the rollup's open count, and sweeps orphaned aggregates.
func (s *FailureStore) DeleteErrorsForExecution(ctx context.Context, executionID string) (*failure.ResolutionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byCode := s.links[executionID]
	result := &failure.ResolutionResult{}
	if len(byCode) == 0 {
		return result, nil
	}

	codes := sortedCodes(byCode)
	delete(s.links, executionID)
	if rollup, ok := s.rollups[executionID]; ok {
		rollup.OpenErrorCount = 0
		rollup.UpdatedAt = time.Now()
	}

	result.DeletedCount = len(codes)
	result.AffectedExecutionIDs = []string{executionID}
	result.DeletedErrorCodes = codes
	result.OrphanedCodesRemoved = s.sweepOrphans(codes)
	return result, nil
}

// DeleteErrorFromAllExecutions removes one error's links across all
// executions, deletes its aggregate, and drops each affected rollup's
// open count by one.
func (s *FailureStore) DeleteErrorFromAllExecutions(ctx context.Context, code string) (*failure.ResolutionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	executionIDs := s.executionsWithCode(code)
	if executionIDs == nil {
		executionIDs = []string{}
	}
	for _, id := range executionIDs {
		delete(s.links[id], code)
		if rollup, ok := s.rollups[id]; ok && rollup.OpenErrorCount >= 1 {
			rollup.OpenErrorCount--
			rollup.UpdatedAt = time.Now()
		}
	}
	delete(s.records, code)
	delete(s.legacy, code)

	return &failure.ResolutionResult{
		DeletedCount:         len(executionIDs),
		AffectedExecutionIDs: executionIDs,
		DeletedErrorCodes:    []string{code},
	}, nil
}

// MarkMaybeSolved transitions matching links (and the aggregate, when
// selecting by code) to StatusMaybeSolved.
func (s *FailureStore) MarkMaybeSolved(ctx context.Context, sel failure.Selector) (*failure.MarkResult, error) {
	return s.mark(ctx, sel, failure.StatusMaybeSolved)
}

// MarkUnrecoverable transitions matching links (and the aggregate, when
// selecting by code) to StatusMaybeUnrecoverable.
func (s *FailureStore) MarkUnrecoverable(ctx context.Context, sel failure.Selector) (*failure.MarkResult, error) {
	return s.mark(ctx, sel, failure.StatusMaybeUnrecoverable)
}

func (s *FailureStore) mark(ctx context.Context, sel failure.Selector, status failure.ErrorStatus) (*failure.MarkResult, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()

	result := &failure.MarkResult{}
	switch {
	case sel.ExecutionID != "" && sel.ErrorCode != "":
		if s.markLink(sel.ExecutionID, sel.ErrorCode, status, now) {
			result.UpdatedCount = 1
			result.AffectedExecutionIDs = []string{sel.ExecutionID}
		}

	case sel.ExecutionID != "":
		for _, code := range sortedCodes(s.links[sel.ExecutionID]) {
			if s.markLink(sel.ExecutionID, code, status, now) {
				result.UpdatedCount++
			}
		}
		if result.UpdatedCount > 0 {
			result.AffectedExecutionIDs = []string{sel.ExecutionID}
		}

	default:
		for _, id := range s.executionsWithCode(sel.ErrorCode) {
			if s.markLink(id, sel.ErrorCode, status, now) {
				result.UpdatedCount++
				result.AffectedExecutionIDs = append(result.AffectedExecutionIDs, id)
			}
		}
		if record, ok := s.records[sel.ErrorCode]; ok && record.Status != status {
			record.Status = status
			record.UpdatedAt = now
		}
	}
	return result, nil
}

// markLink reports false when the link is missing or already carries
// the target status.
func (s *FailureStore) markLink(executionID, code string, status failure.ErrorStatus, now time.Time) bool {
	link, ok := s.links[executionID][code]
	if !ok || link.Status == status {
		return false
	}
	link.Status = status
	link.UpdatedAt = now
	return true
}

// DeleteOrphanedAggregates deletes each listed aggregate iff no link
// references its code anymore, and returns the codes removed.
func (s *FailureStore) DeleteOrphanedAggregates(ctx context.Context, codes []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepOrphans(codes), nil
}

// sweepOrphans removes aggregates with zero remaining links. Caller
// holds the write lock.
func (s *FailureStore) sweepOrphans(codes []string) []string {
	var removed []string
	for _, code := range codes {
		if len(s.executionsWithCode(code)) > 0 {
			continue
		}
		if _, ok := s.records[code]; !ok {
			continue
		}
		delete(s.records, code)
		delete(s.legacy, code)
		removed = append(removed, code)
	}
	return removed
}

// GetError retrieves one error aggregate by code.
func (s *FailureStore) GetError(ctx context.Context, code string) (*failure.ErrorRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[code]
	if !ok {
		return nil, failure.ErrNotFound
	}
	return copyRecord(record), nil
}

// ListErrorsByType returns aggregates sharing a coarse type prefix, in
// code order.
func (s *FailureStore) ListErrorsByType(ctx context.Context, errorType string, limit int) ([]*failure.ErrorRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []*failure.ErrorRecord
	for _, record := range s.records {
		if failure.ErrorTypeOf(record.Code) != errorType {
			continue
		}
		records = append(records, copyRecord(record))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Code < records[j].Code
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// TopErrorsByCount returns aggregates ordered by descending total
// count.
func (s *FailureStore) TopErrorsByCount(ctx context.Context, limit int) ([]*failure.ErrorRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*failure.ErrorRecord, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, copyRecord(record))
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].TotalCount == records[j].TotalCount {
			return records[i].Code < records[j].Code
		}
		return records[i].TotalCount > records[j].TotalCount
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// GetFailedExecution retrieves one execution rollup.
func (s *FailureStore) GetFailedExecution(ctx context.Context, executionID string) (*failure.FailedExecution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rollup, ok := s.rollups[executionID]
	if !ok {
		return nil, failure.ErrNotFound
	}
	return copyRollup(rollup), nil
}

// TopFailedExecution returns the rollup with the highest total
// occurrence count, or nil when none exist.
func (s *FailureStore) TopFailedExecution(ctx context.Context) (*failure.FailedExecution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var top *failure.FailedExecution
	for _, rollup := range s.rollups {
		switch {
		case top == nil,
			rollup.TotalOccurrences > top.TotalOccurrences,
			rollup.TotalOccurrences == top.TotalOccurrences && rollup.ExecutionID < top.ExecutionID:
			top = rollup
		}
	}
	return copyRollup(top), nil
}

// LinksForExecution returns every link under one execution, in code
// order.
func (s *FailureStore) LinksForExecution(ctx context.Context, executionID string) ([]*failure.ExecutionErrorLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var links []*failure.ExecutionErrorLink
	for _, code := range sortedCodes(s.links[executionID]) {
		links = append(links, copyLink(s.links[executionID][code]))
	}
	return links, nil
}

// LinksForError returns every link referencing one error code, in
// execution order.
func (s *FailureStore) LinksForError(ctx context.Context, code string) ([]*failure.ExecutionErrorLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var links []*failure.ExecutionErrorLink
	for _, id := range s.executionsWithCode(code) {
		links = append(links, copyLink(s.links[id][code]))
	}
	return links, nil
}

// ScanFailedExecutions pages through rollups with a positive open
// error count, in execution order.
func (s *FailureStore) ScanFailedExecutions(ctx context.Context, token failure.PageToken, limit int) ([]*failure.FailedExecution, failure.PageToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.rollups))
	for id, rollup := range s.rollups {
		if rollup.OpenErrorCount > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	page, next := pageAfter(ids, token, limit)
	rollups := make([]*failure.FailedExecution, 0, len(page))
	for _, id := range page {
		rollups = append(rollups, copyRollup(s.rollups[id]))
	}
	return rollups, next, nil
}

// CountLinks returns the number of links under one execution.
func (s *FailureStore) CountLinks(ctx context.Context, executionID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.links[executionID]), nil
}

// DeleteFailedExecution removes one rollup row. Deleting an absent
// rollup is not an error.
func (s *FailureStore) DeleteFailedExecution(ctx context.Context, executionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rollups, executionID)
	return nil
}

// ScanLegacyCountIndex pages through error codes still filed under the
// legacy shared count-index partition.
func (s *FailureStore) ScanLegacyCountIndex(ctx context.Context, token failure.PageToken, limit int) ([]string, failure.PageToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := make([]string, 0, len(s.legacy))
	for code := range s.legacy {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	page, next := pageAfter(codes, token, limit)
	return page, next, nil
}

// RepartitionError moves one error aggregate to the dedicated
// count-index partition. Already-moved, missing, and raced codes all
// count as already done.
func (s *FailureStore) RepartitionError(ctx context.Context, code string) (failure.MigrationOutcome, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.legacy[code] {
		return failure.MigrationAlreadyDone, nil
	}
	delete(s.legacy, code)
	return failure.MigrationMigrated, nil
}

// SeedLegacyError stores an aggregate filed under the legacy count
// partition, as written by deployments predating the dedicated one.
// Test seeding helper for the migration path.
func (s *FailureStore) SeedLegacyError(record *failure.ErrorRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Code] = copyRecord(record)
	s.legacy[record.Code] = true
}

// SeedOrphanedRollup stores a rollup with open errors but no links, as
// left behind by interrupted deletes in older deployments. Test
// seeding helper for the repair path.
func (s *FailureStore) SeedOrphanedRollup(rollup *failure.FailedExecution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollups[rollup.ExecutionID] = copyRollup(rollup)
}

// Clear removes all stored state.
func (s *FailureStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*failure.ErrorRecord)
	s.links = make(map[string]map[string]*failure.ExecutionErrorLink)
	s.rollups = make(map[string]*failure.FailedExecution)
	s.markers = make(map[string]bool)
	s.legacy = make(map[string]bool)
}

// executionsWithCode returns the sorted execution ids holding a link
// for the code. Caller holds at least the read lock.
func (s *FailureStore) executionsWithCode(code string) []string {
	var ids []string
	for id, byCode := range s.links {
		if _, ok := byCode[code]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func sortedCodes(links map[string]*failure.ExecutionErrorLink) []string {
	codes := make([]string, 0, len(links))
	for code := range links {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// pageAfter slices one page out of a sorted id list, resuming after
// the token's id.
func pageAfter(ids []string, token failure.PageToken, limit int) ([]string, failure.PageToken) {
	start := 0
	if !token.Empty() {
		after := string(token)
		start = sort.SearchStrings(ids, after)
		if start < len(ids) && ids[start] == after {
			start++
		}
	}
	if limit <= 0 || start+limit >= len(ids) {
		return ids[start:], nil
	}
	page := ids[start : start+limit]
	return page, failure.PageToken(page[len(page)-1])
}

func copyRecord(r *failure.ErrorRecord) *failure.ErrorRecord {
	if r == nil {
		return nil
	}
	copied := *r
	copied.LastDetail = append(json.RawMessage(nil), r.LastDetail...)
	return &copied
}

func copyLink(l *failure.ExecutionErrorLink) *failure.ExecutionErrorLink {
	if l == nil {
		return nil
	}
	copied := *l
	return &copied
}

func copyRollup(r *failure.FailedExecution) *failure.FailedExecution {
	if r == nil {
		return nil
	}
	copied := *r
	return &copied
}

var (
	_ failure.Store       = (*FailureStore)(nil)
	_ failure.Maintenance = (*FailureStore)(nil)
)
