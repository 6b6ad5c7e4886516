package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/elephant-oracle/tracker-go/domain/event"
	"github.com/elephant-oracle/tracker-go/domain/failure"
	"github.com/elephant-oracle/tracker-go/infrastructure/storage/memory"
)

func failureEvent(id, executionID string, codes ...string) event.Envelope {
	entries := make([]event.ErrorEntry, 0, len(codes))
	for _, code := range codes {
		entries = append(entries, event.ErrorEntry{Code: code})
	}
	return event.Envelope{
		ID:   id,
		Time: time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC),
		Detail: event.WorkflowDetail{
			ExecutionID: executionID,
			County:      "adams",
			Status:      event.StatusFailed,
			Phase:       "transform",
			Step:        "normalize",
			Errors:      entries,
		},
	}
}

func mustRecord(t *testing.T, store *memory.FailureStore, env event.Envelope) *failure.IngestResult {
	t.Helper()
	result, err := store.RecordEvent(context.Background(), env, time.Now())
	if err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}
	return result
}

func TestFailureStore_RecordEvent(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	ctx := context.Background()

	result := mustRecord(t, store, failureEvent("evt-1", "exec-1", "VA101", "VB202", "VA101"))

	if result.Duplicate {
		t.Error("first RecordEvent() should not be a duplicate")
	}
	if result.UniqueErrorCount != 2 {
		t.Errorf("UniqueErrorCount = %d, want 2", result.UniqueErrorCount)
	}
	if result.TotalOccurrences != 3 {
		t.Errorf("TotalOccurrences = %d, want 3", result.TotalOccurrences)
	}
	if len(result.ErrorCodes) != 2 || result.ErrorCodes[0] != "VA101" || result.ErrorCodes[1] != "VB202" {
		t.Errorf("ErrorCodes = %v, want [VA101 VB202]", result.ErrorCodes)
	}

	record, err := store.GetError(ctx, "VA101")
	if err != nil {
		t.Fatalf("GetError() error = %v", err)
	}
	if record.TotalCount != 2 {
		t.Errorf("VA101 TotalCount = %d, want 2", record.TotalCount)
	}
	if record.ErrorType != "VA" {
		t.Errorf("VA101 ErrorType = %q, want VA", record.ErrorType)
	}
	if record.LatestExecutionID != "exec-1" {
		t.Errorf("VA101 LatestExecutionID = %q, want exec-1", record.LatestExecutionID)
	}
	if record.Status != failure.StatusFailed {
		t.Errorf("VA101 Status = %q, want %q", record.Status, failure.StatusFailed)
	}

	rollup, err := store.GetFailedExecution(ctx, "exec-1")
	if err != nil {
		t.Fatalf("GetFailedExecution() error = %v", err)
	}
	if rollup.TotalOccurrences != 3 {
		t.Errorf("rollup TotalOccurrences = %d, want 3", rollup.TotalOccurrences)
	}
	if rollup.UniqueErrorCount != 2 {
		t.Errorf("rollup UniqueErrorCount = %d, want 2", rollup.UniqueErrorCount)
	}
	if rollup.OpenErrorCount != 2 {
		t.Errorf("rollup OpenErrorCount = %d, want 2", rollup.OpenErrorCount)
	}
	if rollup.ErrorType != failure.MixedErrorType {
		t.Errorf("rollup ErrorType = %q, want %q", rollup.ErrorType, failure.MixedErrorType)
	}
	if rollup.County != "adams" {
		t.Errorf("rollup County = %q, want adams", rollup.County)
	}

	links, err := store.LinksForExecution(ctx, "exec-1")
	if err != nil {
		t.Fatalf("LinksForExecution() error = %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("got %d links, want 2", len(links))
	}
	if links[0].ErrorCode != "VA101" || links[0].Occurrences != 2 {
		t.Errorf("first link = %s/%d, want VA101/2", links[0].ErrorCode, links[0].Occurrences)
	}
	if links[1].ErrorCode != "VB202" || links[1].Occurrences != 1 {
		t.Errorf("second link = %s/%d, want VB202/1", links[1].ErrorCode, links[1].Occurrences)
	}
}

func TestFailureStore_RecordEvent_Duplicate(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	env := failureEvent("evt-1", "exec-1", "VA101")

	mustRecord(t, store, env)
	result := mustRecord(t, store, env)

	if !result.Duplicate {
		t.Error("replayed event should report Duplicate")
	}

	record, err := store.GetError(context.Background(), "VA101")
	if err != nil {
		t.Fatalf("GetError() error = %v", err)
	}
	if record.TotalCount != 1 {
		t.Errorf("TotalCount after replay = %d, want 1", record.TotalCount)
	}

	rollup, err := store.GetFailedExecution(context.Background(), "exec-1")
	if err != nil {
		t.Fatalf("GetFailedExecution() error = %v", err)
	}
	if rollup.TotalOccurrences != 1 {
		t.Errorf("TotalOccurrences after replay = %d, want 1", rollup.TotalOccurrences)
	}
}

func TestFailureStore_RecordEvent_Invalid(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	env := failureEvent("", "exec-1", "VA101")

	_, err := store.RecordEvent(context.Background(), env, time.Now())
	if !errors.Is(err, failure.ErrInvalidEvent) {
		t.Errorf("RecordEvent() error = %v, want ErrInvalidEvent", err)
	}
}

func TestFailureStore_RecordEvent_NoErrorsLeavesNoMarker(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	env := failureEvent("evt-1", "exec-1")

	first := mustRecord(t, store, env)
	if first.Duplicate || first.UniqueErrorCount != 0 {
		t.Errorf("first result = %+v, want empty non-duplicate", first)
	}

	// An event without errors writes nothing, so replaying it is not
	// a duplicate either.
	second := mustRecord(t, store, env)
	if second.Duplicate {
		t.Error("errorless replay should not report Duplicate")
	}

	if _, err := store.GetFailedExecution(context.Background(), "exec-1"); !errors.Is(err, failure.ErrNotFound) {
		t.Errorf("GetFailedExecution() error = %v, want ErrNotFound", err)
	}
}

func TestFailureStore_RecordEvent_SecondEventAccumulates(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	ctx := context.Background()

	mustRecord(t, store, failureEvent("evt-1", "exec-1", "VA101", "VB202"))
	mustRecord(t, store, failureEvent("evt-2", "exec-1", "VA101", "VC303"))

	rollup, err := store.GetFailedExecution(ctx, "exec-1")
	if err != nil {
		t.Fatalf("GetFailedExecution() error = %v", err)
	}
	if rollup.TotalOccurrences != 4 {
		t.Errorf("TotalOccurrences = %d, want 4", rollup.TotalOccurrences)
	}
	if rollup.UniqueErrorCount != 4 {
		t.Errorf("UniqueErrorCount = %d, want 4", rollup.UniqueErrorCount)
	}

	// VA101 was already linked, so only VC303 opens a new error.
	if rollup.OpenErrorCount != 3 {
		t.Errorf("OpenErrorCount = %d, want 3", rollup.OpenErrorCount)
	}

	record, err := store.GetError(ctx, "VA101")
	if err != nil {
		t.Fatalf("GetError() error = %v", err)
	}
	if record.TotalCount != 2 {
		t.Errorf("VA101 TotalCount = %d, want 2", record.TotalCount)
	}
}

func TestFailureStore_GetError_NotFound(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	_, err := store.GetError(context.Background(), "VA999")
	if !errors.Is(err, failure.ErrNotFound) {
		t.Errorf("GetError() error = %v, want ErrNotFound", err)
	}
}

func TestFailureStore_DeleteExecution(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	ctx := context.Background()

	mustRecord(t, store, failureEvent("evt-1", "exec-1", "VB202", "VA101"))

	codes, err := store.DeleteExecution(ctx, "exec-1")
	if err != nil {
		t.Fatalf("DeleteExecution() error = %v", err)
	}
	if len(codes) != 2 || codes[0] != "VA101" || codes[1] != "VB202" {
		t.Errorf("codes = %v, want [VA101 VB202]", codes)
	}

	if _, err := store.GetFailedExecution(ctx, "exec-1"); !errors.Is(err, failure.ErrNotFound) {
		t.Errorf("GetFailedExecution() after delete error = %v, want ErrNotFound", err)
	}
	links, err := store.LinksForExecution(ctx, "exec-1")
	if err != nil {
		t.Fatalf("LinksForExecution() error = %v", err)
	}
	if len(links) != 0 {
		t.Errorf("got %d links after delete, want 0", len(links))
	}

	// Aggregates survive row deletion; only the resolution paths sweep
	// them.
	if _, err := store.GetError(ctx, "VA101"); err != nil {
		t.Errorf("GetError() after delete error = %v, want aggregate kept", err)
	}
}

func TestFailureStore_DeleteExecution_Unknown(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	codes, err := store.DeleteExecution(context.Background(), "exec-missing")
	if err != nil {
		t.Fatalf("DeleteExecution() error = %v", err)
	}
	if codes != nil {
		t.Errorf("codes = %v, want nil for unknown execution", codes)
	}
}

func TestFailureStore_DeleteErrorsForExecution(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	ctx := context.Background()

	// VA101 is shared with exec-2, VB202 belongs only to exec-1.
	mustRecord(t, store, failureEvent("evt-1", "exec-1", "VA101", "VB202"))
	mustRecord(t, store, failureEvent("evt-2", "exec-2", "VA101"))

	result, err := store.DeleteErrorsForExecution(ctx, "exec-1")
	if err != nil {
		t.Fatalf("DeleteErrorsForExecution() error = %v", err)
	}
	if result.DeletedCount != 2 {
		t.Errorf("DeletedCount = %d, want 2", result.DeletedCount)
	}
	if len(result.AffectedExecutionIDs) != 1 || result.AffectedExecutionIDs[0] != "exec-1" {
		t.Errorf("AffectedExecutionIDs = %v, want [exec-1]", result.AffectedExecutionIDs)
	}
	if len(result.DeletedErrorCodes) != 2 || result.DeletedErrorCodes[0] != "VA101" || result.DeletedErrorCodes[1] != "VB202" {
		t.Errorf("DeletedErrorCodes = %v, want [VA101 VB202]", result.DeletedErrorCodes)
	}
	if len(result.OrphanedCodesRemoved) != 1 || result.OrphanedCodesRemoved[0] != "VB202" {
		t.Errorf("OrphanedCodesRemoved = %v, want [VB202]", result.OrphanedCodesRemoved)
	}

	// The shared aggregate survives, the orphan is gone.
	if _, err := store.GetError(ctx, "VA101"); err != nil {
		t.Errorf("GetError(VA101) error = %v, want kept", err)
	}
	if _, err := store.GetError(ctx, "VB202"); !errors.Is(err, failure.ErrNotFound) {
		t.Errorf("GetError(VB202) error = %v, want ErrNotFound", err)
	}

	// The rollup stays but reads as fully resolved.
	rollup, err := store.GetFailedExecution(ctx, "exec-1")
	if err != nil {
		t.Fatalf("GetFailedExecution() error = %v", err)
	}
	if rollup.OpenErrorCount != 0 {
		t.Errorf("OpenErrorCount = %d, want 0", rollup.OpenErrorCount)
	}
}

func TestFailureStore_DeleteErrorsForExecution_NoLinks(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	result, err := store.DeleteErrorsForExecution(context.Background(), "exec-missing")
	if err != nil {
		t.Fatalf("DeleteErrorsForExecution() error = %v", err)
	}
	if result.DeletedCount != 0 || len(result.AffectedExecutionIDs) != 0 {
		t.Errorf("result = %+v, want empty", result)
	}
}

func TestFailureStore_DeleteErrorFromAllExecutions(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	ctx := context.Background()

	mustRecord(t, store, failureEvent("evt-1", "exec-2", "VA101", "VB202"))
	mustRecord(t, store, failureEvent("evt-2", "exec-1", "VA101"))

	result, err := store.DeleteErrorFromAllExecutions(ctx, "VA101")
	if err != nil {
		t.Fatalf("DeleteErrorFromAllExecutions() error = %v", err)
	}
	if result.DeletedCount != 2 {
		t.Errorf("DeletedCount = %d, want 2", result.DeletedCount)
	}
	if len(result.AffectedExecutionIDs) != 2 || result.AffectedExecutionIDs[0] != "exec-1" || result.AffectedExecutionIDs[1] != "exec-2" {
		t.Errorf("AffectedExecutionIDs = %v, want [exec-1 exec-2]", result.AffectedExecutionIDs)
	}
	if len(result.DeletedErrorCodes) != 1 || result.DeletedErrorCodes[0] != "VA101" {
		t.Errorf("DeletedErrorCodes = %v, want [VA101]", result.DeletedErrorCodes)
	}

	if _, err := store.GetError(ctx, "VA101"); !errors.Is(err, failure.ErrNotFound) {
		t.Errorf("GetError() error = %v, want ErrNotFound", err)
	}

	// exec-2 still holds VB202 open; exec-1 dropped to zero.
	rollup, err := store.GetFailedExecution(ctx, "exec-2")
	if err != nil {
		t.Fatalf("GetFailedExecution(exec-2) error = %v", err)
	}
	if rollup.OpenErrorCount != 1 {
		t.Errorf("exec-2 OpenErrorCount = %d, want 1", rollup.OpenErrorCount)
	}
	rollup, err = store.GetFailedExecution(ctx, "exec-1")
	if err != nil {
		t.Fatalf("GetFailedExecution(exec-1) error = %v", err)
	}
	if rollup.OpenErrorCount != 0 {
		t.Errorf("exec-1 OpenErrorCount = %d, want 0", rollup.OpenErrorCount)
	}
}

func TestFailureStore_DeleteErrorFromAllExecutions_Unknown(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	result, err := store.DeleteErrorFromAllExecutions(context.Background(), "VA999")
	if err != nil {
		t.Fatalf("DeleteErrorFromAllExecutions() error = %v", err)
	}
	if result.DeletedCount != 0 {
		t.Errorf("DeletedCount = %d, want 0", result.DeletedCount)
	}
	if result.AffectedExecutionIDs == nil || len(result.AffectedExecutionIDs) != 0 {
		t.Errorf("AffectedExecutionIDs = %v, want empty non-nil", result.AffectedExecutionIDs)
	}
	if len(result.DeletedErrorCodes) != 1 || result.DeletedErrorCodes[0] != "VA999" {
		t.Errorf("DeletedErrorCodes = %v, want [VA999]", result.DeletedErrorCodes)
	}
}

func TestFailureStore_MarkMaybeSolved(t *testing.T) {
	t.Parallel()

	t.Run("by pair", func(t *testing.T) {
		t.Parallel()

		store := memory.NewFailureStore()
		ctx := context.Background()
		mustRecord(t, store, failureEvent("evt-1", "exec-1", "VA101", "VB202"))

		result, err := store.MarkMaybeSolved(ctx, failure.Selector{ExecutionID: "exec-1", ErrorCode: "VA101"})
		if err != nil {
			t.Fatalf("MarkMaybeSolved() error = %v", err)
		}
		if result.UpdatedCount != 1 {
			t.Errorf("UpdatedCount = %d, want 1", result.UpdatedCount)
		}
		if len(result.AffectedExecutionIDs) != 1 || result.AffectedExecutionIDs[0] != "exec-1" {
			t.Errorf("AffectedExecutionIDs = %v, want [exec-1]", result.AffectedExecutionIDs)
		}

		links, err := store.LinksForExecution(ctx, "exec-1")
		if err != nil {
			t.Fatalf("LinksForExecution() error = %v", err)
		}
		if links[0].Status != failure.StatusMaybeSolved {
			t.Errorf("VA101 link status = %q, want %q", links[0].Status, failure.StatusMaybeSolved)
		}
		if links[1].Status != failure.StatusFailed {
			t.Errorf("VB202 link status = %q, want untouched %q", links[1].Status, failure.StatusFailed)
		}

		// Marking again is a no-op.
		result, err = store.MarkMaybeSolved(ctx, failure.Selector{ExecutionID: "exec-1", ErrorCode: "VA101"})
		if err != nil {
			t.Fatalf("second MarkMaybeSolved() error = %v", err)
		}
		if result.UpdatedCount != 0 {
			t.Errorf("second UpdatedCount = %d, want 0", result.UpdatedCount)
		}
	})

	t.Run("by execution", func(t *testing.T) {
		t.Parallel()

		store := memory.NewFailureStore()
		ctx := context.Background()
		mustRecord(t, store, failureEvent("evt-1", "exec-1", "VA101", "VB202"))

		result, err := store.MarkMaybeSolved(ctx, failure.Selector{ExecutionID: "exec-1"})
		if err != nil {
			t.Fatalf("MarkMaybeSolved() error = %v", err)
		}
		if result.UpdatedCount != 2 {
			t.Errorf("UpdatedCount = %d, want 2", result.UpdatedCount)
		}
		if len(result.AffectedExecutionIDs) != 1 || result.AffectedExecutionIDs[0] != "exec-1" {
			t.Errorf("AffectedExecutionIDs = %v, want [exec-1]", result.AffectedExecutionIDs)
		}
	})

	t.Run("by code marks links and aggregate", func(t *testing.T) {
		t.Parallel()

		store := memory.NewFailureStore()
		ctx := context.Background()
		mustRecord(t, store, failureEvent("evt-1", "exec-2", "VA101"))
		mustRecord(t, store, failureEvent("evt-2", "exec-1", "VA101"))

		result, err := store.MarkMaybeSolved(ctx, failure.Selector{ErrorCode: "VA101"})
		if err != nil {
			t.Fatalf("MarkMaybeSolved() error = %v", err)
		}
		if result.UpdatedCount != 2 {
			t.Errorf("UpdatedCount = %d, want 2", result.UpdatedCount)
		}
		if len(result.AffectedExecutionIDs) != 2 || result.AffectedExecutionIDs[0] != "exec-1" || result.AffectedExecutionIDs[1] != "exec-2" {
			t.Errorf("AffectedExecutionIDs = %v, want [exec-1 exec-2]", result.AffectedExecutionIDs)
		}

		record, err := store.GetError(ctx, "VA101")
		if err != nil {
			t.Fatalf("GetError() error = %v", err)
		}
		if record.Status != failure.StatusMaybeSolved {
			t.Errorf("aggregate status = %q, want %q", record.Status, failure.StatusMaybeSolved)
		}
	})

	t.Run("empty selector", func(t *testing.T) {
		t.Parallel()

		store := memory.NewFailureStore()
		_, err := store.MarkMaybeSolved(context.Background(), failure.Selector{})
		if !errors.Is(err, failure.ErrEmptySelector) {
			t.Errorf("MarkMaybeSolved() error = %v, want ErrEmptySelector", err)
		}
	})
}

func TestFailureStore_MarkUnrecoverable(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	ctx := context.Background()
	mustRecord(t, store, failureEvent("evt-1", "exec-1", "VA101"))

	result, err := store.MarkUnrecoverable(ctx, failure.Selector{ExecutionID: "exec-1", ErrorCode: "VA101"})
	if err != nil {
		t.Fatalf("MarkUnrecoverable() error = %v", err)
	}
	if result.UpdatedCount != 1 {
		t.Errorf("UpdatedCount = %d, want 1", result.UpdatedCount)
	}

	links, err := store.LinksForExecution(ctx, "exec-1")
	if err != nil {
		t.Fatalf("LinksForExecution() error = %v", err)
	}
	if links[0].Status != failure.StatusMaybeUnrecoverable {
		t.Errorf("link status = %q, want %q", links[0].Status, failure.StatusMaybeUnrecoverable)
	}
}

func TestFailureStore_DeleteOrphanedAggregates(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	ctx := context.Background()

	mustRecord(t, store, failureEvent("evt-1", "exec-1", "VA101", "VB202"))
	if _, err := store.DeleteExecution(ctx, "exec-1"); err != nil {
		t.Fatalf("DeleteExecution() error = %v", err)
	}
	mustRecord(t, store, failureEvent("evt-2", "exec-2", "VB202"))

	removed, err := store.DeleteOrphanedAggregates(ctx, []string{"VA101", "VB202", "VC303"})
	if err != nil {
		t.Fatalf("DeleteOrphanedAggregates() error = %v", err)
	}
	if len(removed) != 1 || removed[0] != "VA101" {
		t.Errorf("removed = %v, want [VA101]", removed)
	}

	if _, err := store.GetError(ctx, "VB202"); err != nil {
		t.Errorf("GetError(VB202) error = %v, want still-linked aggregate kept", err)
	}
}

func TestFailureStore_ListErrorsByType(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	ctx := context.Background()

	mustRecord(t, store, failureEvent("evt-1", "exec-1", "VB202", "VA102", "VA101"))

	records, err := store.ListErrorsByType(ctx, "VA", 0)
	if err != nil {
		t.Fatalf("ListErrorsByType() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Code != "VA101" || records[1].Code != "VA102" {
		t.Errorf("codes = [%s %s], want [VA101 VA102]", records[0].Code, records[1].Code)
	}

	limited, err := store.ListErrorsByType(ctx, "VA", 1)
	if err != nil {
		t.Fatalf("ListErrorsByType() error = %v", err)
	}
	if len(limited) != 1 || limited[0].Code != "VA101" {
		t.Errorf("limited = %v, want just VA101", limited)
	}
}

func TestFailureStore_TopErrorsByCount(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	ctx := context.Background()

	mustRecord(t, store, failureEvent("evt-1", "exec-1", "VA101", "VB202", "VB202", "VB202", "VC303", "VC303"))

	records, err := store.TopErrorsByCount(ctx, 2)
	if err != nil {
		t.Fatalf("TopErrorsByCount() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Code != "VB202" || records[0].TotalCount != 3 {
		t.Errorf("first = %s/%d, want VB202/3", records[0].Code, records[0].TotalCount)
	}
	if records[1].Code != "VC303" || records[1].TotalCount != 2 {
		t.Errorf("second = %s/%d, want VC303/2", records[1].Code, records[1].TotalCount)
	}
}

func TestFailureStore_TopFailedExecution(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	ctx := context.Background()

	top, err := store.TopFailedExecution(ctx)
	if err != nil {
		t.Fatalf("TopFailedExecution() error = %v", err)
	}
	if top != nil {
		t.Errorf("empty store TopFailedExecution() = %+v, want nil", top)
	}

	mustRecord(t, store, failureEvent("evt-1", "exec-1", "VA101"))
	mustRecord(t, store, failureEvent("evt-2", "exec-2", "VA101", "VB202", "VB202"))

	top, err = store.TopFailedExecution(ctx)
	if err != nil {
		t.Fatalf("TopFailedExecution() error = %v", err)
	}
	if top == nil || top.ExecutionID != "exec-2" {
		t.Fatalf("TopFailedExecution() = %+v, want exec-2", top)
	}
	if top.TotalOccurrences != 3 {
		t.Errorf("TotalOccurrences = %d, want 3", top.TotalOccurrences)
	}
}

func TestFailureStore_LinksForError(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	ctx := context.Background()

	mustRecord(t, store, failureEvent("evt-1", "exec-2", "VA101"))
	mustRecord(t, store, failureEvent("evt-2", "exec-1", "VA101"))
	mustRecord(t, store, failureEvent("evt-3", "exec-3", "VB202"))

	links, err := store.LinksForError(ctx, "VA101")
	if err != nil {
		t.Fatalf("LinksForError() error = %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("got %d links, want 2", len(links))
	}
	if links[0].ExecutionID != "exec-1" || links[1].ExecutionID != "exec-2" {
		t.Errorf("executions = [%s %s], want [exec-1 exec-2]", links[0].ExecutionID, links[1].ExecutionID)
	}
}

func TestFailureStore_ScanFailedExecutions(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	ctx := context.Background()

	for _, id := range []string{"exec-3", "exec-1", "exec-5", "exec-2", "exec-4"} {
		mustRecord(t, store, failureEvent("evt-"+id, id, "VA101"))
	}

	// Resolving exec-3 zeroes its open count and removes it from the
	// scan.
	if _, err := store.DeleteErrorsForExecution(ctx, "exec-3"); err != nil {
		t.Fatalf("DeleteErrorsForExecution() error = %v", err)
	}

	var seen []string
	var token failure.PageToken
	for {
		page, next, err := store.ScanFailedExecutions(ctx, token, 2)
		if err != nil {
			t.Fatalf("ScanFailedExecutions() error = %v", err)
		}
		for _, rollup := range page {
			seen = append(seen, rollup.ExecutionID)
		}
		if next.Empty() {
			break
		}
		token = next
	}

	want := []string{"exec-1", "exec-2", "exec-4", "exec-5"}
	if len(seen) != len(want) {
		t.Fatalf("scanned %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("seen[%d] = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestFailureStore_CountLinks(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	ctx := context.Background()

	mustRecord(t, store, failureEvent("evt-1", "exec-1", "VA101", "VB202"))

	count, err := store.CountLinks(ctx, "exec-1")
	if err != nil {
		t.Fatalf("CountLinks() error = %v", err)
	}
	if count != 2 {
		t.Errorf("CountLinks() = %d, want 2", count)
	}

	count, err = store.CountLinks(ctx, "exec-missing")
	if err != nil {
		t.Fatalf("CountLinks() error = %v", err)
	}
	if count != 0 {
		t.Errorf("CountLinks(missing) = %d, want 0", count)
	}
}

func TestFailureStore_DeleteFailedExecution(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	ctx := context.Background()

	mustRecord(t, store, failureEvent("evt-1", "exec-1", "VA101"))

	if err := store.DeleteFailedExecution(ctx, "exec-1"); err != nil {
		t.Fatalf("DeleteFailedExecution() error = %v", err)
	}
	if _, err := store.GetFailedExecution(ctx, "exec-1"); !errors.Is(err, failure.ErrNotFound) {
		t.Errorf("GetFailedExecution() error = %v, want ErrNotFound", err)
	}

	// Deleting an absent rollup is fine.
	if err := store.DeleteFailedExecution(ctx, "exec-1"); err != nil {
		t.Errorf("second DeleteFailedExecution() error = %v", err)
	}
}

func TestFailureStore_LegacyMigration(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	ctx := context.Background()

	for _, code := range []string{"VC303", "VA101", "VB202"} {
		store.SeedLegacyError(&failure.ErrorRecord{
			Code:       code,
			ErrorType:  failure.ErrorTypeOf(code),
			Status:     failure.StatusFailed,
			TotalCount: 1,
		})
	}

	var seen []string
	var token failure.PageToken
	for {
		page, next, err := store.ScanLegacyCountIndex(ctx, token, 2)
		if err != nil {
			t.Fatalf("ScanLegacyCountIndex() error = %v", err)
		}
		seen = append(seen, page...)
		if next.Empty() {
			break
		}
		token = next
	}
	want := []string{"VA101", "VB202", "VC303"}
	if len(seen) != len(want) {
		t.Fatalf("scanned %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("seen[%d] = %s, want %s", i, seen[i], want[i])
		}
	}

	outcome, err := store.RepartitionError(ctx, "VA101")
	if err != nil {
		t.Fatalf("RepartitionError() error = %v", err)
	}
	if outcome != failure.MigrationMigrated {
		t.Errorf("outcome = %q, want %q", outcome, failure.MigrationMigrated)
	}

	// Repartitioning twice reports the second run as already done.
	outcome, err = store.RepartitionError(ctx, "VA101")
	if err != nil {
		t.Fatalf("second RepartitionError() error = %v", err)
	}
	if outcome != failure.MigrationAlreadyDone {
		t.Errorf("second outcome = %q, want %q", outcome, failure.MigrationAlreadyDone)
	}

	remaining, _, err := store.ScanLegacyCountIndex(ctx, nil, 0)
	if err != nil {
		t.Fatalf("ScanLegacyCountIndex() error = %v", err)
	}
	if len(remaining) != 2 {
		t.Errorf("remaining legacy codes = %v, want 2 entries", remaining)
	}

	// Ingesting a fresh error never lands it in the legacy partition.
	mustRecord(t, store, failureEvent("evt-1", "exec-1", "VD404"))
	remaining, _, err = store.ScanLegacyCountIndex(ctx, nil, 0)
	if err != nil {
		t.Fatalf("ScanLegacyCountIndex() error = %v", err)
	}
	for _, code := range remaining {
		if code == "VD404" {
			t.Error("freshly ingested code should not appear in the legacy index")
		}
	}
}

func TestFailureStore_Clear(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	mustRecord(t, store, failureEvent("evt-1", "exec-1", "VA101"))

	store.Clear()

	if _, err := store.GetError(context.Background(), "VA101"); !errors.Is(err, failure.ErrNotFound) {
		t.Errorf("GetError() after Clear error = %v, want ErrNotFound", err)
	}

	// Markers are cleared too, so the same event records again.
	result := mustRecord(t, store, failureEvent("evt-1", "exec-1", "VA101"))
	if result.Duplicate {
		t.Error("RecordEvent() after Clear should not report Duplicate")
	}
}

func TestFailureStore_CancelledContext(t *testing.T) {
	t.Parallel()

	store := memory.NewFailureStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.RecordEvent(ctx, failureEvent("evt-1", "exec-1", "VA101"), time.Now()); err == nil {
		t.Error("RecordEvent() should return error for cancelled context")
	}
	if _, err := store.GetError(ctx, "VA101"); err == nil {
		t.Error("GetError() should return error for cancelled context")
	}
	if _, err := store.DeleteExecution(ctx, "exec-1"); err == nil {
		t.Error("DeleteExecution() should return error for cancelled context")
	}
}
