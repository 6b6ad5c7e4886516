package dynamodb

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/elephant-oracle/tracker-go/domain/event"
	"github.com/elephant-oracle/tracker-go/domain/execution"
	"github.com/elephant-oracle/tracker-go/domain/failure"
)

func TestFormatSortableTime_OrderMatchesTime(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 10, 12, 0, 5, 0, time.UTC)

	// RFC3339Nano trims the fraction, which would place "…05Z" after
	// "…05.5Z" lexicographically. The fixed-width layout must not.
	tests := []struct {
		name    string
		earlier time.Time
		later   time.Time
	}{
		{"whole second before fraction", base, base.Add(500 * time.Millisecond)},
		{"short fraction before long", base.Add(50 * time.Millisecond), base.Add(100 * time.Millisecond)},
		{"across seconds", base.Add(900 * time.Millisecond), base.Add(time.Second)},
		{"nanosecond apart", base, base.Add(time.Nanosecond)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a, b := formatSortableTime(tt.earlier), formatSortableTime(tt.later)
			if a >= b {
				t.Errorf("formatSortableTime(%v) = %q not before formatSortableTime(%v) = %q",
					tt.earlier, a, tt.later, b)
			}
		})
	}
}

func TestFormatSortableTime_NormalizesZone(t *testing.T) {
	t.Parallel()

	utc := time.Date(2026, 8, 10, 10, 0, 0, 0, time.UTC)
	offset := utc.In(time.FixedZone("CEST", 2*60*60))

	if got, want := formatSortableTime(offset), formatSortableTime(utc); got != want {
		t.Errorf("offset zone = %q, want %q", got, want)
	}
}

func TestParseItemTime(t *testing.T) {
	t.Parallel()

	when, err := parseItemTime("")
	if err != nil {
		t.Fatalf("parseItemTime(empty) error = %v", err)
	}
	if !when.IsZero() {
		t.Errorf("parseItemTime(empty) = %v, want zero", when)
	}

	now := time.Date(2026, 8, 10, 12, 30, 15, 123456789, time.UTC)
	parsed, err := parseItemTime(formatItemTime(now))
	if err != nil {
		t.Fatalf("parseItemTime roundtrip error = %v", err)
	}
	if !parsed.Equal(now) {
		t.Errorf("roundtrip = %v, want %v", parsed, now)
	}

	if _, err := parseItemTime("last tuesday"); err == nil {
		t.Error("expected error for unparseable timestamp")
	}
}

func TestErrorItem_ToRecord(t *testing.T) {
	t.Parallel()

	item := errorItem{
		PK:                "ERR#VA101",
		SK:                "META",
		ErrorCode:         "VA101",
		ErrorType:         "VA",
		Status:            "failed",
		TotalCount:        12,
		LatestExecutionID: "exec-7",
		LastDetail:        json.RawMessage(`{"field":"parcel_id"}`),
		CreatedAt:         "2026-08-01T09:00:00Z",
		UpdatedAt:         "2026-08-10T12:00:00Z",
	}

	record, err := item.toRecord()
	if err != nil {
		t.Fatalf("toRecord error = %v", err)
	}
	if record.Code != "VA101" {
		t.Errorf("Code = %q, want VA101", record.Code)
	}
	if record.Status != failure.StatusFailed {
		t.Errorf("Status = %q, want failed", record.Status)
	}
	if record.TotalCount != 12 {
		t.Errorf("TotalCount = %d, want 12", record.TotalCount)
	}
	if string(record.LastDetail) != `{"field":"parcel_id"}` {
		t.Errorf("LastDetail = %s", record.LastDetail)
	}
	if record.CreatedAt.IsZero() || record.UpdatedAt.IsZero() {
		t.Error("timestamps should be parsed")
	}

	item.CreatedAt = "not a timestamp"
	if _, err := item.toRecord(); err == nil {
		t.Error("expected error for corrupt createdAt")
	}
}

func TestStateItem_Roundtrip(t *testing.T) {
	t.Parallel()

	state := &execution.State{
		ExecutionID: "exec-1",
		County:      "adams",
		DataGroup:   "2024-q1",
		Phase:       "transform",
		Step:        "normalize",
		Bucket:      execution.BucketInProgress,
		Status:      event.StatusInProgress,
		LastEventID: "evt-5",
		LastEventAt: time.Date(2026, 8, 10, 12, 0, 5, 500000000, time.UTC),
		Version:     3,
	}

	item := newStateItem(state, 8)
	if item.PK != "EXEC#exec-1" || item.SK != "STATE" {
		t.Errorf("key = %s/%s, want EXEC#exec-1/STATE", item.PK, item.SK)
	}
	if item.GSI2PK != shardLabel("exec-1", 8) {
		t.Errorf("GSI2PK = %q, want shard label", item.GSI2PK)
	}
	if item.GSI2SK != "2026-08-10T12:00:05.500000000Z" {
		t.Errorf("GSI2SK = %q, want fixed-width timestamp", item.GSI2SK)
	}

	back, err := item.toState()
	if err != nil {
		t.Fatalf("toState error = %v", err)
	}
	if back.ExecutionID != state.ExecutionID ||
		back.County != state.County ||
		back.DataGroup != state.DataGroup ||
		back.Phase != state.Phase ||
		back.Step != state.Step ||
		back.Bucket != state.Bucket ||
		back.Status != state.Status ||
		back.LastEventID != state.LastEventID ||
		back.Version != state.Version {
		t.Errorf("roundtrip mismatch: %+v vs %+v", back, state)
	}
	if !back.LastEventAt.Equal(state.LastEventAt) {
		t.Errorf("LastEventAt = %v, want %v", back.LastEventAt, state.LastEventAt)
	}
}

func TestNewMarkerItem(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)

	item := newMarkerItem("evt-1", 2, now, 7*24*time.Hour)
	if item.PK != "EVENT#evt-1" {
		t.Errorf("PK = %q, want EVENT#evt-1", item.PK)
	}
	if item.SK != "CHUNK#0000000002" {
		t.Errorf("SK = %q, want CHUNK#0000000002", item.SK)
	}
	if item.ChunkIndex != 2 {
		t.Errorf("ChunkIndex = %d, want 2", item.ChunkIndex)
	}
	if want := now.Add(7 * 24 * time.Hour).Unix(); item.ExpiresAt != want {
		t.Errorf("ExpiresAt = %d, want %d", item.ExpiresAt, want)
	}

	forever := newMarkerItem("evt-1", 0, now, 0)
	if forever.ExpiresAt != 0 {
		t.Errorf("ExpiresAt = %d, want 0 when TTL disabled", forever.ExpiresAt)
	}
}

func TestAggregateItem_ToAggregate(t *testing.T) {
	t.Parallel()

	item := aggregateItem{
		PK:         "AGG#adams#2024-q1",
		SK:         "PHASE#transform#STEP#normalize",
		County:     "adams",
		DataGroup:  "2024-q1",
		Phase:      "transform",
		Step:       "normalize",
		InProgress: 4,
		Failed:     1,
		Succeeded:  9,
		UpdatedAt:  "2026-08-10T12:00:00Z",
	}

	aggregate, err := item.toAggregate()
	if err != nil {
		t.Fatalf("toAggregate error = %v", err)
	}
	want := execution.StepKey{County: "adams", DataGroup: "2024-q1", Phase: "transform", Step: "normalize"}
	if aggregate.Key != want {
		t.Errorf("Key = %+v, want %+v", aggregate.Key, want)
	}
	if aggregate.InProgress != 4 || aggregate.Failed != 1 || aggregate.Succeeded != 9 {
		t.Errorf("counters = %d/%d/%d, want 4/1/9",
			aggregate.InProgress, aggregate.Failed, aggregate.Succeeded)
	}
}
