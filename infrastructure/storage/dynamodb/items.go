package dynamodb

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/elephant-oracle/tracker-go/domain/event"
	"github.com/elephant-oracle/tracker-go/domain/execution"
	"github.com/elephant-oracle/tracker-go/domain/failure"
)

// Entity discriminators. Rows of every kind share the errors table, so
// scans and the count index filter on entityType.
const (
	entityTypeError     = "ERROR"
	entityTypeLink      = "EXECUTION_ERROR"
	entityTypeExecution = "EXECUTION"
	entityTypeMarker    = "EVENT_MARKER"
)

// sortableTimeLayout is a fixed-width UTC timestamp used for index sort
// keys. RFC3339Nano trims trailing zeros, which breaks lexicographic
// ordering; this layout pads the fraction so string order is time order.
const sortableTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatSortableTime(t time.Time) string {
	return t.UTC().Format(sortableTimeLayout)
}

func formatItemTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseItemTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}

// errorItem is the stored form of a per-code error aggregate. The count
// index sort key mirrors totalCount so atomic increments reposition the
// row without a second write.
type errorItem struct {
	PK                string          `dynamodbav:"pk"`
	SK                string          `dynamodbav:"sk"`
	GSI1PK            string          `dynamodbav:"gsi1pk"`
	GSI1SK            string          `dynamodbav:"gsi1sk"`
	GSI2PK            string          `dynamodbav:"gsi2pk"`
	GSI2SK            int64           `dynamodbav:"gsi2sk"`
	EntityType        string          `dynamodbav:"entityType"`
	ErrorCode         string          `dynamodbav:"errorCode"`
	ErrorType         string          `dynamodbav:"errorType"`
	Status            string          `dynamodbav:"status"`
	TotalCount        int64           `dynamodbav:"totalCount"`
	LatestExecutionID string          `dynamodbav:"latestExecutionId,omitempty"`
	LastDetail        json.RawMessage `dynamodbav:"lastDetail,omitempty"`
	CreatedAt         string          `dynamodbav:"createdAt"`
	UpdatedAt         string          `dynamodbav:"updatedAt"`
}

func (i errorItem) toRecord() (*failure.ErrorRecord, error) {
	createdAt, err := parseItemTime(i.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseItemTime(i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &failure.ErrorRecord{
		Code:              i.ErrorCode,
		ErrorType:         i.ErrorType,
		Status:            failure.ErrorStatus(i.Status),
		TotalCount:        i.TotalCount,
		LatestExecutionID: i.LatestExecutionID,
		LastDetail:        i.LastDetail,
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
	}, nil
}

// linkItem is the stored form of an execution-error link. The reverse
// index inverts the key pair so one code's executions can be listed.
type linkItem struct {
	PK          string `dynamodbav:"pk"`
	SK          string `dynamodbav:"sk"`
	GSI1PK      string `dynamodbav:"gsi1pk"`
	GSI1SK      string `dynamodbav:"gsi1sk"`
	EntityType  string `dynamodbav:"entityType"`
	ExecutionID string `dynamodbav:"executionId"`
	ErrorCode   string `dynamodbav:"errorCode"`
	Status      string `dynamodbav:"status"`
	Occurrences int64  `dynamodbav:"occurrences"`
	County      string `dynamodbav:"county,omitempty"`
	CreatedAt   string `dynamodbav:"createdAt"`
	UpdatedAt   string `dynamodbav:"updatedAt"`
}

func (i linkItem) toLink() (*failure.ExecutionErrorLink, error) {
	createdAt, err := parseItemTime(i.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseItemTime(i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &failure.ExecutionErrorLink{
		ExecutionID: i.ExecutionID,
		ErrorCode:   i.ErrorCode,
		Status:      failure.ErrorStatus(i.Status),
		Occurrences: i.Occurrences,
		County:      i.County,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

// failedExecItem is the stored form of a per-execution rollup. Rollups
// keep the shared count-index partition; only error aggregates move to
// the dedicated one.
type failedExecItem struct {
	PK               string `dynamodbav:"pk"`
	SK               string `dynamodbav:"sk"`
	GSI2PK           string `dynamodbav:"gsi2pk"`
	GSI2SK           int64  `dynamodbav:"gsi2sk"`
	EntityType       string `dynamodbav:"entityType"`
	ExecutionID      string `dynamodbav:"executionId"`
	County           string `dynamodbav:"county,omitempty"`
	Status           string `dynamodbav:"status"`
	ErrorType        string `dynamodbav:"errorType"`
	TotalOccurrences int64  `dynamodbav:"totalOccurrences"`
	OpenErrorCount   int64  `dynamodbav:"openErrorCount"`
	UniqueErrorCount int64  `dynamodbav:"uniqueErrorCount"`
	TaskToken        string `dynamodbav:"taskToken,omitempty"`
	CreatedAt        string `dynamodbav:"createdAt"`
	UpdatedAt        string `dynamodbav:"updatedAt"`
}

func (i failedExecItem) toFailedExecution() (*failure.FailedExecution, error) {
	createdAt, err := parseItemTime(i.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseItemTime(i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &failure.FailedExecution{
		ExecutionID:      i.ExecutionID,
		County:           i.County,
		Status:           failure.ErrorStatus(i.Status),
		ErrorType:        i.ErrorType,
		TotalOccurrences: i.TotalOccurrences,
		OpenErrorCount:   i.OpenErrorCount,
		UniqueErrorCount: i.UniqueErrorCount,
		TaskToken:        i.TaskToken,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}, nil
}

// markerItem records that one chunk of one event's transaction has been
// applied. ExpiresAt drives the table's TTL so markers age out after
// the redelivery horizon.
type markerItem struct {
	PK         string `dynamodbav:"pk"`
	SK         string `dynamodbav:"sk"`
	EntityType string `dynamodbav:"entityType"`
	EventID    string `dynamodbav:"eventId"`
	ChunkIndex int    `dynamodbav:"chunkIndex"`
	RecordedAt string `dynamodbav:"recordedAt"`
	ExpiresAt  int64  `dynamodbav:"expiresAt,omitempty"`
}

func newMarkerItem(eventID string, chunk int, now time.Time, ttl time.Duration) markerItem {
	item := markerItem{
		PK:         eventPK(eventID),
		SK:         chunkSK(chunk),
		EntityType: entityTypeMarker,
		EventID:    eventID,
		ChunkIndex: chunk,
		RecordedAt: formatItemTime(now),
	}
	if ttl > 0 {
		item.ExpiresAt = now.Add(ttl).Unix()
	}
	return item
}

// stateItem is the stored form of an execution's workflow state. The
// global index shards states by hashed execution id and sorts each
// shard by a fixed-width copy of the event time.
type stateItem struct {
	PK          string `dynamodbav:"pk"`
	SK          string `dynamodbav:"sk"`
	GSI2PK      string `dynamodbav:"gsi2pk"`
	GSI2SK      string `dynamodbav:"gsi2sk"`
	ExecutionID string `dynamodbav:"executionId"`
	County      string `dynamodbav:"county,omitempty"`
	DataGroup   string `dynamodbav:"dataGroup,omitempty"`
	Phase       string `dynamodbav:"phase"`
	Step        string `dynamodbav:"step"`
	Bucket      string `dynamodbav:"bucket"`
	Status      string `dynamodbav:"status"`
	LastEventID string `dynamodbav:"lastEventId,omitempty"`
	LastEventAt string `dynamodbav:"lastEventAt"`
	Version     int64  `dynamodbav:"version"`
}

func newStateItem(state *execution.State, shards int) stateItem {
	return stateItem{
		PK:          execPK(state.ExecutionID),
		SK:          stateSortKey,
		GSI2PK:      shardLabel(state.ExecutionID, shards),
		GSI2SK:      formatSortableTime(state.LastEventAt),
		ExecutionID: state.ExecutionID,
		County:      state.County,
		DataGroup:   state.DataGroup,
		Phase:       state.Phase,
		Step:        state.Step,
		Bucket:      string(state.Bucket),
		Status:      string(state.Status),
		LastEventID: state.LastEventID,
		LastEventAt: formatItemTime(state.LastEventAt),
		Version:     state.Version,
	}
}

func (i stateItem) toState() (*execution.State, error) {
	lastEventAt, err := parseItemTime(i.LastEventAt)
	if err != nil {
		return nil, err
	}
	return &execution.State{
		ExecutionID: i.ExecutionID,
		County:      i.County,
		DataGroup:   i.DataGroup,
		Phase:       i.Phase,
		Step:        i.Step,
		Bucket:      execution.Bucket(i.Bucket),
		Status:      event.Status(i.Status),
		LastEventID: i.LastEventID,
		LastEventAt: lastEventAt,
		Version:     i.Version,
	}, nil
}

// aggregateItem is the stored form of a step counter row. The step
// index inverts the key so one step's counties can be compared.
type aggregateItem struct {
	PK         string `dynamodbav:"pk"`
	SK         string `dynamodbav:"sk"`
	GSI1PK     string `dynamodbav:"gsi1pk"`
	GSI1SK     string `dynamodbav:"gsi1sk"`
	County     string `dynamodbav:"county"`
	DataGroup  string `dynamodbav:"dataGroup"`
	Phase      string `dynamodbav:"phase"`
	Step       string `dynamodbav:"step"`
	InProgress int64  `dynamodbav:"inProgress"`
	Failed     int64  `dynamodbav:"failed"`
	Succeeded  int64  `dynamodbav:"succeeded"`
	UpdatedAt  string `dynamodbav:"updatedAt"`
}

func (i aggregateItem) toAggregate() (*execution.StepAggregate, error) {
	updatedAt, err := parseItemTime(i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &execution.StepAggregate{
		Key: execution.StepKey{
			County:    i.County,
			DataGroup: i.DataGroup,
			Phase:     i.Phase,
			Step:      i.Step,
		},
		InProgress: i.InProgress,
		Failed:     i.Failed,
		Succeeded:  i.Succeeded,
		UpdatedAt:  updatedAt,
	}, nil
}
