package dynamodb

import (
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/elephant-oracle/tracker-go/domain/execution"
)

func testStateStore() *StateStore {
	return &StateStore{
		tableName:    "tracker-executions-test",
		queryTimeout: time.Second,
		shardCount:   4,
	}
}

func testStepKey(step string) execution.StepKey {
	return execution.StepKey{
		County:    "adams",
		DataGroup: "2024-q1",
		Phase:     "transform",
		Step:      step,
	}
}

func TestShiftWrites_ZeroShift(t *testing.T) {
	t.Parallel()

	writes, err := testStateStore().shiftWrites(execution.AggregateShift{}, time.Now())
	if err != nil {
		t.Fatalf("shiftWrites error = %v", err)
	}
	if len(writes) != 0 {
		t.Errorf("writes = %d, want none", len(writes))
	}
}

func TestShiftWrites_SameRowMergesIntoOneUpdate(t *testing.T) {
	t.Parallel()

	key := testStepKey("normalize")
	shift := execution.AggregateShift{
		Dec: &execution.BucketedStep{StepKey: key, Bucket: execution.BucketInProgress},
		Inc: &execution.BucketedStep{StepKey: key, Bucket: execution.BucketFailed},
	}

	writes, err := testStateStore().shiftWrites(shift, time.Now())
	if err != nil {
		t.Fatalf("shiftWrites error = %v", err)
	}
	if len(writes) != 1 {
		t.Fatalf("writes = %d, want 1 merged update", len(writes))
	}

	pk, sk := writeKey(t, writes[0])
	if pk != "AGG#adams#2024-q1" || sk != "PHASE#transform#STEP#normalize" {
		t.Errorf("merged update key = %s/%s", pk, sk)
	}
	names := updateNames(writes[0])
	if !names["inProgress"] || !names["failed"] {
		t.Errorf("merged update touches %v, want both counters", names)
	}
}

func TestShiftWrites_DistinctRows(t *testing.T) {
	t.Parallel()

	shift := execution.AggregateShift{
		Dec: &execution.BucketedStep{StepKey: testStepKey("normalize"), Bucket: execution.BucketInProgress},
		Inc: &execution.BucketedStep{StepKey: testStepKey("validate"), Bucket: execution.BucketInProgress},
	}

	writes, err := testStateStore().shiftWrites(shift, time.Now())
	if err != nil {
		t.Fatalf("shiftWrites error = %v", err)
	}
	if len(writes) != 2 {
		t.Fatalf("writes = %d, want decrement and increment", len(writes))
	}

	_, decSK := writeKey(t, writes[0])
	_, incSK := writeKey(t, writes[1])
	if decSK != "PHASE#transform#STEP#normalize" {
		t.Errorf("decrement row = %s", decSK)
	}
	if incSK != "PHASE#transform#STEP#validate" {
		t.Errorf("increment row = %s", incSK)
	}
}

func TestShiftWrites_FirstSightingIncrementsOnly(t *testing.T) {
	t.Parallel()

	shift := execution.AggregateShift{
		Inc: &execution.BucketedStep{StepKey: testStepKey("normalize"), Bucket: execution.BucketInProgress},
	}

	writes, err := testStateStore().shiftWrites(shift, time.Now())
	if err != nil {
		t.Fatalf("shiftWrites error = %v", err)
	}
	if len(writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(writes))
	}
	names := updateNames(writes[0])
	if !names["inProgress"] {
		t.Error("increment does not touch inProgress")
	}
	if names["failed"] || names["succeeded"] {
		t.Errorf("increment touches other counters: %v", names)
	}
}

func TestBucketAttribute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bucket  execution.Bucket
		want    string
		wantErr bool
	}{
		{execution.BucketInProgress, "inProgress", false},
		{execution.BucketFailed, "failed", false},
		{execution.BucketSucceeded, "succeeded", false},
		{execution.Bucket("PAUSED"), "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.bucket), func(t *testing.T) {
			t.Parallel()
			got, err := bucketAttribute(tt.bucket)
			if (err != nil) != tt.wantErr {
				t.Fatalf("bucketAttribute error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("bucketAttribute = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStateConditionFailed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			"direct conditional failure",
			&types.ConditionalCheckFailedException{},
			true,
		},
		{
			"wrapped conditional failure",
			fmt.Errorf("put: %w", &types.ConditionalCheckFailedException{}),
			true,
		},
		{
			"transaction canceled on state row",
			&types.TransactionCanceledException{CancellationReasons: []types.CancellationReason{
				{Code: aws.String("ConditionalCheckFailed")},
				{Code: aws.String("None")},
			}},
			true,
		},
		{
			"transaction canceled elsewhere",
			&types.TransactionCanceledException{CancellationReasons: []types.CancellationReason{
				{Code: aws.String("None")},
				{Code: aws.String("TransactionConflict")},
			}},
			false,
		},
		{
			"canceled without reasons",
			&types.TransactionCanceledException{},
			false,
		},
		{
			"unrelated",
			fmt.Errorf("boom"),
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := stateConditionFailed(tt.err); got != tt.want {
				t.Errorf("stateConditionFailed = %v, want %v", got, tt.want)
			}
		})
	}
}
