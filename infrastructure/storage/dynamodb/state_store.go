package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/elephant-oracle/tracker-go/domain/execution"
)

// StateStore implements execution.Store on the executions table.
type StateStore struct {
	client       *dynamodb.Client
	tableName    string
	queryTimeout time.Duration
	shardCount   int
}

// NewStateStore creates a state store backed by the client's
// executions table.
func NewStateStore(client *Client) *StateStore {
	cfg := client.config
	return &StateStore{
		client:       client.client,
		tableName:    cfg.ExecutionsTableName,
		queryTimeout: cfg.QueryTimeout,
		shardCount:   cfg.ShardCount,
	}
}

var _ execution.Store = (*StateStore)(nil)

// wrapError translates SDK failures into domain errors. Conditional
// failures are interpreted at the call sites.
func (s *StateStore) wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var throughput *types.ProvisionedThroughputExceededException
	var requestLimit *types.RequestLimitExceeded
	var conflict *types.TransactionConflictException
	if errors.As(err, &throughput) || errors.As(err, &requestLimit) || errors.As(err, &conflict) {
		return fmt.Errorf("%s: %w", op, errors.Join(execution.ErrThrottled, err))
	}

	return fmt.Errorf("%s: %w", op, errors.Join(execution.ErrStoreInternal, err))
}

// Get retrieves the state of one execution. The read is strongly
// consistent because it feeds the compare-and-swap decision.
func (s *StateStore) Get(ctx context.Context, executionID string) (*execution.State, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            itemKey(execPK(executionID), stateSortKey),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, s.wrapError("get state", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("execution %s: %w", executionID, execution.ErrStateNotFound)
	}

	var item stateItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, s.wrapError("get state", err)
	}
	state, err := item.toState()
	if err != nil {
		return nil, s.wrapError("get state", err)
	}
	return state, nil
}

// Create persists a first-sighting state, conditional on no state
// existing, and applies the shift in the same transaction.
func (s *StateStore) Create(ctx context.Context, state execution.State, shift execution.AggregateShift) error {
	cond := expression.AttributeNotExists(expression.Name("pk"))
	err := s.writeState(ctx, state, cond, shift)
	if err != nil && stateConditionFailed(err) {
		return fmt.Errorf("execution %s: %w", state.ExecutionID, execution.ErrStateExists)
	}
	return err
}

// Update persists an accepted state, conditional on the stored version
// matching expectedVersion, and applies the shift in the same
// transaction.
func (s *StateStore) Update(ctx context.Context, state execution.State, expectedVersion int64, shift execution.AggregateShift) error {
	cond := expression.Name("version").Equal(expression.Value(expectedVersion))
	err := s.writeState(ctx, state, cond, shift)
	if err != nil && stateConditionFailed(err) {
		return fmt.Errorf("execution %s: %w", state.ExecutionID, execution.ErrVersionConflict)
	}
	return err
}

// writeState puts the state row under its condition. When the shift
// moves counters, the counter updates ride in the same transaction;
// otherwise a plain conditional put suffices.
func (s *StateStore) writeState(ctx context.Context, state execution.State, cond expression.ConditionBuilder, shift execution.AggregateShift) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	item, err := attributevalue.MarshalMap(newStateItem(&state, s.shardCount))
	if err != nil {
		return s.wrapError("write state", err)
	}
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return s.wrapError("write state", err)
	}

	shiftWrites, err := s.shiftWrites(shift, time.Now())
	if err != nil {
		return s.wrapError("write state", err)
	}

	if len(shiftWrites) == 0 {
		_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                 aws.String(s.tableName),
			Item:                      item,
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		if err != nil && !stateConditionFailed(err) {
			return s.wrapError("write state", err)
		}
		return err
	}

	items := append([]types.TransactWriteItem{{
		Put: &types.Put{
			TableName:                 aws.String(s.tableName),
			Item:                      item,
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		},
	}}, shiftWrites...)

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil && !stateConditionFailed(err) {
		return s.wrapError("write state", err)
	}
	return err
}

// stateConditionFailed reports whether the state row's condition was
// rejected, either directly or as the first reason of a canceled
// transaction.
func stateConditionFailed(err error) bool {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		if len(canceled.CancellationReasons) == 0 {
			return false
		}
		reason := canceled.CancellationReasons[0]
		return reason.Code != nil && *reason.Code == conditionalCheckFailedCode
	}
	var conditionFailed *types.ConditionalCheckFailedException
	return errors.As(err, &conditionFailed)
}

// shiftWrites builds the counter updates for a shift. A decrement and
// increment landing on the same row merge into one update; a
// transaction cannot touch an item twice.
func (s *StateStore) shiftWrites(shift execution.AggregateShift, now time.Time) ([]types.TransactWriteItem, error) {
	if shift.IsZero() {
		return nil, nil
	}

	if shift.Dec != nil && shift.Inc != nil && shift.Dec.StepKey == shift.Inc.StepKey {
		decAttr, err := bucketAttribute(shift.Dec.Bucket)
		if err != nil {
			return nil, err
		}
		incAttr, err := bucketAttribute(shift.Inc.Bucket)
		if err != nil {
			return nil, err
		}
		upd := s.aggregateBase(shift.Inc.StepKey, now).
			Add(expression.Name(decAttr), expression.Value(int64(-1))).
			Add(expression.Name(incAttr), expression.Value(int64(1)))
		write, err := s.aggregateWrite(shift.Inc.StepKey, upd)
		if err != nil {
			return nil, err
		}
		return []types.TransactWriteItem{write}, nil
	}

	var writes []types.TransactWriteItem
	if shift.Dec != nil {
		attr, err := bucketAttribute(shift.Dec.Bucket)
		if err != nil {
			return nil, err
		}
		upd := s.aggregateBase(shift.Dec.StepKey, now).
			Add(expression.Name(attr), expression.Value(int64(-1)))
		write, err := s.aggregateWrite(shift.Dec.StepKey, upd)
		if err != nil {
			return nil, err
		}
		writes = append(writes, write)
	}
	if shift.Inc != nil {
		attr, err := bucketAttribute(shift.Inc.Bucket)
		if err != nil {
			return nil, err
		}
		upd := s.aggregateBase(shift.Inc.StepKey, now).
			Add(expression.Name(attr), expression.Value(int64(1)))
		write, err := s.aggregateWrite(shift.Inc.StepKey, upd)
		if err != nil {
			return nil, err
		}
		writes = append(writes, write)
	}
	return writes, nil
}

// aggregateBase seeds a counter row's identity and index keys on first
// touch and bumps its timestamp.
func (s *StateStore) aggregateBase(key execution.StepKey, now time.Time) expression.UpdateBuilder {
	return expression.
		Set(expression.Name("updatedAt"), expression.Value(formatItemTime(now))).
		Set(expression.Name("county"),
			expression.IfNotExists(expression.Name("county"), expression.Value(key.County))).
		Set(expression.Name("dataGroup"),
			expression.IfNotExists(expression.Name("dataGroup"), expression.Value(key.DataGroup))).
		Set(expression.Name("phase"),
			expression.IfNotExists(expression.Name("phase"), expression.Value(key.Phase))).
		Set(expression.Name("step"),
			expression.IfNotExists(expression.Name("step"), expression.Value(key.Step))).
		Set(expression.Name("gsi1pk"),
			expression.IfNotExists(expression.Name("gsi1pk"),
				expression.Value(stepGroupPartition(key.Phase, key.Step, key.DataGroup)))).
		Set(expression.Name("gsi1sk"),
			expression.IfNotExists(expression.Name("gsi1sk"), expression.Value(countySK(key.County))))
}

func (s *StateStore) aggregateWrite(key execution.StepKey, upd expression.UpdateBuilder) (types.TransactWriteItem, error) {
	expr, err := expression.NewBuilder().WithUpdate(upd).Build()
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:                 aws.String(s.tableName),
			Key:                       itemKey(aggPK(key.County, key.DataGroup), stepSK(key.Phase, key.Step)),
			UpdateExpression:          expr.Update(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		},
	}, nil
}

func bucketAttribute(b execution.Bucket) (string, error) {
	switch b {
	case execution.BucketInProgress:
		return "inProgress", nil
	case execution.BucketFailed:
		return "failed", nil
	case execution.BucketSucceeded:
		return "succeeded", nil
	}
	return "", fmt.Errorf("unknown bucket %q", b)
}

// GetStepAggregate retrieves the live counters for one step. A row
// that was never touched reads as all-zero counters.
func (s *StateStore) GetStepAggregate(ctx context.Context, key execution.StepKey) (*execution.StepAggregate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       itemKey(aggPK(key.County, key.DataGroup), stepSK(key.Phase, key.Step)),
	})
	if err != nil {
		return nil, s.wrapError("get step aggregate", err)
	}
	if len(out.Item) == 0 {
		return &execution.StepAggregate{Key: key}, nil
	}

	var item aggregateItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, s.wrapError("get step aggregate", err)
	}
	aggregate, err := item.toAggregate()
	if err != nil {
		return nil, s.wrapError("get step aggregate", err)
	}
	return aggregate, nil
}

// ListStepAggregates returns every step counter for one
// (county, data group) partition, in phase/step key order.
func (s *StateStore) ListStepAggregates(ctx context.Context, county, dataGroup string) ([]*execution.StepAggregate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	return s.queryAggregates(ctx, &dynamodb.QueryInput{
		TableName: aws.String(s.tableName),
	}, expression.Key("pk").Equal(expression.Value(aggPK(county, dataGroup))), "list step aggregates")
}

// ListByStep returns the per-county counters for one
// (phase, step, data group), answered by the step index.
func (s *StateStore) ListByStep(ctx context.Context, phase, step, dataGroup string) ([]*execution.StepAggregate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	return s.queryAggregates(ctx, &dynamodb.QueryInput{
		TableName: aws.String(s.tableName),
		IndexName: aws.String(stepIndexName),
	}, expression.Key("gsi1pk").Equal(
		expression.Value(stepGroupPartition(phase, step, dataGroup))), "list by step")
}

func (s *StateStore) queryAggregates(ctx context.Context, input *dynamodb.QueryInput, keyCond expression.KeyConditionBuilder, op string) ([]*execution.StepAggregate, error) {
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, s.wrapError(op, err)
	}
	input.KeyConditionExpression = expr.KeyCondition()
	input.ExpressionAttributeNames = expr.Names()
	input.ExpressionAttributeValues = expr.Values()

	var aggregates []*execution.StepAggregate
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.wrapError(op, err)
		}
		var items []aggregateItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, s.wrapError(op, err)
		}
		for _, item := range items {
			aggregate, err := item.toAggregate()
			if err != nil {
				return nil, s.wrapError(op, err)
			}
			aggregates = append(aggregates, aggregate)
		}
	}
	return aggregates, nil
}

// ListStates returns up to limit states across all executions, most
// recent event first. Each shard of the global index is read for the
// limit and the merged result is trimmed.
func (s *StateStore) ListStates(ctx context.Context, limit int) ([]*execution.State, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	shards := s.shardCount
	if shards < 1 {
		shards = 1
	}

	var states []*execution.State
	for shard := 0; shard < shards; shard++ {
		keyCond := expression.Key("gsi2pk").Equal(
			expression.Value(fmt.Sprintf("%s%d", shardKeyPrefix, shard)))
		expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
		if err != nil {
			return nil, s.wrapError("list states", err)
		}

		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.tableName),
			IndexName:                 aws.String(globalIndexName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ScanIndexForward:          aws.Bool(false),
			Limit:                     aws.Int32(int32(limit)),
		})
		if err != nil {
			return nil, s.wrapError("list states", err)
		}

		var items []stateItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, s.wrapError("list states", err)
		}
		for _, item := range items {
			state, err := item.toState()
			if err != nil {
				return nil, s.wrapError("list states", err)
			}
			states = append(states, state)
		}
	}

	sort.Slice(states, func(i, j int) bool {
		if states[i].LastEventAt.Equal(states[j].LastEventAt) {
			return states[i].ExecutionID < states[j].ExecutionID
		}
		return states[i].LastEventAt.After(states[j].LastEventAt)
	})
	if len(states) > limit {
		states = states[:limit]
	}
	return states, nil
}
