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
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/elephant-oracle/tracker-go/domain/failure"
)

// FailureStore implements failure.Store and failure.Maintenance on the
// errors table.
type FailureStore struct {
	client        *dynamodb.Client
	tableName     string
	queryTimeout  time.Duration
	transactLimit int
	batchSize     int
	markerTTL     time.Duration
	unprocessed   retry.Retry[int]
}

// NewFailureStore creates a failure store backed by the client's errors
// table.
func NewFailureStore(client *Client) *FailureStore {
	cfg := client.config
	return &FailureStore{
		client:        client.client,
		tableName:     cfg.ErrorsTableName,
		queryTimeout:  cfg.QueryTimeout,
		transactLimit: cfg.TransactLimit,
		batchSize:     cfg.BatchSize,
		markerTTL:     cfg.MarkerTTL,
		unprocessed: retry.New[int](retry.Config{
			MaxAttempts:   cfg.RetryMaxAttempts,
			InitialDelay:  cfg.RetryInitialDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    cfg.RetryBackoffMultiplier,
		}),
	}
}

var (
	_ failure.Store       = (*FailureStore)(nil)
	_ failure.Maintenance = (*FailureStore)(nil)
)

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberS{Value: sk},
	}
}

// wrapError translates SDK failures into domain errors. Conditional
// check failures are interpreted at the call sites, where they carry
// operation-specific meaning.
func (s *FailureStore) wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var throughput *types.ProvisionedThroughputExceededException
	var requestLimit *types.RequestLimitExceeded
	var conflict *types.TransactionConflictException
	switch {
	case errors.As(err, &throughput), errors.As(err, &requestLimit):
		return fmt.Errorf("%s: %w", op, errors.Join(failure.ErrThrottled, err))
	case errors.As(err, &conflict):
		// Item-level contention backs off the same way throttling does.
		return fmt.Errorf("%s: %w", op, errors.Join(failure.ErrThrottled, err))
	}

	var noTable *types.ResourceNotFoundException
	if errors.As(err, &noTable) {
		return fmt.Errorf("%s: %w", op, errors.Join(failure.ErrMissingTable, err))
	}

	return fmt.Errorf("%s: %w", op, errors.Join(failure.ErrStoreInternal, err))
}

// GetError retrieves one error aggregate by code.
func (s *FailureStore) GetError(ctx context.Context, code string) (*failure.ErrorRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       itemKey(errorPK(code), metaSortKey),
	})
	if err != nil {
		return nil, s.wrapError("get error", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("error %s: %w", code, failure.ErrNotFound)
	}

	var item errorItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, s.wrapError("get error", err)
	}
	record, err := item.toRecord()
	if err != nil {
		return nil, s.wrapError("get error", err)
	}
	return record, nil
}

// ListErrorsByType returns aggregates sharing a coarse type prefix,
// answered by the reverse index.
func (s *FailureStore) ListErrorsByType(ctx context.Context, errorType string, limit int) ([]*failure.ErrorRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	keyCond := expression.Key("gsi1pk").Equal(expression.Value(typeKeyPrefix + errorType))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, s.wrapError("list errors by type", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(reverseIndexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	var records []*failure.ErrorRecord
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.wrapError("list errors by type", err)
		}
		var items []errorItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, s.wrapError("list errors by type", err)
		}
		for _, item := range items {
			record, err := item.toRecord()
			if err != nil {
				return nil, s.wrapError("list errors by type", err)
			}
			records = append(records, record)
			if limit > 0 && len(records) >= limit {
				return records, nil
			}
		}
	}
	return records, nil
}

// TopErrorsByCount returns aggregates ordered by descending total
// count. Both count-index partitions are consulted so rows not yet
// repartitioned still rank.
func (s *FailureStore) TopErrorsByCount(ctx context.Context, limit int) ([]*failure.ErrorRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	records, err := s.topErrorsInPartition(ctx, errorCountPartition, false, limit)
	if err != nil {
		return nil, err
	}
	legacy, err := s.topErrorsInPartition(ctx, legacyCountPartition, true, limit)
	if err != nil {
		return nil, err
	}
	records = append(records, legacy...)

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].TotalCount > records[j].TotalCount
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// topErrorsInPartition reads one count-index partition in descending
// count order. The legacy partition interleaves rollup rows, so reads
// there filter on the entity discriminator.
func (s *FailureStore) topErrorsInPartition(ctx context.Context, partition string, filtered bool, limit int) ([]*failure.ErrorRecord, error) {
	keyCond := expression.Key("gsi2pk").Equal(expression.Value(partition))
	builder := expression.NewBuilder().WithKeyCondition(keyCond)
	if filtered {
		builder = builder.WithFilter(expression.Name("entityType").Equal(expression.Value(entityTypeError)))
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, s.wrapError("top errors", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(countIndexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		FilterExpression:          expr.Filter(),
		ScanIndexForward:          aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	var records []*failure.ErrorRecord
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.wrapError("top errors", err)
		}
		var items []errorItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, s.wrapError("top errors", err)
		}
		for _, item := range items {
			record, err := item.toRecord()
			if err != nil {
				return nil, s.wrapError("top errors", err)
			}
			records = append(records, record)
			if limit > 0 && len(records) >= limit {
				return records, nil
			}
		}
	}
	return records, nil
}

// GetFailedExecution retrieves one execution rollup.
func (s *FailureStore) GetFailedExecution(ctx context.Context, executionID string) (*failure.FailedExecution, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       itemKey(execPK(executionID), metaSortKey),
	})
	if err != nil {
		return nil, s.wrapError("get failed execution", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("execution %s: %w", executionID, failure.ErrNotFound)
	}

	var item failedExecItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, s.wrapError("get failed execution", err)
	}
	rollup, err := item.toFailedExecution()
	if err != nil {
		return nil, s.wrapError("get failed execution", err)
	}
	return rollup, nil
}

// TopFailedExecution returns the rollup with the highest total
// occurrence count, or nil when none exist. The shared count-index
// partition interleaves legacy error rows, so pages are filtered until
// the first rollup appears.
func (s *FailureStore) TopFailedExecution(ctx context.Context) (*failure.FailedExecution, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	keyCond := expression.Key("gsi2pk").Equal(expression.Value(legacyCountPartition))
	filter := expression.Name("entityType").Equal(expression.Value(entityTypeExecution))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithFilter(filter).Build()
	if err != nil {
		return nil, s.wrapError("top failed execution", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(countIndexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		FilterExpression:          expr.Filter(),
		ScanIndexForward:          aws.Bool(false),
	}

	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.wrapError("top failed execution", err)
		}
		if len(page.Items) == 0 {
			continue
		}
		var item failedExecItem
		if err := attributevalue.UnmarshalMap(page.Items[0], &item); err != nil {
			return nil, s.wrapError("top failed execution", err)
		}
		rollup, err := item.toFailedExecution()
		if err != nil {
			return nil, s.wrapError("top failed execution", err)
		}
		return rollup, nil
	}
	return nil, nil
}

// LinksForExecution returns every link under one execution.
func (s *FailureStore) LinksForExecution(ctx context.Context, executionID string) ([]*failure.ExecutionErrorLink, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	return s.queryLinks(ctx, &dynamodb.QueryInput{
		TableName: aws.String(s.tableName),
	}, expression.Key("pk").Equal(expression.Value(execPK(executionID))).
		And(expression.Key("sk").BeginsWith(errorKeyPrefix)), "links for execution")
}

// LinksForError returns every link referencing one error code,
// answered by the reverse index.
func (s *FailureStore) LinksForError(ctx context.Context, code string) ([]*failure.ExecutionErrorLink, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	return s.queryLinks(ctx, &dynamodb.QueryInput{
		TableName: aws.String(s.tableName),
		IndexName: aws.String(reverseIndexName),
	}, expression.Key("gsi1pk").Equal(expression.Value(errorPK(code))), "links for error")
}

func (s *FailureStore) queryLinks(ctx context.Context, input *dynamodb.QueryInput, keyCond expression.KeyConditionBuilder, op string) ([]*failure.ExecutionErrorLink, error) {
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, s.wrapError(op, err)
	}
	input.KeyConditionExpression = expr.KeyCondition()
	input.ExpressionAttributeNames = expr.Names()
	input.ExpressionAttributeValues = expr.Values()

	var links []*failure.ExecutionErrorLink
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.wrapError(op, err)
		}
		var items []linkItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, s.wrapError(op, err)
		}
		for _, item := range items {
			link, err := item.toLink()
			if err != nil {
				return nil, s.wrapError(op, err)
			}
			links = append(links, link)
		}
	}
	return links, nil
}
