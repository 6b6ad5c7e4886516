package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/elephant-oracle/tracker-go/domain/failure"
)

// pageCursor is the serialized form of a DynamoDB continuation key.
// Index pages carry the index keys alongside the primary key; gsi2sk
// is kept as its numeric string.
type pageCursor struct {
	PK     string `json:"pk"`
	SK     string `json:"sk"`
	GSI2PK string `json:"gsi2pk,omitempty"`
	GSI2SK string `json:"gsi2sk,omitempty"`
}

func encodeCursor(key map[string]types.AttributeValue) (failure.PageToken, error) {
	if len(key) == 0 {
		return nil, nil
	}
	var cursor pageCursor
	if v, ok := key["pk"].(*types.AttributeValueMemberS); ok {
		cursor.PK = v.Value
	}
	if v, ok := key["sk"].(*types.AttributeValueMemberS); ok {
		cursor.SK = v.Value
	}
	if v, ok := key["gsi2pk"].(*types.AttributeValueMemberS); ok {
		cursor.GSI2PK = v.Value
	}
	if v, ok := key["gsi2sk"].(*types.AttributeValueMemberN); ok {
		cursor.GSI2SK = v.Value
	}
	return json.Marshal(cursor)
}

func decodeCursor(token failure.PageToken) (map[string]types.AttributeValue, error) {
	if token.Empty() {
		return nil, nil
	}
	var cursor pageCursor
	if err := json.Unmarshal(token, &cursor); err != nil {
		return nil, fmt.Errorf("decode page token: %w", err)
	}
	key := map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: cursor.PK},
		"sk": &types.AttributeValueMemberS{Value: cursor.SK},
	}
	if cursor.GSI2PK != "" {
		key["gsi2pk"] = &types.AttributeValueMemberS{Value: cursor.GSI2PK}
	}
	if cursor.GSI2SK != "" {
		key["gsi2sk"] = &types.AttributeValueMemberN{Value: cursor.GSI2SK}
	}
	return key, nil
}

// ScanFailedExecutions pages through rollups with a positive open
// error count. A page can come back empty with a non-empty token when
// the filter rejected every examined row; callers keep paging until
// the token runs out.
func (s *FailureStore) ScanFailedExecutions(ctx context.Context, token failure.PageToken, limit int) ([]*failure.FailedExecution, failure.PageToken, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	startKey, err := decodeCursor(token)
	if err != nil {
		return nil, nil, err
	}

	filter := expression.Name("entityType").Equal(expression.Value(entityTypeExecution)).
		And(expression.Name("openErrorCount").GreaterThan(expression.Value(int64(0))))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, nil, s.wrapError("scan failed executions", err)
	}

	input := &dynamodb.ScanInput{
		TableName:                 aws.String(s.tableName),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ExclusiveStartKey:         startKey,
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	out, err := s.client.Scan(ctx, input)
	if err != nil {
		return nil, nil, s.wrapError("scan failed executions", err)
	}

	var items []failedExecItem
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, nil, s.wrapError("scan failed executions", err)
	}
	rollups := make([]*failure.FailedExecution, 0, len(items))
	for _, item := range items {
		rollup, err := item.toFailedExecution()
		if err != nil {
			return nil, nil, s.wrapError("scan failed executions", err)
		}
		rollups = append(rollups, rollup)
	}

	next, err := encodeCursor(out.LastEvaluatedKey)
	if err != nil {
		return nil, nil, s.wrapError("scan failed executions", err)
	}
	return rollups, next, nil
}

// CountLinks returns the number of links under one execution.
func (s *FailureStore) CountLinks(ctx context.Context, executionID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	keyCond := expression.Key("pk").Equal(expression.Value(execPK(executionID))).
		And(expression.Key("sk").BeginsWith(errorKeyPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return 0, s.wrapError("count links", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Select:                    types.SelectCount,
		ConsistentRead:            aws.Bool(true),
	}

	total := 0
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, s.wrapError("count links", err)
		}
		total += int(page.Count)
	}
	return total, nil
}

// DeleteFailedExecution removes one rollup row. Deleting a row that is
// already gone is a no-op.
func (s *FailureStore) DeleteFailedExecution(ctx context.Context, executionID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       itemKey(execPK(executionID), metaSortKey),
	})
	return s.wrapError("delete failed execution", err)
}

// ScanLegacyCountIndex pages through error codes still filed under the
// legacy shared count-index partition.
func (s *FailureStore) ScanLegacyCountIndex(ctx context.Context, token failure.PageToken, limit int) ([]string, failure.PageToken, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	startKey, err := decodeCursor(token)
	if err != nil {
		return nil, nil, err
	}

	keyCond := expression.Key("gsi2pk").Equal(expression.Value(legacyCountPartition))
	filter := expression.Name("entityType").Equal(expression.Value(entityTypeError))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithFilter(filter).Build()
	if err != nil {
		return nil, nil, s.wrapError("scan legacy count index", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(countIndexName),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ExclusiveStartKey:         startKey,
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, nil, s.wrapError("scan legacy count index", err)
	}

	var items []errorItem
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, nil, s.wrapError("scan legacy count index", err)
	}
	codes := make([]string, 0, len(items))
	for _, item := range items {
		codes = append(codes, item.ErrorCode)
	}

	next, err := encodeCursor(out.LastEvaluatedKey)
	if err != nil {
		return nil, nil, s.wrapError("scan legacy count index", err)
	}
	return codes, next, nil
}

// RepartitionError moves one error aggregate to the dedicated
// count-index partition. A rejected condition means the row was
// already moved, raced with another migrator, is not an error row, or
// no longer exists; all of those count as already done.
func (s *FailureStore) RepartitionError(ctx context.Context, code string) (failure.MigrationOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	upd := expression.Set(expression.Name("gsi2pk"), expression.Value(errorCountPartition))
	cond := expression.Name("entityType").Equal(expression.Value(entityTypeError)).
		And(expression.Name("gsi2pk").Equal(expression.Value(legacyCountPartition)))
	expr, err := expression.NewBuilder().WithUpdate(upd).WithCondition(cond).Build()
	if err != nil {
		return "", s.wrapError("repartition error", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       itemKey(errorPK(code), metaSortKey),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return failure.MigrationAlreadyDone, nil
		}
		return "", s.wrapError("repartition error", err)
	}
	return failure.MigrationMigrated, nil
}
