package dynamodb

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/elephant-oracle/tracker-go/domain/event"
	"github.com/elephant-oracle/tracker-go/domain/failure"
)

const conditionalCheckFailedCode = "ConditionalCheckFailed"

// RecordEvent applies one workflow failure event: the execution rollup
// plus, per unique error code, the error aggregate and the
// execution-error link. Writes are chunked into transactions, each
// guarded by a conditional event marker, so a redelivered event
// re-applies only the chunks that never committed.
func (s *FailureStore) RecordEvent(ctx context.Context, env event.Envelope, now time.Time) (*failure.IngestResult, error) {
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

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	mergedType, err := s.mergedRollupType(ctx, env.Detail.ExecutionID, codes)
	if err != nil {
		return nil, err
	}
	existing, err := s.existingLinkCodes(ctx, env.Detail.ExecutionID)
	if err != nil {
		return nil, err
	}
	newOpen := int64(0)
	for _, code := range codes {
		if !existing[code.Code] {
			newOpen++
		}
	}

	chunks, err := s.buildIngestChunks(env, mergedType, newOpen, now)
	if err != nil {
		return nil, s.wrapError("record event", err)
	}

	applied := 0
	for i, chunk := range chunks {
		marker, err := s.markerWrite(env.ID, i, now)
		if err != nil {
			return nil, s.wrapError("record event", err)
		}
		items := append([]types.TransactWriteItem{marker}, chunk...)
		_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: items,
		})
		if err != nil {
			if chunkAlreadyApplied(err) {
				continue
			}
			return nil, s.wrapError("record event", err)
		}
		applied++
	}

	result.ChunksApplied = applied
	result.Duplicate = applied == 0
	return result, nil
}

// mergedRollupType reads the stored rollup type and folds in the
// event's codes. Disagreement collapses to the mixed marker.
func (s *FailureStore) mergedRollupType(ctx context.Context, executionID string, codes []event.CodeCount) (string, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            itemKey(execPK(executionID), metaSortKey),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", s.wrapError("record event", err)
	}

	merged := ""
	if len(out.Item) > 0 {
		var item failedExecItem
		if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
			return "", s.wrapError("record event", err)
		}
		merged = item.ErrorType
	}
	for _, code := range codes {
		merged = failure.MergeErrorType(merged, failure.ErrorTypeOf(code.Code))
	}
	return merged, nil
}

// existingLinkCodes returns the codes already linked to the execution,
// so the rollup's open count only rises for codes seen the first time.
func (s *FailureStore) existingLinkCodes(ctx context.Context, executionID string) (map[string]bool, error) {
	keyCond := expression.Key("pk").Equal(expression.Value(execPK(executionID))).
		And(expression.Key("sk").BeginsWith(errorKeyPrefix))
	proj := expression.NamesList(expression.Name("sk"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithProjection(proj).Build()
	if err != nil {
		return nil, s.wrapError("record event", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	}

	existing := make(map[string]bool)
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.wrapError("record event", err)
		}
		for _, item := range page.Items {
			if sk, ok := item["sk"].(*types.AttributeValueMemberS); ok {
				existing[codeFromSortKey(sk.Value)] = true
			}
		}
	}
	return existing, nil
}

// buildIngestChunks assembles the event's writes and packs them into
// transaction-sized chunks. The rollup update leads the first chunk;
// an aggregate and its link always share a chunk. One slot per chunk
// is reserved for the event marker.
func (s *FailureStore) buildIngestChunks(env event.Envelope, mergedType string, newOpen int64, now time.Time) ([][]types.TransactWriteItem, error) {
	rollup, err := s.rollupUpdate(env, mergedType, newOpen, now)
	if err != nil {
		return nil, err
	}
	groups := [][]types.TransactWriteItem{{rollup}}

	for _, code := range env.Detail.UniqueCodes() {
		aggregate, err := s.aggregateUpdate(code, env, now)
		if err != nil {
			return nil, err
		}
		link, err := s.linkUpdate(code, env, now)
		if err != nil {
			return nil, err
		}
		groups = append(groups, []types.TransactWriteItem{aggregate, link})
	}

	capacity := s.transactLimit - 1
	if capacity < 2 {
		capacity = 2
	}
	return packGroups(groups, capacity), nil
}

// packGroups fills chunks up to capacity without splitting a group.
func packGroups(groups [][]types.TransactWriteItem, capacity int) [][]types.TransactWriteItem {
	var chunks [][]types.TransactWriteItem
	var current []types.TransactWriteItem
	for _, group := range groups {
		if len(current) > 0 && len(current)+len(group) > capacity {
			chunks = append(chunks, current)
			current = nil
		}
		current = append(current, group...)
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// rollupUpdate upserts the per-execution rollup: counters rise
// atomically, create-only fields keep their first value, and the
// last-writer fields follow the event.
func (s *FailureStore) rollupUpdate(env event.Envelope, mergedType string, newOpen int64, now time.Time) (types.TransactWriteItem, error) {
	detail := env.Detail
	nowValue := formatItemTime(now)

	upd := expression.
		Add(expression.Name("totalOccurrences"), expression.Value(detail.TotalOccurrences())).
		Add(expression.Name("gsi2sk"), expression.Value(detail.TotalOccurrences())).
		Add(expression.Name("uniqueErrorCount"), expression.Value(int64(len(detail.UniqueCodes())))).
		Add(expression.Name("openErrorCount"), expression.Value(newOpen)).
		Set(expression.Name("updatedAt"), expression.Value(nowValue)).
		Set(expression.Name("county"), expression.Value(detail.County)).
		Set(expression.Name("errorType"), expression.Value(mergedType)).
		Set(expression.Name("executionId"),
			expression.IfNotExists(expression.Name("executionId"), expression.Value(detail.ExecutionID))).
		Set(expression.Name("entityType"),
			expression.IfNotExists(expression.Name("entityType"), expression.Value(entityTypeExecution))).
		Set(expression.Name("status"),
			expression.IfNotExists(expression.Name("status"), expression.Value(string(failure.StatusFailed)))).
		Set(expression.Name("createdAt"),
			expression.IfNotExists(expression.Name("createdAt"), expression.Value(nowValue))).
		Set(expression.Name("gsi2pk"),
			expression.IfNotExists(expression.Name("gsi2pk"), expression.Value(legacyCountPartition)))
	if detail.TaskToken != "" {
		upd = upd.Set(expression.Name("taskToken"), expression.Value(detail.TaskToken))
	}

	return s.updateWrite(execPK(detail.ExecutionID), metaSortKey, upd)
}

// aggregateUpdate upserts the cross-execution aggregate for one code.
// The count-index sort key mirrors the counter so the same ADD
// repositions the row.
func (s *FailureStore) aggregateUpdate(code event.CodeCount, env event.Envelope, now time.Time) (types.TransactWriteItem, error) {
	nowValue := formatItemTime(now)

	upd := expression.
		Add(expression.Name("totalCount"), expression.Value(code.Count)).
		Add(expression.Name("gsi2sk"), expression.Value(code.Count)).
		Set(expression.Name("updatedAt"), expression.Value(nowValue)).
		Set(expression.Name("latestExecutionId"), expression.Value(env.Detail.ExecutionID)).
		Set(expression.Name("errorType"), expression.Value(failure.ErrorTypeOf(code.Code))).
		Set(expression.Name("errorCode"),
			expression.IfNotExists(expression.Name("errorCode"), expression.Value(code.Code))).
		Set(expression.Name("entityType"),
			expression.IfNotExists(expression.Name("entityType"), expression.Value(entityTypeError))).
		Set(expression.Name("status"),
			expression.IfNotExists(expression.Name("status"), expression.Value(string(failure.StatusFailed)))).
		Set(expression.Name("createdAt"),
			expression.IfNotExists(expression.Name("createdAt"), expression.Value(nowValue))).
		Set(expression.Name("gsi1pk"),
			expression.IfNotExists(expression.Name("gsi1pk"), expression.Value(typePartition(code.Code)))).
		Set(expression.Name("gsi1sk"),
			expression.IfNotExists(expression.Name("gsi1sk"), expression.Value(errorPK(code.Code)))).
		Set(expression.Name("gsi2pk"),
			expression.IfNotExists(expression.Name("gsi2pk"), expression.Value(errorCountPartition)))
	if detail := env.Detail.LastDetailFor(code.Code); len(detail) > 0 {
		upd = upd.Set(expression.Name("lastDetail"), expression.Value(detail))
	}

	return s.updateWrite(errorPK(code.Code), metaSortKey, upd)
}

// linkUpdate upserts the link joining the execution to one code.
func (s *FailureStore) linkUpdate(code event.CodeCount, env event.Envelope, now time.Time) (types.TransactWriteItem, error) {
	detail := env.Detail
	nowValue := formatItemTime(now)

	upd := expression.
		Add(expression.Name("occurrences"), expression.Value(code.Count)).
		Set(expression.Name("updatedAt"), expression.Value(nowValue)).
		Set(expression.Name("county"), expression.Value(detail.County)).
		Set(expression.Name("executionId"),
			expression.IfNotExists(expression.Name("executionId"), expression.Value(detail.ExecutionID))).
		Set(expression.Name("errorCode"),
			expression.IfNotExists(expression.Name("errorCode"), expression.Value(code.Code))).
		Set(expression.Name("entityType"),
			expression.IfNotExists(expression.Name("entityType"), expression.Value(entityTypeLink))).
		Set(expression.Name("status"),
			expression.IfNotExists(expression.Name("status"), expression.Value(string(failure.StatusFailed)))).
		Set(expression.Name("createdAt"),
			expression.IfNotExists(expression.Name("createdAt"), expression.Value(nowValue))).
		Set(expression.Name("gsi1pk"),
			expression.IfNotExists(expression.Name("gsi1pk"), expression.Value(errorPK(code.Code)))).
		Set(expression.Name("gsi1sk"),
			expression.IfNotExists(expression.Name("gsi1sk"), expression.Value(execPK(detail.ExecutionID))))

	return s.updateWrite(execPK(detail.ExecutionID), errorPK(code.Code), upd)
}

func (s *FailureStore) updateWrite(pk, sk string, upd expression.UpdateBuilder) (types.TransactWriteItem, error) {
	expr, err := expression.NewBuilder().WithUpdate(upd).Build()
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:                 aws.String(s.tableName),
			Key:                       itemKey(pk, sk),
			UpdateExpression:          expr.Update(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		},
	}, nil
}

// markerWrite is the conditional put that makes a chunk apply at most
// once.
func (s *FailureStore) markerWrite(eventID string, chunk int, now time.Time) (types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(newMarkerItem(eventID, chunk, now, s.markerTTL))
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(s.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(pk)"),
		},
	}, nil
}

// chunkAlreadyApplied reports whether a transaction was canceled
// because its event marker already exists, which means an earlier
// delivery committed this chunk.
func chunkAlreadyApplied(err error) bool {
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		return false
	}
	if len(canceled.CancellationReasons) == 0 {
		return false
	}
	first := canceled.CancellationReasons[0]
	return first.Code != nil && *first.Code == conditionalCheckFailedCode
}
