package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/elephant-oracle/tracker-go/domain/failure"
)

var errUnprocessedItems = errors.New("unprocessed items remain")

// DeleteExecution removes the rollup and every link under the
// execution. It returns the codes the deleted links referenced so the
// caller can sweep newly orphaned aggregates.
func (s *FailureStore) DeleteExecution(ctx context.Context, executionID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	keys, codes, err := s.executionRowKeys(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	if err := s.batchDelete(ctx, keys); err != nil {
		return nil, err
	}
	return codes, nil
}

// DeleteErrorsForExecution removes every link under one execution,
// zeroes the rollup's open count, and sweeps aggregates that lost
// their last reference.
func (s *FailureStore) DeleteErrorsForExecution(ctx context.Context, executionID string) (*failure.ResolutionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	links, err := s.queryLinks(ctx, &dynamodb.QueryInput{
		TableName:      aws.String(s.tableName),
		ConsistentRead: aws.Bool(true),
	}, expression.Key("pk").Equal(expression.Value(execPK(executionID))).
		And(expression.Key("sk").BeginsWith(errorKeyPrefix)), "delete errors for execution")
	if err != nil {
		return nil, err
	}

	result := &failure.ResolutionResult{}
	if len(links) == 0 {
		return result, nil
	}

	keys := make([]map[string]types.AttributeValue, 0, len(links))
	codes := make([]string, 0, len(links))
	for _, link := range links {
		keys = append(keys, itemKey(execPK(executionID), errorPK(link.ErrorCode)))
		codes = append(codes, link.ErrorCode)
	}
	if err := s.batchDelete(ctx, keys); err != nil {
		return nil, err
	}
	if err := s.zeroOpenCount(ctx, executionID); err != nil {
		return nil, err
	}

	orphaned, err := s.DeleteOrphanedAggregates(ctx, codes)
	if err != nil {
		return nil, err
	}

	result.DeletedCount = len(links)
	result.AffectedExecutionIDs = []string{executionID}
	result.DeletedErrorCodes = codes
	result.OrphanedCodesRemoved = orphaned
	return result, nil
}

// DeleteErrorFromAllExecutions removes one error's links across all
// executions, deletes its aggregate, and drops each affected rollup's
// open count by one.
func (s *FailureStore) DeleteErrorFromAllExecutions(ctx context.Context, code string) (*failure.ResolutionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	links, err := s.queryLinks(ctx, &dynamodb.QueryInput{
		TableName: aws.String(s.tableName),
		IndexName: aws.String(reverseIndexName),
	}, expression.Key("gsi1pk").Equal(expression.Value(errorPK(code))), "delete error from executions")
	if err != nil {
		return nil, err
	}

	keys := make([]map[string]types.AttributeValue, 0, len(links)+1)
	executionIDs := make([]string, 0, len(links))
	for _, link := range links {
		keys = append(keys, itemKey(execPK(link.ExecutionID), errorPK(code)))
		executionIDs = append(executionIDs, link.ExecutionID)
	}
	keys = append(keys, itemKey(errorPK(code), metaSortKey))

	if err := s.batchDelete(ctx, keys); err != nil {
		return nil, err
	}
	for _, executionID := range executionIDs {
		if err := s.decrementOpenCount(ctx, executionID); err != nil {
			return nil, err
		}
	}

	return &failure.ResolutionResult{
		DeletedCount:         len(links),
		AffectedExecutionIDs: executionIDs,
		DeletedErrorCodes:    []string{code},
	}, nil
}

// MarkMaybeSolved transitions matching links (and the aggregate, when
// selecting by code) to StatusMaybeSolved.
func (s *FailureStore) MarkMaybeSolved(ctx context.Context, sel failure.Selector) (*failure.MarkResult, error) {
	return s.markLinks(ctx, sel, failure.StatusMaybeSolved)
}

// MarkUnrecoverable transitions matching links (and the aggregate,
// when selecting by code) to StatusMaybeUnrecoverable.
func (s *FailureStore) MarkUnrecoverable(ctx context.Context, sel failure.Selector) (*failure.MarkResult, error) {
	return s.markLinks(ctx, sel, failure.StatusMaybeUnrecoverable)
}

// markLinks applies a status transition to every matching row with
// TransactWriteItems, chunked under the transaction-size limit. A row
// already in the target state, or deleted underneath the selection,
// cancels its chunk with a conditional failure; the chunk retries
// without that row, so the rest still transition.
func (s *FailureStore) markLinks(ctx context.Context, sel failure.Selector, status failure.ErrorStatus) (*failure.MarkResult, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	targets, err := s.markTargets(ctx, sel)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	writes := make([]markWrite, 0, len(targets))
	for _, target := range targets {
		item, err := s.markUpdate(target.pk, target.sk, status, now)
		if err != nil {
			return nil, s.wrapError("mark", err)
		}
		writes = append(writes, markWrite{item: item, executionID: target.executionID})
	}

	limit := s.transactLimit
	if limit < 1 {
		limit = 1
	}

	result := &failure.MarkResult{}
	seen := make(map[string]bool)
	for start := 0; start < len(writes); start += limit {
		end := start + limit
		if end > len(writes) {
			end = len(writes)
		}
		applied, err := s.applyMarkChunk(ctx, writes[start:end])
		if err != nil {
			return nil, err
		}
		for _, write := range applied {
			if write.executionID == "" {
				continue
			}
			result.UpdatedCount++
			if !seen[write.executionID] {
				seen[write.executionID] = true
				result.AffectedExecutionIDs = append(result.AffectedExecutionIDs, write.executionID)
			}
		}
	}
	return result, nil
}

// markTarget is one row a selector covers. executionID is empty for
// the aggregate row, which transitions but does not count as a link.
type markTarget struct {
	pk          string
	sk          string
	executionID string
}

// markWrite pairs a built transaction item with the execution it
// belongs to.
type markWrite struct {
	item        types.TransactWriteItem
	executionID string
}

// markTargets resolves the rows a selector covers. Code-scoped
// selections include the aggregate row so listings reflect the
// transition without a join.
func (s *FailureStore) markTargets(ctx context.Context, sel failure.Selector) ([]markTarget, error) {
	switch {
	case sel.ExecutionID != "" && sel.ErrorCode != "":
		return []markTarget{{
			pk:          execPK(sel.ExecutionID),
			sk:          errorPK(sel.ErrorCode),
			executionID: sel.ExecutionID,
		}}, nil

	case sel.ExecutionID != "":
		links, err := s.queryLinks(ctx, &dynamodb.QueryInput{
			TableName: aws.String(s.tableName),
		}, expression.Key("pk").Equal(expression.Value(execPK(sel.ExecutionID))).
			And(expression.Key("sk").BeginsWith(errorKeyPrefix)), "mark links")
		if err != nil {
			return nil, err
		}
		targets := make([]markTarget, 0, len(links))
		for _, link := range links {
			targets = append(targets, markTarget{
				pk:          execPK(sel.ExecutionID),
				sk:          errorPK(link.ErrorCode),
				executionID: sel.ExecutionID,
			})
		}
		return targets, nil

	default:
		links, err := s.queryLinks(ctx, &dynamodb.QueryInput{
			TableName: aws.String(s.tableName),
			IndexName: aws.String(reverseIndexName),
		}, expression.Key("gsi1pk").Equal(expression.Value(errorPK(sel.ErrorCode))), "mark links")
		if err != nil {
			return nil, err
		}
		targets := make([]markTarget, 0, len(links)+1)
		for _, link := range links {
			targets = append(targets, markTarget{
				pk:          execPK(link.ExecutionID),
				sk:          errorPK(sel.ErrorCode),
				executionID: link.ExecutionID,
			})
		}
		targets = append(targets, markTarget{pk: errorPK(sel.ErrorCode), sk: metaSortKey})
		return targets, nil
	}
}

// markUpdate builds the conditional status write for one row. The
// condition keeps the write from repeating on rows already in the
// target state and from resurrecting deleted rows.
func (s *FailureStore) markUpdate(pk, sk string, status failure.ErrorStatus, now time.Time) (types.TransactWriteItem, error) {
	upd := expression.
		Set(expression.Name("status"), expression.Value(string(status))).
		Set(expression.Name("updatedAt"), expression.Value(formatItemTime(now)))
	cond := expression.AttributeExists(expression.Name("pk")).
		And(expression.Name("status").NotEqual(expression.Value(string(status))))
	expr, err := expression.NewBuilder().WithUpdate(upd).WithCondition(cond).Build()
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:                 aws.String(s.tableName),
			Key:                       itemKey(pk, sk),
			UpdateExpression:          expr.Update(),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		},
	}, nil
}

// applyMarkChunk commits one transaction chunk, retrying without rows
// whose conditions failed until the rest commit. Returns the writes
// that applied.
func (s *FailureStore) applyMarkChunk(ctx context.Context, chunk []markWrite) ([]markWrite, error) {
	pending := chunk
	for len(pending) > 0 {
		items := make([]types.TransactWriteItem, len(pending))
		for i, write := range pending {
			items[i] = write.item
		}
		_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: items,
		})
		if err == nil {
			return pending, nil
		}
		next, dropped := dropConditionFailures(pending, err)
		if !dropped {
			return nil, s.wrapError("mark", err)
		}
		pending = next
	}
	return nil, nil
}

// dropConditionFailures removes the writes a cancellation blames on
// their conditions. The second return is false when the cancellation
// carries no conditional failure, meaning a retry without items cannot
// fix it.
func dropConditionFailures(pending []markWrite, err error) ([]markWrite, bool) {
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		return nil, false
	}
	if len(canceled.CancellationReasons) != len(pending) {
		return nil, false
	}

	var kept []markWrite
	dropped := false
	for i, reason := range canceled.CancellationReasons {
		if reason.Code != nil && *reason.Code == conditionalCheckFailedCode {
			dropped = true
			continue
		}
		kept = append(kept, pending[i])
	}
	return kept, dropped
}

// DeleteOrphanedAggregates deletes each listed aggregate iff no link
// references its code anymore, and returns the codes removed. The
// check reads the reverse index, so a link created an instant later
// wins: the next event recreates the aggregate on upsert.
func (s *FailureStore) DeleteOrphanedAggregates(ctx context.Context, codes []string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var removed []string
	for _, code := range codes {
		linked, err := s.codeHasLinks(ctx, code)
		if err != nil {
			return removed, err
		}
		if linked {
			continue
		}
		deleted, err := s.deleteAggregate(ctx, code)
		if err != nil {
			return removed, err
		}
		if deleted {
			removed = append(removed, code)
		}
	}
	return removed, nil
}

func (s *FailureStore) codeHasLinks(ctx context.Context, code string) (bool, error) {
	keyCond := expression.Key("gsi1pk").Equal(expression.Value(errorPK(code)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return false, s.wrapError("orphan check", err)
	}

	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(reverseIndexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Select:                    types.SelectCount,
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return false, s.wrapError("orphan check", err)
	}
	return out.Count > 0, nil
}

func (s *FailureStore) deleteAggregate(ctx context.Context, code string) (bool, error) {
	cond := expression.AttributeExists(expression.Name("pk"))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return false, s.wrapError("delete aggregate", err)
	}

	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       itemKey(errorPK(code), metaSortKey),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return false, nil
		}
		return false, s.wrapError("delete aggregate", err)
	}
	return true, nil
}

// executionRowKeys lists the primary keys of every row under one
// execution partition, plus the codes its link rows reference.
func (s *FailureStore) executionRowKeys(ctx context.Context, executionID string) ([]map[string]types.AttributeValue, []string, error) {
	keyCond := expression.Key("pk").Equal(expression.Value(execPK(executionID)))
	proj := expression.NamesList(expression.Name("pk"), expression.Name("sk"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithProjection(proj).Build()
	if err != nil {
		return nil, nil, s.wrapError("delete execution", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	}

	var keys []map[string]types.AttributeValue
	var codes []string
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, nil, s.wrapError("delete execution", err)
		}
		for _, item := range page.Items {
			pk, okPK := item["pk"].(*types.AttributeValueMemberS)
			sk, okSK := item["sk"].(*types.AttributeValueMemberS)
			if !okPK || !okSK {
				continue
			}
			keys = append(keys, itemKey(pk.Value, sk.Value))
			if code := codeFromSortKey(sk.Value); code != sk.Value {
				codes = append(codes, code)
			}
		}
	}
	return keys, codes, nil
}

// batchDelete removes keys in batches, retrying unprocessed leftovers
// with backoff before giving up.
func (s *FailureStore) batchDelete(ctx context.Context, keys []map[string]types.AttributeValue) error {
	size := s.batchSize
	if size <= 0 || size > 25 {
		size = 25
	}

	for start := 0; start < len(keys); start += size {
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		requests := make([]types.WriteRequest, 0, end-start)
		for _, key := range keys[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: key},
			})
		}

		remaining := map[string][]types.WriteRequest{s.tableName: requests}
		_, err := s.unprocessed.Do(ctx, func(ctx context.Context) (int, error) {
			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: remaining,
			})
			if err != nil {
				return 0, err
			}
			if len(out.UnprocessedItems[s.tableName]) > 0 {
				remaining = out.UnprocessedItems
				return len(remaining[s.tableName]), errUnprocessedItems
			}
			return 0, nil
		})
		if err != nil {
			if errors.Is(err, errUnprocessedItems) {
				return fmt.Errorf("batch delete: %w", failure.ErrBatchUnprocessed)
			}
			return s.wrapError("batch delete", err)
		}
	}
	return nil
}

// zeroOpenCount clears a rollup's open count after its links are
// removed wholesale. A missing rollup is not an error.
func (s *FailureStore) zeroOpenCount(ctx context.Context, executionID string) error {
	upd := expression.
		Set(expression.Name("openErrorCount"), expression.Value(int64(0))).
		Set(expression.Name("updatedAt"), expression.Value(formatItemTime(time.Now())))
	cond := expression.AttributeExists(expression.Name("pk"))
	return s.adjustRollup(ctx, executionID, upd, cond)
}

// decrementOpenCount drops a rollup's open count by one, floored at
// zero by the condition. A missing rollup is not an error.
func (s *FailureStore) decrementOpenCount(ctx context.Context, executionID string) error {
	upd := expression.
		Add(expression.Name("openErrorCount"), expression.Value(int64(-1))).
		Set(expression.Name("updatedAt"), expression.Value(formatItemTime(time.Now())))
	cond := expression.AttributeExists(expression.Name("pk")).
		And(expression.Name("openErrorCount").GreaterThanEqual(expression.Value(int64(1))))
	return s.adjustRollup(ctx, executionID, upd, cond)
}

func (s *FailureStore) adjustRollup(ctx context.Context, executionID string, upd expression.UpdateBuilder, cond expression.ConditionBuilder) error {
	expr, err := expression.NewBuilder().WithUpdate(upd).WithCondition(cond).Build()
	if err != nil {
		return s.wrapError("adjust rollup", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       itemKey(execPK(executionID), metaSortKey),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return nil
		}
		return s.wrapError("adjust rollup", err)
	}
	return nil
}
