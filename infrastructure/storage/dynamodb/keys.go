package dynamodb

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/elephant-oracle/tracker-go/domain/failure"
)

// Key prefixes and markers for the single-table layouts. The errors
// table interleaves aggregates, links, rollups, and event markers under
// composite keys; the executions table holds states and step counters.
const (
	errorKeyPrefix  = "ERR#"
	execKeyPrefix   = "EXEC#"
	eventKeyPrefix  = "EVENT#"
	chunkKeyPrefix  = "CHUNK#"
	typeKeyPrefix   = "TYPE#"
	aggKeyPrefix    = "AGG#"
	countyKeyPrefix = "COUNTY#"
	shardKeyPrefix  = "EXECS#"

	metaSortKey  = "META"
	stateSortKey = "STATE"

	// Partition values for the count index. New aggregates land in
	// errorCountPartition; rows written before the index split still
	// carry legacyCountPartition until repartitioned.
	errorCountPartition  = "ERRCNT"
	legacyCountPartition = "ENTITY"
)

// Secondary index names, shared by table creation and queries.
const (
	reverseIndexName = "reverse"
	countIndexName   = "by-count"
	stepIndexName    = "by-step"
	globalIndexName  = "global"
)

func errorPK(code string) string {
	return errorKeyPrefix + code
}

func execPK(executionID string) string {
	return execKeyPrefix + executionID
}

func eventPK(eventID string) string {
	return eventKeyPrefix + eventID
}

// chunkSK pads the chunk ordinal so markers sort numerically.
func chunkSK(index int) string {
	return fmt.Sprintf("%s%010d", chunkKeyPrefix, index)
}

// typePartition buckets aggregates by their coarse error type.
func typePartition(code string) string {
	return typeKeyPrefix + failure.ErrorTypeOf(code)
}

func aggPK(county, dataGroup string) string {
	return aggKeyPrefix + county + "#" + dataGroup
}

func stepSK(phase, step string) string {
	return "PHASE#" + phase + "#STEP#" + step
}

func stepGroupPartition(phase, step, dataGroup string) string {
	return "PHASE#" + phase + "#STEP#" + step + "#GRP#" + dataGroup
}

func countySK(county string) string {
	return countyKeyPrefix + county
}

// shardLabel spreads execution states across a fixed number of index
// partitions so the recency listing never funnels through one key.
func shardLabel(executionID string, shards int) string {
	if shards < 1 {
		shards = 1
	}
	h := fnv.New32a()
	h.Write([]byte(executionID))
	return fmt.Sprintf("%s%d", shardKeyPrefix, h.Sum32()%uint32(shards))
}

func codeFromSortKey(sk string) string {
	return strings.TrimPrefix(sk, errorKeyPrefix)
}

func executionIDFromPartitionKey(pk string) string {
	return strings.TrimPrefix(pk, execKeyPrefix)
}
