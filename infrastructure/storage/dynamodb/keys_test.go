package dynamodb

import (
	"strings"
	"testing"
)

func TestKeyBuilders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"error pk", errorPK("VA101"), "ERR#VA101"},
		{"execution pk", execPK("exec-1"), "EXEC#exec-1"},
		{"event pk", eventPK("evt-9"), "EVENT#evt-9"},
		{"chunk sk", chunkSK(3), "CHUNK#0000000003"},
		{"type partition", typePartition("VA101"), "TYPE#VA"},
		{"type partition short code", typePartition("V"), "TYPE#V"},
		{"aggregate pk", aggPK("adams", "2024-q1"), "AGG#adams#2024-q1"},
		{"step sk", stepSK("transform", "normalize"), "PHASE#transform#STEP#normalize"},
		{"step group partition", stepGroupPartition("transform", "normalize", "2024-q1"), "PHASE#transform#STEP#normalize#GRP#2024-q1"},
		{"county sk", countySK("adams"), "COUNTY#adams"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.got != tt.want {
				t.Errorf("key = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestChunkSK_SortsNumerically(t *testing.T) {
	t.Parallel()

	// Unpadded ordinals would order CHUNK#10 before CHUNK#2.
	if chunkSK(2) >= chunkSK(10) {
		t.Errorf("chunkSK(2) = %q should sort before chunkSK(10) = %q", chunkSK(2), chunkSK(10))
	}
	if chunkSK(0) >= chunkSK(1) {
		t.Errorf("chunkSK(0) = %q should sort before chunkSK(1) = %q", chunkSK(0), chunkSK(1))
	}
}

func TestShardLabel(t *testing.T) {
	t.Parallel()

	if got, again := shardLabel("exec-1", 8), shardLabel("exec-1", 8); got != again {
		t.Errorf("shardLabel not deterministic: %q vs %q", got, again)
	}

	seen := make(map[string]bool)
	for _, id := range []string{"a", "b", "c", "exec-1", "exec-2", "exec-3", "0190cafe", "zz-top"} {
		label := shardLabel(id, 4)
		if !strings.HasPrefix(label, "EXECS#") {
			t.Fatalf("shardLabel(%q) = %q, want EXECS# prefix", id, label)
		}
		switch label {
		case "EXECS#0", "EXECS#1", "EXECS#2", "EXECS#3":
			seen[label] = true
		default:
			t.Errorf("shardLabel(%q) = %q, outside 4-shard range", id, label)
		}
	}
	if len(seen) < 2 {
		t.Errorf("8 ids landed in %d shard(s), want spread", len(seen))
	}
}

func TestShardLabel_FloorsShardCount(t *testing.T) {
	t.Parallel()

	if got := shardLabel("exec-1", 0); got != "EXECS#0" {
		t.Errorf("shardLabel with zero shards = %q, want EXECS#0", got)
	}
	if got := shardLabel("exec-1", -3); got != "EXECS#0" {
		t.Errorf("shardLabel with negative shards = %q, want EXECS#0", got)
	}
}

func TestSortKeyParsing(t *testing.T) {
	t.Parallel()

	if got := codeFromSortKey("ERR#VA101"); got != "VA101" {
		t.Errorf("codeFromSortKey = %q, want VA101", got)
	}
	if got := executionIDFromPartitionKey("EXEC#exec-1"); got != "exec-1" {
		t.Errorf("executionIDFromPartitionKey = %q, want exec-1", got)
	}
}
