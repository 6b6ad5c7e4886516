// Package main demonstrates the tracker over the in-memory backends.
// It ingests a small batch of workflow events and prints the triage
// views a pipeline operator works from.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/elephant-oracle/tracker-go/application"
	"github.com/elephant-oracle/tracker-go/domain/event"
	"github.com/elephant-oracle/tracker-go/infrastructure/logging"
	"github.com/elephant-oracle/tracker-go/infrastructure/storage/memory"
)

func main() {
	ctx := context.Background()

	// 1. Wire the service bundle over the in-memory stores. The same
	// bundle runs against DynamoDB in production; only the stores
	// change.
	logging.Init(logging.Config{Level: "warn", Format: "console"})

	services, err := application.NewServicesWithOptions(
		application.WithFailureStore(memory.NewFailureStore()),
		application.WithStateStore(memory.NewStateStore()),
		application.WithCache(memory.NewCache(), 15*time.Second),
	)
	if err != nil {
		log.Fatalf("wiring services: %v", err)
	}

	// 2. Ingest one failed run and one run that recovers.
	now := time.Now().UTC()
	batch := []event.Envelope{
		envelope("evt-1", "exec-adams-7001", "adams", event.StatusFailed, now, "VA101", "VA101", "VB202"),
		envelope("evt-2", "exec-blaine-7002", "blaine", event.StatusInProgress, now.Add(time.Minute)),
		envelope("evt-3", "exec-blaine-7002", "blaine", event.StatusSucceeded, now.Add(3*time.Minute)),
	}
	for _, env := range batch {
		if _, err := services.Ingest.Ingest(ctx, env, application.IngestOptions{}); err != nil {
			log.Fatalf("ingesting %s: %v", env.ID, err)
		}
	}

	// 3. Redeliver the first event: the envelope id is the idempotency
	// token, so nothing is counted twice.
	replay, err := services.Ingest.Ingest(ctx, batch[0], application.IngestOptions{})
	if err != nil {
		log.Fatalf("redelivering evt-1: %v", err)
	}
	fmt.Printf("redelivery of evt-1 reported duplicate: %v\n\n", replay.Failures.Duplicate)

	// 4. The triage views behind `tracker query`.
	top, err := services.Query.TopFailedExecution(ctx)
	if err != nil {
		log.Fatalf("querying top failed execution: %v", err)
	}
	fmt.Println("top failed execution:")
	printJSON(top)

	ranked, err := services.Query.TopErrors(ctx, 5)
	if err != nil {
		log.Fatalf("ranking errors: %v", err)
	}
	fmt.Println("\ntop errors:")
	printJSON(ranked)

	state, err := services.Query.ExecutionState(ctx, "exec-blaine-7002")
	if err != nil {
		log.Fatalf("reading execution state: %v", err)
	}
	fmt.Println("\nexec-blaine-7002 state:")
	printJSON(state)
}

func envelope(id, executionID, county string, status event.Status, at time.Time, codes ...string) event.Envelope {
	entries := make([]event.ErrorEntry, 0, len(codes))
	for _, code := range codes {
		entries = append(entries, event.ErrorEntry{Code: code})
	}
	return event.Envelope{
		ID:   id,
		Time: at,
		Detail: event.WorkflowDetail{
			ExecutionID: executionID,
			County:      county,
			Status:      status,
			Phase:       "transform",
			Step:        "validate",
			DataGroup:   "parcels",
			Errors:      entries,
		},
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("encoding output: %v", err)
	}
}
