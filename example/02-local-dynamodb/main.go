// Package main demonstrates the tracker against DynamoDB Local.
// Start the database first:
//
//	docker run -p 8000:8000 amazon/dynamodb-local
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
	"github.com/elephant-oracle/tracker-go/infrastructure/storage/dynamodb"
)

func main() {
	ctx := context.Background()
	logging.Init(logging.Config{Level: "info", Format: "console"})

	// 1. Connect. DynamoDB Local accepts any static credential pair,
	// so no AWS profile is needed.
	client, err := dynamodb.NewClient(ctx,
		dynamodb.WithRegion("us-east-1"),
		dynamodb.WithEndpoint("http://localhost:8000"),
		dynamodb.WithStaticCredentials("local", "local"),
		dynamodb.WithErrorsTableName("tracker-errors"),
		dynamodb.WithExecutionsTableName("tracker-executions"),
	)
	if err != nil {
		log.Fatalf("connecting: %v", err)
	}

	// 2. Create both tables and their indexes.
	if err := client.CreateTables(ctx); err != nil {
		log.Fatalf("creating tables: %v", err)
	}
	fmt.Println("tables ready")

	// 3. Wire the production stores into the service bundle.
	services, err := application.NewServicesWithOptions(
		application.WithFailureStore(dynamodb.NewFailureStore(client)),
		application.WithStateStore(dynamodb.NewStateStore(client)),
	)
	if err != nil {
		log.Fatalf("wiring services: %v", err)
	}

	// 4. Ingest a failed run. The rollup, per-code aggregates, links,
	// and the event marker land in one transaction.
	env := event.Envelope{
		ID:   "evt-local-1",
		Time: time.Now().UTC(),
		Detail: event.WorkflowDetail{
			ExecutionID: "exec-local-1",
			County:      "adams",
			Status:      event.StatusFailed,
			Phase:       "transform",
			Step:        "validate",
			DataGroup:   "parcels",
			Errors: []event.ErrorEntry{
				{Code: "VA101"},
				{Code: "VB202"},
			},
		},
	}
	outcome, err := services.Ingest.Ingest(ctx, env, application.IngestOptions{})
	if err != nil {
		log.Fatalf("ingesting: %v", err)
	}
	fmt.Printf("recorded %d codes in %d chunk(s)\n",
		outcome.Failures.UniqueErrorCount, outcome.Failures.ChunksApplied)

	// 5. Read it back and resolve it.
	top, err := services.Query.TopFailedExecution(ctx)
	if err != nil {
		log.Fatalf("querying: %v", err)
	}
	fmt.Println("top failed execution:")
	printJSON(top)

	result, err := services.Resolution.Resolve(ctx, event.ResolutionDetail{ExecutionID: "exec-local-1"})
	if err != nil {
		log.Fatalf("resolving: %v", err)
	}
	fmt.Printf("resolved: %d links deleted, orphaned codes swept: %v\n",
		result.DeletedCount, result.OrphanedCodesRemoved)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("encoding output: %v", err)
	}
}
