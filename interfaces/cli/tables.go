package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elephant-oracle/tracker-go/infrastructure/config"
	"github.com/elephant-oracle/tracker-go/infrastructure/logging"
)

// tablesOptions holds options for the tables command.
type tablesOptions struct {
	configPath string
}

// newTablesCmd creates the tables command group.
func (a *App) newTablesCmd() *cobra.Command {
	opts := &tablesOptions{}

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Manage the tracker's DynamoDB tables",
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")

	cmd.AddCommand(a.newTablesCreateCmd(opts))

	return cmd
}

// newTablesCreateCmd creates the tables create subcommand.
func (a *App) newTablesCreateCmd(opts *tablesOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create the errors and executions tables",
		Long: `Create the errors and executions tables with their indexes and
TTL settings. Tables that already exist are left untouched.

Examples:
  # Create the tables against a local endpoint
  TRACKER_DYNAMODB_ENDPOINT=http://localhost:8000 tracker tables create -c config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTablesCreate(cmd, opts)
		},
	}
}

// runTablesCreate provisions the tables against the configured storage.
// Only the storage client is wired; table creation runs before any of
// the other components have something to connect to.
func (a *App) runTablesCreate(cmd *cobra.Command, opts *tablesOptions) error {
	ctx := cmd.Context()

	cfg, err := config.Resolve(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	result, err := config.NewBuilder(cfg).Build()
	if err != nil {
		return fmt.Errorf("building configuration: %w", err)
	}
	logging.Init(result.Logging)

	client, err := newStorageClient(ctx, cfg, result)
	if err != nil {
		return fmt.Errorf("connecting to storage: %w", err)
	}

	if err := client.CreateTables(ctx); err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}

	_, _ = fmt.Fprintf(a.stdout, "Created tables %s and %s\n",
		cfg.Storage.ErrorsTable, cfg.Storage.ExecutionsTable)
	return nil
}
