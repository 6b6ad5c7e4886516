package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elephant-oracle/tracker-go/application"
)

// migrateOptions holds options for the migrate command.
type migrateOptions struct {
	configPath string
	pageSize   int
}

// newMigrateCmd creates the migrate command group.
func (a *App) newMigrateCmd() *cobra.Command {
	opts := &migrateOptions{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run online data migrations",
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")

	cmd.AddCommand(a.newMigrateErrorIndexCmd(opts))

	return cmd
}

// newMigrateErrorIndexCmd creates the migrate error-index subcommand.
func (a *App) newMigrateErrorIndexCmd(opts *migrateOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "error-index",
		Short: "Move error aggregates to the dedicated count-index partition",
		Long: `Move error aggregates from the legacy count-index partition, which
they shared with other entity rows, to the partition reserved for them.

The migration is idempotent and safe to run concurrently with ingest:
each aggregate moves under a conditional write, and a second run finds
nothing left to do. A summary is written to the configured report
destination.

Examples:
  tracker migrate error-index -c config.yaml
  tracker migrate error-index -c config.yaml --page-size 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMigrateErrorIndex(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.pageSize, "page-size", 0, "Scan page size (default: from configuration)")

	return cmd
}

// runMigrateErrorIndex runs the migration job and reports its summary.
func (a *App) runMigrateErrorIndex(cmd *cobra.Command, opts *migrateOptions) error {
	ctx := cmd.Context()
	rt, err := buildRuntime(ctx, opts.configPath)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	if rt.services.Migration == nil {
		return fmt.Errorf("the configured store does not support migration")
	}

	pageSize := opts.pageSize
	if pageSize <= 0 {
		pageSize = rt.config.Jobs.PageSize
	}

	summary, err := rt.services.Migration.MigrateErrorIndex(ctx, application.MigrationOptions{
		PageSize: pageSize,
	})
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if err := a.printJSON(summary); err != nil {
		return err
	}
	if !summary.Succeeded() {
		return fmt.Errorf("migration left %d codes unmigrated", summary.Failed)
	}
	return nil
}
