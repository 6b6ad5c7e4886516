package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elephant-oracle/tracker-go/application"
)

// repairOptions holds options for the repair command.
type repairOptions struct {
	configPath string
	dryRun     bool
	verify     bool
	pageSize   int
}

// newRepairCmd creates the repair command group.
func (a *App) newRepairCmd() *cobra.Command {
	opts := &repairOptions{}

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Repair inconsistent failure records",
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")

	cmd.AddCommand(a.newRepairOrphansCmd(opts))

	return cmd
}

// newRepairOrphansCmd creates the repair orphans subcommand.
func (a *App) newRepairOrphansCmd(opts *repairOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "Delete failure rollups whose error links are gone",
		Long: `Scan for failure rollups that report open errors but have no
error links left, and delete them.

Such orphans appear when a multi-call delete was interrupted between
removing the links and removing the rollup. The run writes a summary
to the configured report destination and exits non-zero if any orphan
could not be repaired.

Examples:
  # Report orphans without deleting anything
  tracker repair orphans -c config.yaml --dry-run

  # Repair and re-check afterwards
  tracker repair orphans -c config.yaml --verify`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRepairOrphans(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Report orphans without deleting them")
	cmd.Flags().BoolVar(&opts.verify, "verify", false, "Re-scan after the repair and count residual orphans")
	cmd.Flags().IntVar(&opts.pageSize, "page-size", 0, "Scan page size (default: from configuration)")

	return cmd
}

// runRepairOrphans runs the repair job and reports its summary.
func (a *App) runRepairOrphans(cmd *cobra.Command, opts *repairOptions) error {
	ctx := cmd.Context()
	rt, err := buildRuntime(ctx, opts.configPath)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	if rt.services.Repair == nil {
		return fmt.Errorf("the configured store does not support repair")
	}

	pageSize := opts.pageSize
	if pageSize <= 0 {
		pageSize = rt.config.Jobs.PageSize
	}

	summary, err := rt.services.Repair.RepairOrphans(ctx, application.RepairOptions{
		DryRun:   opts.dryRun,
		Verify:   opts.verify,
		PageSize: pageSize,
	})
	if err != nil {
		return fmt.Errorf("repair failed: %w", err)
	}

	if err := a.printJSON(summary); err != nil {
		return err
	}
	if !summary.Succeeded() {
		return fmt.Errorf("repair left %d failed and %d residual orphans", summary.Failed, summary.Residual)
	}
	return nil
}
