package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// deleteOptions holds options for the delete command.
type deleteOptions struct {
	configPath string
}

// newDeleteCmd creates the delete command group.
func (a *App) newDeleteCmd() *cobra.Command {
	opts := &deleteOptions{}

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete tracked records",
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")

	cmd.AddCommand(a.newDeleteExecutionCmd(opts))

	return cmd
}

// newDeleteExecutionCmd creates the delete execution subcommand.
func (a *App) newDeleteExecutionCmd(opts *deleteOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "execution <execution-id>",
		Short: "Delete every tracked error under one execution",
		Long: `Delete the failure rollup and every error link under one execution.

Error aggregates that lose their last link are swept as part of the
same operation. Deleting an execution that is not tracked is a no-op.

Examples:
  tracker delete execution -c config.yaml arn:aws:states:...:adams-0114`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDeleteExecution(cmd, opts, args[0])
		},
	}
}

// runDeleteExecution removes the execution's failure records.
func (a *App) runDeleteExecution(cmd *cobra.Command, opts *deleteOptions, executionID string) error {
	ctx := cmd.Context()
	rt, err := buildRuntime(ctx, opts.configPath)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	result, err := rt.services.Resolution.DeleteExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	return a.printJSON(result)
}
