package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elephant-oracle/tracker-go/domain/failure"
)

// markOptions holds options for the mark subcommands.
type markOptions struct {
	configPath  string
	executionID string
	errorCode   string
}

func (o *markOptions) selector() (failure.Selector, error) {
	if o.executionID == "" && o.errorCode == "" {
		return failure.Selector{}, fmt.Errorf("either --execution or --code is required")
	}
	return failure.Selector{
		ExecutionID: o.executionID,
		ErrorCode:   o.errorCode,
	}, nil
}

// newMarkCmd creates the mark command group.
func (a *App) newMarkCmd() *cobra.Command {
	opts := &markOptions{}

	cmd := &cobra.Command{
		Use:   "mark",
		Short: "Move tracked errors to a review status",
		Long: `Move tracked errors to a review status without deleting them.

Marked errors keep their occurrence counts and links; only the status
changes, so a later event for the same code reopens them.

Examples:
  # A deploy likely fixed this code; wait for confirmation
  tracker mark maybe-solved -c config.yaml --code VA2010

  # Nobody can fix this execution; park everything under it
  tracker mark unrecoverable -c config.yaml --execution arn:aws:states:...:adams-0114`,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&opts.executionID, "execution", "", "Execution id to mark")
	cmd.PersistentFlags().StringVar(&opts.errorCode, "code", "", "Error code to mark")

	cmd.AddCommand(
		a.newMarkStatusCmd(opts, "maybe-solved", "Mark errors as probably fixed", failure.StatusMaybeSolved),
		a.newMarkStatusCmd(opts, "unrecoverable", "Mark errors as beyond repair", failure.StatusMaybeUnrecoverable),
	)

	return cmd
}

// newMarkStatusCmd creates one status-specific mark subcommand.
func (a *App) newMarkStatusCmd(opts *markOptions, use, short string, status failure.ErrorStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMark(cmd, opts, status)
		},
	}
}

// runMark applies the status change through the resolution service.
func (a *App) runMark(cmd *cobra.Command, opts *markOptions, status failure.ErrorStatus) error {
	selector, err := opts.selector()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := buildRuntime(ctx, opts.configPath)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	result, err := a.markStatus(ctx, rt, selector, status)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return a.printJSON(result)
}

func (a *App) markStatus(ctx context.Context, rt *runtime, selector failure.Selector, status failure.ErrorStatus) (*failure.MarkResult, error) {
	if status == failure.StatusMaybeSolved {
		return rt.services.Resolution.MarkMaybeSolved(ctx, selector)
	}
	return rt.services.Resolution.MarkUnrecoverable(ctx, selector)
}
