package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elephant-oracle/tracker-go/domain/event"
)

// resolveOptions holds options for the resolve command.
type resolveOptions struct {
	configPath  string
	executionID string
	errorCode   string
}

func (o *resolveOptions) detail() (event.ResolutionDetail, error) {
	if o.executionID == "" && o.errorCode == "" {
		return event.ResolutionDetail{}, fmt.Errorf("either --execution or --code is required")
	}
	return event.ResolutionDetail{
		ExecutionID: o.executionID,
		ErrorCode:   o.errorCode,
	}, nil
}

// newResolveCmd creates the resolve command.
func (a *App) newResolveCmd() *cobra.Command {
	opts := &resolveOptions{}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve tracked errors for an execution or error code",
		Long: `Resolve tracked errors once the underlying problem is fixed.

With --execution, every error linked to that execution is deleted along
with its rollup; error aggregates that lose their last link are swept.
With --code, the error is deleted from every execution that carried it.
When both are given the execution scope applies.

Examples:
  # An operator fixed a county run
  tracker resolve -c config.yaml --execution arn:aws:states:...:adams-0114

  # A code-level fix removed the error everywhere
  tracker resolve -c config.yaml --code VA2010

  # The fix did not hold; park the errors as unrecoverable
  tracker resolve failed -c config.yaml --code VA2010`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runResolve(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&opts.executionID, "execution", "", "Execution id to resolve")
	cmd.PersistentFlags().StringVar(&opts.errorCode, "code", "", "Error code to resolve")

	cmd.AddCommand(a.newResolveFailedCmd(opts))

	return cmd
}

// newResolveFailedCmd creates the resolve failed subcommand.
func (a *App) newResolveFailedCmd(opts *resolveOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "failed",
		Short: "Record that a resolution attempt did not hold",
		Long: `Record that a resolution attempt failed.

The selected errors stay tracked but move to the maybeUnrecoverable
status, so dashboards stop proposing the same fix.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runResolveFailed(cmd, opts)
		},
	}
}

// runResolve deletes the selected errors.
func (a *App) runResolve(cmd *cobra.Command, opts *resolveOptions) error {
	detail, err := opts.detail()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := buildRuntime(ctx, opts.configPath)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	result, err := rt.services.Resolution.Resolve(ctx, detail)
	if err != nil {
		return fmt.Errorf("resolve failed: %w", err)
	}
	return a.printJSON(result)
}

// runResolveFailed marks the selected errors unrecoverable.
func (a *App) runResolveFailed(cmd *cobra.Command, opts *resolveOptions) error {
	detail, err := opts.detail()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := buildRuntime(ctx, opts.configPath)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	result, err := rt.services.Resolution.FailedToResolve(ctx, detail)
	if err != nil {
		return fmt.Errorf("marking unrecoverable failed: %w", err)
	}
	return a.printJSON(result)
}
