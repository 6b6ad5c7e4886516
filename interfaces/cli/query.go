package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// queryOptions holds options shared by the query subcommands.
type queryOptions struct {
	configPath string
	limit      int
	errorType  string
	errorCode  string
	county     string
	dataGroup  string
	phase      string
	step       string
	state      bool
}

// newQueryCmd creates the query command group.
func (a *App) newQueryCmd() *cobra.Command {
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query failure aggregates and execution state",
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")

	cmd.AddCommand(
		a.newQueryTopFailedCmd(opts),
		a.newQueryErrorsCmd(opts),
		a.newQueryExecutionCmd(opts),
		a.newQueryStatesCmd(opts),
		a.newQueryStepsCmd(opts),
	)

	return cmd
}

// newQueryTopFailedCmd creates the query top-failed subcommand.
func (a *App) newQueryTopFailedCmd(opts *queryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "top-failed",
		Short: "Show the execution with the most open errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, opts.configPath)
			if err != nil {
				return err
			}
			defer rt.shutdown()

			top, err := rt.services.Query.TopFailedExecution(ctx)
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}
			if top == nil {
				_, _ = fmt.Fprintln(a.stdout, "No failed executions.")
				return nil
			}
			return a.printJSON(top)
		},
	}
}

// newQueryErrorsCmd creates the query errors subcommand.
func (a *App) newQueryErrorsCmd(opts *queryOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Show tracked errors by occurrence count",
		Long: `Show tracked errors ordered by total occurrence count.

Without flags the most frequent errors across all types are listed.
--type restricts the ranking to one error type; --code looks up a
single error with its execution links.

Examples:
  tracker query errors -c config.yaml --limit 20
  tracker query errors -c config.yaml --type VA
  tracker query errors -c config.yaml --code VA2010`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQueryErrors(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.limit, "limit", 10, "Maximum number of errors to return")
	cmd.Flags().StringVar(&opts.errorType, "type", "", "Restrict the ranking to one error type")
	cmd.Flags().StringVar(&opts.errorCode, "code", "", "Look up one error code")

	return cmd
}

// runQueryErrors dispatches between code lookup, type ranking, and the
// overall ranking.
func (a *App) runQueryErrors(cmd *cobra.Command, opts *queryOptions) error {
	ctx := cmd.Context()
	rt, err := buildRuntime(ctx, opts.configPath)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	if opts.errorCode != "" {
		detail, err := rt.services.Query.ErrorByCode(ctx, opts.errorCode)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		return a.printJSON(detail)
	}

	if opts.errorType != "" {
		records, err := rt.services.Query.ErrorsByType(ctx, opts.errorType, opts.limit)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		return a.printJSON(records)
	}

	records, err := rt.services.Query.TopErrors(ctx, opts.limit)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return a.printJSON(records)
}

// newQueryExecutionCmd creates the query execution subcommand.
func (a *App) newQueryExecutionCmd(opts *queryOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execution <execution-id>",
		Short: "Show the errors or state of one execution",
		Long: `Show one execution's failure rollup and error links.

With --state the latest execution state row is shown instead.

Examples:
  tracker query execution -c config.yaml arn:aws:states:...:adams-0114
  tracker query execution -c config.yaml --state arn:aws:states:...:adams-0114`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQueryExecution(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.state, "state", false, "Show the execution state row instead of its errors")

	return cmd
}

func (a *App) runQueryExecution(cmd *cobra.Command, opts *queryOptions, executionID string) error {
	ctx := cmd.Context()
	rt, err := buildRuntime(ctx, opts.configPath)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	if opts.state {
		state, err := rt.services.Query.ExecutionState(ctx, executionID)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		return a.printJSON(state)
	}

	result, err := rt.services.Query.ExecutionByID(ctx, executionID)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return a.printJSON(result)
}

// newQueryStatesCmd creates the query states subcommand.
func (a *App) newQueryStatesCmd(opts *queryOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "states",
		Short: "Show recently updated execution states",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, opts.configPath)
			if err != nil {
				return err
			}
			defer rt.shutdown()

			states, err := rt.services.Query.RecentStates(ctx, opts.limit)
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}
			return a.printJSON(states)
		},
	}

	cmd.Flags().IntVar(&opts.limit, "limit", 20, "Maximum number of states to return")

	return cmd
}

// newQueryStepsCmd creates the query steps subcommand.
func (a *App) newQueryStepsCmd(opts *queryOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "steps",
		Short: "Show step aggregates for a county or across counties",
		Long: `Show per-step execution aggregates.

With --county, every phase/step aggregate for that county's data group
is listed. With --phase and --step, one step is compared across all
counties. --data-group is required either way.

Examples:
  tracker query steps -c config.yaml --county adams --data-group parcels
  tracker query steps -c config.yaml --phase transform --step normalize --data-group parcels`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuerySteps(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.county, "county", "", "County to list step aggregates for")
	cmd.Flags().StringVar(&opts.dataGroup, "data-group", "", "Data group the aggregates belong to")
	cmd.Flags().StringVar(&opts.phase, "phase", "", "Phase of the step to compare across counties")
	cmd.Flags().StringVar(&opts.step, "step", "", "Step to compare across counties")

	return cmd
}

func (a *App) runQuerySteps(cmd *cobra.Command, opts *queryOptions) error {
	if opts.dataGroup == "" {
		return fmt.Errorf("--data-group is required")
	}
	byCounty := opts.county != ""
	acrossCounties := opts.phase != "" && opts.step != ""
	if byCounty == acrossCounties {
		return fmt.Errorf("either --county or both --phase and --step are required")
	}

	ctx := cmd.Context()
	rt, err := buildRuntime(ctx, opts.configPath)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	if byCounty {
		aggregates, err := rt.services.Query.StepAggregates(ctx, opts.county, opts.dataGroup)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		return a.printJSON(aggregates)
	}

	aggregates, err := rt.services.Query.StepAcrossCounties(ctx, opts.phase, opts.step, opts.dataGroup)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return a.printJSON(aggregates)
}
