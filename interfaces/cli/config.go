package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/elephant-oracle/tracker-go/infrastructure/config"
)

// configValidateOptions holds options for the config validate command.
type configValidateOptions struct {
	configPath string
	strict     bool
}

// configSchemaOptions holds options for the config schema command.
type configSchemaOptions struct {
	outputPath string
}

// newConfigCmd creates the config command group.
func (a *App) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate and document tracker configuration",
	}

	cmd.AddCommand(
		a.newConfigValidateCmd(),
		a.newConfigSchemaCmd(),
	)

	return cmd
}

// newConfigValidateCmd creates the config validate command.
func (a *App) newConfigValidateCmd() *cobra.Command {
	opts := &configValidateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Validate a tracker configuration file for correctness.

This command checks:
  - File format (YAML or JSON)
  - Required fields (name, version, table names)
  - Field types and constraints
  - Environment variable references (in strict mode)

Examples:
  # Validate a configuration file
  tracker config validate -c config.yaml

  # Strict validation (fail on missing env vars)
  tracker config validate -c config.yaml --strict`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.validateConfig(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Enable strict validation (fail on missing env vars)")

	return cmd
}

// validateConfig validates the configuration file.
func (a *App) validateConfig(opts *configValidateOptions) error {
	if opts.configPath == "" {
		return fmt.Errorf("configuration file path is required (-c flag)")
	}

	loaderOpts := []config.LoaderOption{
		config.WithValidation(true),
	}
	if opts.strict {
		loaderOpts = append(loaderOpts, config.WithStrictEnv(true))
	}

	loader := config.NewLoaderWithOptions(loaderOpts...)
	cfg, err := loader.LoadFile(opts.configPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	// Additional validation via the builder
	if _, err := config.NewBuilder(cfg).Build(); err != nil {
		return fmt.Errorf("configuration build failed: %w", err)
	}

	fmt.Fprintf(a.stdout, "✓ Configuration is valid\n")
	fmt.Fprintf(a.stdout, "  Name: %s\n", cfg.Name)
	fmt.Fprintf(a.stdout, "  Version: %s\n", cfg.Version)

	fmt.Fprintf(a.stdout, "\nConfiguration summary:\n")
	fmt.Fprintf(a.stdout, "  Errors table: %s\n", cfg.Storage.ErrorsTable)
	fmt.Fprintf(a.stdout, "  Executions table: %s\n", cfg.Storage.ExecutionsTable)
	fmt.Fprintf(a.stdout, "  Region: %s\n", cfg.Storage.Region)
	if cfg.Storage.Endpoint != "" {
		fmt.Fprintf(a.stdout, "  Endpoint: %s\n", cfg.Storage.Endpoint)
	}
	fmt.Fprintf(a.stdout, "  Index shards: %d\n", cfg.Storage.ShardCount)
	fmt.Fprintf(a.stdout, "  Transact limit: %d\n", cfg.Ingest.TransactLimit)
	fmt.Fprintf(a.stdout, "  Job concurrency: %d\n", cfg.Jobs.Concurrency)
	if cfg.Jobs.ReportURI != "" {
		fmt.Fprintf(a.stdout, "  Job reports: %s\n", cfg.Jobs.ReportURI)
	}
	fmt.Fprintf(a.stdout, "  Cache: %s\n", cfg.Cache.Backend)
	fmt.Fprintf(a.stdout, "  Logging: %s (%s)\n", cfg.Logging.Level, cfg.Logging.Format)
	if cfg.Telemetry.Enabled {
		fmt.Fprintf(a.stdout, "  Telemetry: enabled (endpoint=%s)\n", cfg.Telemetry.Endpoint)
	}

	return nil
}

// newConfigSchemaCmd creates the config schema command.
func (a *App) newConfigSchemaCmd() *cobra.Command {
	opts := &configSchemaOptions{}

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Export the configuration JSON schema",
		Long: `Export the JSON Schema for tracker configuration files.

The exported schema can be used for:
  - IDE validation and autocompletion
  - CI/CD configuration validation

Examples:
  # Export schema to stdout
  tracker config schema

  # Export schema to a file
  tracker config schema -o schema.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.exportSchema(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "Output file path (default: stdout)")

	return cmd
}

// exportSchema exports the configuration JSON schema.
func (a *App) exportSchema(opts *configSchemaOptions) error {
	schemaJSON, err := config.SchemaJSON()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	if opts.outputPath == "" {
		_, _ = fmt.Fprintln(a.stdout, schemaJSON)
		return nil
	}

	if err := os.WriteFile(opts.outputPath, []byte(schemaJSON), 0600); err != nil {
		return fmt.Errorf("failed to write schema file: %w", err)
	}

	_, _ = fmt.Fprintf(a.stdout, "Schema exported to %s\n", opts.outputPath)
	return nil
}
