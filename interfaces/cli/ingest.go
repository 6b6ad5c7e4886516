package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/elephant-oracle/tracker-go/application"
	"github.com/elephant-oracle/tracker-go/domain/event"
)

// ingestOptions holds options for the ingest command.
type ingestOptions struct {
	configPath string
	inputPath  string
	errorsOnly bool
	stateOnly  bool
}

// newIngestCmd creates the ingest command.
func (a *App) newIngestCmd() *cobra.Command {
	opts := &ingestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a workflow progress event",
		Long: `Ingest one workflow progress event from a JSON envelope.

The envelope carries the execution id, the transition status, and any
error entries the step produced. A missing envelope id or timestamp is
filled in before ingest, so hand-written envelopes stay minimal.

Examples:
  # Ingest an event from a file
  tracker ingest -c config.yaml -f event.json

  # Ingest an event from stdin
  cat event.json | tracker ingest -c config.yaml

  # Record only the error side, skipping the state upsert
  tracker ingest -c config.yaml -f event.json --errors-only`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runIngest(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVarP(&opts.inputPath, "file", "f", "", "Path to the JSON envelope (default: stdin)")
	cmd.Flags().BoolVar(&opts.errorsOnly, "errors-only", false, "Record failures without touching execution state")
	cmd.Flags().BoolVar(&opts.stateOnly, "state-only", false, "Upsert execution state without recording failures")

	return cmd
}

// runIngest reads the envelope and applies it through the ingest service.
func (a *App) runIngest(cmd *cobra.Command, opts *ingestOptions) error {
	if opts.errorsOnly && opts.stateOnly {
		return fmt.Errorf("--errors-only and --state-only are mutually exclusive")
	}

	env, err := a.readEnvelope(cmd, opts.inputPath)
	if err != nil {
		return err
	}
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	if env.Time.IsZero() {
		env.Time = time.Now().UTC()
	}

	ctx := cmd.Context()
	rt, err := buildRuntime(ctx, opts.configPath)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	outcome, err := rt.services.Ingest.Ingest(ctx, env, application.IngestOptions{
		ErrorsOnly: opts.errorsOnly,
		StateOnly:  opts.stateOnly,
	})
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	return a.printJSON(outcome)
}

// readEnvelope decodes the event envelope from a file or stdin.
func (a *App) readEnvelope(cmd *cobra.Command, path string) (event.Envelope, error) {
	var env event.Envelope

	if path == "" || path == "-" {
		if err := json.NewDecoder(cmd.InOrStdin()).Decode(&env); err != nil {
			return env, fmt.Errorf("decoding envelope from stdin: %w", err)
		}
		return env, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return env, fmt.Errorf("reading envelope: %w", err)
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("decoding envelope %s: %w", path, err)
	}
	return env, nil
}

// printJSON writes a result to stdout as indented JSON.
func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
