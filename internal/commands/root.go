// Package commands implements the banko command line client. It drives the
// same import workflow as the web UI directly against the finance API.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/banko/internal/backend"
	"github.com/JonMunkholm/banko/internal/config"
	"github.com/JonMunkholm/banko/internal/core"
	"github.com/JonMunkholm/banko/internal/logging"
)

// cliSessionID names the single workflow a CLI invocation runs.
const cliSessionID = "cli"

type rootOptions struct {
	apiURL   string
	timeout  time.Duration
	logLevel string

	client *backend.Client
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "banko",
		Short: "Import bank CSV exports into the finance API",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.apiURL, "api-url", "", "finance API base URL (default $BACKEND_API_URL)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "timeout per API call (default $BACKEND_TIMEOUT)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newInspectCommand(opts),
		newImportCommand(opts),
		newHistoryCommand(opts),
	)

	return rootCmd
}

func (o *rootOptions) setup(cmd *cobra.Command) error {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	slog.SetDefault(logging.New(cmd.ErrOrStderr(), o.logLevel, "text"))

	if o.apiURL != "" {
		if err := os.Setenv("BACKEND_API_URL", o.apiURL); err != nil {
			return fmt.Errorf("setting api url: %w", err)
		}
	}
	bc, err := config.LoadBackend()
	if err != nil {
		return err
	}
	if o.timeout > 0 {
		bc.Timeout = o.timeout
	}

	o.client, err = backend.New(bc.URL, backend.Options{
		Timeout:           bc.Timeout,
		RequestsPerSecond: bc.RequestsPerSecond,
		Burst:             bc.Burst,
	})
	return err
}

func (o *rootOptions) workflow() *core.Workflow {
	return core.NewWorkflow(cliSessionID, o.client, core.WorkflowOptions{Logger: slog.Default()})
}

// readFile loads a CSV file from disk.
func readFile(path string) (core.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.File{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return core.File{Name: filepath.Base(path), Data: data}, nil
}
