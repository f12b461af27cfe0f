// Package cmd defines and implements the CLI commands for the hivefetch
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hivefetch/hivefetch/internal/app"
	"github.com/hivefetch/hivefetch/internal/config"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hivefetch",
		Short: "A resilient page fetcher with caching, pacing, and identity rotation",
		Long: `hivefetch retrieves web pages through a pipeline that applies
per-domain rate limiting, response caching, credential injection, and
user-agent/proxy rotation, retrying transient failures with exponential
backoff. Pages can be fetched over plain HTTP or through a headless
browser when client-side rendering is required.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")
	cmd.AddCommand(newFetchCmd())
	return cmd
}

// buildApp loads configuration and assembles the service container.
func buildApp() (*app.App, config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("load config: %w", err)
	}
	a, err := app.New(cfg)
	if err != nil {
		return nil, config.Config{}, err
	}
	return a, cfg, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
