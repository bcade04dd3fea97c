// Package commands defines all Cobra CLI commands for the oslab binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/machzqcq/oslab-go/internal/audit"
	"github.com/machzqcq/oslab-go/internal/config"
	"github.com/machzqcq/oslab-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "oslab",
		Short: "oslab — an OpenSearch operations lab toolkit",
		Long: `oslab drives a running OpenSearch cluster through its full demo surface:
index and pipeline management, as-you-type / neural / hybrid / geo search,
ML Commons models, connectors, and agents, CSV/JSONL bulk ingestion with
mapping inference, and a local HTTP demo API.

The cluster connection is configured via OPENSEARCH_ADDR, OPENSEARCH_USERNAME,
OPENSEARCH_PASSWORD, and OPENSEARCH_INSECURE, or a YAML config file
(~/.oslab/config.yaml). Environment variables always win.
See 'oslab --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.oslab/config.yaml)")

	root.AddCommand(
		NewIndexCmd(),
		NewPipelineCmd(),
		NewIngestCmd(),
		NewSearchCmd(),
		NewModelCmd(),
		NewAgentCmd(),
		NewAskCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
