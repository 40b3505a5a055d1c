// Package commands defines all Cobra CLI commands for the ragengine binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/docuchat/ragengine/internal/audit"
	"github.com/docuchat/ragengine/internal/config"
	"github.com/docuchat/ragengine/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragengine",
		Short: "ragengine — document retrieval engine for LLM question answering",
		Long: `ragengine ingests text documents into per-corpus in-memory stores and
answers natural-language queries against them: semantic search over
embedded fragments, LLM-assisted query expansion, confidence scoring,
and length-bounded context assembly.

Embedding and completion providers are selected via environment variables
or a YAML config file (~/.ragengine/config.yaml).
See 'ragengine --help' for available commands.`,
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

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.ragengine/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewQueryCmd(),
		NewVersionCmd(),
	)

	return root
}
