// Package commands defines all Cobra CLI commands for the chatdocs binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/chatdocs/chatdocs/internal/audit"
	"github.com/chatdocs/chatdocs/internal/config"
	"github.com/chatdocs/chatdocs/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "chatdocs",
		Short: "chatdocs — multi-tenant chat over your own documents",
		Long: `chatdocs is the backend for a chat-with-your-documents service.

Users create chatbots, upload pre-chunked documents into a shared vector
store, and converse with a retrieval-grounded model. Subscriptions gate
resource creation and every model call lands in an append-only usage ledger.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.chatdocs/config.yaml).
See 'chatdocs --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A .env in the working directory seeds the environment for local
			// development. Missing file is not an error.
			_ = godotenv.Load()

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

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.chatdocs/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
