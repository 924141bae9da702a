// Package commands defines all Cobra CLI commands for the alula binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/alula-collections/alula-go/internal/audit"
	"github.com/alula-collections/alula-go/internal/config"
	"github.com/alula-collections/alula-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "alula",
		Short: "Conversational retrieval over the AlUla Collections - 100 Objects",
		Long: `alula answers questions about the AlUla Collections - 100 Objects catalog.

Ask in natural language, look an object up by inventory number, find catalog
images from a description, or identify an object from a photo. The same
capabilities are served over HTTP by 'alula serve'.

The chat model is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.alula/config.yaml). A .env file in the working
directory is loaded first.
See 'alula --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			if err := config.LoadDotEnv(log); err != nil {
				return err
			}

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(cmd.Context(), log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.alula/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewLookupCmd(),
		NewSearchImageCmd(),
		NewExplainImageCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
