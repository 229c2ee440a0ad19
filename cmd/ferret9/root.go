package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/f9global/ferret9/internal/ferret9/config"
	"github.com/f9global/ferret9/internal/ferret9/observability"
)

type rootOptions struct {
	envFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "ferret9",
		Short:         "Ferret9, the F9 Global developer assistant for Discord",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file to load (default ./.env when present)")

	root.AddCommand(
		newRunCmd(opts),
		newRegisterCmd(opts),
		newActivityCmd(opts),
		newVersionCmd(),
	)
	return root
}

// setupLogger installs the process-wide logger for cfg and returns it.
func setupLogger(cfg *config.Config) (*slog.Logger, error) {
	return observability.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat, cfg.Secrets()...)
}
