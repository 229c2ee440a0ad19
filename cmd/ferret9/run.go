package main

import (
	"github.com/spf13/cobra"

	"github.com/f9global/ferret9/internal/ferret9/app"
	"github.com/f9global/ferret9/internal/ferret9/config"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and answer mentions and slash commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.envFile)
			if err != nil {
				return err
			}
			logger, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			settings, err := config.LoadSettings(cfg.SettingsPath)
			if err != nil {
				return err
			}
			logger.Debug("config: loaded", "env", cfg.Dump())

			a, err := app.New(cmd.Context(), cfg, settings, logger)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}
