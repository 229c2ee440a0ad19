package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/f9global/ferret9/internal/ferret9/config"
	"github.com/f9global/ferret9/internal/ferret9/discord"
)

func newRegisterCmd(root *rootOptions) *cobra.Command {
	var global bool
	cmd := &cobra.Command{
		Use:   "register-commands",
		Short: "Replace the bot's slash commands in GUILD_ID, or globally with --global",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadForCommands(root.envFile)
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

			guildID := cfg.GuildID
			if global {
				guildID = ""
			} else if guildID == "" {
				return fmt.Errorf("GUILD_ID is not set; pass --global to register for every guild")
			}

			s, err := discord.NewSession(cfg.BotToken)
			if err != nil {
				return err
			}
			created, err := discord.RegisterCommands(cmd.Context(), s, cfg.ClientID, guildID, settings.BotName, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %d application commands.\n", len(created))
			return nil
		},
	}
	cmd.Flags().BoolVar(&global, "global", false, "register for every guild instead of GUILD_ID")
	return cmd
}
