package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Slash command and option names.
const (
	CommandAsk         = "ask"
	CommandReport      = "report"
	CommandWhosWorking = "whosworking"
	CommandReset       = "reset"

	optionQuestion = "question"
	optionImage    = "image"
	optionUser     = "user"
	optionDate     = "date"
)

// ApplicationCommands returns the slash commands registered for botName.
func ApplicationCommands(botName string) []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        CommandAsk,
			Type:        discordgo.ChatApplicationCommand,
			Description: fmt.Sprintf("Ask %s a question", botName),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optionQuestion,
					Description: "The question or message for the AI",
				},
				{
					Type:        discordgo.ApplicationCommandOptionAttachment,
					Name:        optionImage,
					Description: "An image to analyze (optional)",
				},
			},
		},
		{
			Name:        CommandReport,
			Type:        discordgo.ChatApplicationCommand,
			Description: "Generate an activity report for a user on a specific date",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        optionUser,
					Description: "The user to generate a report for",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optionDate,
					Description: `The date to generate the report for (e.g., "March 4", "yesterday", "today")`,
					Required:    true,
				},
			},
		},
		{
			Name:        CommandWhosWorking,
			Type:        discordgo.ChatApplicationCommand,
			Description: "Lists users currently signed in and their work/break times.",
		},
		{
			Name:        CommandReset,
			Type:        discordgo.ChatApplicationCommand,
			Description: fmt.Sprintf("Make %s forget this channel's conversation", botName),
		},
	}
}

// RegisterCommands replaces the application's commands in guildID, or
// globally when guildID is empty.
func RegisterCommands(ctx context.Context, s Session, appID, guildID, botName string, logger *slog.Logger) ([]*discordgo.ApplicationCommand, error) {
	if logger == nil {
		logger = slog.Default()
	}
	created, err := s.ApplicationCommandBulkOverwrite(appID, guildID, ApplicationCommands(botName), discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord: register commands: %w", err)
	}
	for _, c := range created {
		logger.Info("discord: registered command", "name", c.Name, "id", c.ID, "guild_id", guildID)
	}
	return created, nil
}
