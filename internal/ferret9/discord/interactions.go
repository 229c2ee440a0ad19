package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"

	"github.com/f9global/ferret9/common/trace"
	"github.com/f9global/ferret9/internal/ferret9/activity"
	"github.com/f9global/ferret9/internal/ferret9/audit"
	"github.com/f9global/ferret9/internal/ferret9/chat"
	"github.com/f9global/ferret9/internal/ferret9/observability"
)

const (
	rosterTitle = "Current User Status"
	rosterColor = 0x0099ff
	memberPage  = 1000
)

// HandleInteraction answers a slash command. Other interaction types are
// ignored.
func (b *Bot) HandleInteraction(ctx context.Context, i *discordgo.Interaction) {
	if i == nil || i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	ctx, _ = trace.Start(ctx)
	data := i.ApplicationCommandData()
	user := interactionUser(i)
	logger := observability.WithTrace(ctx, b.logger).With("command", data.Name, "channel_id", i.ChannelID)
	if user != nil {
		logger = logger.With("user_id", user.ID)
	}
	logger.Info("discord: slash command")

	switch data.Name {
	case CommandAsk:
		b.ask(ctx, i, user)
	case CommandReport:
		b.reportCommand(ctx, i, user)
	case CommandWhosWorking:
		b.whosWorking(ctx, i)
	case CommandReset:
		if err := b.deferResponse(ctx, i); err != nil {
			return
		}
		b.reset(ctx, i.ChannelID, user.ID, user.Username)
		_ = b.edit(ctx, i, msgReset)
	default:
		logger.Warn("discord: unknown slash command")
	}
}

func (b *Bot) ask(ctx context.Context, i *discordgo.Interaction, user *discordgo.User) {
	data := i.ApplicationCommandData()
	opts := optionMap(data.Options)

	question := ""
	if o, ok := opts[optionQuestion]; ok {
		question = strings.TrimSpace(o.StringValue())
	}
	var images []string
	if o, ok := opts[optionImage]; ok && data.Resolved != nil {
		id, _ := o.Value.(string)
		if att, ok := data.Resolved.Attachments[id]; ok && att != nil {
			images = append(images, att.URL)
		}
	}

	if question == "" && len(images) == 0 {
		_ = b.ephemeral(ctx, i, msgAskEmpty)
		return
	}
	if err := b.deferResponse(ctx, i); err != nil {
		return
	}

	evt := audit.Event{
		Kind:      audit.KindQuestion,
		Actor:     user.Username,
		ActorID:   user.ID,
		ChannelID: i.ChannelID,
		Message:   fmt.Sprintf("%s used /%s", user.Mention(), CommandAsk),
	}
	if len(images) > 0 {
		evt.Kind = audit.KindImage
		evt.Fields = append(evt.Fields, audit.Field{Name: "Image", Value: images[0]})
	}
	q := question
	if q == "" {
		q = msgImageOnly
	}
	evt.Fields = append([]audit.Field{{Name: "Question", Value: q}}, evt.Fields...)
	b.notifier.Notify(ctx, evt)

	frags, err := b.chat.Reply(ctx, chat.Prompt{
		ChannelID: i.ChannelID,
		UserID:    user.ID,
		Username:  user.Username,
		Text:      question,
		Images:    images,
	})
	if err != nil {
		frags = []string{b.failureText(ctx, user, i.ChannelID, err)}
	}
	_ = b.respond(ctx, i, frags)
}

func (b *Bot) reportCommand(ctx context.Context, i *discordgo.Interaction, user *discordgo.User) {
	if err := b.deferResponse(ctx, i); err != nil {
		return
	}
	data := i.ApplicationCommandData()
	opts := optionMap(data.Options)

	var target *discordgo.User
	if o, ok := opts[optionUser]; ok {
		id, _ := o.Value.(string)
		if data.Resolved != nil {
			target = data.Resolved.Users[id]
		}
		if target == nil {
			target = &discordgo.User{ID: id, Username: id}
		}
	}
	date := ""
	if o, ok := opts[optionDate]; ok {
		date = strings.TrimSpace(o.StringValue())
	}
	if target == nil || date == "" {
		_ = b.edit(ctx, i, msgReportFailed)
		return
	}

	b.notifier.Notify(ctx, audit.Event{
		Kind:      audit.KindReport,
		Actor:     user.Username,
		ActorID:   user.ID,
		ChannelID: i.ChannelID,
		Message:   fmt.Sprintf("%s requested an activity report", user.Mention()),
		Fields: []audit.Field{
			{Name: "Target User", Value: target.Username},
			{Name: "Date", Value: date},
		},
	})

	if err := b.edit(ctx, i, fmt.Sprintf("Generating activity report for %s on %s... This may take a moment.", target.Username, date)); err != nil {
		return
	}
	_ = b.respond(ctx, i, b.split(b.report(ctx, target.ID, target.Username, date)))
}

// report renders the activity report for userID on the day named by date.
// Failures come back as the failure text.
func (b *Bot) report(ctx context.Context, userID, name, date string) string {
	logger := observability.WithTrace(ctx, b.logger).With("target_id", userID, "date", date)
	if b.activity == nil {
		logger.Error("discord: report requested without an activity store")
		return activity.FailedReport(name, date)
	}
	now := b.opts.Now()
	day, err := activity.ParseDate(date, now.In(b.opts.Clock.Location()), b.opts.DefaultYear)
	if err != nil {
		logger.Info("discord: report date not understood", "err", err)
		return fmt.Sprintf("I couldn't understand the date %q. Try formats like \"March 4\", \"2025-03-04\", \"today\" or \"yesterday\".", date)
	}

	entries, err := b.activity.Activities(ctx, userID, day)
	if err != nil {
		logger.Error("discord: fetch activities", "day", day, "err", err)
		return activity.FailedReport(name, date)
	}
	sessions, err := b.activity.Sessions(ctx, userID, day)
	if err != nil {
		logger.Error("discord: fetch sessions", "day", day, "err", err)
		return activity.FailedReport(name, date)
	}
	logger.Debug("discord: report data", "day", day, "activities", len(entries), "sessions", len(sessions))

	return activity.BuildReport(activity.ReportInput{
		UserName:   name,
		DateLabel:  date,
		Activities: entries,
		Sessions:   sessions,
		Now:        now,
	}, b.opts.Clock)
}

func (b *Bot) whosWorking(ctx context.Context, i *discordgo.Interaction) {
	if err := b.deferResponse(ctx, i); err != nil {
		return
	}
	if user := interactionUser(i); user != nil {
		b.notifier.Notify(ctx, audit.Event{
			Kind:      audit.KindRoster,
			Actor:     user.Username,
			ActorID:   user.ID,
			ChannelID: i.ChannelID,
			Message:   fmt.Sprintf("%s checked who's working", user.Mention()),
		})
	}
	text, embed, err := b.roster(ctx, i.GuildID)
	if err != nil || embed == nil {
		_ = b.edit(ctx, i, text)
		return
	}
	_ = b.editEmbed(ctx, i, embed)
}

// roster returns either an embed of signed-in members, or the text to show
// instead when there is nothing to list.
func (b *Bot) roster(ctx context.Context, guildID string) (string, *discordgo.MessageEmbed, error) {
	logger := observability.WithTrace(ctx, b.logger).With("guild_id", guildID)
	switch {
	case guildID == "":
		return msgGuildOnly, nil, nil
	case !b.opts.Roles.Configured():
		logger.Error("discord: working and on-break roles are not configured")
		return msgRolesMissing, nil, nil
	case b.activity == nil:
		logger.Error("discord: roster requested without an activity store")
		return msgRosterFailed, nil, nil
	}

	members, err := b.members(ctx, guildID)
	if err != nil {
		logger.Error("discord: list guild members", "err", err)
		return msgRosterFailed, nil, err
	}
	now := b.opts.Now()
	r, err := activity.BuildRoster(ctx, members, b.opts.Roles, b.activity, now)
	if err != nil {
		logger.Error("discord: build roster", "err", err)
		return msgRosterFailed, nil, err
	}
	switch {
	case r.Candidates == 0:
		return msgNobodySignedIn, nil, nil
	case len(r.Statuses) == 0:
		return msgNoActiveSession, nil, nil
	}

	desc := r.Description()
	return desc, &discordgo.MessageEmbed{
		Title:       rosterTitle,
		Description: desc,
		Color:       rosterColor,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("As of %s (%s)", b.opts.Clock.Format(now), b.opts.Clock.ZoneLabel()),
		},
	}, nil
}

// members pages through the guild member list.
func (b *Bot) members(ctx context.Context, guildID string) ([]activity.Member, error) {
	var (
		out   []activity.Member
		after string
	)
	for {
		var page []*discordgo.Member
		err := b.call(ctx, "list members", func(opts ...discordgo.RequestOption) error {
			var err error
			page, err = b.session.GuildMembers(guildID, after, memberPage, opts...)
			return err
		})
		if err != nil {
			return nil, err
		}
		out = append(out, lo.FilterMap(page, func(m *discordgo.Member, _ int) (activity.Member, bool) {
			if m == nil || m.User == nil {
				return activity.Member{}, false
			}
			return activity.Member{
				UserID:      m.User.ID,
				DisplayName: m.DisplayName(),
				Bot:         m.User.Bot,
				Roles:       m.Roles,
			}, true
		})...)
		if len(page) < memberPage || page[len(page)-1].User == nil {
			return out, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func interactionUser(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	if i.User != nil {
		return i.User
	}
	return &discordgo.User{}
}

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	return lo.SliceToMap(opts, func(o *discordgo.ApplicationCommandInteractionDataOption) (string, *discordgo.ApplicationCommandInteractionDataOption) {
		return o.Name, o
	})
}
