package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"

	"github.com/f9global/ferret9/common/retry"
	"github.com/f9global/ferret9/common/trace"
	"github.com/f9global/ferret9/internal/ferret9/activity"
	"github.com/f9global/ferret9/internal/ferret9/audit"
	"github.com/f9global/ferret9/internal/ferret9/chat"
	"github.com/f9global/ferret9/internal/ferret9/chunk"
	"github.com/f9global/ferret9/internal/ferret9/commands"
	"github.com/f9global/ferret9/internal/ferret9/llm"
	"github.com/f9global/ferret9/internal/ferret9/memory"
	"github.com/f9global/ferret9/internal/ferret9/observability"
)

// User-facing replies.
const (
	msgAskEmpty        = "Please provide a question or an image to analyze."
	msgReportFailed    = "I'm sorry, I encountered an error while generating the report. Please try again later."
	msgGuildOnly       = "❌ This command can only be used in a server."
	msgRolesMissing    = "❌ Bot configuration error: Roles not set up."
	msgNobodySignedIn  = "🍃 No users are currently signed in."
	msgNoActiveSession = "🍃 No users found with active sessions."
	msgRosterFailed    = "❌ An error occurred while fetching user status."
	msgReset           = "🧹 Conversation history cleared for this channel."
	msgScanFailed      = "❌ Could not read the activity tables."
	msgImageOnly       = "(Image only)"
)

// Options configure a Bot. Zero values take defaults.
type Options struct {
	BotName     string
	GuildID     string
	Roles       activity.Roles
	Clock       activity.Clock
	DefaultYear int
	MaxFragment int
	Retry       retry.Policy
	// Now is the clock used for reports and the roster. Defaults to
	// time.Now.
	Now func() time.Time
}

// Bot owns the gateway handlers.
type Bot struct {
	session  Session
	chat     *chat.Service
	activity activity.Store
	notifier audit.Notifier
	router   *commands.Router
	opts     Options
	retry    retry.Policy
	logger   *slog.Logger

	mu       sync.RWMutex
	botID    string
	ctx      context.Context
	handlers []func()
}

// New builds a Bot. activityStore may be nil, in which case report and
// roster commands answer with an error message.
func New(session Session, chatSvc *chat.Service, activityStore activity.Store, notifier audit.Notifier, opts Options, logger *slog.Logger) *Bot {
	if opts.BotName == "" {
		opts.BotName = memory.DefaultBotName
	}
	if opts.MaxFragment <= 0 {
		opts.MaxFragment = chunk.DefaultMaxLength
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = retry.DefaultPolicy
	}
	if notifier == nil {
		notifier = audit.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bot{
		session:  session,
		chat:     chatSvc,
		activity: activityStore,
		notifier: notifier,
		opts:     opts,
		retry:    opts.Retry,
		logger:   logger,
		ctx:      context.Background(),
	}
	b.router = b.mentionRoutes()
	return b
}

// Start registers the gateway handlers and opens the websocket. ctx bounds
// every handler invocation.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.handlers = append(b.handlers,
		b.session.AddHandler(b.onReady),
		b.session.AddHandler(b.onMessageCreate),
		b.session.AddHandler(b.onInteractionCreate),
	)
	b.mu.Unlock()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	b.logger.Info("discord: gateway connected")
	return nil
}

// Stop removes the handlers and closes the websocket.
func (b *Bot) Stop() error {
	b.mu.Lock()
	for _, remove := range b.handlers {
		remove()
	}
	b.handlers = nil
	b.mu.Unlock()
	return b.session.Close()
}

// BotID is the bot's user id once the gateway is ready.
func (b *Bot) BotID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.botID
}

func (b *Bot) setBotID(id string) {
	b.mu.Lock()
	b.botID = id
	b.mu.Unlock()
}

func (b *Bot) baseContext() context.Context {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ctx
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User == nil {
		return
	}
	b.setBotID(r.User.ID)
	b.logger.Info("discord: ready", "user", r.User.Username, "user_id", r.User.ID, "guilds", len(r.Guilds))
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	b.HandleMessage(b.baseContext(), m.Message)
}

func (b *Bot) onInteractionCreate(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	b.HandleInteraction(b.baseContext(), i.Interaction)
}

// HandleMessage answers a channel message that mentions the bot.
func (b *Bot) HandleMessage(ctx context.Context, m *discordgo.Message) {
	if m == nil || m.Author == nil || m.Author.Bot {
		return
	}
	botID := b.BotID()
	if botID == "" || !lo.ContainsBy(m.Mentions, func(u *discordgo.User) bool { return u.ID == botID }) {
		return
	}

	ctx, _ = trace.Start(ctx)
	logger := observability.WithTrace(ctx, b.logger).With("channel_id", m.ChannelID, "user_id", m.Author.ID)

	b.notifier.Notify(ctx, audit.Event{
		Kind:      audit.KindMention,
		Actor:     m.Author.Username,
		ActorID:   m.Author.ID,
		ChannelID: m.ChannelID,
		Message:   fmt.Sprintf("%s mentioned the bot", m.Author.Mention()),
		Fields:    []audit.Field{{Name: "Message", Value: m.Content}},
	})

	text := commands.StripMention(m.Content, botID)
	if text == "" && len(m.Attachments) == 0 {
		_ = b.replyTo(ctx, m, []string{commands.GreetingText(b.opts.BotName)})
		return
	}

	if text != "" {
		cmd := &commands.Command{
			RawText:   text,
			ChannelID: m.ChannelID,
			GuildID:   m.GuildID,
			UserID:    m.Author.ID,
			Username:  m.Author.Username,
		}
		out, err := b.router.Route(ctx, cmd)
		switch {
		case err == nil:
			logger.Info("discord: mention command", "command", cmd.Name)
			_ = b.replyTo(ctx, m, b.split(out))
			return
		case !errors.Is(err, commands.ErrNoRoute):
			logger.Error("discord: mention command failed", "command", cmd.Name, "err", err)
			b.notifyError(ctx, m.Author, m.ChannelID, err)
			if out == "" {
				out = llm.FallbackMessage
			}
			_ = b.replyTo(ctx, m, []string{out})
			return
		}
	}

	if err := b.call(ctx, "typing", func(opts ...discordgo.RequestOption) error {
		return b.session.ChannelTyping(m.ChannelID, opts...)
	}); err != nil {
		logger.Debug("discord: typing indicator failed", "err", err)
	}

	frags, err := b.chat.Reply(ctx, chat.Prompt{
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
		Username:  m.Author.Username,
		Text:      text,
		Images:    imageURLs(m.Attachments),
	})
	if err != nil {
		frags = []string{b.failureText(ctx, m.Author, m.ChannelID, err)}
	}
	_ = b.replyTo(ctx, m, frags)
}

// failureText maps a chat error to what the user sees.
func (b *Bot) failureText(ctx context.Context, u *discordgo.User, channelID string, err error) string {
	if errors.Is(err, chat.ErrRateLimited) {
		return llm.RateLimitedMessage
	}
	b.notifyError(ctx, u, channelID, err)
	return llm.FallbackMessage
}

func (b *Bot) notifyError(ctx context.Context, u *discordgo.User, channelID string, err error) {
	evt := audit.Event{Kind: audit.KindError, ChannelID: channelID, Err: err}
	if u != nil {
		evt.Actor, evt.ActorID = u.Username, u.ID
	}
	b.notifier.Notify(ctx, evt)
}

func imageURLs(atts []*discordgo.MessageAttachment) []string {
	return lo.FilterMap(atts, func(a *discordgo.MessageAttachment, _ int) (string, bool) {
		if a == nil || !strings.HasPrefix(a.ContentType, "image/") {
			return "", false
		}
		return a.URL, true
	})
}

// mentionRoutes wires the text commands users can send with a mention.
func (b *Bot) mentionRoutes() *commands.Router {
	r := commands.NewRouter()
	r.Register("help", commands.Exact("help"), func(context.Context, *commands.Command) (string, error) {
		return commands.HelpText(b.opts.BotName), nil
	})
	r.Register("reset", commands.Exact("reset", "clear"), func(ctx context.Context, cmd *commands.Command) (string, error) {
		b.reset(ctx, cmd.ChannelID, cmd.UserID, cmd.Username)
		return msgReset, nil
	})
	r.Register("scan", commands.Exact("scan tables"), func(ctx context.Context, _ *commands.Command) (string, error) {
		if b.activity == nil {
			return msgScanFailed, errors.New("discord: no activity store configured")
		}
		d, err := b.activity.Dump(ctx)
		if err != nil {
			return msgScanFailed, err
		}
		return activity.RenderDump(d), nil
	})
	r.Register("report", commands.Prefix("report"), func(ctx context.Context, cmd *commands.Command) (string, error) {
		userID, date, err := commands.ParseReportArgs(cmd.RawText)
		if err != nil {
			return err.Error(), nil
		}
		name := userID
		if u, err := b.session.User(userID, discordgo.WithContext(ctx)); err == nil && u != nil {
			name = u.Username
		}
		b.notifier.Notify(ctx, audit.Event{
			Kind:      audit.KindReport,
			Actor:     cmd.Username,
			ActorID:   cmd.UserID,
			ChannelID: cmd.ChannelID,
			Message:   fmt.Sprintf("<@%s> requested an activity report", cmd.UserID),
			Fields:    []audit.Field{{Name: "Target User", Value: name}, {Name: "Date", Value: date}},
		})
		return b.report(ctx, userID, name, date), nil
	})
	r.Register("whosworking", commands.Exact("whosworking", "who's working", "whos working"), func(ctx context.Context, cmd *commands.Command) (string, error) {
		text, _, err := b.roster(ctx, cmd.GuildID)
		return text, err
	})
	return r
}

func (b *Bot) reset(ctx context.Context, channelID, userID, username string) {
	b.chat.Reset(channelID)
	b.notifier.Notify(ctx, audit.Event{
		Kind:      audit.KindReset,
		Actor:     username,
		ActorID:   userID,
		ChannelID: channelID,
		Message:   "Conversation history cleared",
	})
}
