// Package audit records what users asked the bot to do.
//
// Every event is posted as an embed to the activity log channel
// (LOG_CHANNEL_ID) and written to the SQLite audit log, so moderators can
// follow bot usage from Discord and operators can query it afterwards.
// Event kinds:
//   - KindMention: the bot was mentioned in a channel
//   - KindQuestion, KindImage: /ask with text or an image
//   - KindReport: /report or the report mention command
//   - KindRoster: /whosworking
//   - KindReset: conversation history cleared
//   - KindError: a handler failed
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"

	"github.com/f9global/ferret9/common/trace"
	"github.com/f9global/ferret9/internal/ferret9/chunk"
	"github.com/f9global/ferret9/internal/ferret9/store"
)

// Kind is a machine-readable event category.
type Kind string

const (
	KindMention  Kind = "mention"
	KindQuestion Kind = "question"
	KindImage    Kind = "image"
	KindReport   Kind = "report"
	KindRoster   Kind = "roster"
	KindReset    Kind = "reset"
	KindError    Kind = "error"
)

// Field is one name/value line of an event. Order is preserved.
type Field struct {
	Name  string
	Value string
}

// Event is something worth telling the log channel about.
type Event struct {
	Kind      Kind
	Actor     string // display name
	ActorID   string
	ChannelID string
	Message   string
	Fields    []Field
	// TraceID defaults to the id carried by the context.
	TraceID   string
	Timestamp time.Time
	Err       error
}

// Notifier delivers audit events. Delivery failures are logged by the
// implementation and never returned to the caller.
type Notifier interface {
	Notify(ctx context.Context, evt Event)
}

// Sender is the part of *discordgo.Session the Discord notifier uses.
type Sender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier posts events as embeds to one channel.
type DiscordNotifier struct {
	sender    Sender
	channelID string
	logger    *slog.Logger
}

// NewDiscordNotifier posts to channelID. An empty channel disables it.
func NewDiscordNotifier(sender Sender, channelID string, logger *slog.Logger) *DiscordNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscordNotifier{sender: sender, channelID: channelID, logger: logger}
}

// Notify implements Notifier.
func (n *DiscordNotifier) Notify(ctx context.Context, evt Event) {
	if n.channelID == "" {
		return
	}
	evt = normalize(ctx, evt)

	if _, err := n.sender.ChannelMessageSendEmbed(n.channelID, Embed(evt), discordgo.WithContext(ctx)); err != nil {
		n.logger.Warn("audit notifier: failed to send embed",
			"channel", n.channelID, "kind", evt.Kind, "err", err)
		return
	}
	n.logger.Debug("audit notifier: sent embed", "channel", n.channelID, "kind", evt.Kind)
}

// Embed renders evt the way it appears in the log channel.
func Embed(evt Event) *discordgo.MessageEmbed {
	s := styleOf(evt.Kind)
	desc := ""
	if evt.ActorID != "" {
		desc = fmt.Sprintf("**User:** <@%s>", evt.ActorID)
		if evt.Actor != "" {
			desc += fmt.Sprintf(" (%s)", evt.Actor)
		}
	}
	if evt.Message != "" {
		if desc != "" {
			desc += "\n"
		}
		desc += evt.Message
	}

	fields := lo.Map(evt.Fields, func(f Field, _ int) *discordgo.MessageEmbedField {
		return &discordgo.MessageEmbedField{
			Name:  f.Name,
			Value: chunk.Field(f.Value, "(empty)"),
		}
	})
	if evt.ChannelID != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Channel", Value: fmt.Sprintf("<#%s>", evt.ChannelID), Inline: true})
	}
	if evt.Err != nil {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Error", Value: chunk.Field(evt.Err.Error(), "(empty)")})
	}

	embed := &discordgo.MessageEmbed{
		Title:       s.icon + " " + s.title,
		Description: desc,
		Color:       s.color,
		Fields:      fields,
		Timestamp:   evt.Timestamp.UTC().Format(time.RFC3339),
	}
	if evt.TraceID != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "trace " + evt.TraceID}
	}
	return embed
}

// StoreNotifier writes events to the SQLite audit log.
type StoreNotifier struct {
	rec    Recorder
	logger *slog.Logger
}

// Recorder is the part of *store.Store the store notifier uses.
type Recorder interface {
	WriteAudit(ctx context.Context, rec store.AuditRecord) error
}

// NewStoreNotifier writes through rec.
func NewStoreNotifier(rec Recorder, logger *slog.Logger) *StoreNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreNotifier{rec: rec, logger: logger}
}

// Notify implements Notifier.
func (n *StoreNotifier) Notify(ctx context.Context, evt Event) {
	evt = normalize(ctx, evt)
	rec := store.AuditRecord{
		Timestamp: evt.Timestamp,
		TraceID:   evt.TraceID,
		Kind:      string(evt.Kind),
		Actor:     evt.Actor,
		ActorID:   evt.ActorID,
		ChannelID: evt.ChannelID,
		Message:   evt.Message,
		Result:    store.ResultSuccess,
	}
	if len(evt.Fields) > 0 {
		rec.Fields = lo.SliceToMap(evt.Fields, func(f Field) (string, string) { return f.Name, f.Value })
	}
	if evt.Err != nil {
		rec.Result = store.ResultError
		rec.Error = evt.Err.Error()
	}
	if err := n.rec.WriteAudit(ctx, rec); err != nil {
		n.logger.Warn("audit notifier: failed to write audit log", "kind", evt.Kind, "err", err)
	}
}

// Multi fans an event out to every notifier in order.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, evt Event) {
	evt = normalize(ctx, evt)
	for _, n := range m {
		n.Notify(ctx, evt)
	}
}

// Noop is used when no log channel or database is configured.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(context.Context, Event) {}

func normalize(ctx context.Context, evt Event) Event {
	if evt.TraceID == "" {
		evt.TraceID = trace.FromContext(ctx)
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if evt.Kind == "" {
		evt.Kind = KindError
	}
	return evt
}

type style struct {
	icon  string
	title string
	color int
}

func styleOf(k Kind) style {
	switch k {
	case KindMention:
		return style{"🔔", "BOT MENTIONED", 0xFF5722}
	case KindQuestion:
		return style{"❓", "AI QUESTION", 0x9C27B0}
	case KindImage:
		return style{"🖼️", "AI IMAGE ANALYSIS", 0x9C27B0}
	case KindReport:
		return style{"📊", "ACTIVITY REPORT", 0x2196F3}
	case KindRoster:
		return style{"👥", "WHO'S WORKING", 0x0099FF}
	case KindReset:
		return style{"🧹", "HISTORY RESET", 0x607D8B}
	case KindError:
		return style{"🚨", "ERROR", 0xF44336}
	default:
		return style{"ℹ️", "EVENT", 0x9E9E9E}
	}
}
