package discord

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/f9global/ferret9/common/retry"
	"github.com/f9global/ferret9/internal/ferret9/chunk"
)

// retryable retries rate limits, server errors and transport failures.
// Other 4xx responses are final.
func retryable(err error) bool {
	if code, ok := restStatus(err); ok {
		return code == http.StatusTooManyRequests || code >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// retryablePost retries a message post only when Discord answered with a
// rate limit or server error. A transport failure may hide a delivered
// message, so it is final.
func retryablePost(err error) bool {
	code, ok := restStatus(err)
	return ok && (code == http.StatusTooManyRequests || code >= 500)
}

func restStatus(err error) (int, bool) {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		return rest.Response.StatusCode, true
	}
	return 0, false
}

// call runs an idempotent request.
func (b *Bot) call(ctx context.Context, what string, fn func(opts ...discordgo.RequestOption) error) error {
	return b.do(ctx, what, retryable, fn)
}

// post runs a request that creates a message.
func (b *Bot) post(ctx context.Context, what string, fn func(opts ...discordgo.RequestOption) error) error {
	return b.do(ctx, what, retryablePost, fn)
}

func (b *Bot) do(ctx context.Context, what string, retryIf func(error) bool, fn func(opts ...discordgo.RequestOption) error) error {
	p := b.retry
	p.Retryable = retryIf
	err := retry.Do(ctx, p, func(ctx context.Context) error {
		return fn(discordgo.WithContext(ctx))
	})
	if err != nil {
		b.logger.Warn("discord: "+what+" failed", "err", err)
	}
	return err
}

// fit enforces the transport limit on a single message.
func (b *Bot) fit(text string) string {
	if len([]rune(text)) <= chunk.TransportLimit {
		return text
	}
	b.logger.Warn("discord: message over transport limit, truncating",
		"runes", len([]rune(text)), "limit", chunk.TransportLimit)
	out, _ := chunk.Truncate(text, chunk.TransportLimit)
	return out
}

// split chunks free text (reports, dumps) for delivery.
func (b *Bot) split(text string) []string {
	frags, err := chunk.Chunk(text, b.opts.MaxFragment)
	if err != nil || len(frags) == 0 {
		return []string{text}
	}
	return frags
}

// replyTo answers a channel message: the first fragment as a reply, the
// rest as plain messages in order. Delivery stops at the first failure.
func (b *Bot) replyTo(ctx context.Context, m *discordgo.Message, frags []string) error {
	for i, f := range frags {
		f = b.fit(f)
		var err error
		if i == 0 {
			err = b.post(ctx, "reply", func(opts ...discordgo.RequestOption) error {
				_, err := b.session.ChannelMessageSendReply(m.ChannelID, f, m.Reference(), opts...)
				return err
			})
		} else {
			err = b.post(ctx, "send", func(opts ...discordgo.RequestOption) error {
				_, err := b.session.ChannelMessageSend(m.ChannelID, f, opts...)
				return err
			})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// respond edits the deferred interaction response with the first fragment
// and sends the rest as follow-ups.
func (b *Bot) respond(ctx context.Context, i *discordgo.Interaction, frags []string) error {
	for n, f := range frags {
		f = b.fit(f)
		var err error
		if n == 0 {
			err = b.edit(ctx, i, f)
		} else {
			err = b.post(ctx, "follow-up", func(opts ...discordgo.RequestOption) error {
				_, err := b.session.FollowupMessageCreate(i, true, &discordgo.WebhookParams{Content: f}, opts...)
				return err
			})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) edit(ctx context.Context, i *discordgo.Interaction, content string) error {
	return b.call(ctx, "edit response", func(opts ...discordgo.RequestOption) error {
		_, err := b.session.InteractionResponseEdit(i, &discordgo.WebhookEdit{Content: &content}, opts...)
		return err
	})
}

func (b *Bot) editEmbed(ctx context.Context, i *discordgo.Interaction, embed *discordgo.MessageEmbed) error {
	return b.call(ctx, "edit response", func(opts ...discordgo.RequestOption) error {
		empty := ""
		_, err := b.session.InteractionResponseEdit(i, &discordgo.WebhookEdit{
			Content: &empty,
			Embeds:  &[]*discordgo.MessageEmbed{embed},
		}, opts...)
		return err
	})
}

// deferResponse acknowledges an interaction so the handler has 15 minutes
// to answer instead of 3 seconds.
func (b *Bot) deferResponse(ctx context.Context, i *discordgo.Interaction) error {
	return b.call(ctx, "defer", func(opts ...discordgo.RequestOption) error {
		return b.session.InteractionRespond(i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		}, opts...)
	})
}

// ephemeral answers immediately with a message only the caller sees.
func (b *Bot) ephemeral(ctx context.Context, i *discordgo.Interaction, content string) error {
	return b.call(ctx, "respond", func(opts ...discordgo.RequestOption) error {
		return b.session.InteractionRespond(i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: content,
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		}, opts...)
	})
}
