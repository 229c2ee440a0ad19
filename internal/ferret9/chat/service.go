// Package chat answers a user's message: it reads the channel history,
// records the new turn, asks the generator for a reply, records the reply and
// splits it into sendable fragments.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/f9global/ferret9/common/trace"
	"github.com/f9global/ferret9/internal/ferret9/chunk"
	"github.com/f9global/ferret9/internal/ferret9/llm"
	"github.com/f9global/ferret9/internal/ferret9/memory"
)

// ErrRateLimited is returned when the user has used up their quota.
var ErrRateLimited = errors.New("chat: user rate limited")

// Prompt is one user message to answer.
type Prompt struct {
	ChannelID string
	UserID    string
	Username  string
	Text      string
	Images    []string
}

// Options tune a Service. Zero values take defaults.
type Options struct {
	// Preamble is the system turn that opens every history.
	Preamble string
	// ExemptChannels get single-turn replies without stored history.
	ExemptChannels []string
	// MaxFragment is the chunk size handed to the transport.
	MaxFragment int
	MaxTokens   int
	Temperature float64
}

// Service is safe for concurrent use.
type Service struct {
	store   *memory.Store
	gen     llm.Generator
	limiter *llm.RateLimiter
	opts    Options
	exempt  map[string]struct{}
	logger  *slog.Logger
}

// NewService wires a Service. limiter may be nil to disable per-user limits.
func NewService(store *memory.Store, gen llm.Generator, limiter *llm.RateLimiter, opts Options, logger *slog.Logger) *Service {
	if opts.Preamble == "" {
		opts.Preamble = memory.Preamble("", "")
	}
	if opts.MaxFragment <= 0 {
		opts.MaxFragment = chunk.DefaultMaxLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	exempt := make(map[string]struct{}, len(opts.ExemptChannels))
	for _, id := range opts.ExemptChannels {
		exempt[id] = struct{}{}
	}
	return &Service{
		store:   store,
		gen:     gen,
		limiter: limiter,
		opts:    opts,
		exempt:  exempt,
		logger:  logger,
	}
}

// Backend names the generator in use.
func (s *Service) Backend() string { return s.gen.Name() }

// Exempt reports whether channelID is configured to run without history.
func (s *Service) Exempt(channelID string) bool {
	_, ok := s.exempt[channelID]
	return ok
}

// Reply answers p and returns the labeled fragments to send. Generation
// failures are returned as *llm.GenerationError and leave no assistant turn
// behind; the caller decides what the user sees.
func (s *Service) Reply(ctx context.Context, p Prompt) ([]string, error) {
	logger := s.logger.With("trace_id", trace.FromContext(ctx), "channel_id", p.ChannelID, "user_id", p.UserID)

	if s.limiter != nil && !s.limiter.Allow(p.UserID) {
		logger.Info("chat: user rate limited")
		return nil, ErrRateLimited
	}

	text := strings.TrimSpace(p.Text)
	if text == "" && len(p.Images) > 0 {
		text = llm.DefaultImagePrompt
	}

	history := s.history(p.ChannelID, p.Username, text)

	reply, err := s.gen.Generate(ctx, llm.Request{
		Messages:    toLLM(history),
		Images:      p.Images,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
	if err != nil {
		logger.Warn("chat: generation failed", "backend", s.gen.Name(), "err", err)
		return nil, err
	}

	if !s.Exempt(p.ChannelID) {
		s.store.Append(p.ChannelID, memory.RoleAssistant, reply, "")
	}

	frags, err := chunk.Chunk(reply, s.opts.MaxFragment)
	if err != nil {
		return nil, fmt.Errorf("chat: chunk reply: %w", err)
	}
	logger.Debug("chat: replied", "backend", s.gen.Name(), "turns", len(history), "fragments", len(frags))
	return frags, nil
}

// Reset forgets the history of channelID.
func (s *Service) Reset(channelID string) {
	s.store.Clear(channelID)
}

// history records the user turn and returns the prompt to send.
func (s *Service) history(channelID, username, text string) []memory.Turn {
	if s.Exempt(channelID) {
		content := text
		if username != "" {
			content = username + ": " + text
		}
		return []memory.Turn{
			{Role: memory.RoleSystem, Content: s.opts.Preamble},
			{Role: memory.RoleUser, Content: content},
		}
	}

	return s.store.Begin(channelID, s.opts.Preamble, text, username)
}

func toLLM(turns []memory.Turn) []llm.Message {
	out := make([]llm.Message, len(turns))
	for i, t := range turns {
		out[i] = llm.Message{Role: llm.Role(t.Role), Content: t.Content}
	}
	return out
}
