// Package observability configures structured logging for the bot.
//
// Text output goes through tint for coloured terminal logs, JSON output is
// meant for log shippers. Every log line emitted while handling a Discord
// event should carry the event's trace id; use WithTrace.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"

	"github.com/f9global/ferret9/common/redact"
	"github.com/f9global/ferret9/common/trace"
)

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("observability: invalid log level %q", level)
	}
	return l, nil
}

// NewHandler builds the handler for format "text" or "json". Lines
// containing any of secrets have them replaced.
func NewHandler(w io.Writer, level slog.Level, format string, secrets ...string) slog.Handler {
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level, AddSource: true})
	} else {
		h = tint.NewHandler(w, &tint.Options{Level: level, AddSource: true})
	}
	if len(secrets) == 0 {
		return h
	}
	return &redactHandler{next: h, secrets: secrets}
}

// Setup installs the default logger and routes discordgo's own logging
// through it.
func Setup(w io.Writer, level, format string, secrets ...string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	h := NewHandler(w, lvl, format, secrets...)
	logger := slog.New(h)
	slog.SetDefault(logger)
	discordgo.Logger = DiscordLogger(h)
	return logger, nil
}

// WithTrace returns logger with the trace_id from ctx attached.
func WithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if id := trace.FromContext(ctx); id != "" {
		return logger.With("trace_id", id)
	}
	return logger
}

var discordgoLevels = map[int]slog.Level{
	discordgo.LogDebug:         slog.LevelDebug,
	discordgo.LogInformational: slog.LevelInfo,
	discordgo.LogWarning:       slog.LevelWarn,
	discordgo.LogError:         slog.LevelError,
}

// DiscordLogger adapts h to discordgo's package-level printf logger.
func DiscordLogger(h slog.Handler) func(msgL, caller int, format string, a ...any) {
	logger := slog.New(h).With("component", "discordgo")
	return func(msgL, _ int, format string, a ...any) {
		level, ok := discordgoLevels[msgL]
		if !ok {
			level = slog.LevelInfo
		}
		logger.Log(context.Background(), level, strings.ReplaceAll(fmt.Sprintf(format, a...), "\n", " "))
	}
}

// redactHandler scrubs secrets from the message and string attributes.
type redactHandler struct {
	next    slog.Handler
	secrets []string
}

func (h *redactHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h *redactHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, redact.String(r.Message, h.secrets...), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.scrub(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		scrubbed[i] = h.scrub(a)
	}
	return &redactHandler{next: h.next.WithAttrs(scrubbed), secrets: h.secrets}
}

func (h *redactHandler) WithGroup(name string) slog.Handler {
	return &redactHandler{next: h.next.WithGroup(name), secrets: h.secrets}
}

func (h *redactHandler) scrub(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, redact.String(v.String(), h.secrets...))
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, redact.String(err.Error(), h.secrets...))
		}
	case slog.KindGroup:
		attrs := v.Group()
		out := make([]any, len(attrs))
		for i, ga := range attrs {
			out[i] = h.scrub(ga)
		}
		return slog.Group(a.Key, out...)
	}
	return a
}
