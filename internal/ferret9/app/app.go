// Package app wires the Ferret9 subsystems together and owns their
// lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/f9global/ferret9/common/version"
	"github.com/f9global/ferret9/internal/ferret9/activity"
	"github.com/f9global/ferret9/internal/ferret9/audit"
	"github.com/f9global/ferret9/internal/ferret9/chat"
	"github.com/f9global/ferret9/internal/ferret9/config"
	"github.com/f9global/ferret9/internal/ferret9/discord"
	"github.com/f9global/ferret9/internal/ferret9/llm"
	"github.com/f9global/ferret9/internal/ferret9/memory"
	"github.com/f9global/ferret9/internal/ferret9/store"
)

// throttleBurst lets a short burst of replies through before the shared
// backend limit applies.
const throttleBurst = 5

// App is the running bot.
type App struct {
	cfg      *config.Config
	settings *config.Settings
	logger   *slog.Logger

	db       *store.Store
	activity activity.Store
	history  *memory.Store
	chat     *chat.Service
	sweeper  *memory.Sweeper
	session  discord.Session
	bot      *discord.Bot
	health   *HealthServer

	stopOnce sync.Once
}

// Option overrides a collaborator, mostly for tests.
type Option func(*options)

type options struct {
	session   discord.Session
	generator llm.Generator
	activity  activity.Store
}

// WithSession uses s instead of opening a gateway session from the token.
func WithSession(s discord.Session) Option {
	return func(o *options) { o.session = s }
}

// WithGenerator uses g instead of the configured LLM backend.
func WithGenerator(g llm.Generator) Option {
	return func(o *options) { o.generator = g }
}

// WithActivityStore uses s instead of the configured activity backend.
func WithActivityStore(s activity.Store) Option {
	return func(o *options) { o.activity = s }
}

// New builds every subsystem. Nothing talks to Discord until Run.
func New(ctx context.Context, cfg *config.Config, settings *config.Settings, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if settings == nil {
		settings = config.DefaultSettings()
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{cfg: cfg, settings: settings, logger: logger}

	db, err := store.New(cfg.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("app: open database: %w", err)
	}
	a.db = db

	a.activity = o.activity
	if a.activity == nil {
		if a.activity, err = newActivityStore(ctx, cfg, db, logger); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	gen := o.generator
	if gen == nil {
		if gen, err = newGenerator(cfg); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	gen = llm.NewThrottled(gen, cfg.LLMRequestsPerMinute, throttleBurst)

	a.history = memory.New(memory.Config{
		MaxHistory:    settings.History.MaxTurns,
		MaxAge:        settings.History.MaxAge.Std(),
		SweepInterval: settings.History.SweepInterval.Std(),
	})
	a.restoreSnapshot()
	a.sweeper = memory.NewSweeper(a.history, 0, logger)

	a.chat = chat.NewService(a.history, gen, llm.NewRateLimiter(cfg.UserRequestsPerMinute, time.Minute), chat.Options{
		Preamble:       memory.Preamble(settings.BotName, settings.Persona),
		ExemptChannels: settings.History.ExemptChannels,
		MaxFragment:    settings.Chunk.MaxLength,
		MaxTokens:      settings.LLM.MaxTokens,
		Temperature:    settings.LLM.Temperature,
	}, logger)

	a.session = o.session
	if a.session == nil {
		s, err := discord.NewSession(cfg.BotToken)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		a.session = s
	}

	notifier := audit.Multi{
		audit.NewDiscordNotifier(a.session, cfg.LogChannelID, logger),
		audit.NewStoreNotifier(db, logger),
	}

	a.bot = discord.New(a.session, a.chat, a.activity, notifier, discord.Options{
		BotName:     settings.BotName,
		GuildID:     cfg.GuildID,
		Roles:       activity.Roles{Working: settings.Roles.Working, OnBreak: settings.Roles.OnBreak},
		Clock:       activity.Clock{OffsetHours: settings.Report.TimezoneOffsetHours},
		DefaultYear: settings.Report.DefaultYear,
		MaxFragment: settings.Chunk.MaxLength,
	}, logger)

	if cfg.HTTPAddr != "" {
		a.health = NewHealthServer(cfg.HTTPAddr, Status{
			Audit:         db,
			Conversations: a.history.Len,
			Backend:       gen.Name(),
		}, logger)
	}

	logger.Info("app: initialised",
		version.Attr(),
		"llm_backend", gen.Name(),
		"activity_backend", cfg.ActivityBackend,
		"conversations_restored", a.history.Len(),
	)
	return a, nil
}

func newGenerator(cfg *config.Config) (llm.Generator, error) {
	switch cfg.LLMBackend {
	case config.BackendOpenAI:
		return llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.OpenAIModel,
			VisionModel: cfg.OpenAIVisionModel,
			BaseURL:     cfg.OpenAIBaseURL,
		}), nil
	case config.BackendClaude:
		return llm.NewClaude(llm.ClaudeConfig{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.ClaudeModel,
		}), nil
	default:
		return nil, fmt.Errorf("app: unknown LLM backend %q", cfg.LLMBackend)
	}
}

func newActivityStore(ctx context.Context, cfg *config.Config, db *store.Store, logger *slog.Logger) (activity.Store, error) {
	switch cfg.ActivityBackend {
	case config.BackendSQLite:
		return db, nil
	case config.BackendDynamoDB:
		s, err := activity.NewDynamoStore(ctx, activity.DynamoConfig{
			Region:        cfg.AWSRegion,
			LogsTable:     cfg.DynamoLogsTable,
			SessionsTable: cfg.DynamoSessionsTable,
			Endpoint:      cfg.DynamoEndpoint,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("app: unknown activity backend %q", cfg.ActivityBackend)
	}
}

// NewActivityStore opens the configured activity backend on its own, for
// commands that do not run the bot.
func NewActivityStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (activity.Store, func() error, error) {
	db, err := store.New(cfg.DatabasePath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("app: open database: %w", err)
	}
	s, err := newActivityStore(ctx, cfg, db, logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return s, db.Close, nil
}

func (a *App) restoreSnapshot() {
	if a.cfg.SnapshotPath == "" {
		return
	}
	convs, skipped, err := memory.LoadSnapshot(a.cfg.SnapshotPath)
	if err != nil {
		a.logger.Warn("app: conversation snapshot unreadable, starting empty", "path", a.cfg.SnapshotPath, "err", err)
		return
	}
	if skipped > 0 {
		a.logger.Warn("app: skipped malformed conversations in snapshot", "path", a.cfg.SnapshotPath, "skipped", skipped)
	}
	n := a.history.Restore(convs)
	a.logger.Info("app: conversations restored", "path", a.cfg.SnapshotPath, "restored", n, "saved", len(convs))
}

func (a *App) saveSnapshot() {
	if a.cfg.SnapshotPath == "" {
		return
	}
	convs := a.history.Snapshot()
	if err := memory.SaveSnapshot(a.cfg.SnapshotPath, convs); err != nil {
		a.logger.Error("app: save conversation snapshot", "path", a.cfg.SnapshotPath, "err", err)
		return
	}
	a.logger.Info("app: conversations saved", "path", a.cfg.SnapshotPath, "count", len(convs))
}

// Bot returns the Discord handler set.
func (a *App) Bot() *discord.Bot { return a.bot }

// Run connects to Discord and blocks until ctx is cancelled, SIGINT or
// SIGTERM arrives, or a subsystem fails. It always calls Stop.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.bot.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return nil
	})
	g.Go(func() error {
		a.sweeper.Run(gctx)
		return nil
	})
	if a.health != nil {
		g.Go(func() error { return a.health.Serve(gctx) })
	}

	a.logger.Info("app: running", "bot_name", a.settings.BotName)
	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("app: shutting down")
	return nil
}

// Stop disconnects from Discord, saves the conversation snapshot and closes
// the database. Safe to call more than once.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		a.sweeper.Stop()
		if err := a.bot.Stop(); err != nil {
			a.logger.Warn("app: close discord session", "err", err)
		}
		a.saveSnapshot()
		if err := a.db.Close(); err != nil {
			a.logger.Warn("app: close database", "err", err)
		}
	})
}
