package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cafe_notifier/internal/config"
	"cafe_notifier/internal/discord"
	"cafe_notifier/internal/domain"
	"cafe_notifier/internal/publisher"
	"cafe_notifier/internal/scheduler"
	"cafe_notifier/internal/service"
	"cafe_notifier/internal/source/cafe"
	"cafe_notifier/internal/storage"
	"cafe_notifier/internal/storage/file"
	"cafe_notifier/internal/storage/sqldb"
	"cafe_notifier/internal/wiki"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "notifier",
		Short:         "Discord bot announcing new cafe posts and answering /wiki lookups",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Connect to Discord and poll boards on schedule",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(configPath)
			},
		},
		&cobra.Command{
			Use:   "poll-once",
			Short: "Run a single poll cycle and log announcements instead of sending them",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runPollOnce(cmd.Context(), configPath)
			},
		},
		newStateCmd(&configPath),
	)

	return root
}

func newStateCmd(configPath *string) *cobra.Command {
	state := &cobra.Command{
		Use:   "state",
		Short: "Inspect stored last-seen state",
	}
	state.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored board -> link mapping",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cmd.Context(), cfg.State, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			seen, _ := store.Load(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(seen)
		},
	})
	return state
}

func runServe(configPath string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	store, closeStore, err := openStore(ctx, cfg.State, logger)
	if err != nil {
		logger.Error("failed to open state store", "error", err)
		return err
	}
	defer closeStore()

	// Initialize RabbitMQ mirror, optional
	var pub service.Publisher
	if cfg.RabbitMQ.URL != "" {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			return err
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	}

	wikiClient := wiki.New(wiki.Config{
		BaseURL:    cfg.Wiki.BaseURL,
		MaxExtract: cfg.Wiki.MaxExtract,
		Timeout:    cfg.Wiki.Timeout,
		UserAgent:  cfg.Wiki.UserAgent,
	}, logger)

	bot, err := discord.NewBot(discord.BotConfig{
		Token:        cfg.Discord.Token,
		GuildID:      cfg.Discord.GuildID,
		ChannelID:    cfg.Discord.ChannelID,
		SyncCommands: cfg.Discord.SyncCommands,
		CommandGuild: cfg.Discord.CommandGuild,
		ReadyNotice:  cfg.Discord.ReadyNotice,
	}, wikiClient, logger)
	if err != nil {
		logger.Error("failed to create bot", "error", err)
		return err
	}

	poller := service.NewPoller(
		store,
		newSource(cfg, logger),
		bot.Announcer(),
		pub,
		logger,
		service.PollerConfig{
			Boards:        cfg.DomainBoards(),
			TitleMaxRunes: cfg.Discord.TitleMaxRunes,
		},
	)

	sched := scheduler.NewScheduler(poller, scheduler.Config{
		EveryMinutes: cfg.Sync.EveryMinutes,
		RunOnStart:   cfg.Sync.RunOnStart,
		CycleTimeout: cfg.Sync.CycleTimeout,
	}, logger)

	if err := bot.Open(); err != nil {
		logger.Error("failed to connect to discord", "error", err)
		return err
	}
	defer bot.Close()

	logger.Info("starting cafe notifier",
		"boards", len(cfg.Boards),
		"every_minutes", cfg.Sync.EveryMinutes,
		"state_backend", cfg.State.Backend,
	)

	if err := sched.Start(ctx, bot.Ready()); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler error", "error", err)
		return err
	}
	return nil
}

func runPollOnce(ctx context.Context, configPath string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg.State, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	poller := service.NewPoller(
		store,
		newSource(cfg, logger),
		logAnnouncer{logger: logger},
		nil,
		logger,
		service.PollerConfig{
			Boards:        cfg.DomainBoards(),
			TitleMaxRunes: cfg.Discord.TitleMaxRunes,
		},
	)

	stats, err := poller.Poll(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("checked=%d seeded=%d announced=%d unchanged=%d fetch_failures=%d errors=%d\n",
		stats.Checked, stats.Seeded, stats.Announced, stats.Unchanged, stats.FetchFailures, stats.Errors)
	return nil
}

func loadConfig(path string) (*config.Config, *slog.Logger, error) {
	logger := setupLogger("info")

	cfg, err := config.Load(path)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return nil, nil, err
	}

	return cfg, setupLogger(cfg.LogLevel), nil
}

func newSource(cfg *config.Config, logger *slog.Logger) *cafe.Source {
	return cafe.New(cafe.Config{
		APIBaseURL:     cfg.Cafe.APIBaseURL,
		UserAgent:      cfg.Cafe.UserAgent,
		Timeout:        cfg.Cafe.Timeout,
		RequestSpacing: cfg.Cafe.RequestSpacing,
	}, logger)
}

// openStore builds the configured backend behind a pending overlay, so a failed save
// never lets the process forget a post it already handled.
func openStore(ctx context.Context, cfg config.StateConfig, logger *slog.Logger) (service.StateStore, func(), error) {
	switch cfg.Backend {
	case "file":
		return storage.WithPending(file.NewStore(cfg.Path, logger), logger), func() {}, nil
	case "sqlite", "postgres":
		dsn := cfg.DSN
		if dsn == "" && cfg.Backend == "sqlite" {
			dsn = "cafe_notifier.db"
		}
		db, err := sqldb.Open(ctx, cfg.Backend, dsn)
		if err != nil {
			return nil, nil, err
		}
		store := sqldb.NewSeenStateStore(db, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("connected to state database", "backend", cfg.Backend)
		return storage.WithPending(store, logger), func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}

// logAnnouncer writes announcements to the log instead of Discord.
type logAnnouncer struct {
	logger *slog.Logger
}

func (a logAnnouncer) Announce(_ context.Context, announcement domain.Announcement) error {
	a.logger.Info("announcement",
		"heading", announcement.Heading(),
		"link", announcement.Link,
		"sent_at", announcement.SentAt,
	)
	return nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
