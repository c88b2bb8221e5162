package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

type BotConfig struct {
	Token        string
	GuildID      string
	ChannelID    string
	SyncCommands bool
	CommandGuild string
	ReadyNotice  string
}

// CommandRegistrar replaces the registered application commands.
type CommandRegistrar interface {
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// Bot owns the gateway session and hands out narrow capabilities to the rest of the app.
type Bot struct {
	session   *discordgo.Session
	config    BotConfig
	commands  *CommandHandler
	announcer *Announcer
	logger    *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

func NewBot(cfg BotConfig, lookup SummaryLookup, logger *slog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	b := &Bot{
		session:   session,
		config:    cfg,
		commands:  NewCommandHandler(lookup, logger),
		announcer: NewAnnouncer(cfg.ChannelID, session, session, session.State, logger),
		logger:    logger.With("component", "bot"),
		ready:     make(chan struct{}),
	}

	session.AddHandler(b.onReady)
	session.AddHandler(b.onInteraction)

	return b, nil
}

// Announcer returns the channel announcer backed by this session.
func (b *Bot) Announcer() *Announcer {
	return b.announcer
}

// Ready is closed once the first Ready event has been received.
func (b *Bot) Ready() <-chan struct{} {
	return b.ready
}

func (b *Bot) Open() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	return nil
}

func (b *Bot) Close() error {
	return b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	appID := r.User.ID
	if r.Application != nil && r.Application.ID != "" {
		appID = r.Application.ID
	}
	b.logger.Info("bot logged in", "user", r.User.String(), "guilds", len(r.Guilds))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	b.handleReady(ctx, s, appID)
}

// handleReady runs once per gateway session start. Resumes after reconnects fire it again;
// only the first one releases the scheduler.
func (b *Bot) handleReady(ctx context.Context, registrar CommandRegistrar, appID string) {
	if b.config.SyncCommands {
		guild := b.config.CommandGuild
		if guild == "" {
			guild = b.config.GuildID
		}
		registered, err := registrar.ApplicationCommandBulkOverwrite(appID, guild, b.commands.Commands(), discordgo.WithContext(ctx))
		if err != nil {
			b.logger.Error("register commands failed", "guild_id", guild, "error", err)
		} else {
			b.logger.Info("registered commands", "guild_id", guild, "count", len(registered))
		}
	}

	first := false
	b.readyOnce.Do(func() {
		first = true
		close(b.ready)
	})

	if first && b.config.ReadyNotice != "" {
		if err := b.announcer.Notify(ctx, b.config.ReadyNotice); err != nil {
			b.logger.Error("ready notice failed", "error", err)
		}
	}
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.commands.Handle(ctx, s, i.Interaction); err != nil {
		b.logger.Error("interaction failed", "error", err)
	}
}
