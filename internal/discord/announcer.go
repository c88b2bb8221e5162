package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/singleflight"

	"cafe_notifier/internal/domain"
)

const (
	embedColor        = 0x03C75A
	embedTitleMaxRune = 256
)

// MessageSender is the send capability the announcer needs.
type MessageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// ChannelFetcher resolves a channel over REST.
type ChannelFetcher interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// ChannelCache is the gateway state cache; *discordgo.State satisfies it.
type ChannelCache interface {
	Channel(channelID string) (*discordgo.Channel, error)
}

// Announcer posts announcements to one fixed channel.
type Announcer struct {
	channelID string
	sender    MessageSender
	fetcher   ChannelFetcher
	cache     ChannelCache
	logger    *slog.Logger

	group    singleflight.Group
	mu       sync.Mutex
	resolved *discordgo.Channel
}

func NewAnnouncer(channelID string, sender MessageSender, fetcher ChannelFetcher, cache ChannelCache, logger *slog.Logger) *Announcer {
	return &Announcer{
		channelID: channelID,
		sender:    sender,
		fetcher:   fetcher,
		cache:     cache,
		logger:    logger.With("component", "announcer", "channel_id", channelID),
	}
}

// Announce sends the announcement as an embed.
func (a *Announcer) Announce(ctx context.Context, announcement domain.Announcement) error {
	channel, err := a.channel(ctx)
	if err != nil {
		return err
	}

	if _, err := a.sender.ChannelMessageSendEmbed(channel.ID, buildEmbed(announcement), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send announcement: %w", err)
	}
	return nil
}

// Notify sends a plain text message to the channel.
func (a *Announcer) Notify(ctx context.Context, text string) error {
	channel, err := a.channel(ctx)
	if err != nil {
		return err
	}
	if _, err := a.sender.ChannelMessageSend(channel.ID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send notice: %w", err)
	}
	return nil
}

// channel resolves the destination lazily: remembered value, gateway cache, then REST.
// Concurrent callers share a single REST lookup.
func (a *Announcer) channel(ctx context.Context) (*discordgo.Channel, error) {
	if ch := a.cached(); ch != nil {
		return ch, nil
	}

	if a.cache != nil {
		if ch, err := a.cache.Channel(a.channelID); err == nil && ch != nil {
			a.remember(ch)
			return ch, nil
		}
	}

	v, err, _ := a.group.Do(a.channelID, func() (any, error) {
		if ch := a.cached(); ch != nil {
			return ch, nil
		}

		ch, err := a.fetcher.Channel(a.channelID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		if ch == nil {
			return nil, errors.New("empty channel response")
		}
		a.remember(ch)
		a.logger.Debug("channel resolved over REST", "name", ch.Name)
		return ch, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve channel %s: %w", a.channelID, err)
	}
	return v.(*discordgo.Channel), nil
}

func (a *Announcer) cached() *discordgo.Channel {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resolved
}

func (a *Announcer) remember(ch *discordgo.Channel) {
	a.mu.Lock()
	a.resolved = ch
	a.mu.Unlock()
}

func buildEmbed(announcement domain.Announcement) *discordgo.MessageEmbed {
	sentAt := announcement.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	return &discordgo.MessageEmbed{
		Title:       domain.Truncate(announcement.Heading(), embedTitleMaxRune, "…"),
		URL:         announcement.Link,
		Description: announcement.Link,
		Color:       embedColor,
		Timestamp:   sentAt.Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: announcement.BoardName + " · " + sentAt.Format("2006-01-02 15:04"),
		},
	}
}
