package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"cafe_notifier/internal/wiki"
)

const (
	wikiCommand     = "wiki"
	wikiQueryOption = "query"
	lookupTimeout   = 15 * time.Second
)

// SummaryLookup is the encyclopedia capability the command handler needs.
type SummaryLookup interface {
	Summary(ctx context.Context, query string) (*wiki.Summary, error)
}

// InteractionResponder answers interactions; *discordgo.Session satisfies it.
type InteractionResponder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// CommandHandler serves the /wiki slash command.
type CommandHandler struct {
	lookup SummaryLookup
	logger *slog.Logger
}

func NewCommandHandler(lookup SummaryLookup, logger *slog.Logger) *CommandHandler {
	return &CommandHandler{
		lookup: lookup,
		logger: logger.With("component", "commands"),
	}
}

// Commands returns the application commands to register.
func (h *CommandHandler) Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        wikiCommand,
			Description: "Look up an encyclopedia article summary",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        wikiQueryOption,
					Description: "Article to look up",
					Required:    true,
				},
			},
		},
	}
}

// Handle acknowledges the interaction at once, then edits the deferred reply with the result.
func (h *CommandHandler) Handle(ctx context.Context, r InteractionResponder, i *discordgo.Interaction) error {
	if i.Type != discordgo.InteractionApplicationCommand {
		return nil
	}
	data := i.ApplicationCommandData()
	if data.Name != wikiCommand {
		return nil
	}

	query := ""
	for _, opt := range data.Options {
		if opt.Name == wikiQueryOption {
			query = opt.StringValue()
		}
	}

	err := r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("defer response: %w", err)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	edit := h.reply(lookupCtx, query)
	if _, err := r.InteractionResponseEdit(i, edit, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("edit response: %w", err)
	}
	return nil
}

func (h *CommandHandler) reply(ctx context.Context, query string) *discordgo.WebhookEdit {
	summary, err := h.lookup.Summary(ctx, query)
	if err != nil {
		if !errors.Is(err, wiki.ErrNotFound) {
			h.logger.Warn("wiki lookup failed", "query", query, "error", err)
		}
		content := fmt.Sprintf("No article found for %q.", query)
		return &discordgo.WebhookEdit{Content: &content}
	}

	content := ""
	embeds := []*discordgo.MessageEmbed{
		{
			Title:       summary.Title,
			URL:         summary.URL,
			Description: summary.Extract + "\n\n" + summary.URL,
			Color:       embedColor,
		},
	}
	return &discordgo.WebhookEdit{Content: &content, Embeds: &embeds}
}
