package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Commands publishes the bot's slash command menu.
type Commands struct {
	bot    *Bot
	logger zerolog.Logger
}

// NewCommands creates a command menu publisher for bot.
func NewCommands(bot *Bot) *Commands {
	return &Commands{
		bot:    bot,
		logger: bot.logger.With().Str("module", "commands").Logger(),
	}
}

// DefaultCommands lists the slash commands the router understands.
func DefaultCommands() []tgbotapi.BotCommand {
	return []tgbotapi.BotCommand{
		{Command: "start", Description: "Say hello to Luna"},
		{Command: "ask", Description: "Ask Luna something"},
		{Command: "status", Description: "How much Luna remembers"},
		{Command: "reset", Description: "Make Luna forget this conversation"},
	}
}

// SetCommands sets the bot's command list in Telegram
func (c *Commands) SetCommands(commands []tgbotapi.BotCommand) error {
	cfg := tgbotapi.NewSetMyCommands(commands...)
	_, err := c.bot.api.Request(cfg)
	if err != nil {
		return fmt.Errorf("failed to set commands: %w", err)
	}

	c.logger.Info().Int("count", len(commands)).Msg("Bot commands updated")
	return nil
}
