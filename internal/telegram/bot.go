package telegram

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/luna/internal/config"
	"github.com/harun/luna/internal/logger"
	"github.com/harun/luna/pkg/channels"
	"github.com/rs/zerolog"
)

// ChannelName is the name the bot registers under in the channel registry.
const ChannelName = "telegram"

const defaultPollTimeout = 60

// botAPI is the part of tgbotapi.BotAPI the bot uses.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot is a long-polling Telegram channel.
type Bot struct {
	api    botAPI
	self   tgbotapi.User
	config *config.TelegramConfig
	logger zerolog.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// New authenticates with Telegram and returns a bot ready to start.
func New(cfg *config.TelegramConfig, log *logger.Logger) (*Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telegram config is required")
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot := newBot(api, api.Self, cfg, log.Component("telegram"))

	bot.logger.Info().
		Str("username", api.Self.UserName).
		Int64("id", api.Self.ID).
		Msg("Telegram bot authenticated")

	return bot, nil
}

func newBot(api botAPI, self tgbotapi.User, cfg *config.TelegramConfig, log zerolog.Logger) *Bot {
	return &Bot{
		api:    api,
		self:   self,
		config: cfg,
		logger: log,
	}
}

func (b *Bot) Name() string {
	return ChannelName
}

// Start registers the command menu and begins long polling.
func (b *Bot) Start(ctx context.Context, dispatch channels.DispatchFunc) error {
	if dispatch == nil {
		return fmt.Errorf("dispatch function is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return fmt.Errorf("bot is already running")
	}

	b.logger.Info().Msg("Starting Telegram bot")

	if err := NewCommands(b).SetCommands(DefaultCommands()); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to publish command menu")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = defaultPollTimeout
	if b.config != nil && b.config.PollTimeout > 0 {
		u.Timeout = b.config.PollTimeout
	}

	updates := b.api.GetUpdatesChan(u)
	b.running = true
	b.done = make(chan struct{})

	go b.processUpdates(ctx, updates, dispatch, b.done)

	b.logger.Info().Msg("Telegram bot started")

	return nil
}

// Stop ends long polling. Stopping a bot that is not running is a no-op.
func (b *Bot) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	done := b.done
	b.mu.Unlock()

	b.logger.Info().Msg("Stopping Telegram bot")
	b.api.StopReceivingUpdates()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	b.logger.Info().Msg("Telegram bot stopped")

	return nil
}

func (b *Bot) processUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel, dispatch channels.DispatchFunc, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if !b.IsRunning() {
				return
			}
			b.handleUpdate(ctx, update, dispatch)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update, dispatch channels.DispatchFunc) {
	in, ok := ToInbound(update)
	if !ok {
		return
	}

	b.logger.Debug().
		Int("update_id", update.UpdateID).
		Str("room", in.Room).
		Str("participant", in.Participant).
		Str("command", in.Command).
		Msg("Message received")

	dispatch(ctx, in)
}

// Send posts text to the chat whose ID is room.
func (b *Bot) Send(_ context.Context, room, text string) error {
	chatID, err := strconv.ParseInt(room, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", room, err)
	}

	return b.SendMessage(chatID, text)
}

// SendMessage sends a text message
func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)

	_, err := b.api.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	b.logger.Debug().
		Int64("chat_id", chatID).
		Msg("Message sent")

	return nil
}

// GetBotInfo returns bot information
func (b *Bot) GetBotInfo() map[string]interface{} {
	return map[string]interface{}{
		"username":  b.self.UserName,
		"id":        b.self.ID,
		"firstName": b.self.FirstName,
		"running":   b.IsRunning(),
	}
}

// IsRunning returns whether the bot is running
func (b *Bot) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// ValidateToken validates a bot token by attempting to authenticate
func ValidateToken(token string) error {
	if token == "" {
		return fmt.Errorf("bot token is empty")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return fmt.Errorf("invalid bot token: %w", err)
	}

	if api.Self.UserName == "" {
		return fmt.Errorf("failed to get bot info")
	}

	return nil
}
