package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/harun/luna/pkg/generation"
)

var telegramTokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// Validator checks individual configuration values. Its findings are
// warnings: the daemon logs them and keeps running.
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%s API key is not set", provider)
	}
	if generation.IsPlaceholder(key) {
		return fmt.Errorf("%s API key is still a placeholder", provider)
	}

	switch provider {
	case generation.ProviderAnthropic:
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case generation.ProviderOpenAI:
		if !strings.HasPrefix(key, "sk-") && !strings.HasPrefix(key, "pplx-") {
			return fmt.Errorf("invalid OpenAI-compatible API key format (should start with sk- or pplx-)")
		}
	case generation.ProviderGemini:
		if !strings.HasPrefix(key, "AIza") {
			return fmt.Errorf("invalid Gemini API key format (should start with AIza)")
		}
	}

	return nil
}

// ValidateTelegramToken validates a Telegram bot token
func (v *Validator) ValidateTelegramToken(token string) error {
	if token == "" {
		return fmt.Errorf("telegram bot token cannot be empty")
	}

	// <bot_id>:<secret>
	if !telegramTokenPattern.MatchString(token) {
		return fmt.Errorf("invalid Telegram bot token format")
	}

	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateRooms flags blank entries in the target room allowlist.
func (v *Validator) ValidateRooms(rooms []string) error {
	for i, room := range rooms {
		if strings.TrimSpace(room) == "" {
			return fmt.Errorf("bot.router.target_rooms[%d] is blank", i)
		}
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if cfg.Generation.Provider != generation.ProviderHTTP {
		if err := v.ValidateAPIKey(cfg.Generation.APIKey, cfg.Generation.Provider); err != nil {
			errors = append(errors, fmt.Errorf("generation: %w", err))
		}
	}
	if err := v.ValidateTemperature(cfg.Generation.Temperature); err != nil {
		errors = append(errors, fmt.Errorf("generation: %w", err))
	}
	if err := v.ValidateMaxTokens(cfg.Generation.MaxTokens); err != nil {
		errors = append(errors, fmt.Errorf("generation: %w", err))
	}

	if cfg.Telegram.Enabled && cfg.Telegram.BotToken != "" {
		if err := v.ValidateTelegramToken(cfg.Telegram.BotToken); err != nil {
			errors = append(errors, err)
		}
	}

	if err := v.ValidateRooms(cfg.Bot.Router.TargetRooms); err != nil {
		errors = append(errors, err)
	}

	if cfg.Memory.SweepInterval > cfg.Memory.IdleTimeout {
		errors = append(errors, fmt.Errorf("memory.sweep_interval (%s) exceeds memory.idle_timeout (%s)", cfg.Memory.SweepInterval, cfg.Memory.IdleTimeout))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
