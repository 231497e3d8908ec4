package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/harun/luna/pkg/commandqueue"
	"github.com/harun/luna/pkg/generation"
	"github.com/harun/luna/pkg/orchestrator"
	"github.com/harun/luna/pkg/session"
)

// Config represents the main Luna configuration
type Config struct {
	// Bot identity, trigger phrases and reply texts
	Bot BotConfig `json:"bot" mapstructure:"bot"`

	// Conversation memory
	Memory session.Config `json:"memory" mapstructure:"memory"`

	// Generation endpoint
	Generation generation.Config `json:"generation" mapstructure:"generation"`

	// Inbound dispatch
	Dispatch DispatchConfig `json:"dispatch" mapstructure:"dispatch"`

	// Channels
	Telegram TelegramConfig `json:"telegram" mapstructure:"telegram"`
	Console  ConsoleConfig  `json:"console" mapstructure:"console"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics and tracing
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// BotConfig holds the bot persona and routing settings
type BotConfig struct {
	Name string `json:"name" mapstructure:"name"`
	// PersonaFile holds the system preamble; empty uses the built-in one.
	PersonaFile      string                    `json:"persona_file" mapstructure:"persona_file"`
	Router           orchestrator.RouterConfig `json:"router" mapstructure:"router"`
	Replies          orchestrator.Replies      `json:"replies" mapstructure:"replies"`
	StatusTimeLayout string                    `json:"status_time_layout" mapstructure:"status_time_layout"`
}

// DispatchConfig bounds concurrent work
type DispatchConfig struct {
	MaxConcurrent int `json:"max_concurrent" mapstructure:"max_concurrent"`
	MaxPending    int `json:"max_pending" mapstructure:"max_pending"`
	// PerConversation caps in-flight messages per conversation.
	PerConversation int           `json:"per_conversation" mapstructure:"per_conversation"`
	DedupTTL        time.Duration `json:"dedup_ttl" mapstructure:"dedup_ttl"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	BotToken    string `json:"bot_token" mapstructure:"bot_token"`
	PollTimeout int    `json:"poll_timeout" mapstructure:"poll_timeout"` // seconds
}

// ConsoleConfig holds the stdin/stdout channel configuration
type ConsoleConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	Participant string `json:"participant" mapstructure:"participant"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the metrics server configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Host    string `json:"host" mapstructure:"host"`
	Port    int    `json:"port" mapstructure:"port"`
}

// Addr returns host:port for the metrics listener.
func (m MetricsConfig) Addr() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

// TracingConfig toggles OpenTelemetry span recording
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	orch := orchestrator.DefaultConfig()
	return &Config{
		Bot: BotConfig{
			Name:             "luna",
			Router:           orch.Router,
			Replies:          orch.Replies,
			StatusTimeLayout: orch.StatusTimeLayout,
		},
		Memory:     session.DefaultConfig(),
		Generation: generation.DefaultConfig(),
		Dispatch: DispatchConfig{
			MaxConcurrent:   commandqueue.DefaultMaxConcurrent,
			MaxPending:      commandqueue.DefaultMaxPending,
			PerConversation: commandqueue.DefaultLaneConcurrency,
			DedupTTL:        commandqueue.DefaultDedupTTL,
		},
		Telegram: TelegramConfig{
			Enabled:     true,
			PollTimeout: 60,
		},
		Console: ConsoleConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    9464,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "luna",
			SampleRatio: 1,
		},
		DataDir: "",
	}
}

// Orchestrator returns the orchestrator settings.
func (c *Config) Orchestrator() orchestrator.Config {
	return orchestrator.Config{
		Router:           c.Bot.Router,
		Replies:          c.Bot.Replies,
		StatusTimeLayout: c.Bot.StatusTimeLayout,
	}
}

// Queue returns the dispatch queue settings.
func (c *Config) Queue() commandqueue.Config {
	return commandqueue.Config{
		Name:            "conversations",
		MaxConcurrent:   c.Dispatch.MaxConcurrent,
		MaxPending:      c.Dispatch.MaxPending,
		LaneConcurrency: c.Dispatch.PerConversation,
		DedupTTL:        c.Dispatch.DedupTTL,
	}
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	masked.Generation.APIKey = mask(c.Generation.APIKey)
	masked.Telegram.BotToken = mask(c.Telegram.BotToken)
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****"
}

// Validate checks if the configuration is valid. A missing generation API
// key is not an error: the bot still runs and answers with the
// unconfigured reply.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Bot.Router.Prefix) == "" {
		return fmt.Errorf("bot.router.prefix is required")
	}

	if c.Memory.MaxTurns <= 0 {
		return fmt.Errorf("memory.max_turns must be positive")
	}
	if c.Memory.IdleTimeout <= 0 {
		return fmt.Errorf("memory.idle_timeout must be positive")
	}
	if c.Memory.SweepInterval <= 0 {
		return fmt.Errorf("memory.sweep_interval must be positive")
	}

	switch c.Generation.Provider {
	case generation.ProviderOpenAI, generation.ProviderAnthropic, generation.ProviderGemini, generation.ProviderHTTP:
	default:
		return fmt.Errorf("invalid generation provider %s (must be: openai, anthropic, gemini, http)", c.Generation.Provider)
	}
	if c.Generation.Provider == generation.ProviderHTTP && strings.TrimSpace(c.Generation.Endpoint) == "" {
		return fmt.Errorf("generation.endpoint is required for the http provider")
	}
	if c.Generation.MaxAttempts <= 0 {
		return fmt.Errorf("generation.max_attempts must be positive")
	}
	if c.Generation.Timeout <= 0 {
		return fmt.Errorf("generation.timeout must be positive")
	}
	if c.Generation.Backoff < 0 {
		return fmt.Errorf("generation.backoff must be >= 0")
	}

	if c.Dispatch.MaxConcurrent <= 0 || c.Dispatch.PerConversation <= 0 {
		return fmt.Errorf("dispatch.max_concurrent and dispatch.per_conversation must be positive")
	}
	if c.Dispatch.MaxPending < 0 {
		return fmt.Errorf("dispatch.max_pending must be >= 0")
	}

	if !c.Telegram.Enabled && !c.Console.Enabled {
		return fmt.Errorf("at least one channel (telegram, console) must be enabled")
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token is required when Telegram channel is enabled")
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
	}

	return nil
}
