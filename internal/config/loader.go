package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "LUNA"
	configDirName  = ".luna"
	configFileName = "luna.json"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
	envFile    string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		envFile:    ".env",
	}
}

// WithEnvFile sets the dotenv file read before the environment is consulted.
// An empty path disables dotenv loading.
func (l *Loader) WithEnvFile(path string) *Loader {
	l.envFile = path
	return l
}

// Load reads the config file, if present, and overlays LUNA_* environment
// variables on top of the defaults.
func (l *Loader) Load() (*Config, error) {
	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", l.envFile, err)
		}
	}

	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to get home directory")
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	// LUNA_MEMORY_MAX_TURNS overrides memory.max_turns
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	// ZeroFields replaces default lists instead of overlaying them.
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) { dc.ZeroFields = true }); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set data directory if not specified
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, configDirName)
	}

	// Set logging file path if not specified
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "luna.log")
	}

	if cfg.Bot.PersonaFile != "" && !filepath.IsAbs(cfg.Bot.PersonaFile) {
		cfg.Bot.PersonaFile = filepath.Join(cfg.DataDir, cfg.Bot.PersonaFile)
	}

	return cfg, nil
}

// envKeys are bound explicitly so they apply even when the config file
// does not mention them.
var envKeys = []string{
	"generation.api_key",
	"generation.provider",
	"generation.endpoint",
	"generation.model",
	"telegram.bot_token",
	"telegram.enabled",
	"console.enabled",
	"logging.level",
	"data_dir",
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to get home directory")
	}

	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	// Durations are written as strings so the file stays readable.
	v.Set("bot", cfg.Bot)
	v.Set("memory", map[string]interface{}{
		"max_turns":      cfg.Memory.MaxTurns,
		"idle_timeout":   cfg.Memory.IdleTimeout.String(),
		"sweep_interval": cfg.Memory.SweepInterval.String(),
	})
	v.Set("generation", map[string]interface{}{
		"provider":     cfg.Generation.Provider,
		"endpoint":     cfg.Generation.Endpoint,
		"api_key":      cfg.Generation.APIKey,
		"model":        cfg.Generation.Model,
		"temperature":  cfg.Generation.Temperature,
		"max_tokens":   cfg.Generation.MaxTokens,
		"timeout":      cfg.Generation.Timeout.String(),
		"max_attempts": cfg.Generation.MaxAttempts,
		"backoff":      cfg.Generation.Backoff.String(),
		"text_path":    cfg.Generation.TextPath,
	})
	v.Set("dispatch", map[string]interface{}{
		"max_concurrent":   cfg.Dispatch.MaxConcurrent,
		"max_pending":      cfg.Dispatch.MaxPending,
		"per_conversation": cfg.Dispatch.PerConversation,
		"dedup_ttl":        cfg.Dispatch.DedupTTL.String(),
	})
	v.Set("telegram", cfg.Telegram)
	v.Set("console", cfg.Console)
	v.Set("logging", cfg.Logging)
	v.Set("metrics", cfg.Metrics)
	v.Set("tracing", cfg.Tracing)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	// The file may hold secrets.
	if err := os.Chmod(configPath, 0o600); err != nil {
		return fmt.Errorf("failed to restrict config file permissions: %w", err)
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, configDirName, configFileName)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
