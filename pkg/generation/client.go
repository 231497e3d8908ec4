package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harun/luna/internal/observability"
	"github.com/harun/luna/internal/tracing"
	"github.com/harun/luna/pkg/prompt"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultModel       = "sonar-pro"
	DefaultEndpoint    = "https://api.perplexity.ai/"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 500
	DefaultTimeout     = 15 * time.Second
	DefaultMaxAttempts = 3
	DefaultBackoff     = time.Second
)

// Config selects the backend and bounds each call.
type Config struct {
	Provider    string        `json:"provider" mapstructure:"provider"`
	Endpoint    string        `json:"endpoint" mapstructure:"endpoint"`
	APIKey      string        `json:"api_key" mapstructure:"api_key"`
	Model       string        `json:"model" mapstructure:"model"`
	Temperature float64       `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int           `json:"max_tokens" mapstructure:"max_tokens"`
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxAttempts int           `json:"max_attempts" mapstructure:"max_attempts"`
	Backoff     time.Duration `json:"backoff" mapstructure:"backoff"`
	TextPath    string        `json:"text_path" mapstructure:"text_path"`
}

func DefaultConfig() Config {
	return Config{
		Provider:    ProviderOpenAI,
		Endpoint:    DefaultEndpoint,
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		Timeout:     DefaultTimeout,
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     DefaultBackoff,
		TextPath:    DefaultTextPath,
	}
}

func (c Config) withDefaults() Config {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Backoff < 0 {
		c.Backoff = 0
	}
	if c.TextPath == "" {
		c.TextPath = DefaultTextPath
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Temperature < 0 {
		c.Temperature = 0
	}
	return c
}

// Configured reports whether calls can be attempted at all.
func (c Config) Configured() bool {
	if IsPlaceholder(c.APIKey) {
		return false
	}
	if strings.EqualFold(c.Provider, ProviderHTTP) && strings.TrimSpace(c.Endpoint) == "" {
		return false
	}
	return true
}

var placeholderMarkers = []string{
	"여기에",
	"your_api_key",
	"your-api-key",
	"your api key",
	"<api",
	"changeme",
	"placeholder",
	"xxxxxxxx",
}

// IsPlaceholder reports whether key is empty or a template value.
func IsPlaceholder(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "" {
		return true
	}
	for _, marker := range placeholderMarkers {
		if strings.Contains(k, marker) {
			return true
		}
	}
	return false
}

// Result is a successful generation.
type Result struct {
	Text     string
	Attempts int
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Client runs generation calls against one provider.
type Client struct {
	cfg      Config
	provider Provider
	sleep    Sleeper
	logger   zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithProvider overrides the provider built from Config.Provider.
func WithProvider(p Provider) Option {
	return func(c *Client) {
		c.provider = p
	}
}

// WithSleeper replaces the backoff wait.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		if s != nil {
			c.sleep = s
		}
	}
}

// New creates a client for cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	observability.EnsureRegistered()

	c := &Client{
		cfg:    cfg.withDefaults(),
		sleep:  sleepContext,
		logger: log.Logger.With().Str("component", "generation").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.provider == nil {
		p, err := NewProvider(c.cfg)
		if err != nil {
			return nil, err
		}
		c.provider = p
	}

	return c, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Configured reports whether Generate will attempt provider calls.
func (c *Client) Configured() bool {
	return c.cfg.Configured()
}

// Generate sends msgs and returns the generated text. It fails with
// ErrUnconfigured before any call, or with an *ExhaustedError once every
// attempt has failed.
func (c *Client) Generate(ctx context.Context, msgs []prompt.Message) (*Result, error) {
	providerName := c.provider.Name()
	start := time.Now()

	if !c.cfg.Configured() {
		observability.RecordGeneration(providerName, "unconfigured", 0)
		return nil, ErrUnconfigured
	}

	ctx, span := tracing.StartSpan(
		ctx,
		"luna.generation",
		"generation.generate",
		attribute.String("provider", providerName),
		attribute.String("model", c.cfg.Model),
		attribute.Int("messages", len(msgs)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, c.logger)

	request := Request{
		Model:       c.cfg.Model,
		Messages:    msgs,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}

	var last *AttemptError
	attempts := 0
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		attempts = attempt

		text, err := c.attempt(ctx, request)
		if err == nil {
			observability.RecordGenerationAttempt(providerName, "success")
			observability.RecordGeneration(providerName, "success", time.Since(start))
			span.SetAttributes(attribute.Int("attempts", attempt))
			span.SetStatus(codes.Ok, "")
			logger.Debug().
				Int("attempt", attempt).
				Dur("duration", time.Since(start)).
				Msg("Generation succeeded")
			return &Result{Text: text, Attempts: attempt}, nil
		}

		last = &AttemptError{Attempt: attempt, Kind: Classify(err), Err: err}
		observability.RecordGenerationAttempt(providerName, last.Kind.String())
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", c.cfg.MaxAttempts).
			Str("fault", last.Kind.String()).
			Msg("Generation attempt failed")

		if attempt == c.cfg.MaxAttempts {
			break
		}
		if err := c.sleep(ctx, c.cfg.Backoff); err != nil {
			logger.Debug().Err(err).Msg("Backoff interrupted")
			break
		}
	}

	exhausted := &ExhaustedError{Attempts: attempts, Last: last}
	observability.RecordGeneration(providerName, "exhausted", time.Since(start))
	span.SetAttributes(attribute.Int("attempts", attempts))
	span.RecordError(exhausted)
	span.SetStatus(codes.Error, exhausted.Error())
	return nil, exhausted
}

func (c *Client) attempt(ctx context.Context, request Request) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.provider.Call(attemptCtx, request)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", ErrMalformedResponse)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
