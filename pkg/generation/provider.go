package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/luna/pkg/prompt"
)

// Provider performs a single call to a generation backend.
type Provider interface {
	Call(ctx context.Context, request Request) (*Response, error)
	Name() string
}

// Request is one attempt's payload. Parameters are passed through as given.
type Request struct {
	Model       string
	Messages    []prompt.Message
	Temperature float64
	MaxTokens   int
}

// Response carries the generated text of a successful call.
type Response struct {
	Text string
}

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderHTTP      = "http"
)

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cfg.Endpoint), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg.APIKey, cfg.Endpoint), nil
	case ProviderGemini:
		return NewGeminiProvider(cfg.APIKey), nil
	case ProviderHTTP:
		return NewHTTPProvider(cfg.Endpoint, cfg.APIKey, cfg.TextPath), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// splitSystem separates leading system entries from the dialogue for
// backends that take the preamble out of band.
func splitSystem(msgs []prompt.Message) (string, []prompt.Message) {
	var system []string
	rest := make([]prompt.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == prompt.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
