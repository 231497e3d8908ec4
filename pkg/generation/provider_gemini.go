package generation

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// GeminiProvider talks to the Gemini API. The client is created on first use.
type GeminiProvider struct {
	apiKey string

	once    sync.Once
	client  *genai.Client
	initErr error
}

func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{apiKey: apiKey}
}

func (p *GeminiProvider) Name() string {
	return ProviderGemini
}

func (p *GeminiProvider) init(ctx context.Context) error {
	p.once.Do(func() {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  p.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			p.initErr = fmt.Errorf("failed to initialize gemini client: %w", err)
			return
		}
		p.client = client
	})
	return p.initErr
}

func (p *GeminiProvider) Call(ctx context.Context, request Request) (*Response, error) {
	if err := p.init(ctx); err != nil {
		return nil, err
	}

	system, dialogue := splitSystem(request.Messages)

	contents := make([]*genai.Content, 0, len(dialogue))
	for _, msg := range dialogue {
		role := genai.Role(genai.RoleUser)
		if msg.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(request.Temperature)),
	}
	if request.MaxTokens > 0 {
		config.MaxOutputTokens = int32(request.MaxTokens)
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	response, err := p.client.Models.GenerateContent(ctx, request.Model, contents, config)
	if err != nil {
		return nil, err
	}

	return &Response{Text: response.Text()}, nil
}
