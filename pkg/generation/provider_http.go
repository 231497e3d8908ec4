package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/harun/luna/pkg/prompt"
	"github.com/tidwall/gjson"
)

const (
	DefaultTextPath = "choices.0.message.content"

	maxResponseBytes = 1 << 20
	maxErrorBody     = 512
)

// HTTPProvider posts a chat-completions style JSON body to a raw endpoint
// and reads the generated text at a gjson path.
type HTTPProvider struct {
	endpoint   string
	apiKey     string
	textPath   string
	httpClient *http.Client
}

func NewHTTPProvider(endpoint, apiKey, textPath string) *HTTPProvider {
	if textPath == "" {
		textPath = DefaultTextPath
	}
	return &HTTPProvider{
		endpoint:   endpoint,
		apiKey:     apiKey,
		textPath:   textPath,
		httpClient: &http.Client{},
	}
}

func (p *HTTPProvider) Name() string {
	return ProviderHTTP
}

type httpRequestBody struct {
	Model       string           `json:"model"`
	Messages    []prompt.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
}

func (p *HTTPProvider) Call(ctx context.Context, request Request) (*Response, error) {
	payload, err := json.Marshal(httpRequestBody{
		Model:       request.Model,
		Messages:    request.Messages,
		Temperature: request.Temperature,
		MaxTokens:   request.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrMalformedResponse)
	}
	result := gjson.GetBytes(body, p.textPath)
	if !result.Exists() || result.Type != gjson.String {
		return nil, fmt.Errorf("%w: no text at %q", ErrMalformedResponse, p.textPath)
	}

	return &Response{Text: result.String()}, nil
}
