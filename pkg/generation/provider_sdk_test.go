package generation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureServer answers every request with body and records the decoded
// request JSON.
func captureServer(t *testing.T, body string) (*httptest.Server, func() map[string]interface{}) {
	t.Helper()
	got := make(chan map[string]interface{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &decoded))
		got <- decoded

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, func() map[string]interface{} { return <-got }
}

const openAIReply = `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"sonar-pro",
	"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"ok"}}]}`

const anthropicReply = `{"id":"msg_1","type":"message","role":"assistant","model":"claude",
	"content":[{"type":"text","text":"ok"}],"stop_reason":"end_turn",
	"usage":{"input_tokens":1,"output_tokens":1}}`

func TestOpenAIProvider_SendsZeroTemperature(t *testing.T) {
	srv, request := captureServer(t, openAIReply)

	p := NewOpenAIProvider("pplx-test-key", srv.URL+"/")
	resp, err := p.Call(context.Background(), Request{
		Model:       "sonar-pro",
		Messages:    testMessages,
		Temperature: 0,
		MaxTokens:   500,
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)

	body := request()
	require.Contains(t, body, "temperature")
	assert.Equal(t, float64(0), body["temperature"])
	assert.Equal(t, float64(500), body["max_tokens"])
}

func TestAnthropicProvider_ZeroTemperatureAndDefaultMaxTokens(t *testing.T) {
	srv, request := captureServer(t, anthropicReply)

	p := NewAnthropicProvider("sk-ant-test-key", srv.URL)
	resp, err := p.Call(context.Background(), Request{
		Model:       "claude",
		Messages:    testMessages,
		Temperature: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)

	body := request()
	require.Contains(t, body, "temperature")
	assert.Equal(t, float64(0), body["temperature"])
	assert.Equal(t, float64(DefaultMaxTokens), body["max_tokens"])
	assert.NotEmpty(t, body["system"])
}

func TestClient_PassesConfiguredSamplingThrough(t *testing.T) {
	provider := &scriptedProvider{script: []func(context.Context) (*Response, error){reply("ok")}}
	cfg := DefaultConfig()
	cfg.APIKey = "pplx-test-key-0123456789"
	cfg.Temperature = 0
	cfg.MaxTokens = 0

	client, err := New(cfg, WithProvider(provider), WithSleeper((&recordingSleeper{}).Sleep))
	require.NoError(t, err)
	_, err = client.Generate(context.Background(), testMessages)
	require.NoError(t, err)

	require.Len(t, provider.requests, 1)
	assert.Equal(t, float64(0), provider.requests[0].Temperature)
	assert.Equal(t, DefaultMaxTokens, provider.requests[0].MaxTokens)
}
