package generation

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/harun/luna/pkg/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	mu       sync.Mutex
	calls    int
	requests []Request
	script   []func(ctx context.Context) (*Response, error)
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Call(ctx context.Context, request Request) (*Response, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.requests = append(p.requests, request)
	p.mu.Unlock()

	if idx >= len(p.script) {
		return nil, errors.New("script exhausted")
	}
	return p.script[idx](ctx)
}

func (p *scriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func reply(text string) func(context.Context) (*Response, error) {
	return func(context.Context) (*Response, error) { return &Response{Text: text}, nil }
}

func fail(err error) func(context.Context) (*Response, error) {
	return func(context.Context) (*Response, error) { return nil, err }
}

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

func setupTestClient(t *testing.T, provider Provider) (*Client, *recordingSleeper) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.APIKey = "pplx-test-key-0123456789"
	sleeper := &recordingSleeper{}
	client, err := New(cfg, WithProvider(provider), WithSleeper(sleeper.Sleep))
	require.NoError(t, err)
	return client, sleeper
}

var testMessages = []prompt.Message{
	{Role: prompt.RoleSystem, Content: "persona"},
	{Role: prompt.RoleUser, Content: "hello"},
}

func TestClient_FirstAttemptSuccess(t *testing.T) {
	provider := &scriptedProvider{script: []func(context.Context) (*Response, error){reply("hi there")}}
	client, sleeper := setupTestClient(t, provider)

	res, err := client.Generate(context.Background(), testMessages)
	require.NoError(t, err)
	assert.Equal(t, "hi there", res.Text)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, sleeper.waits)

	require.Len(t, provider.requests, 1)
	req := provider.requests[0]
	assert.Equal(t, testMessages, req.Messages)
	assert.Equal(t, DefaultModel, req.Model)
	assert.Equal(t, DefaultTemperature, req.Temperature)
	assert.Equal(t, DefaultMaxTokens, req.MaxTokens)
}

func TestClient_RetriesTransportFaults(t *testing.T) {
	transport := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	provider := &scriptedProvider{script: []func(context.Context) (*Response, error){
		fail(transport),
		fail(transport),
		reply("ok"),
	}}
	client, sleeper := setupTestClient(t, provider)

	res, err := client.Generate(context.Background(), testMessages)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, provider.Calls())
	assert.Equal(t, []time.Duration{DefaultBackoff, DefaultBackoff}, sleeper.waits)
}

func TestClient_ExhaustedRetries(t *testing.T) {
	provider := &scriptedProvider{script: []func(context.Context) (*Response, error){
		fail(&StatusError{StatusCode: 500}),
		fail(ErrMalformedResponse),
		reply("   "),
	}}
	client, sleeper := setupTestClient(t, provider)

	res, err := client.Generate(context.Background(), testMessages)
	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhaustedRetries)
	assert.NotErrorIs(t, err, ErrUnconfigured)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	require.NotNil(t, exhausted.Last)
	assert.Equal(t, EndpointFault, exhausted.Last.Kind)
	assert.ErrorIs(t, err, ErrEmptyResponse)

	// No wait after the final attempt.
	assert.Len(t, sleeper.waits, 2)
}

func TestClient_Unconfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  func(*Config)
	}{
		{"empty key", func(c *Config) { c.APIKey = "" }},
		{"korean placeholder", func(c *Config) { c.APIKey = "여기에 API 키를 넣으세요" }},
		{"template placeholder", func(c *Config) { c.APIKey = "YOUR_API_KEY" }},
		{"http without endpoint", func(c *Config) {
			c.APIKey = "real-key-0123456789"
			c.Provider = ProviderHTTP
			c.Endpoint = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.cfg(&cfg)
			provider := &scriptedProvider{script: []func(context.Context) (*Response, error){reply("never")}}
			sleeper := &recordingSleeper{}

			client, err := New(cfg, WithProvider(provider), WithSleeper(sleeper.Sleep))
			require.NoError(t, err)
			assert.False(t, client.Configured())

			res, err := client.Generate(context.Background(), testMessages)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrUnconfigured)
			assert.NotErrorIs(t, err, ErrExhaustedRetries)
			assert.Equal(t, 0, provider.Calls())
			assert.Empty(t, sleeper.waits)
		})
	}
}

func TestClient_PerAttemptTimeout(t *testing.T) {
	provider := &scriptedProvider{script: []func(context.Context) (*Response, error){
		func(ctx context.Context) (*Response, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		reply("second time lucky"),
	}}

	cfg := DefaultConfig()
	cfg.APIKey = "pplx-test-key-0123456789"
	cfg.Timeout = 20 * time.Millisecond
	sleeper := &recordingSleeper{}
	client, err := New(cfg, WithProvider(provider), WithSleeper(sleeper.Sleep))
	require.NoError(t, err)

	res, err := client.Generate(context.Background(), testMessages)
	require.NoError(t, err)
	assert.Equal(t, "second time lucky", res.Text)
	assert.Equal(t, 2, res.Attempts)
	assert.Len(t, sleeper.waits, 1)
}

func TestClient_InterruptedBackoffStops(t *testing.T) {
	provider := &scriptedProvider{script: []func(context.Context) (*Response, error){
		fail(errors.New("boom")),
		reply("unreached"),
	}}

	cfg := DefaultConfig()
	cfg.APIKey = "pplx-test-key-0123456789"
	client, err := New(cfg, WithProvider(provider), WithSleeper(func(context.Context, time.Duration) error {
		return context.Canceled
	}))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), testMessages)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, exhausted.Attempts)
	assert.Equal(t, 1, provider.Calls())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FaultKind
	}{
		{"status", &StatusError{StatusCode: 429}, EndpointFault},
		{"wrapped status", &AttemptError{Err: &StatusError{StatusCode: 502}}, EndpointFault},
		{"malformed", ErrMalformedResponse, EndpointFault},
		{"empty", ErrEmptyResponse, EndpointFault},
		{"deadline", context.DeadlineExceeded, TransportFault},
		{"network", &net.OpError{Op: "read", Err: errors.New("reset")}, TransportFault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestIsPlaceholder(t *testing.T) {
	assert.True(t, IsPlaceholder(""))
	assert.True(t, IsPlaceholder("   "))
	assert.True(t, IsPlaceholder("<api-key>"))
	assert.True(t, IsPlaceholder("changeme"))
	assert.False(t, IsPlaceholder("pplx-abc123def456"))
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		want     string
		wantErr  bool
	}{
		{"", ProviderOpenAI, false},
		{"openai", ProviderOpenAI, false},
		{"anthropic", ProviderAnthropic, false},
		{"gemini", ProviderGemini, false},
		{"HTTP", ProviderHTTP, false},
		{"carrier-pigeon", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := NewProvider(Config{Provider: tt.provider, APIKey: "k", Endpoint: "http://localhost"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name())
		})
	}
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem([]prompt.Message{
		{Role: prompt.RoleSystem, Content: "be a cat"},
		{Role: prompt.RoleUser, Content: "q"},
		{Role: prompt.RoleAssistant, Content: "a"},
	})
	assert.Equal(t, "be a cat", system)
	assert.Len(t, rest, 2)
	assert.Equal(t, prompt.RoleUser, rest[0].Role)
}
