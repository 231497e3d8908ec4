package generation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harun/luna/pkg/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProvider_Success(t *testing.T) {
	var got httpRequestBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Noted, Chulsoo"}}]}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "secret-key", "")
	resp, err := p.Call(context.Background(), Request{
		Model:       "sonar-pro",
		Messages:    testMessages,
		Temperature: 0.7,
		MaxTokens:   500,
	})
	require.NoError(t, err)
	assert.Equal(t, "Noted, Chulsoo", resp.Text)

	assert.Equal(t, "sonar-pro", got.Model)
	assert.Equal(t, testMessages, got.Messages)
	assert.Equal(t, 0.7, got.Temperature)
	assert.Equal(t, 500, got.MaxTokens)
}

func TestHTTPProvider_CustomTextPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"output":{"text":"custom"}}`))
	}))
	defer srv.Close()

	resp, err := NewHTTPProvider(srv.URL, "k", "output.text").Call(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "custom", resp.Text)
}

func TestHTTPProvider_Faults(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, `{"error":"down"}`, nil},
		{"rate limited", http.StatusTooManyRequests, ``, nil},
		{"not json", http.StatusOK, `<html>oops</html>`, ErrMalformedResponse},
		{"missing path", http.StatusOK, `{"choices":[]}`, ErrMalformedResponse},
		{"non-string text", http.StatusOK, `{"choices":[{"message":{"content":42}}]}`, ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPProvider(srv.URL, "k", "").Call(context.Background(), Request{})
			require.Error(t, err)
			assert.Equal(t, EndpointFault, Classify(err))

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.StatusCode)
		})
	}
}

func TestHTTPProvider_TransportFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewHTTPProvider(url, "k", "").Call(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, TransportFault, Classify(err))
}

// The whole stack against a flaky endpoint: two 503s, then a reply.
func TestClient_HTTPEndToEndRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Provider = ProviderHTTP
	cfg.Endpoint = srv.URL
	cfg.APIKey = "pplx-test-key-0123456789"
	cfg.Backoff = time.Millisecond

	client, err := New(cfg)
	require.NoError(t, err)

	res, err := client.Generate(context.Background(), []prompt.Message{{Role: prompt.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int32(3), hits.Load())
}
