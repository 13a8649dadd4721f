package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-pipeline/internal/llm"
)

func TestIsGPT5(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  bool
	}{
		{name: "gpt5", model: "gpt-5", want: true},
		{name: "gpt5 variant", model: "gpt-5-mini", want: true},
		{name: "gpt5 uppercase", model: " GPT-5o ", want: true},
		{name: "gpt4", model: "gpt-4o", want: false},
		{name: "empty", model: "", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isGPT5(tt.model))
		})
	}
}

func newServer(t *testing.T, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if seen != nil {
			mu.Lock()
			*seen = payload
			mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCompleteReturnsTextAndUsage(t *testing.T) {
	var seen map[string]any
	srv := newServer(t, http.StatusOK, `{"model":"gpt-4o-mini-2024","choices":[{"message":{"role":"assistant","content":" hello "}}],"usage":{"prompt_tokens":11,"completion_tokens":2,"total_tokens":13}}`, &seen)

	client, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), llm.Request{Model: "gpt-4o-mini", Prompt: "hi", Temperature: 0.3, MaxTokens: 50})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, 11, resp.InputTokens)
	assert.Equal(t, 2, resp.OutputTokens)
	assert.Equal(t, "gpt-4o-mini-2024", resp.Model)
	assert.InDelta(t, 0.3, seen["temperature"], 1e-6)
}

func TestCompleteOmitsTemperatureForGPT5(t *testing.T) {
	var seen map[string]any
	srv := newServer(t, http.StatusOK, `{"choices":[{"message":{"content":"ok"}}]}`, &seen)
	client, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), llm.Request{Model: "gpt-5-mini", Prompt: "hi", Temperature: 0.7, MaxTokens: 64})
	require.NoError(t, err)
	_, hasTemp := seen["temperature"]
	assert.False(t, hasTemp)
	assert.NotContains(t, seen, "max_tokens")
}

func TestCompleteClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, want: llm.ErrRateLimited},
		{name: "server", status: http.StatusBadGateway, want: llm.ErrServer},
		{name: "gateway timeout", status: http.StatusGatewayTimeout, want: llm.ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.status, `{"error":{"message":"nope","type":"x"}}`, nil)
			client, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
			require.NoError(t, err)

			_, err = client.Complete(context.Background(), llm.Request{Model: "gpt-4o-mini", Prompt: "hi"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, llm.IsTransient(err))
		})
	}
}

func TestCompleteBadRequestIsFatal(t *testing.T) {
	srv := newServer(t, http.StatusBadRequest, `{"error":{"message":"bad","type":"invalid_request_error"}}`, nil)
	client, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), llm.Request{Model: "gpt-4o-mini", Prompt: "hi"})
	require.Error(t, err)
	assert.False(t, llm.IsTransient(err))
}

func TestCompleteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.Complete(ctx, llm.Request{Model: "gpt-4o-mini", Prompt: "hi"})
	assert.ErrorIs(t, err, llm.ErrTimeout)
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}
