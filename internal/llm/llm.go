// Package llm issues model calls through a single retrying client that accounts for every attempt.
package llm

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Request is one completion request to a provider.
type Request struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float32
	// Tag carries the template name so providers and test doubles can route on it.
	Tag string
}

// Response is the provider's answer with token usage.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Model        string
}

// Provider is the only component that talks to the model backend.
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (Response, error)

// Complete implements Provider.
func (f ProviderFunc) Complete(ctx context.Context, req Request) (Response, error) { return f(ctx, req) }

var (
	// ErrTimeout marks a call that hit its deadline.
	ErrTimeout = errors.New("llm timeout")
	// ErrRateLimited marks a 429 or quota response.
	ErrRateLimited = errors.New("llm rate limited")
	// ErrServer marks a 5xx or transport failure.
	ErrServer = errors.New("llm server error")
	// ErrRetriesExhausted wraps the last transient error once the backoff policy gives up.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrNotConfigured is returned by the placeholder provider.
	ErrNotConfigured = errors.New("llm provider not configured")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServer) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout")
}

// Outcome labels an attempt for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrServer):
		return "server_error"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

// PlaceholderProvider fails every call; used when no provider is configured.
type PlaceholderProvider struct{}

// Complete returns ErrNotConfigured.
func (PlaceholderProvider) Complete(ctx context.Context, req Request) (Response, error) {
	_ = ctx
	_ = req
	return Response{}, ErrNotConfigured
}
