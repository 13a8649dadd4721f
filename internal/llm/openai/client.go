// Package openai implements llm.Provider on the OpenAI chat completions API or any compatible endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"resume-pipeline/internal/llm"
)

const systemPrompt = "You are a careful career-documents assistant. Follow the instructions exactly and never invent facts."

// Config configures the provider.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client implements llm.Provider.
type Client struct {
	client *goopenai.Client
}

// NewClient constructs a provider. BaseURL is optional and allows OpenAI-compatible backends.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	oc := goopenai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		oc.BaseURL = strings.TrimRight(base, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}
	return &Client{client: goopenai.NewClientWithConfig(oc)}, nil
}

// Complete sends one chat completion.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if strings.TrimSpace(req.Model) == "" {
		return llm.Response{}, fmt.Errorf("LLM_MODEL is required for OpenAI")
	}
	chat := goopenai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: req.Prompt},
		},
	}
	if isGPT5(req.Model) {
		// gpt-5 models reject temperature and max_tokens.
		chat.MaxCompletionTokens = req.MaxTokens
	} else {
		chat.Temperature = req.Temperature
		chat.MaxTokens = req.MaxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, chat)
	if err != nil {
		return llm.Response{}, classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return llm.Response{}, fmt.Errorf("openai response missing choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return llm.Response{}, fmt.Errorf("openai response empty content")
	}
	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return llm.Response{
		Text:         content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        model,
	}, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("openai request: %w: %w", llm.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("openai request: %w: %w", llm.ErrTimeout, err)
	}
	if status := statusCode(err); status != 0 {
		switch {
		case status == http.StatusTooManyRequests:
			return fmt.Errorf("openai http status %d: %w: %w", status, llm.ErrRateLimited, err)
		case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
			return fmt.Errorf("openai http status %d: %w: %w", status, llm.ErrTimeout, err)
		case status >= 500:
			return fmt.Errorf("openai http status %d: %w: %w", status, llm.ErrServer, err)
		default:
			return fmt.Errorf("openai http status %d: %w", status, err)
		}
	}
	return fmt.Errorf("openai request: %w", err)
}

func statusCode(err error) int {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func isGPT5(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gpt-5")
}

var _ llm.Provider = (*Client)(nil)
