// Package llmtest provides a scripted provider for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"resume-pipeline/internal/cost"
	"resume-pipeline/internal/llm"
)

// Step is one scripted provider reply.
type Step struct {
	Text         string
	Err          error
	InputTokens  int
	OutputTokens int
	// Delay blocks until it elapses or the request context ends.
	Delay time.Duration
}

// HandlerFunc answers a request dynamically.
type HandlerFunc func(req llm.Request) (llm.Response, error)

// Provider replies per request tag (the template name). Scripted steps are consumed in order;
// once a tag's steps run out its handler is used, or else the last step repeats.
type Provider struct {
	mu       sync.Mutex
	steps    map[string][]Step
	last     map[string]Step
	handlers map[string]HandlerFunc
	calls    []llm.Request
	// Hook runs at the start of every call, before any scripted delay.
	Hook func(req llm.Request)
}

// New constructs an empty Provider.
func New() *Provider {
	return &Provider{
		steps:    make(map[string][]Step),
		last:     make(map[string]Step),
		handlers: make(map[string]HandlerFunc),
	}
}

// On queues steps for tag.
func (p *Provider) On(tag string, steps ...Step) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps[tag] = append(p.steps[tag], steps...)
	return p
}

// Reply queues plain text replies for tag.
func (p *Provider) Reply(tag string, texts ...string) *Provider {
	steps := make([]Step, 0, len(texts))
	for _, t := range texts {
		steps = append(steps, Step{Text: t})
	}
	return p.On(tag, steps...)
}

// Handle registers a dynamic handler for tag.
func (p *Provider) Handle(tag string, fn HandlerFunc) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[tag] = fn
	return p
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if p.Hook != nil {
		p.Hook(req)
	}
	p.mu.Lock()
	p.calls = append(p.calls, req)
	var step Step
	var handler HandlerFunc
	if queued := p.steps[req.Tag]; len(queued) > 0 {
		step = queued[0]
		p.steps[req.Tag] = queued[1:]
		p.last[req.Tag] = step
	} else if h, ok := p.handlers[req.Tag]; ok {
		handler = h
	} else if prev, ok := p.last[req.Tag]; ok {
		step = prev
	} else {
		p.mu.Unlock()
		return llm.Response{}, fmt.Errorf("llmtest: no script for tag %q", req.Tag)
	}
	p.mu.Unlock()

	if handler != nil {
		resp, err := handler(req)
		if err != nil {
			return llm.Response{}, err
		}
		return withUsage(req, resp), nil
	}

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return llm.Response{}, ctx.Err()
		}
	}
	if step.Err != nil {
		return llm.Response{}, step.Err
	}
	return withUsage(req, llm.Response{Text: step.Text, InputTokens: step.InputTokens, OutputTokens: step.OutputTokens}), nil
}

func withUsage(req llm.Request, resp llm.Response) llm.Response {
	if resp.InputTokens == 0 {
		resp.InputTokens = len(req.Prompt)/4 + 1
	}
	if resp.OutputTokens == 0 {
		resp.OutputTokens = len(resp.Text)/4 + 1
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	return resp
}

// Calls returns every request seen so far.
func (p *Provider) Calls() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.Request, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns the number of requests seen for tag, or all requests when tag is empty.
func (p *Provider) CallCount(tag string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tag == "" {
		return len(p.calls)
	}
	n := 0
	for _, c := range p.calls {
		if c.Tag == tag {
			n++
		}
	}
	return n
}

// NewClient wires provider into an llm.Client with a memory ledger and a zero-delay policy.
func NewClient(provider llm.Provider) (*llm.Client, *cost.Ledger) {
	ledger := cost.NewLedger(cost.NewMemoryStore(), cost.DefaultRates(), 0, nil)
	client := &llm.Client{
		Provider: provider,
		Policy:   llm.BackoffPolicy{MaxAttempts: 3},
		Ledger:   ledger,
		Model:    "gpt-4o-mini",
	}
	return client, ledger
}
