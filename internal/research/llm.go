package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"resume-pipeline/internal/llm"
	"resume-pipeline/internal/prompts"
	"resume-pipeline/internal/tier"
)

// Generator issues LLM calls; *llm.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, call llm.Call) (llm.GenerationRequest, error)
}

// Renderer renders prompt templates; *prompts.Registry satisfies it.
type Renderer interface {
	Render(name string, ctx prompts.Context) (prompts.Rendered, error)
}

// Stage is the stage name research calls are recorded under.
const Stage = "research"

// LLMResearcher derives a company profile from the job posting and the model's own knowledge.
type LLMResearcher struct {
	LLM     Generator
	Prompts Renderer
}

type researchContext struct {
	q Query
}

func (c researchContext) Placeholders() map[string]string {
	u := c.q.CompanyURL
	if strings.TrimSpace(u) == "" {
		u = "(unknown)"
	}
	return map[string]string{
		"company_name": c.q.CompanyName,
		"company_url":  u,
		"job_posting":  c.q.JobPosting,
	}
}

type researchReply struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
}

// Research implements Researcher.
func (r LLMResearcher) Research(ctx context.Context, q Query) (Profile, error) {
	rendered, err := r.Prompts.Render(prompts.CompanyResearch, researchContext{q: q})
	if err != nil {
		return Profile{}, err
	}
	gen, err := r.LLM.Generate(ctx, llm.Call{
		ApplicationID: q.ApplicationID,
		Stage:         Stage,
		Tier:          tier.Tier1,
		Prompt:        rendered,
		Temperature:   0.2,
	})
	if err != nil {
		return Profile{}, err
	}
	var reply researchReply
	if err := llm.DecodeJSON(gen.Text, &reply); err != nil {
		return Profile{}, fmt.Errorf("%w: %w", ErrInsufficient, err)
	}
	p := Profile{
		CompanyName: q.CompanyName,
		URL:         q.CompanyURL,
		Summary:     strings.TrimSpace(reply.Summary),
		Source:      "llm",
		FetchedAt:   time.Now().UTC(),
	}
	for _, h := range reply.Highlights {
		if h = strings.TrimSpace(h); h != "" {
			p.Highlights = append(p.Highlights, h)
		}
	}
	if p.Empty() {
		return Profile{}, ErrInsufficient
	}
	return p, nil
}
