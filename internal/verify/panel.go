package verify

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"resume-pipeline/internal/llm"
	"resume-pipeline/internal/prompts"
	"resume-pipeline/internal/shared/metrics"
	"resume-pipeline/internal/shared/telemetry"
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

// Panel runs the fact, alignment and tone audits.
type Panel struct {
	LLM     Generator
	Prompts Renderer
	Config  Config
}

// NewPanel constructs a Panel.
func NewPanel(gen Generator, renderer Renderer, cfg Config) *Panel {
	return &Panel{LLM: gen, Prompts: renderer, Config: cfg}
}

// Verify runs the three agents concurrently and joins their verdicts.
// An agent that cannot produce a verdict counts as FAIL; the only error is context cancellation.
func (p *Panel) Verify(ctx context.Context, s Subject) (Outcome, error) {
	out := Outcome{DraftID: s.Draft.ID, Results: make([]Result, 3)}
	out.Lint = Lint(s.Draft.Text, p.Config.Budgets.WordBudget(s.Tier), p.Config.Lint)

	var g errgroup.Group
	g.Go(func() error {
		out.Results[0] = p.factAudit(ctx, s)
		return nil
	})
	g.Go(func() error {
		out.Results[1] = p.alignmentAudit(ctx, s)
		return nil
	})
	g.Go(func() error {
		out.Results[2] = p.toneAudit(ctx, s, out.Lint)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	out.Passed = true
	for _, r := range out.Results {
		metrics.IncVerdict(r.Agent, string(r.Verdict))
		if !r.Passed() {
			out.Passed = false
		}
	}
	telemetry.Info("verify.outcome", map[string]any{
		"application_id": s.Draft.ApplicationID,
		"stage":          s.Draft.Stage,
		"draft_id":       s.Draft.ID,
		"passed":         out.Passed,
		"failing":        out.FailCount(),
	})
	return out, nil
}

func (p *Panel) call(ctx context.Context, s Subject, template string, pctx prompts.Context) (llm.GenerationRequest, error) {
	rendered, err := p.Prompts.Render(template, pctx)
	if err != nil {
		return llm.GenerationRequest{}, err
	}
	call := llm.Call{
		ApplicationID: s.Draft.ApplicationID,
		Stage:         s.Draft.Stage,
		Language:      s.Draft.Language,
		Tier:          s.Tier,
		Prompt:        rendered,
		Model:         p.Config.Model,
		Temperature:   0,
	}
	if template == prompts.VerifyFact {
		snap := s.Evidence
		call.Evidence = &snap
	}
	return p.LLM.Generate(ctx, call)
}

type factReply struct {
	Claims []Claim `json:"claims"`
}

func (p *Panel) factAudit(ctx context.Context, s Subject) Result {
	res := Result{Agent: AgentFact, Verdict: Pass}
	gen, err := p.call(ctx, s, prompts.VerifyFact, factContext{draft: s.Draft.Text, evidence: s.Evidence.Facts})
	if err != nil {
		return failed(res, err)
	}
	res.GenerationID = gen.ID
	var reply factReply
	if err := llm.DecodeJSON(gen.Text, &reply); err != nil {
		return failed(res, err)
	}
	res.Claims = reply.Claims

	known := make(map[string]struct{}, len(s.Evidence.Facts))
	for _, f := range s.Evidence.Facts {
		known[f.ID] = struct{}{}
	}
	for _, c := range reply.Claims {
		if !c.Supported {
			reason := "unsupported claim: " + c.Text
			if c.Reason != "" {
				reason += " (" + c.Reason + ")"
			}
			res.Reasons = append(res.Reasons, reason)
			continue
		}
		if c.EvidenceID != "" {
			if _, ok := known[c.EvidenceID]; !ok {
				res.Reasons = append(res.Reasons, fmt.Sprintf("claim cites unknown evidence %q: %s", c.EvidenceID, c.Text))
				continue
			}
		}
		res.FactCount++
	}
	for _, q := range UnsupportedFigures(s.Draft.Text, s.Evidence.Facts) {
		res.Reasons = append(res.Reasons, "figure not found in evidence: "+q)
	}
	if s.Tier == tier.Tier2 && p.Config.FactBandMax > 0 {
		if res.FactCount < p.Config.FactBandMin || res.FactCount > p.Config.FactBandMax {
			res.Reasons = append(res.Reasons, fmt.Sprintf("fact count %d outside band %d-%d", res.FactCount, p.Config.FactBandMin, p.Config.FactBandMax))
		}
	}
	if len(res.Reasons) > 0 {
		res.Verdict = Fail
	}
	return res
}

type alignmentReply struct {
	BridgePresent         *bool    `json:"bridge_present"`
	DifferentiatorVisible *bool    `json:"differentiator_visible"`
	Reasons               []string `json:"reasons"`
}

func (p *Panel) alignmentAudit(ctx context.Context, s Subject) Result {
	res := Result{Agent: AgentAlignment, Verdict: Pass}
	gen, err := p.call(ctx, s, prompts.VerifyAlignment, alignmentContext{
		draft:          s.Draft.Text,
		jobPosting:     s.JobPosting,
		companyProfile: s.CompanyProfile,
	})
	if err != nil {
		return failed(res, err)
	}
	res.GenerationID = gen.ID
	var reply alignmentReply
	if err := llm.DecodeJSON(gen.Text, &reply); err != nil {
		return failed(res, err)
	}
	if reply.BridgePresent == nil || reply.DifferentiatorVisible == nil {
		return failed(res, fmt.Errorf("%w: alignment reply lacks bridge_present or differentiator_visible", llm.ErrNoJSON))
	}
	if !*reply.BridgePresent {
		res.Reasons = append(res.Reasons, "no explicit bridge to the role's main requirement")
	}
	if !*reply.DifferentiatorVisible {
		res.Reasons = append(res.Reasons, "primary differentiator is not visible")
	}
	if len(res.Reasons) > 0 {
		res.Verdict = Fail
		res.Reasons = append(res.Reasons, nonEmpty(reply.Reasons)...)
	}
	return res
}

type toneReply struct {
	Verdict string   `json:"verdict"`
	Reasons []string `json:"reasons"`
}

func (p *Panel) toneAudit(ctx context.Context, s Subject, lint LintReport) Result {
	res := Result{Agent: AgentTone, Verdict: Pass}
	res.Reasons = append(res.Reasons, lint.Failures...)

	gen, err := p.call(ctx, s, prompts.VerifyTone, toneContext{
		draft:      s.Draft.Text,
		tier:       s.Tier.String(),
		wordBudget: lint.Budget,
	})
	if err != nil {
		return failed(res, err)
	}
	res.GenerationID = gen.ID
	var reply toneReply
	if err := llm.DecodeJSON(gen.Text, &reply); err != nil {
		return failed(res, err)
	}
	switch Verdict(strings.ToUpper(strings.TrimSpace(reply.Verdict))) {
	case Pass:
	case Fail:
		reasons := nonEmpty(reply.Reasons)
		if len(reasons) == 0 {
			reasons = []string{"tone rejected"}
		}
		res.Reasons = append(res.Reasons, reasons...)
		res.Verdict = Fail
	default:
		return failed(res, fmt.Errorf("unknown tone verdict %q", reply.Verdict))
	}
	if lint.Failed() {
		res.Verdict = Fail
	}
	return res
}

func failed(res Result, err error) Result {
	res.Verdict = Fail
	res.Reasons = append(res.Reasons, "agent error: "+err.Error())
	telemetry.Warn("verify.agent_error", map[string]any{
		"agent": res.Agent,
		"error": err,
	})
	return res
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
