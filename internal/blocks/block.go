// Package blocks produces generated content blocks, verifying and regenerating Tier 2 blocks.
// Tier 1 blocks get a deterministic self-check only.
package blocks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"resume-pipeline/internal/evidence"
	"resume-pipeline/internal/llm"
	"resume-pipeline/internal/prompts"
	"resume-pipeline/internal/shared/metrics"
	"resume-pipeline/internal/shared/telemetry"
	"resume-pipeline/internal/tier"
	"resume-pipeline/internal/verify"
)

// Status is the terminal state of a block.
type Status string

const (
	StatusAccepted          Status = "ACCEPTED"
	StatusNeedsManualReview Status = "NEEDS_MANUAL_REVIEW"
)

// Spec describes one block to produce.
type Spec struct {
	ApplicationID string
	Stage         string
	Language      string
	// Name identifies the block, e.g. "vpr" or "cover_letter".
	Name        string
	Destination evidence.Destination
	Template    string
	Context     prompts.Context
	Evidence    evidence.Snapshot
	Temperature float32

	JobPosting     string
	CompanyProfile string
}

// Block is the accepted (or best available) draft plus its audit trail.
type Block struct {
	ID       string                  `json:"id"`
	Name     string                  `json:"name"`
	Tier     tier.Tier               `json:"tier"`
	Status   Status                  `json:"status"`
	Text     string                  `json:"text"`
	Requests []llm.GenerationRequest `json:"requests"`
	Outcomes []verify.Outcome        `json:"outcomes,omitempty"`
	Lint     verify.LintReport       `json:"lint"`
	// Reasons holds the unresolved FAIL reasons of a block sent to manual review.
	Reasons []string `json:"reasons,omitempty"`
}

// Verifier runs the verification panel; *verify.Panel satisfies it.
type Verifier interface {
	Verify(ctx context.Context, s verify.Subject) (verify.Outcome, error)
}

// Generator produces blocks.
type Generator struct {
	LLM              verify.Generator
	Prompts          verify.Renderer
	Panel            Verifier
	MaxRegenerations int
	Budgets          tier.Budgets
	Lint             verify.LintConfig
}

// Produce generates the block described by spec.
// Only a failure of the primary generation is an error; a block that never passes is returned for manual review.
func (g *Generator) Produce(ctx context.Context, spec Spec) (Block, error) {
	t, err := tier.Classify(tier.Descriptor{Name: spec.Name, Destination: spec.Destination})
	if err != nil {
		return Block{}, err
	}
	if t.Verified() && g.Panel == nil {
		return Block{}, errors.New("tier 2 block requires a verification panel")
	}

	rendered, err := g.Prompts.Render(spec.Template, spec.Context)
	if err != nil {
		return Block{}, fmt.Errorf("render %s: %w", spec.Template, err)
	}
	draft, err := g.generate(ctx, spec, t, rendered, "")
	if err != nil {
		return Block{}, fmt.Errorf("generate %s: %w", spec.Name, err)
	}

	block := Block{ID: draft.ID, Name: spec.Name, Tier: t, Requests: []llm.GenerationRequest{draft}}
	if !t.Verified() {
		block.Status = StatusAccepted
		block.Text = draft.Text
		block.Lint = verify.Lint(draft.Text, g.Budgets.WordBudget(t), g.Lint)
		if len(block.Lint.Failures) > 0 || len(block.Lint.Warnings) > 0 {
			telemetry.Warn("blocks.lint_findings", map[string]any{
				"application_id": spec.ApplicationID,
				"block":          spec.Name,
				"failures":       block.Lint.Failures,
				"warnings":       block.Lint.Warnings,
			})
		}
		// Unverified blocks still may not state figures the evidence lacks.
		for _, q := range verify.UnsupportedFigures(draft.Text, spec.Evidence.Facts) {
			block.Reasons = append(block.Reasons, "figure not found in evidence: "+q)
		}
		if len(block.Reasons) > 0 {
			block.Status = StatusNeedsManualReview
			metrics.IncManualReview()
			telemetry.Warn("blocks.manual_review", map[string]any{
				"application_id": spec.ApplicationID,
				"block":          spec.Name,
				"drafts":         1,
				"reasons":        block.Reasons,
			})
		}
		return block, nil
	}

	outcome, err := g.Panel.Verify(ctx, g.subject(spec, t, draft))
	if err != nil {
		return Block{}, err
	}
	block.Outcomes = append(block.Outcomes, outcome)

	for round := 0; !outcome.Passed && round < g.MaxRegenerations; round++ {
		metrics.IncRegeneration()
		fb, err := g.Prompts.Render(prompts.RegenerationFeedback, feedbackContext{
			originalPrompt: rendered.Text,
			previousDraft:  draft.Text,
			reasons:        outcome.Reasons(),
		})
		if err != nil {
			return Block{}, fmt.Errorf("render %s: %w", prompts.RegenerationFeedback, err)
		}
		next, err := g.generate(ctx, spec, t, fb, draft.ID)
		if err != nil {
			if ctx.Err() != nil {
				return Block{}, ctx.Err()
			}
			telemetry.Warn("blocks.regeneration_failed", map[string]any{
				"application_id": spec.ApplicationID,
				"block":          spec.Name,
				"parent_id":      draft.ID,
				"error":          err,
			})
			break
		}
		block.Requests = append(block.Requests, next)
		outcome, err = g.Panel.Verify(ctx, g.subject(spec, t, next))
		if err != nil {
			return Block{}, err
		}
		block.Outcomes = append(block.Outcomes, outcome)
		draft = next
	}

	best := bestDraft(block.Outcomes)
	chosen := block.Requests[best]
	block.ID = chosen.ID
	block.Text = chosen.Text
	block.Lint = block.Outcomes[best].Lint
	if block.Outcomes[best].Passed {
		block.Status = StatusAccepted
	} else {
		block.Status = StatusNeedsManualReview
		block.Reasons = block.Outcomes[best].Reasons()
		metrics.IncManualReview()
		telemetry.Warn("blocks.manual_review", map[string]any{
			"application_id": spec.ApplicationID,
			"block":          spec.Name,
			"drafts":         len(block.Requests),
			"reasons":        block.Reasons,
		})
	}
	return block, nil
}

func (g *Generator) generate(ctx context.Context, spec Spec, t tier.Tier, prompt prompts.Rendered, parentID string) (llm.GenerationRequest, error) {
	snap := spec.Evidence
	return g.LLM.Generate(ctx, llm.Call{
		ApplicationID: spec.ApplicationID,
		Stage:         spec.Stage,
		Language:      spec.Language,
		Tier:          t,
		Prompt:        prompt,
		Temperature:   spec.Temperature,
		ParentID:      parentID,
		Evidence:      &snap,
	})
}

func (g *Generator) subject(spec Spec, t tier.Tier, draft llm.GenerationRequest) verify.Subject {
	return verify.Subject{
		Draft:          draft,
		Tier:           t,
		Evidence:       spec.Evidence,
		JobPosting:     spec.JobPosting,
		CompanyProfile: spec.CompanyProfile,
	}
}

// bestDraft returns the index of the passing draft, or the one with the fewest failing agents.
// Later drafts win ties.
func bestDraft(outcomes []verify.Outcome) int {
	best := 0
	for i, o := range outcomes {
		if o.Passed {
			return i
		}
		if o.FailCount() <= outcomes[best].FailCount() {
			best = i
		}
	}
	return best
}

type feedbackContext struct {
	originalPrompt string
	previousDraft  string
	reasons        []string
}

func (c feedbackContext) Placeholders() map[string]string {
	lines := make([]string, 0, len(c.reasons))
	for _, r := range c.reasons {
		lines = append(lines, "- "+r)
	}
	return map[string]string{
		"original_prompt": c.originalPrompt,
		"previous_draft":  c.previousDraft,
		"feedback":        strings.Join(lines, "\n"),
	}
}
