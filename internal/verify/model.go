// Package verify runs the three-agent verification panel over generated blocks.
package verify

import (
	"resume-pipeline/internal/evidence"
	"resume-pipeline/internal/llm"
	"resume-pipeline/internal/tier"
)

// Agent names.
const (
	AgentFact      = "fact_audit"
	AgentAlignment = "alignment_audit"
	AgentTone      = "tone_audit"
)

// Verdict is a single agent's decision.
type Verdict string

const (
	Pass Verdict = "PASS"
	Fail Verdict = "FAIL"
)

// Claim is one factual claim reported by the fact audit.
type Claim struct {
	Text       string `json:"text"`
	Supported  bool   `json:"supported"`
	EvidenceID string `json:"evidence_id"`
	Reason     string `json:"reason,omitempty"`
}

// Result is one agent's verdict.
type Result struct {
	Agent        string   `json:"agent"`
	Verdict      Verdict  `json:"verdict"`
	Reasons      []string `json:"reasons,omitempty"`
	Claims       []Claim  `json:"claims,omitempty"`
	// FactCount is the number of supported claims; the fact band applies to it.
	FactCount    int      `json:"factCount,omitempty"`
	GenerationID string   `json:"generationId,omitempty"`
}

// Passed reports whether the agent passed.
func (r Result) Passed() bool { return r.Verdict == Pass }

// Outcome is the joined verdict of the panel. Results are ordered fact, alignment, tone.
type Outcome struct {
	DraftID string     `json:"draftId"`
	Results []Result   `json:"results"`
	Lint    LintReport `json:"lint"`
	Passed  bool       `json:"passed"`
}

// Reasons collects every FAIL reason, prefixed with the agent name.
func (o Outcome) Reasons() []string {
	var out []string
	for _, r := range o.Results {
		if r.Passed() {
			continue
		}
		if len(r.Reasons) == 0 {
			out = append(out, r.Agent+": failed")
			continue
		}
		for _, reason := range r.Reasons {
			out = append(out, r.Agent+": "+reason)
		}
	}
	return out
}

// FailCount returns the number of failing agents.
func (o Outcome) FailCount() int {
	n := 0
	for _, r := range o.Results {
		if !r.Passed() {
			n++
		}
	}
	return n
}

// Subject is a draft under review plus what it is checked against.
type Subject struct {
	Draft          llm.GenerationRequest
	Tier           tier.Tier
	Evidence       evidence.Snapshot
	JobPosting     string
	CompanyProfile string
}

// Config holds the panel thresholds.
type Config struct {
	FactBandMin int
	FactBandMax int
	Budgets     tier.Budgets
	Lint        LintConfig
	// Model overrides the client's default model for audit calls.
	Model string
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		FactBandMin: 5,
		FactBandMax: 8,
		Budgets:     tier.DefaultBudgets(),
		Lint:        DefaultLintConfig(),
	}
}
