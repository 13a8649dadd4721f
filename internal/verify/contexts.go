package verify

import (
	"strconv"

	"resume-pipeline/internal/evidence"
)

type factContext struct {
	draft    string
	evidence []evidence.Fact
}

func (c factContext) Placeholders() map[string]string {
	return map[string]string{
		"draft":    c.draft,
		"evidence": evidence.Format(c.evidence),
	}
}

type alignmentContext struct {
	draft          string
	jobPosting     string
	companyProfile string
}

func (c alignmentContext) Placeholders() map[string]string {
	profile := c.companyProfile
	if profile == "" {
		profile = "(no company research available)"
	}
	return map[string]string{
		"draft":           c.draft,
		"job_posting":     c.jobPosting,
		"company_profile": profile,
	}
}

type toneContext struct {
	draft      string
	tier       string
	wordBudget int
}

func (c toneContext) Placeholders() map[string]string {
	budget := "unbounded"
	if c.wordBudget > 0 {
		budget = strconv.Itoa(c.wordBudget) + " words"
	}
	return map[string]string{
		"draft":       c.draft,
		"tier":        c.tier,
		"word_budget": budget,
	}
}
