package applications

import (
	"fmt"
	"strconv"
	"strings"

	"resume-pipeline/internal/evidence"
)

const noCompanyProfile = "(no company research available)"

func profileOrPlaceholder(profile string) string {
	if strings.TrimSpace(profile) == "" {
		return noCompanyProfile
	}
	return profile
}

func words(n int) string {
	if n <= 0 {
		return "unbounded"
	}
	return strconv.Itoa(n)
}

type parseContext struct {
	resumeText string
}

func (c parseContext) Placeholders() map[string]string {
	return map[string]string{"resume_text": c.resumeText}
}

type gapContext struct {
	jobPosting     string
	companyProfile string
	evidence       []evidence.Fact
	themesToSkip   []string
	maxQuestions   int
}

func (c gapContext) Placeholders() map[string]string {
	skip := "(none)"
	if len(c.themesToSkip) > 0 {
		skip = "- " + strings.Join(c.themesToSkip, "\n- ")
	}
	return map[string]string{
		"job_posting":     c.jobPosting,
		"company_profile": profileOrPlaceholder(c.companyProfile),
		"evidence":        evidence.Format(c.evidence),
		"themes_to_skip":  skip,
		"max_questions":   strconv.Itoa(c.maxQuestions),
	}
}

// artifactContext feeds the four artifact templates; each template declares the subset it uses.
type artifactContext struct {
	language         string
	jobPosting       string
	companyProfile   string
	resumeText       string
	evidence         []evidence.Fact
	valueProposition string
	wordBudget       int
	factMin, factMax int
}

func (c artifactContext) Placeholders() map[string]string {
	resume := c.resumeText
	if strings.TrimSpace(resume) == "" {
		resume = "(structured résumé only; see evidence)"
	}
	vp := c.valueProposition
	if strings.TrimSpace(vp) == "" {
		vp = "(not available)"
	}
	return map[string]string{
		"language":          c.language,
		"job_posting":       c.jobPosting,
		"company_profile":   profileOrPlaceholder(c.companyProfile),
		"resume_text":       resume,
		"evidence":          evidence.Format(c.evidence),
		"value_proposition": vp,
		"word_budget":       words(c.wordBudget),
		"fact_band":         fmt.Sprintf("%d and %d", c.factMin, c.factMax),
	}
}
