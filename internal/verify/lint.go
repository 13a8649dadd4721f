package verify

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultBannedPhrases are stock "bot-speak" phrases.
var DefaultBannedPhrases = []string{
	"i am writing to express",
	"results-driven",
	"proven track record",
	"dynamic self-starter",
	"leverage synergies",
	"think outside the box",
	"in today's fast-paced",
	"passionate about",
	"delve into",
	"as an ai",
}

var formalTransitions = []string{
	"furthermore",
	"moreover",
	"additionally",
	"in addition",
	"consequently",
	"henceforth",
	"hence",
	"thus",
	"nevertheless",
	"notwithstanding",
	"accordingly",
	"in conclusion",
}

var approximations = []string{"about", "around", "roughly", "nearly", "almost", "close to", "~"}

var (
	contractionRe = regexp.MustCompile(`(?i)\b[a-z]+'(s|re|ve|ll|d|t|m)\b`)
	sentenceRe    = regexp.MustCompile(`[.!?]+(\s|$)`)
)

// LintConfig holds the deterministic tone thresholds.
type LintConfig struct {
	BannedPhrases []string
	// MaxFormalDensity is the allowed formal transitions per sentence.
	MaxFormalDensity float64
}

// DefaultLintConfig returns the stock lint thresholds.
func DefaultLintConfig() LintConfig {
	return LintConfig{BannedPhrases: DefaultBannedPhrases, MaxFormalDensity: 0.25}
}

// LintReport is the deterministic part of the tone audit.
type LintReport struct {
	Words                 int      `json:"words"`
	Budget                int      `json:"budget"`
	OverBudget            bool     `json:"overBudget"`
	Banned                []string `json:"banned,omitempty"`
	Sentences             int      `json:"sentences"`
	FormalTransitions     int      `json:"formalTransitions"`
	FormalDensity         float64  `json:"formalDensity"`
	ConversationalMarkers int      `json:"conversationalMarkers"`
	Failures              []string `json:"failures,omitempty"`
	Warnings              []string `json:"warnings,omitempty"`
}

// Failed reports whether the lint alone fails the block.
func (r LintReport) Failed() bool { return len(r.Failures) > 0 }

// Lint checks word budget, banned phrases, formal transition density and conversational markers.
// budget <= 0 disables the word budget.
func Lint(text string, budget int, cfg LintConfig) LintReport {
	lower := strings.ToLower(text)
	r := LintReport{Words: len(strings.Fields(text)), Budget: budget}

	if budget > 0 && r.Words > budget {
		r.OverBudget = true
		r.Failures = append(r.Failures, fmt.Sprintf("word count %d exceeds budget of %d", r.Words, budget))
	}

	banned := cfg.BannedPhrases
	if banned == nil {
		banned = DefaultBannedPhrases
	}
	for _, phrase := range banned {
		p := strings.ToLower(strings.TrimSpace(phrase))
		if p != "" && strings.Contains(lower, p) {
			r.Banned = append(r.Banned, p)
		}
	}
	if len(r.Banned) > 0 {
		r.Failures = append(r.Failures, "banned phrases: "+strings.Join(r.Banned, ", "))
	}

	r.Sentences = len(sentenceRe.FindAllStringIndex(text, -1))
	if r.Sentences == 0 && strings.TrimSpace(text) != "" {
		r.Sentences = 1
	}
	for _, tr := range formalTransitions {
		r.FormalTransitions += countWord(lower, tr)
	}
	if r.Sentences > 0 {
		r.FormalDensity = float64(r.FormalTransitions) / float64(r.Sentences)
	}
	if cfg.MaxFormalDensity > 0 && r.FormalTransitions >= 2 && r.FormalDensity > cfg.MaxFormalDensity {
		r.Failures = append(r.Failures, fmt.Sprintf("formal transition density %.2f exceeds %.2f", r.FormalDensity, cfg.MaxFormalDensity))
	}

	r.ConversationalMarkers = len(contractionRe.FindAllString(text, -1))
	for _, a := range approximations {
		r.ConversationalMarkers += countWord(lower, a)
	}
	if r.ConversationalMarkers == 0 && r.Words > 0 {
		r.Warnings = append(r.Warnings, "no conversational markers (contractions or approximations)")
	}
	return r
}

func countWord(lower, phrase string) int {
	if phrase == "~" {
		return strings.Count(lower, "~")
	}
	n := 0
	idx := 0
	for {
		i := strings.Index(lower[idx:], phrase)
		if i < 0 {
			return n
		}
		start := idx + i
		end := start + len(phrase)
		if isBoundary(lower, start-1) && isBoundary(lower, end) {
			n++
		}
		idx = end
	}
}

func isBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_')
}
