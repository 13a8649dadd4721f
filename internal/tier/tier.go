// Package tier decides how much verification a generated block needs.
package tier

import (
	"errors"
	"fmt"

	"resume-pipeline/internal/evidence"
)

// Tier is the verification rigor of a block.
type Tier int

const (
	// Tier1 is a single self-checked generation.
	Tier1 Tier = 1
	// Tier2 adds the verification panel and bounded regeneration.
	Tier2 Tier = 2
)

// ErrUnknownTier is returned for values outside Tier1 and Tier2.
var ErrUnknownTier = errors.New("unknown tier")

// Valid reports whether t is Tier1 or Tier2.
func (t Tier) Valid() bool { return t == Tier1 || t == Tier2 }

func (t Tier) String() string {
	switch t {
	case Tier1:
		return "TIER_1"
	case Tier2:
		return "TIER_2"
	default:
		return "TIER_UNKNOWN"
	}
}

// Verified reports whether blocks of this tier go through the panel.
func (t Tier) Verified() bool { return t == Tier2 }

// Descriptor describes a question or section about to be generated.
type Descriptor struct {
	Name        string
	Destination evidence.Destination
}

// Classify maps CV_IMPACT blocks to Tier2 and INTERVIEW_ONLY blocks to Tier1.
func Classify(d Descriptor) (Tier, error) {
	switch d.Destination {
	case evidence.CVImpact:
		return Tier2, nil
	case evidence.InterviewOnly:
		return Tier1, nil
	default:
		return 0, fmt.Errorf("classify %q: %w", d.Name, evidence.ErrInvalidDestination)
	}
}

// Budgets holds the per-tier word budgets used by the tone checks.
type Budgets struct {
	Tier1Words int
	Tier2Words int
}

// DefaultBudgets returns the stock word budgets.
func DefaultBudgets() Budgets {
	return Budgets{Tier1Words: 350, Tier2Words: 900}
}

// WordBudget returns the word budget for t; zero means unbounded.
func (b Budgets) WordBudget(t Tier) int {
	switch t {
	case Tier1:
		return b.Tier1Words
	case Tier2:
		return b.Tier2Words
	default:
		return 0
	}
}
