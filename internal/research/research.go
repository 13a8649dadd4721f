// Package research builds company profiles from the company website or, failing that, from the job posting.
package research

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrInsufficient means the source had too little usable content. It is a terminal signal, not a failure.
var ErrInsufficient = errors.New("research: insufficient company information")

// Query identifies the company to research.
type Query struct {
	ApplicationID string
	CompanyName   string
	CompanyURL    string
	JobPosting    string
}

// Profile is the structured result of company research.
type Profile struct {
	CompanyName string    `json:"companyName"`
	URL         string    `json:"url,omitempty"`
	Title       string    `json:"title,omitempty"`
	Summary     string    `json:"summary"`
	Highlights  []string  `json:"highlights,omitempty"`
	Source      string    `json:"source"`
	FetchedAt   time.Time `json:"fetchedAt"`
}

// Empty reports whether the profile carries no content.
func (p Profile) Empty() bool {
	return strings.TrimSpace(p.Summary) == "" && len(p.Highlights) == 0
}

// Text renders the profile for prompt contexts.
func (p Profile) Text() string {
	if p.Empty() {
		return ""
	}
	var b strings.Builder
	if p.CompanyName != "" {
		b.WriteString(p.CompanyName)
		b.WriteString(": ")
	}
	b.WriteString(strings.TrimSpace(p.Summary))
	for _, h := range p.Highlights {
		b.WriteString("\n- ")
		b.WriteString(strings.TrimSpace(h))
	}
	return b.String()
}

// Researcher produces a company profile.
type Researcher interface {
	Research(ctx context.Context, q Query) (Profile, error)
}

// Fallback asks Secondary only when Primary reports ErrInsufficient.
type Fallback struct {
	Primary   Researcher
	Secondary Researcher
}

// Research implements Researcher.
func (f Fallback) Research(ctx context.Context, q Query) (Profile, error) {
	p, err := f.Primary.Research(ctx, q)
	if err == nil || !errors.Is(err, ErrInsufficient) || f.Secondary == nil {
		return p, err
	}
	return f.Secondary.Research(ctx, q)
}
