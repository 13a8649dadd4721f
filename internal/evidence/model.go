package evidence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Destination tags where a fact is allowed to surface.
type Destination int

const (
	// CVImpact facts are quantifiable and résumé-bound.
	CVImpact Destination = iota + 1
	// InterviewOnly facts are soft-skill or process material.
	InterviewOnly
)

// ErrInvalidDestination is returned for tags outside the closed set.
var ErrInvalidDestination = errors.New("invalid destination tag")

const (
	destinationCVImpact      = "CV_IMPACT"
	destinationInterviewOnly = "INTERVIEW_ONLY"
)

// ParseDestination accepts only CV_IMPACT and INTERVIEW_ONLY (case-insensitive).
func ParseDestination(raw string) (Destination, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case destinationCVImpact:
		return CVImpact, nil
	case destinationInterviewOnly:
		return InterviewOnly, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidDestination, raw)
	}
}

// Valid reports whether d is one of the known destinations.
func (d Destination) Valid() bool {
	return d == CVImpact || d == InterviewOnly
}

func (d Destination) String() string {
	switch d {
	case CVImpact:
		return destinationCVImpact
	case InterviewOnly:
		return destinationInterviewOnly
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Destination) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, ErrInvalidDestination
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Destination) UnmarshalText(b []byte) error {
	parsed, err := ParseDestination(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// SourceKind identifies where a fact came from.
type SourceKind string

const (
	SourceResume    SourceKind = "resume"
	SourceGapAnswer SourceKind = "gap_answer"
)

// Source attributes a fact to a résumé field or a gap answer id.
type Source struct {
	Kind SourceKind `json:"kind"`
	Ref  string     `json:"ref"`
}

// Fact is an atomic, attributable claim about a candidate. Facts are immutable once committed.
type Fact struct {
	ID            string      `json:"id"`
	CandidateID   string      `json:"candidateId"`
	ApplicationID string      `json:"applicationId,omitempty"`
	Source        Source      `json:"source"`
	Text          string      `json:"text"`
	Destination   Destination `json:"destination"`
	Theme         string      `json:"theme"`
	Seq           int64       `json:"seq"`
	CommittedAt   time.Time   `json:"committedAt"`
}

// Snapshot is the set of committed facts for a candidate at a point in the log.
type Snapshot struct {
	Facts     []Fact
	Watermark int64
}

// IDs returns the ids of every fact in the snapshot.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.Facts))
	for _, f := range s.Facts {
		ids = append(ids, f.ID)
	}
	return ids
}

// Filter returns the facts with the given destination.
func (s Snapshot) Filter(d Destination) []Fact {
	out := make([]Fact, 0, len(s.Facts))
	for _, f := range s.Facts {
		if f.Destination == d {
			out = append(out, f)
		}
	}
	return out
}

// NormalizeTheme lowercases and collapses whitespace so themes compare across applications.
func NormalizeTheme(theme string) string {
	return strings.Join(strings.Fields(strings.ToLower(theme)), " ")
}

func validate(f Fact) error {
	if strings.TrimSpace(f.CandidateID) == "" {
		return errors.New("fact candidate id is required")
	}
	if strings.TrimSpace(f.Text) == "" {
		return errors.New("fact text is required")
	}
	if !f.Destination.Valid() {
		return ErrInvalidDestination
	}
	switch f.Source.Kind {
	case SourceResume, SourceGapAnswer:
	default:
		return fmt.Errorf("unknown fact source kind %q", f.Source.Kind)
	}
	return nil
}

func dedupKey(f Fact) string {
	return f.CandidateID + "\x00" + string(f.Source.Kind) + "\x00" + f.Source.Ref + "\x00" + strings.TrimSpace(f.Text)
}

// Format renders facts one per line for prompt contexts, with ids so audits can cite them.
func Format(facts []Fact) string {
	if len(facts) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, f := range facts {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- [%s] %s (%s", f.ID, f.Text, f.Destination)
		if f.Theme != "" {
			fmt.Fprintf(&b, "; %s", f.Theme)
		}
		b.WriteString(")")
	}
	return b.String()
}
