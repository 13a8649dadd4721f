package evidence

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps facts in memory and is safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	seq         int64
	byCandidate map[string][]Fact
	byKey       map[string]Fact
	now         func() time.Time
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byCandidate: make(map[string][]Fact),
		byKey:       make(map[string]Fact),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Append commits facts.
func (s *MemoryStore) Append(ctx context.Context, facts ...Fact) ([]Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, f := range facts {
		if err := validate(f); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Fact, 0, len(facts))
	for _, f := range facts {
		key := dedupKey(f)
		if existing, ok := s.byKey[key]; ok {
			out = append(out, existing)
			continue
		}
		s.seq++
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		f.Text = strings.TrimSpace(f.Text)
		f.Theme = NormalizeTheme(f.Theme)
		f.Seq = s.seq
		f.CommittedAt = s.now()
		s.byKey[key] = f
		s.byCandidate[f.CandidateID] = append(s.byCandidate[f.CandidateID], f)
		out = append(out, f)
	}
	return out, nil
}

// ListByCandidate returns committed facts in commit order.
func (s *MemoryStore) ListByCandidate(ctx context.Context, candidateID string) ([]Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	facts := s.byCandidate[candidateID]
	out := make([]Fact, len(facts))
	copy(out, facts)
	return out, nil
}

// Themes returns distinct themes for the candidate.
func (s *MemoryStore) Themes(ctx context.Context, candidateID string) ([]string, error) {
	facts, err := s.ListByCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	return distinctThemes(facts), nil
}

// Snapshot returns the committed facts and the highest sequence among them.
func (s *MemoryStore) Snapshot(ctx context.Context, candidateID string) (Snapshot, error) {
	facts, err := s.ListByCandidate(ctx, candidateID)
	if err != nil {
		return Snapshot{}, err
	}
	return newSnapshot(facts), nil
}

func distinctThemes(facts []Fact) []string {
	seen := make(map[string]struct{}, len(facts))
	themes := make([]string, 0, len(facts))
	for _, f := range facts {
		theme := NormalizeTheme(f.Theme)
		if theme == "" {
			continue
		}
		if _, ok := seen[theme]; ok {
			continue
		}
		seen[theme] = struct{}{}
		themes = append(themes, theme)
	}
	sort.Strings(themes)
	return themes
}

func newSnapshot(facts []Fact) Snapshot {
	var watermark int64
	for _, f := range facts {
		if f.Seq > watermark {
			watermark = f.Seq
		}
	}
	return Snapshot{Facts: facts, Watermark: watermark}
}

var _ Store = (*MemoryStore)(nil)
