package evidence

import "context"

// Store is the append-only evidence log keyed by candidate.
type Store interface {
	// Append commits facts in order and returns them with ID, Seq and CommittedAt set.
	// A fact equal to an already committed one (candidate, source, text) is returned as stored.
	Append(ctx context.Context, facts ...Fact) ([]Fact, error)
	ListByCandidate(ctx context.Context, candidateID string) ([]Fact, error)
	// Themes returns the distinct normalized themes for a candidate, sorted.
	Themes(ctx context.Context, candidateID string) ([]string, error)
	Snapshot(ctx context.Context, candidateID string) (Snapshot, error)
}
