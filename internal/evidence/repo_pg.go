package evidence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PGStore implements Store using Postgres.
type PGStore struct {
	DB *sql.DB
}

const insertFactQuery = `
INSERT INTO evidence_facts (id, candidate_id, application_id, source_kind, source_ref, text, destination, theme, committed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (candidate_id, source_kind, source_ref, text) DO NOTHING
RETURNING seq`

const selectExistingFactQuery = `
SELECT seq, id, candidate_id, application_id, source_kind, source_ref, text, destination, theme, committed_at
FROM evidence_facts
WHERE candidate_id = $1 AND source_kind = $2 AND source_ref = $3 AND text = $4`

const listFactsQuery = `
SELECT seq, id, candidate_id, application_id, source_kind, source_ref, text, destination, theme, committed_at
FROM evidence_facts
WHERE candidate_id = $1
ORDER BY seq ASC`

// Append commits facts in a single transaction.
func (s *PGStore) Append(ctx context.Context, facts ...Fact) ([]Fact, error) {
	for _, f := range facts {
		if err := validate(f); err != nil {
			return nil, err
		}
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	out := make([]Fact, 0, len(facts))
	for _, f := range facts {
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		f.Text = strings.TrimSpace(f.Text)
		f.Theme = NormalizeTheme(f.Theme)
		f.CommittedAt = time.Now().UTC()

		var seq int64
		err := tx.QueryRowContext(ctx, insertFactQuery,
			f.ID,
			f.CandidateID,
			f.ApplicationID,
			string(f.Source.Kind),
			f.Source.Ref,
			f.Text,
			f.Destination.String(),
			f.Theme,
			f.CommittedAt,
		).Scan(&seq)
		switch {
		case err == nil:
			f.Seq = seq
			out = append(out, f)
		case errors.Is(err, sql.ErrNoRows):
			existing, err := scanFact(tx.QueryRowContext(ctx, selectExistingFactQuery, f.CandidateID, string(f.Source.Kind), f.Source.Ref, f.Text))
			if err != nil {
				return nil, fmt.Errorf("load existing fact: %w", err)
			}
			out = append(out, existing)
		default:
			return nil, fmt.Errorf("insert fact: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByCandidate returns facts in commit order.
func (s *PGStore) ListByCandidate(ctx context.Context, candidateID string) ([]Fact, error) {
	rows, err := s.DB.QueryContext(ctx, listFactsQuery, candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return facts, nil
}

// Themes returns distinct themes for the candidate.
func (s *PGStore) Themes(ctx context.Context, candidateID string) ([]string, error) {
	facts, err := s.ListByCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	return distinctThemes(facts), nil
}

// Snapshot returns the committed facts and their watermark.
func (s *PGStore) Snapshot(ctx context.Context, candidateID string) (Snapshot, error) {
	facts, err := s.ListByCandidate(ctx, candidateID)
	if err != nil {
		return Snapshot{}, err
	}
	return newSnapshot(facts), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFact(row scanner) (Fact, error) {
	var f Fact
	var applicationID sql.NullString
	var kind, destination string
	var theme sql.NullString
	if err := row.Scan(
		&f.Seq,
		&f.ID,
		&f.CandidateID,
		&applicationID,
		&kind,
		&f.Source.Ref,
		&f.Text,
		&destination,
		&theme,
		&f.CommittedAt,
	); err != nil {
		return Fact{}, err
	}
	f.Source.Kind = SourceKind(kind)
	if applicationID.Valid {
		f.ApplicationID = applicationID.String
	}
	if theme.Valid {
		f.Theme = theme.String
	}
	d, err := ParseDestination(destination)
	if err != nil {
		return Fact{}, err
	}
	f.Destination = d
	return f, nil
}

var _ Store = (*PGStore)(nil)
