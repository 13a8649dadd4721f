package cost

import (
	"context"
	"database/sql"

	"resume-pipeline/internal/tier"
)

// PGStore implements Store using Postgres.
type PGStore struct {
	DB *sql.DB
}

// Append inserts a record and returns it with its sequence.
func (s *PGStore) Append(ctx context.Context, rec Record) (Record, error) {
	const query = `
INSERT INTO cost_records (id, application_id, stage, tier, language, model, input_tokens, output_tokens, cost_usd, failed, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING seq`
	err := s.DB.QueryRowContext(ctx, query,
		rec.ID,
		rec.ApplicationID,
		rec.Stage,
		int(rec.Tier),
		rec.Language,
		rec.Model,
		rec.InputTokens,
		rec.OutputTokens,
		rec.CostUSD,
		rec.Failed,
		rec.CreatedAt,
	).Scan(&rec.Seq)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ListByApplication returns records in append order.
func (s *PGStore) ListByApplication(ctx context.Context, applicationID string) ([]Record, error) {
	const query = `
SELECT seq, id, application_id, stage, tier, language, model, input_tokens, output_tokens, cost_usd, failed, created_at
FROM cost_records
WHERE application_id = $1
ORDER BY seq ASC`
	rows, err := s.DB.QueryContext(ctx, query, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var t int
		var language sql.NullString
		if err := rows.Scan(
			&rec.Seq,
			&rec.ID,
			&rec.ApplicationID,
			&rec.Stage,
			&t,
			&language,
			&rec.Model,
			&rec.InputTokens,
			&rec.OutputTokens,
			&rec.CostUSD,
			&rec.Failed,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Tier = tier.Tier(t)
		if language.Valid {
			rec.Language = language.String
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkAlerted inserts the alert row once per application.
func (s *PGStore) MarkAlerted(ctx context.Context, b Breach) (bool, error) {
	const query = `
INSERT INTO cost_alerts (application_id, total_usd, ceiling_usd)
VALUES ($1, $2, $3)
ON CONFLICT (application_id) DO NOTHING`
	res, err := s.DB.ExecContext(ctx, query, b.ApplicationID, b.TotalUSD, b.CeilingUSD)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

var _ Store = (*PGStore)(nil)
