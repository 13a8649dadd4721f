package applications

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"resume-pipeline/internal/blocks"
	"resume-pipeline/internal/llm"
	"resume-pipeline/internal/research"
	"resume-pipeline/internal/tier"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const applicationColumns = `
id, candidate_id, status, current_stage, failed_stage, error_message, cv_language, job_language,
output_languages, input, history, questions, answers, research, answered_at, created_at, updated_at`

// Create inserts a new application.
func (r *PGRepo) Create(ctx context.Context, app Application) error {
	const query = `
INSERT INTO applications (` + applicationColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	cols, err := encodeApplication(app)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		app.ID,
		app.CandidateID,
		string(app.Status),
		string(app.CurrentStage),
		string(app.FailedStage),
		app.ErrorMessage,
		app.CVLanguage,
		app.JobLanguage,
		cols.languages,
		cols.input,
		cols.history,
		cols.questions,
		cols.answers,
		cols.research,
		nullTime(app.AnsweredAt),
		app.CreatedAt,
		app.UpdatedAt,
	)
	return err
}

// Get returns an application by id.
func (r *PGRepo) Get(ctx context.Context, id string) (Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1 LIMIT 1`
	var (
		app                               Application
		status, current, failed           string
		languages, input, history         []byte
		questions, answers, researchBytes []byte
		answeredAt                        sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&app.ID,
		&app.CandidateID,
		&status,
		&current,
		&failed,
		&app.ErrorMessage,
		&app.CVLanguage,
		&app.JobLanguage,
		&languages,
		&input,
		&history,
		&questions,
		&answers,
		&researchBytes,
		&answeredAt,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Application{}, ErrNotFound
		}
		return Application{}, err
	}
	app.Status = Status(status)
	app.CurrentStage = Stage(current)
	app.FailedStage = Stage(failed)
	if answeredAt.Valid {
		t := answeredAt.Time
		app.AnsweredAt = &t
	}
	for _, col := range []struct {
		raw []byte
		dst any
	}{
		{languages, &app.OutputLanguages},
		{input, &app.Input},
		{history, &app.History},
		{questions, &app.Questions},
		{answers, &app.Answers},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return Application{}, err
		}
	}
	if len(researchBytes) > 0 {
		var p research.Profile
		if err := json.Unmarshal(researchBytes, &p); err != nil {
			return Application{}, err
		}
		app.Research = &p
	}
	return app, nil
}

// Update writes the mutable application columns.
func (r *PGRepo) Update(ctx context.Context, app Application) error {
	const query = `
UPDATE applications
SET status = $2, current_stage = $3, failed_stage = $4, error_message = $5,
    output_languages = $6, history = $7, questions = $8, answers = $9, research = $10,
    answered_at = $11, updated_at = $12
WHERE id = $1`
	cols, err := encodeApplication(app)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, query,
		app.ID,
		string(app.Status),
		string(app.CurrentStage),
		string(app.FailedStage),
		app.ErrorMessage,
		cols.languages,
		cols.history,
		cols.questions,
		cols.answers,
		cols.research,
		nullTime(app.AnsweredAt),
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const artifactColumns = `id, application_id, type, language, status, tier, text, block_id, reasons, export_key, created_at`

// SaveArtifact inserts the artifact or returns the one already stored for (application, type, language).
func (r *PGRepo) SaveArtifact(ctx context.Context, a Artifact) (Artifact, bool, error) {
	const insert = `
INSERT INTO artifacts (` + artifactColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (application_id, type, language) DO NOTHING`
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	reasons, err := marshalJSONB(a.Reasons, "[]")
	if err != nil {
		return Artifact{}, false, err
	}
	res, err := r.DB.ExecContext(ctx, insert,
		a.ID, a.ApplicationID, string(a.Type), a.Language, string(a.Status), int(a.Tier),
		a.Text, a.BlockID, reasons, a.ExportKey, a.CreatedAt,
	)
	if err != nil {
		return Artifact{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Artifact{}, false, err
	}
	if n == 1 {
		return a, true, nil
	}

	query := `SELECT ` + artifactColumns + ` FROM artifacts WHERE application_id = $1 AND type = $2 AND language = $3`
	existing, err := scanArtifact(r.DB.QueryRowContext(ctx, query, a.ApplicationID, string(a.Type), a.Language))
	if err != nil {
		return Artifact{}, false, err
	}
	return existing, false, nil
}

// ListArtifacts returns artifacts in creation order.
func (r *PGRepo) ListArtifacts(ctx context.Context, applicationID string) ([]Artifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts WHERE application_id = $1 ORDER BY created_at ASC, type ASC, language ASC`
	rows, err := r.DB.QueryContext(ctx, query, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const generationColumns = `
id, application_id, parent_id, stage, language, template, template_version, prompt_hash, tier, model,
temperature, prompt, text, input_tokens, output_tokens, attempts, evidence_ids, evidence_watermark, created_at`

// SaveGeneration appends a generation request to the audit trail.
func (r *PGRepo) SaveGeneration(ctx context.Context, gen llm.GenerationRequest) error {
	const query = `
INSERT INTO generation_requests (` + generationColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	ids, err := marshalJSONB(gen.EvidenceIDs, "[]")
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		gen.ID,
		gen.ApplicationID,
		gen.ParentID,
		gen.Stage,
		gen.Language,
		gen.Template,
		gen.TemplateVersion,
		gen.PromptHash,
		int(gen.Tier),
		gen.Model,
		gen.Temperature,
		gen.Prompt,
		gen.Text,
		gen.InputTokens,
		gen.OutputTokens,
		gen.Attempts,
		ids,
		gen.EvidenceWatermark,
		gen.CreatedAt,
	)
	return err
}

// ListGenerations returns generation requests in creation order.
func (r *PGRepo) ListGenerations(ctx context.Context, applicationID string) ([]llm.GenerationRequest, error) {
	query := `SELECT ` + generationColumns + ` FROM generation_requests WHERE application_id = $1 ORDER BY created_at ASC`
	rows, err := r.DB.QueryContext(ctx, query, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []llm.GenerationRequest
	for rows.Next() {
		var (
			g    llm.GenerationRequest
			t    int
			temp float64
			ids  []byte
		)
		if err := rows.Scan(
			&g.ID, &g.ApplicationID, &g.ParentID, &g.Stage, &g.Language, &g.Template, &g.TemplateVersion,
			&g.PromptHash, &t, &g.Model, &temp, &g.Prompt, &g.Text, &g.InputTokens, &g.OutputTokens,
			&g.Attempts, &ids, &g.EvidenceWatermark, &g.CreatedAt,
		); err != nil {
			return nil, err
		}
		g.Tier = tier.Tier(t)
		g.Temperature = float32(temp)
		if len(ids) > 0 {
			if err := json.Unmarshal(ids, &g.EvidenceIDs); err != nil {
				return nil, err
			}
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

var _ Repo = (*PGRepo)(nil)

type scanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row scanner) (Artifact, error) {
	var (
		a           Artifact
		typ, status string
		t           int
		reasons     []byte
	)
	if err := row.Scan(&a.ID, &a.ApplicationID, &typ, &a.Language, &status, &t, &a.Text, &a.BlockID, &reasons, &a.ExportKey, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Artifact{}, ErrNotFound
		}
		return Artifact{}, err
	}
	a.Type = ArtifactType(typ)
	a.Status = blocks.Status(status)
	a.Tier = tier.Tier(t)
	if len(reasons) > 0 {
		if err := json.Unmarshal(reasons, &a.Reasons); err != nil {
			return Artifact{}, err
		}
	}
	return a, nil
}

type applicationJSON struct {
	languages, input, history, questions, answers []byte
	research                                      any
}

func encodeApplication(app Application) (applicationJSON, error) {
	var out applicationJSON
	var err error
	if out.languages, err = marshalJSONB(app.OutputLanguages, "[]"); err != nil {
		return out, err
	}
	if out.input, err = json.Marshal(app.Input); err != nil {
		return out, err
	}
	if out.history, err = marshalJSONB(app.History, "[]"); err != nil {
		return out, err
	}
	if out.questions, err = marshalJSONB(app.Questions, "[]"); err != nil {
		return out, err
	}
	if out.answers, err = marshalJSONB(app.Answers, "[]"); err != nil {
		return out, err
	}
	if app.Research != nil {
		raw, err := json.Marshal(app.Research)
		if err != nil {
			return out, err
		}
		out.research = raw
	}
	return out, nil
}

// marshalJSONB encodes value, substituting empty for nil slices so NOT NULL columns stay valid.
func marshalJSONB[T any](value []T, empty string) ([]byte, error) {
	if value == nil {
		return []byte(empty), nil
	}
	return json.Marshal(value)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
