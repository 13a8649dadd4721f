package applications

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-pipeline/internal/blocks"
	"resume-pipeline/internal/llm"
	"resume-pipeline/internal/tier"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func TestPGRepoCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	app := Application{
		ID:              "app-1",
		CandidateID:     "cand-1",
		Status:          StatusCreated,
		CVLanguage:      "en",
		JobLanguage:     "he",
		OutputLanguages: []string{"en", "he"},
		Input:           Input{CompanyName: "Acme", JobPosting: "Payments engineer"},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	mock.ExpectExec("INSERT INTO applications").
		WithArgs(
			"app-1", "cand-1", "CREATED", "", "", "", "en", "he",
			[]byte(`["en","he"]`),
			sqlmock.AnyArg(), // input
			[]byte("[]"),     // history
			[]byte("[]"),     // questions
			[]byte("[]"),     // answers
			nil,              // research
			nil,              // answered_at
			now, now,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Create(context.Background(), app))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepoGet(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cols := []string{"id", "candidate_id", "status", "current_stage", "failed_stage", "error_message", "cv_language", "job_language",
		"output_languages", "input", "history", "questions", "answers", "research", "answered_at", "created_at", "updated_at"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM applications WHERE id = $1")).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"app-1", "cand-1", "AWAITING_GAP_ANSWERS", "gap_answers", "", "", "en", "en",
			[]byte(`["en"]`),
			[]byte(`{"companyName":"Acme","jobPosting":"Payments engineer"}`),
			[]byte(`[{"stage":"parse","state":"COMPLETED","startedAt":"2026-03-01T09:00:00Z"}]`),
			[]byte(`[{"id":"q1","text":"How many?","theme":"scale","destination":"CV_IMPACT","required":true}]`),
			[]byte(`[]`),
			[]byte(`{"companyName":"Acme","summary":"Payments","source":"web","fetchedAt":"2026-03-01T09:00:00Z"}`),
			nil,
			now, now,
		))

	app, err := repo.Get(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingGapAnswers, app.Status)
	assert.Equal(t, StageGapAnswers, app.CurrentStage)
	assert.True(t, app.Completed(StageParse))
	require.Len(t, app.Questions, 1)
	assert.True(t, app.Questions[0].Required)
	require.NotNil(t, app.Research)
	assert.Equal(t, "web", app.Research.Source)
	assert.Nil(t, app.AnsweredAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepoGetNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM applications").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPGRepoUpdateMissingRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE applications").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), Application{ID: "missing", Status: StatusParsing})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPGRepoSaveArtifactReturnsExistingOnConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO artifacts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM artifacts WHERE application_id = $1 AND type = $2 AND language = $3")).
		WithArgs("app-1", "vpr", "en").
		WillReturnRows(sqlmock.NewRows([]string{"id", "application_id", "type", "language", "status", "tier", "text", "block_id", "reasons", "export_key", "created_at"}).
			AddRow("art-1", "app-1", "vpr", "en", "NEEDS_MANUAL_REVIEW", 2, "draft", "blk-1", []byte(`["fact_audit: figure not found in evidence: $2M"]`), "k", created))

	got, created2, err := repo.SaveArtifact(context.Background(), Artifact{ApplicationID: "app-1", Type: ArtifactVPR, Language: "en", Status: blocks.StatusAccepted, Tier: tier.Tier2, Text: "new"})
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, "art-1", got.ID)
	assert.Equal(t, blocks.StatusNeedsManualReview, got.Status)
	assert.Equal(t, tier.Tier2, got.Tier)
	assert.Equal(t, []string{"fact_audit: figure not found in evidence: $2M"}, got.Reasons)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepoSaveGeneration(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	gen := llm.GenerationRequest{
		ID:                "gen-1",
		ApplicationID:     "app-1",
		ParentID:          "gen-0",
		Stage:             "vpr",
		Language:          "he",
		Template:          "regeneration_feedback",
		TemplateVersion:   1,
		PromptHash:        "abc",
		Tier:              tier.Tier2,
		Model:             "gpt-4o-mini",
		Temperature:       0.4,
		Prompt:            "p",
		Text:              "t",
		InputTokens:       10,
		OutputTokens:      20,
		Attempts:          2,
		EvidenceIDs:       []string{"f1", "f2"},
		EvidenceWatermark: 9,
		CreatedAt:         now,
	}
	mock.ExpectExec("INSERT INTO generation_requests").
		WithArgs("gen-1", "app-1", "gen-0", "vpr", "he", "regeneration_feedback", 1, "abc", 2, "gpt-4o-mini",
			float32(0.4), "p", "t", 10, 20, 2, []byte(`["f1","f2"]`), int64(9), now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.SaveGeneration(context.Background(), gen))
	require.NoError(t, mock.ExpectationsWereMet())
}
