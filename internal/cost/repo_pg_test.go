package cost

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-pipeline/internal/tier"
)

func TestPGStoreAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	now := time.Now().UTC()
	rec := Record{ID: "c1", ApplicationID: "app-1", Stage: "vpr", Tier: tier.Tier2, Language: "en", Model: "gpt-4o-mini", InputTokens: 10, OutputTokens: 5, CostUSD: 0.001, CreatedAt: now}
	mock.ExpectQuery("INSERT INTO cost_records").
		WithArgs("c1", "app-1", "vpr", 2, "en", "gpt-4o-mini", 10, 5, 0.001, false, now).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(11)))

	got, err := (&PGStore{DB: db}).Append(context.Background(), rec)
	require.NoError(t, err)
	assert.EqualValues(t, 11, got.Seq)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreListByApplication(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	now := time.Now().UTC()
	mock.ExpectQuery("FROM cost_records").WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"seq", "id", "application_id", "stage", "tier", "language", "model", "input_tokens", "output_tokens", "cost_usd", "failed", "created_at"}).
			AddRow(int64(1), "c1", "app-1", "parse", 1, "", "m", 1, 1, 0.5, false, now).
			AddRow(int64(2), "c2", "app-1", "vpr", 2, "he", "m", 0, 0, 0.0, true, now))

	recs, err := (&PGStore{DB: db}).ListByApplication(context.Background(), "app-1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, tier.Tier2, recs[1].Tier)
	assert.True(t, recs[1].Failed)
	assert.Equal(t, "he", recs[1].Language)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreMarkAlertedOnlyOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	b := Breach{ApplicationID: "app-1", TotalUSD: 3, CeilingUSD: 2.5}
	mock.ExpectExec("INSERT INTO cost_alerts").WithArgs("app-1", 3.0, 2.5).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO cost_alerts").WithArgs("app-1", 3.0, 2.5).WillReturnResult(sqlmock.NewResult(0, 0))

	store := &PGStore{DB: db}
	first, err := store.MarkAlerted(context.Background(), b)
	require.NoError(t, err)
	assert.True(t, first)
	second, err := store.MarkAlerted(context.Background(), b)
	require.NoError(t, err)
	assert.False(t, second)
	require.NoError(t, mock.ExpectationsWereMet())
}
