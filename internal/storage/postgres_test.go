package storage

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cuongbtq/insight-engine/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rowColumns = []string{
	"id", "status", "file_path", "mime_type", "email", "marketing_opt_in",
	"text_content", "deep_research_prompt", "final_report", "error_message",
	"created_at", "updated_at",
}

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewPostgresStore(sqlx.NewDb(db, "postgres"), testLogger()), mock
}

func TestPostgresStore_CreateJob(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	job := newJob("job-1", time.Now())

	mock.ExpectExec("INSERT INTO jobs").
		WithArgs("job-1", "pending", "", "text/plain", "founder@example.com", false, "Acme Corp pitch", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.CreateJob(context.Background(), job))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetJob(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("complete job with report", func(t *testing.T) {
		store, mock := newMockPostgresStore(t)
		rows := sqlmock.NewRows(rowColumns).AddRow(
			"job-1", "complete", "", "text/plain", "founder@example.com", true,
			"Acme Corp pitch", "brief", []byte(`{"companyName":"Acme","sources":[{"id":1,"title":"A","url":"https://a.example"}]}`), nil,
			now, now,
		)
		mock.ExpectQuery(`SELECT .* FROM jobs WHERE id = \$1`).WithArgs("job-1").WillReturnRows(rows)

		job, err := store.GetJob(context.Background(), "job-1")
		require.NoError(t, err)

		assert.Equal(t, domain.StatusComplete, job.Status)
		assert.True(t, job.MarketingOptIn)
		require.NotNil(t, job.DeepResearchPrompt)
		assert.Equal(t, "brief", *job.DeepResearchPrompt)
		require.NotNil(t, job.FinalReport)
		assert.Equal(t, "Acme", job.FinalReport.CompanyName)
		assert.Len(t, job.FinalReport.Sources, 1)
		assert.Nil(t, job.Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		store, mock := newMockPostgresStore(t)
		mock.ExpectQuery(`SELECT .* FROM jobs WHERE id = \$1`).WithArgs("missing").WillReturnRows(sqlmock.NewRows(rowColumns))

		_, err := store.GetJob(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrJobNotFound)
	})
}

func TestPostgresStore_UpdateJob(t *testing.T) {
	tests := []struct {
		name   string
		update domain.JobUpdate
		query  string
		args   []driver.Value
	}{
		{
			name:   "status only",
			update: domain.StatusUpdate(domain.StatusParsing),
			query:  "UPDATE jobs SET status = $1, updated_at = NOW() WHERE id = $2 AND status IN ($3)",
			args:   []driver.Value{"parsing", "job-1", "pending"},
		},
		{
			name:   "prompt only",
			update: domain.PromptUpdate("brief"),
			query:  "UPDATE jobs SET deep_research_prompt = $1, updated_at = NOW() WHERE id = $2 AND status NOT IN ('complete', 'error')",
			args:   []driver.Value{"brief", "job-1"},
		},
		{
			name:   "failure",
			update: domain.FailUpdate("boom"),
			query:  "UPDATE jobs SET status = $1, error_message = $2, updated_at = NOW() WHERE id = $3 AND status IN ($4, $5, $6, $7, $8)",
			args:   []driver.Value{"error", "boom", "job-1", "pending", "parsing", "prompting", "researching", "synthesizing"},
		},
		{
			name:   "completion",
			update: domain.CompleteUpdate(&domain.Report{CompanyName: "Acme"}),
			query:  "UPDATE jobs SET status = $1, final_report = $2, updated_at = NOW() WHERE id = $3 AND status IN ($4, $5, $6, $7, $8)",
			args:   []driver.Value{"complete", sqlmock.AnyArg(), "job-1", "pending", "parsing", "prompting", "researching", "synthesizing"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockPostgresStore(t)
			mock.ExpectExec(regexp.QuoteMeta(tt.query)).
				WithArgs(tt.args...).
				WillReturnResult(sqlmock.NewResult(0, 1))

			require.NoError(t, store.UpdateJob(context.Background(), "job-1", tt.update))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_UpdateJobMissingIsNoop(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	mock.ExpectExec("UPDATE jobs SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM jobs WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	assert.NoError(t, store.UpdateJob(context.Background(), "missing", domain.StatusUpdate(domain.StatusParsing)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateJobGuarded(t *testing.T) {
	tests := []struct {
		name    string
		current string
		update  domain.JobUpdate
		wantErr error
	}{
		{
			name:    "error on top of a complete job",
			current: "complete",
			update:  domain.FailUpdate("late stage failure"),
			wantErr: domain.ErrJobFinalized,
		},
		{
			name:    "stage write after completion",
			current: "complete",
			update:  domain.StatusUpdate(domain.StatusResearching),
			wantErr: domain.ErrJobFinalized,
		},
		{
			name:    "prompt write after failure",
			current: "error",
			update:  domain.PromptUpdate("brief"),
			wantErr: domain.ErrJobFinalized,
		},
		{
			name:    "backwards move",
			current: "synthesizing",
			update:  domain.StatusUpdate(domain.StatusResearching),
			wantErr: domain.ErrInvalidTransition,
		},
		{
			name:    "allowed move lost a race",
			current: "prompting",
			update:  domain.StatusUpdate(domain.StatusResearching),
			wantErr: domain.ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockPostgresStore(t)
			mock.ExpectExec("UPDATE jobs SET .* WHERE id = .* AND status").
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM jobs WHERE id = $1")).
				WithArgs("job-1").
				WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(tt.current))

			err := store.UpdateJob(context.Background(), "job-1", tt.update)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_EmptyUpdateSkipsQuery(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	require.NoError(t, store.UpdateJob(context.Background(), "job-1", domain.JobUpdate{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListJobsSince(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	since := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(rowColumns).
		AddRow("job-2", "pending", "", "text/plain", "b@example.com", false, "text", nil, nil, nil, since.Add(20*time.Second), since.Add(20*time.Second)).
		AddRow("job-1", "error", "", "text/plain", "a@example.com", false, "text", nil, nil, "boom", since.Add(10*time.Second), since.Add(10*time.Second))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE created_at > $1 ORDER BY created_at DESC, id DESC")).
		WithArgs(since).
		WillReturnRows(rows)

	jobs, err := store.ListJobsSince(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-2", jobs[0].ID)
	require.NotNil(t, jobs[1].Error)
	assert.Equal(t, "boom", *jobs[1].Error)
}

func TestPostgresStore_ListJobsPage(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	cursorTime := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("AND status = $1 AND (created_at, id) < ($2, $3) ORDER BY created_at DESC, id DESC LIMIT $4")).
		WithArgs("complete", cursorTime, "job-9", 21).
		WillReturnRows(sqlmock.NewRows(rowColumns))

	jobs, err := store.ListJobsPage(context.Background(), JobFilter{
		Status:   domain.StatusComplete,
		PageSize: 20,
		Cursor:   &JobCursor{CreatedAt: cursorTime, JobID: "job-9"},
	})
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
