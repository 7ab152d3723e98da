package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/insight-engine/internal/domain"
	"github.com/jmoiron/sqlx"
)

const schema = `
	CREATE TABLE IF NOT EXISTS jobs (
		id                   UUID PRIMARY KEY,
		status               TEXT NOT NULL,
		file_path            TEXT NOT NULL DEFAULT '',
		mime_type            TEXT NOT NULL DEFAULT '',
		email                TEXT NOT NULL,
		marketing_opt_in     BOOLEAN NOT NULL DEFAULT FALSE,
		text_content         TEXT NOT NULL DEFAULT '',
		deep_research_prompt TEXT,
		final_report         JSONB,
		error_message        TEXT,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs (created_at DESC, id DESC);
`

// PostgresStore is the durable JobStore backed by a jobs table
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore instance
func NewPostgresStore(db *sqlx.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the jobs table when missing
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure jobs schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			id, status, file_path, mime_type, email, marketing_opt_in,
			text_content, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.ID,
		string(job.Status),
		job.FilePath,
		job.MimeType,
		job.Email,
		job.MarketingOptIn,
		job.TextContent,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	var row jobRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return row.toDomain()
}

func (s *PostgresStore) UpdateJob(ctx context.Context, id string, update domain.JobUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	sets := []string{}
	args := []interface{}{}
	argIdx := 1

	if update.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(*update.Status))
		argIdx++
	}

	if update.DeepResearchPrompt != nil {
		sets = append(sets, fmt.Sprintf("deep_research_prompt = $%d", argIdx))
		args = append(args, nullString(update.DeepResearchPrompt))
		argIdx++
	}

	if update.FinalReport != nil {
		report, err := json.Marshal(update.FinalReport)
		if err != nil {
			return fmt.Errorf("failed to marshal final report: %w", err)
		}
		sets = append(sets, fmt.Sprintf("final_report = $%d", argIdx))
		args = append(args, report)
		argIdx++
	}

	if update.Error != nil {
		sets = append(sets, fmt.Sprintf("error_message = $%d", argIdx))
		args = append(args, nullString(update.Error))
		argIdx++
	}

	sets = append(sets, "updated_at = NOW()")
	query := fmt.Sprintf("UPDATE jobs SET %s WHERE id = $%d", strings.Join(sets, ", "), argIdx)
	args = append(args, id)
	argIdx++

	// the guard makes the transition check and the write one statement
	if update.Status != nil {
		allowed := domain.AllowedFrom(*update.Status)
		placeholders := make([]string, len(allowed))
		for i, from := range allowed {
			placeholders[i] = fmt.Sprintf("$%d", argIdx)
			args = append(args, string(from))
			argIdx++
		}
		query += fmt.Sprintf(" AND status IN (%s)", strings.Join(placeholders, ", "))
	} else {
		query += " AND status NOT IN ('complete', 'error')"
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return s.explainSkippedUpdate(ctx, id, update)
	}

	if update.Status != nil {
		s.logger.Info("Job status updated",
			slog.String("job_id", id),
			slog.String("status", update.Status.String()),
		)
	}

	return nil
}

// explainSkippedUpdate tells a missing job (no-op) apart from a guarded one
func (s *PostgresStore) explainSkippedUpdate(ctx context.Context, id string, update domain.JobUpdate) error {
	var current string
	err := s.db.GetContext(ctx, &current, `SELECT status FROM jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("Job update matched no rows",
			slog.String("job_id", id),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read job status: %w", err)
	}

	if err := update.Permits(domain.Status(current)); err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	return fmt.Errorf("update job %s: %w: status changed concurrently", id, domain.ErrInvalidTransition)
}

func (s *PostgresStore) ListJobs(ctx context.Context) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC, id DESC`

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return rowsToDomain(rows)
}

func (s *PostgresStore) ListJobsSince(ctx context.Context, since time.Time) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE created_at > $1 ORDER BY created_at DESC, id DESC`

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("failed to list recent jobs: %w", err)
	}

	return rowsToDomain(rows)
}

func (s *PostgresStore) ListJobsPage(ctx context.Context, filter JobFilter) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Order by created_at DESC, id DESC for consistent pagination
	query += " ORDER BY created_at DESC, id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return rowsToDomain(rows)
}
