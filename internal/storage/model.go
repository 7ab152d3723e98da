package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/insight-engine/internal/domain"
)

const jobColumns = `
	id, status, file_path, mime_type, email, marketing_opt_in,
	text_content, deep_research_prompt, final_report, error_message,
	created_at, updated_at`

// jobRow is the database shape of a job
type jobRow struct {
	ID                 string         `db:"id"`
	Status             string         `db:"status"`
	FilePath           string         `db:"file_path"`
	MimeType           string         `db:"mime_type"`
	Email              string         `db:"email"`
	MarketingOptIn     bool           `db:"marketing_opt_in"`
	TextContent        string         `db:"text_content"`
	DeepResearchPrompt sql.NullString `db:"deep_research_prompt"`
	FinalReport        []byte         `db:"final_report"`
	ErrorMessage       sql.NullString `db:"error_message"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

func (r *jobRow) toDomain() (*domain.Job, error) {
	status, err := domain.ParseStatus(r.Status)
	if err != nil {
		return nil, err
	}

	job := &domain.Job{
		ID:             r.ID,
		Status:         status,
		FilePath:       r.FilePath,
		MimeType:       r.MimeType,
		Email:          r.Email,
		MarketingOptIn: r.MarketingOptIn,
		TextContent:    r.TextContent,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.DeepResearchPrompt.Valid {
		prompt := r.DeepResearchPrompt.String
		job.DeepResearchPrompt = &prompt
	}
	if r.ErrorMessage.Valid {
		msg := r.ErrorMessage.String
		job.Error = &msg
	}
	if len(r.FinalReport) > 0 {
		var report domain.Report
		if err := json.Unmarshal(r.FinalReport, &report); err != nil {
			return nil, fmt.Errorf("failed to decode final report: %w", err)
		}
		job.FinalReport = &report
	}

	return job, nil
}

func rowsToDomain(rows []jobRow) ([]*domain.Job, error) {
	jobs := make([]*domain.Job, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toDomain()
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", rows[i].ID, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
