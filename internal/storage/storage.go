package storage

import (
	"context"
	"time"

	"github.com/cuongbtq/insight-engine/internal/domain"
)

// JobStore is the keyed job record store shared by intake, worker and reconciler
type JobStore interface {
	// CreateJob inserts a new record. The caller supplies a unique id.
	CreateJob(ctx context.Context, job *domain.Job) error

	// GetJob returns domain.ErrJobNotFound when the id is unknown
	GetJob(ctx context.Context, id string) (*domain.Job, error)

	// UpdateJob merges fields into an existing record. Unknown ids are a no-op.
	// Writes to a terminal job fail with domain.ErrJobFinalized and backward status
	// moves with domain.ErrInvalidTransition; the check and the write are atomic.
	UpdateJob(ctx context.Context, id string, update domain.JobUpdate) error

	// ListJobs returns every job, newest first
	ListJobs(ctx context.Context) ([]*domain.Job, error)

	// ListJobsSince returns jobs created after since, newest first
	ListJobsSince(ctx context.Context, since time.Time) ([]*domain.Job, error)
}

// JobFilter narrows a paginated job listing
type JobFilter struct {
	Status   domain.Status
	PageSize int
	Cursor   *JobCursor
}

// JobCursor marks the last row of the previous page
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// JobPager lists jobs a page at a time, newest first.
// Implementations return up to PageSize+1 rows so callers can detect a next page.
type JobPager interface {
	ListJobsPage(ctx context.Context, filter JobFilter) ([]*domain.Job, error)
}
