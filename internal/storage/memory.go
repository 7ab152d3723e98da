package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/insight-engine/internal/domain"
)

// MemoryStore is the process-local JobStore used when the durable backend is unreachable.
// Jobs vanish on restart and are invisible to other processes.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*domain.Job),
		now:  time.Now,
	}
}

func (s *MemoryStore) CreateJob(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("failed to create job: job %s already exists", job.ID)
	}

	stored := job.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	s.jobs[job.ID] = stored
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryStore) UpdateJob(_ context.Context, id string, update domain.JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	if err := update.Permits(job.Status); err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	update.Apply(job, s.now())
	return nil
}

func (s *MemoryStore) ListJobs(_ context.Context) ([]*domain.Job, error) {
	return s.collect(func(*domain.Job) bool { return true }), nil
}

func (s *MemoryStore) ListJobsSince(_ context.Context, since time.Time) ([]*domain.Job, error) {
	return s.collect(func(job *domain.Job) bool {
		return job.CreatedAt.After(since)
	}), nil
}

func (s *MemoryStore) ListJobsPage(_ context.Context, filter JobFilter) ([]*domain.Job, error) {
	jobs := s.collect(func(job *domain.Job) bool {
		if filter.Status != "" && job.Status != filter.Status {
			return false
		}
		if filter.Cursor != nil && !before(job, filter.Cursor) {
			return false
		}
		return true
	})

	if filter.PageSize >= 0 && len(jobs) > filter.PageSize+1 {
		jobs = jobs[:filter.PageSize+1]
	}
	return jobs, nil
}

// collect returns matching clones ordered by created_at DESC, id DESC
func (s *MemoryStore) collect(match func(*domain.Job) bool) []*domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if match(job) {
			jobs = append(jobs, job.Clone())
		}
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

func before(job *domain.Job, cursor *JobCursor) bool {
	if job.CreatedAt.Equal(cursor.CreatedAt) {
		return job.ID < cursor.JobID
	}
	return job.CreatedAt.Before(cursor.CreatedAt)
}
