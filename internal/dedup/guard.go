package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/insight-engine/internal/domain"
)

const (
	// DefaultSameClientWindow applies to submissions with the same email and text
	DefaultSameClientWindow = 60 * time.Second
	// DefaultSameTextWindow applies to submissions with the same text from any email
	DefaultSameTextWindow = 30 * time.Second
)

// RecentJobLister is the slice of the job store the guard reads
type RecentJobLister interface {
	ListJobsSince(ctx context.Context, since time.Time) ([]*domain.Job, error)
}

// Config holds deduplication windows
type Config struct {
	SameClientWindow time.Duration
	SameTextWindow   time.Duration
}

// Guard suppresses repeat submissions that arrive within short windows
type Guard struct {
	store            RecentJobLister
	logger           *slog.Logger
	sameClientWindow time.Duration
	sameTextWindow   time.Duration
}

// NewGuard creates a Guard. Zero windows fall back to the defaults.
func NewGuard(store RecentJobLister, cfg Config, logger *slog.Logger) *Guard {
	if cfg.SameClientWindow <= 0 {
		cfg.SameClientWindow = DefaultSameClientWindow
	}
	if cfg.SameTextWindow <= 0 {
		cfg.SameTextWindow = DefaultSameTextWindow
	}
	return &Guard{
		store:            store,
		logger:           logger,
		sameClientWindow: cfg.SameClientWindow,
		sameTextWindow:   cfg.SameTextWindow,
	}
}

// Find returns an existing job the submission duplicates, or nil.
// Same email and text within the client window wins over same text within the text window.
// Empty text never matches.
func (g *Guard) Find(ctx context.Context, email, text string, now time.Time) (*domain.Job, error) {
	if text == "" {
		return nil, nil
	}

	widest := g.sameClientWindow
	if g.sameTextWindow > widest {
		widest = g.sameTextWindow
	}

	jobs, err := g.store.ListJobsSince(ctx, now.Add(-widest))
	if err != nil {
		return nil, fmt.Errorf("failed to list recent jobs: %w", err)
	}

	if job := firstWithin(jobs, now, g.sameClientWindow, func(j *domain.Job) bool {
		return j.Email == email && j.TextContent == text
	}); job != nil {
		g.logger.Info("Duplicate submission from same client",
			slog.String("job_id", job.ID),
			slog.Duration("window", g.sameClientWindow),
		)
		return job, nil
	}

	if job := firstWithin(jobs, now, g.sameTextWindow, func(j *domain.Job) bool {
		return j.TextContent == text
	}); job != nil {
		g.logger.Info("Duplicate submission with same text",
			slog.String("job_id", job.ID),
			slog.Duration("window", g.sameTextWindow),
		)
		return job, nil
	}

	return nil, nil
}

func firstWithin(jobs []*domain.Job, now time.Time, window time.Duration, match func(*domain.Job) bool) *domain.Job {
	cutoff := now.Add(-window)
	for _, job := range jobs {
		if job.CreatedAt.After(cutoff) && match(job) {
			return job
		}
	}
	return nil
}
