package intake

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/insight-engine/internal/captcha"
	"github.com/cuongbtq/insight-engine/internal/domain"
	"github.com/cuongbtq/insight-engine/internal/metrics"
	"github.com/cuongbtq/insight-engine/internal/upload"
)

// Submission is a create-job request
type Submission struct {
	Text           string
	Email          string
	CaptchaToken   string
	RemoteIP       string
	MarketingOptIn bool
	FilePath       string // key of a reassembled upload, used when Text is empty
	MimeType       string // defaults to text/plain
}

// Result identifies the job serving a submission
type Result struct {
	JobID       string
	IsDuplicate bool
}

// JobCreator persists new jobs
type JobCreator interface {
	CreateJob(ctx context.Context, job *domain.Job) error
}

// DuplicateFinder returns a recent job that should serve the submission, or nil
type DuplicateFinder interface {
	Find(ctx context.Context, email, text string, now time.Time) (*domain.Job, error)
}

// Service validates submissions and creates pending jobs
type Service struct {
	store    JobCreator
	guard    DuplicateFinder
	verifier captcha.Verifier
	metrics  *metrics.PipelineMetrics
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	// serializes dedup check and create within this process
	mu sync.Mutex
}

func NewService(
	store JobCreator,
	guard DuplicateFinder,
	verifier captcha.Verifier,
	m *metrics.PipelineMetrics,
	logger *slog.Logger,
) *Service {
	if verifier == nil {
		verifier = captcha.NoopVerifier{}
	}
	return &Service{
		store:    store,
		guard:    guard,
		verifier: verifier,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Submit creates a pending job, or returns the recent duplicate that already covers it
func (s *Service) Submit(ctx context.Context, sub Submission) (Result, error) {
	if strings.TrimSpace(sub.Email) == "" {
		return Result{}, fmt.Errorf("%w: email", domain.ErrMissingField)
	}
	if strings.TrimSpace(sub.Text) == "" {
		if strings.TrimSpace(sub.FilePath) == "" {
			return Result{}, fmt.Errorf("%w: text", domain.ErrMissingField)
		}
		// only keys produced by the chunk assembler may be read and later deleted
		if !upload.IsCombinedKey(sub.FilePath) {
			return Result{}, fmt.Errorf("%w: filePath %q is not an upload reference", domain.ErrInvalidPayload, sub.FilePath)
		}
	}

	if err := s.verifier.Verify(ctx, sub.CaptchaToken, sub.RemoteIP); err != nil {
		s.logger.Warn("CAPTCHA verification failed",
			slog.String("remote_ip", sub.RemoteIP),
			slog.Any("error", err),
		)
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	existing, err := s.guard.Find(ctx, sub.Email, sub.Text, now)
	if err != nil {
		return Result{}, fmt.Errorf("check duplicates: %w", err)
	}
	if existing != nil {
		s.logger.Info("Duplicate submission detected, using existing job",
			slog.String("job_id", existing.ID),
		)
		s.metrics.RecordSubmission(true)
		return Result{JobID: existing.ID, IsDuplicate: true}, nil
	}

	mimeType := sub.MimeType
	if mimeType == "" {
		mimeType = domain.MimeTypeText
	}
	job := &domain.Job{
		ID:             s.newID(),
		Status:         domain.StatusPending,
		FilePath:       sub.FilePath,
		MimeType:       mimeType,
		Email:          sub.Email,
		MarketingOptIn: sub.MarketingOptIn,
		TextContent:    sub.Text,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if sub.Text != "" {
		job.FilePath = ""
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return Result{}, fmt.Errorf("create job: %w", err)
	}
	s.metrics.RecordSubmission(false)

	s.logger.Info("Job created successfully",
		slog.String("job_id", job.ID),
		slog.Bool("from_upload", job.FilePath != ""),
	)
	return Result{JobID: job.ID}, nil
}
