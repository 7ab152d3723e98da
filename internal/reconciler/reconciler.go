package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/insight-engine/internal/domain"
	"github.com/cuongbtq/insight-engine/internal/metrics"
	"github.com/cuongbtq/insight-engine/internal/notify"
	"github.com/cuongbtq/insight-engine/internal/sources"
)

const (
	DefaultSynthesisTimeout = 3 * time.Minute
	DefaultRetention        = 24 * time.Hour
	sideEffectTimeout       = 30 * time.Second
)

// ErrStructuringFailed is returned after the job was finalized with the report failure message
var ErrStructuringFailed = errors.New("failed to structure final report")

// JobRepository is the subset of the job store the reconciler writes through
type JobRepository interface {
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	UpdateJob(ctx context.Context, id string, update domain.JobUpdate) error
}

// Structurer maps research text and numbered sources into the report schema
type Structurer interface {
	Structure(ctx context.Context, researchText string, sources []domain.Source) (*domain.Report, error)
}

// FileCleaner removes the raw upload after a job finishes
type FileCleaner interface {
	Delete(ctx context.Context, key string) error
	Sweep(ctx context.Context, olderThan time.Duration) (int, error)
}

type Config struct {
	SynthesisTimeout time.Duration
	Retention        time.Duration
}

// Reconciler is the terminal-state writer for a researched job
type Reconciler struct {
	store      JobRepository
	structurer Structurer
	notifier   notify.Notifier
	files      FileCleaner
	metrics    *metrics.PipelineMetrics
	cfg        Config
	logger     *slog.Logger
}

// New creates a Reconciler. notifier, files and m may be nil.
func New(
	store JobRepository,
	structurer Structurer,
	notifier notify.Notifier,
	files FileCleaner,
	m *metrics.PipelineMetrics,
	cfg Config,
	logger *slog.Logger,
) *Reconciler {
	if cfg.SynthesisTimeout <= 0 {
		cfg.SynthesisTimeout = DefaultSynthesisTimeout
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	return &Reconciler{
		store:      store,
		structurer: structurer,
		notifier:   notifier,
		files:      files,
		metrics:    m,
		cfg:        cfg,
		logger:     logger,
	}
}

// Reconcile moves the job through synthesizing into complete or error.
// A job already in a terminal status is rejected with domain.ErrJobFinalized, and a
// job another caller is already synthesizing with domain.ErrInvalidTransition.
func (r *Reconciler) Reconcile(ctx context.Context, jobID, researchText string, annotations []domain.Annotation) error {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		r.logger.Warn("Ignoring reconciliation of finalized job",
			slog.String("job_id", jobID),
			slog.String("status", job.Status.String()),
		)
		return fmt.Errorf("%w: job %s is %s", domain.ErrJobFinalized, jobID, job.Status)
	}

	if err := r.store.UpdateJob(ctx, jobID, domain.StatusUpdate(domain.StatusSynthesizing)); err != nil {
		return fmt.Errorf("mark synthesizing: %w", err)
	}
	r.logger.Info("Synthesizing final report",
		slog.String("job_id", jobID),
		slog.Int("sources", len(annotations)),
	)

	numbered := sources.FromAnnotations(annotations)
	report, structErr := r.structure(ctx, researchText, numbered)

	// the terminal write must land even if the caller went away during structuring
	writeCtx := context.WithoutCancel(ctx)

	if structErr != nil {
		r.logger.Error("Failed to structure final report",
			slog.String("job_id", jobID),
			slog.Any("error", structErr),
		)
		if err := r.store.UpdateJob(writeCtx, jobID, domain.FailUpdate(domain.ReportFailureMessage)); err != nil {
			return fmt.Errorf("mark error: %w", err)
		}
		r.metrics.RecordTerminal(domain.StatusError.String())
		r.afterTerminal(ctx, job, domain.StatusError, domain.ReportFailureMessage)
		return fmt.Errorf("%w: %v", ErrStructuringFailed, structErr)
	}

	report.Sources = numbered
	if err := r.store.UpdateJob(writeCtx, jobID, domain.CompleteUpdate(report)); err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}
	r.metrics.RecordTerminal(domain.StatusComplete.String())
	r.logger.Info("Final report synthesized and saved", slog.String("job_id", jobID))

	r.afterTerminal(ctx, job, domain.StatusComplete, "")
	return nil
}

func (r *Reconciler) structure(ctx context.Context, text string, numbered []domain.Source) (*domain.Report, error) {
	start := time.Now()
	stageCtx, cancel := context.WithTimeout(ctx, r.cfg.SynthesisTimeout)
	defer cancel()

	report, err := r.structurer.Structure(stageCtx, text, numbered)
	if err == nil && report == nil {
		err = errors.New("structuring returned no report")
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("synthesizing stage timed out after %s", r.cfg.SynthesisTimeout)
	}
	r.metrics.ObserveStage(domain.StatusSynthesizing.String(), time.Since(start), err)
	return report, err
}

// afterTerminal runs notification and file cleanup. Failures are logged only.
func (r *Reconciler) afterTerminal(ctx context.Context, job *domain.Job, status domain.Status, message string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	var g errgroup.Group

	if r.notifier != nil && job.Email != "" {
		g.Go(func() error {
			var err error
			if status == domain.StatusComplete {
				err = r.notifier.NotifyComplete(ctx, job.Email, job.ID)
			} else {
				err = r.notifier.NotifyError(ctx, job.Email, job.ID, message)
			}
			if err != nil {
				r.logger.Warn("Failed to send notification",
					slog.String("job_id", job.ID),
					slog.Any("error", err),
				)
			}
			return nil
		})
	}

	if r.files != nil {
		g.Go(func() error {
			if job.FilePath != "" {
				if err := r.files.Delete(ctx, job.FilePath); err != nil {
					r.logger.Warn("Failed to delete upload",
						slog.String("job_id", job.ID),
						slog.String("file", job.FilePath),
						slog.Any("error", err),
					)
				}
			}
			if _, err := r.files.Sweep(ctx, r.cfg.Retention); err != nil {
				r.logger.Warn("Failed to sweep stale uploads", slog.Any("error", err))
			}
			return nil
		})
	}

	_ = g.Wait()
}
