package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
	"unicode/utf8"

	"github.com/cuongbtq/insight-engine/internal/domain"
	"github.com/cuongbtq/insight-engine/internal/filestore"
	"github.com/cuongbtq/insight-engine/internal/sources"
)

// Process runs the analysis pipeline for one pending job.
//
// It returns an error only when the pipeline did not start: the job is missing
// (domain.ErrJobNotFound), already left pending (domain.ErrJobAlreadyClaimed), or the
// store could not be read (a domain.RetryableError). Stage failures are recorded on the
// job as status=error and Process returns nil.
func (w *Worker) Process(ctx context.Context, jobID string) (err error) {
	job, err := w.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return err
		}
		return domain.NewRetryableError(fmt.Errorf("load job %s: %w", jobID, err))
	}
	if job.Status != domain.StatusPending {
		return fmt.Errorf("%w: job %s is %s", domain.ErrJobAlreadyClaimed, jobID, job.Status)
	}

	w.logger.Info("Processing job",
		slog.String("job_id", jobID),
		slog.String("worker_id", w.workerID),
	)

	start := time.Now()
	outcome := "failed"
	w.metrics.StartPipeline()
	w.metrics.ObserveQueueLag(start.Sub(job.CreatedAt))
	defer func() {
		w.metrics.FinishPipeline(outcome, time.Since(start))
	}()

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Pipeline panicked",
				slog.String("job_id", jobID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			w.markFailed(ctx, job, fmt.Sprintf("internal error: %v", r))
			err = nil
		}
	}()

	if runErr := w.run(ctx, job); runErr != nil {
		if superseded(runErr) {
			// the completion side finalized or advanced the job first
			w.logger.Info("Job advanced outside this pipeline, stopping",
				slog.String("job_id", jobID),
				slog.Any("reason", runErr),
			)
			outcome = "superseded"
			return nil
		}
		w.logger.Error("Analysis failed",
			slog.String("job_id", jobID),
			slog.Any("error", runErr),
		)
		w.markFailed(ctx, job, runErr.Error())
		return nil
	}

	outcome = "completed"
	return nil
}

func (w *Worker) run(ctx context.Context, job *domain.Job) error {
	var text string
	err := w.stage(ctx, job.ID, domain.StatusParsing, 0, func(ctx context.Context) error {
		var err error
		text, err = w.loadText(ctx, job)
		return err
	})
	if err != nil {
		return err
	}

	var prompt string
	err = w.stage(ctx, job.ID, domain.StatusPrompting, w.timeouts.Prompting, func(ctx context.Context) error {
		var err error
		prompt, err = w.provider.GeneratePrompt(ctx, truncateRunes(text, domain.MaxPromptInputChars))
		if err != nil {
			return err
		}
		return w.store.UpdateJob(ctx, job.ID, domain.PromptUpdate(prompt))
	})
	if err != nil {
		return err
	}
	w.logger.Info("Deep research prompt generated", slog.String("job_id", job.ID))

	var research string
	err = w.stage(ctx, job.ID, domain.StatusResearching, w.timeouts.Researching, func(ctx context.Context) error {
		var err error
		research, err = w.provider.Research(ctx, prompt)
		return err
	})
	if err != nil {
		return err
	}

	annotations := sources.ToAnnotations(sources.Extract(research))
	w.logger.Info("Deep research finished, handing off for synthesis",
		slog.String("job_id", job.ID),
		slog.Int("sources", len(annotations)),
	)

	if err := w.completer.Complete(ctx, job.ID, research, annotations); err != nil {
		return fmt.Errorf("complete research: %w", err)
	}
	return nil
}

// stage writes status, then runs fn under the stage deadline (none when timeout is 0)
func (w *Worker) stage(
	ctx context.Context,
	jobID string,
	status domain.Status,
	timeout time.Duration,
	fn func(context.Context) error,
) error {
	if err := w.store.UpdateJob(ctx, jobID, domain.StatusUpdate(status)); err != nil {
		return fmt.Errorf("update status to %s: %w", status, err)
	}

	stageCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	start := time.Now()
	err := fn(stageCtx)
	if err != nil && timeout > 0 && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%s stage timed out after %s", status, timeout)
	}
	w.metrics.ObserveStage(status.String(), time.Since(start), err)
	return err
}

// loadText prefers stored text; only text/plain files are read otherwise
func (w *Worker) loadText(ctx context.Context, job *domain.Job) (string, error) {
	if job.TextContent != "" {
		w.logger.Info("Text content loaded from job record",
			slog.String("job_id", job.ID),
			slog.Int("length", len(job.TextContent)),
		)
		return job.TextContent, nil
	}

	if job.MimeType != domain.MimeTypeText {
		return "", fmt.Errorf("%w: document parsing is not available for %q files", domain.ErrUnsupportedInput, job.MimeType)
	}
	if w.files == nil {
		return "", fmt.Errorf("no file store configured to read %s", job.FilePath)
	}

	text, err := filestore.ReadText(ctx, w.files, job.FilePath)
	if err != nil {
		return "", fmt.Errorf("read uploaded text: %w", err)
	}
	w.logger.Info("Text loaded from file",
		slog.String("job_id", job.ID),
		slog.Int("length", len(text)),
	)
	return text, nil
}

// markFailed writes the terminal failure unless the job is already terminal
func (w *Worker) markFailed(ctx context.Context, job *domain.Job, message string) {
	ctx = context.WithoutCancel(ctx)

	err := w.store.UpdateJob(ctx, job.ID, domain.FailUpdate(message))
	if errors.Is(err, domain.ErrJobFinalized) {
		w.logger.Info("Job already finalized, skipping failure write",
			slog.String("job_id", job.ID),
		)
		return
	}
	if err != nil {
		w.logger.Error("Failed to update job status to error",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		return
	}
	w.metrics.RecordTerminal(domain.StatusError.String())

	if w.notifier != nil && job.Email != "" {
		if err := w.notifier.NotifyError(ctx, job.Email, job.ID, message); err != nil {
			w.logger.Warn("Failed to send error notification",
				slog.String("job_id", job.ID),
				slog.Any("error", err),
			)
		}
	}
}

func superseded(err error) bool {
	return errors.Is(err, domain.ErrJobFinalized) || errors.Is(err, domain.ErrInvalidTransition)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
