package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/insight-engine/internal/domain"
	"github.com/cuongbtq/insight-engine/internal/filestore"
	"github.com/cuongbtq/insight-engine/internal/metrics"
	"github.com/cuongbtq/insight-engine/internal/notify"
	"github.com/cuongbtq/insight-engine/internal/reconciler"
)

const (
	DefaultPromptTimeout   = 2 * time.Minute
	DefaultResearchTimeout = 15 * time.Minute
	defaultQueueSize       = 100
	defaultShutdownTimeout = 30 * time.Second
)

// JobRepository is the store surface the orchestrator uses
type JobRepository interface {
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	UpdateJob(ctx context.Context, id string, update domain.JobUpdate) error
}

// ResearchProvider generates the research plan and executes it
type ResearchProvider interface {
	GeneratePrompt(ctx context.Context, text string) (string, error)
	Research(ctx context.Context, prompt string) (string, error)
}

// StageTimeouts bounds each provider call
type StageTimeouts struct {
	Prompting   time.Duration
	Researching time.Duration
}

// Config holds worker configuration
type Config struct {
	Logger          *slog.Logger
	Store           JobRepository
	Provider        ResearchProvider
	Completer       reconciler.Completer
	Files           filestore.Opener
	Notifier        notify.Notifier
	Metrics         *metrics.PipelineMetrics
	Broker          Broker // nil runs the pool on the in-process queue only
	WorkerID        string
	Concurrency     int
	QueueSize       int
	PrefetchCount   int
	ShutdownTimeout time.Duration
	Timeouts        StageTimeouts
}

// Worker runs analysis pipelines on a bounded goroutine pool
type Worker struct {
	logger          *slog.Logger
	store           JobRepository
	provider        ResearchProvider
	completer       reconciler.Completer
	files           filestore.Opener
	notifier        notify.Notifier
	metrics         *metrics.PipelineMetrics
	broker          Broker
	workerID        string
	concurrency     int
	prefetchCount   int
	shutdownTimeout time.Duration
	timeouts        StageTimeouts

	jobsChan  chan *domain.JobMessage
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	runCtx    context.Context
	cancelRun context.CancelFunc
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.PrefetchCount <= 0 {
		cfg.PrefetchCount = cfg.Concurrency
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.Timeouts.Prompting <= 0 {
		cfg.Timeouts.Prompting = DefaultPromptTimeout
	}
	if cfg.Timeouts.Researching <= 0 {
		cfg.Timeouts.Researching = DefaultResearchTimeout
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = "worker"
	}

	runCtx, cancel := context.WithCancel(context.Background())
	return &Worker{
		logger:          cfg.Logger,
		store:           cfg.Store,
		provider:        cfg.Provider,
		completer:       cfg.Completer,
		files:           cfg.Files,
		notifier:        cfg.Notifier,
		metrics:         cfg.Metrics,
		broker:          cfg.Broker,
		workerID:        cfg.WorkerID,
		concurrency:     cfg.Concurrency,
		prefetchCount:   cfg.PrefetchCount,
		shutdownTimeout: cfg.ShutdownTimeout,
		timeouts:        cfg.Timeouts,
		jobsChan:        make(chan *domain.JobMessage, cfg.QueueSize),
		stopChan:        make(chan struct{}),
		runCtx:          runCtx,
		cancelRun:       cancel,
	}
}

// Start spawns the pool and, with a broker, the queue consumer. It blocks until ctx is done
// or the broker delivery channel closes.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("prompt_timeout", w.timeouts.Prompting),
		slog.Duration("research_timeout", w.timeouts.Researching),
	)

	var deliveries <-chan amqp.Delivery
	if w.broker != nil {
		var err error
		deliveries, err = w.setupConsumer()
		if err != nil {
			return err
		}
	}

	w.spawnWorkerPool()

	if deliveries == nil {
		select {
		case <-ctx.Done():
		case <-w.stopChan:
		}
		w.logger.Info("Worker context canceled, stopping...")
		return nil
	}

	w.startMessageDispatcher(ctx, deliveries)
	return nil
}

// Dispatch enqueues a job on the in-process queue without blocking
func (w *Worker) Dispatch(_ context.Context, jobID string) error {
	select {
	case <-w.stopChan:
		return fmt.Errorf("%w: worker is stopping", domain.ErrQueueFull)
	default:
	}

	select {
	case w.jobsChan <- &domain.JobMessage{JobID: jobID}:
		w.logger.Debug("Job queued for analysis", slog.String("job_id", jobID))
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// QueueDepth returns the number of jobs waiting for a pool goroutine
func (w *Worker) QueueDepth() int {
	return len(w.jobsChan)
}

// Stop stops taking new jobs and waits for in-flight pipelines up to the shutdown timeout.
// Pipelines still running after that are cancelled and recorded as failed.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)

		done := make(chan struct{})
		go func() {
			w.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(w.shutdownTimeout):
			w.logger.Warn("Shutdown timeout reached, cancelling in-flight pipelines",
				slog.Duration("timeout", w.shutdownTimeout),
			)
			w.cancelRun()
			<-done
		}
		w.cancelRun()
		if left := len(w.jobsChan); left > 0 {
			w.logger.Warn("Queued jobs left in pending status", slog.Int("count", left))
		}
		w.logger.Info("Worker stopped")
	})
}
