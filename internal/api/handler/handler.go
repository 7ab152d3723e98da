package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/insight-engine/internal/domain"
	"github.com/cuongbtq/insight-engine/internal/intake"
	"github.com/cuongbtq/insight-engine/internal/storage"
	"github.com/cuongbtq/insight-engine/internal/upload"
)

// JobReader is the read side of the job store used by handlers
type JobReader interface {
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	ListJobsPage(ctx context.Context, filter storage.JobFilter) ([]*domain.Job, error)
}

// StoreStatus reports the store backend for health checks
type StoreStatus interface {
	Mode() storage.Mode
	Ping(ctx context.Context) error
}

type Submitter interface {
	Submit(ctx context.Context, sub intake.Submission) (intake.Result, error)
}

// AnalysisDispatcher hands a pending job to the background pipeline
type AnalysisDispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

type ResearchReconciler interface {
	Reconcile(ctx context.Context, jobID, researchText string, annotations []domain.Annotation) error
}

type ChunkSaver interface {
	SaveChunk(ctx context.Context, sessionID string, index, total int, text string) (upload.ChunkResult, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	ServiceName string
	Jobs        JobReader
	StoreStatus StoreStatus
	Intake      Submitter
	Dispatcher  AnalysisDispatcher
	Reconciler  ResearchReconciler
	Uploads     ChunkSaver
	// QueueDepth reports in-process queue occupancy; nil when dispatching over RabbitMQ
	QueueDepth func() int
	// BrokerConnected reports the RabbitMQ connection; nil when dispatching in-process
	BrokerConnected func() bool
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger     *slog.Logger
	jobs       JobReader
	intake     Submitter
	dispatcher AnalysisDispatcher
	reconciler ResearchReconciler
	uploads    ChunkSaver
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:     deps.Logger,
		jobs:       deps.Jobs,
		intake:     deps.Intake,
		dispatcher: deps.Dispatcher,
		reconciler: deps.Reconciler,
		uploads:    deps.Uploads,
	}
}
