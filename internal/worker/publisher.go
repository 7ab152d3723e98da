package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/insight-engine/internal/domain"
)

// Publisher sends a message body to the job queue
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// QueuePublisher dispatches analysis jobs to the worker service over RabbitMQ
type QueuePublisher struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewQueuePublisher(p Publisher, logger *slog.Logger) *QueuePublisher {
	return &QueuePublisher{publisher: p, logger: logger}
}

func (q *QueuePublisher) Dispatch(ctx context.Context, jobID string) error {
	body, err := json.Marshal(domain.JobMessage{JobID: jobID})
	if err != nil {
		return fmt.Errorf("marshal job message: %w", err)
	}
	if err := q.publisher.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("publish job %s: %w", jobID, err)
	}
	q.logger.Info("Job published to queue", slog.String("job_id", jobID))
	return nil
}
