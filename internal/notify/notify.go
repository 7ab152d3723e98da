package notify

import (
	"context"
	"log/slog"
)

// Notifier delivers job outcome messages to the submitter
type Notifier interface {
	NotifyComplete(ctx context.Context, email, jobID string) error
	NotifyError(ctx context.Context, email, jobID, message string) error
}

// LogNotifier only logs. Used when SMTP is not configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyComplete(ctx context.Context, email, jobID string) error {
	n.logger.Info("Analysis complete notification",
		slog.String("job_id", jobID),
		slog.String("email", email),
	)
	return nil
}

func (n *LogNotifier) NotifyError(ctx context.Context, email, jobID, message string) error {
	n.logger.Info("Analysis error notification",
		slog.String("job_id", jobID),
		slog.String("email", email),
		slog.String("reason", message),
	)
	return nil
}
