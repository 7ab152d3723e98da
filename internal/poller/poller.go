package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/insight-engine/internal/domain"
)

const (
	DefaultInterval         = 2 * time.Second
	defaultMaxFetchFailures = 5
)

// StatusFetcher reads the narrowed status projection of a job
type StatusFetcher interface {
	FetchStatus(ctx context.Context, jobID string) (domain.StatusView, error)
}

// Poller repeatedly reads a job's status until it is terminal
type Poller struct {
	fetcher     StatusFetcher
	interval    time.Duration
	maxFailures int
	logger      *slog.Logger
}

func New(fetcher StatusFetcher, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		fetcher:     fetcher,
		interval:    interval,
		maxFailures: defaultMaxFetchFailures,
		logger:      logger,
	}
}

// Wait polls until the job reaches complete or error and returns that view.
// observe, if set, is called once for every distinct status seen.
// Cancelling ctx stops polling only; the pipeline keeps running.
func (p *Poller) Wait(ctx context.Context, jobID string, observe func(domain.StatusView)) (domain.StatusView, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var last domain.Status
	failures := 0

	for {
		view, err := p.fetcher.FetchStatus(ctx, jobID)
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			return domain.StatusView{}, err
		case err != nil:
			if ctx.Err() != nil {
				return domain.StatusView{}, ctx.Err()
			}
			failures++
			p.logger.Warn("Status poll failed",
				slog.String("job_id", jobID),
				slog.Int("consecutive_failures", failures),
				slog.Any("error", err),
			)
			if failures >= p.maxFailures {
				return domain.StatusView{}, fmt.Errorf("polling job %s: %w", jobID, err)
			}
		default:
			failures = 0
			if view.Status != last {
				last = view.Status
				p.logger.Debug("Job status changed",
					slog.String("job_id", jobID),
					slog.String("status", view.Status.String()),
				)
				if observe != nil {
					observe(view)
				}
			}
			if view.Status.IsTerminal() {
				return view, nil
			}
		}

		select {
		case <-ctx.Done():
			return domain.StatusView{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
