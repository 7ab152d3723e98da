package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/insight-engine/internal/domain"
	"github.com/cuongbtq/insight-engine/internal/poller"
	"github.com/cuongbtq/insight-engine/shared/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	baseURL := flag.String("base-url", "http://localhost:8080", "API service base URL")
	jobID := flag.String("job", "", "Job ID to watch")
	interval := flag.Duration("interval", poller.DefaultInterval, "Polling interval")
	timeout := flag.Duration("timeout", 30*time.Minute, "Give up after this long")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	if *jobID == "" {
		return errors.New("-job is required")
	}

	appLogger, err := logger.New(&logger.Config{
		Level:      *level,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: time.Kitchen,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	p := poller.New(poller.NewHTTPFetcher(*baseURL, 10*time.Second), *interval, appLogger.ForComponent("poller"))

	view, err := p.Wait(ctx, *jobID, func(v domain.StatusView) {
		appLogger.Info("Job status", slog.String("job_id", *jobID), slog.String("status", v.Status.String()))
	})
	if err != nil {
		return fmt.Errorf("polling job %s: %w", *jobID, err)
	}

	if view.Status == domain.StatusError {
		msg := "unknown error"
		if view.Error != nil {
			msg = *view.Error
		}
		return fmt.Errorf("job %s failed: %s", *jobID, msg)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(view.FinalReport)
}
