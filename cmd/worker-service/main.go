package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cuongbtq/insight-engine/internal/bootstrap"
	"github.com/cuongbtq/insight-engine/internal/config"
	"github.com/cuongbtq/insight-engine/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.Logger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	logger := appLogger.Logger

	logger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("completion", cfg.Worker.Completion),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := bootstrap.Store(ctx, &cfg.Database, appLogger.ForComponent("store"))
	defer store.Close()

	files, err := bootstrap.FileStore(ctx, &cfg.FileStore, appLogger.ForComponent("filestore"))
	if err != nil {
		return fmt.Errorf("failed to initialize file store: %w", err)
	}

	rabbitClient, err := bootstrap.RabbitMQ(&cfg.RabbitMQ, appLogger.ForComponent("rabbitmq"))
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	logger.Info("RabbitMQ connection established")

	registry := metrics.NewRegistry()
	pipelineMetrics := metrics.NewPipelineMetrics(registry, cfg.App.Name)

	provider := bootstrap.Provider(cfg, logger)
	notifier := bootstrap.Notifier(cfg, appLogger.ForComponent("notify"))
	rec := bootstrap.Reconciler(cfg, store, provider, notifier, files, pipelineMetrics, logger)

	workerInstance := bootstrap.Worker(cfg, bootstrap.WorkerDeps{
		Store:     store,
		Provider:  provider,
		Completer: bootstrap.Completer(&cfg.Worker, rec),
		Files:     files,
		Notifier:  notifier,
		Metrics:   pipelineMetrics,
		Broker:    rabbitClient,
	}, logger)

	// Metrics endpoint for the worker process
	var metricsSrv *http.Server
	if cfg.Server.Port > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(registry))
		metricsSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", slog.Any("error", err))
			}
		}()
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- workerInstance.Start(ctx)
	}()

	logger.Info("Worker service started successfully",
		slog.String("store_mode", string(store.Mode())),
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received signal, shutting down gracefully")
	case runErr = <-errChan:
		if runErr != nil {
			logger.Error("Worker error", slog.Any("error", runErr))
		} else {
			logger.Warn("Delivery channel closed, shutting down")
		}
	}

	workerInstance.Stop()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed", slog.Any("error", err))
		}
	}

	logger.Info("Worker service shutdown complete")
	return runErr
}
