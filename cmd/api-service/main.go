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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/insight-engine/internal/api/handler"
	"github.com/cuongbtq/insight-engine/internal/api/router"
	"github.com/cuongbtq/insight-engine/internal/bootstrap"
	"github.com/cuongbtq/insight-engine/internal/config"
	"github.com/cuongbtq/insight-engine/internal/dedup"
	"github.com/cuongbtq/insight-engine/internal/intake"
	"github.com/cuongbtq/insight-engine/internal/metrics"
	"github.com/cuongbtq/insight-engine/internal/reconciler"
	"github.com/cuongbtq/insight-engine/internal/upload"
	"github.com/cuongbtq/insight-engine/internal/worker"
	"github.com/cuongbtq/insight-engine/shared/rabbitmq"
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

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.Logger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	logger := appLogger.Logger

	logger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("dispatch", cfg.Worker.Dispatch),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := bootstrap.Store(ctx, &cfg.Database, appLogger.ForComponent("store"))
	defer store.Close()

	files, err := bootstrap.FileStore(ctx, &cfg.FileStore, appLogger.ForComponent("filestore"))
	if err != nil {
		return fmt.Errorf("failed to initialize file store: %w", err)
	}

	registry := metrics.NewRegistry()
	pipelineMetrics := metrics.NewPipelineMetrics(registry, cfg.App.Name)
	httpMetrics := metrics.NewHTTPServerMetrics(registry, cfg.App.Name)

	provider := bootstrap.Provider(cfg, logger)
	notifier := bootstrap.Notifier(cfg, appLogger.ForComponent("notify"))
	rec := bootstrap.Reconciler(cfg, store, provider, notifier, files, pipelineMetrics, logger)

	var (
		dispatcher      handler.AnalysisDispatcher
		queueDepth      func() int
		brokerConnected func() bool
		pool            *worker.Worker
		rabbitClient    *rabbitmq.Client
	)
	switch cfg.Worker.Dispatch {
	case config.DispatchRabbitMQ:
		rabbitClient, err = bootstrap.RabbitMQ(&cfg.RabbitMQ, appLogger.ForComponent("rabbitmq"))
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
		dispatcher = worker.NewQueuePublisher(rabbitClient, logger)
		brokerConnected = rabbitClient.IsConnected
	default:
		pool = bootstrap.Worker(cfg, bootstrap.WorkerDeps{
			Store:     store,
			Provider:  provider,
			Completer: reconciler.NewDirectCompleter(rec),
			Files:     files,
			Notifier:  notifier,
			Metrics:   pipelineMetrics,
		}, logger)
		dispatcher = pool
		queueDepth = pool.QueueDepth
	}

	guard := dedup.NewGuard(store, dedup.Config{
		SameClientWindow: cfg.Dedup.SameClientWindow,
		SameTextWindow:   cfg.Dedup.SameTextWindow,
	}, appLogger.ForComponent("dedup"))

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	deps := &handler.Dependencies{
		Logger:      logger,
		ServiceName: cfg.App.Name,
		Jobs:        store,
		StoreStatus: store,
		Intake:      intake.NewService(store, guard, bootstrap.Captcha(cfg), pipelineMetrics, appLogger.ForComponent("intake")),
		Dispatcher:  dispatcher,
		Reconciler:  rec,
		Uploads:     upload.NewAssembler(files, appLogger.ForComponent("upload")),
		QueueDepth:  queueDepth,

		BrokerConnected: brokerConnected,
	}
	r := router.SetupRouter(deps, router.Options{
		RateLimit: router.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
		HTTPMetrics:    httpMetrics,
		MetricsHandler: metrics.Handler(registry),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server",
			slog.String("address", addr),
			slog.String("store_mode", string(store.Mode())),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if pool != nil {
		g.Go(func() error {
			return pool.Start(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if pool != nil {
			pool.Stop()
		}
		if err != nil {
			logger.Error("Server forced to shutdown", slog.Any("error", err))
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Server shutdown complete")
	return nil
}
