// Package bootstrap builds the service components from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cuongbtq/insight-engine/internal/captcha"
	"github.com/cuongbtq/insight-engine/internal/config"
	"github.com/cuongbtq/insight-engine/internal/filestore"
	"github.com/cuongbtq/insight-engine/internal/metrics"
	"github.com/cuongbtq/insight-engine/internal/notify"
	"github.com/cuongbtq/insight-engine/internal/provider/openai"
	"github.com/cuongbtq/insight-engine/internal/reconciler"
	"github.com/cuongbtq/insight-engine/internal/resilience"
	"github.com/cuongbtq/insight-engine/internal/storage"
	"github.com/cuongbtq/insight-engine/internal/worker"
	"github.com/cuongbtq/insight-engine/shared/logger"
	"github.com/cuongbtq/insight-engine/shared/postgresql"
	"github.com/cuongbtq/insight-engine/shared/rabbitmq"
)

// Logger initializes and configures the application logger
func Logger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		NoColor:      cfg.NoColor,
		TimeFormat:   time.RFC3339,
	})
}

// PostgresConfig maps database settings onto the shared client configuration
func PostgresConfig(cfg *config.DatabaseConfig) *postgresql.Config {
	return &postgresql.Config{
		Host:             cfg.Host,
		Port:             cfg.Port,
		User:             cfg.User,
		Password:         cfg.Password,
		Database:         cfg.Database,
		SSLMode:          cfg.SSLMode,
		MaxOpenConns:     cfg.MaxOpenConns,
		MaxIdleConns:     cfg.MaxIdleConns,
		ConnMaxLifetime:  cfg.ConnMaxLifetime,
		ConnMaxIdleTime:  cfg.ConnMaxIdleTime,
		ConnectTimeout:   cfg.ConnectTimeout,
		StatementTimeout: cfg.StatementTimeout,
	}
}

// Store opens the job store. Without a database host, or when PostgreSQL is
// unreachable, it serves from memory.
func Store(ctx context.Context, cfg *config.DatabaseConfig, log *slog.Logger) *storage.Store {
	var connect storage.Connector
	if cfg.Host != "" {
		connect = storage.PostgresConnector(PostgresConfig(cfg), log)
	}
	store := storage.New(connect, log)
	store.Open(ctx)
	return store
}

// RabbitMQConfig maps queue settings onto the shared client configuration
func RabbitMQConfig(cfg *config.RabbitMQConfig) *rabbitmq.Config {
	return &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		DeadLetterQueue:    cfg.Queue.DeadLetterQueue,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}
}

// RabbitMQ initializes the RabbitMQ client
func RabbitMQ(cfg *config.RabbitMQConfig, log *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(RabbitMQConfig(cfg), log)
}

// FileStore opens the configured upload backend
func FileStore(ctx context.Context, cfg *config.FileStoreConfig, log *slog.Logger) (filestore.Store, error) {
	switch cfg.Backend {
	case config.FileStoreMinIO:
		return filestore.NewMinIO(ctx, filestore.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		}, log)
	case config.FileStoreLocal, "":
		root := cfg.LocalRoot
		if root == "" {
			root = filestore.DefaultLocalRoot()
		}
		return filestore.NewLocalFS(root, log)
	default:
		return nil, fmt.Errorf("unknown filestore backend %q", cfg.Backend)
	}
}

// Provider builds the language model client behind the resilience executor
func Provider(cfg *config.Config, log *slog.Logger) *openai.Client {
	r := cfg.Resilience
	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:        r.RetryMaxAttempts,
		RetryInitialBackoff:     r.RetryInitialBackoff,
		RetryMaxBackoff:         r.RetryMaxBackoff,
		RetryMultiplier:         r.RetryMultiplier,
		BreakerEnabled:          r.BreakerEnabled,
		BreakerMinRequests:      r.BreakerMinRequests,
		BreakerFailureRatio:     r.BreakerFailureRatio,
		BreakerOpenTimeout:      r.BreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: r.BreakerHalfOpenMaxCalls,
	}, log.With(slog.String("component", "resilience")))

	p := cfg.Provider
	return openai.NewClient(openai.Config{
		APIKey:         p.APIKey,
		BaseURL:        p.BaseURL,
		PromptModel:    p.PromptModel,
		ResearchModel:  p.ResearchModel,
		StructureModel: p.StructureModel,
		Temperature:    p.Temperature,
		Timeout:        p.Timeout,
	}, exec, log.With(slog.String("component", "provider")))
}

// Notifier returns an SMTP notifier, or a log-only notifier when SMTP is not configured
func Notifier(cfg *config.Config, log *slog.Logger) notify.Notifier {
	n := cfg.Notify
	if n.SMTPHost == "" {
		return notify.NewLogNotifier(log)
	}
	return notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     n.SMTPHost,
		Port:     n.SMTPPort,
		Username: n.SMTPUsername,
		Password: n.SMTPPassword,
		From:     n.From,
		BaseURL:  cfg.Server.PublicURL,
	}, log)
}

// Reconciler builds the completion reconciler
func Reconciler(
	cfg *config.Config,
	store reconciler.JobRepository,
	structurer reconciler.Structurer,
	notifier notify.Notifier,
	files filestore.Store,
	m *metrics.PipelineMetrics,
	log *slog.Logger,
) *reconciler.Reconciler {
	return reconciler.New(store, structurer, notifier, files, m, reconciler.Config{
		SynthesisTimeout: cfg.Worker.SynthesisTimeout,
		Retention:        cfg.Worker.FileRetention,
	}, log.With(slog.String("component", "reconciler")))
}

// Completer picks the transport workers use to hand research to the reconciler
func Completer(cfg *config.WorkerConfig, rec *reconciler.Reconciler) reconciler.Completer {
	if cfg.Completion == config.CompletionWebhook {
		timeout := cfg.SynthesisTimeout
		if timeout > 0 {
			timeout += 30 * time.Second
		}
		return reconciler.NewWebhookCompleter(cfg.WebhookBaseURL, timeout)
	}
	return reconciler.NewDirectCompleter(rec)
}

// WorkerDeps are the collaborators a worker pool runs against
type WorkerDeps struct {
	Store     worker.JobRepository
	Provider  worker.ResearchProvider
	Completer reconciler.Completer
	Files     filestore.Opener
	Notifier  notify.Notifier
	Metrics   *metrics.PipelineMetrics
	Broker    worker.Broker
}

// Worker builds the analysis worker pool
func Worker(cfg *config.Config, deps WorkerDeps, log *slog.Logger) *worker.Worker {
	hostname, _ := os.Hostname()
	return worker.NewWorker(&worker.Config{
		Logger:          log.With(slog.String("component", "worker")),
		Store:           deps.Store,
		Provider:        deps.Provider,
		Completer:       deps.Completer,
		Files:           deps.Files,
		Notifier:        deps.Notifier,
		Metrics:         deps.Metrics,
		Broker:          deps.Broker,
		WorkerID:        fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		Concurrency:     cfg.Worker.Concurrency,
		QueueSize:       cfg.Worker.QueueSize,
		PrefetchCount:   cfg.RabbitMQ.Consumer.PrefetchCount,
		ShutdownTimeout: cfg.Worker.ShutdownTimeout,
		Timeouts: worker.StageTimeouts{
			Prompting:   cfg.Worker.PromptTimeout,
			Researching: cfg.Worker.ResearchTimeout,
		},
	})
}

// Captcha picks the CAPTCHA verifier. Development mode or a missing secret skips verification.
func Captcha(cfg *config.Config) captcha.Verifier {
	if cfg.App.IsDevelopment() || cfg.Captcha.SecretKey == "" {
		return captcha.NoopVerifier{}
	}
	return captcha.NewRecaptchaVerifier(cfg.Captcha.SecretKey, cfg.Captcha.VerifyURL, cfg.Captcha.Timeout)
}
