package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Dispatch modes for the start-analysis endpoint
const (
	DispatchInProcess = "inprocess"
	DispatchRabbitMQ  = "rabbitmq"
)

// Completion transports used by workers to hand research to the reconciler
const (
	CompletionDirect  = "direct"
	CompletionWebhook = "webhook"
)

// DefaultSynthesisTimeout applies when worker.synthesis_timeout is unset
const DefaultSynthesisTimeout = 3 * time.Minute

// File store backends
const (
	FileStoreLocal = "local"
	FileStoreMinIO = "minio"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Logging    LoggingConfig    `yaml:"logging"`
	App        AppConfig        `yaml:"app"`
	Worker     WorkerConfig     `yaml:"worker"`
	Dedup      DedupConfig      `yaml:"dedup"`
	Provider   ProviderConfig   `yaml:"provider"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Captcha    CaptchaConfig    `yaml:"captcha"`
	Notify     NotifyConfig     `yaml:"notify"`
	FileStore  FileStoreConfig  `yaml:"filestore"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	PublicURL       string        `yaml:"public_url"` // base URL used in report links
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
// An empty host runs the job store in memory.
type DatabaseConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	User             string        `yaml:"user"`
	Password         string        `yaml:"password"`
	Database         string        `yaml:"database"`
	SSLMode          string        `yaml:"sslmode"`
	MaxOpenConns     int           `yaml:"max_open_conns"`
	MaxIdleConns     int           `yaml:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `yaml:"conn_max_idle_time"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name            string `yaml:"name"`
	DeadLetterQueue string `yaml:"dead_letter_queue"`
	Durable         bool   `yaml:"durable"`
	AutoDelete      bool   `yaml:"auto_delete"`
	Exclusive       bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
	NoColor      bool   `yaml:"no_color"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// IsDevelopment reports whether CAPTCHA checks may be skipped
func (a AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// WorkerConfig holds analysis pipeline settings
type WorkerConfig struct {
	Dispatch         string        `yaml:"dispatch"`   // inprocess or rabbitmq
	Completion       string        `yaml:"completion"` // direct or webhook
	WebhookBaseURL   string        `yaml:"webhook_base_url"`
	Concurrency      int           `yaml:"concurrency"`
	QueueSize        int           `yaml:"queue_size"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	PromptTimeout    time.Duration `yaml:"prompt_timeout"`
	ResearchTimeout  time.Duration `yaml:"research_timeout"`
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout"`
	FileRetention    time.Duration `yaml:"file_retention"`
}

// DedupConfig holds duplicate-submission windows
type DedupConfig struct {
	SameClientWindow time.Duration `yaml:"same_client_window"`
	SameTextWindow   time.Duration `yaml:"same_text_window"`
}

// ProviderConfig holds language model provider settings
type ProviderConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	PromptModel    string        `yaml:"prompt_model"`
	ResearchModel  string        `yaml:"research_model"`
	StructureModel string        `yaml:"structure_model"`
	Temperature    float32       `yaml:"temperature"`
	Timeout        time.Duration `yaml:"timeout"`
}

// ResilienceConfig holds retry and circuit breaker settings for provider calls
type ResilienceConfig struct {
	RetryMaxAttempts        int           `yaml:"retry_max_attempts"`
	RetryInitialBackoff     time.Duration `yaml:"retry_initial_backoff"`
	RetryMaxBackoff         time.Duration `yaml:"retry_max_backoff"`
	RetryMultiplier         float64       `yaml:"retry_multiplier"`
	BreakerEnabled          bool          `yaml:"breaker_enabled"`
	BreakerMinRequests      uint32        `yaml:"breaker_min_requests"`
	BreakerFailureRatio     float64       `yaml:"breaker_failure_ratio"`
	BreakerOpenTimeout      time.Duration `yaml:"breaker_open_timeout"`
	BreakerHalfOpenMaxCalls uint32        `yaml:"breaker_half_open_max_calls"`
}

// CaptchaConfig holds CAPTCHA verification settings
type CaptchaConfig struct {
	SecretKey string        `yaml:"secret_key"`
	VerifyURL string        `yaml:"verify_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

// NotifyConfig holds email notification settings. An empty SMTP host logs notifications instead.
type NotifyConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
	From         string `yaml:"from"`
}

// FileStoreConfig selects where uploaded text is kept
type FileStoreConfig struct {
	Backend   string      `yaml:"backend"` // local or minio
	LocalRoot string      `yaml:"local_root"`
	MinIO     MinIOConfig `yaml:"minio"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// RateLimitConfig holds the per-client token bucket for intake routes
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Load reads and parses the configuration file, then applies environment overrides and defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv()
	config.applyDefaults()
	return &config, nil
}

// applyEnv lets secrets come from the environment instead of the file
func (c *Config) applyEnv() {
	overrides := []struct {
		env    string
		target *string
	}{
		{"OPENAI_API_KEY", &c.Provider.APIKey},
		{"RECAPTCHA_SECRET_KEY", &c.Captcha.SecretKey},
		{"SMTP_PASSWORD", &c.Notify.SMTPPassword},
		{"MINIO_SECRET_KEY", &c.FileStore.MinIO.SecretKey},
		{"DATABASE_PASSWORD", &c.Database.Password},
		{"RABBITMQ_PASSWORD", &c.RabbitMQ.Password},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.env); ok && v != "" {
			*o.target = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Worker.Dispatch == "" {
		c.Worker.Dispatch = DispatchInProcess
	}
	if c.Worker.Completion == "" {
		c.Worker.Completion = CompletionDirect
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 2
	}
	if c.Worker.ShutdownTimeout <= 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
	if c.FileStore.Backend == "" {
		c.FileStore.Backend = FileStoreLocal
	}
	if c.Notify.SMTPPort == 0 {
		c.Notify.SMTPPort = 587
	}
	c.Server.PublicURL = strings.TrimRight(c.Server.PublicURL, "/")
	c.Worker.WebhookBaseURL = strings.TrimRight(c.Worker.WebhookBaseURL, "/")
}

// Validate checks the configuration used by the API service
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	switch c.Worker.Dispatch {
	case DispatchInProcess:
		if c.Worker.Concurrency <= 0 {
			return fmt.Errorf("worker concurrency must be greater than 0")
		}
	case DispatchRabbitMQ:
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid worker dispatch mode: %q (must be %s or %s)", c.Worker.Dispatch, DispatchInProcess, DispatchRabbitMQ)
	}

	if c.Provider.APIKey == "" {
		return fmt.Errorf("provider api_key is required (or set OPENAI_API_KEY)")
	}

	// the research-complete webhook answers only after synthesis finishes
	if synthesis := c.synthesisTimeout(); c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= synthesis {
		return fmt.Errorf("server write_timeout (%s) must exceed worker synthesis_timeout (%s)", c.Server.WriteTimeout, synthesis)
	}

	if err := c.validateFileStore(); err != nil {
		return err
	}

	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit values must not be negative")
	}

	if c.Dedup.SameClientWindow < 0 || c.Dedup.SameTextWindow < 0 {
		return fmt.Errorf("dedup windows must not be negative")
	}

	return nil
}

// ValidateWorkerConfig checks the configuration used by the worker service
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Worker.PromptTimeout < 0 || c.Worker.ResearchTimeout < 0 || c.Worker.SynthesisTimeout < 0 {
		return fmt.Errorf("worker stage timeouts must not be negative")
	}

	switch c.Worker.Completion {
	case CompletionDirect:
	case CompletionWebhook:
		if c.Worker.WebhookBaseURL == "" {
			return fmt.Errorf("worker webhook_base_url is required for webhook completion")
		}
	default:
		return fmt.Errorf("invalid worker completion mode: %q (must be %s or %s)", c.Worker.Completion, CompletionDirect, CompletionWebhook)
	}

	if c.Provider.APIKey == "" {
		return fmt.Errorf("provider api_key is required (or set OPENAI_API_KEY)")
	}

	return c.validateFileStore()
}

func (c *Config) synthesisTimeout() time.Duration {
	if c.Worker.SynthesisTimeout > 0 {
		return c.Worker.SynthesisTimeout
	}
	return DefaultSynthesisTimeout
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return nil
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}

func (c *Config) validateFileStore() error {
	switch c.FileStore.Backend {
	case FileStoreLocal:
		return nil
	case FileStoreMinIO:
		if c.FileStore.MinIO.Endpoint == "" || c.FileStore.MinIO.Bucket == "" {
			return fmt.Errorf("filestore minio endpoint and bucket are required")
		}
		return nil
	default:
		return fmt.Errorf("invalid filestore backend: %q (must be %s or %s)", c.FileStore.Backend, FileStoreLocal, FileStoreMinIO)
	}
}
