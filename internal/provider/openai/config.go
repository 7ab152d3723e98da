package openai

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cuongbtq/insight-engine/internal/resilience"
)

// Config for the OpenAI-compatible chat completions client
type Config struct {
	APIKey         string        // if empty, falls back to env OPENAI_API_KEY
	BaseURL        string        // default https://api.openai.com/v1
	PromptModel    string        // model for research prompt generation
	ResearchModel  string        // model for deep research
	StructureModel string        // model for report structuring
	Temperature    float32       // 0..2
	Timeout        time.Duration // per HTTP request
}

// Client implements the research provider and structuring capabilities
type Client struct {
	cfg        Config
	httpClient *http.Client
	exec       *resilience.Executor
	log        *slog.Logger
}

// NewClient creates a new Client. A nil executor disables retries and breaking.
func NewClient(cfg Config, exec *resilience.Executor, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.PromptModel == "" {
		cfg.PromptModel = "gpt-4o-mini"
	}
	if cfg.ResearchModel == "" {
		cfg.ResearchModel = cfg.PromptModel
	}
	if cfg.StructureModel == "" {
		cfg.StructureModel = cfg.PromptModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 1}, logger)
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		exec:       exec,
		log:        logger,
	}
}
