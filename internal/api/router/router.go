package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/insight-engine/internal/api/handler"
	"github.com/cuongbtq/insight-engine/internal/metrics"
	"github.com/cuongbtq/insight-engine/internal/reconciler"
)

// Options carries router-level concerns that are not handler dependencies
type Options struct {
	RateLimit      RateLimitConfig
	HTTPMetrics    *metrics.HTTPServerMetrics
	MetricsHandler http.Handler
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())
	if opts.HTTPMetrics != nil {
		r.Use(opts.HTTPMetrics.Middleware())
	}

	r.GET("/health", handler.HealthHandler(deps))
	if opts.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	limited := []gin.HandlerFunc{}
	if opts.RateLimit.RequestsPerSecond > 0 {
		limited = append(limited, RateLimitMiddleware(NewClientRateLimiter(opts.RateLimit)))
	}

	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Submit text for analysis
			jobs.POST("", append(limited, jobHandler.CreateJob)...)

			// GET /api/v1/jobs - List jobs with pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id/status - Poll job status
			jobs.GET("/:job_id/status", jobHandler.GetJobStatus)

			// GET /api/v1/jobs/:job_id/report - Final report of a complete job
			jobs.GET("/:job_id/report", jobHandler.GetReport)
		}

		// POST /api/v1/analysis/start - Start the background pipeline
		v1.POST("/analysis/start", jobHandler.StartAnalysis)

		// POST /api/v1/uploads/text - Chunked text upload
		v1.POST("/uploads/text", append(limited, jobHandler.UploadText)...)
	}

	// POST /api/v1/webhook/research-complete - Research completion callback
	r.POST(reconciler.WebhookPath, jobHandler.ResearchComplete)

	return r
}
