package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/insight-engine/internal/api/dto"
	"github.com/cuongbtq/insight-engine/internal/domain"
	"github.com/cuongbtq/insight-engine/internal/intake"
	"github.com/cuongbtq/insight-engine/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CreateJob handles POST /api/v1/jobs
// Accepts JSON or multipart form bodies and returns the job serving the submission
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		badRequest(c, "Invalid request body")
		return
	}

	result, err := h.intake.Submit(c.Request.Context(), intake.Submission{
		Text:           req.Text,
		Email:          req.Email,
		CaptchaToken:   req.CaptchaToken,
		RemoteIP:       c.ClientIP(),
		MarketingOptIn: req.MarketingOptIn,
		FilePath:       req.FilePath,
	})
	if err != nil {
		h.respondError(c, err, "Failed to create job")
		return
	}

	message := "Job created successfully"
	if result.IsDuplicate {
		message = "Duplicate submission, returning existing job"
	}
	c.JSON(http.StatusOK, dto.CreateJobResponse{
		JobID:       result.JobID,
		IsDuplicate: result.IsDuplicate,
		Message:     message,
	})
}

// StartAnalysis handles POST /api/v1/analysis/start
// Hands a pending job to the background pipeline and returns immediately
func (h *JobHandler) StartAnalysis(c *gin.Context) {
	var req dto.StartAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "jobId is required")
		return
	}
	if _, err := uuid.Parse(req.JobID); err != nil {
		badRequest(c, "jobId must be a valid UUID")
		return
	}

	ctx := c.Request.Context()
	job, err := h.jobs.GetJob(ctx, req.JobID)
	if err != nil {
		h.respondError(c, err, "Failed to load job")
		return
	}
	if job.Status != domain.StatusPending {
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: "analysis already started for job " + job.ID + " (status " + job.Status.String() + ")",
		})
		return
	}

	if err := h.dispatcher.Dispatch(ctx, job.ID); err != nil {
		h.respondError(c, err, "Failed to start analysis")
		return
	}

	h.logger.Info("Analysis dispatched", slog.String("job_id", job.ID))
	c.JSON(http.StatusAccepted, dto.StartAnalysisResponse{
		Message: "Analysis started",
		JobID:   job.ID,
	})
}

// GetJobStatus handles GET /api/v1/jobs/:job_id/status
func (h *JobHandler) GetJobStatus(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job.StatusView())
}

// GetReport handles GET /api/v1/jobs/:job_id/report
func (h *JobHandler) GetReport(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	if job.Status != domain.StatusComplete || job.FinalReport == nil {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "report is not ready",
			"status": job.Status,
		})
		return
	}
	c.JSON(http.StatusOK, job.FinalReport)
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "Invalid query parameters")
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	filter := storage.JobFilter{PageSize: req.PageSize}
	if req.Status != "" {
		status, err := domain.ParseStatus(req.Status)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		filter.Status = status
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		badRequest(c, "Invalid cursor")
		return
	}
	filter.Cursor = cursor

	jobs, err := h.jobs.ListJobsPage(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err, "Failed to list jobs")
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	out := make([]dto.JobDTO, len(jobs))
	for i, job := range jobs {
		out[i] = dto.JobDTO{
			JobID:     job.ID,
			Status:    job.Status,
			MimeType:  job.MimeType,
			Error:     job.Error,
			CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt: job.UpdatedAt.UTC().Format(time.RFC3339),
		}
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&storage.JobCursor{CreatedAt: last.CreatedAt, JobID: last.ID})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       out,
		NextCursor: nextCursor,
	})
}

func (h *JobHandler) loadJob(c *gin.Context) (*domain.Job, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		badRequest(c, "job_id must be a valid UUID")
		return nil, false
	}

	job, err := h.jobs.GetJob(c.Request.Context(), jobID)
	if err != nil {
		h.respondError(c, err, "Failed to get job")
		return nil, false
	}
	return job, true
}
