package dto

import "github.com/cuongbtq/insight-engine/internal/domain"

// CreateJobRequest binds from JSON or multipart/form bodies
type CreateJobRequest struct {
	Text           string `json:"text" form:"text"`
	Email          string `json:"email" form:"email"`
	CaptchaToken   string `json:"captchaToken" form:"captchaToken"`
	MarketingOptIn bool   `json:"marketingOptIn" form:"marketingOptIn"`
	FilePath       string `json:"filePath" form:"filePath"`
}

type CreateJobResponse struct {
	JobID       string `json:"jobId"`
	IsDuplicate bool   `json:"isDuplicate"`
	Message     string `json:"message"`
}

type StartAnalysisRequest struct {
	JobID string `json:"jobId" binding:"required"`
}

type StartAnalysisResponse struct {
	Message string `json:"message"`
	JobID   string `json:"jobId"`
}

type WebhookResponse struct {
	Success bool `json:"success"`
}

type UploadChunkRequest struct {
	Text        string `form:"text"`
	SessionID   string `form:"sessionId"`
	ChunkIndex  int    `form:"chunkIndex"`
	TotalChunks int    `form:"totalChunks"`
}

type UploadChunkResponse struct {
	SessionID  string `json:"sessionId"`
	IsComplete bool   `json:"isComplete"`
	FilePath   string `json:"filePath,omitempty"`
	Message    string `json:"message"`
}

type ListJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// JobDTO is the listing projection. It carries no input text or contact fields.
type JobDTO struct {
	JobID     string        `json:"jobId"`
	Status    domain.Status `json:"status"`
	MimeType  string        `json:"mimeType"`
	Error     *string       `json:"error,omitempty"`
	CreatedAt string        `json:"createdAt"`
	UpdatedAt string        `json:"updatedAt"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
