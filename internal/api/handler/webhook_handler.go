package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/insight-engine/internal/api/dto"
	"github.com/cuongbtq/insight-engine/internal/reconciler"
)

// ResearchComplete handles POST /api/v1/webhook/research-complete?jobId=
// It is a thin transport over the reconciler; the in-process path calls the same method.
func (h *JobHandler) ResearchComplete(c *gin.Context) {
	jobID := c.Query("jobId")
	if jobID == "" {
		badRequest(c, "jobId is required")
		return
	}
	if _, err := uuid.Parse(jobID); err != nil {
		badRequest(c, "jobId must be a valid UUID")
		return
	}

	var payload reconciler.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, "Invalid webhook payload")
		return
	}
	if len(payload.Content) == 0 {
		badRequest(c, "No content in webhook payload")
		return
	}

	first := payload.Content[0]
	h.logger.Info("Research webhook received",
		slog.String("job_id", jobID),
		slog.Int("annotations", len(first.Annotations)),
	)

	if err := h.reconciler.Reconcile(c.Request.Context(), jobID, first.Text, first.Annotations); err != nil {
		h.respondError(c, err, "Failed to process research results")
		return
	}

	c.JSON(http.StatusOK, dto.WebhookResponse{Success: true})
}
