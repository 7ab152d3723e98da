package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/insight-engine/internal/api/dto"
)

// UploadText handles POST /api/v1/uploads/text
// Stores one chunk of a long text submission
func (h *JobHandler) UploadText(c *gin.Context) {
	var req dto.UploadChunkRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "Invalid upload form")
		return
	}
	if req.Text == "" {
		badRequest(c, "text is required")
		return
	}
	if req.TotalChunks == 0 {
		req.TotalChunks = 1
	}

	res, err := h.uploads.SaveChunk(c.Request.Context(), req.SessionID, req.ChunkIndex, req.TotalChunks, req.Text)
	if err != nil {
		h.logger.Warn("Failed to save text chunk",
			slog.String("session_id", req.SessionID),
			slog.Any("error", err),
		)
		badRequest(c, err.Error())
		return
	}

	message := "Chunk received"
	if res.IsComplete {
		message = "Text upload complete"
	}
	c.JSON(http.StatusOK, dto.UploadChunkResponse{
		SessionID:  res.SessionID,
		IsComplete: res.IsComplete,
		FilePath:   res.FilePath,
		Message:    message,
	})
}
