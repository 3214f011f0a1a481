package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"moderation-service/internal/models"
	"moderation-service/internal/repository"
)

type ModerationHandler interface {
	GetQueue(c *gin.Context)
	DeleteFromQueue(c *gin.Context)
	HandleAction(c *gin.Context)
	GetHistory(c *gin.Context)
}

type moderationHandler struct {
	queueRepo   repository.QueueRepository
	historyRepo repository.HistoryRepository
	logger      *zap.Logger
}

func NewModerationHandler(queueRepo repository.QueueRepository, historyRepo repository.HistoryRepository, logger *zap.Logger) ModerationHandler {
	return &moderationHandler{
		queueRepo:   queueRepo,
		historyRepo: historyRepo,
		logger:      logger,
	}
}

type ActionRequest struct {
	CommentID string `json:"comment_id" binding:"required"`
	Action    string `json:"action" binding:"required"`
}

// GetQueue handles GET /api/queue
// Query parameters:
// - search: case-insensitive substring match against text or comment id (optional)
// - min_confidence: inclusive confidence floor in percent, 0-100 (optional)
func (h *moderationHandler) GetQueue(c *gin.Context) {
	minConfidence := 0.0
	if raw := c.Query("min_confidence"); raw != "" {
		pct, err := strconv.ParseFloat(raw, 64)
		if err != nil || pct < 0 || pct > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_confidence must be a number between 0 and 100"})
			return
		}
		minConfidence = pct / 100
	}

	comments, err := h.queueRepo.List(c.Query("search"), minConfidence)
	if err != nil {
		h.logger.Error("Failed to list queue", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve queue"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"comments": comments,
		"count":    len(comments),
	})
}

// DeleteFromQueue handles DELETE /api/queue/:comment_id. Deleting an absent
// id is a benign no-op so duplicate delete requests don't error.
func (h *moderationHandler) DeleteFromQueue(c *gin.Context) {
	commentID := c.Param("comment_id")

	removed, err := h.queueRepo.Remove(commentID)
	if err != nil {
		h.logger.Error("Failed to delete comment from queue", zap.String("comment_id", commentID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete comment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": commentID + " removed from queue.",
		"removed": removed,
	})
}

// HandleAction handles POST /api/action: records the moderator's verdict and
// removes the comment from the queue in one step. A stale comment id (already
// actioned or deleted) yields 404 and writes nothing.
func (h *moderationHandler) HandleAction(c *gin.Context) {
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Action != models.ActionApproved && req.Action != models.ActionRejected {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action. Valid values: approved, rejected"})
		return
	}

	record, err := h.historyRepo.RecordAction(req.CommentID, req.Action)
	if err != nil {
		if errors.Is(err, repository.ErrNotPending) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found in queue"})
			return
		}
		h.logger.Error("Failed to record action", zap.String("comment_id", req.CommentID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record action"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Action recorded",
		"record":  record,
	})
}

// GetHistory handles GET /api/history, returning the full audit trail of
// moderator actions ordered by timestamp ascending.
func (h *moderationHandler) GetHistory(c *gin.Context) {
	actions, err := h.historyRepo.List()
	if err != nil {
		h.logger.Error("Failed to list history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"history": actions,
		"count":   len(actions),
	})
}
