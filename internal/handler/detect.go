package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"moderation-service/internal/ml_client"
	"moderation-service/internal/models"
	"moderation-service/internal/notifier"
	"moderation-service/internal/repository"
)

type DetectHandler interface {
	Detect(c *gin.Context)
}

type detectHandler struct {
	mlClient  *ml_client.Client
	queueRepo repository.QueueRepository
	notifier  *notifier.Telegram
	threshold float64
	logger    *zap.Logger
}

func NewDetectHandler(mlClient *ml_client.Client, queueRepo repository.QueueRepository, notifier *notifier.Telegram, threshold float64, logger *zap.Logger) DetectHandler {
	return &detectHandler{
		mlClient:  mlClient,
		queueRepo: queueRepo,
		notifier:  notifier,
		threshold: threshold,
		logger:    logger,
	}
}

type DetectRequest struct {
	CommentID string `json:"comment_id" binding:"required"`
	Text      string `json:"text" binding:"required"`
}

type DetectResponse struct {
	CommentID  string  `json:"comment_id"`
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Detect handles POST /detect: classifies the text and, when flagged at or
// above the configured threshold, enqueues it for moderator review. When the
// classifier is unreachable nothing is enqueued and the caller gets a 503.
func (h *detectHandler) Detect(c *gin.Context) {
	var req DetectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.mlClient.Classify(c.Request.Context(), req.Text)
	if err != nil {
		h.logger.Error("Classifier service unavailable", zap.String("comment_id", req.CommentID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Classifier service unavailable"})
		return
	}

	if result.IsCyberbully() && result.Confidence >= h.threshold {
		inserted, err := h.queueRepo.Enqueue(&models.FlaggedComment{
			CommentID:  req.CommentID,
			Text:       req.Text,
			Confidence: result.Confidence,
		})
		if err != nil {
			h.logger.Error("Failed to enqueue flagged comment", zap.String("comment_id", req.CommentID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue comment"})
			return
		}
		if inserted {
			h.logger.Info("Comment flagged",
				zap.String("comment_id", req.CommentID),
				zap.Float64("confidence", result.Confidence))
			h.notifier.CommentFlagged(&models.FlaggedComment{
				CommentID:  req.CommentID,
				Text:       req.Text,
				Confidence: result.Confidence,
			})
		}
	}

	c.JSON(http.StatusOK, DetectResponse{
		CommentID:  req.CommentID,
		Text:       req.Text,
		Label:      result.Label,
		Confidence: result.Confidence,
	})
}
