package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"moderation-service/internal/models"
	"moderation-service/internal/repository"
	"moderation-service/internal/retrain"
)

type RetrainHandler interface {
	Start(c *gin.Context)
	Cancel(c *gin.Context)
	Status(c *gin.Context)
	Runs(c *gin.Context)
	Stream(c *gin.Context)
}

type retrainHandler struct {
	ctrl    *retrain.Controller
	runRepo repository.RunRepository
	logger  *zap.Logger
}

func NewRetrainHandler(ctrl *retrain.Controller, runRepo repository.RunRepository, logger *zap.Logger) RetrainHandler {
	return &retrainHandler{
		ctrl:    ctrl,
		runRepo: runRepo,
		logger:  logger,
	}
}

// Start handles POST /api/retrain. Exactly one caller wins when several race;
// the rest receive 409.
func (h *retrainHandler) Start(c *gin.Context) {
	if err := h.ctrl.Start(); err != nil {
		if errors.Is(err, retrain.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "Retraining already in progress"})
			return
		}
		h.logger.Error("Failed to start retraining", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start retraining"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Retraining started"})
}

// Cancel handles POST /api/retrain/cancel. Always succeeds: cancelling an
// idle or already-cancelling controller is a no-op.
func (h *retrainHandler) Cancel(c *gin.Context) {
	if h.ctrl.Cancel() {
		c.JSON(http.StatusOK, gin.H{"message": "Cancel requested"})
		return
	}
	if run := h.ctrl.Status(); run != nil && run.State == models.RunCancelling {
		c.JSON(http.StatusOK, gin.H{"message": "Cancel already requested"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "No training in progress"})
}

// Status handles GET /api/retrain/status.
func (h *retrainHandler) Status(c *gin.Context) {
	run := h.ctrl.Status()
	if run == nil {
		c.JSON(http.StatusOK, gin.H{"state": "idle"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// Runs handles GET /api/retrain/runs, listing persisted run summaries.
func (h *retrainHandler) Runs(c *gin.Context) {
	runs, err := h.runRepo.ListRuns()
	if err != nil {
		h.logger.Error("Failed to list training runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// Stream handles GET /api/retrain/stream: a server-sent event stream of
// training events. The connection closes after the run's terminal event, or
// when the client goes away.
func (h *retrainHandler) Stream(c *gin.Context) {
	events, cancel := h.ctrl.Subscribe()
	defer cancel()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case evt, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("message", evt)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
