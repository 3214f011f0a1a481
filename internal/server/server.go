package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"moderation-service/internal/config"
	"moderation-service/internal/handler"
	"moderation-service/internal/middleware"
	"moderation-service/internal/ml_client"
	"moderation-service/internal/notifier"
	"moderation-service/internal/repository"
	"moderation-service/internal/retrain"
	"moderation-service/internal/service"
)

type Server struct {
	router   *gin.Engine
	db       *sqlx.DB
	cfg      *config.Config
	ctrl     *retrain.Controller
	mlClient *ml_client.Client
	notifier *notifier.Telegram
	logger   *zap.Logger
}

func NewServer(db *sqlx.DB, cfg *config.Config, logger *zap.Logger, ctrl *retrain.Controller, mlClient *ml_client.Client, tg *notifier.Telegram) *Server {
	router := gin.Default()

	s := &Server{
		router:   router,
		db:       db,
		cfg:      cfg,
		ctrl:     ctrl,
		mlClient: mlClient,
		notifier: tg,
		logger:   logger,
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	queueRepo := repository.NewQueueRepository(s.db, s.logger)
	historyRepo := repository.NewHistoryRepository(s.db, s.logger)
	runRepo := repository.NewRunRepository(s.db, s.logger)
	authRepo := repository.NewAuthRepository(s.db, s.logger)

	authService := service.NewAuthService(authRepo, s.cfg.Auth.JWTSecret, time.Duration(s.cfg.Auth.TokenTTLHours)*time.Hour, s.logger)
	authHandler := handler.NewAuthHandler(authService, s.logger)
	detectHandler := handler.NewDetectHandler(s.mlClient, queueRepo, s.notifier, s.cfg.Detection.Threshold, s.logger)
	moderationHandler := handler.NewModerationHandler(queueRepo, historyRepo, s.logger)
	retrainHandler := handler.NewRetrainHandler(s.ctrl, runRepo, s.logger)

	s.router.Use(corsMiddleware())

	// Ping route for health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	// The browser extension posts scanned comments here; no session needed.
	s.router.POST("/detect", detectHandler.Detect)

	authGroup := s.router.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)

	// EventSource cannot set an Authorization header, so the stream is
	// registered outside the protected group.
	s.router.GET("/api/retrain/stream", retrainHandler.Stream)

	api := s.router.Group("/api")
	api.Use(middleware.AuthMiddleware(authService.Secret(), s.logger))
	{
		api.GET("/queue", moderationHandler.GetQueue)
		api.DELETE("/queue/:comment_id", moderationHandler.DeleteFromQueue)
		api.POST("/action", moderationHandler.HandleAction)
		api.GET("/history", moderationHandler.GetHistory)

		api.POST("/retrain", retrainHandler.Start)
		api.POST("/retrain/cancel", retrainHandler.Cancel)
		api.GET("/retrain/status", retrainHandler.Status)
		api.GET("/retrain/runs", retrainHandler.Runs)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func (s *Server) Run(port string) {
	s.logger.Info("Server starting", zap.String("port", port))
	if err := s.router.Run(":" + port); err != nil {
		s.logger.Fatal("Server failed to start", zap.Error(err))
	}
}
