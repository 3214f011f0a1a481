package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"moderation-service/internal/config"
	"moderation-service/internal/corpus"
	"moderation-service/internal/ml_client"
	"moderation-service/internal/notifier"
	"moderation-service/internal/repository"
	"moderation-service/internal/retrain"
	"moderation-service/internal/server"
	"moderation-service/internal/trainer"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err) // Should not happen in development
	}
	defer func() {
		_ = logger.Sync() // Flushes buffer, if any
	}()

	// Load configuration
	cfgPath := "configs/config.yml"
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Database connection
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		_ = os.MkdirAll(dir, 0755)
	}
	db, err := repository.NewSQLiteDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	if err := repository.MigrateDB(db, logger); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize repositories used outside the HTTP layer
	historyRepo := repository.NewHistoryRepository(db, logger)
	runRepo := repository.NewRunRepository(db, logger)

	// Initialize ML service client
	mlClient := ml_client.NewClient(cfg.MLService.URL)

	// Initialize Telegram notifier (optional)
	tg, err := notifier.NewTelegram(cfg, logger)
	if err != nil {
		logger.Warn("Failed to initialize Telegram notifier, continuing without it", zap.Error(err))
		tg = nil
	}

	// Wire the retraining pipeline: corpus builder -> script trainer -> event bus
	builder := corpus.NewBuilder(historyRepo, cfg.Training.BaseDataset, logger)
	scriptTrainer := trainer.NewScriptTrainer(cfg.Training.Python, cfg.Training.Script, cfg.Training.WorkDir, logger)
	bus := retrain.NewBus(cfg.Training.EventBuffer, logger)

	var runNotifier retrain.Notifier
	if tg != nil {
		runNotifier = tg
	}
	ctrl := retrain.NewController(builder, scriptTrainer, bus, runRepo, runNotifier, logger)

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize and run the server
	srv := server.NewServer(db, cfg, logger, ctrl, mlClient, tg)
	go srv.Run(cfg.Server.Port)

	<-ctx.Done()
	logger.Info("Application stopped.")
}
