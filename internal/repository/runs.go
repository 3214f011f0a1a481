package repository

import (
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"moderation-service/internal/models"
)

type RunRepository interface {
	SaveRun(run *models.TrainingRun) error
	ListRuns() ([]*models.TrainingRun, error)
}

type runRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewRunRepository(db *sqlx.DB, logger *zap.Logger) RunRepository {
	return &runRepository{db: db, logger: logger}
}

func (r *runRepository) SaveRun(run *models.TrainingRun) error {
	query := `INSERT OR REPLACE INTO training_runs
	          (id, state, progress, best_f1, corpus_version, cancelled, error_message, started_at, ended_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.Exec(query,
		run.ID, run.State, run.Progress, run.BestF1, run.CorpusVersion,
		run.Cancelled, run.ErrorMessage, run.StartedAt, run.EndedAt)
	if err != nil {
		r.logger.Error("Failed to save training run", zap.String("run_id", run.ID), zap.Error(err))
	}
	return err
}

func (r *runRepository) ListRuns() ([]*models.TrainingRun, error) {
	var runs []*models.TrainingRun
	query := `SELECT id, state, progress, best_f1, corpus_version, cancelled, error_message, started_at, ended_at
	          FROM training_runs ORDER BY started_at DESC`
	if err := r.db.Select(&runs, query); err != nil {
		return nil, err
	}
	return runs, nil
}
