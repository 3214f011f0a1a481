package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"moderation-service/internal/models"
)

// ErrNotPending is returned when an action targets a comment that is no
// longer in the queue (already actioned, or deleted).
var ErrNotPending = errors.New("comment is not pending")

type HistoryRepository interface {
	// RecordAction atomically appends a moderator action and removes the
	// comment from the pending queue. Returns ErrNotPending if the comment
	// is not currently queued; in that case nothing is written.
	RecordAction(commentID, action string) (*models.ModeratorAction, error)
	// List returns all moderator actions ordered by timestamp ascending.
	List() ([]*models.ModeratorAction, error)
	// LatestByComment returns the most recent action for each comment id.
	LatestByComment() ([]*models.ModeratorAction, error)
}

type historyRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewHistoryRepository(db *sqlx.DB, logger *zap.Logger) HistoryRepository {
	return &historyRepository{db: db, logger: logger}
}

func (r *historyRepository) RecordAction(commentID, action string) (*models.ModeratorAction, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var pending models.FlaggedComment
	err = tx.Get(&pending, `SELECT comment_id, text, confidence, created_at FROM pending_comments WHERE comment_id = ?`, commentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotPending
		}
		return nil, err
	}

	if _, err := tx.Exec(`DELETE FROM pending_comments WHERE comment_id = ?`, commentID); err != nil {
		return nil, err
	}

	record := &models.ModeratorAction{
		CommentID: commentID,
		Text:      pending.Text,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}

	res, err := tx.Exec(`INSERT INTO moderator_actions (comment_id, text, action, timestamp) VALUES (?, ?, ?, ?)`,
		record.CommentID, record.Text, record.Action, record.Timestamp)
	if err != nil {
		return nil, err
	}

	record.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit action: %w", err)
	}

	r.logger.Info("Moderator action recorded",
		zap.String("comment_id", commentID),
		zap.String("action", action))

	return record, nil
}

func (r *historyRepository) List() ([]*models.ModeratorAction, error) {
	var actions []*models.ModeratorAction
	query := `SELECT id, comment_id, text, action, timestamp FROM moderator_actions ORDER BY timestamp ASC, id ASC`
	if err := r.db.Select(&actions, query); err != nil {
		return nil, err
	}
	return actions, nil
}

func (r *historyRepository) LatestByComment() ([]*models.ModeratorAction, error) {
	var actions []*models.ModeratorAction
	// id is monotonic within the append-only log, so MAX(id) picks the
	// latest verdict even when two actions share a timestamp.
	query := `
		SELECT a.id, a.comment_id, a.text, a.action, a.timestamp
		FROM moderator_actions a
		JOIN (
			SELECT comment_id, MAX(id) AS max_id
			FROM moderator_actions
			GROUP BY comment_id
		) latest ON a.id = latest.max_id
		ORDER BY a.id ASC
	`
	if err := r.db.Select(&actions, query); err != nil {
		return nil, err
	}
	return actions, nil
}
