package repository

import (
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"moderation-service/internal/models"
)

type QueueRepository interface {
	// Enqueue inserts a flagged comment unless one with the same id is
	// already pending (first write wins). Returns whether a row was inserted.
	Enqueue(comment *models.FlaggedComment) (bool, error)
	// List returns pending comments matching both filters: a case-insensitive
	// substring match against text or id, and an inclusive confidence floor.
	List(search string, minConfidence float64) ([]*models.FlaggedComment, error)
	// Remove deletes a pending comment without recording history. Removing an
	// absent id is a no-op; the bool reports whether a deletion occurred.
	Remove(commentID string) (bool, error)
}

type queueRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewQueueRepository(db *sqlx.DB, logger *zap.Logger) QueueRepository {
	return &queueRepository{db: db, logger: logger}
}

func (r *queueRepository) Enqueue(comment *models.FlaggedComment) (bool, error) {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO pending_comments (comment_id, text, confidence, created_at)
	          VALUES (?, ?, ?, ?)
	          ON CONFLICT(comment_id) DO NOTHING`
	res, err := r.db.Exec(query, comment.CommentID, comment.Text, comment.Confidence, comment.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to enqueue comment", zap.String("comment_id", comment.CommentID), zap.Error(err))
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *queueRepository) List(search string, minConfidence float64) ([]*models.FlaggedComment, error) {
	query := `SELECT comment_id, text, confidence, created_at FROM pending_comments
	          WHERE confidence >= ?`
	args := []interface{}{minConfidence}

	if search != "" {
		query += ` AND (LOWER(text) LIKE ? OR LOWER(comment_id) LIKE ?)`
		pattern := "%" + strings.ToLower(search) + "%"
		args = append(args, pattern, pattern)
	}

	query += ` ORDER BY created_at ASC, comment_id ASC`

	var comments []*models.FlaggedComment
	if err := r.db.Select(&comments, query, args...); err != nil {
		return nil, err
	}
	return comments, nil
}

func (r *queueRepository) Remove(commentID string) (bool, error) {
	res, err := r.db.Exec(`DELETE FROM pending_comments WHERE comment_id = ?`, commentID)
	if err != nil {
		r.logger.Error("Failed to remove comment from queue", zap.String("comment_id", commentID), zap.Error(err))
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
