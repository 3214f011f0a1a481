package models

import "time"

// Moderator verdicts on a flagged comment. These double as training labels:
// approved confirms the flag (positive sample), rejected overturns it.
const (
	ActionApproved = "approved"
	ActionRejected = "rejected"
)

// FlaggedComment represents a row in the 'pending_comments' table: a comment
// the classifier flagged as cyberbullying, awaiting moderator review.
type FlaggedComment struct {
	CommentID  string    `db:"comment_id" json:"comment_id"`
	Text       string    `db:"text" json:"text"`
	Confidence float64   `db:"confidence" json:"confidence"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ModeratorAction represents a row in the append-only 'moderator_actions'
// table. Text is a snapshot of the comment at the time of the verdict; the
// pending row is gone by then.
type ModeratorAction struct {
	ID        int64     `db:"id" json:"id"`
	CommentID string    `db:"comment_id" json:"comment_id"`
	Text      string    `db:"text" json:"text"`
	Action    string    `db:"action" json:"action"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}
