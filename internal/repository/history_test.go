package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"moderation-service/internal/models"
)

func TestRecordActionMovesCommentToHistory(t *testing.T) {
	db := newTestDB(t)
	queue := NewQueueRepository(db, zap.NewNop())
	history := NewHistoryRepository(db, zap.NewNop())

	_, err := queue.Enqueue(&models.FlaggedComment{CommentID: "c1", Text: "you are stupid", Confidence: 0.91})
	require.NoError(t, err)

	record, err := history.RecordAction("c1", models.ActionApproved)
	require.NoError(t, err)
	require.Equal(t, "c1", record.CommentID)
	require.Equal(t, "you are stupid", record.Text)
	require.Equal(t, models.ActionApproved, record.Action)
	require.NotZero(t, record.ID)

	// The comment left the queue...
	comments, err := queue.List("", 0)
	require.NoError(t, err)
	require.Empty(t, comments)

	// ...and exactly one history record exists for it.
	actions, err := history.List()
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, models.ActionApproved, actions[0].Action)

	// Acting on it again reports stale state and writes nothing.
	_, err = history.RecordAction("c1", models.ActionRejected)
	require.ErrorIs(t, err, ErrNotPending)

	actions, err = history.List()
	require.NoError(t, err)
	require.Len(t, actions, 1)
}

func TestRecordActionUnknownComment(t *testing.T) {
	db := newTestDB(t)
	history := NewHistoryRepository(db, zap.NewNop())

	_, err := history.RecordAction("ghost", models.ActionApproved)
	require.ErrorIs(t, err, ErrNotPending)

	actions, err := history.List()
	require.NoError(t, err)
	require.Empty(t, actions)
}

func TestDeleteCreatesNoHistory(t *testing.T) {
	db := newTestDB(t)
	queue := NewQueueRepository(db, zap.NewNop())
	history := NewHistoryRepository(db, zap.NewNop())

	_, err := queue.Enqueue(&models.FlaggedComment{CommentID: "c1", Text: "text", Confidence: 0.9})
	require.NoError(t, err)

	removed, err := queue.Remove("c1")
	require.NoError(t, err)
	require.True(t, removed)

	actions, err := history.List()
	require.NoError(t, err)
	require.Empty(t, actions)
}

func TestHistoryOrderAndLatestByComment(t *testing.T) {
	db := newTestDB(t)
	queue := NewQueueRepository(db, zap.NewNop())
	history := NewHistoryRepository(db, zap.NewNop())

	// The same comment can be flagged again after being actioned; the audit
	// trail keeps both verdicts, the merger only sees the latest.
	_, err := queue.Enqueue(&models.FlaggedComment{CommentID: "c1", Text: "first pass", Confidence: 0.9})
	require.NoError(t, err)
	_, err = history.RecordAction("c1", models.ActionApproved)
	require.NoError(t, err)

	_, err = queue.Enqueue(&models.FlaggedComment{CommentID: "c2", Text: "other", Confidence: 0.8})
	require.NoError(t, err)
	_, err = history.RecordAction("c2", models.ActionApproved)
	require.NoError(t, err)

	_, err = queue.Enqueue(&models.FlaggedComment{CommentID: "c1", Text: "second pass", Confidence: 0.95})
	require.NoError(t, err)
	_, err = history.RecordAction("c1", models.ActionRejected)
	require.NoError(t, err)

	all, err := history.List()
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		require.False(t, all[i].Timestamp.Before(all[i-1].Timestamp))
	}

	latest, err := history.LatestByComment()
	require.NoError(t, err)
	require.Len(t, latest, 2)

	byID := map[string]*models.ModeratorAction{}
	for _, a := range latest {
		byID[a.CommentID] = a
	}
	require.Equal(t, models.ActionRejected, byID["c1"].Action)
	require.Equal(t, "second pass", byID["c1"].Text)
	require.Equal(t, models.ActionApproved, byID["c2"].Action)
}
