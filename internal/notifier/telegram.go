package notifier

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"moderation-service/internal/config"
	"moderation-service/internal/models"
)

// Telegram pushes moderation and retraining notifications to a moderator
// chat. All methods are safe on a nil receiver so callers don't have to
// special-case a disabled notifier.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

// NewTelegram creates the notifier, or (nil, nil) when notifications are
// disabled in config.
func NewTelegram(cfg *config.Config, logger *zap.Logger) (*Telegram, error) {
	if !cfg.Notifications.Enabled || cfg.Notifications.TelegramBotToken == "" {
		logger.Info("Telegram notifier is disabled (notifications.enabled=false or token is empty)")
		return nil, nil
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Notifications.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot API: %w", err)
	}

	logger.Info("Telegram notifier authorized", zap.String("username", botAPI.Self.UserName))

	return &Telegram{
		api:    botAPI,
		chatID: cfg.Notifications.ChatID,
		logger: logger,
	}, nil
}

// CommentFlagged notifies moderators about a newly queued comment.
func (t *Telegram) CommentFlagged(comment *models.FlaggedComment) {
	if t == nil {
		return
	}
	text := fmt.Sprintf("🚩 New flagged comment %s (confidence %.0f%%) awaiting review",
		comment.CommentID, comment.Confidence*100)
	t.send(text)
}

// RunFinished notifies moderators about a finished retraining run.
func (t *Telegram) RunFinished(run *models.TrainingRun) {
	if t == nil {
		return
	}

	var text string
	switch {
	case run.State == models.RunFailed:
		text = fmt.Sprintf("❌ Retraining run failed: %s", run.ErrorMessage)
	case run.Cancelled:
		text = fmt.Sprintf("⏹ Retraining run cancelled after %d epoch(s)", len(run.Epochs))
	default:
		best := "n/a"
		if run.BestF1 != nil {
			best = fmt.Sprintf("%.4f", *run.BestF1)
		}
		text = fmt.Sprintf("✅ Retraining run completed, best F1 %s over %d epoch(s)", best, len(run.Epochs))
	}
	t.send(text)
}

func (t *Telegram) send(text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.api.Send(msg); err != nil {
		t.logger.Error("Failed to send Telegram notification", zap.Error(err))
	}
}
