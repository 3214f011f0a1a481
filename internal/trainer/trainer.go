package trainer

import (
	"context"

	"moderation-service/internal/corpus"
	"moderation-service/internal/models"
)

// Trainer drives one training run over a corpus snapshot. Implementations
// emit progress, epoch_end and model_saved events through emit, and check
// cancelled between epochs; an honored cancellation returns nil. Terminal
// complete/error events belong to the retrain controller, never the trainer.
type Trainer interface {
	Train(ctx context.Context, snap *corpus.Snapshot, cancelled func() bool, emit func(models.TrainingEvent)) error
}
