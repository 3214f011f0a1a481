package retrain

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"moderation-service/internal/corpus"
	"moderation-service/internal/models"
	"moderation-service/internal/repository"
	"moderation-service/internal/trainer"
)

// ErrAlreadyRunning is returned by Start while a run is in progress.
var ErrAlreadyRunning = errors.New("retraining already in progress")

// CorpusBuilder produces the training corpus snapshot for a run.
type CorpusBuilder interface {
	Build() (*corpus.Snapshot, error)
}

// Notifier is told when a run reaches a terminal state.
type Notifier interface {
	RunFinished(run *models.TrainingRun)
}

// Controller owns the singleton retraining job. At most one run is in the
// running or cancelling state at any time; Start is compare-and-swap safe
// under concurrent callers and the losers get ErrAlreadyRunning.
type Controller struct {
	mu        sync.Mutex
	run       *models.TrainingRun
	cancelled bool

	builder  CorpusBuilder
	trainer  trainer.Trainer
	bus      *Bus
	runs     repository.RunRepository
	notifier Notifier
	logger   *zap.Logger
}

// NewController creates the retrain controller. runs and notifier may be nil.
func NewController(builder CorpusBuilder, tr trainer.Trainer, bus *Bus, runs repository.RunRepository, notifier Notifier, logger *zap.Logger) *Controller {
	return &Controller{
		builder:  builder,
		trainer:  tr,
		bus:      bus,
		runs:     runs,
		notifier: notifier,
		logger:   logger,
	}
}

// Start transitions the controller to running and kicks off the training run
// in the background. Starting over a completed or failed run discards its
// epoch history and best-F1 marker.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.run != nil && (c.run.State == models.RunRunning || c.run.State == models.RunCancelling) {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}

	run := &models.TrainingRun{
		ID:        uuid.New().String(),
		State:     models.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	c.run = run
	c.cancelled = false
	c.mu.Unlock()

	c.logger.Info("Retrain triggered", zap.String("run_id", run.ID))
	go c.execute(run)
	return nil
}

// Cancel requests cooperative cancellation of the active run. The trainer
// observes the flag at epoch boundaries; an in-flight epoch finishes.
// Returns whether this call was the effective cancellation; cancelling an
// already-cancelling or idle controller is a no-op.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run == nil || c.run.State != models.RunRunning {
		return false
	}
	c.run.State = models.RunCancelling
	c.cancelled = true
	c.logger.Info("Retrain cancellation requested", zap.String("run_id", c.run.ID))
	return true
}

// Status returns a copy of the current (or last) run, nil before the first.
func (c *Controller) Status() *models.TrainingRun {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run == nil {
		return nil
	}
	snapshot := *c.run
	snapshot.Epochs = append([]models.EpochMetric(nil), c.run.Epochs...)
	if c.run.BestF1 != nil {
		v := *c.run.BestF1
		snapshot.BestF1 = &v
	}
	return &snapshot
}

// Subscribe attaches an event stream subscriber. A subscriber joining mid-run
// first receives a synthetic state event carrying the current progress and
// last epoch, so it never starts from a blank render.
func (c *Controller) Subscribe() (<-chan models.TrainingEvent, func()) {
	c.mu.Lock()
	var snapshot *models.TrainingEvent
	if c.run != nil && (c.run.State == models.RunRunning || c.run.State == models.RunCancelling) {
		s := models.TrainingEvent{
			Type:     models.EventState,
			State:    c.run.State,
			Progress: c.run.Progress,
		}
		if n := len(c.run.Epochs); n > 0 {
			s.Epoch = c.run.Epochs[n-1].Epoch
		}
		if c.run.BestF1 != nil {
			v := *c.run.BestF1
			s.BestF1 = &v
		}
		snapshot = &s
	}
	c.mu.Unlock()

	return c.bus.Subscribe(snapshot)
}

func (c *Controller) isCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

func (c *Controller) execute(run *models.TrainingRun) {
	snap, err := c.builder.Build()
	if err != nil {
		c.finish(run, err)
		return
	}

	c.mu.Lock()
	run.CorpusVersion = snap.Version
	c.mu.Unlock()

	c.bus.Publish(models.TrainingEvent{Type: models.EventTrainingStarted})
	c.bus.Publish(models.TrainingEvent{
		Type:          models.EventSummary,
		TotalSamples:  len(snap.Samples),
		CorpusVersion: snap.Version,
	})

	err = c.trainer.Train(context.Background(), snap, c.isCancelled, c.handleEvent)
	c.finish(run, err)
}

// handleEvent records a trainer event on the run and republishes it.
func (c *Controller) handleEvent(evt models.TrainingEvent) {
	c.mu.Lock()
	switch evt.Type {
	case models.EventProgress:
		// Progress is monotonic non-decreasing within a run; a regressed or
		// out-of-range value is dropped rather than streamed.
		if evt.Progress <= c.run.Progress || evt.Progress > 100 {
			c.mu.Unlock()
			return
		}
		c.run.Progress = evt.Progress
	case models.EventEpochEnd:
		c.run.Epochs = append(c.run.Epochs, models.EpochMetric{
			Epoch:   evt.Epoch,
			AvgLoss: evt.AvgLoss,
			F1:      evt.F1,
		})
	case models.EventModelSaved:
		// The trainer only reports checkpoint saves for improving F1; record
		// its value without second-guessing it.
		f1 := evt.F1
		c.run.BestF1 = &f1
	}
	c.mu.Unlock()

	c.bus.Publish(evt)
}

func (c *Controller) finish(run *models.TrainingRun, err error) {
	c.mu.Lock()
	now := time.Now().UTC()
	run.EndedAt = &now

	var terminal models.TrainingEvent
	if err != nil {
		run.State = models.RunFailed
		run.ErrorMessage = err.Error()
		terminal = models.TrainingEvent{Type: models.EventError, Message: err.Error()}
	} else {
		run.State = models.RunCompleted
		run.Cancelled = c.cancelled
		if !run.Cancelled && run.Progress < 100 {
			run.Progress = 100
		}
		terminal = models.TrainingEvent{
			Type:      models.EventComplete,
			BestF1:    run.BestF1,
			Cancelled: run.Cancelled,
		}
	}
	c.mu.Unlock()

	c.bus.Publish(terminal)
	c.bus.CloseAll()

	if c.runs != nil {
		if saveErr := c.runs.SaveRun(run); saveErr != nil {
			c.logger.Error("Failed to persist training run", zap.String("run_id", run.ID), zap.Error(saveErr))
		}
	}
	if c.notifier != nil {
		c.notifier.RunFinished(run)
	}

	if err != nil {
		c.logger.Error("Training run failed", zap.String("run_id", run.ID), zap.Error(err))
	} else {
		c.logger.Info("Training run finished",
			zap.String("run_id", run.ID),
			zap.Bool("cancelled", run.Cancelled),
			zap.Int("epochs", len(run.Epochs)))
	}
}
