package retrain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"moderation-service/internal/corpus"
	"moderation-service/internal/models"
)

type builderFunc func() (*corpus.Snapshot, error)

func (f builderFunc) Build() (*corpus.Snapshot, error) { return f() }

type trainerFunc func(ctx context.Context, snap *corpus.Snapshot, cancelled func() bool, emit func(models.TrainingEvent)) error

func (f trainerFunc) Train(ctx context.Context, snap *corpus.Snapshot, cancelled func() bool, emit func(models.TrainingEvent)) error {
	return f(ctx, snap, cancelled, emit)
}

type memRuns struct {
	mu   sync.Mutex
	runs []*models.TrainingRun
}

func (m *memRuns) SaveRun(run *models.TrainingRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memRuns) ListRuns() ([]*models.TrainingRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.TrainingRun(nil), m.runs...), nil
}

func (m *memRuns) saved() []*models.TrainingRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.TrainingRun(nil), m.runs...)
}

func emptyCorpus() builderFunc {
	return func() (*corpus.Snapshot, error) {
		return &corpus.Snapshot{
			Version: "corpus-v1",
			Samples: []corpus.Sample{{Text: "you are stupid", Label: 1}},
		}, nil
	}
}

func waitForState(t *testing.T, ctrl *Controller, state models.RunState) {
	t.Helper()
	require.Eventually(t, func() bool {
		run := ctrl.Status()
		return run != nil && run.State == state
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStartIsSingleWinnerUnderConcurrency(t *testing.T) {
	release := make(chan struct{})
	tr := trainerFunc(func(ctx context.Context, snap *corpus.Snapshot, cancelled func() bool, emit func(models.TrainingEvent)) error {
		<-release
		return nil
	})
	ctrl := NewController(emptyCorpus(), tr, NewBus(16, zap.NewNop()), nil, nil, zap.NewNop())

	const callers = 16
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- ctrl.Start()
		}()
	}
	wg.Wait()
	close(errs)

	var wins, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyRunning):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, callers-1, conflicts)

	close(release)
	waitForState(t, ctrl, models.RunCompleted)
}

func TestRunEmitsOrderedEventsWithOneTerminal(t *testing.T) {
	tr := trainerFunc(func(ctx context.Context, snap *corpus.Snapshot, cancelled func() bool, emit func(models.TrainingEvent)) error {
		emit(models.TrainingEvent{Type: models.EventProgress, Progress: 30})
		emit(models.TrainingEvent{Type: models.EventEpochEnd, Epoch: 1, AvgLoss: 0.52, F1: 0.71})
		emit(models.TrainingEvent{Type: models.EventModelSaved, F1: 0.71})
		emit(models.TrainingEvent{Type: models.EventProgress, Progress: 20}) // regression, must be ignored
		emit(models.TrainingEvent{Type: models.EventProgress, Progress: 60})
		emit(models.TrainingEvent{Type: models.EventEpochEnd, Epoch: 2, AvgLoss: 0.31, F1: 0.84})
		emit(models.TrainingEvent{Type: models.EventModelSaved, F1: 0.84})
		return nil
	})
	ctrl := NewController(emptyCorpus(), tr, NewBus(64, zap.NewNop()), nil, nil, zap.NewNop())

	events, cancel := ctrl.Subscribe()
	defer cancel()

	require.NoError(t, ctrl.Start())

	var got []models.TrainingEvent
	for evt := range events {
		got = append(got, evt)
	}

	require.Equal(t, models.EventTrainingStarted, got[0].Type)
	require.Equal(t, models.EventSummary, got[1].Type)
	require.Equal(t, 1, got[1].TotalSamples)
	require.Equal(t, "corpus-v1", got[1].CorpusVersion)

	terminals := 0
	lastEpoch := 0
	lastProgress := 0
	for _, evt := range got {
		switch evt.Type {
		case models.EventComplete, models.EventError:
			terminals++
		case models.EventProgress:
			require.Greater(t, evt.Progress, lastProgress) // regression suppressed
			require.LessOrEqual(t, evt.Progress, 100)
			lastProgress = evt.Progress
		case models.EventEpochEnd:
			require.Equal(t, lastEpoch+1, evt.Epoch)
			lastEpoch = evt.Epoch
		}
	}
	require.Equal(t, 1, terminals)
	require.Equal(t, models.EventComplete, got[len(got)-1].Type)
	require.NotNil(t, got[len(got)-1].BestF1)
	require.InDelta(t, 0.84, *got[len(got)-1].BestF1, 1e-9)

	run := ctrl.Status()
	require.Equal(t, models.RunCompleted, run.State)
	require.Equal(t, 100, run.Progress) // forced to 100 on uncancelled completion
	require.Len(t, run.Epochs, 2)
	require.False(t, run.Cancelled)
}

func TestProgressIsMonotonicOnStatus(t *testing.T) {
	step := make(chan int)
	done := make(chan struct{})
	tr := trainerFunc(func(ctx context.Context, snap *corpus.Snapshot, cancelled func() bool, emit func(models.TrainingEvent)) error {
		defer close(done)
		for p := range step {
			emit(models.TrainingEvent{Type: models.EventProgress, Progress: p})
		}
		return nil
	})
	ctrl := NewController(emptyCorpus(), tr, NewBus(16, zap.NewNop()), nil, nil, zap.NewNop())
	require.NoError(t, ctrl.Start())

	feed := func(p, want int) {
		step <- p
		require.Eventually(t, func() bool { return ctrl.Status().Progress == want }, time.Second, time.Millisecond)
	}
	feed(40, 40)
	feed(10, 40)  // regression ignored
	feed(140, 40) // out of range ignored
	feed(90, 90)

	close(step)
	<-done
	waitForState(t, ctrl, models.RunCompleted)
}

func TestCancelTwiceHasOneEffect(t *testing.T) {
	release := make(chan struct{})
	var sawCancel bool
	tr := trainerFunc(func(ctx context.Context, snap *corpus.Snapshot, cancelled func() bool, emit func(models.TrainingEvent)) error {
		<-release
		sawCancel = cancelled()
		return nil
	})
	runs := &memRuns{}
	ctrl := NewController(emptyCorpus(), tr, NewBus(16, zap.NewNop()), runs, nil, zap.NewNop())

	require.False(t, ctrl.Cancel()) // no run yet

	require.NoError(t, ctrl.Start())
	waitForState(t, ctrl, models.RunRunning)

	require.True(t, ctrl.Cancel())
	require.False(t, ctrl.Cancel()) // already cancelling
	require.Equal(t, models.RunCancelling, ctrl.Status().State)

	close(release)
	waitForState(t, ctrl, models.RunCompleted)
	require.True(t, sawCancel)

	run := ctrl.Status()
	require.True(t, run.Cancelled)
	require.NotNil(t, run.EndedAt)

	saved := runs.saved()
	require.Len(t, saved, 1)
	require.True(t, saved[0].Cancelled)
}

func TestTrainerFailureEndsRunAsFailed(t *testing.T) {
	boom := errors.New("training script exited with code 1")
	tr := trainerFunc(func(ctx context.Context, snap *corpus.Snapshot, cancelled func() bool, emit func(models.TrainingEvent)) error {
		emit(models.TrainingEvent{Type: models.EventProgress, Progress: 15})
		return boom
	})
	runs := &memRuns{}
	ctrl := NewController(emptyCorpus(), tr, NewBus(16, zap.NewNop()), runs, nil, zap.NewNop())

	events, cancel := ctrl.Subscribe()
	defer cancel()
	require.NoError(t, ctrl.Start())

	var got []models.TrainingEvent
	for evt := range events {
		got = append(got, evt)
	}
	last := got[len(got)-1]
	require.Equal(t, models.EventError, last.Type)
	require.Equal(t, boom.Error(), last.Message)

	run := ctrl.Status()
	require.Equal(t, models.RunFailed, run.State)
	require.Equal(t, boom.Error(), run.ErrorMessage)

	saved := runs.saved()
	require.Len(t, saved, 1)
	require.Equal(t, models.RunFailed, saved[0].State)
}

func TestCorpusBuildFailureEndsRunAsFailed(t *testing.T) {
	builder := builderFunc(func() (*corpus.Snapshot, error) {
		return nil, errors.New("failed to open base dataset")
	})
	tr := trainerFunc(func(ctx context.Context, snap *corpus.Snapshot, cancelled func() bool, emit func(models.TrainingEvent)) error {
		t.Error("trainer must not run when the corpus build fails")
		return nil
	})
	ctrl := NewController(builder, tr, NewBus(16, zap.NewNop()), nil, nil, zap.NewNop())

	require.NoError(t, ctrl.Start())
	waitForState(t, ctrl, models.RunFailed)
	require.Contains(t, ctrl.Status().ErrorMessage, "base dataset")
}

func TestRestartDiscardsPreviousRunResults(t *testing.T) {
	var runNo int
	tr := trainerFunc(func(ctx context.Context, snap *corpus.Snapshot, cancelled func() bool, emit func(models.TrainingEvent)) error {
		if runNo == 0 {
			emit(models.TrainingEvent{Type: models.EventEpochEnd, Epoch: 1, F1: 0.6})
			emit(models.TrainingEvent{Type: models.EventModelSaved, F1: 0.6})
		}
		runNo++
		return nil
	})
	ctrl := NewController(emptyCorpus(), tr, NewBus(16, zap.NewNop()), nil, nil, zap.NewNop())

	require.NoError(t, ctrl.Start())
	waitForState(t, ctrl, models.RunCompleted)
	first := ctrl.Status()
	require.Len(t, first.Epochs, 1)
	require.NotNil(t, first.BestF1)

	require.NoError(t, ctrl.Start())
	waitForState(t, ctrl, models.RunCompleted)
	second := ctrl.Status()
	require.NotEqual(t, first.ID, second.ID)
	require.Empty(t, second.Epochs)
	require.Nil(t, second.BestF1)
}

func TestMidRunSubscriberGetsStateSnapshot(t *testing.T) {
	primed := make(chan struct{})
	release := make(chan struct{})
	tr := trainerFunc(func(ctx context.Context, snap *corpus.Snapshot, cancelled func() bool, emit func(models.TrainingEvent)) error {
		emit(models.TrainingEvent{Type: models.EventProgress, Progress: 55})
		emit(models.TrainingEvent{Type: models.EventEpochEnd, Epoch: 3, F1: 0.77})
		emit(models.TrainingEvent{Type: models.EventModelSaved, F1: 0.77})
		close(primed)
		<-release
		return nil
	})
	ctrl := NewController(emptyCorpus(), tr, NewBus(16, zap.NewNop()), nil, nil, zap.NewNop())
	require.NoError(t, ctrl.Start())
	<-primed

	events, cancel := ctrl.Subscribe()
	defer cancel()

	snapshot := <-events
	require.Equal(t, models.EventState, snapshot.Type)
	require.Equal(t, models.RunRunning, snapshot.State)
	require.Equal(t, 55, snapshot.Progress)
	require.Equal(t, 3, snapshot.Epoch)
	require.NotNil(t, snapshot.BestF1)
	require.InDelta(t, 0.77, *snapshot.BestF1, 1e-9)

	close(release)
	waitForState(t, ctrl, models.RunCompleted)

	// Idle controllers hand out a live channel with no snapshot.
	idleEvents, idleCancel := ctrl.Subscribe()
	defer idleCancel()
	select {
	case evt := <-idleEvents:
		t.Fatalf("unexpected event on idle subscribe: %+v", evt)
	default:
	}
}
