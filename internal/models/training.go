package models

import "time"

// RunState is the lifecycle state of a retraining run.
type RunState string

const (
	RunIdle       RunState = "idle"
	RunRunning    RunState = "running"
	RunCancelling RunState = "cancelling"
	RunCompleted  RunState = "completed"
	RunFailed     RunState = "failed"
)

// Training event types, in emission order within a run: training_started and
// summary once, then interleaved progress/epoch_end plus optional model_saved,
// then exactly one of complete or error. "state" is a synthetic snapshot sent
// to subscribers that attach mid-run, "raw" wraps unparseable trainer output.
const (
	EventTrainingStarted = "training_started"
	EventSummary         = "summary"
	EventProgress        = "progress"
	EventEpochEnd        = "epoch_end"
	EventModelSaved      = "model_saved"
	EventComplete        = "complete"
	EventError           = "error"
	EventState           = "state"
	EventRaw             = "raw"
)

// EpochMetric records the trainer's quality metrics for one finished epoch.
type EpochMetric struct {
	Epoch   int     `json:"epoch"`
	AvgLoss float64 `json:"avg_loss"`
	F1      float64 `json:"f1"`
}

// TrainingRun is the singleton retraining job owned by the retrain controller.
// Epochs and Progress live in memory for the duration of the run; the summary
// row persisted in 'training_runs' omits per-epoch metrics.
type TrainingRun struct {
	ID            string        `db:"id" json:"id"`
	State         RunState      `db:"state" json:"state"`
	Progress      int           `db:"progress" json:"progress"`
	Epochs        []EpochMetric `db:"-" json:"epochs,omitempty"`
	BestF1        *float64      `db:"best_f1" json:"best_f1,omitempty"`
	CorpusVersion string        `db:"corpus_version" json:"corpus_version,omitempty"`
	Cancelled     bool          `db:"cancelled" json:"cancelled"`
	ErrorMessage  string        `db:"error_message" json:"error_message,omitempty"`
	StartedAt     time.Time     `db:"started_at" json:"started_at"`
	EndedAt       *time.Time    `db:"ended_at" json:"ended_at,omitempty"`
}

// TrainingEvent is one typed message on the retrain progress stream. The JSON
// field names match the line protocol the retraining script prints.
type TrainingEvent struct {
	Type          string   `json:"type"`
	Progress      int      `json:"progress,omitempty"`
	Epoch         int      `json:"epoch,omitempty"`
	Step          int      `json:"step,omitempty"`
	AvgLoss       float64  `json:"avg_loss,omitempty"`
	F1            float64  `json:"f1,omitempty"`
	BestF1        *float64 `json:"best_f1,omitempty"`
	Epochs        int      `json:"epochs,omitempty"`
	TotalSamples  int      `json:"total_samples,omitempty"`
	CorpusVersion string   `json:"corpus_version,omitempty"`
	State         RunState `json:"state,omitempty"`
	Cancelled     bool     `json:"cancelled,omitempty"`
	Message       string   `json:"message,omitempty"`
	Line          string   `json:"line,omitempty"`
}
