package trainer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"moderation-service/internal/corpus"
	"moderation-service/internal/models"
)

// ScriptTrainer runs the retraining script as a subprocess and decodes the
// JSON event lines it prints to stdout. Cancellation is cooperative: when the
// cancel flag flips, the process receives a single interrupt and is expected
// to finish the in-flight epoch and exit cleanly.
type ScriptTrainer struct {
	python  string
	script  string
	workDir string
	logger  *zap.Logger
}

func NewScriptTrainer(python, script, workDir string, logger *zap.Logger) *ScriptTrainer {
	if python == "" {
		python = "python3"
	}
	return &ScriptTrainer{
		python:  python,
		script:  script,
		workDir: workDir,
		logger:  logger,
	}
}

func (t *ScriptTrainer) Train(ctx context.Context, snap *corpus.Snapshot, cancelled func() bool, emit func(models.TrainingEvent)) error {
	if err := os.MkdirAll(t.workDir, 0755); err != nil {
		return fmt.Errorf("failed to create training work dir: %w", err)
	}

	corpusPath := filepath.Join(t.workDir, "merged_train.csv")
	if err := snap.WriteCSV(corpusPath); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, t.python, "-u", t.script, corpusPath)
	cmd.Dir = t.workDir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open trainer stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start trainer script: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go t.watchCancel(done, cancelled, cmd)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var evt models.TrainingEvent
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			emit(models.TrainingEvent{Type: models.EventRaw, Line: line})
			continue
		}

		switch evt.Type {
		case models.EventProgress, models.EventEpochEnd, models.EventModelSaved:
			emit(evt)
		case models.EventTrainingStarted, models.EventSummary, models.EventComplete, models.EventError:
			// The controller owns these; the script's own copies are markers.
			t.logger.Debug("Trainer lifecycle line", zap.String("type", evt.Type))
		default:
			emit(models.TrainingEvent{Type: models.EventRaw, Line: line})
		}
	}
	if err := scanner.Err(); err != nil {
		_ = cmd.Wait()
		return fmt.Errorf("failed to read trainer output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		if cancelled() || ctx.Err() != nil {
			// An interrupted script may exit non-zero; that is still an
			// honored cancellation, not a failure.
			return nil
		}
		return fmt.Errorf("trainer script failed: %w: %s", err, tail(stderr.String(), 512))
	}
	return nil
}

// watchCancel polls the cancel flag and interrupts the script once. The
// in-flight epoch is allowed to finish; the script exits at the boundary.
func (t *ScriptTrainer) watchCancel(done <-chan struct{}, cancelled func() bool, cmd *exec.Cmd) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !cancelled() {
				continue
			}
			t.logger.Info("Interrupting trainer script for cooperative cancellation")
			if err := cmd.Process.Signal(os.Interrupt); err != nil {
				t.logger.Warn("Failed to interrupt trainer script", zap.Error(err))
			}
			return
		}
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
