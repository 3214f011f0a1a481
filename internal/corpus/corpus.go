package corpus

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"moderation-service/internal/models"
)

// Training labels: approved feedback confirms the flag.
const (
	LabelNegative = 0
	LabelPositive = 1
)

// Sample is one labeled text in a corpus snapshot.
type Sample struct {
	Text  string
	Label int
}

// Snapshot is an immutable, versioned training corpus built from the base
// dataset plus accumulated moderator feedback. Each snapshot feeds exactly
// one training run.
type Snapshot struct {
	Version       string
	CreatedAt     time.Time
	Samples       []Sample
	FeedbackCount int
	BaseCount     int
}

// FeedbackSource yields the latest moderator verdict per comment id.
type FeedbackSource interface {
	LatestByComment() ([]*models.ModeratorAction, error)
}

// Builder assembles corpus snapshots.
type Builder struct {
	feedback FeedbackSource
	basePath string
	logger   *zap.Logger
}

func NewBuilder(feedback FeedbackSource, basePath string, logger *zap.Logger) *Builder {
	return &Builder{
		feedback: feedback,
		basePath: basePath,
		logger:   logger,
	}
}

// Build merges the base dataset with moderator feedback. Feedback takes
// precedence: a base row whose text already has a verdict is dropped rather
// than counted twice.
func (b *Builder) Build() (*Snapshot, error) {
	actions, err := b.feedback.LatestByComment()
	if err != nil {
		return nil, fmt.Errorf("failed to load moderator feedback: %w", err)
	}

	snap := &Snapshot{
		Version:   uuid.New().String(),
		CreatedAt: time.Now().UTC(),
	}

	seen := make(map[string]bool)
	for _, a := range actions {
		label := LabelNegative
		if a.Action == models.ActionApproved {
			label = LabelPositive
		} else if a.Action != models.ActionRejected {
			continue
		}
		if seen[a.Text] {
			continue
		}
		seen[a.Text] = true
		snap.Samples = append(snap.Samples, Sample{Text: a.Text, Label: label})
	}
	snap.FeedbackCount = len(snap.Samples)

	base, err := b.loadBase()
	if err != nil {
		return nil, err
	}
	for _, s := range base {
		if seen[s.Text] {
			continue
		}
		seen[s.Text] = true
		snap.Samples = append(snap.Samples, s)
		snap.BaseCount++
	}

	// Fixed-seed shuffle so a rebuilt corpus from identical inputs is
	// byte-for-byte reproducible.
	rng := rand.New(rand.NewSource(42))
	rng.Shuffle(len(snap.Samples), func(i, j int) {
		snap.Samples[i], snap.Samples[j] = snap.Samples[j], snap.Samples[i]
	})

	b.logger.Info("Corpus snapshot built",
		zap.String("version", snap.Version),
		zap.Int("feedback_samples", snap.FeedbackCount),
		zap.Int("base_samples", snap.BaseCount))

	return snap, nil
}

func (b *Builder) loadBase() ([]Sample, error) {
	file, err := os.Open(b.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open base dataset: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 2

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read base dataset: %w", err)
	}

	var samples []Sample
	for i, rec := range records {
		if i == 0 && rec[0] == "text" {
			continue // header
		}
		label, err := strconv.Atoi(rec[1])
		if err != nil || (label != LabelNegative && label != LabelPositive) {
			return nil, fmt.Errorf("base dataset row %d has invalid label %q", i+1, rec[1])
		}
		samples = append(samples, Sample{Text: rec[0], Label: label})
	}
	return samples, nil
}

// WriteCSV writes the snapshot in the text,label format the training script
// consumes.
func (s *Snapshot) WriteCSV(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create corpus file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"text", "label"}); err != nil {
		return err
	}
	for _, sample := range s.Samples {
		if err := writer.Write([]string{sample.Text, strconv.Itoa(sample.Label)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
