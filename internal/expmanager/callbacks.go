package expmanager

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trainguard/internal/logtee"
	"trainguard/internal/model"
	"trainguard/internal/trainer"
)

// captureCallback redirects the process stdout/stderr into per-rank log
// files for the duration of the run and restores them afterwards.
type captureCallback struct {
	trainer.Hooks
	dir     string
	logger  zerolog.Logger
	capture *logtee.Capture
}

func (c *captureCallback) OnTrainStart(run *trainer.Run) error {
	capture, err := logtee.CaptureStdio(c.dir, run.Rank)
	if err != nil {
		return err
	}
	c.capture = capture
	c.logger.Info().Int("rank", run.Rank).Str("dir", c.dir).Msg("Capturing rank output")
	return nil
}

func (c *captureCallback) OnTrainEnd(run *trainer.Run) error {
	if c.capture == nil {
		return nil
	}
	return c.capture.Release()
}

// checkpointCallback writes a weight snapshot after every validation pass.
type checkpointCallback struct {
	trainer.Hooks
	dir    string
	runID  uuid.UUID
	logger zerolog.Logger
}

type snapshotter interface {
	Snapshot() model.Weights
}

func (c *checkpointCallback) OnValidationEnd(run *trainer.Run, loss float64) error {
	s, ok := run.Model.(snapshotter)
	if !ok {
		return nil
	}
	ckptDir := filepath.Join(c.dir, "checkpoints")
	if err := os.MkdirAll(ckptDir, 0o755); err != nil {
		return fmt.Errorf("expmanager: create checkpoint dir: %w", err)
	}

	payload := struct {
		RunID   string        `json:"run_id"`
		Step    int           `json:"step"`
		ValLoss float64       `json:"val_loss"`
		Weights model.Weights `json:"weights"`
	}{
		RunID:   c.runID.String(),
		Step:    run.Step,
		ValLoss: loss,
		Weights: s.Snapshot(),
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("expmanager: encode checkpoint: %w", err)
	}

	path := filepath.Join(ckptDir, fmt.Sprintf("%s-step%06d.json", c.runID, run.Step))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("expmanager: write checkpoint: %w", err)
	}
	c.logger.Debug().Str("path", path).Int("step", run.Step).Msg("Checkpoint written")
	return nil
}
