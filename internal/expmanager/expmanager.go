// Package expmanager wires a training run: log directory, per-rank output
// capture, wall-clock budget, and the optional straggler-detection and
// checkpoint callbacks.
package expmanager

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trainguard/internal/straggler"
	"trainguard/internal/trainer"
)

// Config is the nested experiment-manager block. Field names match the
// YAML accepted by the config loader.
type Config struct {
	// ExplicitLogDir receives the per-rank stdout/stderr logs and any
	// checkpoints. Created if missing.
	ExplicitLogDir string `yaml:"explicit_log_dir"`
	// CreateCheckpointCallback enables periodic weight checkpoints.
	CreateCheckpointCallback bool `yaml:"create_checkpoint_callback"`
	// CreateStragglerDetectionCallback enables the straggler detector.
	CreateStragglerDetectionCallback bool `yaml:"create_straggler_detection_callback"`
	// StragglerDetectionParams configures the detector when enabled.
	// Unset fields fall back to the detector defaults.
	StragglerDetectionParams straggler.Params `yaml:"straggler_detection_params"`
	// MaxTimePerRun bounds the run by wall clock, "DD:HH:MM:SS".
	MaxTimePerRun string `yaml:"max_time_per_run"`
}

// Experiment describes a configured run.
type Experiment struct {
	RunID       uuid.UUID
	LogDir      string
	MaxDuration time.Duration

	// Straggler is the installed detection callback, nil when disabled.
	Straggler *straggler.Callback
}

// Setup prepares the log directory and installs the configured callbacks
// on the trainer. It must run before Fit.
func Setup(tr *trainer.Trainer, cfg Config, logger zerolog.Logger) (*Experiment, error) {
	if tr == nil {
		return nil, errors.New("expmanager: nil trainer")
	}
	if cfg.ExplicitLogDir == "" {
		return nil, errors.New("expmanager: explicit_log_dir is required")
	}
	if err := os.MkdirAll(cfg.ExplicitLogDir, 0o755); err != nil {
		return nil, fmt.Errorf("expmanager: create log dir: %w", err)
	}

	log := logger.With().Str("component", "exp_manager").Logger()

	exp := &Experiment{
		RunID:  uuid.New(),
		LogDir: cfg.ExplicitLogDir,
	}

	if cfg.MaxTimePerRun != "" {
		budget, err := ParseRunBudget(cfg.MaxTimePerRun)
		if err != nil {
			return nil, err
		}
		exp.MaxDuration = budget
		tr.SetMaxDuration(budget)
	}

	// Output capture goes first so later callbacks report into the
	// captured streams.
	tr.AddCallback(&captureCallback{dir: cfg.ExplicitLogDir, logger: log})

	if cfg.CreateStragglerDetectionCallback {
		params := withStragglerDefaults(cfg.StragglerDetectionParams)
		if exp.MaxDuration > 0 {
			interval := time.Duration(params.ReportTimeInterval * float64(time.Second))
			if interval >= exp.MaxDuration {
				return nil, fmt.Errorf(
					"expmanager: report_time_interval %.1fs must be shorter than max_time_per_run %s",
					params.ReportTimeInterval, exp.MaxDuration)
			}
		}
		cb, err := straggler.NewCallback(params, logger)
		if err != nil {
			return nil, err
		}
		tr.AddCallback(cb)
		exp.Straggler = cb
	}

	if cfg.CreateCheckpointCallback {
		tr.AddCallback(&checkpointCallback{
			dir:    cfg.ExplicitLogDir,
			runID:  exp.RunID,
			logger: log,
		})
	}

	log.Info().
		Str("run_id", exp.RunID.String()).
		Str("log_dir", exp.LogDir).
		Dur("max_duration", exp.MaxDuration).
		Bool("straggler_detection", exp.Straggler != nil).
		Bool("checkpointing", cfg.CreateCheckpointCallback).
		Msg("Experiment configured")

	return exp, nil
}

// withStragglerDefaults fills unset params from the detector defaults.
func withStragglerDefaults(p straggler.Params) straggler.Params {
	defaults := straggler.DefaultParams()
	if p.ReportTimeInterval <= 0 {
		p.ReportTimeInterval = defaults.ReportTimeInterval
	}
	if !p.CalcRelativeGPUPerf && !p.CalcIndividualGPUPerf {
		p.CalcRelativeGPUPerf = defaults.CalcRelativeGPUPerf
		p.CalcIndividualGPUPerf = defaults.CalcIndividualGPUPerf
	}
	return p
}

// ParseRunBudget parses a "DD:HH:MM:SS" wall-clock budget.
func ParseRunBudget(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return 0, fmt.Errorf("expmanager: max_time_per_run %q: want DD:HH:MM:SS", s)
	}
	vals := make([]int, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("expmanager: max_time_per_run %q: bad field %q", s, p)
		}
		vals[i] = v
	}
	if vals[1] > 23 || vals[2] > 59 || vals[3] > 59 {
		return 0, fmt.Errorf("expmanager: max_time_per_run %q: field out of range", s)
	}
	d := time.Duration(vals[0])*24*time.Hour +
		time.Duration(vals[1])*time.Hour +
		time.Duration(vals[2])*time.Minute +
		time.Duration(vals[3])*time.Second
	if d == 0 {
		return 0, fmt.Errorf("expmanager: max_time_per_run %q: zero budget", s)
	}
	return d, nil
}
