// Package trainer drives a model through a bounded training run with
// lifecycle callbacks, single-process scaffolding for multi-rank layouts.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"trainguard/internal/dataset"
	"trainguard/internal/hardware"
	"trainguard/internal/metrics"
	"trainguard/internal/model"
)

// Supported strategies and accelerators.
const (
	StrategyDDP    = "ddp"
	StrategySingle = "single"

	AcceleratorGPU = "gpu"
	AcceleratorCPU = "cpu"
)

// Rank environment, mirroring the usual launcher contract.
const (
	RankEnv      = "RANK"
	WorldSizeEnv = "WORLD_SIZE"
)

// ErrNoAccelerator indicates the requested accelerator is not present.
var ErrNoAccelerator = errors.New("trainer: requested accelerator not available")

// Options configure a training run. The set is fixed before Fit and
// immutable for the run's duration.
type Options struct {
	Strategy         string
	Devices          int
	Accelerator      string
	MaxSteps         int
	ValCheckInterval float64
	BatchSize        int
	LogEvery         int

	// EnableProgressLog controls the periodic step log line.
	EnableProgressLog bool
}

// Run carries per-run state visible to callbacks.
type Run struct {
	Rank      int
	WorldSize int
	StartedAt time.Time
	Model     model.Model

	// Step is the last completed optimizer step.
	Step int
}

// Trainer owns the run loop.
type Trainer struct {
	opts        Options
	logger      zerolog.Logger
	callbacks   []Callback
	maxDuration time.Duration
	rank        int
	worldSize   int
}

// New validates the options and builds a trainer. The gpu accelerator
// requires visible GPU hardware.
func New(opts Options, logger zerolog.Logger) (*Trainer, error) {
	if opts.Strategy == "" {
		opts.Strategy = StrategySingle
	}
	if opts.Strategy != StrategyDDP && opts.Strategy != StrategySingle {
		return nil, fmt.Errorf("trainer: unknown strategy %q", opts.Strategy)
	}
	if opts.Devices <= 0 {
		opts.Devices = 1
	}
	if opts.Accelerator == "" {
		opts.Accelerator = AcceleratorCPU
	}
	switch opts.Accelerator {
	case AcceleratorCPU:
	case AcceleratorGPU:
		if !hardware.HasGPU() {
			return nil, fmt.Errorf("%w: gpu", ErrNoAccelerator)
		}
	default:
		return nil, fmt.Errorf("trainer: unknown accelerator %q", opts.Accelerator)
	}
	if opts.MaxSteps <= 0 {
		return nil, fmt.Errorf("trainer: max steps must be > 0 (got %d)", opts.MaxSteps)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 2
	}
	if opts.ValCheckInterval < 0 || opts.ValCheckInterval > 1 {
		return nil, fmt.Errorf("trainer: val check interval must be in [0,1] (got %f)", opts.ValCheckInterval)
	}
	if opts.LogEvery <= 0 {
		opts.LogEvery = 50
	}

	return &Trainer{
		opts:      opts,
		logger:    logger.With().Str("component", "trainer").Logger(),
		rank:      envInt(RankEnv, 0),
		worldSize: envInt(WorldSizeEnv, 1),
	}, nil
}

// Rank returns this process's rank within the training group.
func (t *Trainer) Rank() int { return t.rank }

// WorldSize returns the size of the training group.
func (t *Trainer) WorldSize() int { return t.worldSize }

// AddCallback registers a lifecycle callback. Must be called before Fit.
func (t *Trainer) AddCallback(cb Callback) {
	t.callbacks = append(t.callbacks, cb)
}

// SetMaxDuration bounds the run by wall clock. Zero means unbounded.
// Budget expiry ends the run cleanly rather than with an error.
func (t *Trainer) SetMaxDuration(d time.Duration) {
	t.maxDuration = d
}

// Fit runs the training loop until MaxSteps, the wall-clock budget, or
// context cancellation, whichever comes first.
func (t *Trainer) Fit(parent context.Context, m model.Model, data *dataset.Ones) error {
	ctx := parent
	var cancel context.CancelFunc
	if t.maxDuration > 0 {
		ctx, cancel = context.WithTimeout(parent, t.maxDuration)
		defer cancel()
	}

	run := &Run{
		Rank:      t.rank,
		WorldSize: t.worldSize,
		StartedAt: time.Now(),
		Model:     m,
	}

	for _, cb := range t.callbacks {
		if err := cb.OnTrainStart(run); err != nil {
			return fmt.Errorf("trainer: on_train_start: %w", err)
		}
	}

	batches, errCh, err := dataset.Stream(ctx, data, dataset.StreamOptions{BatchSize: t.opts.BatchSize})
	if err != nil {
		return err
	}

	stepsPerEpoch := data.Len() / t.opts.BatchSize
	if stepsPerEpoch <= 0 {
		stepsPerEpoch = 1
	}
	valEvery := 0
	if t.opts.ValCheckInterval > 0 {
		valEvery = int(t.opts.ValCheckInterval * float64(stepsPerEpoch))
		if valEvery <= 0 {
			valEvery = 1
		}
	}

	t.logger.Info().
		Str("strategy", t.opts.Strategy).
		Str("accelerator", t.opts.Accelerator).
		Int("devices", t.opts.Devices).
		Int("rank", t.rank).
		Int("world_size", t.worldSize).
		Int("max_steps", t.opts.MaxSteps).
		Dur("max_duration", t.maxDuration).
		Msg("Starting training run")

	var window metrics.Window

steps:
	for step := 1; step <= t.opts.MaxSteps; step++ {
		startData := time.Now()
		batch, err := nextBatch(ctx, batches, errCh)
		if err != nil {
			if ctx.Err() != nil {
				break steps
			}
			return err
		}
		dataTime := time.Since(startData)

		startCompute := time.Now()
		loss := m.TrainStep(model.Batch{Inputs: batch})
		computeTime := time.Since(startCompute)

		run.Step = step
		window.Record(t.opts.BatchSize, dataTime, computeTime, loss)

		for _, cb := range t.callbacks {
			if err := cb.OnTrainBatchEnd(run, step, t.opts.BatchSize, computeTime); err != nil {
				return fmt.Errorf("trainer: on_train_batch_end: %w", err)
			}
		}

		if t.opts.EnableProgressLog && step%t.opts.LogEvery == 0 {
			snap := window.Snapshot()
			t.logger.Info().
				Int("step", step).
				Float64("samples_per_sec", snap.SamplesPerSec).
				Float64("data_ms", snap.AvgDataMS).
				Float64("compute_ms", snap.AvgComputeMS).
				Float64("loss", snap.LastLoss).
				Msg("train step")
		}

		if valEvery > 0 && step%valEvery == 0 {
			if err := t.validate(ctx, run, m, data); err != nil {
				return err
			}
		}
	}

	for _, cb := range t.callbacks {
		if err := cb.OnTrainEnd(run); err != nil {
			return fmt.Errorf("trainer: on_train_end: %w", err)
		}
	}

	// The wall-clock budget ends the run cleanly; cancellation from the
	// caller is still an error.
	if parent.Err() != nil {
		return parent.Err()
	}
	t.logger.Info().Int("steps", run.Step).Msg("Training run finished")
	return nil
}

func (t *Trainer) validate(ctx context.Context, run *Run, m model.Model, data *dataset.Ones) error {
	valSteps := data.Len() / t.opts.BatchSize
	if valSteps <= 0 {
		valSteps = 1
	}
	total := 0.0
	for i := 0; i < valSteps; i++ {
		if ctx.Err() != nil {
			return nil
		}
		batch := make([][]float64, 0, t.opts.BatchSize)
		for j := 0; j < t.opts.BatchSize; j++ {
			batch = append(batch, data.Sample())
		}
		total += m.EvalStep(model.Batch{Inputs: batch})
	}
	loss := total / float64(valSteps)

	for _, cb := range t.callbacks {
		if err := cb.OnValidationEnd(run, loss); err != nil {
			return fmt.Errorf("trainer: on_validation_end: %w", err)
		}
	}
	if t.opts.EnableProgressLog {
		t.logger.Info().Int("step", run.Step).Float64("val_loss", loss).Msg("validation")
	}
	return nil
}

func nextBatch(ctx context.Context, batches <-chan [][]float64, errs <-chan error) ([][]float64, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case err, ok := <-errs:
			if ok && err != nil {
				return nil, err
			}
			if !ok {
				return nil, errors.New("trainer: batch stream closed")
			}
		case b, ok := <-batches:
			if !ok {
				return nil, errors.New("trainer: batch stream closed")
			}
			return b, nil
		}
	}
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
