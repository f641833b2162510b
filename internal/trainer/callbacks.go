package trainer

import (
	"time"
)

// Callback receives lifecycle hooks from a training run. Implementations
// typically embed Hooks and override what they need.
type Callback interface {
	// OnTrainStart fires once before the first step.
	OnTrainStart(run *Run) error
	// OnTrainBatchEnd fires after every optimizer step with the compute time
	// spent on the batch.
	OnTrainBatchEnd(run *Run, step int, batchSize int, compute time.Duration) error
	// OnValidationEnd fires after each validation pass with the mean loss.
	OnValidationEnd(run *Run, loss float64) error
	// OnTrainEnd fires once after the last step, budget expiry included.
	OnTrainEnd(run *Run) error
}

// Hooks is a no-op Callback for embedding.
type Hooks struct{}

func (Hooks) OnTrainStart(*Run) error { return nil }

func (Hooks) OnTrainBatchEnd(*Run, int, int, time.Duration) error { return nil }

func (Hooks) OnValidationEnd(*Run, float64) error { return nil }

func (Hooks) OnTrainEnd(*Run) error { return nil }
