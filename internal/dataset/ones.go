package dataset

import (
	"context"
	"errors"
)

// Ones is a fixed-length dataset of identical constant-valued vectors. It
// exists to give the training loop a nonzero number of steps; samples are
// regenerated on access rather than stored.
type Ones struct {
	length int
	dim    int
}

// NewOnes constructs a dataset of length vectors with dim features each.
func NewOnes(length, dim int) *Ones {
	if length <= 0 {
		length = 128
	}
	if dim <= 0 {
		dim = 2
	}
	return &Ones{length: length, dim: dim}
}

// Len returns the number of samples in one epoch.
func (d *Ones) Len() int { return d.length }

// Dim returns the feature width of each sample.
func (d *Ones) Dim() int { return d.dim }

// Sample returns a freshly allocated constant vector.
func (d *Ones) Sample() []float64 {
	v := make([]float64, d.dim)
	for i := range v {
		v[i] = 1.0
	}
	return v
}

// StreamOptions configures the batch loader.
type StreamOptions struct {
	BatchSize  int
	PendingCap int
}

const defaultPendingCap = 8

// Stream delivers batches over a channel until the context is cancelled.
// The dataset is cycled endlessly; epoch boundaries are the caller's
// concern. The error channel is closed with the stream.
func Stream(ctx context.Context, d *Ones, opts StreamOptions) (<-chan [][]float64, <-chan error, error) {
	if d == nil {
		return nil, nil, errors.New("dataset: nil dataset")
	}
	if opts.BatchSize <= 0 {
		return nil, nil, errors.New("dataset: batch size must be > 0")
	}
	if opts.PendingCap <= 0 {
		opts.PendingCap = defaultPendingCap
	}

	out := make(chan [][]float64, opts.PendingCap)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)
		for {
			batch := make([][]float64, 0, opts.BatchSize)
			for i := 0; i < opts.BatchSize; i++ {
				batch = append(batch, d.Sample())
			}
			select {
			case <-ctx.Done():
				return
			case out <- batch:
			}
		}
	}()

	return out, errCh, nil
}
