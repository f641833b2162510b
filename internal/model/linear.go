package model

import (
	"math"
	"math/rand"
)

// Linear is a single linear layer trained to drive its output toward zero.
// The loss is the mean absolute deviation of the output from the zero
// vector. Convergence is irrelevant to callers; the layer exists to give a
// training loop real arithmetic to time.
type Linear struct {
	inFeatures  int
	outFeatures int
	weights     []float64
	bias        []float64
	lr          float64
}

// NewLinear constructs the layer with seeded random initialization.
func NewLinear(inFeatures, outFeatures int, lr float64, seed int64) *Linear {
	if inFeatures <= 0 {
		inFeatures = 2
	}
	if outFeatures <= 0 {
		outFeatures = 1
	}
	if lr <= 0 {
		lr = 0.1
	}
	rng := rand.New(rand.NewSource(seed))
	weights := make([]float64, outFeatures*inFeatures)
	for i := range weights {
		weights[i] = (rng.Float64()*2 - 1) * 0.1
	}
	bias := make([]float64, outFeatures)
	return &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weights:     weights,
		bias:        bias,
		lr:          lr,
	}
}

// TrainStep executes one SGD step on the batch and returns the mean
// absolute deviation of the output from zero.
func (m *Linear) TrainStep(batch Batch) float64 {
	if len(batch.Inputs) == 0 {
		return 0
	}
	totalLoss := 0.0
	count := 0
	for _, input := range batch.Inputs {
		if len(input) != m.inFeatures {
			continue
		}
		for o := 0; o < m.outFeatures; o++ {
			out := m.forwardUnit(o, input)
			totalLoss += math.Abs(out)
			count++

			// d|out|/dout is the sign; subgradient 0 at exactly zero.
			grad := sign(out) * m.lr
			m.bias[o] -= grad
			wStart := o * m.inFeatures
			for j := 0; j < m.inFeatures; j++ {
				m.weights[wStart+j] -= grad * input[j]
			}
		}
	}
	if count == 0 {
		return 0
	}
	return totalLoss / float64(count)
}

// EvalStep computes the loss on the batch without updating parameters.
func (m *Linear) EvalStep(batch Batch) float64 {
	if len(batch.Inputs) == 0 {
		return 0
	}
	totalLoss := 0.0
	count := 0
	for _, input := range batch.Inputs {
		if len(input) != m.inFeatures {
			continue
		}
		for o := 0; o < m.outFeatures; o++ {
			totalLoss += math.Abs(m.forwardUnit(o, input))
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return totalLoss / float64(count)
}

// Weights holds a serializable parameter snapshot.
type Weights struct {
	InFeatures  int       `json:"in_features"`
	OutFeatures int       `json:"out_features"`
	Weights     []float64 `json:"weights"`
	Bias        []float64 `json:"bias"`
}

// Snapshot copies the current parameters for checkpointing.
func (m *Linear) Snapshot() Weights {
	return Weights{
		InFeatures:  m.inFeatures,
		OutFeatures: m.outFeatures,
		Weights:     append([]float64(nil), m.weights...),
		Bias:        append([]float64(nil), m.bias...),
	}
}

func (m *Linear) forwardUnit(o int, input []float64) float64 {
	sum := m.bias[o]
	wStart := o * m.inFeatures
	for j := 0; j < m.inFeatures; j++ {
		sum += m.weights[wStart+j] * input[j]
	}
	return sum
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
