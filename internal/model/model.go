package model

// Batch represents a minibatch of feature vectors.
type Batch struct {
	Inputs [][]float64
}

// Model defines the minimal training functionality required by the harness.
type Model interface {
	TrainStep(batch Batch) float64
	EvalStep(batch Batch) float64
}
