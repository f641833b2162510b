package model

import "testing"

func onesBatch(n, dim int) Batch {
	inputs := make([][]float64, n)
	for i := range inputs {
		v := make([]float64, dim)
		for j := range v {
			v[j] = 1.0
		}
		inputs[i] = v
	}
	return Batch{Inputs: inputs}
}

func TestLinearTrainStepReducesLoss(t *testing.T) {
	m := NewLinear(2, 1, 0.01, 1)
	batch := onesBatch(2, 2)

	loss1 := m.TrainStep(batch)
	loss2 := m.TrainStep(batch)
	loss3 := m.TrainStep(batch)
	if !(loss3 < loss2 && loss2 < loss1) {
		t.Fatalf("expected loss to decrease; got %f, %f, %f", loss1, loss2, loss3)
	}

	for i := 0; i < 20; i++ {
		m.TrainStep(batch)
	}
	if final := m.EvalStep(batch); final > 0.05 {
		t.Fatalf("expected output near zero after training, got loss %f", final)
	}
}

func TestLinearEvalStepDoesNotUpdate(t *testing.T) {
	m := NewLinear(2, 1, 0.1, 7)
	batch := onesBatch(4, 2)

	before := m.EvalStep(batch)
	after := m.EvalStep(batch)
	if before != after {
		t.Fatalf("eval must not change parameters; %f vs %f", before, after)
	}
}

func TestLinearSkipsMismatchedInputs(t *testing.T) {
	m := NewLinear(2, 1, 0.1, 1)
	loss := m.TrainStep(Batch{Inputs: [][]float64{{1, 2, 3}}})
	if loss != 0 {
		t.Fatalf("expected zero loss for mismatched batch, got %f", loss)
	}
}

func TestLinearSnapshotCopies(t *testing.T) {
	m := NewLinear(2, 1, 0.1, 1)
	snap := m.Snapshot()
	if snap.InFeatures != 2 || snap.OutFeatures != 1 {
		t.Fatalf("unexpected shape: %+v", snap)
	}
	if len(snap.Weights) != 2 || len(snap.Bias) != 1 {
		t.Fatalf("unexpected parameter counts: %+v", snap)
	}
	snap.Weights[0] = 99
	if m.Snapshot().Weights[0] == 99 {
		t.Fatal("snapshot must copy parameters, not alias them")
	}
}
