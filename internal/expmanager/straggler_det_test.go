package expmanager

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trainguard/internal/dataset"
	"trainguard/internal/hardware"
	"trainguard/internal/logtee"
	"trainguard/internal/model"
	"trainguard/internal/straggler"
	"trainguard/internal/trainer"
)

// Runs a dummy 1-rank ddp training with rank stdout/stderr redirected to
// files, a 3 second wall-clock budget and 1 second straggler reporting,
// then checks the captured rank0 stdout for the score report lines.
func TestStragglerDetectionPrintsPerfScores(t *testing.T) {
	if !hardware.HasGPU() {
		t.Skip("no GPU visible on this host")
	}
	runStragglerDetection(t, trainer.AcceleratorGPU, "00:00:00:03", 1.0)
}

// Same pipeline on the cpu accelerator with a tighter budget so the
// detection path is exercised on any host.
func TestStragglerDetectionPrintsPerfScoresCPU(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	runStragglerDetection(t, trainer.AcceleratorCPU, "00:00:00:02", 0.5)
}

func runStragglerDetection(t *testing.T, accelerator, budget string, interval float64) {
	t.Helper()
	tmpPath := t.TempDir()

	tr, err := trainer.New(trainer.Options{
		Strategy:         trainer.StrategyDDP,
		Devices:          1,
		Accelerator:      accelerator,
		MaxSteps:         1 << 30,
		BatchSize:        2,
		ValCheckInterval: 0.33,
	}, zerolog.Nop())
	require.NoError(t, err)

	_, err = Setup(tr, Config{
		MaxTimePerRun:                    budget,
		ExplicitLogDir:                   tmpPath,
		CreateCheckpointCallback:         false,
		CreateStragglerDetectionCallback: true,
		StragglerDetectionParams: straggler.Params{
			ReportTimeInterval:    interval,
			CalcRelativeGPUPerf:   true,
			CalcIndividualGPUPerf: true,
			PrintGPUPerfScores:    true,
		},
	}, zerolog.Nop())
	require.NoError(t, err)

	m := model.NewLinear(2, 1, 0.1, 1234)
	require.NoError(t, tr.Fit(context.Background(), m, dataset.NewOnes(128, 2)))

	content, err := os.ReadFile(logtee.StdoutPath(tmpPath, 0))
	require.NoError(t, err)

	assert.Contains(t, string(content), "GPU relative performance")
	assert.Contains(t, string(content), "GPU individual performance")
}
