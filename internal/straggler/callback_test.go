package straggler

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trainguard/internal/trainer"
)

func newTestCallback(t *testing.T, params Params) *Callback {
	t.Helper()
	cb, err := NewCallback(params, zerolog.Nop())
	require.NoError(t, err)
	return cb
}

func TestNewCallbackValidatesParams(t *testing.T) {
	_, err := NewCallback(Params{CalcRelativeGPUPerf: true}, zerolog.Nop())
	assert.Error(t, err, "zero interval must be rejected")

	_, err = NewCallback(Params{ReportTimeInterval: 1}, zerolog.Nop())
	assert.Error(t, err, "at least one score kind is required")
}

func TestReportPrintsEnabledScoreKinds(t *testing.T) {
	cb := newTestCallback(t, Params{
		ReportTimeInterval:    1,
		CalcRelativeGPUPerf:   true,
		CalcIndividualGPUPerf: true,
		PrintGPUPerfScores:    true,
	})
	out := &bytes.Buffer{}
	cb.SetOutput(out)

	run := &trainer.Run{Rank: 0, WorldSize: 1}
	cb.det.Record(0, 8, 20*time.Millisecond)
	cb.Report(run)

	assert.Contains(t, out.String(), "GPU relative performance")
	assert.Contains(t, out.String(), "GPU individual performance")
}

func TestReportOmitsDisabledScoreKinds(t *testing.T) {
	cb := newTestCallback(t, Params{
		ReportTimeInterval:  1,
		CalcRelativeGPUPerf: true,
		PrintGPUPerfScores:  true,
	})
	out := &bytes.Buffer{}
	cb.SetOutput(out)

	cb.det.Record(0, 8, 20*time.Millisecond)
	cb.Report(&trainer.Run{Rank: 0, WorldSize: 1})

	assert.Contains(t, out.String(), "GPU relative performance")
	assert.NotContains(t, out.String(), "GPU individual performance")
}

func TestReportSilentWithoutPrintFlag(t *testing.T) {
	cb := newTestCallback(t, Params{
		ReportTimeInterval:    1,
		CalcRelativeGPUPerf:   true,
		CalcIndividualGPUPerf: true,
	})
	out := &bytes.Buffer{}
	cb.SetOutput(out)

	cb.det.Record(0, 8, 20*time.Millisecond)
	cb.Report(&trainer.Run{Rank: 0, WorldSize: 1})

	assert.Empty(t, out.String())
}

func TestReportWarnsOnStragglerRanks(t *testing.T) {
	logOut := &bytes.Buffer{}
	cb, err := NewCallback(Params{
		ReportTimeInterval:  1,
		CalcRelativeGPUPerf: true,
	}, zerolog.New(logOut))
	require.NoError(t, err)
	cb.SetOutput(&bytes.Buffer{})

	// rank 1 runs at a quarter of rank 0's throughput.
	cb.det.Record(0, 100, time.Second)
	cb.det.Record(1, 25, time.Second)
	cb.Report(&trainer.Run{Rank: 0, WorldSize: 2})

	assert.Contains(t, logOut.String(), "Straggler ranks detected")
	assert.Contains(t, logOut.String(), `"ranks":[1]`)
}

func TestOnTrainBatchEndReportsOnInterval(t *testing.T) {
	cb := newTestCallback(t, Params{
		ReportTimeInterval:    0.2,
		CalcRelativeGPUPerf:   true,
		CalcIndividualGPUPerf: true,
		PrintGPUPerfScores:    true,
	})
	out := &bytes.Buffer{}
	cb.SetOutput(out)

	run := &trainer.Run{Rank: 0, WorldSize: 1}
	require.NoError(t, cb.OnTrainStart(run))

	require.NoError(t, cb.OnTrainBatchEnd(run, 1, 2, time.Millisecond))
	assert.Empty(t, out.String(), "no report before the interval elapses")

	time.Sleep(250 * time.Millisecond)
	require.NoError(t, cb.OnTrainBatchEnd(run, 2, 2, time.Millisecond))
	assert.Contains(t, out.String(), "GPU relative performance")
	assert.Contains(t, out.String(), "GPU individual performance")
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, 300.0, p.ReportTimeInterval)
	assert.True(t, p.CalcRelativeGPUPerf)
	assert.True(t, p.CalcIndividualGPUPerf)
	assert.False(t, p.PrintGPUPerfScores)
}
