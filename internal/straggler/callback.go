package straggler

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"trainguard/internal/trainer"
)

// Params configures score calculation and reporting. The field names match
// the straggler_detection_params block accepted by the experiment manager.
type Params struct {
	// ReportTimeInterval is the number of seconds between reports.
	ReportTimeInterval float64 `yaml:"report_time_interval"`
	// CalcRelativeGPUPerf enables scoring each rank against its peers.
	CalcRelativeGPUPerf bool `yaml:"calc_relative_gpu_perf"`
	// CalcIndividualGPUPerf enables scoring each rank against its own best.
	CalcIndividualGPUPerf bool `yaml:"calc_individual_gpu_perf"`
	// PrintGPUPerfScores writes score summaries to the process stdout.
	PrintGPUPerfScores bool `yaml:"print_gpu_perf_scores"`
}

// DefaultParams mirrors the defaults of the resiliency tooling this
// harness emulates: both score kinds on, reporting every five minutes,
// printing off.
func DefaultParams() Params {
	return Params{
		ReportTimeInterval:    300,
		CalcRelativeGPUPerf:   true,
		CalcIndividualGPUPerf: true,
	}
}

// Callback wires the detector into the training loop. It records every
// step's compute time and emits a report when the configured interval has
// elapsed. The training loop is single-writer per rank, so no locking
// happens on the hook path beyond the detector's own.
type Callback struct {
	trainer.Hooks

	params Params
	det    *Detector
	logger zerolog.Logger

	// out overrides the report sink; nil resolves to os.Stdout at report
	// time so scoped stream capture sees the output.
	out io.Writer

	lastReport time.Time
}

// NewCallback validates params and builds the callback.
func NewCallback(params Params, logger zerolog.Logger) (*Callback, error) {
	if params.ReportTimeInterval <= 0 {
		return nil, errors.New("straggler: report time interval must be > 0")
	}
	if !params.CalcRelativeGPUPerf && !params.CalcIndividualGPUPerf {
		return nil, errors.New("straggler: at least one score kind must be enabled")
	}
	return &Callback{
		params: params,
		det:    NewDetector(DefaultScoreThreshold),
		logger: logger.With().Str("component", "straggler_detection").Logger(),
	}, nil
}

// SetOutput redirects printed reports, mainly for tests.
func (c *Callback) SetOutput(w io.Writer) { c.out = w }

// Detector exposes the underlying detector.
func (c *Callback) Detector() *Detector { return c.det }

// Interval returns the configured reporting interval.
func (c *Callback) Interval() time.Duration {
	return time.Duration(c.params.ReportTimeInterval * float64(time.Second))
}

// OnTrainStart arms the reporting clock.
func (c *Callback) OnTrainStart(run *trainer.Run) error {
	c.lastReport = time.Now()
	c.logger.Info().
		Float64("report_time_interval", c.params.ReportTimeInterval).
		Bool("calc_relative_gpu_perf", c.params.CalcRelativeGPUPerf).
		Bool("calc_individual_gpu_perf", c.params.CalcIndividualGPUPerf).
		Msg("Straggler detection enabled")
	return nil
}

// OnTrainBatchEnd records the step and reports when the interval elapsed.
func (c *Callback) OnTrainBatchEnd(run *trainer.Run, step, batchSize int, compute time.Duration) error {
	c.det.Record(run.Rank, batchSize, compute)
	if time.Since(c.lastReport) >= c.Interval() {
		c.Report(run)
		c.lastReport = time.Now()
	}
	return nil
}

// Report emits one score report and starts a fresh window.
func (c *Callback) Report(run *trainer.Run) {
	w := c.out
	if w == nil {
		w = os.Stdout
	}

	if c.params.CalcRelativeGPUPerf {
		scores := c.det.RelativeScores()
		if len(scores) > 0 {
			s := Summarize(scores)
			if c.params.PrintGPUPerfScores {
				fmt.Fprintf(w, "GPU relative performance: min=%.4f (rank %d) max=%.4f (rank %d) avg=%.4f\n",
					s.Min, s.MinRank, s.Max, s.MaxRank, s.Avg)
			}
			c.warnStragglers("relative", scores)
		}
	}

	if c.params.CalcIndividualGPUPerf {
		scores := c.det.IndividualScores()
		if len(scores) > 0 {
			s := Summarize(scores)
			if c.params.PrintGPUPerfScores {
				fmt.Fprintf(w, "GPU individual performance: min=%.4f (rank %d) max=%.4f (rank %d) avg=%.4f\n",
					s.Min, s.MinRank, s.Max, s.MaxRank, s.Avg)
			}
			c.warnStragglers("individual", scores)
		}
	}

	c.det.Reset()
}

func (c *Callback) warnStragglers(kind string, scores []Score) {
	ranks := c.det.Stragglers(scores)
	if len(ranks) == 0 {
		return
	}
	c.logger.Warn().
		Str("score_kind", kind).
		Ints("ranks", ranks).
		Float64("threshold", c.det.Threshold()).
		Msg("Straggler ranks detected")
}
