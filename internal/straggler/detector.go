// Package straggler flags training ranks that run anomalously slower than
// their peers or than their own past performance.
package straggler

import (
	"sort"
	"sync"
	"time"
)

// DefaultScoreThreshold marks a rank as a straggler when either of its
// performance scores drops below it.
const DefaultScoreThreshold = 0.7

// Score is a performance score for one rank, normalized to [0, 1].
type Score struct {
	Rank  int
	Value float64
}

// Detector accumulates per-rank step timings and derives two kinds of
// performance scores:
//
//   - relative: a rank's window throughput against the best rank in the
//     group for the same window,
//   - individual: a rank's window throughput against the best window that
//     rank itself has produced so far.
//
// A single-rank group scores 1.0 on both by construction.
type Detector struct {
	mu        sync.Mutex
	threshold float64
	current   map[int]*rankWindow
	best      map[int]float64
}

type rankWindow struct {
	samples int
	compute time.Duration
}

// NewDetector builds a detector. A non-positive threshold selects the
// default.
func NewDetector(threshold float64) *Detector {
	if threshold <= 0 {
		threshold = DefaultScoreThreshold
	}
	return &Detector{
		threshold: threshold,
		current:   make(map[int]*rankWindow),
		best:      make(map[int]float64),
	}
}

// Threshold returns the straggler score threshold.
func (d *Detector) Threshold() float64 { return d.threshold }

// Record adds one completed step for rank to the current window.
func (d *Detector) Record(rank, batchSize int, compute time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w := d.current[rank]
	if w == nil {
		w = &rankWindow{}
		d.current[rank] = w
	}
	w.samples += batchSize
	w.compute += compute
}

// RelativeScores normalizes every rank's window throughput against the
// fastest rank. Ranks without samples in the window are omitted.
func (d *Detector) RelativeScores() []Score {
	d.mu.Lock()
	defer d.mu.Unlock()

	throughputs := d.throughputsLocked()
	if len(throughputs) == 0 {
		return nil
	}
	max := 0.0
	for _, tp := range throughputs {
		if tp.Value > max {
			max = tp.Value
		}
	}
	scores := make([]Score, 0, len(throughputs))
	for _, tp := range throughputs {
		v := 1.0
		if max > 0 {
			v = tp.Value / max
		}
		scores = append(scores, Score{Rank: tp.Rank, Value: v})
	}
	return scores
}

// IndividualScores normalizes every rank's window throughput against the
// best window throughput that rank has recorded, updating the best as a
// side effect. A rank's first window scores 1.0.
func (d *Detector) IndividualScores() []Score {
	d.mu.Lock()
	defer d.mu.Unlock()

	throughputs := d.throughputsLocked()
	scores := make([]Score, 0, len(throughputs))
	for _, tp := range throughputs {
		best := d.best[tp.Rank]
		if tp.Value > best {
			best = tp.Value
			d.best[tp.Rank] = best
		}
		v := 1.0
		if best > 0 {
			v = tp.Value / best
		}
		scores = append(scores, Score{Rank: tp.Rank, Value: v})
	}
	return scores
}

// Reset drops the current window for all ranks; per-rank bests persist.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = make(map[int]*rankWindow)
}

// Stragglers filters scores below the threshold.
func (d *Detector) Stragglers(scores []Score) []int {
	var ranks []int
	for _, s := range scores {
		if s.Value < d.threshold {
			ranks = append(ranks, s.Rank)
		}
	}
	sort.Ints(ranks)
	return ranks
}

func (d *Detector) throughputsLocked() []Score {
	out := make([]Score, 0, len(d.current))
	for rank, w := range d.current {
		if w.samples == 0 || w.compute <= 0 {
			continue
		}
		out = append(out, Score{Rank: rank, Value: float64(w.samples) / w.compute.Seconds()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

// Summary aggregates a score slice for reporting.
type Summary struct {
	Min     float64
	MinRank int
	Max     float64
	MaxRank int
	Avg     float64
}

// Summarize computes min/max/avg over scores. Empty input yields zeros.
func Summarize(scores []Score) Summary {
	if len(scores) == 0 {
		return Summary{}
	}
	s := Summary{Min: scores[0].Value, MinRank: scores[0].Rank, Max: scores[0].Value, MaxRank: scores[0].Rank}
	total := 0.0
	for _, sc := range scores {
		total += sc.Value
		if sc.Value < s.Min {
			s.Min = sc.Value
			s.MinRank = sc.Rank
		}
		if sc.Value > s.Max {
			s.Max = sc.Value
			s.MaxRank = sc.Rank
		}
	}
	s.Avg = total / float64(len(scores))
	return s
}
