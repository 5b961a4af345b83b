package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Outcome is the terminal state of one stage execution.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeSkipped Outcome = "skipped"
)

// StageSample is one timed stage execution.
type StageSample struct {
	Stage    string
	Duration time.Duration
	Outcome  Outcome
	At       time.Time
}

// CostSample is one token-based cost entry.
type CostSample struct {
	InputTokens  int
	OutputTokens int
	Cost         float64
	At           time.Time
}

// Recorder is the process-wide append-only log of stage timings and token
// costs. Record and RecordCost are the only mutators and are safe under
// concurrent requests; Summarize reads a consistent copy of the log.
type Recorder struct {
	mu     sync.Mutex
	stages []StageSample
	costs  []CostSample
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Record(stage string, duration time.Duration, outcome Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stages = append(r.stages, StageSample{
		Stage:    stage,
		Duration: duration,
		Outcome:  outcome,
		At:       time.Now(),
	})
}

func (r *Recorder) RecordCost(inputTokens, outputTokens int, perInputToken, perOutputToken float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.costs = append(r.costs, CostSample{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         float64(inputTokens)*perInputToken + float64(outputTokens)*perOutputToken,
		At:           time.Now(),
	})
}

// Summary holds aggregate latency and cost statistics.
type Summary struct {
	SampleCount  int
	MeanLatency  time.Duration
	P50Latency   time.Duration
	P95Latency   time.Duration
	P99Latency   time.Duration
	PerStageMean map[string]time.Duration

	CostEntries       int
	TotalCost         float64
	MeanCost          float64
	TotalInputTokens  int
	TotalOutputTokens int
}

// Summarize recomputes everything from the log on demand. The log stays
// small enough at this scale that re-sorting per call beats maintaining an
// incremental percentile structure.
func (r *Recorder) Summarize() Summary {
	r.mu.Lock()
	stages := make([]StageSample, len(r.stages))
	copy(stages, r.stages)
	costs := make([]CostSample, len(r.costs))
	copy(costs, r.costs)
	r.mu.Unlock()

	summary := Summary{
		SampleCount:  len(stages),
		PerStageMean: make(map[string]time.Duration),
		CostEntries:  len(costs),
	}

	if len(stages) > 0 {
		durations := make([]time.Duration, len(stages))
		var total time.Duration
		stageTotals := make(map[string]time.Duration)
		stageCounts := make(map[string]int)

		for i, s := range stages {
			durations[i] = s.Duration
			total += s.Duration
			stageTotals[s.Stage] += s.Duration
			stageCounts[s.Stage]++
		}

		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

		summary.MeanLatency = total / time.Duration(len(stages))
		summary.P50Latency = percentile(durations, 0.50)
		summary.P95Latency = percentile(durations, 0.95)
		summary.P99Latency = percentile(durations, 0.99)

		for stage, sum := range stageTotals {
			summary.PerStageMean[stage] = sum / time.Duration(stageCounts[stage])
		}
	}

	for _, c := range costs {
		summary.TotalCost += c.Cost
		summary.TotalInputTokens += c.InputTokens
		summary.TotalOutputTokens += c.OutputTokens
	}
	if len(costs) > 0 {
		summary.MeanCost = summary.TotalCost / float64(len(costs))
	}

	return summary
}

// percentile uses the nearest-rank method: index = ceil(p*N) - 1, clamped to
// [0, N-1]. Input must be sorted ascending.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
