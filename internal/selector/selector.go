package selector

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/proactive-assistant/backend/internal/metrics"
	"github.com/proactive-assistant/backend/internal/retrieval"
	"github.com/proactive-assistant/backend/internal/snapshot"
	"github.com/proactive-assistant/backend/pkg/logger"
)

// ErrAllStrategiesDisqualified is returned when every sample of every
// strategy errored, leaving nothing to decide between.
var ErrAllStrategiesDisqualified = errors.New("all strategies disqualified")

// StrategyStats aggregates one strategy's benchmark observations.
type StrategyStats struct {
	Strategy         string
	Samples          int
	Errors           int
	MeanLatency      time.Duration
	MeanTopRelevance float64
	Disqualified     bool
}

// Result is the outcome of one benchmark run: per-strategy aggregates, the
// chosen strategy and the margin the decision was made with.
type Result struct {
	Semantic   StrategyStats
	Structured StrategyStats
	Chosen     string
	Margin     float64
	DecidedAt  time.Time
}

// Selector benchmarks the two retrieval strategies and owns the
// currently-active one. It runs ahead of or between requests, never inline.
type Selector struct {
	semantic   retrieval.Strategy
	structured retrieval.Strategy
	margin     float64
	topK       int

	mu     sync.RWMutex
	active retrieval.Strategy
	last   *Result
}

// New starts with the structured strategy active: it is the cheap option and
// stays in place until a benchmark says otherwise.
func New(semantic, structured retrieval.Strategy, margin float64, topK int) *Selector {
	return &Selector{
		semantic:   semantic,
		structured: structured,
		margin:     margin,
		topK:       topK,
		active:     structured,
	}
}

// Active returns the currently-active strategy. Readers always see a fully
// installed decision.
func (s *Selector) Active() retrieval.Strategy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// LastResult returns the most recent benchmark result, or nil before the
// first run.
func (s *Selector) LastResult() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// RunBenchmark runs every query runsPerQuery times against both strategies
// over the given snapshot, aggregates latency and top-1 relevance, applies
// the decision rule and installs the winner atomically. A failed benchmark
// leaves the last good decision untouched.
func (s *Selector) RunBenchmark(ctx context.Context, snap *snapshot.ContextSnapshot, queries []retrieval.Query, runsPerQuery int) (*Result, error) {
	if runsPerQuery <= 0 {
		runsPerQuery = 1
	}

	var wg sync.WaitGroup
	var semStats, structStats StrategyStats

	wg.Add(2)
	go func() {
		defer wg.Done()
		semStats = s.benchmarkStrategy(ctx, s.semantic, snap, queries, runsPerQuery)
	}()
	go func() {
		defer wg.Done()
		structStats = s.benchmarkStrategy(ctx, s.structured, snap, queries, runsPerQuery)
	}()
	wg.Wait()

	chosen, err := Decide(semStats, structStats, s.margin)
	if err != nil {
		logger.Error("Benchmark produced no usable strategy", zap.Error(err))
		return nil, err
	}

	result := &Result{
		Semantic:   semStats,
		Structured: structStats,
		Chosen:     chosen,
		Margin:     s.margin,
		DecidedAt:  time.Now(),
	}

	active := s.structured
	if chosen == s.semantic.Name() {
		active = s.semantic
	}

	s.mu.Lock()
	s.active = active
	s.last = result
	s.mu.Unlock()

	metrics.BenchmarkRelevance.WithLabelValues(semStats.Strategy).Set(semStats.MeanTopRelevance)
	metrics.BenchmarkRelevance.WithLabelValues(structStats.Strategy).Set(structStats.MeanTopRelevance)
	for _, name := range []string{s.semantic.Name(), s.structured.Name()} {
		v := 0.0
		if name == chosen {
			v = 1.0
		}
		metrics.ActiveStrategy.WithLabelValues(name).Set(v)
	}

	logger.Info("Retrieval strategy benchmark completed",
		zap.String("chosen", chosen),
		zap.Float64("semantic_relevance", semStats.MeanTopRelevance),
		zap.Float64("structured_relevance", structStats.MeanTopRelevance),
		zap.Duration("semantic_latency", semStats.MeanLatency),
		zap.Duration("structured_latency", structStats.MeanLatency),
	)

	return result, nil
}

// benchmarkStrategy runs the sample grid for one strategy. Errored samples
// are excluded from the means; a strategy whose samples all error is
// disqualified, never silently averaged.
func (s *Selector) benchmarkStrategy(ctx context.Context, strategy retrieval.Strategy, snap *snapshot.ContextSnapshot, queries []retrieval.Query, runsPerQuery int) StrategyStats {
	stats := StrategyStats{Strategy: strategy.Name()}

	var totalLatency time.Duration
	var totalRelevance float64

	for _, query := range queries {
		for run := 0; run < runsPerQuery; run++ {
			start := time.Now()
			result, err := strategy.Retrieve(ctx, snap, query, s.topK)
			elapsed := time.Since(start)

			if err != nil {
				stats.Errors++
				logger.Debug("Benchmark sample errored",
					zap.String("strategy", strategy.Name()),
					zap.Error(err),
				)
				continue
			}

			stats.Samples++
			totalLatency += elapsed
			totalRelevance += result.TopScore()
		}
	}

	if stats.Samples == 0 {
		stats.Disqualified = true
		return stats
	}

	stats.MeanLatency = totalLatency / time.Duration(stats.Samples)
	stats.MeanTopRelevance = totalRelevance / float64(stats.Samples)
	return stats
}

// Decide applies the relevance-only rule: the semantic strategy wins iff its
// mean top-1 relevance beats the structured strategy's by more than margin.
// Latency is reported alongside but never folded into the decision; ties and
// small wins default to the cheaper structured option.
func Decide(semantic, structured StrategyStats, margin float64) (string, error) {
	switch {
	case semantic.Disqualified && structured.Disqualified:
		return "", ErrAllStrategiesDisqualified
	case semantic.Disqualified:
		return structured.Strategy, nil
	case structured.Disqualified:
		return semantic.Strategy, nil
	}

	if semantic.MeanTopRelevance > structured.MeanTopRelevance*(1+margin) {
		return semantic.Strategy, nil
	}
	return structured.Strategy, nil
}
