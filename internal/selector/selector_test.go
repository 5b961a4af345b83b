package selector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proactive-assistant/backend/internal/retrieval"
	"github.com/proactive-assistant/backend/internal/snapshot"
)

// fakeStrategy returns a fixed score, or errors on every call.
type fakeStrategy struct {
	name  string
	score float64
	fail  bool
	calls int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Retrieve(ctx context.Context, snap *snapshot.ContextSnapshot, query retrieval.Query, k int) (retrieval.Result, error) {
	f.calls++
	if f.fail {
		return nil, &retrieval.RetrievalError{Strategy: f.name, Category: snapshot.CategoryMessage}
	}
	return retrieval.Result{{Score: f.score}}, nil
}

func testSnapshot() *snapshot.ContextSnapshot {
	now := time.Now()
	return &snapshot.ContextSnapshot{
		ID:      "snap-1",
		TakenAt: now,
		Messages: []snapshot.ContextRecord{
			{Timestamp: now, Category: snapshot.CategoryMessage, Text: "deadline stress"},
		},
	}
}

func TestDecideSemanticWinsAboveMargin(t *testing.T) {
	semantic := StrategyStats{Strategy: "semantic", Samples: 10, MeanTopRelevance: 0.847}
	structured := StrategyStats{Strategy: "structured", Samples: 10, MeanTopRelevance: 0.723}

	chosen, err := Decide(semantic, structured, 0.10)
	require.NoError(t, err)
	assert.Equal(t, "semantic", chosen)
}

func TestDecideSmallWinDefaultsToStructured(t *testing.T) {
	semantic := StrategyStats{Strategy: "semantic", Samples: 10, MeanTopRelevance: 0.80}
	structured := StrategyStats{Strategy: "structured", Samples: 10, MeanTopRelevance: 0.78}

	chosen, err := Decide(semantic, structured, 0.10)
	require.NoError(t, err)
	assert.Equal(t, "structured", chosen)
}

func TestDecideTieDefaultsToStructured(t *testing.T) {
	semantic := StrategyStats{Strategy: "semantic", Samples: 5, MeanTopRelevance: 0.5}
	structured := StrategyStats{Strategy: "structured", Samples: 5, MeanTopRelevance: 0.5}

	chosen, err := Decide(semantic, structured, 0.10)
	require.NoError(t, err)
	assert.Equal(t, "structured", chosen)
}

func TestDecideMonotonic(t *testing.T) {
	structured := StrategyStats{Strategy: "structured", Samples: 5, MeanTopRelevance: 0.6}

	flipped := false
	for rel := 0.0; rel <= 1.0; rel += 0.01 {
		semantic := StrategyStats{Strategy: "semantic", Samples: 5, MeanTopRelevance: rel}
		chosen, err := Decide(semantic, structured, 0.10)
		require.NoError(t, err)

		if chosen == "semantic" {
			flipped = true
		} else {
			// Once semantic wins, raising its relevance must never flip back.
			assert.False(t, flipped, "decision flipped back to structured at relevance %f", rel)
		}
	}
	assert.True(t, flipped)
}

func TestDecideDisqualification(t *testing.T) {
	ok := StrategyStats{Strategy: "structured", Samples: 5, MeanTopRelevance: 0.1}
	dq := StrategyStats{Strategy: "semantic", Disqualified: true}

	chosen, err := Decide(dq, ok, 0.10)
	require.NoError(t, err)
	assert.Equal(t, "structured", chosen)

	okSem := StrategyStats{Strategy: "semantic", Samples: 5, MeanTopRelevance: 0.1}
	dqStruct := StrategyStats{Strategy: "structured", Disqualified: true}

	chosen, err = Decide(okSem, dqStruct, 0.10)
	require.NoError(t, err)
	assert.Equal(t, "semantic", chosen)
}

func TestDecideBothDisqualified(t *testing.T) {
	dq1 := StrategyStats{Strategy: "semantic", Disqualified: true}
	dq2 := StrategyStats{Strategy: "structured", Disqualified: true}

	_, err := Decide(dq1, dq2, 0.10)
	assert.ErrorIs(t, err, ErrAllStrategiesDisqualified)
}

func TestRunBenchmarkInstallsWinner(t *testing.T) {
	semantic := &fakeStrategy{name: "semantic", score: 0.9}
	structured := &fakeStrategy{name: "structured", score: 0.5}

	sel := New(semantic, structured, 0.10, 3)
	assert.Equal(t, "structured", sel.Active().Name())

	queries := []retrieval.Query{{Probe: "deadline"}, {Probe: "meeting"}}
	result, err := sel.RunBenchmark(context.Background(), testSnapshot(), queries, 3)
	require.NoError(t, err)

	assert.Equal(t, "semantic", result.Chosen)
	assert.Equal(t, "semantic", sel.Active().Name())
	assert.Equal(t, 6, result.Semantic.Samples)
	assert.Equal(t, 6, result.Structured.Samples)
	assert.InDelta(t, 0.9, result.Semantic.MeanTopRelevance, 1e-9)
	assert.NotNil(t, sel.LastResult())
}

func TestRunBenchmarkIdempotent(t *testing.T) {
	semantic := &fakeStrategy{name: "semantic", score: 0.80}
	structured := &fakeStrategy{name: "structured", score: 0.78}

	sel := New(semantic, structured, 0.10, 3)
	queries := []retrieval.Query{{Probe: "deadline"}}

	first, err := sel.RunBenchmark(context.Background(), testSnapshot(), queries, 5)
	require.NoError(t, err)
	second, err := sel.RunBenchmark(context.Background(), testSnapshot(), queries, 5)
	require.NoError(t, err)

	assert.Equal(t, first.Chosen, second.Chosen)
	assert.Equal(t, "structured", second.Chosen)
}

func TestRunBenchmarkErroredStrategyDisqualified(t *testing.T) {
	semantic := &fakeStrategy{name: "semantic", fail: true}
	structured := &fakeStrategy{name: "structured", score: 0.2}

	sel := New(semantic, structured, 0.10, 3)
	queries := []retrieval.Query{{Probe: "deadline"}}

	result, err := sel.RunBenchmark(context.Background(), testSnapshot(), queries, 4)
	require.NoError(t, err)

	assert.True(t, result.Semantic.Disqualified)
	assert.Equal(t, 4, result.Semantic.Errors)
	assert.Equal(t, "structured", result.Chosen)
}

// flakyStrategy errors on every second call.
type flakyStrategy struct {
	name  string
	score float64
	calls int
}

func (f *flakyStrategy) Name() string { return f.name }

func (f *flakyStrategy) Retrieve(ctx context.Context, snap *snapshot.ContextSnapshot, query retrieval.Query, k int) (retrieval.Result, error) {
	f.calls++
	if f.calls%2 == 0 {
		return nil, &retrieval.RetrievalError{Strategy: f.name, Category: snapshot.CategoryMessage}
	}
	return retrieval.Result{{Score: f.score}}, nil
}

func TestRunBenchmarkExcludesOnlyErroredSamples(t *testing.T) {
	semantic := &flakyStrategy{name: "semantic", score: 0.9}
	structured := &fakeStrategy{name: "structured", score: 0.5}

	sel := New(semantic, structured, 0.10, 3)
	queries := []retrieval.Query{{Probe: "deadline"}, {Probe: "meeting"}}

	result, err := sel.RunBenchmark(context.Background(), testSnapshot(), queries, 3)
	require.NoError(t, err)

	// 6 calls, odd ones succeed: the mean covers the 3 good samples only.
	assert.Equal(t, 3, result.Semantic.Samples)
	assert.Equal(t, 3, result.Semantic.Errors)
	assert.False(t, result.Semantic.Disqualified)
	assert.InDelta(t, 0.9, result.Semantic.MeanTopRelevance, 1e-9)
	assert.Equal(t, "semantic", result.Chosen)
}

func TestRunBenchmarkAllDisqualifiedKeepsLastDecision(t *testing.T) {
	semantic := &fakeStrategy{name: "semantic", fail: true}
	structured := &fakeStrategy{name: "structured", fail: true}

	sel := New(semantic, structured, 0.10, 3)
	queries := []retrieval.Query{{Probe: "deadline"}}

	_, err := sel.RunBenchmark(context.Background(), testSnapshot(), queries, 2)
	assert.ErrorIs(t, err, ErrAllStrategiesDisqualified)

	// The default decision survives a failed benchmark.
	assert.Equal(t, "structured", sel.Active().Name())
	assert.Nil(t, sel.LastResult())
}
