package evaluation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proactive-assistant/backend/internal/pipeline"
	"github.com/proactive-assistant/backend/internal/snapshot"
)

// echoRunner returns a fixed nudge text for every snapshot.
type echoRunner struct {
	text string
	err  error
	runs int
}

func (r *echoRunner) Run(ctx context.Context, snap *snapshot.ContextSnapshot) (*pipeline.Nudge, pipeline.StageTrace, error) {
	r.runs++
	if r.err != nil {
		return nil, nil, r.err
	}
	return &pipeline.Nudge{RequestID: "req", Text: r.text}, nil, nil
}

// dictEmbedder embeds known texts with fixed vectors and everything else
// orthogonally.
type dictEmbedder struct {
	vectors map[string][]float32
	other   []float32
}

func (d *dictEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := d.vectors[text]; ok {
		return v, nil
	}
	return d.other, nil
}

func (d *dictEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := d.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func goldenExample(expected string) GoldenExample {
	now := time.Now()
	return GoldenExample{
		ID:       "ex-1",
		Expected: expected,
		Snapshot: &snapshot.ContextSnapshot{
			ID:      "snap-eval",
			TakenAt: now,
			Messages: []snapshot.ContextRecord{
				{Timestamp: now, Category: snapshot.CategoryMessage, Text: "hello"},
			},
		},
	}
}

func TestCompositePerfectMatchIsOne(t *testing.T) {
	expected := "take a short walk now"
	runner := &echoRunner{text: expected}
	embedder := &dictEmbedder{
		vectors: map[string][]float32{expected: {1, 0}},
		other:   []float32{0, 1},
	}

	harness := NewHarness(runner, embedder, nil)
	results := harness.Evaluate(context.Background(), []GoldenExample{goldenExample(expected)})

	score, ok := results.Next()
	require.True(t, ok)
	require.NoError(t, score.Err)

	assert.Equal(t, 1.0, score.Semantic)
	assert.Equal(t, 1.0, score.Lexical.LCS.F1)
	assert.Equal(t, 1.0, score.Composite)
}

func TestCompositeNoOverlapIsZero(t *testing.T) {
	runner := &echoRunner{text: "alpha beta"}
	embedder := &dictEmbedder{
		vectors: map[string][]float32{
			"alpha beta":  {1, 0},
			"gamma delta": {0, 1},
		},
	}

	harness := NewHarness(runner, embedder, nil)
	results := harness.Evaluate(context.Background(), []GoldenExample{goldenExample("gamma delta")})

	score, ok := results.Next()
	require.True(t, ok)
	require.NoError(t, score.Err)

	assert.Equal(t, 0.0, score.Semantic)
	assert.Equal(t, 0.0, score.Lexical.LCS.F1)
	assert.Equal(t, 0.0, score.Composite)
}

func TestResultsAreLazy(t *testing.T) {
	runner := &echoRunner{text: "same text"}
	embedder := &dictEmbedder{other: []float32{1, 0}}

	golden := []GoldenExample{goldenExample("same text"), goldenExample("same text")}
	harness := NewHarness(runner, embedder, nil)
	results := harness.Evaluate(context.Background(), golden)

	assert.Equal(t, 0, runner.runs)

	_, ok := results.Next()
	require.True(t, ok)
	assert.Equal(t, 1, runner.runs)

	_, ok = results.Next()
	require.True(t, ok)
	assert.Equal(t, 2, runner.runs)

	_, ok = results.Next()
	assert.False(t, ok)
}

func TestResultsResetReplaysWithoutRerunning(t *testing.T) {
	runner := &echoRunner{text: "same text"}
	embedder := &dictEmbedder{other: []float32{1, 0}}

	harness := NewHarness(runner, embedder, nil)
	results := harness.Evaluate(context.Background(), []GoldenExample{goldenExample("same text")})

	first, ok := results.Next()
	require.True(t, ok)

	results.Reset()
	replay, ok := results.Next()
	require.True(t, ok)

	assert.Equal(t, first, replay)
	assert.Equal(t, 1, runner.runs)
}

func TestPipelineFailureReportedPerExample(t *testing.T) {
	runner := &echoRunner{err: errors.New("provider down")}
	embedder := &dictEmbedder{other: []float32{1, 0}}

	harness := NewHarness(runner, embedder, nil)
	results := harness.Evaluate(context.Background(), []GoldenExample{
		goldenExample("anything"),
	})

	score, ok := results.Next()
	require.True(t, ok)
	assert.Error(t, score.Err)
	assert.Equal(t, 0.0, score.Composite)

	_, ok = results.Next()
	assert.False(t, ok)
}

func TestDefaultGoldenSetShape(t *testing.T) {
	golden := DefaultGoldenSet(time.Now(), 3)

	assert.Len(t, golden, 15)
	seen := make(map[string]struct{})
	for _, example := range golden {
		assert.NotEmpty(t, example.Expected)
		assert.False(t, example.Snapshot.Empty())
		_, dup := seen[example.ID]
		assert.False(t, dup, "duplicate example id %s", example.ID)
		seen[example.ID] = struct{}{}
	}
}
