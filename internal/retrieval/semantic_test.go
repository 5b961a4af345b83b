package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proactive-assistant/backend/internal/snapshot"
)

// fakeEmbedder maps known texts to fixed vectors.
type fakeEmbedder struct {
	vectors    map[string][]float32
	batchCalls int
	failEmbed  bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.failEmbed {
		return nil, errors.New("embedding provider down")
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func semanticSnapshot(now time.Time) *snapshot.ContextSnapshot {
	return &snapshot.ContextSnapshot{
		ID:      "snap-semantic",
		TakenAt: now,
		Messages: []snapshot.ContextRecord{
			{Timestamp: now.Add(-10 * time.Minute), Category: snapshot.CategoryMessage, Text: "exact match"},
			{Timestamp: now.Add(-20 * time.Minute), Category: snapshot.CategoryMessage, Text: "partial match"},
			{Timestamp: now.Add(-30 * time.Minute), Category: snapshot.CategoryMessage, Text: "unrelated"},
		},
	}
}

func semanticEmbedder() *fakeEmbedder {
	return &fakeEmbedder{
		vectors: map[string][]float32{
			"probe":         {1, 0},
			"exact match":   {1, 0},
			"partial match": {0.5, 0.866},
			"unrelated":     {0, 1},
		},
	}
}

func TestSemanticOrderingAndFloor(t *testing.T) {
	now := time.Now()
	s := NewSemanticStrategy(semanticEmbedder(), 0.15)

	result, err := s.Retrieve(context.Background(), semanticSnapshot(now), Query{Probe: "probe"}, 3)
	require.NoError(t, err)

	// "unrelated" is orthogonal (cosine 0) and falls below the floor even
	// though K has room for it.
	require.Len(t, result, 2)
	assert.Equal(t, "exact match", result[0].Record.Text)
	assert.InDelta(t, 1.0, result[0].Score, 1e-6)
	assert.Equal(t, "partial match", result[1].Record.Text)
	assert.InDelta(t, 0.5, result[1].Score, 1e-3)
}

func TestSemanticRespectsK(t *testing.T) {
	now := time.Now()
	s := NewSemanticStrategy(semanticEmbedder(), 0.15)

	result, err := s.Retrieve(context.Background(), semanticSnapshot(now), Query{Probe: "probe"}, 1)
	require.NoError(t, err)

	require.Len(t, result, 1)
	assert.Equal(t, "exact match", result[0].Record.Text)
}

func TestSemanticScoresClamped(t *testing.T) {
	now := time.Now()
	embedder := &fakeEmbedder{
		vectors: map[string][]float32{
			"probe":    {1, 0},
			"opposite": {-1, 0},
		},
	}
	snap := &snapshot.ContextSnapshot{
		ID:      "snap-clamp",
		TakenAt: now,
		Messages: []snapshot.ContextRecord{
			{Timestamp: now, Category: snapshot.CategoryMessage, Text: "opposite"},
		},
	}

	// Cosine -1 clamps to 0, which is below any positive floor.
	s := NewSemanticStrategy(embedder, 0.15)
	result, err := s.Retrieve(context.Background(), snap, Query{Probe: "probe"}, 3)
	require.NoError(t, err)
	assert.Empty(t, result)

	// With a zero floor the clamped score is kept at exactly 0.
	s = NewSemanticStrategy(embedder, 0)
	result, err = s.Retrieve(context.Background(), snap, Query{Probe: "probe"}, 3)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, 0.0, result[0].Score)
}

func TestSemanticIndexCachedPerSnapshot(t *testing.T) {
	now := time.Now()
	embedder := semanticEmbedder()
	s := NewSemanticStrategy(embedder, 0.15)
	snap := semanticSnapshot(now)

	_, err := s.Retrieve(context.Background(), snap, Query{Probe: "probe"}, 3)
	require.NoError(t, err)
	_, err = s.Retrieve(context.Background(), snap, Query{Probe: "probe"}, 3)
	require.NoError(t, err)

	// Record vectors are computed once for the snapshot's lifetime.
	assert.Equal(t, 1, embedder.batchCalls)
}

func TestSemanticEmptyRequiredCategory(t *testing.T) {
	now := time.Now()
	s := NewSemanticStrategy(semanticEmbedder(), 0.15)

	query := Query{Probe: "probe", Categories: []snapshot.Category{snapshot.CategoryMedia}}
	_, err := s.Retrieve(context.Background(), semanticSnapshot(now), query, 3)

	var retrievalErr *RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Equal(t, StrategySemantic, retrievalErr.Strategy)
}

func TestSemanticEmbedderFailureIsNotRetrievalError(t *testing.T) {
	now := time.Now()
	s := NewSemanticStrategy(&fakeEmbedder{failEmbed: true}, 0.15)

	_, err := s.Retrieve(context.Background(), semanticSnapshot(now), Query{Probe: "probe"}, 3)
	require.Error(t, err)

	var retrievalErr *RetrievalError
	assert.False(t, errors.As(err, &retrievalErr))
}
