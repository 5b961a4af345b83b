package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/proactive-assistant/backend/internal/snapshot"
	"github.com/proactive-assistant/backend/pkg/logger"
)

// Embedder turns text into a fixed-length vector. The LLM client implements
// it; tests substitute a deterministic fake.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// SemanticStrategy scores records by cosine similarity between the embedded
// probe and each record's embedded text. Record vectors are computed once per
// snapshot and cached for the snapshot's lifetime.
type SemanticStrategy struct {
	embedder Embedder
	minScore float64

	mu      sync.Mutex
	indexes map[string]*semanticIndex
}

type semanticIndex struct {
	records []snapshot.ContextRecord
	vectors [][]float32
}

const maxCachedIndexes = 32

func NewSemanticStrategy(embedder Embedder, minScore float64) *SemanticStrategy {
	return &SemanticStrategy{
		embedder: embedder,
		minScore: minScore,
		indexes:  make(map[string]*semanticIndex),
	}
}

func (s *SemanticStrategy) Name() string { return StrategySemantic }

func (s *SemanticStrategy) Retrieve(ctx context.Context, snap *snapshot.ContextSnapshot, query Query, k int) (Result, error) {
	if err := checkRequiredCategories(s.Name(), snap, query); err != nil {
		return nil, err
	}

	idx, err := s.indexFor(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("failed to index snapshot: %w", err)
	}

	probeVec, err := s.embedder.Embed(ctx, query.Probe)
	if err != nil {
		return nil, fmt.Errorf("failed to embed probe: %w", err)
	}

	scored := make(Result, 0, len(idx.records))
	for i, rec := range idx.records {
		if !matchesCategory(rec, query.Categories) {
			continue
		}
		if !query.WindowFrom.IsZero() && rec.Timestamp.Before(query.WindowFrom) {
			continue
		}
		if !query.WindowTo.IsZero() && rec.Timestamp.After(query.WindowTo) {
			continue
		}

		score := clamp01(cosineSimilarity(probeVec, idx.vectors[i]))
		if score < s.minScore {
			// Below-floor records are dropped even if fewer than K remain.
			continue
		}
		scored = append(scored, Scored{Record: rec, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Record.Timestamp.After(scored[j].Record.Timestamp)
	})

	if len(scored) > k {
		scored = scored[:k]
	}

	logger.Debug("Semantic retrieval completed",
		zap.String("snapshot_id", snap.ID),
		zap.Int("results", len(scored)),
	)

	return scored, nil
}

// indexFor embeds every record of the snapshot exactly once.
func (s *SemanticStrategy) indexFor(ctx context.Context, snap *snapshot.ContextSnapshot) (*semanticIndex, error) {
	s.mu.Lock()
	if idx, ok := s.indexes[snap.ID]; ok {
		s.mu.Unlock()
		return idx, nil
	}
	s.mu.Unlock()

	records := snap.Records()
	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.Text
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(records) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(vectors), len(records))
	}

	idx := &semanticIndex{records: records, vectors: vectors}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.indexes) >= maxCachedIndexes {
		// Snapshots are request-scoped, so stale entries are never read again.
		s.indexes = make(map[string]*semanticIndex)
	}
	s.indexes[snap.ID] = idx
	return idx, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
