package evaluation

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/proactive-assistant/backend/internal/pipeline"
	"github.com/proactive-assistant/backend/internal/retrieval"
	"github.com/proactive-assistant/backend/internal/snapshot"
	"github.com/proactive-assistant/backend/pkg/logger"
)

// Reference weights for the composite: semantic similarity dominates, lexical
// overlap anchors it against paraphrase drift.
const (
	SemanticWeight = 0.6
	LexicalWeight  = 0.4
)

// PipelineRunner is the slice of the pipeline the harness needs.
type PipelineRunner interface {
	Run(ctx context.Context, snap *snapshot.ContextSnapshot) (*pipeline.Nudge, pipeline.StageTrace, error)
}

// Score is the quality verdict for one golden example.
type Score struct {
	ExampleID string
	Candidate string
	Semantic  float64
	Lexical   LexicalScores
	Composite float64
	Err       error
}

// Harness batch-scores pipeline output against a golden set. Aggregate
// statistics are left to the caller.
type Harness struct {
	runner   PipelineRunner
	embedder retrieval.Embedder
	lexical  LexicalScorer
}

func NewHarness(runner PipelineRunner, embedder retrieval.Embedder, lexical LexicalScorer) *Harness {
	if lexical == nil {
		lexical = OverlapScorer{}
	}
	return &Harness{runner: runner, embedder: embedder, lexical: lexical}
}

// Evaluate returns a lazy iterator over per-example scores. Nothing runs
// until Next is called, and Reset replays already-computed scores without
// re-running the pipeline.
func (h *Harness) Evaluate(ctx context.Context, golden []GoldenExample) *Results {
	return &Results{ctx: ctx, harness: h, golden: golden}
}

// Results iterates over evaluation scores one example at a time.
type Results struct {
	ctx     context.Context
	harness *Harness
	golden  []GoldenExample

	pos    int
	scored []Score
}

// Next returns the next example's score. It returns false once the golden
// set is exhausted. A per-example pipeline failure is reported in the Score's
// Err field; iteration continues.
func (r *Results) Next() (Score, bool) {
	if r.pos >= len(r.golden) {
		return Score{}, false
	}

	if r.pos < len(r.scored) {
		score := r.scored[r.pos]
		r.pos++
		return score, true
	}

	score := r.harness.scoreExample(r.ctx, r.golden[r.pos])
	r.scored = append(r.scored, score)
	r.pos++
	return score, true
}

// Reset rewinds the iterator to the first example.
func (r *Results) Reset() {
	r.pos = 0
}

func (h *Harness) scoreExample(ctx context.Context, example GoldenExample) Score {
	score := Score{ExampleID: example.ID}

	nudge, _, err := h.runner.Run(ctx, example.Snapshot)
	if err != nil {
		score.Err = fmt.Errorf("pipeline failed for example %s: %w", example.ID, err)
		logger.Warn("Evaluation example failed",
			zap.String("example_id", example.ID),
			zap.Error(err),
		)
		return score
	}

	score.Candidate = nudge.Text

	semantic, err := h.semanticSimilarity(ctx, nudge.Text, example.Expected)
	if err != nil {
		score.Err = fmt.Errorf("semantic scoring failed for example %s: %w", example.ID, err)
		return score
	}

	score.Semantic = semantic
	score.Lexical = h.lexical.Score(nudge.Text, example.Expected)
	score.Composite = SemanticWeight*score.Semantic + LexicalWeight*score.Lexical.LCS.F1
	return score
}

func (h *Harness) semanticSimilarity(ctx context.Context, candidate, reference string) (float64, error) {
	vectors, err := h.embedder.EmbedBatch(ctx, []string{candidate, reference})
	if err != nil {
		return 0, err
	}
	if len(vectors) != 2 {
		return 0, fmt.Errorf("expected 2 embeddings, got %d", len(vectors))
	}
	return clamp01(cosine(vectors[0], vectors[1])), nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
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
