package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/proactive-assistant/backend/internal/llm"
	"github.com/proactive-assistant/backend/internal/metrics"
	"github.com/proactive-assistant/backend/internal/retrieval"
	"github.com/proactive-assistant/backend/internal/snapshot"
	"github.com/proactive-assistant/backend/pkg/logger"
	"github.com/proactive-assistant/backend/pkg/retry"
)

// The four fixed stages, in execution order. Stage order and transitions are
// non-branching; conditional routing is explicitly out of scope.
const (
	StageIngest   = "ingest"
	StageRetrieve = "retrieve"
	StageAssess   = "assess"
	StageGenerate = "generate"
)

var Stages = []string{StageIngest, StageRetrieve, StageAssess, StageGenerate}

// StageResult records one stage's elapsed time and outcome.
type StageResult struct {
	Stage    string
	Duration time.Duration
	Outcome  metrics.Outcome
}

// StageTrace always holds exactly one entry per stage, in stage order, even
// on partial failure: failed stages are marked failure, unreached stages
// carry a zero duration and outcome skipped.
type StageTrace []StageResult

// Assessment is the Assess stage's structured result, consumed only by
// Generate.
type Assessment struct {
	Mood       string  `json:"mood"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// Nudge is the final suggestion plus generation metadata.
type Nudge struct {
	RequestID    string
	Text         string
	Assessment   Assessment
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	GeneratedAt  time.Time
}

// StageError is a fatal pipeline failure carrying the stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// CompletionProvider is the external text-completion collaborator used by
// Assess and Generate.
type CompletionProvider interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// StrategySource yields the currently-active retrieval strategy. The
// selector implements it.
type StrategySource interface {
	Active() retrieval.Strategy
}

type Options struct {
	TopK           int
	PerInputToken  float64
	PerOutputToken float64
}

// Pipeline drives one nudge request end to end. One run is created per
// request; the pipeline itself holds only shared collaborators and is safe
// for concurrent runs.
type Pipeline struct {
	strategies StrategySource
	provider   CompletionProvider
	recorder   *metrics.Recorder
	opts       Options
}

func New(strategies StrategySource, provider CompletionProvider, recorder *metrics.Recorder, opts Options) *Pipeline {
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	return &Pipeline{
		strategies: strategies,
		provider:   provider,
		recorder:   recorder,
		opts:       opts,
	}
}

// run is the per-request state machine. Stage outputs flow forward through
// its fields; nothing is shared between runs.
type run struct {
	p         *Pipeline
	requestID string
	snap      *snapshot.ContextSnapshot
	trace     StageTrace

	retrieved  retrieval.Result
	assessment Assessment
	nudgeText  string
	inTokens   int
	outTokens  int
}

// Run executes Ingest -> Retrieve -> Assess -> Generate for one snapshot.
// The returned trace is complete whatever happens; on a fatal error the
// Nudge is nil and the error identifies the failing stage.
func (p *Pipeline) Run(ctx context.Context, snap *snapshot.ContextSnapshot) (*Nudge, StageTrace, error) {
	r := &run{
		p:         p,
		requestID: uuid.New().String(),
		snap:      snap,
		trace:     newTrace(),
	}

	logger.Info("Pipeline run started",
		zap.String("request_id", r.requestID),
		zap.String("snapshot_id", snap.ID),
	)

	stages := []struct {
		name string
		fn   func(context.Context) error
	}{
		{StageIngest, r.ingest},
		{StageRetrieve, r.retrieve},
		{StageAssess, r.assess},
		{StageGenerate, r.generate},
	}

	for i, stage := range stages {
		if err := r.execStage(ctx, i, stage.name, stage.fn); err != nil {
			r.recordSkipped(i + 1)
			metrics.NudgeTotal.WithLabelValues("error").Inc()
			logger.Error("Pipeline run failed",
				zap.String("request_id", r.requestID),
				zap.String("stage", stage.name),
				zap.Error(err),
			)
			return nil, r.trace, &StageError{Stage: stage.name, Err: err}
		}
	}

	cost := float64(r.inTokens)*p.opts.PerInputToken + float64(r.outTokens)*p.opts.PerOutputToken
	p.recorder.RecordCost(r.inTokens, r.outTokens, p.opts.PerInputToken, p.opts.PerOutputToken)
	metrics.NudgeTotal.WithLabelValues("success").Inc()
	metrics.LLMTokensUsed.WithLabelValues("input").Add(float64(r.inTokens))
	metrics.LLMTokensUsed.WithLabelValues("output").Add(float64(r.outTokens))
	metrics.LLMCost.Add(cost)

	nudge := &Nudge{
		RequestID:    r.requestID,
		Text:         r.nudgeText,
		Assessment:   r.assessment,
		InputTokens:  r.inTokens,
		OutputTokens: r.outTokens,
		CostUSD:      cost,
		GeneratedAt:  time.Now(),
	}

	logger.Info("Pipeline run completed",
		zap.String("request_id", r.requestID),
		zap.String("mood", r.assessment.Mood),
		zap.Int("input_tokens", r.inTokens),
		zap.Int("output_tokens", r.outTokens),
	)

	return nudge, r.trace, nil
}

func newTrace() StageTrace {
	trace := make(StageTrace, len(Stages))
	for i, name := range Stages {
		trace[i] = StageResult{Stage: name, Outcome: metrics.OutcomeSkipped}
	}
	return trace
}

// execStage wraps a stage with timing and recording. The recorder is updated
// on every exit path, including errors, so the trace invariant holds.
func (r *run) execStage(ctx context.Context, idx int, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}

	r.trace[idx] = StageResult{Stage: name, Duration: elapsed, Outcome: outcome}
	r.p.recorder.Record(name, elapsed, outcome)
	metrics.StageDuration.WithLabelValues(name, string(outcome)).Observe(elapsed.Seconds())

	return err
}

// recordSkipped marks every stage from idx onward as skipped with the zero
// sentinel duration.
func (r *run) recordSkipped(idx int) {
	for i := idx; i < len(Stages); i++ {
		r.trace[i] = StageResult{Stage: Stages[i], Outcome: metrics.OutcomeSkipped}
		r.p.recorder.Record(Stages[i], 0, metrics.OutcomeSkipped)
	}
}

// ingest validates the snapshot. Fatal when every category is empty.
func (r *run) ingest(ctx context.Context) error {
	if r.snap == nil || r.snap.Empty() {
		return fmt.Errorf("snapshot contains no records in any category")
	}
	return nil
}

// retrieve builds the probe from the snapshot's most recent records and asks
// the active strategy for context. A RetrievalError is recoverable: the run
// proceeds with an empty result.
func (r *run) retrieve(ctx context.Context) error {
	query := buildQuery(r.snap)
	strategy := r.p.strategies.Active()

	result, err := strategy.Retrieve(ctx, r.snap, query, r.p.opts.TopK)
	if err != nil {
		var retrievalErr *retrieval.RetrievalError
		if errors.As(err, &retrievalErr) {
			logger.Warn("Retrieval found no matching records, proceeding with empty context",
				zap.String("request_id", r.requestID),
				zap.String("strategy", strategy.Name()),
			)
			r.retrieved = nil
			return nil
		}
		return err
	}

	r.retrieved = result
	metrics.RetrievalResultsCount.WithLabelValues(strategy.Name()).Observe(float64(len(result)))
	return nil
}

// assess asks the completion provider for a structured mood/need assessment.
// The provider gets exactly one retry with the identical request; still
// failing or unparseable output is fatal.
func (r *run) assess(ctx context.Context) error {
	req := llm.CompletionRequest{
		SystemPrompt: assessSystemPrompt,
		UserPrompt:   buildAssessPrompt(r.snap, r.retrieved),
		Temperature:  0.2,
		MaxTokens:    300,
	}

	assessment, usage, err := r.completeOnce(ctx, req, parseAssessment)
	if err != nil {
		return fmt.Errorf("assessment failed: %w", err)
	}

	r.assessment = assessment.(Assessment)
	r.inTokens += usage.PromptTokens
	r.outTokens += usage.CompletionTokens
	return nil
}

// generate produces the final nudge text from the assessment and retrieved
// context. Same retry policy as assess.
func (r *run) generate(ctx context.Context) error {
	req := llm.CompletionRequest{
		SystemPrompt: nudgeSystemPrompt,
		UserPrompt:   buildNudgePrompt(r.snap, r.retrieved, r.assessment),
		Temperature:  0.7,
		MaxTokens:    150,
	}

	text, usage, err := r.completeOnce(ctx, req, parseNudgeText)
	if err != nil {
		return fmt.Errorf("nudge generation failed: %w", err)
	}

	r.nudgeText = text.(string)
	r.inTokens += usage.PromptTokens
	r.outTokens += usage.CompletionTokens
	return nil
}

// completeOnce calls the provider and parses its output, retrying once with
// the same unmodified request on either a provider error or a parse failure.
func (r *run) completeOnce(ctx context.Context, req llm.CompletionRequest, parse func(string) (interface{}, error)) (interface{}, llm.Usage, error) {
	cfg := retry.Config{
		MaxAttempts:    2,
		InitialDelay:   10 * time.Millisecond,
		MaxDelay:       10 * time.Millisecond,
		Multiplier:     1.0,
		JitterFraction: 0,
		Logger:         logger.GetLogger(),
	}

	type outcome struct {
		value interface{}
		usage llm.Usage
	}

	out, err := retry.DoWithResult(ctx, cfg, func() (outcome, error) {
		resp, err := r.p.provider.Complete(ctx, req)
		if err != nil {
			return outcome{}, err
		}

		value, err := parse(resp.Content)
		if err != nil {
			return outcome{}, fmt.Errorf("unparseable provider output: %w", err)
		}

		return outcome{value: value, usage: resp.Usage}, nil
	})
	if err != nil {
		return nil, llm.Usage{}, err
	}

	return out.value, out.usage, nil
}

// buildQuery derives the retrieval probe from the most time-proximate
// records, preferring the latest message and activity.
func buildQuery(snap *snapshot.ContextSnapshot) retrieval.Query {
	var parts []string

	if n := len(snap.Messages); n > 0 {
		parts = append(parts, fmt.Sprintf("Recent message: %s", snap.Messages[n-1].Text))
	}
	if n := len(snap.Activity); n > 0 {
		parts = append(parts, fmt.Sprintf("Current activity: %s", snap.Activity[n-1].Text))
	}

	probe := strings.Join(parts, " ")
	if probe == "" {
		probe = "user context and mood"
	}

	return retrieval.Query{Probe: probe}
}

func parseAssessment(content string) (interface{}, error) {
	payload := extractJSON(content)

	var assessment Assessment
	if err := json.Unmarshal([]byte(payload), &assessment); err != nil {
		return nil, err
	}
	if assessment.Mood == "" {
		return nil, fmt.Errorf("assessment missing mood")
	}
	if assessment.Confidence < 0 || assessment.Confidence > 1 {
		return nil, fmt.Errorf("assessment confidence %f out of range", assessment.Confidence)
	}
	return assessment, nil
}

func parseNudgeText(content string) (interface{}, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		return nil, fmt.Errorf("empty nudge text")
	}
	return text, nil
}

// extractJSON strips markdown code fences some models wrap JSON in.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			return content[start : end+1]
		}
	}
	return content
}
