package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proactive-assistant/backend/internal/llm"
	"github.com/proactive-assistant/backend/internal/metrics"
	"github.com/proactive-assistant/backend/internal/retrieval"
	"github.com/proactive-assistant/backend/internal/snapshot"
)

// stubStrategy returns a fixed result or error.
type stubStrategy struct {
	result retrieval.Result
	err    error
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) Retrieve(ctx context.Context, snap *snapshot.ContextSnapshot, query retrieval.Query, k int) (retrieval.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubSource struct{ strategy retrieval.Strategy }

func (s *stubSource) Active() retrieval.Strategy { return s.strategy }

// scriptedProvider replays completions in order.
type scriptedProvider struct {
	responses []scriptedResponse
	calls     int
}

type scriptedResponse struct {
	content string
	err     error
}

func (p *scriptedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	idx := p.calls
	p.calls++
	if idx >= len(p.responses) {
		return nil, errors.New("no scripted response left")
	}

	r := p.responses[idx]
	if r.err != nil {
		return nil, r.err
	}
	return &llm.CompletionResponse{
		Content: r.content,
		Usage:   llm.Usage{PromptTokens: 100, CompletionTokens: 40, TotalTokens: 140},
	}, nil
}

const goodAssessment = `{"mood": "stressed", "confidence": 0.8, "rationale": "deadline pressure"}`

func pipelineSnapshot() *snapshot.ContextSnapshot {
	now := time.Now()
	return &snapshot.ContextSnapshot{
		ID:      "snap-pipe",
		TakenAt: now,
		Messages: []snapshot.ContextRecord{
			{Timestamp: now.Add(-5 * time.Minute), Category: snapshot.CategoryMessage, Text: "Deadline moved up"},
		},
		Activity: []snapshot.ContextRecord{
			{Timestamp: now.Add(-15 * time.Minute), Category: snapshot.CategoryActivity, Text: "Long work session"},
		},
	}
}

func newTestPipeline(source StrategySource, provider CompletionProvider) (*Pipeline, *metrics.Recorder) {
	recorder := metrics.NewRecorder()
	p := New(source, provider, recorder, Options{
		TopK:           3,
		PerInputToken:  0.0000001,
		PerOutputToken: 0.0000001,
	})
	return p, recorder
}

func TestRunProducesCompleteTrace(t *testing.T) {
	provider := &scriptedProvider{responses: []scriptedResponse{
		{content: goodAssessment},
		{content: "Take a short walk before your next work block."},
	}}
	source := &stubSource{strategy: &stubStrategy{result: retrieval.Result{{Score: 0.9}}}}

	p, recorder := newTestPipeline(source, provider)
	nudge, trace, err := p.Run(context.Background(), pipelineSnapshot())
	require.NoError(t, err)

	require.Len(t, trace, 4)
	for i, name := range Stages {
		assert.Equal(t, name, trace[i].Stage)
		assert.Equal(t, metrics.OutcomeSuccess, trace[i].Outcome)
		assert.GreaterOrEqual(t, trace[i].Duration, time.Duration(0))
	}

	require.NotNil(t, nudge)
	assert.Equal(t, "Take a short walk before your next work block.", nudge.Text)
	assert.Equal(t, "stressed", nudge.Assessment.Mood)
	assert.InDelta(t, 0.8, nudge.Assessment.Confidence, 1e-9)
	assert.Equal(t, 200, nudge.InputTokens)
	assert.Equal(t, 80, nudge.OutputTokens)
	assert.NotEmpty(t, nudge.RequestID)

	summary := recorder.Summarize()
	assert.Equal(t, 4, summary.SampleCount)
	assert.Equal(t, 1, summary.CostEntries)
	assert.Equal(t, 200, summary.TotalInputTokens)
}

func TestRunEmptySnapshotFatalAtIngest(t *testing.T) {
	provider := &scriptedProvider{}
	source := &stubSource{strategy: &stubStrategy{}}

	p, recorder := newTestPipeline(source, provider)
	nudge, trace, err := p.Run(context.Background(), &snapshot.ContextSnapshot{ID: "empty"})

	require.Error(t, err)
	assert.Nil(t, nudge)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageIngest, stageErr.Stage)

	require.Len(t, trace, 4)
	assert.Equal(t, metrics.OutcomeFailure, trace[0].Outcome)
	for i := 1; i < 4; i++ {
		assert.Equal(t, metrics.OutcomeSkipped, trace[i].Outcome)
		assert.Equal(t, time.Duration(0), trace[i].Duration)
	}

	assert.Equal(t, 0, provider.calls)
	assert.Equal(t, 4, recorder.Summarize().SampleCount)
}

func TestRunRecoverableRetrievalError(t *testing.T) {
	provider := &scriptedProvider{responses: []scriptedResponse{
		{content: goodAssessment},
		{content: "Maybe stretch for a few minutes."},
	}}
	source := &stubSource{strategy: &stubStrategy{
		err: &retrieval.RetrievalError{Strategy: "stub", Category: snapshot.CategoryMedia},
	}}

	p, _ := newTestPipeline(source, provider)
	nudge, trace, err := p.Run(context.Background(), pipelineSnapshot())

	// The run proceeds with an empty retrieved context.
	require.NoError(t, err)
	require.NotNil(t, nudge)
	assert.Equal(t, metrics.OutcomeSuccess, trace[1].Outcome)
}

func TestRunOtherRetrievalFailureIsFatal(t *testing.T) {
	provider := &scriptedProvider{}
	source := &stubSource{strategy: &stubStrategy{err: errors.New("index corrupted")}}

	p, _ := newTestPipeline(source, provider)
	nudge, trace, err := p.Run(context.Background(), pipelineSnapshot())

	require.Error(t, err)
	assert.Nil(t, nudge)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageRetrieve, stageErr.Stage)

	assert.Equal(t, metrics.OutcomeFailure, trace[1].Outcome)
	assert.Equal(t, metrics.OutcomeSkipped, trace[2].Outcome)
	assert.Equal(t, metrics.OutcomeSkipped, trace[3].Outcome)
	assert.Equal(t, 0, provider.calls)
}

func TestRunAssessRetriesOnceThenSucceeds(t *testing.T) {
	provider := &scriptedProvider{responses: []scriptedResponse{
		{err: errors.New("provider timeout")},
		{content: goodAssessment},
		{content: "Grab some water."},
	}}
	source := &stubSource{strategy: &stubStrategy{}}

	p, _ := newTestPipeline(source, provider)
	nudge, trace, err := p.Run(context.Background(), pipelineSnapshot())

	require.NoError(t, err)
	require.NotNil(t, nudge)
	assert.Equal(t, 3, provider.calls)
	assert.Equal(t, metrics.OutcomeSuccess, trace[2].Outcome)
}

func TestRunAssessFatalAfterSingleRetry(t *testing.T) {
	provider := &scriptedProvider{responses: []scriptedResponse{
		{err: errors.New("provider down")},
		{err: errors.New("provider down")},
	}}
	source := &stubSource{strategy: &stubStrategy{}}

	p, _ := newTestPipeline(source, provider)
	nudge, trace, err := p.Run(context.Background(), pipelineSnapshot())

	require.Error(t, err)
	assert.Nil(t, nudge)

	// Exactly one retry with the same request.
	assert.Equal(t, 2, provider.calls)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageAssess, stageErr.Stage)
	assert.Equal(t, metrics.OutcomeFailure, trace[2].Outcome)
	assert.Equal(t, metrics.OutcomeSkipped, trace[3].Outcome)
}

func TestRunUnparseableAssessmentIsFatal(t *testing.T) {
	provider := &scriptedProvider{responses: []scriptedResponse{
		{content: "I feel like the user is doing fine."},
		{content: "still not JSON"},
	}}
	source := &stubSource{strategy: &stubStrategy{}}

	p, _ := newTestPipeline(source, provider)
	_, _, err := p.Run(context.Background(), pipelineSnapshot())

	require.Error(t, err)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageAssess, stageErr.Stage)
	assert.Equal(t, 2, provider.calls)
}

func TestRunGenerateFatalAfterRetry(t *testing.T) {
	provider := &scriptedProvider{responses: []scriptedResponse{
		{content: goodAssessment},
		{err: errors.New("provider down")},
		{err: errors.New("provider down")},
	}}
	source := &stubSource{strategy: &stubStrategy{}}

	p, recorder := newTestPipeline(source, provider)
	nudge, trace, err := p.Run(context.Background(), pipelineSnapshot())

	require.Error(t, err)
	assert.Nil(t, nudge)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageGenerate, stageErr.Stage)
	assert.Equal(t, metrics.OutcomeSuccess, trace[2].Outcome)
	assert.Equal(t, metrics.OutcomeFailure, trace[3].Outcome)

	// A failed run never records a cost entry.
	assert.Equal(t, 0, recorder.Summarize().CostEntries)
}

func TestParseAssessmentCodeFence(t *testing.T) {
	fenced := "```json\n" + goodAssessment + "\n```"
	value, err := parseAssessment(fenced)
	require.NoError(t, err)

	assessment := value.(Assessment)
	assert.Equal(t, "stressed", assessment.Mood)
}

func TestParseAssessmentRejectsOutOfRangeConfidence(t *testing.T) {
	_, err := parseAssessment(`{"mood": "calm", "confidence": 1.4, "rationale": "x"}`)
	assert.Error(t, err)
}

func TestBuildQueryFallbackProbe(t *testing.T) {
	now := time.Now()
	snap := &snapshot.ContextSnapshot{
		ID:      "snap-cal",
		TakenAt: now,
		Calendar: []snapshot.ContextRecord{
			{Timestamp: now, Category: snapshot.CategoryCalendar, Text: "Standup at 9"},
		},
	}

	query := buildQuery(snap)
	assert.Equal(t, "user context and mood", query.Probe)
}
