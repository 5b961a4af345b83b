package models

import "time"

// NudgeRecord is one completed (or failed) pipeline run as persisted.
type NudgeRecord struct {
	RequestID    string
	SnapshotID   string
	NudgeText    string
	Mood         string
	Confidence   float64
	Rationale    string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	LatencyMS    int
	Status       string
	CreatedAt    time.Time
}

// StageTraceRow is one stage of a run's trace.
type StageTraceRow struct {
	ID         int
	RequestID  string
	StageIndex int
	Stage      string
	DurationUS int64
	Outcome    string
}

// BenchmarkRecord is one strategy benchmark decision.
type BenchmarkRecord struct {
	ID                  int
	Chosen              string
	Margin              float64
	SemanticRelevance   float64
	SemanticLatencyMS   float64
	SemanticSamples     int
	SemanticErrors      int
	StructuredRelevance float64
	StructuredLatencyMS float64
	StructuredSamples   int
	StructuredErrors    int
	DecidedAt           time.Time
}

// EvaluationRow is one golden-example score.
type EvaluationRow struct {
	ID        int
	ExampleID string
	Candidate string
	Semantic  float64
	Rouge1F1  float64
	Rouge2F1  float64
	RougeLF1  float64
	Composite float64
	CreatedAt time.Time
}
