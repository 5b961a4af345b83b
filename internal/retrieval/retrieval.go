package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/proactive-assistant/backend/internal/snapshot"
)

// Strategy identifiers, used by the selector and in benchmark results.
const (
	StrategySemantic   = "semantic"
	StrategyStructured = "structured"
)

// Query is the request-scoped probe built by the pipeline at Retrieve entry:
// a short text plus optional category and time filters.
type Query struct {
	Probe      string
	Categories []snapshot.Category
	WindowFrom time.Time
	WindowTo   time.Time
}

// Scored pairs a context record with a relevance score in [0,1]. Score
// semantics differ per strategy; the output contract does not.
type Scored struct {
	Record snapshot.ContextRecord
	Score  float64
}

// Result is an ordered sequence of scored records, descending by score,
// never longer than the requested K.
type Result []Scored

// TopScore returns the relevance of the best match, or 0 for an empty result.
func (r Result) TopScore() float64 {
	if len(r) == 0 {
		return 0
	}
	return r[0].Score
}

// Strategy is the one capability both retrievers implement. Retrieve is
// deterministic for identical inputs and an unchanged index, and never
// mutates the snapshot.
type Strategy interface {
	Name() string
	Retrieve(ctx context.Context, snap *snapshot.ContextSnapshot, query Query, k int) (Result, error)
}

// RetrievalError reports that the snapshot holds no records in a category the
// query's filters require. The pipeline treats it as recoverable.
type RetrievalError struct {
	Strategy string
	Category snapshot.Category
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("%s retrieval: no records in required category %q", e.Strategy, e.Category)
}

// checkRequiredCategories returns a *RetrievalError when a filtered category
// has no records in the snapshot.
func checkRequiredCategories(strategy string, snap *snapshot.ContextSnapshot, query Query) error {
	for _, c := range query.Categories {
		if len(snap.ByCategory(c)) == 0 {
			return &RetrievalError{Strategy: strategy, Category: c}
		}
	}
	return nil
}

// filterRecords applies the query's category and time filters.
func filterRecords(records []snapshot.ContextRecord, query Query) []snapshot.ContextRecord {
	out := make([]snapshot.ContextRecord, 0, len(records))
	for _, rec := range records {
		if !matchesCategory(rec, query.Categories) {
			continue
		}
		if !query.WindowFrom.IsZero() && rec.Timestamp.Before(query.WindowFrom) {
			continue
		}
		if !query.WindowTo.IsZero() && rec.Timestamp.After(query.WindowTo) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func matchesCategory(rec snapshot.ContextRecord, categories []snapshot.Category) bool {
	if len(categories) == 0 {
		return true
	}
	for _, c := range categories {
		if rec.Category == c {
			return true
		}
	}
	return false
}
