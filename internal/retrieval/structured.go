package retrieval

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/proactive-assistant/backend/internal/snapshot"
	"github.com/proactive-assistant/backend/pkg/logger"
)

// StructuredWeights blends the three lookup signals. The weights should sum
// to 1 so the combined score stays in [0,1].
type StructuredWeights struct {
	Category float64
	Time     float64
	Keyword  float64
}

func DefaultStructuredWeights() StructuredWeights {
	return StructuredWeights{Category: 0.3, Time: 0.3, Keyword: 0.4}
}

// StructuredStrategy scores records through three indexes built once per
// snapshot: by category, by hour bucket and by keyword token. No embedding
// calls are made, which is what makes it the cheap option.
type StructuredStrategy struct {
	weights StructuredWeights
	horizon time.Duration

	mu      sync.Mutex
	indexes map[string]*structuredIndex
}

type structuredIndex struct {
	records    []snapshot.ContextRecord
	byCategory map[snapshot.Category][]int
	byHour     map[int][]int
	byKeyword  map[string][]int
	tokenSets  []map[string]struct{}
}

func NewStructuredStrategy(weights StructuredWeights, horizon time.Duration) *StructuredStrategy {
	if horizon <= 0 {
		horizon = 6 * time.Hour
	}
	return &StructuredStrategy{
		weights: weights,
		horizon: horizon,
		indexes: make(map[string]*structuredIndex),
	}
}

func (s *StructuredStrategy) Name() string { return StrategyStructured }

func (s *StructuredStrategy) Retrieve(ctx context.Context, snap *snapshot.ContextSnapshot, query Query, k int) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkRequiredCategories(s.Name(), snap, query); err != nil {
		return nil, err
	}

	idx := s.indexFor(snap)
	queryTokens := Tokenize(query.Probe)

	candidates := idx.candidates(query)

	scored := make(Result, 0, len(candidates))
	for _, i := range candidates {
		rec := idx.records[i]
		if !query.WindowFrom.IsZero() && rec.Timestamp.Before(query.WindowFrom) {
			continue
		}
		if !query.WindowTo.IsZero() && rec.Timestamp.After(query.WindowTo) {
			continue
		}

		score := s.score(snap.TakenAt, rec, idx.tokenSets[i], query, queryTokens)
		scored = append(scored, Scored{Record: rec, Score: score})
	}

	// Descending by score, more recent timestamp breaks ties.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Record.Timestamp.After(scored[j].Record.Timestamp)
	})

	if len(scored) > k {
		scored = scored[:k]
	}

	logger.Debug("Structured retrieval completed",
		zap.String("snapshot_id", snap.ID),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(scored)),
	)

	return scored, nil
}

// score is a weighted union of category match, time-window proximity and
// keyword overlap fraction.
func (s *StructuredStrategy) score(now time.Time, rec snapshot.ContextRecord, recTokens map[string]struct{}, query Query, queryTokens []string) float64 {
	categoryScore := 0.0
	if matchesCategory(rec, query.Categories) {
		categoryScore = 1.0
	}

	age := now.Sub(rec.Timestamp)
	if age < 0 {
		age = -age
	}
	timeScore := 1.0 - float64(age)/float64(s.horizon)
	if timeScore < 0 {
		timeScore = 0
	}

	keywordScore := 0.0
	if len(queryTokens) > 0 {
		matched := 0
		for _, tok := range queryTokens {
			if _, ok := recTokens[tok]; ok {
				matched++
			}
		}
		keywordScore = float64(matched) / float64(len(queryTokens))
	}

	return s.weights.Category*categoryScore + s.weights.Time*timeScore + s.weights.Keyword*keywordScore
}

func (s *StructuredStrategy) indexFor(snap *snapshot.ContextSnapshot) *structuredIndex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.indexes[snap.ID]; ok {
		return idx
	}

	records := snap.Records()
	idx := &structuredIndex{
		records:    records,
		byCategory: make(map[snapshot.Category][]int),
		byHour:     make(map[int][]int),
		byKeyword:  make(map[string][]int),
		tokenSets:  make([]map[string]struct{}, len(records)),
	}

	for i, rec := range records {
		idx.byCategory[rec.Category] = append(idx.byCategory[rec.Category], i)
		idx.byHour[rec.Timestamp.Hour()] = append(idx.byHour[rec.Timestamp.Hour()], i)

		tokens := TokenSet(rec.Text)
		idx.tokenSets[i] = tokens
		for tok := range tokens {
			idx.byKeyword[tok] = append(idx.byKeyword[tok], i)
		}
	}

	if len(s.indexes) >= maxCachedIndexes {
		s.indexes = make(map[string]*structuredIndex)
	}
	s.indexes[snap.ID] = idx
	return idx
}

// candidates narrows the scan through the category index when the query
// filters on categories; otherwise every record is a candidate.
func (idx *structuredIndex) candidates(query Query) []int {
	if len(query.Categories) == 0 {
		all := make([]int, len(idx.records))
		for i := range idx.records {
			all[i] = i
		}
		return all
	}

	seen := make(map[int]struct{})
	out := make([]int, 0)
	for _, c := range query.Categories {
		for _, i := range idx.byCategory[c] {
			if _, ok := seen[i]; ok {
				continue
			}
			seen[i] = struct{}{}
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}
