package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverlapIdenticalTexts(t *testing.T) {
	scores := OverlapScorer{}.Score("take a short walk", "take a short walk")

	assert.Equal(t, 1.0, scores.Unigram.F1)
	assert.Equal(t, 1.0, scores.Bigram.F1)
	assert.Equal(t, 1.0, scores.LCS.F1)
}

func TestOverlapDisjointTexts(t *testing.T) {
	scores := OverlapScorer{}.Score("alpha beta gamma", "delta epsilon zeta")

	assert.Equal(t, 0.0, scores.Unigram.F1)
	assert.Equal(t, 0.0, scores.Bigram.F1)
	assert.Equal(t, 0.0, scores.LCS.F1)
}

func TestOverlapPartial(t *testing.T) {
	// candidate: [the cat sat], reference: [the cat ran]
	// unigram matches: "the", "cat" -> P = R = 2/3
	scores := OverlapScorer{}.Score("the cat sat", "the cat ran")

	assert.InDelta(t, 2.0/3.0, scores.Unigram.Precision, 1e-9)
	assert.InDelta(t, 2.0/3.0, scores.Unigram.Recall, 1e-9)
	assert.InDelta(t, 2.0/3.0, scores.Unigram.F1, 1e-9)

	// bigrams: candidate ["the cat", "cat sat"], reference ["the cat", "cat ran"]
	assert.InDelta(t, 0.5, scores.Bigram.Precision, 1e-9)
	assert.InDelta(t, 0.5, scores.Bigram.Recall, 1e-9)

	// LCS = [the cat], length 2 over 3 tokens each side.
	assert.InDelta(t, 2.0/3.0, scores.LCS.F1, 1e-9)
}

func TestOverlapClippedCounts(t *testing.T) {
	// "go" appears twice in the candidate but once in the reference, so only
	// one occurrence counts as a match.
	scores := OverlapScorer{}.Score("go go home", "go home now")

	assert.InDelta(t, 2.0/3.0, scores.Unigram.Precision, 1e-9)
	assert.InDelta(t, 2.0/3.0, scores.Unigram.Recall, 1e-9)
}

func TestOverlapCaseAndPunctuationInsensitive(t *testing.T) {
	scores := OverlapScorer{}.Score("Take a walk!", "take a walk")

	assert.Equal(t, 1.0, scores.Unigram.F1)
	assert.Equal(t, 1.0, scores.LCS.F1)
}

func TestOverlapEmptyCandidate(t *testing.T) {
	scores := OverlapScorer{}.Score("", "take a walk")

	assert.Equal(t, 0.0, scores.Unigram.F1)
	assert.Equal(t, 0.0, scores.LCS.F1)
}

func TestLCSOrderSensitive(t *testing.T) {
	// Same token multiset, different order: LCS is shorter than full length.
	scores := OverlapScorer{}.Score("walk short a take", "take a short walk")

	assert.Equal(t, 1.0, scores.Unigram.F1)
	assert.Less(t, scores.LCS.F1, 1.0)
}
