package evaluation

import (
	"strings"

	"github.com/proactive-assistant/backend/internal/retrieval"
)

// NGramScores holds precision, recall and F1 for one overlap signal.
type NGramScores struct {
	Precision float64
	Recall    float64
	F1        float64
}

// LexicalScores bundles the three overlap signals computed per candidate.
type LexicalScores struct {
	Unigram NGramScores
	Bigram  NGramScores
	LCS     NGramScores
}

// LexicalScorer scores a candidate against a reference text. The harness
// treats it as an opaque collaborator so tests can substitute fixed scores.
type LexicalScorer interface {
	Score(candidate, reference string) LexicalScores
}

// OverlapScorer computes token-level n-gram overlap and longest common
// subsequence scores. Tokenization matches the retrieval package, so the
// keyword index and the quality scores agree on what a word is.
type OverlapScorer struct{}

func (OverlapScorer) Score(candidate, reference string) LexicalScores {
	candTokens := retrieval.Tokenize(candidate)
	refTokens := retrieval.Tokenize(reference)

	return LexicalScores{
		Unigram: ngramOverlap(candTokens, refTokens, 1),
		Bigram:  ngramOverlap(candTokens, refTokens, 2),
		LCS:     lcsScores(candTokens, refTokens),
	}
}

// ngramOverlap counts clipped n-gram matches: each reference n-gram can be
// matched at most as many times as it occurs in the reference.
func ngramOverlap(candidate, reference []string, n int) NGramScores {
	candGrams := ngrams(candidate, n)
	refGrams := ngrams(reference, n)

	if len(candGrams) == 0 || len(refGrams) == 0 {
		return NGramScores{}
	}

	refCounts := make(map[string]int, len(refGrams))
	for _, g := range refGrams {
		refCounts[g]++
	}

	matches := 0
	for _, g := range candGrams {
		if refCounts[g] > 0 {
			refCounts[g]--
			matches++
		}
	}

	precision := float64(matches) / float64(len(candGrams))
	recall := float64(matches) / float64(len(refGrams))
	return NGramScores{
		Precision: precision,
		Recall:    recall,
		F1:        f1(precision, recall),
	}
}

// lcsScores computes the longest common subsequence of the two token
// sequences and derives precision/recall against each sequence's length.
func lcsScores(candidate, reference []string) NGramScores {
	if len(candidate) == 0 || len(reference) == 0 {
		return NGramScores{}
	}

	lcs := lcsLength(candidate, reference)
	precision := float64(lcs) / float64(len(candidate))
	recall := float64(lcs) / float64(len(reference))
	return NGramScores{
		Precision: precision,
		Recall:    recall,
		F1:        f1(precision, recall),
	}
}

func lcsLength(a, b []string) int {
	// Two rolling rows keep the table at O(len(b)) memory.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func ngrams(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}

	grams := make([]string, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		grams = append(grams, strings.Join(tokens[i:i+n], " "))
	}
	return grams
}

func f1(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}
