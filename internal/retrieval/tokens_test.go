package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeLowercasesAndDropsPunctuation(t *testing.T) {
	tokens := Tokenize("Take a walk, NOW!")

	assert.Equal(t, []string{"take", "a", "walk", "now"}, tokens)
}

func TestTokenizeEmpty(t *testing.T) {
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("..."))
}

func TestTokenSetDistinct(t *testing.T) {
	set := TokenSet("walk walk run")

	assert.Len(t, set, 2)
	assert.Contains(t, set, "walk")
	assert.Contains(t, set, "run")
}

func TestFallbackTokenizeMatchesWordSplit(t *testing.T) {
	tokens := fallbackTokenize("Heart-rate: 142 bpm")

	assert.Equal(t, []string{"heart", "rate", "142", "bpm"}, tokens)
}
