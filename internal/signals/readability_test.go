package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeReadability_Simple(t *testing.T) {
	r := AnalyzeReadability("The cat sat on the mat.")
	assert.Equal(t, 6, r.SyllableCount)
	assert.Equal(t, 0, r.DifficultWords)
	assert.InDelta(t, 116.15, r.FleschReadingEase, 0.011)
	assert.InDelta(t, 0.03, r.ReadingTimeMinutes, 1e-9)
}

func TestAnalyzeReadability_Empty(t *testing.T) {
	assert.Equal(t, Readability{}, AnalyzeReadability("  12 34 "))
}

func TestCountSentences(t *testing.T) {
	assert.Equal(t, 3, CountSentences("One. Two! Three?"))
	assert.Equal(t, 2, CountSentences("Header line\n\nBody text without stop"))
	assert.Equal(t, 0, CountSentences("   "))
}

func TestCountSyllables(t *testing.T) {
	assert.Equal(t, 1, countSyllables("cat"))
	assert.Equal(t, 1, countSyllables("make"))
	assert.Equal(t, 2, countSyllables("table"))
	assert.Equal(t, 4, countSyllables("education"))
}
