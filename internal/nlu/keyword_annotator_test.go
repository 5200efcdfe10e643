package nlu

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFindsAllRepeatedOccurrences(t *testing.T) {
	a := NewKeywordAnnotator(zerolog.Nop())

	spans := a.Extract("AI AI AI is everywhere.", []string{"AI"})

	require.Len(t, spans, 3)
	assert.Equal(t, Span{Start: 0, End: 2}, spans[0])
	assert.Equal(t, Span{Start: 3, End: 5}, spans[1])
	assert.Equal(t, Span{Start: 6, End: 8}, spans[2])
}

func TestExtractRejectsSubstringMatches(t *testing.T) {
	a := NewKeywordAnnotator(zerolog.Nop())

	spans := a.Extract("Technical claim.", []string{"AI"})

	assert.Empty(t, spans)
}

func TestExtractIsCaseInsensitive(t *testing.T) {
	a := NewKeywordAnnotator(zerolog.Nop())

	spans := a.Extract("pizza, Pizza and PIZZA!", []string{"pizza"})

	require.Len(t, spans, 3)
	for _, s := range spans {
		assert.Equal(t, 5, s.End-s.Start)
	}
}

func TestExtractMatchesSynonymAlternatives(t *testing.T) {
	a := NewKeywordAnnotator(zerolog.Nop())

	text := "I want a soda or a pop"
	spans := a.Extract(text, []string{"soft drink", "soda", "pop"})

	require.Len(t, spans, 2)
	assert.Equal(t, "soda", text[spans[0].Start:spans[0].End])
	assert.Equal(t, "pop", text[spans[1].Start:spans[1].End])
}

func TestExtractUsesUnicodeLetterBoundaries(t *testing.T) {
	a := NewKeywordAnnotator(zerolog.Nop())

	// Adjacent non-ASCII letters must block the match just like ASCII ones.
	assert.Empty(t, a.Extract("caféstreet", []string{"street"}))

	text := "café street"
	spans := a.Extract(text, []string{"café"})
	require.Len(t, spans, 1)
	assert.Equal(t, "café", text[spans[0].Start:spans[0].End])
}

func TestExtractAllowsPunctuationBoundaries(t *testing.T) {
	a := NewKeywordAnnotator(zerolog.Nop())

	text := "Order pizza, now!"
	spans := a.Extract(text, []string{"pizza"})

	require.Len(t, spans, 1)
	assert.Equal(t, "pizza", text[spans[0].Start:spans[0].End])
}

func TestExtractFindsMatchInsideRejectedWindow(t *testing.T) {
	a := NewKeywordAnnotator(zerolog.Nop())

	// "e-mail" at [1,7) is rejected (preceded by a letter), but "mail" at
	// [3,7) is a valid whole word and must still be reported.
	text := "xe-mail"
	spans := a.Extract(text, []string{"e-mail", "mail"})

	require.Len(t, spans, 1)
	assert.Equal(t, Span{Start: 3, End: 7}, spans[0])
	assert.Equal(t, "mail", text[spans[0].Start:spans[0].End])

	// Standalone hyphenated keywords still match whole.
	spans = a.Extract("send an e-mail today", []string{"e-mail", "mail"})
	require.Len(t, spans, 1)
	assert.Equal(t, 8, spans[0].Start)
	assert.Equal(t, 14, spans[0].End)
}

func TestExtractNoOccurrenceReturnsEmpty(t *testing.T) {
	a := NewKeywordAnnotator(zerolog.Nop())

	assert.Empty(t, a.Extract("nothing to see here", []string{"pizza"}))
	assert.Empty(t, a.Extract("", []string{"pizza"}))
	assert.Empty(t, a.Extract("some text", nil))
	assert.Empty(t, a.Extract("some text", []string{""}))
}

func TestExtractSurvivesInvalidPattern(t *testing.T) {
	a := NewKeywordAnnotator(zerolog.Nop())

	// Keywords are interpolated as-is; a broken fragment must not panic.
	assert.Empty(t, a.Extract("some text", []string{"("}))
}
