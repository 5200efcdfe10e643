package nlu

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Span is one matched keyword occurrence, as byte offsets into the text
// such that text[Start:End] case-insensitively equals one of the keywords.
type Span struct {
	Start int
	End   int
}

// KeywordAnnotator finds whole-word, case-insensitive occurrences of a
// value's keyword set (canonical value plus synonyms) in free text.
//
// Keywords are interpolated into the alternation pattern as-is. Callers that
// need literal matching must not supply keywords containing unescaped regex
// metacharacters.
type KeywordAnnotator struct {
	logger zerolog.Logger
}

// NewKeywordAnnotator creates a keyword annotator.
func NewKeywordAnnotator(logger zerolog.Logger) *KeywordAnnotator {
	return &KeywordAnnotator{logger: logger}
}

// Extract returns all non-overlapping whole-word matches of keywords in
// text, in left-to-right order. Word boundaries are Unicode-aware: a match
// is kept only when the adjacent runes on both sides are not letters (or the
// match touches a string boundary). No matches yields an empty result, never
// an error.
func (a *KeywordAnnotator) Extract(text string, keywords []string) []Span {
	alternatives := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k != "" {
			alternatives = append(alternatives, k)
		}
	}
	if len(alternatives) == 0 {
		return nil
	}

	re, err := regexp.Compile("(?i)(" + strings.Join(alternatives, "|") + ")")
	if err != nil {
		a.logger.Warn().Err(err).Strs("keywords", keywords).
			Msg("failed to compile keyword pattern, skipping extraction")
		return nil
	}

	var spans []Span
	pos := 0
	for pos <= len(text) {
		loc := re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]

		// Zero-width match: advance one rune to avoid an infinite scan.
		if start == end {
			if end >= len(text) {
				break
			}
			_, size := utf8.DecodeRuneInString(text[end:])
			pos = end + size
			continue
		}

		if wholeWord(text, start, end) {
			spans = append(spans, Span{Start: start, End: end})
			pos = end
			continue
		}

		// A rejected match must not consume its window: a shorter
		// alternative starting inside it can still be a whole word.
		_, size := utf8.DecodeRuneInString(text[start:])
		pos = start + size
	}
	return spans
}

// wholeWord reports whether the match at text[start:end] is bounded by
// non-letters or string boundaries on both sides.
func wholeWord(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if unicode.IsLetter(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
