package stream

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxOverlap bounds the suffix/prefix overlap search when merging chunks.
const maxOverlap = 4096

// Merge appends incoming text to prev, deduplicating the longest region
// where a suffix of prev equals a prefix of incoming. Resumed generations
// often replay their tail, so plain concatenation would double text.
// When no overlap exists and the join would fuse two words, a single space
// is inserted.
func Merge(prev, incoming string) string {
	if incoming == "" {
		return prev
	}
	if prev == "" {
		return incoming
	}

	limit := len(prev)
	if len(incoming) < limit {
		limit = len(incoming)
	}
	if limit > maxOverlap {
		limit = maxOverlap
	}

	for k := limit; k > 0; k-- {
		if strings.HasSuffix(prev, incoming[:k]) {
			// The replayed region ends exactly where the remainder picks
			// up, so no separator belongs at the seam.
			return prev + incoming[k:]
		}
	}

	if needsSpace(prev, incoming) {
		return prev + " " + incoming
	}
	return prev + incoming
}

// needsSpace reports whether concatenating would glue two words together:
// alphanumeric against alphanumeric, or sentence punctuation directly
// against a letter.
func needsSpace(prev, next string) bool {
	last, _ := utf8.DecodeLastRuneInString(prev)
	first, _ := utf8.DecodeRuneInString(next)
	if last == utf8.RuneError || first == utf8.RuneError {
		return false
	}

	alnum := func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }
	if alnum(last) && alnum(first) {
		return true
	}
	if strings.ContainsRune(".,!?;:", last) && unicode.IsLetter(first) {
		return true
	}
	return false
}
