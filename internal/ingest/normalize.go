package ingest

import (
	"regexp"
	"strings"
)

// charsPerPage is the rough character count of one printed page, used to
// estimate page counts for pasted text.
const charsPerPage = 1800

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
)

// Normalize strips characters the text store rejects and collapses
// whitespace runs. It returns the cleaned text and an approximate page
// count. Pure transform, no side effects.
func Normalize(raw string) (string, int) {
	var sb strings.Builder
	sb.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r == 0x00:
			// NUL is illegal in the text store.
		case r == '\r':
			// Normalize CRLF to LF.
		case r < 0x20 && r != '\n' && r != '\t':
			// Other control characters are dropped.
		default:
			sb.WriteRune(r)
		}
	}

	text := spaceRuns.ReplaceAllString(sb.String(), " ")
	text = newlineRuns.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	if text == "" {
		return "", 0
	}

	pages := len(text)/charsPerPage + 1
	return text, pages
}
