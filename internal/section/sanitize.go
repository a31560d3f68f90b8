package section

import (
	"regexp"
	"strings"
)

// Sanitize cleans raw model output for display: unwrap accidental code
// fences, strip a leading heading that just restates the title, and drop
// meta-preamble lines. Idempotent, so already-clean text passes through.
func Sanitize(title, text string) string {
	text = strings.TrimSpace(text)
	text = UnwrapFences(text)
	text = stripLeadingTitleHeading(title, text)
	text = stripPreamble(text)
	return strings.TrimSpace(text)
}

// UnwrapFences removes a code fence wrapping the entire response, handles
// the variant where every line was indented four spaces, and strips a
// single stray fence line left mid-text. Fenced blocks that are part of
// legitimate content (opened and closed within the body) are untouched.
func UnwrapFences(text string) string {
	lines := strings.Split(text, "\n")

	// Whole response wrapped in one fence pair.
	if len(lines) >= 2 && isFenceLine(lines[0]) && isFenceLine(lines[len(lines)-1]) {
		tag := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lines[0]), "```"))
		switch tag {
		case "", "text", "plain", "markdown", "md":
			inner := lines[1 : len(lines)-1]
			if countFences(inner)%2 == 0 {
				return strings.TrimSpace(strings.Join(inner, "\n"))
			}
		}
	}

	// Every non-blank line indented four spaces reads as one code block.
	// Deeper indentation is left alone: if stripping one level would still
	// leave everything indented, the indentation is content, and stripping
	// here would peel another level on every re-application.
	if len(lines) > 0 && allIndented(lines) {
		out := make([]string, len(lines))
		for i, l := range lines {
			out[i] = strings.TrimPrefix(l, "    ")
		}
		if !allIndented(out) {
			return strings.Join(out, "\n")
		}
	}

	// A lone unpaired fence line is an artifact, not a block.
	if countFences(lines) == 1 {
		out := lines[:0:0]
		for _, l := range lines {
			if isFenceLine(l) {
				continue
			}
			out = append(out, l)
		}
		return strings.Join(out, "\n")
	}

	return text
}

func isFenceLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}

func countFences(lines []string) int {
	n := 0
	for _, l := range lines {
		if isFenceLine(l) {
			n++
		}
	}
	return n
}

func allIndented(lines []string) bool {
	sawContent := false
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		if !strings.HasPrefix(l, "    ") {
			return false
		}
		sawContent = true
	}
	return sawContent
}

// stripLeadingTitleHeading removes a first line that merely restates the
// subtopic title, as a Markdown heading or a bold-only line.
func stripLeadingTitleHeading(title, text string) string {
	lines := strings.SplitN(text, "\n", 2)
	first := strings.TrimSpace(lines[0])

	candidate := ""
	if strings.HasPrefix(first, "#") {
		candidate = strings.TrimSpace(strings.TrimLeft(first, "# "))
	} else if strings.HasPrefix(first, "**") && strings.HasSuffix(first, "**") && len(first) > 4 {
		candidate = strings.TrimSpace(strings.Trim(first, "*"))
	}
	if candidate == "" {
		return text
	}
	if !strings.EqualFold(normalizeHeading(candidate), normalizeHeading(title)) {
		return text
	}
	if len(lines) == 1 {
		return ""
	}
	return strings.TrimLeft(lines[1], "\n")
}

func normalizeHeading(s string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(s), ".:"))
}

var preamblePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(sure|certainly|of course)[,!.].*$`),
	regexp.MustCompile(`(?i)^(here is|here's) (the|an?|your) .*[:.]$`),
	regexp.MustCompile(`(?i)^in this (section|explanation|lecture),? (we|i|you)('ll| will)? .*$`),
	regexp.MustCompile(`(?i)^this (section|guide|explanation) (covers|explains|will cover|discusses) .*$`),
	regexp.MustCompile(`(?i)^(let's|let us) (explore|dive into|look at|examine) .*$`),
}

// stripPreamble drops leading lines that announce the content instead of
// being the content.
func stripPreamble(text string) string {
	lines := strings.Split(text, "\n")
	i := 0
	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			i++
			continue
		}
		if !matchesPreamble(trimmed) {
			break
		}
		i++
	}
	return strings.Join(lines[i:], "\n")
}

func matchesPreamble(line string) bool {
	for _, re := range preamblePatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
