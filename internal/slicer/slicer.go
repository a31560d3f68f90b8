// Package slicer builds bounded grounding context for a single subtopic so
// generation calls don't re-send the whole document.
package slicer

import (
	"sort"
	"strings"
)

// DefaultBudget is the character budget for one grounding context.
const DefaultBudget = 6000

const minTermLength = 3

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "her": true,
	"was": true, "one": true, "our": true, "out": true, "his": true,
	"has": true, "had": true, "how": true, "its": true, "this": true,
	"that": true, "with": true, "from": true, "they": true, "will": true,
	"what": true, "when": true, "which": true, "their": true, "about": true,
	"into": true, "more": true, "other": true, "some": true, "such": true,
	"than": true, "then": true, "these": true, "those": true, "were": true,
	"have": true, "been": true, "also": true, "each": true, "between": true,
	"where": true, "while": true, "because": true, "through": true,
	"during": true, "over": true, "under": true, "most": true, "very": true,
	"both": true, "does": true, "only": true, "same": true, "used": true,
	"using": true, "based": true, "given": true,
}

// Slice extracts the paragraphs of doc most relevant to a subtopic
// (described by its title and overview), bounded by a character budget.
// Scoring counts query-term overlap per paragraph with a locality bonus
// when the previous paragraph also overlaps; selection is greedy by score
// and pulls in each hit's immediate neighbors for continuity. When nothing
// scores, the plain document prefix is returned. Deterministic and pure.
func Slice(doc, title, overview string, budget int) string {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if len(doc) <= budget {
		return doc
	}

	paragraphs := splitParagraphs(doc)
	terms := queryTerms(title + " " + overview)

	base := make([]int, len(paragraphs))
	for i, p := range paragraphs {
		base[i] = overlapCount(p, terms)
	}

	scores := make([]int, len(paragraphs))
	anyHit := false
	for i := range paragraphs {
		scores[i] = base[i]
		if base[i] > 0 {
			anyHit = true
			if i > 0 && base[i-1] > 0 {
				scores[i]++
			}
		}
	}

	if !anyHit {
		return prefixSlice(doc, budget)
	}

	// Greedy pick in descending score order; ties resolve to the earlier
	// paragraph so results are stable.
	order := make([]int, len(paragraphs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	included := make(map[int]bool)
	used := 0
	add := func(idx int) {
		if idx < 0 || idx >= len(paragraphs) || included[idx] {
			return
		}
		cost := len(paragraphs[idx]) + 2
		if used+cost > budget {
			return
		}
		included[idx] = true
		used += cost
	}

	for _, idx := range order {
		if scores[idx] == 0 {
			break
		}
		add(idx)
		// Continuity window around each hit.
		add(idx - 1)
		add(idx + 1)
		if used >= budget {
			break
		}
	}

	if len(included) == 0 {
		return prefixSlice(doc, budget)
	}

	keep := make([]int, 0, len(included))
	for idx := range included {
		keep = append(keep, idx)
	}
	sort.Ints(keep)

	parts := make([]string, 0, len(keep))
	for _, idx := range keep {
		parts = append(parts, paragraphs[idx])
	}
	return strings.Join(parts, "\n\n")
}

func splitParagraphs(doc string) []string {
	var paragraphs []string
	for _, p := range strings.Split(doc, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// queryTerms tokenizes the subtopic's title+overview into lowercase
// alphanumeric terms, dropping short words and stopwords.
func queryTerms(s string) map[string]bool {
	terms := make(map[string]bool)
	for _, w := range tokenizeWords(s) {
		if len(w) >= minTermLength && !stopwords[w] {
			terms[w] = true
		}
	}
	return terms
}

func overlapCount(paragraph string, terms map[string]bool) int {
	seen := make(map[string]bool)
	count := 0
	for _, w := range tokenizeWords(paragraph) {
		if terms[w] && !seen[w] {
			seen[w] = true
			count++
		}
	}
	return count
}

func tokenizeWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

func prefixSlice(doc string, budget int) string {
	if len(doc) <= budget {
		return doc
	}
	cut := doc[:budget]
	// Avoid cutting mid-word when a nearby space exists.
	if idx := strings.LastIndexByte(cut, ' '); idx > budget-200 {
		cut = cut[:idx]
	}
	return cut
}
