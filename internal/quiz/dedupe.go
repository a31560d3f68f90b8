package quiz

import "strings"

// DuplicateThreshold is the Jaccard similarity over significant prompt
// words at or above which two questions count as duplicates.
const DuplicateThreshold = 0.6

const minSignificantLength = 4

var promptStopwords = map[string]bool{
	"what": true, "which": true, "where": true, "when": true, "does": true,
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"their": true, "there": true, "about": true, "following": true,
	"according": true, "best": true, "most": true, "describes": true,
	"true": true, "statement": true, "would": true, "could": true,
	"section": true, "passage": true,
}

// SignificantWords returns the set of lowercase words of length four or
// more, minus common question scaffolding.
func SignificantWords(prompt string) map[string]bool {
	words := make(map[string]bool)
	fields := strings.FieldsFunc(strings.ToLower(prompt), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, w := range fields {
		if len(w) >= minSignificantLength && !promptStopwords[w] {
			words[w] = true
		}
	}
	return words
}

// Jaccard computes |a∩b| / |a∪b| over two word sets. Two empty sets are
// identical by convention.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// FilterDuplicates drops candidates too similar to already-stored prompts
// or to an earlier candidate in the same batch. One pass handles both so
// that order within the batch decides survivors deterministically.
func FilterDuplicates(candidates []Candidate, existingPrompts []string) []Candidate {
	accepted := make([]map[string]bool, 0, len(existingPrompts)+len(candidates))
	for _, p := range existingPrompts {
		accepted = append(accepted, SignificantWords(p))
	}

	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		words := SignificantWords(c.Prompt)
		dup := false
		for _, prev := range accepted {
			if Jaccard(words, prev) >= DuplicateThreshold {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		accepted = append(accepted, words)
		kept = append(kept, c)
	}
	return kept
}
