package outline

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	"github.com/studyhall/backend/internal/llm"
)

// Select reduces a candidate list to at most n subtopics. When the list
// already fits it is returned unchanged. Otherwise a model-assisted
// coverage-maximizing selection is attempted, with a deterministic even
// stride as the fallback. Survivors always keep original document order —
// selection decides WHICH candidates survive, never their order.
func (g *Generator) Select(ctx context.Context, candidates []Candidate, n int) []Candidate {
	if n <= 0 || len(candidates) <= n {
		return candidates
	}

	indices, err := g.modelSelect(ctx, candidates, n)
	if err != nil {
		log.Printf("WARN: model-assisted selection failed (%v), using even stride", err)
		indices = StrideIndices(len(candidates), n)
	}

	sort.Ints(indices)

	selected := make([]Candidate, 0, len(indices))
	for _, idx := range indices {
		selected = append(selected, candidates[idx])
	}
	return selected
}

// modelSelect asks the model for exactly n candidate indices that maximize
// document coverage. The response is validated strictly; anything off-shape
// is treated as failure so the deterministic fallback can run.
func (g *Generator) modelSelect(ctx context.Context, candidates []Candidate, n int) ([]int, error) {
	raw, err := g.llm.GenerateJSON(ctx, buildSelectionPrompt(candidates, n))
	if err != nil {
		return nil, err
	}

	var resp struct {
		Indices []int `json:"indices"`
	}
	if err := llm.DecodeObject(raw, &resp, "indices"); err != nil {
		return nil, err
	}

	return validateIndices(resp.Indices, len(candidates), n)
}

func validateIndices(indices []int, total, n int) ([]int, error) {
	seen := make(map[int]bool, len(indices))
	unique := make([]int, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= total {
			return nil, fmt.Errorf("index %d out of range [0,%d)", idx, total)
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		unique = append(unique, idx)
	}
	if len(unique) != n {
		return nil, fmt.Errorf("expected %d unique indices, got %d", n, len(unique))
	}
	return unique, nil
}

// StrideIndices evenly strides through total candidates, returning up to n
// ascending indices. Deterministic, no model involved.
func StrideIndices(total, n int) []int {
	if n >= total {
		indices := make([]int, total)
		for i := range indices {
			indices[i] = i
		}
		return indices
	}

	step := float64(total) / float64(n)
	seen := make(map[int]bool, n)
	indices := make([]int, 0, n)
	for k := 0; k < n; k++ {
		idx := int(math.Floor(float64(k) * step))
		if idx >= total {
			idx = total - 1
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		indices = append(indices, idx)
	}
	return indices
}

func buildSelectionPrompt(candidates []Candidate, n int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("A document outline has %d candidate subtopics, listed in document order:\n\n", len(candidates)))
	for i, c := range candidates {
		sb.WriteString(fmt.Sprintf("%d. %s — %s\n", i, c.Title, c.Overview))
	}
	sb.WriteString(fmt.Sprintf(`
Choose EXACTLY %d of them, maximizing coverage of the whole document:
- spread picks across beginning, middle, and end
- favor dense, foundational content over peripheral detail
- avoid near-duplicate subtopics

Respond with JSON only, using the zero-based indices above:
{"indices": [0, 2, 5]}`, n))
	return sb.String()
}
