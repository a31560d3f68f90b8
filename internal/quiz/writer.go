// Package quiz generates multiple-choice comprehension questions for a
// subtopic and keeps repeated generations from producing near-duplicates.
package quiz

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/studyhall/backend/internal/llm"
)

// Candidate is one generated question before persistence.
type Candidate struct {
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answer_index"`
	Explanation string   `json:"explanation"`
}

type quizPayload struct {
	Questions []Candidate `json:"questions"`
}

type Writer struct {
	llm llm.Client
	rng *rand.Rand
}

func NewWriter(client llm.Client) *Writer {
	return &Writer{
		llm: client,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// newWriterWithSeed pins the shuffle source for tests.
func newWriterWithSeed(client llm.Client, seed int64) *Writer {
	return &Writer{llm: client, rng: rand.New(rand.NewSource(seed))}
}

// Generate produces up to count questions grounded in the subtopic's
// explanation text. Malformed questions are dropped rather than failing the
// batch, near-duplicates of avoid prompts (or of each other) are filtered,
// and surviving options are shuffled. Returns an error only when the model
// call or decode fails outright or nothing usable survives.
func (w *Writer) Generate(ctx context.Context, grounding, title, overview string, avoid []string, count int) ([]Candidate, error) {
	raw, err := w.llm.GenerateJSON(ctx, buildQuizPrompt(grounding, title, overview, count))
	if err != nil {
		return nil, fmt.Errorf("generating quiz for %q: %w", title, err)
	}

	var payload quizPayload
	if err := llm.DecodeObject(raw, &payload, "questions"); err != nil {
		return nil, fmt.Errorf("decoding quiz for %q: %w", title, err)
	}

	wellFormed := make([]Candidate, 0, len(payload.Questions))
	for _, q := range payload.Questions {
		if !validCandidate(q) {
			continue
		}
		q.Prompt = strings.TrimSpace(q.Prompt)
		wellFormed = append(wellFormed, q)
	}

	kept := FilterDuplicates(wellFormed, avoid)
	if len(kept) == 0 {
		return nil, fmt.Errorf("no usable questions generated for %q", title)
	}
	if len(kept) > count {
		kept = kept[:count]
	}

	for i := range kept {
		ShuffleOptions(&kept[i], w.rng)
	}
	return kept, nil
}

func validCandidate(q Candidate) bool {
	if strings.TrimSpace(q.Prompt) == "" {
		return false
	}
	if len(q.Options) != 4 {
		return false
	}
	for _, opt := range q.Options {
		if strings.TrimSpace(opt) == "" {
			return false
		}
	}
	return q.AnswerIndex >= 0 && q.AnswerIndex < len(q.Options)
}

func buildQuizPrompt(grounding, title, overview string, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write %d multiple-choice questions testing comprehension of the section %q.\n", count, title)
	if overview != "" {
		fmt.Fprintf(&b, "Section overview: %s\n", overview)
	}
	b.WriteString(`
Each question has exactly 4 options and one correct answer. Questions must be answerable from the material below alone. Respond with JSON in this shape:

{"questions": [{"prompt": "...", "options": ["...", "...", "...", "..."], "answer_index": 0, "explanation": "why the correct option is correct"}]}

Material:

`)
	b.WriteString(grounding)
	return b.String()
}
