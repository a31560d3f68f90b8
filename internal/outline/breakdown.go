package outline

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/studyhall/backend/internal/llm"
	"github.com/studyhall/backend/internal/models"
)

// maxDocChars bounds how much of the document the breakdown prompt carries.
const maxDocChars = 24000

// fallbackOverviewChars is how much of the document seeds the synthetic
// subtopic when every breakdown attempt fails.
const fallbackOverviewChars = 500

const breakdownAttempts = 3

// Candidate is one proposed subtopic from the whole-document outline,
// before selection/capping.
type Candidate struct {
	Title      string            `json:"title"`
	Importance models.Importance `json:"importance"`
	Difficulty int               `json:"difficulty"`
	Overview   string            `json:"overview"`
}

// Breakdown is the model-produced outline of a document.
type Breakdown struct {
	Topic     string      `json:"topic"`
	Subtopics []Candidate `json:"subtopics"`
}

// Generator asks the model for document outlines and subtopic selections.
type Generator struct {
	llm llm.Client
}

func NewGenerator(client llm.Client) *Generator {
	return &Generator{llm: client}
}

// Breakdown produces the outline for a document. Malformed model output is
// retried, then replaced with a single synthetic subtopic so the pipeline
// always makes forward progress. The returned breakdown has at least one
// subtopic.
func (g *Generator) Breakdown(ctx context.Context, documentText string) (*Breakdown, error) {
	if strings.TrimSpace(documentText) == "" {
		return nil, fmt.Errorf("empty document")
	}

	prompt := buildBreakdownPrompt(documentText)

	for attempt := 1; attempt <= breakdownAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		raw, err := g.llm.GenerateJSON(ctx, prompt)
		if err != nil {
			log.Printf("WARN: breakdown attempt %d failed: %v", attempt, err)
			continue
		}

		bd, err := DecodeBreakdown(raw)
		if err != nil {
			log.Printf("WARN: breakdown attempt %d unparsable: %v", attempt, err)
			continue
		}
		return bd, nil
	}

	log.Printf("WARN: all breakdown attempts failed, using synthetic fallback")
	return FallbackBreakdown(documentText), nil
}

// DecodeBreakdown tolerantly decodes raw model output into a Breakdown and
// normalizes the candidates. An outline with no usable subtopic is an error.
func DecodeBreakdown(raw string) (*Breakdown, error) {
	var bd Breakdown
	if err := llm.DecodeObject(raw, &bd, "subtopics"); err != nil {
		return nil, err
	}

	cleaned := make([]Candidate, 0, len(bd.Subtopics))
	for _, c := range bd.Subtopics {
		c.Title = strings.TrimSpace(c.Title)
		if c.Title == "" {
			continue
		}
		if !models.ValidImportances[c.Importance] {
			c.Importance = models.ImportanceMedium
		}
		if c.Difficulty < 1 {
			c.Difficulty = 1
		}
		if c.Difficulty > 3 {
			c.Difficulty = 3
		}
		c.Overview = strings.TrimSpace(c.Overview)
		cleaned = append(cleaned, c)
	}

	if len(cleaned) == 0 {
		return nil, fmt.Errorf("breakdown contains no usable subtopics")
	}
	bd.Subtopics = cleaned
	bd.Topic = strings.TrimSpace(bd.Topic)
	return &bd, nil
}

// FallbackBreakdown builds a single synthetic subtopic covering the first
// slice of the document. Used when the model misbehaves on every attempt.
func FallbackBreakdown(documentText string) *Breakdown {
	overview := documentText
	if len(overview) > fallbackOverviewChars {
		overview = overview[:fallbackOverviewChars]
	}
	return &Breakdown{
		Subtopics: []Candidate{{
			Title:      "Overview",
			Importance: models.ImportanceHigh,
			Difficulty: 1,
			Overview:   strings.TrimSpace(overview),
		}},
	}
}

func buildBreakdownPrompt(documentText string) string {
	doc := documentText
	if len(doc) > maxDocChars {
		doc = doc[:maxDocChars]
	}

	var sb strings.Builder
	sb.WriteString("Read the following document and produce a structured outline for a lecture about it.\n\n")
	sb.WriteString("DOCUMENT:\n")
	sb.WriteString(doc)
	sb.WriteString("\n\nRules:\n")
	sb.WriteString("- Cover the ENTIRE document from start to finish, in the document's own order\n")
	sb.WriteString("- Do not merge unrelated topics into one subtopic\n")
	sb.WriteString("- Produce between 8 and 15 subtopics — never more than 15 (fewer is fine for short documents)\n")
	sb.WriteString("- importance must be one of: \"high\", \"medium\", \"low\"\n")
	sb.WriteString("- difficulty must be an integer 1 (intro) to 3 (advanced)\n")
	sb.WriteString("- overview is one sentence describing what the subtopic covers\n")
	sb.WriteString("\nRespond with JSON only:\n")
	sb.WriteString(`{
  "topic": "Short lecture title",
  "subtopics": [
    {"title": "...", "importance": "high", "difficulty": 1, "overview": "..."}
  ]
}`)
	return sb.String()
}
