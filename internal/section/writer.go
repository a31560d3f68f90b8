// Package section generates and cleans the prose explanation for a single
// subtopic.
package section

import (
	"context"
	"fmt"
	"strings"

	"github.com/studyhall/backend/internal/llm"
	"github.com/studyhall/backend/internal/models"
)

// Request carries everything the writer needs to produce one explanation.
type Request struct {
	LectureTitle  string
	SubtopicTitle string
	Overview      string
	Context       string
	Style         models.StyleHint
}

type Writer struct {
	llm llm.Client
}

func NewWriter(client llm.Client) *Writer {
	return &Writer{llm: client}
}

// Write generates a complete explanation in one call and sanitizes it.
func (w *Writer) Write(ctx context.Context, req Request) (string, error) {
	raw, err := w.llm.GenerateText(ctx, buildSectionPrompt(req),
		llm.WithSystem(sectionSystemPrompt))
	if err != nil {
		return "", fmt.Errorf("generating explanation for %q: %w", req.SubtopicTitle, err)
	}
	return Sanitize(req.SubtopicTitle, raw), nil
}

// Stream generates the explanation incrementally, forwarding each raw delta
// to onDelta, and returns the sanitized full text. Callers display the raw
// deltas live and replace them with the returned text when done.
func (w *Writer) Stream(ctx context.Context, req Request, onDelta func(string) error) (string, error) {
	raw, err := w.llm.StreamText(ctx, buildSectionPrompt(req), onDelta,
		llm.WithSystem(sectionSystemPrompt))
	if err != nil {
		return "", fmt.Errorf("streaming explanation for %q: %w", req.SubtopicTitle, err)
	}
	return Sanitize(req.SubtopicTitle, raw), nil
}

const sectionSystemPrompt = `You are a teacher writing one section of a lecture. Write clear explanatory prose in Markdown. Start directly with the content. Do not restate the section title as a heading, do not introduce what you are about to cover, and do not wrap the response in code fences.`

func buildSectionPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Lecture: %s\n", req.LectureTitle)
	fmt.Fprintf(&b, "Section: %s\n", req.SubtopicTitle)
	if req.Overview != "" {
		fmt.Fprintf(&b, "Section overview: %s\n", req.Overview)
	}
	b.WriteString("\nWrite the full explanation for this section, 180 to 450 words. ")
	b.WriteString(styleInstruction(req.Style))
	if req.Context != "" {
		b.WriteString("\n\nGround the explanation in this source material:\n\n")
		b.WriteString(req.Context)
	}
	return b.String()
}

func styleInstruction(style models.StyleHint) string {
	switch style {
	case models.StyleSimplified:
		return "Use plain language and short sentences, as if explaining to a beginner."
	case models.StyleDetailed:
		return "Go deep: cover mechanisms, edge cases, and nuance beyond the basics."
	case models.StyleExample:
		return "Anchor the explanation around one or two concrete worked examples."
	default:
		return "Balance accessibility with depth."
	}
}
