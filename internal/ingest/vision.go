package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/studyhall/backend/internal/outline"
)

// ErrVisionTimeout reports that vision analysis exceeded its time bound.
// Callers surface this as retryable rather than hanging on the upstream.
var ErrVisionTimeout = errors.New("vision analysis timed out")

const defaultVisionTimeout = 45 * time.Second

// VisionAnalyzer reads a PDF as images through a vision-capable model and
// returns an outline directly. It is the fallback path for PDFs with no
// extractable text.
type VisionAnalyzer struct {
	client  *anthropic.Client
	model   string
	timeout time.Duration
}

func NewVisionAnalyzer() *VisionAnalyzer {
	model := os.Getenv("ANTHROPIC_VISION_MODEL")
	if model == "" {
		model = "claude-sonnet-4-5-20250929"
	}

	timeout := defaultVisionTimeout
	if v := os.Getenv("VISION_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeout = time.Duration(n) * time.Second
		}
	}

	client := anthropic.NewClient(
		option.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY")),
	)
	return &VisionAnalyzer{client: &client, model: model, timeout: timeout}
}

// AnalyzePDF sends the PDF as a document block and decodes the returned
// outline. The call runs under a hard deadline; hitting it yields
// ErrVisionTimeout so callers can fail fast instead of waiting on a slow
// upstream.
func (v *VisionAnalyzer) AnalyzePDF(ctx context.Context, data []byte) (*outline.Breakdown, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	message, err := v.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(v.model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
					Data: base64.StdEncoding.EncodeToString(data),
				}),
				anthropic.NewTextBlock(visionPrompt),
			),
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return nil, ErrVisionTimeout
		}
		return nil, fmt.Errorf("vision analysis: %w", err)
	}

	var raw string
	for _, block := range message.Content {
		if block.Type == "text" {
			raw = block.Text
			break
		}
	}
	if raw == "" {
		return nil, fmt.Errorf("no text content in vision response")
	}

	bd, err := outline.DecodeBreakdown(raw)
	if err != nil {
		return nil, fmt.Errorf("decode vision outline: %w", err)
	}
	return bd, nil
}

const visionPrompt = `Analyze this document page by page and produce a structured lecture outline.
Cover the entire document in order. Produce between 8 and 15 subtopics (fewer for short documents), never more than 15.

Respond with JSON only:
{
  "topic": "Short lecture title",
  "subtopics": [
    {"title": "...", "importance": "high", "difficulty": 1, "overview": "one sentence"}
  ]
}
importance is "high", "medium", or "low"; difficulty is an integer 1 to 3.`
