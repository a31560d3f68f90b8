package llm

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

// Client is the narrow contract the generation pipeline calls through.
// Empty output is always reported as an error, never as zero content.
type Client interface {
	// GenerateText returns the model's text response to the prompt.
	GenerateText(ctx context.Context, prompt string, opts ...Option) (string, error)
	// GenerateJSON is GenerateText with a JSON-only system instruction.
	// The returned string is raw model output; callers decode it tolerantly.
	GenerateJSON(ctx context.Context, prompt string, opts ...Option) (string, error)
	// StreamText streams the response, calling onDelta for each text
	// fragment, and returns the full accumulated text. A non-nil error from
	// onDelta aborts the stream and is returned as-is.
	StreamText(ctx context.Context, prompt string, onDelta func(string) error, opts ...Option) (string, error)
}

type callOptions struct {
	model     string
	system    string
	maxTokens int64
}

type Option func(*callOptions)

// WithModel overrides the client's default model for one call.
func WithModel(model string) Option {
	return func(o *callOptions) {
		if model != "" {
			o.model = model
		}
	}
}

func WithSystem(system string) Option {
	return func(o *callOptions) { o.system = system }
}

func WithMaxTokens(n int64) Option {
	return func(o *callOptions) { o.maxTokens = n }
}

const jsonSystemPrompt = "You are a precise generation backend. Respond with a single JSON object only — no prose before or after it."

// NewClient builds a Client from environment configuration.
func NewClient() Client {
	if os.Getenv("USE_CLI_GENERATOR") == "true" {
		cliPath := os.Getenv("CLAUDE_CLI_PATH")
		if cliPath == "" {
			cliPath = "claude"
		}
		log.Println("LLM client using Claude CLI (local plan)")
		return NewCLIClient(cliPath)
	}
	if os.Getenv("MOCK_GENERATOR") == "true" {
		log.Println("LLM client using mock data")
		return NewMockClient()
	}

	model := os.Getenv("ANTHROPIC_MODEL")
	if model == "" {
		model = "claude-sonnet-4-5-20250929"
	}
	log.Println("LLM client using Anthropic API:", model)
	return NewAPIClient(model)
}

// ── APIClient — Anthropic SDK (Production) ─────────────────

type APIClient struct {
	client *anthropic.Client
	model  string
}

func NewAPIClient(model string) *APIClient {
	client := anthropic.NewClient(
		option.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY")),
	)
	return &APIClient{client: &client, model: model}
}

func (c *APIClient) params(prompt string, opts []Option) anthropic.MessageNewParams {
	co := callOptions{model: c.model, maxTokens: 4096}
	for _, opt := range opts {
		opt(&co)
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(co.model),
		MaxTokens:   co.maxTokens,
		Temperature: param.NewOpt(0.7),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if co.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: co.system}}
	}
	return params
}

func (c *APIClient) GenerateText(ctx context.Context, prompt string, opts ...Option) (string, error) {
	message, err := c.callWithRetry(ctx, c.params(prompt, opts))
	if err != nil {
		return "", err
	}

	var responseText string
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}

	if responseText == "" {
		return "", fmt.Errorf("no text content in API response")
	}
	return responseText, nil
}

func (c *APIClient) GenerateJSON(ctx context.Context, prompt string, opts ...Option) (string, error) {
	opts = append([]Option{WithSystem(jsonSystemPrompt)}, opts...)
	return c.GenerateText(ctx, prompt, opts...)
}

func (c *APIClient) StreamText(ctx context.Context, prompt string, onDelta func(string) error, opts ...Option) (string, error) {
	stream := c.client.Messages.NewStreaming(ctx, c.params(prompt, opts))

	var sb strings.Builder
	for stream.Next() {
		event := stream.Current()
		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if deltaVariant.Text == "" {
					continue
				}
				sb.WriteString(deltaVariant.Text)
				if err := onDelta(deltaVariant.Text); err != nil {
					return sb.String(), err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return sb.String(), fmt.Errorf("anthropic stream: %w", err)
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("empty streamed response")
	}
	return sb.String(), nil
}

func (c *APIClient) callWithRetry(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			sleepDuration := time.Duration(1<<uint(attempt)) * time.Second
			log.Printf("Retrying Anthropic API call in %v (attempt %d)", sleepDuration, attempt+1)
			select {
			case <-time.After(sleepDuration):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err == nil {
			return message, nil
		}
		lastErr = err
		log.Printf("Anthropic API attempt %d failed: %v", attempt+1, err)
	}
	return nil, fmt.Errorf("anthropic API failed after retries: %w", lastErr)
}

// ── MockClient — Local Development ─────────────────────────

type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) GenerateText(ctx context.Context, prompt string, opts ...Option) (string, error) {
	return "[Mock] This explanation walks through the key ideas of the section in plain language. " +
		"It restates the central claim, works through the supporting evidence, and closes with " +
		"the practical consequences a reader should remember.", nil
}

func (m *MockClient) GenerateJSON(ctx context.Context, prompt string, opts ...Option) (string, error) {
	if strings.Contains(prompt, "answer_index") {
		return mockQuizJSON, nil
	}
	if strings.Contains(prompt, `"indices"`) {
		return `{"indices": [0, 1, 2]}`, nil
	}
	return mockBreakdownJSON, nil
}

func (m *MockClient) StreamText(ctx context.Context, prompt string, onDelta func(string) error, opts ...Option) (string, error) {
	text, _ := m.GenerateText(ctx, prompt, opts...)
	for _, word := range strings.SplitAfter(text, " ") {
		if err := onDelta(word); err != nil {
			return "", err
		}
	}
	return text, nil
}

const mockBreakdownJSON = `{
  "topic": "[Mock] Sample Document",
  "subtopics": [
    {"title": "[Mock] Introduction", "importance": "high", "difficulty": 1, "overview": "What the document sets out to do."},
    {"title": "[Mock] Core Argument", "importance": "high", "difficulty": 2, "overview": "The central claim and its supporting evidence."},
    {"title": "[Mock] Implications", "importance": "medium", "difficulty": 2, "overview": "What follows if the argument holds."}
  ]
}`

const mockQuizJSON = `{
  "questions": [
    {"prompt": "[Mock] What is the central claim of this section?", "options": ["The stated thesis", "An unrelated aside", "A historical footnote", "A counterexample"], "answer_index": 0, "explanation": "[Mock] The section opens by stating its thesis directly."},
    {"prompt": "[Mock] Which evidence supports the conclusion?", "options": ["The cited study", "An anecdote", "A rhetorical question", "A definition"], "answer_index": 0, "explanation": "[Mock] The cited study is the only evidence offered for the conclusion."}
  ]
}`
