package llm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CLIClient shells out to the claude CLI for local dev generation.
// Uses your existing Claude plan — no API key needed, no per-token charges.
type CLIClient struct {
	cliPath string
}

func NewCLIClient(cliPath string) *CLIClient {
	return &CLIClient{cliPath: cliPath}
}

func (c *CLIClient) run(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	cmd := exec.CommandContext(ctx,
		c.cliPath,
		"--print",
		"--output-format", "text",
		"--system-prompt", systemPrompt,
		"--max-turns", "1",
	)

	cmd.Stdin = strings.NewReader(userPrompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	err := cmd.Run()
	if err != nil {
		return "", fmt.Errorf("claude CLI error: %w\nstderr: %s", err, stderr.String())
	}

	responseText := strings.TrimSpace(stdout.String())
	if responseText == "" {
		return "", fmt.Errorf("claude CLI returned empty response")
	}
	return responseText, nil
}

func (c *CLIClient) GenerateText(ctx context.Context, prompt string, opts ...Option) (string, error) {
	co := callOptions{}
	for _, opt := range opts {
		opt(&co)
	}
	return c.run(ctx, co.system, prompt)
}

func (c *CLIClient) GenerateJSON(ctx context.Context, prompt string, opts ...Option) (string, error) {
	opts = append([]Option{WithSystem(jsonSystemPrompt)}, opts...)
	return c.GenerateText(ctx, prompt, opts...)
}

// StreamText on the CLI path produces the whole response as one delta.
func (c *CLIClient) StreamText(ctx context.Context, prompt string, onDelta func(string) error, opts ...Option) (string, error) {
	text, err := c.GenerateText(ctx, prompt, opts...)
	if err != nil {
		return "", err
	}
	if err := onDelta(text); err != nil {
		return "", err
	}
	return text, nil
}
