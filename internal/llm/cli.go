package llm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CLIClient shells out to the claude CLI for local dev generation.
// Token usage is not reported.
type CLIClient struct {
	cliPath string
}

func NewCLIClient(cliPath string) *CLIClient {
	return &CLIClient{cliPath: cliPath}
}

func (c *CLIClient) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	system, conversation := splitSystem(req.Messages)

	args := []string{"--print", "--output-format", "text", "--max-turns", "1"}
	if system != "" {
		args = append(args, "--system-prompt", system)
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	cmd := exec.CommandContext(ctx, c.cliPath, args...)

	var prompt strings.Builder
	for i, m := range conversation {
		if i > 0 {
			prompt.WriteString("\n\n")
		}
		prompt.WriteString(m.Content)
	}
	cmd.Stdin = strings.NewReader(prompt.String())

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("claude CLI error: %w\nstderr: %s", err, stderr.String())
	}

	responseText := strings.TrimSpace(stdout.String())
	if responseText == "" {
		return nil, fmt.Errorf("claude CLI returned empty response")
	}

	return &ChatResponse{
		Model: "claude-cli",
		Choices: []Choice{{
			Message:      Message{Role: RoleAssistant, Content: responseText},
			FinishReason: "stop",
		}},
	}, nil
}
