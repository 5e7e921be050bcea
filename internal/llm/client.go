package llm

import (
	"context"
	"fmt"
	"strings"
)

// Client is the chat-completion boundary every provider satisfies.
type Client interface {
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// Purpose labels a call for metrics and for the canned dev client.
type Purpose string

const (
	PurposeResearch Purpose = "research"
	PurposeGenerate Purpose = "generate"
	PurposeValidate Purpose = "validate"
	PurposeRepair   Purpose = "repair"
)

type ChatRequest struct {
	Purpose     Purpose
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// JSON asks providers that support it for a JSON object response.
	JSON bool
}

type Usage struct {
	PromptTokens int
	OutputTokens int
}

func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens: u.PromptTokens + other.PromptTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
	}
}

type Choice struct {
	Message      Message
	FinishReason string
}

type ChatResponse struct {
	Model   string
	Choices []Choice
	Usage   Usage
}

// FirstContent returns the trimmed content of the first choice.
func FirstContent(resp *ChatResponse) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in LLM response")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty content in LLM response")
	}
	return content, nil
}

// Conversation builds the usual system + user message pair.
func Conversation(systemPrompt, userPrompt string) []Message {
	msgs := make([]Message, 0, 2)
	if systemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: systemPrompt})
	}
	return append(msgs, Message{Role: RoleUser, Content: userPrompt})
}

// splitSystem separates system messages from the conversation for
// providers that take the system prompt out of band.
func splitSystem(msgs []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
