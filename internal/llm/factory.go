package llm

import (
	"fmt"

	"github.com/certforge/backend/internal/config"
)

// New builds the configured provider.
func New(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	case "anthropic":
		return NewAnthropicClient(cfg.AnthropicAPIKey)
	case "cli":
		return NewCLIClient(cfg.CLIPath), nil
	case "mock":
		return NewCannedClient(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
