// internal/llm/factory/factory.go
package factory

import (
	"fmt"

	"remora/internal/config"
	"remora/internal/llm"
	"remora/internal/llm/claude"
	"remora/internal/llm/ollama"
	"remora/internal/llm/openai"
)

// New creates an LLM provider based on configuration.
func New(cfg config.LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openai.New(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	case "claude":
		return claude.New(cfg.Claude.APIKey, cfg.Claude.Model)
	case "ollama":
		return ollama.New(cfg.Ollama.Endpoint, cfg.Ollama.Model)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}
