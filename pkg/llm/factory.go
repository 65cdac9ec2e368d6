package llm

import (
	"fmt"
	"log/slog"

	"github.com/glossforge/glossforge/pkg/models"
)

// Supported provider names. Every provider speaks the OpenAI chat completion
// protocol; they differ only in endpoint and credentials.
const (
	ProviderOpenAI     = "openai"
	ProviderCompatible = "openai-compatible"
)

// NewClientForProject builds a client from a project's LLM settings, filling
// gaps from the process-level defaults.
func NewClientForProject(p *models.Project, defaults Config, logger *slog.Logger) (Client, error) {
	cfg := defaults
	if p.LLMModel != "" {
		cfg.Model = p.LLMModel
	}
	if p.LLMBaseURL != "" {
		cfg.BaseURL = p.LLMBaseURL
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("project %q has no LLM model configured", p.Name)
	}

	provider := p.LLMProvider
	if provider == "" {
		provider = ProviderOpenAI
	}
	switch provider {
	case ProviderOpenAI, ProviderCompatible:
		return NewOpenAIClient(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", provider)
	}
}
