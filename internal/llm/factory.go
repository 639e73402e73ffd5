package llm

import (
	"log/slog"
	"strings"

	"github.com/fin360/financial-analyzer/internal/domain"
)

// ProviderType represents the type of LLM provider.
type ProviderType string

const (
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOpenAI    ProviderType = "openai"
	ProviderOllama    ProviderType = "ollama"
	ProviderLMStudio  ProviderType = "lmstudio"
)

// NewProvider creates a new LLM provider based on the configuration.
func NewProvider(cfg ProviderConfig, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	providerType := ProviderType(strings.ToLower(cfg.Provider))

	logger.Info("creating LLM provider",
		"provider", providerType,
		"model", cfg.Model,
	)

	switch providerType {
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg, logger)

	case ProviderOpenAI:
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.openai.com/v1"
		}
		return NewOpenAICompatProvider(cfg, logger)

	case ProviderOllama:
		if cfg.BaseURL == "" {
			cfg.BaseURL = "http://localhost:11434/v1"
		}
		return NewOpenAICompatProvider(cfg, logger)

	case ProviderLMStudio:
		if cfg.BaseURL == "" {
			cfg.BaseURL = "http://localhost:1234/v1"
		}
		return NewOpenAICompatProvider(cfg, logger)

	default:
		return nil, domain.NewError(domain.KindInvalidConfig, "unsupported LLM provider: "+cfg.Provider, nil)
	}
}

// ValidateProviderConfig validates the provider configuration.
func ValidateProviderConfig(cfg ProviderConfig) error {
	providerType := ProviderType(strings.ToLower(cfg.Provider))

	switch providerType {
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return domain.NewError(domain.KindInvalidConfig, "API key is required for Anthropic provider", nil)
		}

	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return domain.NewError(domain.KindInvalidConfig, "API key is required for OpenAI provider", nil)
		}

	case ProviderOllama, ProviderLMStudio:
		// Local servers need neither a key nor an explicit base URL.

	default:
		return domain.NewError(domain.KindInvalidConfig, "unsupported provider: "+cfg.Provider, nil)
	}

	return nil
}

// GetDefaultModel returns the default model for a given provider.
func GetDefaultModel(provider string) string {
	switch ProviderType(strings.ToLower(provider)) {
	case ProviderAnthropic:
		return "claude-sonnet-4-20250514"
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderOllama:
		return "llama3.2"
	case ProviderLMStudio:
		return "local-model"
	default:
		return ""
	}
}
