// Package llm provides a unified interface for text generation across
// multiple LLM providers.
package llm

import "context"

// Provider defines the interface that all LLM providers must implement.
type Provider interface {
	// Generate sends a completion request to the LLM and returns the response.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider name (e.g., "anthropic", "openai", "ollama").
	Name() string

	// Model returns the model name being used.
	Model() string
}

// Request represents a completion request.
type Request struct {
	// SystemPrompt sets the model's instructions for this request.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Prompt is the user-turn text.
	Prompt string `json:"prompt"`

	// Image is an optional image attached to the user turn.
	Image []byte `json:"image,omitempty"`

	// ImageMIME is the media type of Image (e.g., "image/png").
	// Defaults to "image/png" when Image is set and this is empty.
	ImageMIME string `json:"image_mime,omitempty"`

	// MaxTokens caps the generated output length.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness in the response.
	Temperature float64 `json:"temperature,omitempty"`
}

// Response represents a completion from the LLM.
type Response struct {
	// Text is the generated text.
	Text string `json:"text"`

	// Usage contains token usage information.
	Usage Usage `json:"usage"`

	// Model is the model that generated the response.
	Model string `json:"model"`
}

// Usage contains token usage information.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// TotalTokens returns the total number of tokens used.
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// ProviderConfig holds common configuration for LLM providers.
type ProviderConfig struct {
	// Provider is the provider name (anthropic, openai, ollama, lmstudio).
	Provider string `json:"provider"`

	// Model is the model to use.
	Model string `json:"model"`

	// APIKey is the API key for authentication.
	APIKey string `json:"api_key,omitempty"`

	// BaseURL is the base URL for OpenAI-compatible servers.
	BaseURL string `json:"base_url,omitempty"`

	// MaxTokens is the default maximum tokens to generate.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature is the default temperature.
	Temperature float64 `json:"temperature,omitempty"`
}

// DefaultProviderConfig returns the default provider configuration.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		MaxTokens:   4096,
		Temperature: 0.3,
	}
}
