package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/fin360/financial-analyzer/internal/domain"
)

// OpenAICompatProvider implements the Provider interface for OpenAI-compatible
// APIs. This works with OpenAI itself, Ollama, LM Studio, and other
// OpenAI-compatible servers.
type OpenAICompatProvider struct {
	client       *openai.Client
	model        string
	providerName string
	logger       *slog.Logger
	config       ProviderConfig
}

// NewOpenAICompatProvider creates a new OpenAI-compatible provider.
func NewOpenAICompatProvider(cfg ProviderConfig, logger *slog.Logger) (*OpenAICompatProvider, error) {
	if cfg.BaseURL == "" {
		return nil, domain.NewError(domain.KindInvalidConfig, "base URL is required for OpenAI-compatible provider", nil)
	}

	if logger == nil {
		logger = slog.Default()
	}

	// Local servers like Ollama and LM Studio accept any key.
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "not-needed"
	}

	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = cfg.BaseURL

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	providerName := cfg.Provider
	if providerName == "" {
		providerName = "openai_compat"
	}

	return &OpenAICompatProvider{
		client:       openai.NewClientWithConfig(clientConfig),
		model:        model,
		providerName: providerName,
		logger:       logger.With("component", "openai_compat_provider", "provider", providerName),
		config:       cfg,
	}, nil
}

// Generate sends a completion request and returns the response.
func (p *OpenAICompatProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: p.buildMessages(req),
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}
	if maxTokens > 0 {
		chatReq.MaxTokens = maxTokens
	}

	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}

	p.logger.Debug("sending request to OpenAI-compatible server",
		"model", p.model,
		"base_url", p.config.BaseURL,
		"prompt_len", len(req.Prompt),
		"has_image", len(req.Image) > 0,
	)

	response, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		p.logger.Error("OpenAI-compatible API call failed", "error", err)
		return nil, domain.NewError(domain.KindGenerationFailed, "openai completion", err)
	}

	if len(response.Choices) == 0 {
		return nil, domain.NewError(domain.KindGenerationFailed, "no choices returned", nil)
	}

	return &Response{
		Text: response.Choices[0].Message.Content,
		Usage: Usage{
			InputTokens:  response.Usage.PromptTokens,
			OutputTokens: response.Usage.CompletionTokens,
		},
		Model: response.Model,
	}, nil
}

// Name returns the provider name.
func (p *OpenAICompatProvider) Name() string {
	return p.providerName
}

// Model returns the model name.
func (p *OpenAICompatProvider) Model() string {
	return p.model
}

// buildMessages converts a Request into OpenAI chat messages. Image-bearing
// prompts use multi-part content with a base64 data URL.
func (p *OpenAICompatProvider) buildMessages(req Request) []openai.ChatCompletionMessage {
	var messages []openai.ChatCompletionMessage

	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}

	if len(req.Image) == 0 {
		return append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Prompt,
		})
	}

	mime := req.ImageMIME
	if mime == "" {
		mime = "image/png"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(req.Image))

	return append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
			{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: dataURL},
			},
		},
	})
}
