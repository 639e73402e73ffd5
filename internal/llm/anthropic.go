package llm

import (
	"context"
	"encoding/base64"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/fin360/financial-analyzer/internal/domain"
)

// AnthropicProvider implements the Provider interface for Anthropic's Claude models.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
	logger *slog.Logger
	config ProviderConfig
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(cfg ProviderConfig, logger *slog.Logger) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, domain.NewError(domain.KindInvalidConfig, "Anthropic API key is required", nil)
	}

	if logger == nil {
		logger = slog.Default()
	}

	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
	)

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	return &AnthropicProvider{
		client: &client,
		model:  model,
		logger: logger.With("component", "anthropic_provider"),
		config: cfg,
	}, nil
}

// Generate sends a completion request to Claude and returns the response.
func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			{
				Role:    anthropic.MessageParamRoleUser,
				Content: p.userContent(req),
			},
		},
	}

	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		}
	}

	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	p.logger.Debug("sending request to Anthropic",
		"model", p.model,
		"prompt_len", len(req.Prompt),
		"has_image", len(req.Image) > 0,
	)

	response, err := p.client.Messages.New(ctx, params)
	if err != nil {
		p.logger.Error("Anthropic API call failed", "error", err)
		return nil, domain.NewError(domain.KindGenerationFailed, "anthropic completion", err)
	}

	var text string
	for _, block := range response.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &Response{
		Text: text,
		Usage: Usage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
		Model: string(response.Model),
	}, nil
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Model returns the model name.
func (p *AnthropicProvider) Model() string {
	return p.model
}

// userContent builds the user-turn content blocks, attaching the image
// before the prompt text when one is present.
func (p *AnthropicProvider) userContent(req Request) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion

	if len(req.Image) > 0 {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/png"
		}
		content = append(content, anthropic.ContentBlockParamUnion{
			OfImage: &anthropic.ImageBlockParam{
				Type: "image",
				Source: anthropic.ImageBlockParamSourceUnion{
					OfBase64: &anthropic.Base64ImageSourceParam{
						Type:      "base64",
						MediaType: anthropic.Base64ImageSourceMediaType(mime),
						Data:      base64.StdEncoding.EncodeToString(req.Image),
					},
				},
			},
		})
	}

	content = append(content, anthropic.ContentBlockParamUnion{
		OfText: &anthropic.TextBlockParam{
			Type: "text",
			Text: req.Prompt,
		},
	})

	return content
}
