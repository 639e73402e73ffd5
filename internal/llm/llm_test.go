package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fin360/financial-analyzer/internal/domain"
)

func TestNewProviderUnsupported(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Provider: "watson"}, nil)
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
	if domain.KindOf(err) != domain.KindInvalidConfig {
		t.Fatalf("kind = %v, want InvalidConfig", domain.KindOf(err))
	}
}

func TestValidateProviderConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProviderConfig
		wantErr bool
	}{
		{"anthropic with key", ProviderConfig{Provider: "anthropic", APIKey: "k"}, false},
		{"anthropic without key", ProviderConfig{Provider: "anthropic"}, true},
		{"openai without key", ProviderConfig{Provider: "openai"}, true},
		{"ollama without key", ProviderConfig{Provider: "ollama"}, false},
		{"lmstudio without key", ProviderConfig{Provider: "lmstudio"}, false},
		{"unknown", ProviderConfig{Provider: "watson"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProviderConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpenAICompatGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		msgs := req["messages"].([]any)
		if len(msgs) != 2 {
			t.Fatalf("messages = %d, want system + user", len(msgs))
		}

		json.NewEncoder(w).Encode(map[string]any{
			"model": "test-model",
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "generated analysis"}},
			},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 5},
		})
	}))
	defer srv.Close()

	p, err := NewOpenAICompatProvider(ProviderConfig{
		Provider: "openai",
		BaseURL:  srv.URL,
		Model:    "test-model",
	}, nil)
	if err != nil {
		t.Fatalf("NewOpenAICompatProvider: %v", err)
	}

	resp, err := p.Generate(context.Background(), Request{
		SystemPrompt: "be terse",
		Prompt:       "summarize",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "generated analysis" {
		t.Fatalf("text = %q", resp.Text)
	}
	if resp.Usage.TotalTokens() != 17 {
		t.Fatalf("total tokens = %d, want 17", resp.Usage.TotalTokens())
	}
}

func TestOpenAICompatGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, _ := NewOpenAICompatProvider(ProviderConfig{Provider: "openai", BaseURL: srv.URL}, nil)

	_, err := p.Generate(context.Background(), Request{Prompt: "hi"})
	if !domain.IsKind(err, domain.KindGenerationFailed) {
		t.Fatalf("err = %v, want GenerationFailed", err)
	}
}

func TestCountTokens(t *testing.T) {
	if got := CountTokens("gpt-4o-mini", ""); got != 0 {
		t.Fatalf("empty text = %d tokens, want 0", got)
	}
	if got := CountTokens("gpt-4o-mini", "hello world"); got < 1 {
		t.Fatalf("tokens = %d, want >= 1", got)
	}
	// Unknown models still get a usable estimate.
	if got := CountTokens("claude-sonnet-4-20250514", "one two three four"); got < 1 {
		t.Fatalf("fallback tokens = %d, want >= 1", got)
	}
}

func TestTruncateTokens(t *testing.T) {
	const model = "gpt-4o-mini"

	if got := TruncateTokens(model, "anything", 0); got != "" {
		t.Fatalf("zero limit = %q, want empty", got)
	}
	if got := TruncateTokens(model, "short text", 1000); got != "short text" {
		t.Fatalf("text within limit changed: %q", got)
	}

	words := make([]string, 400)
	for i := range words {
		words[i] = "ledger"
	}
	text := strings.Join(words, " ")

	truncated := TruncateTokens(model, text, 50)
	if truncated == text {
		t.Fatal("oversized text should shrink")
	}
	if !strings.HasPrefix(text, truncated) {
		t.Fatalf("truncation must keep a prefix, got %q", truncated)
	}
	if got := CountTokens(model, truncated); got > 50 {
		t.Fatalf("truncated text counts %d tokens, want <= 50", got)
	}
}
