package llm

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// CountTokens estimates the token count of text for the given model.
// Falls back to a word-based estimate when the model's encoding is
// unknown (local models, Claude).
func CountTokens(model, text string) int {
	if text == "" {
		return 0
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		// Roughly 0.75 words per token for English prose.
		return len(strings.Fields(text)) * 4 / 3
	}

	return len(enc.Encode(text, nil, nil))
}

// FitsContext reports whether the prompt plus the reserved output budget
// fits within limit tokens.
func FitsContext(model, prompt string, maxOutput, limit int) bool {
	return CountTokens(model, prompt)+maxOutput <= limit
}

// TruncateTokens cuts text down to at most limit tokens, keeping the head.
// With an unknown encoding it falls back to a word-based cut at the same
// 0.75 words-per-token ratio CountTokens assumes. A non-positive limit
// yields an empty string.
func TruncateTokens(model, text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if text == "" {
		return text
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		words := strings.Fields(text)
		keep := limit * 3 / 4
		if keep >= len(words) {
			return text
		}
		return strings.Join(words[:keep], " ")
	}

	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= limit {
		return text
	}
	return enc.Decode(tokens[:limit])
}
