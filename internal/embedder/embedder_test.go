package embedder

import (
	"context"
	"testing"
)

func TestNewOpenAIEmbedderRequiresKey(t *testing.T) {
	if _, err := NewOpenAIEmbedder(DefaultConfig(""), nil); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestMockEmbedderDeterministic(t *testing.T) {
	m := NewMockEmbedder(64)

	a, err := m.Embed(context.Background(), "revenue grew")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := m.Embed(context.Background(), "revenue grew")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if len(a) != 64 {
		t.Fatalf("dimension = %d, want 64", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embeddings differ at %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestMockEmbedderBatchOrder(t *testing.T) {
	m := NewMockEmbedder(8)
	texts := []string{"alpha", "beta", "gamma"}

	batch, err := m.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(batch) != len(texts) {
		t.Fatalf("batch = %d, want %d", len(batch), len(texts))
	}

	for i, text := range texts {
		single, _ := m.Embed(context.Background(), text)
		for j := range single {
			if batch[i][j] != single[j] {
				t.Fatalf("batch[%d] differs from single embedding", i)
			}
		}
	}
}

func TestEmbeddingCacheEviction(t *testing.T) {
	c := &embeddingCache{
		entries: make(map[string][]float32),
		maxSize: 2,
	}

	c.set("a", []float32{1})
	c.set("b", []float32{2})
	c.set("c", []float32{3})

	if c.get("a") != nil {
		t.Fatal("oldest entry should have been evicted")
	}
	if c.get("b") == nil || c.get("c") == nil {
		t.Fatal("recent entries should survive")
	}
}
