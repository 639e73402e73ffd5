package vectorindex

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/fin360/financial-analyzer/internal/chunker"
	"github.com/fin360/financial-analyzer/internal/domain"
)

// onehotEmbedder returns one-hot vectors keyed by a fixed vocabulary, so
// nearest-neighbor results are fully deterministic in tests.
type onehotEmbedder struct {
	vocab []string
}

func (e *onehotEmbedder) Dimension() int { return len(e.vocab) }

func (e *onehotEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, len(e.vocab))
	for i, word := range e.vocab {
		if containsWord(text, word) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func (e *onehotEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func containsWord(text, word string) bool {
	for _, w := range splitLower(text) {
		if w == word {
			return true
		}
	}
	return false
}

func splitLower(text string) []string {
	var words []string
	var cur []rune
	for _, r := range text {
		switch {
		case r >= 'A' && r <= 'Z':
			cur = append(cur, r+('a'-'A'))
		case r >= 'a' && r <= 'z':
			cur = append(cur, r)
		default:
			if len(cur) > 0 {
				words = append(words, string(cur))
				cur = nil
			}
		}
	}
	if len(cur) > 0 {
		words = append(words, string(cur))
	}
	return words
}

func buildTestIndex(t *testing.T, texts []string) *Index {
	t.Helper()
	emb := &onehotEmbedder{vocab: []string{"revenue", "costs", "cash"}}
	b := NewBuilder(emb, nil)

	chunks := make([]chunker.Chunk, len(texts))
	for i, txt := range texts {
		chunks[i] = chunker.Chunk{Text: txt, Index: i}
	}
	ix, err := b.Build(context.Background(), "findoc-test", chunks)
	if err != nil {
		t.Fatal(err)
	}
	return ix
}

func TestBuildEmptyChunkSet(t *testing.T) {
	b := NewBuilder(&onehotEmbedder{vocab: []string{"a"}}, nil)
	ix, err := b.Build(context.Background(), "findoc-empty", nil)
	if err != nil {
		t.Fatal(err)
	}
	if ix != nil {
		t.Errorf("Build(empty) = %v, want nil handle", ix)
	}
}

func TestSearchNearest(t *testing.T) {
	ix := buildTestIndex(t, []string{"Revenue grew 10%.", "Costs fell 5%."})
	emb := &onehotEmbedder{vocab: []string{"revenue", "costs", "cash"}}

	query, _ := emb.Embed(context.Background(), "costs")
	matches, err := ix.Search(query, 3)
	if err != nil {
		t.Fatal(err)
	}
	// k clamped to the 2-chunk index.
	if len(matches) != 2 {
		t.Fatalf("Search returned %d matches, want 2", len(matches))
	}
	if matches[0].ChunkIndex != 1 {
		t.Errorf("nearest chunk = %d, want the costs chunk (1)", matches[0].ChunkIndex)
	}
	if matches[0].Distance > matches[1].Distance {
		t.Error("matches not ordered by ascending distance")
	}
}

func TestSearchTieBreakByChunkOrder(t *testing.T) {
	// Identical chunks embed identically; ties must keep original order.
	ix := buildTestIndex(t, []string{"cash flow", "cash flow", "cash flow"})
	emb := &onehotEmbedder{vocab: []string{"revenue", "costs", "cash"}}

	query, _ := emb.Embed(context.Background(), "cash")
	matches, err := ix.Search(query, 3)
	if err != nil {
		t.Fatal(err)
	}

	var order []int
	for _, m := range matches {
		order = append(order, m.ChunkIndex)
	}
	if !reflect.DeepEqual(order, []int{0, 1, 2}) {
		t.Errorf("tie-break order = %v, want [0 1 2]", order)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	ix := &Index{Handle: "findoc-empty", Dimension: 3}
	_, err := ix.Search([]float32{0, 0, 0}, 3)
	if !errors.Is(err, domain.ErrEmptyIndex) {
		t.Errorf("Search on empty index error = %v, want EMPTY_INDEX", err)
	}
}

func TestSearchDimensionMismatch(t *testing.T) {
	ix := buildTestIndex(t, []string{"revenue"})
	if _, err := ix.Search([]float32{1}, 1); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestChunkResolution(t *testing.T) {
	ix := buildTestIndex(t, []string{"Revenue grew 10%.", "Costs fell 5%."})

	ch, ok := ix.Chunk(1)
	if !ok || ch.Text != "Costs fell 5%." {
		t.Errorf("Chunk(1) = %q, %v", ch.Text, ok)
	}
	if _, ok := ix.Chunk(5); ok {
		t.Error("Chunk(5) resolved out-of-range index")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}

	ix := buildTestIndex(t, []string{"Revenue grew 10%.", "Costs fell 5%."})
	if err := store.Save(ix); err != nil {
		t.Fatal(err)
	}
	if !store.Exists(ix.Handle) {
		t.Error("saved index does not exist")
	}

	loaded, err := store.Load(ix.Handle)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(loaded, ix) {
		t.Error("loaded index differs from saved index")
	}

	if err := store.Delete(ix.Handle); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(ix.Handle); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after delete = %v, want ErrNotFound", err)
	}
}

func TestFileStoreReplaceIsAtomicSwap(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}

	first := buildTestIndex(t, []string{"Revenue grew 10%."})
	if err := store.Save(first); err != nil {
		t.Fatal(err)
	}

	second := buildTestIndex(t, []string{"Costs fell 5%.", "Cash improved."})
	second.Handle = first.Handle
	if err := store.Save(second); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load(first.Handle)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != 2 {
		t.Errorf("after replace index has %d chunks, want 2", loaded.Len())
	}
	if len(loaded.Vectors) != len(loaded.Chunks) {
		t.Error("vectors and chunks out of lockstep after replace")
	}
}

func TestHandleFor(t *testing.T) {
	fp := domain.FingerprintBytes([]byte("sample"))
	h := HandleFor(fp)
	if len(h) != len("findoc-")+20 {
		t.Errorf("HandleFor length = %d, want prefix plus 20 hash chars", len(h))
	}
}
