// Package vectorindex provides a flat L2 nearest-neighbor index over chunk
// embeddings, one index per document fingerprint.
package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/fin360/financial-analyzer/internal/chunker"
	"github.com/fin360/financial-analyzer/internal/domain"
)

// Embedder is the embedding capability the builder depends on.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Index is an immutable nearest-neighbor structure over one document's
// chunk embeddings. Vector i always corresponds to chunk i; the two are
// built together and only ever replaced together.
type Index struct {
	Handle    string          `json:"handle"`
	Dimension int             `json:"dimension"`
	Chunks    []chunker.Chunk `json:"chunks"`
	Vectors   [][]float32     `json:"vectors"`
}

// Match is a retrieval hit: the chunk's position in the index's chunk set
// and its squared L2 distance from the query.
type Match struct {
	ChunkIndex int     `json:"chunk_index"`
	Distance   float64 `json:"distance"`
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.Vectors)
}

// Search returns up to min(k, chunk count) matches ordered by ascending
// distance, ties broken by original chunk order. Searching an empty index
// fails fast with EmptyIndex instead of scanning.
func (ix *Index) Search(query []float32, k int) ([]Match, error) {
	if ix.Len() == 0 {
		return nil, domain.NewError(domain.KindEmptyIndex, "index has no chunks", nil)
	}
	if len(query) != ix.Dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), ix.Dimension)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if k > ix.Len() {
		k = ix.Len()
	}

	matches := make([]Match, ix.Len())
	for i, vec := range ix.Vectors {
		matches[i] = Match{ChunkIndex: i, Distance: l2Squared(query, vec)}
	}
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Distance < matches[b].Distance
	})
	return matches[:k], nil
}

// Chunk resolves a match back into the chunk set the index was built from.
func (ix *Index) Chunk(chunkIndex int) (chunker.Chunk, bool) {
	if ix == nil || chunkIndex < 0 || chunkIndex >= len(ix.Chunks) {
		return chunker.Chunk{}, false
	}
	return ix.Chunks[chunkIndex], true
}

func l2Squared(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	if math.IsNaN(sum) {
		return math.MaxFloat64
	}
	return sum
}

// HandleFor derives the index name for a fingerprint. The truncated hash
// keeps handles short enough for backends with name-length limits.
func HandleFor(fp domain.Fingerprint) string {
	return "findoc-" + fp.Short()
}

// Builder embeds chunk sets and assembles indexes.
type Builder struct {
	embedder Embedder
	log      *slog.Logger
}

// NewBuilder creates an index builder.
func NewBuilder(embedder Embedder, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{
		embedder: embedder,
		log:      log.With("component", "vectorindex"),
	}
}

// Build embeds the chunk set and constructs a flat L2 index named handle.
// An empty chunk set yields a nil index (null handle): callers treat that
// as retrieval unavailable and fall back to full-context answering.
func (b *Builder) Build(ctx context.Context, handle string, chunks []chunker.Chunk) (*Index, error) {
	if len(chunks) == 0 {
		b.log.Debug("no chunks to index", "handle", handle)
		return nil, nil
	}

	vectors, err := b.embedder.EmbedBatch(ctx, chunker.Texts(chunks))
	if err != nil {
		return nil, fmt.Errorf("embedding chunk set: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	ix := &Index{
		Handle:    handle,
		Dimension: b.embedder.Dimension(),
		Chunks:    chunks,
		Vectors:   vectors,
	}
	b.log.Info("index built", "handle", handle, "chunks", len(chunks), "dimension", ix.Dimension)
	return ix, nil
}
