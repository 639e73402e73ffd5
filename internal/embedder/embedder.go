// Package embedder turns chunk text into dense vectors for retrieval.
package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/fin360/financial-analyzer/internal/domain"
	"github.com/fin360/financial-analyzer/pkg/logger"
)

// Embedder defines the interface for embedding generation.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension.
	Dimension() int

	// ModelName returns the model name.
	ModelName() string
}

// Config holds configuration for the embedder.
type Config struct {
	APIKey         string
	BaseURL        string // optional, for OpenAI-compatible endpoints
	Model          string
	MaxBatchSize   int           // max texts per API call
	MaxRetries     int           // retry attempts on failure
	RetryDelay     time.Duration // initial retry delay, doubles per attempt
	RateLimitRPS   int           // requests per second
	EnableCache    bool          // cache embeddings by text hash
	CacheSize      int           // max cache entries
	RequestTimeout time.Duration // timeout per API call
}

// DefaultConfig returns default configuration.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:         apiKey,
		Model:          "text-embedding-3-small",
		MaxBatchSize:   100,
		MaxRetries:     3,
		RetryDelay:     time.Second,
		RateLimitRPS:   50,
		EnableCache:    true,
		CacheSize:      10000,
		RequestTimeout: 60 * time.Second,
	}
}

// OpenAIEmbedder implements embedding generation against the OpenAI API
// or any OpenAI-compatible endpoint.
type OpenAIEmbedder struct {
	client      *openai.Client
	config      Config
	rateLimiter *rate.Limiter
	cache       *embeddingCache
	log         *logger.Logger
	stats       Stats
	statsMu     sync.Mutex
}

// Stats tracks embedding usage.
type Stats struct {
	TotalRequests int64 `json:"total_requests"`
	TotalTokens   int64 `json:"total_tokens"`
	TotalTexts    int64 `json:"total_texts"`
	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
	Errors        int64 `json:"errors"`
}

// embeddingCache is a small LRU keyed by text hash.
type embeddingCache struct {
	entries map[string][]float32
	order   []string
	maxSize int
	mu      sync.Mutex
}

// NewOpenAIEmbedder creates an embedder from config.
func NewOpenAIEmbedder(cfg Config, log *logger.Logger) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, domain.NewError(domain.KindInvalidConfig, "embedding API key is required", nil)
	}

	if log == nil {
		log = logger.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	var cache *embeddingCache
	if cfg.EnableCache {
		cache = &embeddingCache{
			entries: make(map[string][]float32),
			order:   make([]string, 0, cfg.CacheSize),
			maxSize: cfg.CacheSize,
		}
	}

	return &OpenAIEmbedder{
		client:      openai.NewClientWithConfig(clientCfg),
		config:      cfg,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitRPS),
		cache:       cache,
		log:         log.WithComponent("embedder"),
	}, nil
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts, preserving order.
// Cached texts are served without an API call.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()

	results := make([][]float32, len(texts))
	pending := make([]string, 0, len(texts))
	pendingIdx := make([]int, 0, len(texts))

	for i, text := range texts {
		if emb := e.cache.get(text); emb != nil {
			results[i] = emb
			e.bump(func(s *Stats) { s.CacheHits++ })
			continue
		}
		pending = append(pending, text)
		pendingIdx = append(pendingIdx, i)
		e.bump(func(s *Stats) { s.CacheMisses++ })
	}

	if len(pending) == 0 {
		return results, nil
	}

	for i := 0; i < len(pending); i += e.config.MaxBatchSize {
		end := i + e.config.MaxBatchSize
		if end > len(pending) {
			end = len(pending)
		}

		batch := pending[i:end]
		embeddings, tokens, err := e.embedWithRetry(ctx, batch)
		if err != nil {
			e.bump(func(s *Stats) { s.Errors++ })
			return nil, fmt.Errorf("batch embedding failed: %w", err)
		}

		for j, emb := range embeddings {
			results[pendingIdx[i+j]] = emb
			e.cache.set(batch[j], emb)
		}

		e.bump(func(s *Stats) {
			s.TotalRequests++
			s.TotalTokens += int64(tokens)
			s.TotalTexts += int64(len(batch))
		})
	}

	e.log.Debug("batch embedding complete",
		"total_texts", len(texts),
		"from_cache", len(texts)-len(pending),
		"from_api", len(pending),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return results, nil
}

func (e *OpenAIEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, int, error) {
	var lastErr error
	delay := e.config.RetryDelay

	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			e.log.Debug("retrying embedding request", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		if err := e.rateLimiter.Wait(ctx); err != nil {
			return nil, 0, fmt.Errorf("rate limiter: %w", err)
		}

		embeddings, tokens, err := e.doEmbed(ctx, texts)
		if err == nil {
			return embeddings, tokens, nil
		}

		lastErr = err
		e.log.WithError(err).Warn("embedding request failed", "attempt", attempt)
	}

	return nil, 0, fmt.Errorf("all retries failed: %w", lastErr)
}

func (e *OpenAIEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.RequestTimeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(reqCtx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.config.Model),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("embeddings API: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, 0, fmt.Errorf("got %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		embeddings[i] = data.Embedding
	}

	return embeddings, resp.Usage.TotalTokens, nil
}

// Dimension returns the embedding dimension for the configured model.
func (e *OpenAIEmbedder) Dimension() int {
	switch e.config.Model {
	case "text-embedding-3-large":
		return 3072
	default:
		return 1536
	}
}

// ModelName returns the model name.
func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}

// GetStats returns a snapshot of usage statistics.
func (e *OpenAIEmbedder) GetStats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

func (e *OpenAIEmbedder) bump(fn func(*Stats)) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	fn(&e.stats)
}

func (c *embeddingCache) get(text string) []float32 {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[hashText(text)]
}

func (c *embeddingCache) set(text string, embedding []float32) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := hashText(text)
	if _, exists := c.entries[key]; exists {
		return
	}

	if c.maxSize > 0 && len(c.entries) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = embedding
	c.order = append(c.order, key)
}

func hashText(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:16])
}

// MockEmbedder is a deterministic embedder for tests.
type MockEmbedder struct {
	dimension int
}

// NewMockEmbedder creates a mock embedder with the given dimension.
func NewMockEmbedder(dimension int) *MockEmbedder {
	return &MockEmbedder{dimension: dimension}
}

// Embed generates a deterministic embedding from the text hash.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	hash := sha256.Sum256([]byte(text))
	embedding := make([]float32, m.dimension)
	for i := 0; i < m.dimension; i++ {
		embedding[i] = float32(hash[i%32]) / 255.0
	}
	return embedding, nil
}

// EmbedBatch generates mock embeddings for multiple texts.
func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimension returns the mock embedding dimension.
func (m *MockEmbedder) Dimension() int {
	return m.dimension
}

// ModelName returns the mock model name.
func (m *MockEmbedder) ModelName() string {
	return "mock-embedder"
}
