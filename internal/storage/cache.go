package storage

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/fin360/financial-analyzer/internal/domain"
)

// RedisClient defines the interface for Redis operations. This allows for
// easy mocking in tests.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig holds configuration for the cache manager.
type CacheConfig struct {
	Prefix              string
	EmbeddingTTL        time.Duration
	RetrievalTTL        time.Duration
	DocumentTTL         time.Duration
	GracefulDegradation bool // continue without cache when Redis is unavailable
}

// DefaultCacheConfig returns a default cache configuration.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Prefix:              "findoc",
		EmbeddingTTL:        1 * time.Hour,
		RetrievalTTL:        5 * time.Minute,
		DocumentTTL:         1 * time.Hour,
		GracefulDegradation: true,
	}
}

// CacheMetrics tracks cache hit/miss statistics.
type CacheMetrics struct {
	EmbeddingHits   uint64
	EmbeddingMisses uint64
	RetrievalHits   uint64
	RetrievalMisses uint64
	DocumentHits    uint64
	DocumentMisses  uint64
	Errors          uint64
}

// RetrievedChunk is a cached retrieval result.
type RetrievedChunk struct {
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Distance   float32 `json:"distance"`
}

// CacheManager provides Redis-backed caching for embeddings, retrieval
// results, and document records.
type CacheManager struct {
	client  RedisClient
	config  CacheConfig
	logger  *slog.Logger
	metrics CacheMetrics
	healthy bool
}

// NewCacheManager creates a new CacheManager instance.
func NewCacheManager(client RedisClient, logger *slog.Logger, config CacheConfig) *CacheManager {
	if logger == nil {
		logger = slog.Default()
	}

	cm := &CacheManager{
		client:  client,
		config:  config,
		logger:  logger.With("component", "cache_manager"),
		healthy: true,
	}

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx); err != nil {
			cm.logger.Warn("Redis connection failed, cache will be disabled", "error", err)
			cm.healthy = false
		}
	} else {
		cm.healthy = false
	}

	return cm
}

// IsHealthy returns whether the cache is operational.
func (cm *CacheManager) IsHealthy() bool {
	return cm.healthy && cm.client != nil
}

// GetMetrics returns current cache metrics.
func (cm *CacheManager) GetMetrics() CacheMetrics {
	return CacheMetrics{
		EmbeddingHits:   atomic.LoadUint64(&cm.metrics.EmbeddingHits),
		EmbeddingMisses: atomic.LoadUint64(&cm.metrics.EmbeddingMisses),
		RetrievalHits:   atomic.LoadUint64(&cm.metrics.RetrievalHits),
		RetrievalMisses: atomic.LoadUint64(&cm.metrics.RetrievalMisses),
		DocumentHits:    atomic.LoadUint64(&cm.metrics.DocumentHits),
		DocumentMisses:  atomic.LoadUint64(&cm.metrics.DocumentMisses),
		Errors:          atomic.LoadUint64(&cm.metrics.Errors),
	}
}

// GetEmbedding retrieves a cached embedding for a query.
func (cm *CacheManager) GetEmbedding(ctx context.Context, query string) ([]float32, bool, error) {
	if !cm.IsHealthy() {
		return nil, false, nil
	}

	data, err := cm.client.Get(ctx, cm.embeddingKey(query))
	if err != nil {
		atomic.AddUint64(&cm.metrics.EmbeddingMisses, 1)
		return nil, false, nil
	}

	embedding, err := decodeEmbedding([]byte(data))
	if err != nil {
		cm.logger.Error("failed to decode cached embedding", "error", err)
		atomic.AddUint64(&cm.metrics.Errors, 1)
		return nil, false, err
	}

	atomic.AddUint64(&cm.metrics.EmbeddingHits, 1)
	return embedding, true, nil
}

// SetEmbedding caches an embedding for a query.
func (cm *CacheManager) SetEmbedding(ctx context.Context, query string, embedding []float32) error {
	if !cm.IsHealthy() {
		return nil
	}

	err := cm.client.Set(ctx, cm.embeddingKey(query), encodeEmbedding(embedding), cm.config.EmbeddingTTL)
	if err != nil {
		cm.logger.Error("failed to cache embedding", "error", err)
		atomic.AddUint64(&cm.metrics.Errors, 1)
		if cm.config.GracefulDegradation {
			return nil
		}
		return err
	}
	return nil
}

// GetRetrieval retrieves cached retrieval results for a
// fingerprint/source/query triple.
func (cm *CacheManager) GetRetrieval(ctx context.Context, fp domain.Fingerprint, source domain.ContextSource, query string, k int) ([]RetrievedChunk, bool, error) {
	if !cm.IsHealthy() {
		return nil, false, nil
	}

	data, err := cm.client.Get(ctx, cm.retrievalKey(fp, source, query, k))
	if err != nil {
		atomic.AddUint64(&cm.metrics.RetrievalMisses, 1)
		return nil, false, nil
	}

	var chunks []RetrievedChunk
	if err := json.Unmarshal([]byte(data), &chunks); err != nil {
		cm.logger.Error("failed to decode cached retrieval", "error", err)
		atomic.AddUint64(&cm.metrics.Errors, 1)
		return nil, false, err
	}

	atomic.AddUint64(&cm.metrics.RetrievalHits, 1)
	return chunks, true, nil
}

// SetRetrieval caches retrieval results.
func (cm *CacheManager) SetRetrieval(ctx context.Context, fp domain.Fingerprint, source domain.ContextSource, query string, k int, chunks []RetrievedChunk) error {
	if !cm.IsHealthy() {
		return nil
	}

	data, err := json.Marshal(chunks)
	if err != nil {
		cm.logger.Error("failed to encode retrieval for cache", "error", err)
		return err
	}

	err = cm.client.Set(ctx, cm.retrievalKey(fp, source, query, k), data, cm.config.RetrievalTTL)
	if err != nil {
		cm.logger.Error("failed to cache retrieval", "error", err)
		atomic.AddUint64(&cm.metrics.Errors, 1)
		if cm.config.GracefulDegradation {
			return nil
		}
		return err
	}
	return nil
}

// GetDocument retrieves a cached document record by fingerprint.
func (cm *CacheManager) GetDocument(ctx context.Context, fp domain.Fingerprint) (*domain.DocumentRecord, bool, error) {
	if !cm.IsHealthy() {
		return nil, false, nil
	}

	data, err := cm.client.Get(ctx, cm.documentKey(fp))
	if err != nil {
		atomic.AddUint64(&cm.metrics.DocumentMisses, 1)
		return nil, false, nil
	}

	var rec domain.DocumentRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		cm.logger.Error("failed to decode cached document", "error", err)
		atomic.AddUint64(&cm.metrics.Errors, 1)
		return nil, false, err
	}

	atomic.AddUint64(&cm.metrics.DocumentHits, 1)
	return &rec, true, nil
}

// SetDocument caches a document record.
func (cm *CacheManager) SetDocument(ctx context.Context, rec *domain.DocumentRecord) error {
	if !cm.IsHealthy() || rec == nil {
		return nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		cm.logger.Error("failed to encode document for cache", "error", err)
		return err
	}

	err = cm.client.Set(ctx, cm.documentKey(rec.Fingerprint), data, cm.config.DocumentTTL)
	if err != nil {
		cm.logger.Error("failed to cache document", "error", err)
		atomic.AddUint64(&cm.metrics.Errors, 1)
		if cm.config.GracefulDegradation {
			return nil
		}
		return err
	}
	return nil
}

// InvalidateDocument drops the cached record and retrieval results for a
// fingerprint. Called after delete and reindex.
func (cm *CacheManager) InvalidateDocument(ctx context.Context, fp domain.Fingerprint) error {
	if !cm.IsHealthy() {
		return nil
	}

	if err := cm.client.Del(ctx, cm.documentKey(fp)); err != nil {
		cm.logger.Warn("failed to invalidate document cache", "fingerprint", fp.Short(), "error", err)
	}

	pattern := fmt.Sprintf("%s:retrieve:%s:*", cm.config.Prefix, fp.Short())
	keys, err := cm.client.Keys(ctx, pattern)
	if err != nil {
		cm.logger.Warn("failed to list retrieval cache keys", "error", err)
		return nil
	}
	if len(keys) > 0 {
		if err := cm.client.Del(ctx, keys...); err != nil {
			cm.logger.Warn("failed to invalidate retrieval caches", "error", err)
		}
	}

	return nil
}

// InvalidateAll clears every cache entry under the configured prefix.
func (cm *CacheManager) InvalidateAll(ctx context.Context) error {
	if !cm.IsHealthy() {
		return nil
	}

	keys, err := cm.client.Keys(ctx, cm.config.Prefix+":*")
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		if err := cm.client.Del(ctx, keys...); err != nil {
			return err
		}
	}

	cm.logger.Info("invalidated all caches", "keys_deleted", len(keys))
	return nil
}

// Close closes the cache manager.
func (cm *CacheManager) Close() error {
	if cm.client != nil {
		return cm.client.Close()
	}
	return nil
}

func (cm *CacheManager) embeddingKey(query string) string {
	return fmt.Sprintf("%s:embed:%s", cm.config.Prefix, hashQuery(query))
}

func (cm *CacheManager) retrievalKey(fp domain.Fingerprint, source domain.ContextSource, query string, k int) string {
	return fmt.Sprintf("%s:retrieve:%s:%s:%s:%d", cm.config.Prefix, fp.Short(), source, hashQuery(query), k)
}

func (cm *CacheManager) documentKey(fp domain.Fingerprint) string {
	return fmt.Sprintf("%s:doc:%s", cm.config.Prefix, fp.String())
}

// hashQuery creates a hash of the query for use as a cache key.
func hashQuery(query string) string {
	h := sha256.Sum256([]byte(query))
	return hex.EncodeToString(h[:16])
}

// encodeEmbedding converts a float32 slice to bytes.
func encodeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeEmbedding converts bytes back to a float32 slice.
func decodeEmbedding(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding data length: %d", len(data))
	}

	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return embedding, nil
}
