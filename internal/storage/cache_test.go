package storage

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/fin360/financial-analyzer/internal/domain"
)

// mockRedis is an in-memory RedisClient for tests.
type mockRedis struct {
	data map[string]string
}

func newMockRedis() *mockRedis {
	return &mockRedis{data: make(map[string]string)}
}

func (m *mockRedis) Get(ctx context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", fmt.Errorf("key not found")
	}
	return v, nil
}

func (m *mockRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	switch v := value.(type) {
	case string:
		m.data[key] = v
	case []byte:
		m.data[key] = string(v)
	default:
		m.data[key] = fmt.Sprint(v)
	}
	return nil
}

func (m *mockRedis) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *mockRedis) Keys(ctx context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	var out []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *mockRedis) Ping(ctx context.Context) error { return nil }
func (m *mockRedis) Close() error                   { return nil }

func TestCacheEmbeddingRoundTrip(t *testing.T) {
	cm := NewCacheManager(newMockRedis(), nil, DefaultCacheConfig())
	ctx := context.Background()

	if _, hit, _ := cm.GetEmbedding(ctx, "query"); hit {
		t.Fatal("unexpected hit on empty cache")
	}

	want := []float32{0.1, -0.5, 3.25}
	if err := cm.SetEmbedding(ctx, "query", want); err != nil {
		t.Fatalf("SetEmbedding: %v", err)
	}

	got, hit, err := cm.GetEmbedding(ctx, "query")
	if err != nil || !hit {
		t.Fatalf("GetEmbedding: hit=%v err=%v", hit, err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("embedding[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCacheDocumentRoundTrip(t *testing.T) {
	cm := NewCacheManager(newMockRedis(), nil, DefaultCacheConfig())
	ctx := context.Background()
	fp := domain.FingerprintBytes([]byte("pdf bytes"))

	rec := &domain.DocumentRecord{
		Fingerprint:    fp,
		FileName:       "q2.pdf",
		ExtractedText:  "text",
		AnalysisResult: "analysis",
	}
	if err := cm.SetDocument(ctx, rec); err != nil {
		t.Fatalf("SetDocument: %v", err)
	}

	got, hit, err := cm.GetDocument(ctx, fp)
	if err != nil || !hit {
		t.Fatalf("GetDocument: hit=%v err=%v", hit, err)
	}
	if got.FileName != "q2.pdf" || got.AnalysisResult != "analysis" {
		t.Fatalf("record = %+v", got)
	}
}

func TestCacheInvalidateDocument(t *testing.T) {
	cm := NewCacheManager(newMockRedis(), nil, DefaultCacheConfig())
	ctx := context.Background()
	fp := domain.FingerprintBytes([]byte("pdf bytes"))

	cm.SetDocument(ctx, &domain.DocumentRecord{Fingerprint: fp, FileName: "a.pdf"})
	cm.SetRetrieval(ctx, fp, domain.ContextExtractedText, "what is revenue", 3, []RetrievedChunk{{ChunkIndex: 0, Text: "rev"}})

	if err := cm.InvalidateDocument(ctx, fp); err != nil {
		t.Fatalf("InvalidateDocument: %v", err)
	}

	if _, hit, _ := cm.GetDocument(ctx, fp); hit {
		t.Fatal("document cache should be invalidated")
	}
	if _, hit, _ := cm.GetRetrieval(ctx, fp, domain.ContextExtractedText, "what is revenue", 3); hit {
		t.Fatal("retrieval cache should be invalidated")
	}
}

func TestCacheRetrievalKeyedBySource(t *testing.T) {
	cm := NewCacheManager(newMockRedis(), nil, DefaultCacheConfig())
	ctx := context.Background()
	fp := domain.FingerprintBytes([]byte("pdf bytes"))

	cm.SetRetrieval(ctx, fp, domain.ContextExtractedText, "ebitda", 3, []RetrievedChunk{{ChunkIndex: 0, Text: "raw text"}})

	if _, hit, _ := cm.GetRetrieval(ctx, fp, domain.ContextAnalysisResult, "ebitda", 3); hit {
		t.Fatal("analysis-source lookup must not hit extracted-text entries")
	}
	chunks, hit, _ := cm.GetRetrieval(ctx, fp, domain.ContextExtractedText, "ebitda", 3)
	if !hit || len(chunks) != 1 || chunks[0].Text != "raw text" {
		t.Fatalf("extracted-text lookup should hit, got hit=%v chunks=%v", hit, chunks)
	}
}

func TestCacheDisabledWithoutClient(t *testing.T) {
	cm := NewCacheManager(nil, nil, DefaultCacheConfig())
	if cm.IsHealthy() {
		t.Fatal("cache without a client must report unhealthy")
	}
	// All operations degrade to no-ops.
	if err := cm.SetEmbedding(context.Background(), "q", []float32{1}); err != nil {
		t.Fatalf("SetEmbedding on disabled cache: %v", err)
	}
	if _, hit, _ := cm.GetEmbedding(context.Background(), "q"); hit {
		t.Fatal("disabled cache must miss")
	}
}

func TestDecodeEmbeddingRejectsBadLength(t *testing.T) {
	if _, err := decodeEmbedding([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated data")
	}
}
