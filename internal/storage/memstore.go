package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fin360/financial-analyzer/internal/domain"
)

// MemoryContentStore is an in-process ContentStore. Used in tests and when
// running without a database.
type MemoryContentStore struct {
	mu      sync.RWMutex
	records map[domain.Fingerprint]domain.DocumentRecord
}

// NewMemoryContentStore creates an empty in-memory store.
func NewMemoryContentStore() *MemoryContentStore {
	return &MemoryContentStore{
		records: make(map[domain.Fingerprint]domain.DocumentRecord),
	}
}

// Get returns the record for a fingerprint.
func (s *MemoryContentStore) Get(ctx context.Context, fp domain.Fingerprint) (*domain.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[fp]
	if !ok {
		return nil, domain.NewError(domain.KindDocumentNotFound, "no record for fingerprint "+fp.Short(), nil)
	}
	out := rec
	return &out, nil
}

// Put stores a copy of the record.
func (s *MemoryContentStore) Put(ctx context.Context, rec *domain.DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *rec
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.records[rec.Fingerprint] = stored
	return nil
}

// List returns summaries newest first.
func (s *MemoryContentStore) List(ctx context.Context) ([]domain.DocumentSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.DocumentSummary, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, domain.DocumentSummary{
			Fingerprint: rec.Fingerprint,
			FileName:    rec.FileName,
			CreatedAt:   rec.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	return out, nil
}

// Delete removes the record for a fingerprint.
func (s *MemoryContentStore) Delete(ctx context.Context, fp domain.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, fp)
	return nil
}
