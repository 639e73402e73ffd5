// Package session holds per-document working state: the hot copy of
// analysis output and the append-only conversation log.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fin360/financial-analyzer/internal/domain"
)

// Entry is the in-memory working copy of an analyzed document.
type Entry struct {
	FileName       string
	ExtractedText  string
	AnalysisResult string
	IndexHandle    string
}

// Cache maps fingerprints to their working state. Unlike the content
// store, the cache is process-local and lost on restart; it is rehydrated
// from the store on demand.
type Cache struct {
	mu      sync.RWMutex
	entries map[domain.Fingerprint]Entry
}

// NewCache creates an empty session cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[domain.Fingerprint]Entry)}
}

// Get returns the entry for a fingerprint.
func (c *Cache) Get(fp domain.Fingerprint) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[fp]
	return e, ok
}

// Set stores the entry for a fingerprint.
func (c *Cache) Set(fp domain.Fingerprint, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fp] = e
}

// Delete removes the entry for a fingerprint.
func (c *Cache) Delete(fp domain.Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, fp)
}

// Len returns the number of cached documents.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// HistoryLedger is the append-only conversation log, keyed by fingerprint.
// Turns are never reordered or dropped except by an explicit Clear or Reset.
type HistoryLedger struct {
	mu    sync.Mutex
	turns map[domain.Fingerprint][]domain.ChatTurn
}

// NewHistoryLedger creates an empty ledger.
func NewHistoryLedger() *HistoryLedger {
	return &HistoryLedger{turns: make(map[domain.Fingerprint][]domain.ChatTurn)}
}

// Append adds a turn to a document's conversation and returns it with its
// assigned ID and timestamp.
func (l *HistoryLedger) Append(fp domain.Fingerprint, role domain.Role, content string, image []byte) domain.ChatTurn {
	turn := domain.ChatTurn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Image:     image,
		Timestamp: time.Now().UTC(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns[fp] = append(l.turns[fp], turn)
	return turn
}

// History returns a copy of a document's conversation in append order.
func (l *HistoryLedger) History(fp domain.Fingerprint) []domain.ChatTurn {
	l.mu.Lock()
	defer l.mu.Unlock()

	turns := l.turns[fp]
	out := make([]domain.ChatTurn, len(turns))
	copy(out, turns)
	return out
}

// Clear drops the conversation for one fingerprint.
func (l *HistoryLedger) Clear(fp domain.Fingerprint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.turns, fp)
}

// Reset drops every conversation.
func (l *HistoryLedger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = make(map[domain.Fingerprint][]domain.ChatTurn)
}
