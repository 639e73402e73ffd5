// Package engine implements the document analysis pipeline and the
// retrieval-augmented chat over its output.
package engine

import (
	"golang.org/x/sync/singleflight"

	"github.com/fin360/financial-analyzer/internal/chunker"
	"github.com/fin360/financial-analyzer/internal/domain"
	"github.com/fin360/financial-analyzer/internal/embedder"
	"github.com/fin360/financial-analyzer/internal/events"
	"github.com/fin360/financial-analyzer/internal/llm"
	"github.com/fin360/financial-analyzer/internal/ocr"
	"github.com/fin360/financial-analyzer/internal/pdf"
	"github.com/fin360/financial-analyzer/internal/session"
	"github.com/fin360/financial-analyzer/internal/storage"
	"github.com/fin360/financial-analyzer/internal/vectorindex"
	"github.com/fin360/financial-analyzer/pkg/logger"
)

// Config holds engine tuning parameters.
type Config struct {
	Chunking      chunker.Config
	TopK          int // retrieval result count
	MaxTokens     int // generation output cap
	ContextTokens int // model window for prompt fitting; <= 0 disables trimming
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Chunking:      chunker.DefaultConfig(),
		TopK:          3,
		MaxTokens:     4096,
		ContextTokens: 128000,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := c.Chunking.Validate(); err != nil {
		return err
	}
	if c.TopK <= 0 {
		return domain.Errorf(domain.KindInvalidConfig, "top-k must be positive, got %d", c.TopK)
	}
	return nil
}

// Inspector validates uploads and reports page counts.
type Inspector interface {
	IsValid(data []byte) bool
	PageCount(data []byte) (int, error)
}

// Deps are the capabilities the engine is assembled from. Store, Extractor,
// Provider, Embedder, and Indexes are required; the rest are optional and
// degrade to no-ops when absent. Inspector defaults to the fitz-backed one.
type Deps struct {
	Store     storage.ContentStore
	Extractor ocr.Extractor
	Provider  llm.Provider
	Embedder  embedder.Embedder
	Indexes   vectorindex.Store

	Inspector Inspector
	Objects   storage.ObjectStorage
	Cache     *storage.CacheManager
	Events    *events.Publisher
	Log       *logger.Logger
}

// Engine owns the analyze pipeline, the content-addressed cache semantics,
// and chat answering.
type Engine struct {
	store     storage.ContentStore
	extractor ocr.Extractor
	provider  llm.Provider
	embedder  embedder.Embedder
	indexes   vectorindex.Store
	inspector Inspector
	builder   *vectorindex.Builder
	chunker   *chunker.Chunker

	sessions *session.Cache
	ledger   *session.HistoryLedger

	objects storage.ObjectStorage
	cache   *storage.CacheManager
	events  *events.Publisher
	log     *logger.Logger
	cfg     Config

	// group collapses concurrent analyses of identical bytes into one run.
	group singleflight.Group
}

// New assembles an engine.
func New(deps Deps, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil || deps.Extractor == nil || deps.Provider == nil || deps.Embedder == nil || deps.Indexes == nil {
		return nil, domain.NewError(domain.KindInvalidConfig, "store, extractor, provider, embedder, and indexes are required", nil)
	}

	log := deps.Log
	if log == nil {
		log = logger.Default()
	}
	log = log.WithComponent("engine")

	ch, err := chunker.New(cfg.Chunking)
	if err != nil {
		return nil, err
	}

	inspector := deps.Inspector
	if inspector == nil {
		inspector = pdf.Inspector{}
	}

	return &Engine{
		store:     deps.Store,
		extractor: deps.Extractor,
		provider:  deps.Provider,
		embedder:  deps.Embedder,
		indexes:   deps.Indexes,
		inspector: inspector,
		builder:   vectorindex.NewBuilder(deps.Embedder, log.Logger),
		chunker:   ch,
		sessions:  session.NewCache(),
		ledger:    session.NewHistoryLedger(),
		objects:   deps.Objects,
		cache:     deps.Cache,
		events:    deps.Events,
		log:       log,
		cfg:       cfg,
	}, nil
}

// Sessions exposes the session cache for inspection.
func (e *Engine) Sessions() *session.Cache { return e.sessions }

// History returns the conversation for a fingerprint in append order.
func (e *Engine) History(fp domain.Fingerprint) []domain.ChatTurn {
	return e.ledger.History(fp)
}

// ClearHistory drops the conversation for one fingerprint.
func (e *Engine) ClearHistory(fp domain.Fingerprint) {
	e.ledger.Clear(fp)
}

// ResetHistory drops every conversation.
func (e *Engine) ResetHistory() {
	e.ledger.Reset()
}
