package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/fin360/financial-analyzer/internal/domain"
	"github.com/fin360/financial-analyzer/internal/llm"
	"github.com/fin360/financial-analyzer/internal/storage"
	"github.com/fin360/financial-analyzer/internal/vectorindex"
)

// ChatRequest is a follow-up question about an analyzed document.
type ChatRequest struct {
	Fingerprint domain.Fingerprint
	Question    string
	Image       []byte
	ImageMIME   string
	Mode        domain.ChatMode      // defaults to retrieval
	Source      domain.ContextSource // defaults to extracted_text
	TopK        int                  // defaults to the engine's configured top-k
}

// ChatResult carries the answer and the full conversation after the turn.
type ChatResult struct {
	Answer        string
	History       []domain.ChatTurn
	UsedRetrieval bool
}

// Respond answers a question about a document. The answering strategy has
// three rungs: retrieval-narrowed context, full context when retrieval has
// nothing usable, and a fixed reply without a model call when the document
// has no context text at all. Unknown fingerprints fail before anything is
// appended to the conversation.
func (e *Engine) Respond(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	mode := req.Mode
	if mode == "" {
		mode = domain.ChatModeRetrieval
	}
	if !mode.Valid() {
		return nil, domain.Errorf(domain.KindInvalidConfig, "unknown chat mode %q", mode)
	}

	source := req.Source
	if source == "" {
		source = domain.ContextExtractedText
	}
	if !source.Valid() {
		return nil, domain.Errorf(domain.KindInvalidConfig, "unknown context source %q", source)
	}

	k := req.TopK
	if k <= 0 {
		k = e.cfg.TopK
	}

	rec, err := e.loadForChat(ctx, req.Fingerprint)
	if err != nil {
		return nil, err
	}

	contextText := rec.ExtractedText
	if source == domain.ContextAnalysisResult {
		contextText = rec.AnalysisResult
	}

	// Rung three: nothing to ground on, answer without the model.
	if strings.TrimSpace(contextText) == "" {
		e.ledger.Append(req.Fingerprint, domain.RoleUser, req.Question, req.Image)
		e.ledger.Append(req.Fingerprint, domain.RoleAssistant, noContextAnswer, nil)
		return &ChatResult{
			Answer:  noContextAnswer,
			History: e.ledger.History(req.Fingerprint),
		}, nil
	}

	var excerpts []string
	if mode == domain.ChatModeRetrieval {
		excerpts = e.retrieve(ctx, req.Fingerprint, rec, source, req.Question, k)
		if len(excerpts) == 0 {
			e.log.Debug("retrieval unavailable, answering with full context",
				"fingerprint", req.Fingerprint.Short())
		}
	}
	usedRetrieval := len(excerpts) > 0

	prompt := e.fitChatPrompt(contextText, excerpts, e.ledger.History(req.Fingerprint), req.Question)
	resp, err := e.provider.Generate(ctx, llm.Request{
		SystemPrompt: chatSystemPrompt,
		Prompt:       prompt,
		Image:        req.Image,
		ImageMIME:    req.ImageMIME,
		MaxTokens:    e.cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	e.ledger.Append(req.Fingerprint, domain.RoleUser, req.Question, req.Image)
	e.ledger.Append(req.Fingerprint, domain.RoleAssistant, resp.Text, nil)
	history := e.ledger.History(req.Fingerprint)

	e.events.Chat(ctx, req.Fingerprint, mode, source, len(history))

	return &ChatResult{
		Answer:        resp.Text,
		History:       history,
		UsedRetrieval: usedRetrieval,
	}, nil
}

// loadForChat resolves a document from the session cache, falling back to
// the store and rehydrating the session on a hit.
func (e *Engine) loadForChat(ctx context.Context, fp domain.Fingerprint) (*domain.DocumentRecord, error) {
	if entry, ok := e.sessions.Get(fp); ok {
		return &domain.DocumentRecord{
			Fingerprint:    fp,
			FileName:       entry.FileName,
			ExtractedText:  entry.ExtractedText,
			AnalysisResult: entry.AnalysisResult,
			IndexHandle:    entry.IndexHandle,
		}, nil
	}

	rec, err := e.lookup(ctx, fp)
	if err != nil {
		return nil, err
	}
	e.hydrateSession(fp, rec)
	return rec, nil
}

// retrieve returns the top-k chunk texts nearest the question, or nil when
// retrieval is unavailable for any reason. Retrieval failures never fail a
// chat; they demote it to full context. The index and the cache key follow
// the context source, so excerpts always come from the same corpus the
// answer is grounded on.
func (e *Engine) retrieve(ctx context.Context, fp domain.Fingerprint, rec *domain.DocumentRecord, source domain.ContextSource, query string, k int) []string {
	if e.cache != nil {
		if cached, hit, _ := e.cache.GetRetrieval(ctx, fp, source, query, k); hit {
			texts := make([]string, len(cached))
			for i, c := range cached {
				texts[i] = c.Text
			}
			return texts
		}
	}

	ix, err := e.loadOrBuildIndex(ctx, fp, rec, source)
	if err != nil || ix == nil {
		if err != nil {
			e.log.Warn("index unavailable", "fingerprint", fp.Short(), "error", err)
		}
		return nil
	}

	queryVec, err := e.embedQuery(ctx, query)
	if err != nil {
		e.log.Warn("query embedding failed", "fingerprint", fp.Short(), "error", err)
		return nil
	}

	matches, err := ix.Search(queryVec, k)
	if err != nil {
		e.log.Warn("index search failed", "fingerprint", fp.Short(), "error", err)
		return nil
	}

	texts := make([]string, 0, len(matches))
	cached := make([]storage.RetrievedChunk, 0, len(matches))
	for _, m := range matches {
		chunk, ok := ix.Chunk(m.ChunkIndex)
		if !ok {
			continue
		}
		texts = append(texts, chunk.Text)
		cached = append(cached, storage.RetrievedChunk{
			ChunkIndex: m.ChunkIndex,
			Text:       chunk.Text,
			Distance:   float32(m.Distance),
		})
	}

	if e.cache != nil && len(cached) > 0 {
		e.cache.SetRetrieval(ctx, fp, source, query, k, cached)
	}
	return texts
}

// loadOrBuildIndex resolves the index for the requested context source.
// Extracted text uses the persisted index, lazily rebuilt from the stored
// text when the index file is missing (e.g. after restart with a fresh
// index directory). Analysis text gets an ephemeral index built from the
// analysis markdown; it is never saved, and the retrieval cache absorbs
// repeat questions instead.
func (e *Engine) loadOrBuildIndex(ctx context.Context, fp domain.Fingerprint, rec *domain.DocumentRecord, source domain.ContextSource) (*vectorindex.Index, error) {
	if source == domain.ContextAnalysisResult {
		chunks := e.chunker.Chunk(rec.AnalysisResult)
		return e.builder.Build(ctx, vectorindex.HandleFor(fp)+"-analysis", chunks)
	}

	handle := rec.IndexHandle
	if handle == "" {
		handle = vectorindex.HandleFor(fp)
	}

	ix, err := e.indexes.Load(handle)
	if err == nil {
		return ix, nil
	}
	if !errors.Is(err, vectorindex.ErrNotFound) {
		return nil, err
	}

	chunks := e.chunker.Chunk(rec.ExtractedText)
	ix, err = e.builder.Build(ctx, handle, chunks)
	if err != nil || ix == nil {
		return nil, err
	}
	if err := e.indexes.Save(ix); err != nil {
		return nil, err
	}
	return ix, nil
}

// embedQuery embeds the question, consulting the embedding cache first.
func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if e.cache != nil {
		if vec, hit, _ := e.cache.GetEmbedding(ctx, query); hit {
			return vec, nil
		}
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.SetEmbedding(ctx, query, vec)
	}
	return vec, nil
}
