package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fin360/financial-analyzer/internal/domain"
	"github.com/fin360/financial-analyzer/internal/llm"
	"github.com/fin360/financial-analyzer/internal/pdf"
	"github.com/fin360/financial-analyzer/internal/session"
	"github.com/fin360/financial-analyzer/internal/storage"
	"github.com/fin360/financial-analyzer/internal/tables"
	"github.com/fin360/financial-analyzer/internal/vectorindex"
)

// AnalyzeResult is the outcome of an analyze call.
type AnalyzeResult struct {
	Record     *domain.DocumentRecord
	FromCache  bool
	ChunkCount int
}

// Analyze runs the full pipeline for a PDF: fingerprint, cache check, OCR,
// report generation, table extraction, indexing, and persistence. Re-uploads
// of identical bytes return the stored record without touching OCR or the
// LLM, and concurrent uploads of the same bytes share a single run.
func (e *Engine) Analyze(ctx context.Context, fileName string, data []byte, pages []int) (*AnalyzeResult, error) {
	if !e.inspector.IsValid(data) {
		return nil, domain.NewError(domain.KindExtractionFailed, "file is not a readable PDF", nil)
	}

	fp := domain.FingerprintBytes(data)

	v, err, _ := e.group.Do(fp.String(), func() (any, error) {
		return e.analyzeOne(ctx, fp, fileName, data, pages)
	})
	if err != nil {
		return nil, err
	}
	return v.(*AnalyzeResult), nil
}

func (e *Engine) analyzeOne(ctx context.Context, fp domain.Fingerprint, fileName string, data []byte, pages []int) (*AnalyzeResult, error) {
	log := e.log.WithFields(map[string]any{"fingerprint": fp.Short(), "file_name": fileName})

	// Identical bytes short-circuit to the stored record.
	rec, err := e.lookup(ctx, fp)
	if err == nil {
		log.Info("analysis served from store")
		e.hydrateSession(fp, rec)
		return &AnalyzeResult{Record: rec, FromCache: true}, nil
	}
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		return nil, err
	}

	pageCount, err := e.inspector.PageCount(data)
	if err != nil {
		return nil, domain.NewError(domain.KindExtractionFailed, "counting pages", err)
	}
	if err := pdf.ValidatePages(pages, pageCount); err != nil {
		return nil, err
	}
	pages = pdf.NormalizePages(pages, pageCount)

	start := time.Now()

	extraction, err := e.extractor.Extract(ctx, data, fileName, pages)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, page := range extraction.Pages {
		text.WriteString(pageTag(page.PageNum))
		text.WriteString(page.Markdown)
		text.WriteString("\n\n")
	}
	extractedText := text.String()

	analysis, err := e.generateAnalysis(ctx, extractedText)
	if err != nil {
		return nil, err
	}

	extractedTables := tables.Extract(extractedText)

	chunks := e.chunker.Chunk(extractedText)
	handle := ""
	ix, err := e.builder.Build(ctx, vectorindex.HandleFor(fp), chunks)
	if err != nil {
		return nil, domain.NewError(domain.KindGenerationFailed, "building index", err)
	}
	if ix != nil {
		if err := e.indexes.Save(ix); err != nil {
			return nil, domain.NewError(domain.KindStorageUnavailable, "saving index", err)
		}
		handle = ix.Handle
	}

	record := &domain.DocumentRecord{
		Fingerprint:    fp,
		FileName:       fileName,
		ExtractedText:  extractedText,
		AnalysisResult: analysis,
		Tables:         extractedTables,
		IndexHandle:    handle,
		CreatedAt:      time.Now().UTC(),
	}
	if err := e.store.Put(ctx, record); err != nil {
		return nil, err
	}

	if e.cache != nil {
		e.cache.SetDocument(ctx, record)
	}
	e.hydrateSession(fp, record)
	e.storeOriginal(ctx, fp, data)
	e.events.Analyzed(ctx, fp, fileName, handle, len(chunks), false)

	log.Info("analysis complete",
		"pages", len(extraction.Pages),
		"chunks", len(chunks),
		"tables", len(extractedTables),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &AnalyzeResult{Record: record, ChunkCount: len(chunks)}, nil
}

// generateAnalysis produces the fixed-section report and appends the
// summary tables derived from it.
func (e *Engine) generateAnalysis(ctx context.Context, extractedText string) (string, error) {
	prompt := e.fitAnalysisPrompt(extractedText)

	e.log.Debug("generating analysis",
		"model", e.provider.Model(),
		"prompt_tokens", llm.CountTokens(e.provider.Model(), prompt),
	)

	resp, err := e.provider.Generate(ctx, llm.Request{
		SystemPrompt: analysisSystemPrompt,
		Prompt:       prompt,
		MaxTokens:    e.cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	analysis := resp.Text
	if section := tables.SummarySection(analysis); section != "" {
		analysis += "\n\n" + section
	}
	return analysis, nil
}

// lookup fetches a record, consulting the Redis cache before the store.
func (e *Engine) lookup(ctx context.Context, fp domain.Fingerprint) (*domain.DocumentRecord, error) {
	if e.cache != nil {
		if rec, hit, _ := e.cache.GetDocument(ctx, fp); hit {
			return rec, nil
		}
	}

	rec, err := e.store.Get(ctx, fp)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.SetDocument(ctx, rec)
	}
	return rec, nil
}

func (e *Engine) hydrateSession(fp domain.Fingerprint, rec *domain.DocumentRecord) {
	e.sessions.Set(fp, session.Entry{
		FileName:       rec.FileName,
		ExtractedText:  rec.ExtractedText,
		AnalysisResult: rec.AnalysisResult,
		IndexHandle:    rec.IndexHandle,
	})
}

// storeOriginal keeps the uploaded PDF in object storage. Best effort: a
// failed upload is logged, not fatal.
func (e *Engine) storeOriginal(ctx context.Context, fp domain.Fingerprint, data []byte) {
	if e.objects == nil {
		return
	}
	if _, err := e.objects.UploadBytes(ctx, data, storage.OriginalPath(fp), "application/pdf"); err != nil {
		e.log.Warn("failed to store original PDF", "fingerprint", fp.Short(), "error", err)
	}
}

// Get returns the stored record for a fingerprint.
func (e *Engine) Get(ctx context.Context, fp domain.Fingerprint) (*domain.DocumentRecord, error) {
	return e.lookup(ctx, fp)
}

// List returns summaries of all stored documents, newest first.
func (e *Engine) List(ctx context.Context) ([]domain.DocumentSummary, error) {
	return e.store.List(ctx)
}

// Delete removes a document everywhere: store, index, session, history,
// caches, and object storage.
func (e *Engine) Delete(ctx context.Context, fp domain.Fingerprint) error {
	if err := e.store.Delete(ctx, fp); err != nil {
		return err
	}
	if err := e.indexes.Delete(vectorindex.HandleFor(fp)); err != nil {
		e.log.Warn("failed to delete index", "fingerprint", fp.Short(), "error", err)
	}
	e.sessions.Delete(fp)
	e.ledger.Clear(fp)
	if e.cache != nil {
		e.cache.InvalidateDocument(ctx, fp)
	}
	if e.objects != nil {
		for _, path := range []string{storage.OriginalPath(fp), storage.ExportPath(fp)} {
			if err := e.objects.Delete(ctx, path); err != nil {
				e.log.Warn("failed to delete object", "path", path, "error", err)
			}
		}
	}
	e.events.Deleted(ctx, fp)

	e.log.Info("document deleted", "fingerprint", fp.Short())
	return nil
}

// Reindex rebuilds the vector index from the stored extracted text. Without
// force, an existing index is left untouched.
func (e *Engine) Reindex(ctx context.Context, fp domain.Fingerprint, force bool) (string, int, error) {
	rec, err := e.lookup(ctx, fp)
	if err != nil {
		return "", 0, err
	}

	handle := vectorindex.HandleFor(fp)
	if !force && e.indexes.Exists(handle) {
		return rec.IndexHandle, 0, nil
	}

	chunks := e.chunker.Chunk(rec.ExtractedText)
	ix, err := e.builder.Build(ctx, handle, chunks)
	if err != nil {
		return "", 0, domain.NewError(domain.KindGenerationFailed, "rebuilding index", err)
	}
	if ix == nil {
		// Nothing to index; drop any stale index and clear the handle.
		if err := e.indexes.Delete(handle); err != nil {
			e.log.Warn("failed to delete stale index", "handle", handle, "error", err)
		}
		handle = ""
	} else {
		if err := e.indexes.Save(ix); err != nil {
			return "", 0, domain.NewError(domain.KindStorageUnavailable, "saving index", err)
		}
	}

	if rec.IndexHandle != handle {
		rec.IndexHandle = handle
		if err := e.store.Put(ctx, rec); err != nil {
			return "", 0, err
		}
	}
	if e.cache != nil {
		e.cache.InvalidateDocument(ctx, fp)
		e.cache.SetDocument(ctx, rec)
	}
	e.hydrateSession(fp, rec)

	e.log.Info("reindexed document", "fingerprint", fp.Short(), "chunks", len(chunks), "force", force)
	return handle, len(chunks), nil
}

// DownloadOriginal streams the stored original PDF.
func (e *Engine) DownloadOriginal(ctx context.Context, fp domain.Fingerprint) ([]byte, error) {
	if e.objects == nil {
		return nil, domain.NewError(domain.KindStorageUnavailable, "object storage is not configured", nil)
	}
	if _, err := e.lookup(ctx, fp); err != nil {
		return nil, err
	}

	data, err := e.objects.Download(ctx, storage.OriginalPath(fp))
	if err != nil {
		return nil, domain.NewError(domain.KindStorageUnavailable, "downloading original PDF", err)
	}
	return data, nil
}

// ExportAnalysis renders the stored analysis as a standalone markdown file
// and keeps a copy in object storage next to the original PDF. The upload
// is best effort; the caller still gets the bytes when it fails.
func (e *Engine) ExportAnalysis(ctx context.Context, fp domain.Fingerprint) ([]byte, string, error) {
	rec, err := e.lookup(ctx, fp)
	if err != nil {
		return nil, "", err
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("# Financial Analysis: %s\n\n", rec.FileName))
	b.WriteString(fmt.Sprintf("Fingerprint: `%s`  \nAnalyzed: %s\n\n---\n\n", rec.Fingerprint, rec.CreatedAt.Format(time.RFC3339)))
	b.WriteString(rec.AnalysisResult)
	b.WriteString("\n")
	content := []byte(b.String())

	if e.objects != nil {
		if _, err := e.objects.UploadBytes(ctx, content, storage.ExportPath(fp), "text/markdown"); err != nil {
			e.log.Warn("failed to store analysis export", "fingerprint", fp.Short(), "error", err)
		}
	}

	name := strings.TrimSuffix(rec.FileName, ".pdf") + "-analysis.md"
	return content, name, nil
}
