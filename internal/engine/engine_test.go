package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fin360/financial-analyzer/internal/chunker"
	"github.com/fin360/financial-analyzer/internal/domain"
	"github.com/fin360/financial-analyzer/internal/embedder"
	"github.com/fin360/financial-analyzer/internal/llm"
	"github.com/fin360/financial-analyzer/internal/ocr"
	"github.com/fin360/financial-analyzer/internal/storage"
	"github.com/fin360/financial-analyzer/internal/vectorindex"
)

// mockInspector accepts anything with a "%PDF" prefix and reports a fixed
// page count.
type mockInspector struct {
	pages int
}

func (m *mockInspector) IsValid(data []byte) bool {
	return strings.HasPrefix(string(data), "%PDF")
}

func (m *mockInspector) PageCount(data []byte) (int, error) {
	return m.pages, nil
}

// mockExtractor counts calls, records the requested pages, and returns
// canned pages.
type mockExtractor struct {
	mu        sync.Mutex
	calls     int
	lastPages []int
	pages     []ocr.Page
	err       error
}

func (m *mockExtractor) Extract(ctx context.Context, fileBytes []byte, fileName string, pages []int) (*ocr.Result, error) {
	m.mu.Lock()
	m.calls++
	m.lastPages = append([]int(nil), pages...)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return &ocr.Result{Pages: m.pages}, nil
}

func (m *mockExtractor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockExtractor) pagesSeen() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPages
}

// mockProvider counts calls and returns a canned completion.
type mockProvider struct {
	mu      sync.Mutex
	calls   int
	text    string
	err     error
	prompts []string
}

func (m *mockProvider) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.calls++
	m.prompts = append(m.prompts, req.Prompt)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Response{Text: m.text, Model: "mock-model"}, nil
}

func (m *mockProvider) Name() string  { return "mock" }
func (m *mockProvider) Model() string { return "mock-model" }

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockProvider) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

// mockObjects is an in-memory object store keyed by path.
type mockObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMockObjects() *mockObjects {
	return &mockObjects{objects: make(map[string][]byte)}
}

func (m *mockObjects) UploadBytes(ctx context.Context, data []byte, path, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = append([]byte(nil), data...)
	return path, nil
}

func (m *mockObjects) Download(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[path]
	if !ok {
		return nil, domain.NewError(domain.KindStorageUnavailable, "object not found", nil)
	}
	return data, nil
}

func (m *mockObjects) DownloadToWriter(ctx context.Context, path string, w io.Writer) error {
	data, err := m.Download(ctx, path)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (m *mockObjects) GenerateSignedURL(ctx context.Context, path string, expiry time.Duration) (string, error) {
	return "https://signed.example/" + path, nil
}

func (m *mockObjects) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

func (m *mockObjects) Exists(ctx context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

func (m *mockObjects) Health(ctx context.Context) error { return nil }

type testRig struct {
	engine    *Engine
	extractor *mockExtractor
	provider  *mockProvider
	store     *storage.MemoryContentStore
}

func newTestRig(t *testing.T, ext *mockExtractor, prov *mockProvider) *testRig {
	return newTestRigWith(t, ext, prov, nil, DefaultConfig())
}

func newTestRigWith(t *testing.T, ext *mockExtractor, prov *mockProvider, objects storage.ObjectStorage, cfg Config) *testRig {
	t.Helper()

	indexes, err := vectorindex.NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	store := storage.NewMemoryContentStore()

	eng, err := New(Deps{
		Store:     store,
		Extractor: ext,
		Provider:  prov,
		Embedder:  embedder.NewMockEmbedder(32),
		Indexes:   indexes,
		Inspector: &mockInspector{pages: 3},
		Objects:   objects,
	}, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return &testRig{engine: eng, extractor: ext, provider: prov, store: store}
}

var samplePDF = []byte("%PDF-1.4 sample financial report bytes")

func sampleExtractor() *mockExtractor {
	return &mockExtractor{pages: []ocr.Page{
		{PageNum: 1, Markdown: "Revenue grew 10% year over year."},
		{PageNum: 2, Markdown: "Costs fell 5% due to restructuring."},
	}}
}

func TestAnalyzePipeline(t *testing.T) {
	rig := newTestRig(t, sampleExtractor(), &mockProvider{
		text: "## ADJ EBITDA\n\n| Item | FY24 |\n|---|---|\n| EBITDA | 25 |\n",
	})

	res, err := rig.engine.Analyze(context.Background(), "report.pdf", samplePDF, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if res.FromCache {
		t.Fatal("first analysis must not be from cache")
	}
	if res.Record.Fingerprint != domain.FingerprintBytes(samplePDF) {
		t.Fatal("record fingerprint mismatch")
	}
	if !strings.Contains(res.Record.ExtractedText, "**Page 1**") ||
		!strings.Contains(res.Record.ExtractedText, "**Page 2**") {
		t.Fatalf("extracted text missing page tags: %q", res.Record.ExtractedText)
	}
	if !strings.Contains(res.Record.AnalysisResult, "## SUMMARY TABLES") {
		t.Fatalf("analysis missing summary tables: %q", res.Record.AnalysisResult)
	}
	if res.Record.IndexHandle == "" || res.ChunkCount == 0 {
		t.Fatalf("expected an index: handle=%q chunks=%d", res.Record.IndexHandle, res.ChunkCount)
	}
	if !strings.HasPrefix(res.Record.IndexHandle, "findoc-") {
		t.Fatalf("handle = %q", res.Record.IndexHandle)
	}
	// An omitted selection expands to every page before OCR.
	got := rig.extractor.pagesSeen()
	if len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Fatalf("extractor pages = %v, want [0 1 2]", got)
	}
}

func TestAnalyzeIdempotent(t *testing.T) {
	ext := sampleExtractor()
	prov := &mockProvider{text: "analysis"}
	rig := newTestRig(t, ext, prov)
	ctx := context.Background()

	first, err := rig.engine.Analyze(ctx, "report.pdf", samplePDF, nil)
	if err != nil {
		t.Fatalf("first Analyze: %v", err)
	}

	second, err := rig.engine.Analyze(ctx, "renamed.pdf", samplePDF, nil)
	if err != nil {
		t.Fatalf("second Analyze: %v", err)
	}

	if !second.FromCache {
		t.Fatal("identical bytes must be served from the store")
	}
	if second.Record.Fingerprint != first.Record.Fingerprint {
		t.Fatal("fingerprints must match for identical bytes")
	}
	// Neither OCR nor generation runs again.
	if got := ext.callCount(); got != 1 {
		t.Fatalf("extractor calls = %d, want 1", got)
	}
	if got := prov.callCount(); got != 1 {
		t.Fatalf("provider calls = %d, want 1", got)
	}
	// The stored file name wins over the re-upload name.
	if second.Record.FileName != "report.pdf" {
		t.Fatalf("file name = %q, want original", second.Record.FileName)
	}
}

func TestAnalyzeRejectsNonPDF(t *testing.T) {
	rig := newTestRig(t, sampleExtractor(), &mockProvider{text: "x"})

	_, err := rig.engine.Analyze(context.Background(), "notes.txt", []byte("just text"), nil)
	if !errors.Is(err, domain.ErrExtractionFailed) {
		t.Fatalf("err = %v, want EXTRACTION_FAILED", err)
	}
}

func TestAnalyzeInvalidPageRange(t *testing.T) {
	ext := sampleExtractor()
	rig := newTestRig(t, ext, &mockProvider{text: "x"})

	_, err := rig.engine.Analyze(context.Background(), "report.pdf", samplePDF, []int{-1})
	if !errors.Is(err, domain.ErrInvalidPageRange) {
		t.Fatalf("err = %v, want INVALID_PAGE_RANGE", err)
	}
	// Page 5 on a 3-page document.
	_, err = rig.engine.Analyze(context.Background(), "report.pdf", samplePDF, []int{5})
	if !errors.Is(err, domain.ErrInvalidPageRange) {
		t.Fatalf("err = %v, want INVALID_PAGE_RANGE", err)
	}
	if ext.callCount() != 0 {
		t.Fatal("OCR must not run for invalid page ranges")
	}
}

func TestAnalyzeExtractionFailure(t *testing.T) {
	ext := &mockExtractor{err: domain.NewError(domain.KindExtractionFailed, "upstream 429", nil)}
	rig := newTestRig(t, ext, &mockProvider{text: "x"})

	_, err := rig.engine.Analyze(context.Background(), "report.pdf", samplePDF, nil)
	if !errors.Is(err, domain.ErrExtractionFailed) {
		t.Fatalf("err = %v, want EXTRACTION_FAILED", err)
	}
	// Nothing is persisted on failure.
	if _, err := rig.store.Get(context.Background(), domain.FingerprintBytes(samplePDF)); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatal("failed analysis must not leave a record")
	}
}

func TestAnalyzeGenerationFailure(t *testing.T) {
	prov := &mockProvider{err: domain.NewError(domain.KindGenerationFailed, "model down", nil)}
	rig := newTestRig(t, sampleExtractor(), prov)

	_, err := rig.engine.Analyze(context.Background(), "report.pdf", samplePDF, nil)
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("err = %v, want GENERATION_FAILED", err)
	}
}

func TestAnalysisPromptTrimmedToWindow(t *testing.T) {
	longText := strings.Repeat("revenue recognition policy remains unchanged. ", 1200) + "zzzterminus"
	ext := &mockExtractor{pages: []ocr.Page{{PageNum: 1, Markdown: longText}}}
	prov := &mockProvider{text: "## BUSINESS OVERVIEW\nFine."}

	cfg := DefaultConfig()
	cfg.ContextTokens = 400
	cfg.MaxTokens = 50
	rig := newTestRigWith(t, ext, prov, nil, cfg)

	if _, err := rig.engine.Analyze(context.Background(), "big.pdf", samplePDF, nil); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	prompt := prov.lastPrompt()
	if strings.Contains(prompt, "zzzterminus") {
		t.Fatal("document tail should be trimmed from the report prompt")
	}
	if !strings.Contains(prompt, "revenue recognition") {
		t.Fatal("trimming should keep the head of the document")
	}
	for _, section := range analysisSections {
		if !strings.Contains(prompt, section) {
			t.Fatalf("trimmed prompt missing section %q", section)
		}
	}
}

func TestChatUnknownDocument(t *testing.T) {
	rig := newTestRig(t, sampleExtractor(), &mockProvider{text: "x"})

	_, err := rig.engine.Respond(context.Background(), ChatRequest{
		Fingerprint: domain.FingerprintBytes([]byte("never analyzed")),
		Question:    "what is revenue?",
	})
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("err = %v, want DOCUMENT_NOT_FOUND", err)
	}
}

func TestChatHistoryOrder(t *testing.T) {
	rig := newTestRig(t, sampleExtractor(), &mockProvider{text: "the answer"})
	ctx := context.Background()

	res, err := rig.engine.Analyze(ctx, "report.pdf", samplePDF, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	fp := res.Record.Fingerprint

	first, err := rig.engine.Respond(ctx, ChatRequest{Fingerprint: fp, Question: "q1"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if first.Answer != "the answer" {
		t.Fatalf("answer = %q", first.Answer)
	}

	second, err := rig.engine.Respond(ctx, ChatRequest{Fingerprint: fp, Question: "q2"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}

	wantRoles := []domain.Role{domain.RoleUser, domain.RoleAssistant, domain.RoleUser, domain.RoleAssistant}
	if len(second.History) != 4 {
		t.Fatalf("history = %d turns, want 4", len(second.History))
	}
	for i, role := range wantRoles {
		if second.History[i].Role != role {
			t.Fatalf("turn %d role = %v, want %v", i, second.History[i].Role, role)
		}
	}
	if second.History[0].Content != "q1" || second.History[2].Content != "q2" {
		t.Fatalf("history order wrong: %+v", second.History)
	}
}

func TestChatRetrievalKeepsFullContext(t *testing.T) {
	prov := &mockProvider{text: "answer"}
	rig := newTestRig(t, sampleExtractor(), prov)
	ctx := context.Background()

	res, err := rig.engine.Analyze(ctx, "report.pdf", samplePDF, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	out, err := rig.engine.Respond(ctx, ChatRequest{
		Fingerprint: res.Record.Fingerprint,
		Question:    "how did revenue develop?",
		Mode:        domain.ChatModeRetrieval,
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !out.UsedRetrieval {
		t.Fatal("expected retrieval to be used")
	}

	prompt := prov.lastPrompt()
	if !strings.Contains(prompt, "[Excerpt 1]") {
		t.Fatalf("prompt should carry excerpts: %q", prompt)
	}
	// Excerpts point into the context, they never replace it.
	if !strings.Contains(prompt, "Full document context:") {
		t.Fatalf("retrieval prompt dropped the full context block: %q", prompt)
	}
	if !strings.Contains(prompt, "Revenue grew 10%") || !strings.Contains(prompt, "Costs fell 5%") {
		t.Fatalf("retrieval prompt missing full document text: %q", prompt)
	}
}

func TestChatFullModeUsesWholeContext(t *testing.T) {
	prov := &mockProvider{text: "answer"}
	rig := newTestRig(t, sampleExtractor(), prov)
	ctx := context.Background()

	res, _ := rig.engine.Analyze(ctx, "report.pdf", samplePDF, nil)

	out, err := rig.engine.Respond(ctx, ChatRequest{
		Fingerprint: res.Record.Fingerprint,
		Question:    "summarize",
		Mode:        domain.ChatModeFull,
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if out.UsedRetrieval {
		t.Fatal("full mode must not retrieve")
	}
	if !strings.Contains(prov.lastPrompt(), "Revenue grew 10%") {
		t.Fatal("full context missing from prompt")
	}
}

func TestChatAnalysisSourceSearchesAnalysisText(t *testing.T) {
	prov := &mockProvider{text: "## ADJ EBITDA\nMargin impact of the xylocarp divestiture."}
	rig := newTestRig(t, sampleExtractor(), prov)
	ctx := context.Background()

	res, err := rig.engine.Analyze(ctx, "report.pdf", samplePDF, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	fp := res.Record.Fingerprint

	ix, err := rig.engine.loadOrBuildIndex(ctx, fp, res.Record, domain.ContextAnalysisResult)
	if err != nil || ix == nil {
		t.Fatalf("loadOrBuildIndex: ix=%v err=%v", ix, err)
	}
	chunk, ok := ix.Chunk(0)
	if !ok || !strings.Contains(chunk.Text, "xylocarp") {
		t.Fatalf("analysis index should cover the analysis text, got %+v", chunk)
	}
	if strings.Contains(chunk.Text, "Revenue grew 10%") {
		t.Fatal("analysis index must not be built from the extracted text")
	}
	if rig.engine.indexes.Exists(vectorindex.HandleFor(fp) + "-analysis") {
		t.Fatal("analysis index must stay ephemeral")
	}

	out, err := rig.engine.Respond(ctx, ChatRequest{
		Fingerprint: fp,
		Question:    "what was divested?",
		Source:      domain.ContextAnalysisResult,
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !out.UsedRetrieval {
		t.Fatal("expected retrieval over the analysis text")
	}
	if !strings.Contains(prov.lastPrompt(), "[Excerpt 1]") {
		t.Fatalf("prompt should carry excerpts: %q", prov.lastPrompt())
	}
}

func TestChatPromptTrimmedToWindow(t *testing.T) {
	longText := strings.Repeat("fiscal discipline drove margins higher. ", 1200) + "zzzomega"
	ext := &mockExtractor{pages: []ocr.Page{{PageNum: 1, Markdown: longText}}}
	prov := &mockProvider{text: "answer"}

	cfg := DefaultConfig()
	cfg.ContextTokens = 200
	cfg.MaxTokens = 50
	rig := newTestRigWith(t, ext, prov, nil, cfg)
	ctx := context.Background()

	res, err := rig.engine.Analyze(ctx, "big.pdf", samplePDF, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	_, err = rig.engine.Respond(ctx, ChatRequest{
		Fingerprint: res.Record.Fingerprint,
		Question:    "how are margins?",
		Mode:        domain.ChatModeFull,
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}

	prompt := prov.lastPrompt()
	if !strings.Contains(prompt, "Question: how are margins?") {
		t.Fatalf("question missing from prompt: %q", prompt)
	}
	if strings.Contains(prompt, "zzzomega") {
		t.Fatal("context tail should be trimmed from an oversized prompt")
	}
	if !strings.Contains(prompt, "fiscal discipline") {
		t.Fatal("trimming should keep the head of the context")
	}
}

func TestAnalyzeChunklessDocumentHasNoIndex(t *testing.T) {
	// Zero extracted pages produce zero chunks and no persisted index. The
	// analysis text still gets its own index at chat time, so retrieval
	// over the analysis source keeps working.
	ext := &mockExtractor{}
	prov := &mockProvider{text: "analysis of an empty extraction"}
	rig := newTestRig(t, ext, prov)
	ctx := context.Background()

	res, err := rig.engine.Analyze(ctx, "empty.pdf", samplePDF, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Record.IndexHandle != "" {
		t.Fatalf("handle = %q, want empty for chunkless document", res.Record.IndexHandle)
	}

	out, err := rig.engine.Respond(ctx, ChatRequest{
		Fingerprint: res.Record.Fingerprint,
		Question:    "anything?",
		Mode:        domain.ChatModeRetrieval,
		Source:      domain.ContextAnalysisResult,
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !out.UsedRetrieval {
		t.Fatal("analysis-source retrieval should not depend on a persisted index")
	}
}

// queryFailEmbedder serves batch embedding but fails single-text queries.
type queryFailEmbedder struct {
	embedder.Embedder
}

func (q queryFailEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, domain.NewError(domain.KindGenerationFailed, "embedding backend down", nil)
}

func TestChatFallsBackWhenRetrievalFails(t *testing.T) {
	indexes, err := vectorindex.NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	prov := &mockProvider{text: "fallback answer"}

	eng, err := New(Deps{
		Store:     storage.NewMemoryContentStore(),
		Extractor: sampleExtractor(),
		Provider:  prov,
		Embedder:  queryFailEmbedder{embedder.NewMockEmbedder(32)},
		Indexes:   indexes,
		Inspector: &mockInspector{pages: 3},
	}, DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	res, err := eng.Analyze(ctx, "report.pdf", samplePDF, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	out, err := eng.Respond(ctx, ChatRequest{
		Fingerprint: res.Record.Fingerprint,
		Question:    "anything?",
		Mode:        domain.ChatModeRetrieval,
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if out.UsedRetrieval {
		t.Fatal("failed query embedding must demote to full context")
	}
	if out.Answer != "fallback answer" {
		t.Fatalf("answer = %q", out.Answer)
	}
	if strings.Contains(prov.lastPrompt(), "[Excerpt") {
		t.Fatal("demoted chat must not carry excerpts")
	}
}

func TestChatNoContextShortCircuit(t *testing.T) {
	// Zero extracted pages leave an empty extracted-text context.
	ext := &mockExtractor{}
	prov := &mockProvider{text: ""}
	rig := newTestRig(t, ext, prov)
	ctx := context.Background()

	res, err := rig.engine.Analyze(ctx, "empty.pdf", samplePDF, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	chatCallsBefore := prov.callCount()

	out, err := rig.engine.Respond(ctx, ChatRequest{
		Fingerprint: res.Record.Fingerprint,
		Question:    "anything?",
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if out.Answer != noContextAnswer {
		t.Fatalf("answer = %q, want fixed no-context reply", out.Answer)
	}
	if prov.callCount() != chatCallsBefore {
		t.Fatal("no-context chat must not call the model")
	}
	if len(out.History) != 2 {
		t.Fatalf("history = %d turns, want 2", len(out.History))
	}
}

func TestChatGenerationFailureLeavesHistoryClean(t *testing.T) {
	prov := &mockProvider{text: "ok"}
	rig := newTestRig(t, sampleExtractor(), prov)
	ctx := context.Background()

	res, _ := rig.engine.Analyze(ctx, "report.pdf", samplePDF, nil)

	prov.mu.Lock()
	prov.err = domain.NewError(domain.KindGenerationFailed, "model down", nil)
	prov.mu.Unlock()

	_, err := rig.engine.Respond(ctx, ChatRequest{Fingerprint: res.Record.Fingerprint, Question: "q"})
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("err = %v, want GENERATION_FAILED", err)
	}
	if got := len(rig.engine.History(res.Record.Fingerprint)); got != 0 {
		t.Fatalf("failed chat left %d turns in history", got)
	}
}

func TestDeleteRemovesEverything(t *testing.T) {
	rig := newTestRig(t, sampleExtractor(), &mockProvider{text: "a"})
	ctx := context.Background()

	res, _ := rig.engine.Analyze(ctx, "report.pdf", samplePDF, nil)
	fp := res.Record.Fingerprint
	rig.engine.Respond(ctx, ChatRequest{Fingerprint: fp, Question: "q"})

	if err := rig.engine.Delete(ctx, fp); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := rig.engine.Get(ctx, fp); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatal("record should be gone")
	}
	if got := len(rig.engine.History(fp)); got != 0 {
		t.Fatalf("history should be cleared, got %d turns", got)
	}
	if _, ok := rig.engine.Sessions().Get(fp); ok {
		t.Fatal("session should be cleared")
	}
}

func TestReindexForceRebuilds(t *testing.T) {
	rig := newTestRig(t, sampleExtractor(), &mockProvider{text: "a"})
	ctx := context.Background()

	res, _ := rig.engine.Analyze(ctx, "report.pdf", samplePDF, nil)
	fp := res.Record.Fingerprint

	// Without force an existing index is a no-op.
	handle, chunks, err := rig.engine.Reindex(ctx, fp, false)
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if chunks != 0 || handle != res.Record.IndexHandle {
		t.Fatalf("no-op reindex: handle=%q chunks=%d", handle, chunks)
	}

	handle, chunks, err = rig.engine.Reindex(ctx, fp, true)
	if err != nil {
		t.Fatalf("forced Reindex: %v", err)
	}
	if chunks == 0 || handle == "" {
		t.Fatalf("forced reindex: handle=%q chunks=%d", handle, chunks)
	}
}

func TestExportAnalysis(t *testing.T) {
	rig := newTestRig(t, sampleExtractor(), &mockProvider{text: "## BUSINESS OVERVIEW\nGood."})
	ctx := context.Background()

	res, _ := rig.engine.Analyze(ctx, "q2-report.pdf", samplePDF, nil)

	data, name, err := rig.engine.ExportAnalysis(ctx, res.Record.Fingerprint)
	if err != nil {
		t.Fatalf("ExportAnalysis: %v", err)
	}
	if name != "q2-report-analysis.md" {
		t.Fatalf("name = %q", name)
	}
	if !strings.Contains(string(data), "## BUSINESS OVERVIEW") {
		t.Fatalf("export missing analysis body: %q", data)
	}
}

func TestExportAnalysisPersistsToObjectStorage(t *testing.T) {
	objects := newMockObjects()
	rig := newTestRigWith(t, sampleExtractor(), &mockProvider{text: "## BUSINESS OVERVIEW\nGood."}, objects, DefaultConfig())
	ctx := context.Background()

	res, err := rig.engine.Analyze(ctx, "q2-report.pdf", samplePDF, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	fp := res.Record.Fingerprint

	data, _, err := rig.engine.ExportAnalysis(ctx, fp)
	if err != nil {
		t.Fatalf("ExportAnalysis: %v", err)
	}

	stored, err := objects.Download(ctx, storage.ExportPath(fp))
	if err != nil {
		t.Fatalf("export not uploaded: %v", err)
	}
	if string(stored) != string(data) {
		t.Fatal("stored export differs from the returned bytes")
	}

	if err := rig.engine.Delete(ctx, fp); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	for _, path := range []string{storage.OriginalPath(fp), storage.ExportPath(fp)} {
		if ok, _ := objects.Exists(ctx, path); ok {
			t.Fatalf("object %s should be deleted", path)
		}
	}
}

func TestEngineConfigValidation(t *testing.T) {
	_, err := New(Deps{}, Config{Chunking: chunker.DefaultConfig(), TopK: 0})
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("err = %v, want INVALID_CONFIG", err)
	}
}
