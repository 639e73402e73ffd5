// Package handlers provides HTTP request handlers for the API.
package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fin360/financial-analyzer/internal/domain"
)

// MaxUploadBytes caps the accepted PDF size.
const MaxUploadBytes = 50 << 20 // 50 MiB

// AnalyzeResponse is the result of a document upload.
type AnalyzeResponse struct {
	Fingerprint    domain.Fingerprint `json:"fingerprint"`
	FileName       string             `json:"file_name"`
	AnalysisResult string             `json:"analysis_result"`
	Tables         []domain.Table     `json:"extracted_tables"`
	IndexHandle    string             `json:"index_handle,omitempty"`
	FromCache      bool               `json:"from_cache"`
	ChunkCount     int                `json:"chunk_count"`
}

// ReindexResponse reports the outcome of an index rebuild.
type ReindexResponse struct {
	Fingerprint domain.Fingerprint `json:"fingerprint"`
	IndexHandle string             `json:"index_handle,omitempty"`
	ChunkCount  int                `json:"chunk_count"`
}

// fingerprintParam extracts and validates the fingerprint URL parameter.
func fingerprintParam(r *http.Request) (domain.Fingerprint, error) {
	raw := chi.URLParam(r, "fingerprint")
	if len(raw) != 64 {
		return "", fmt.Errorf("fingerprint must be 64 hex characters, got %d", len(raw))
	}
	for _, c := range raw {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("fingerprint contains non-hex character %q", c)
		}
	}
	return domain.Fingerprint(raw), nil
}

// parsePages parses the optional comma-separated zero-based page list.
func parsePages(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	pages := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid page number %q", part)
		}
		pages = append(pages, n)
	}
	return pages, nil
}

// HandleAnalyze returns a handler that accepts a PDF upload and runs the
// analysis pipeline.
// POST /api/v1/documents
//
// Multipart form fields:
//
//	file   the PDF (required)
//	pages  comma-separated zero-based page numbers (optional, default all)
func HandleAnalyze(svc DocumentService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)

		if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
			logger.Warn("failed to parse upload form", "error", err)
			RespondBadRequest(w, "Expected a multipart form with a 'file' field")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			RespondBadRequest(w, "Missing 'file' field")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			logger.Error("failed to read upload", "error", err)
			RespondInternalError(w, "Failed to read uploaded file")
			return
		}
		if len(data) == 0 {
			RespondBadRequest(w, "Uploaded file is empty")
			return
		}

		pages, err := parsePages(r.FormValue("pages"))
		if err != nil {
			RespondBadRequest(w, err.Error())
			return
		}

		logger.Info("processing upload",
			"file_name", header.Filename,
			"size", len(data),
			"pages", pages,
		)

		result, err := svc.Analyze(r.Context(), header.Filename, data, pages)
		if err != nil {
			logger.Error("analysis failed", "file_name", header.Filename, "error", err)
			RespondDomainError(w, err)
			return
		}

		resp := AnalyzeResponse{
			Fingerprint:    result.Record.Fingerprint,
			FileName:       result.Record.FileName,
			AnalysisResult: result.Record.AnalysisResult,
			Tables:         result.Record.Tables,
			IndexHandle:    result.Record.IndexHandle,
			FromCache:      result.FromCache,
			ChunkCount:     result.ChunkCount,
		}
		if resp.Tables == nil {
			resp.Tables = []domain.Table{}
		}

		status := http.StatusCreated
		if result.FromCache {
			status = http.StatusOK
		}
		RespondJSON(w, status, resp)
	}
}

// ListDocuments returns a handler for listing stored documents.
// GET /api/v1/documents
func ListDocuments(svc DocumentService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summaries, err := svc.List(r.Context())
		if err != nil {
			logger.Error("failed to list documents", "error", err)
			RespondDomainError(w, err)
			return
		}
		if summaries == nil {
			summaries = []domain.DocumentSummary{}
		}
		RespondSuccess(w, summaries)
	}
}

// GetDocument returns a handler for fetching one stored record.
// GET /api/v1/documents/{fingerprint}
func GetDocument(svc DocumentService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fp, err := fingerprintParam(r)
		if err != nil {
			RespondBadRequest(w, err.Error())
			return
		}

		rec, err := svc.Get(r.Context(), fp)
		if err != nil {
			RespondDomainError(w, err)
			return
		}
		RespondJSON(w, http.StatusOK, rec)
	}
}

// DeleteDocument returns a handler that removes a document and all derived
// state.
// DELETE /api/v1/documents/{fingerprint}
func DeleteDocument(svc DocumentService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fp, err := fingerprintParam(r)
		if err != nil {
			RespondBadRequest(w, err.Error())
			return
		}

		if err := svc.Delete(r.Context(), fp); err != nil {
			logger.Error("failed to delete document", "fingerprint", fp.Short(), "error", err)
			RespondDomainError(w, err)
			return
		}
		RespondNoContent(w)
	}
}

// ReindexDocument returns a handler that rebuilds a document's vector index.
// POST /api/v1/documents/{fingerprint}/reindex?force=true
func ReindexDocument(svc DocumentService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fp, err := fingerprintParam(r)
		if err != nil {
			RespondBadRequest(w, err.Error())
			return
		}
		force := r.URL.Query().Get("force") == "true"

		handle, chunks, err := svc.Reindex(r.Context(), fp, force)
		if err != nil {
			logger.Error("reindex failed", "fingerprint", fp.Short(), "error", err)
			RespondDomainError(w, err)
			return
		}
		RespondJSON(w, http.StatusOK, ReindexResponse{
			Fingerprint: fp,
			IndexHandle: handle,
			ChunkCount:  chunks,
		})
	}
}

// HandleDownload returns a handler that streams the stored original PDF.
// GET /api/v1/documents/{fingerprint}/download
func HandleDownload(svc DocumentService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fp, err := fingerprintParam(r)
		if err != nil {
			RespondBadRequest(w, err.Error())
			return
		}

		data, err := svc.DownloadOriginal(r.Context(), fp)
		if err != nil {
			RespondDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fp.Short()+".pdf"))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			logger.Warn("failed to stream PDF", "fingerprint", fp.Short(), "error", err)
		}
	}
}

// HandleExport returns a handler that serves the analysis as a Markdown file.
// GET /api/v1/documents/{fingerprint}/export
func HandleExport(svc DocumentService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fp, err := fingerprintParam(r)
		if err != nil {
			RespondBadRequest(w, err.Error())
			return
		}

		data, name, err := svc.ExportAnalysis(r.Context(), fp)
		if err != nil {
			RespondDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			logger.Warn("failed to stream export", "fingerprint", fp.Short(), "error", err)
		}
	}
}
