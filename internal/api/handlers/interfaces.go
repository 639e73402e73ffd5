// Package handlers provides HTTP request handlers for the API.
package handlers

import (
	"context"

	"github.com/fin360/financial-analyzer/internal/domain"
	"github.com/fin360/financial-analyzer/internal/engine"
)

// DocumentService defines the analysis and chat operations handlers need.
// The engine satisfies it; tests supply a mock.
type DocumentService interface {
	Analyze(ctx context.Context, fileName string, data []byte, pages []int) (*engine.AnalyzeResult, error)
	Get(ctx context.Context, fp domain.Fingerprint) (*domain.DocumentRecord, error)
	List(ctx context.Context) ([]domain.DocumentSummary, error)
	Delete(ctx context.Context, fp domain.Fingerprint) error
	Reindex(ctx context.Context, fp domain.Fingerprint, force bool) (string, int, error)
	DownloadOriginal(ctx context.Context, fp domain.Fingerprint) ([]byte, error)
	ExportAnalysis(ctx context.Context, fp domain.Fingerprint) ([]byte, string, error)

	Respond(ctx context.Context, req engine.ChatRequest) (*engine.ChatResult, error)
	History(fp domain.Fingerprint) []domain.ChatTurn
	ClearHistory(fp domain.Fingerprint)
	ResetHistory()
}

// Database defines the health surface handlers need from the database.
type Database interface {
	Health(ctx context.Context) error
}

// ObjectStorage defines the health surface handlers need from object storage.
type ObjectStorage interface {
	Health(ctx context.Context) error
}
