// Package ocr provides text extraction from PDF documents through the
// Mistral OCR API.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fin360/financial-analyzer/internal/domain"
)

// Page is one extracted page: its zero-based number and markdown content.
type Page struct {
	PageNum  int    `json:"page_num"`
	Markdown string `json:"markdown"`
}

// Result is the ordered per-page output of an extraction call.
type Result struct {
	Pages []Page `json:"pages"`
}

// Extractor is the OCR capability the analysis pipeline depends on.
type Extractor interface {
	Extract(ctx context.Context, fileBytes []byte, fileName string, pages []int) (*Result, error)
}

// Config holds Mistral OCR client configuration.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	RequestTimeout time.Duration
}

// DefaultConfig returns defaults for the hosted Mistral endpoint.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:         apiKey,
		BaseURL:        "https://api.mistral.ai",
		Model:          "mistral-ocr-latest",
		RequestTimeout: 120 * time.Second,
	}
}

// MistralClient implements Extractor against the Mistral OCR HTTP API.
type MistralClient struct {
	config Config
	client *http.Client
	log    *slog.Logger
}

// NewMistralClient creates an OCR client.
func NewMistralClient(cfg Config, log *slog.Logger) (*MistralClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Mistral API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.mistral.ai"
	}
	if cfg.Model == "" {
		cfg.Model = "mistral-ocr-latest"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 120 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	return &MistralClient{
		config: cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		log:    log.With("component", "ocr"),
	}, nil
}

type ocrRequest struct {
	Model    string      `json:"model"`
	ID       string      `json:"id"`
	Document ocrDocument `json:"document"`
	Pages    []int       `json:"pages,omitempty"`
}

type ocrDocument struct {
	DocumentURL  string `json:"document_url"`
	DocumentName string `json:"document_name"`
	Type         string `json:"type"`
}

type ocrResponse struct {
	Pages []struct {
		Index    int    `json:"index"`
		Markdown string `json:"markdown"`
	} `json:"pages"`
}

// Extract sends the document as a base64 data URL and returns per-page
// markdown. Transport and format failures are re-signaled as
// ExtractionFailed with the cause attached.
func (c *MistralClient) Extract(ctx context.Context, fileBytes []byte, fileName string, pages []int) (*Result, error) {
	start := time.Now()

	payload := ocrRequest{
		Model: c.config.Model,
		ID:    uuid.New().String(),
		Document: ocrDocument{
			DocumentURL:  "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(fileBytes),
			DocumentName: fileName,
			Type:         "document_url",
		},
		Pages: pages,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.NewError(domain.KindExtractionFailed, "encoding OCR request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.config.BaseURL+"/v1/ocr", bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewError(domain.KindExtractionFailed, "building OCR request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.NewError(domain.KindExtractionFailed, "calling OCR API", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, domain.Errorf(domain.KindExtractionFailed,
			"OCR API returned status %d: %s", resp.StatusCode, string(msg))
	}

	var decoded ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, domain.NewError(domain.KindExtractionFailed, "decoding OCR response", err)
	}

	result := &Result{Pages: make([]Page, 0, len(decoded.Pages))}
	for _, p := range decoded.Pages {
		result.Pages = append(result.Pages, Page{PageNum: p.Index, Markdown: p.Markdown})
	}

	c.log.Info("extraction complete",
		"file", fileName,
		"pages", len(result.Pages),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}
