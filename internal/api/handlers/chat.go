// Package handlers provides HTTP request handlers for the API.
package handlers

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fin360/financial-analyzer/internal/domain"
	"github.com/fin360/financial-analyzer/internal/engine"
)

// ChatRequestBody represents the incoming chat request body.
type ChatRequestBody struct {
	Fingerprint string `json:"fingerprint"`
	Question    string `json:"question"`
	Mode        string `json:"mode,omitempty"`
	Source      string `json:"context_source,omitempty"`
	TopK        int    `json:"top_k,omitempty"`
	Image       string `json:"image,omitempty"` // base64-encoded
	ImageMIME   string `json:"image_mime,omitempty"`
}

// ChatResponse represents the chat API response.
type ChatResponse struct {
	Answer   string            `json:"answer"`
	History  []domain.ChatTurn `json:"history"`
	Metadata ChatMetadata      `json:"metadata"`
}

// ChatMetadata contains metadata about the response.
type ChatMetadata struct {
	Fingerprint    string `json:"fingerprint"`
	UsedRetrieval  bool   `json:"used_retrieval"`
	ProcessingTime int64  `json:"processing_time_ms"`
}

// ChatValidationError represents a validation error for chat requests.
type ChatValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidateChatRequest validates the chat request body.
func ValidateChatRequest(req *ChatRequestBody) []ChatValidationError {
	var errs []ChatValidationError

	if len(req.Fingerprint) != 64 {
		errs = append(errs, ChatValidationError{
			Field:   "fingerprint",
			Message: "Fingerprint must be 64 hex characters",
		})
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		errs = append(errs, ChatValidationError{
			Field:   "question",
			Message: "Question is required",
		})
	} else if utf8.RuneCountInString(question) > 4000 {
		errs = append(errs, ChatValidationError{
			Field:   "question",
			Message: "Question must not exceed 4000 characters",
		})
	}

	if req.Mode != "" && !domain.ChatMode(req.Mode).Valid() {
		errs = append(errs, ChatValidationError{
			Field:   "mode",
			Message: "Mode must be 'full' or 'retrieval'",
		})
	}
	if req.Source != "" && !domain.ContextSource(req.Source).Valid() {
		errs = append(errs, ChatValidationError{
			Field:   "context_source",
			Message: "Context source must be 'extracted_text' or 'analysis_result'",
		})
	}
	if req.TopK < 0 {
		errs = append(errs, ChatValidationError{
			Field:   "top_k",
			Message: "top_k must be non-negative",
		})
	}
	if req.Image != "" && req.ImageMIME == "" {
		errs = append(errs, ChatValidationError{
			Field:   "image_mime",
			Message: "image_mime is required when an image is attached",
		})
	}

	return errs
}

// HandleChat returns a handler for answering questions about an analyzed
// document.
// POST /api/v1/chat
//
// Request body:
//
//	{
//	  "fingerprint": "64-hex-sha256",
//	  "question": "What drove the EBITDA adjustments?",
//	  "mode": "retrieval",
//	  "context_source": "extracted_text"
//	}
func HandleChat(svc DocumentService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		var req ChatRequestBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Warn("failed to decode chat request", "error", err)
			RespondBadRequest(w, "Invalid request body")
			return
		}

		if validationErrors := ValidateChatRequest(&req); len(validationErrors) > 0 {
			logger.Warn("chat request validation failed", "errors", validationErrors)
			RespondValidationError(w, validationErrors)
			return
		}

		var image []byte
		if req.Image != "" {
			decoded, err := base64.StdEncoding.DecodeString(req.Image)
			if err != nil {
				RespondBadRequest(w, "Image must be base64-encoded")
				return
			}
			image = decoded
		}

		result, err := svc.Respond(r.Context(), engine.ChatRequest{
			Fingerprint: domain.Fingerprint(req.Fingerprint),
			Question:    strings.TrimSpace(req.Question),
			Mode:        domain.ChatMode(req.Mode),
			Source:      domain.ContextSource(req.Source),
			TopK:        req.TopK,
			Image:       image,
			ImageMIME:   req.ImageMIME,
		})
		if err != nil {
			logger.Error("chat failed",
				"fingerprint", domain.Fingerprint(req.Fingerprint).Short(),
				"error", err,
			)
			RespondDomainError(w, err)
			return
		}

		RespondJSON(w, http.StatusOK, ChatResponse{
			Answer:  result.Answer,
			History: result.History,
			Metadata: ChatMetadata{
				Fingerprint:    req.Fingerprint,
				UsedRetrieval:  result.UsedRetrieval,
				ProcessingTime: time.Since(startTime).Milliseconds(),
			},
		})
	}
}

// GetHistory returns a handler for fetching a document's conversation log.
// GET /api/v1/chat/{fingerprint}/history
func GetHistory(svc DocumentService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fp, err := fingerprintParam(r)
		if err != nil {
			RespondBadRequest(w, err.Error())
			return
		}

		history := svc.History(fp)
		if history == nil {
			history = []domain.ChatTurn{}
		}
		RespondSuccess(w, history)
	}
}

// ClearHistory returns a handler that drops one document's conversation log.
// DELETE /api/v1/chat/{fingerprint}/history
func ClearHistory(svc DocumentService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fp, err := fingerprintParam(r)
		if err != nil {
			RespondBadRequest(w, err.Error())
			return
		}

		svc.ClearHistory(fp)
		RespondNoContent(w)
	}
}

// ResetHistory returns a handler that drops every conversation log.
// DELETE /api/v1/chat/history
func ResetHistory(svc DocumentService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc.ResetHistory()
		RespondNoContent(w)
	}
}
