// Package domain defines the core types shared across the analysis pipeline.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Fingerprint is the content-addressed identity of a document: the SHA-256
// digest of its raw bytes, hex-encoded. Identical bytes always map to the
// same fingerprint, and the fingerprint is the sole primary key across the
// document store, the session cache, and index naming.
type Fingerprint string

// FingerprintBytes computes the fingerprint of raw file content.
func FingerprintBytes(data []byte) Fingerprint {
	sum := sha256.Sum256(data)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// Short returns a truncated form suitable for index names and log lines.
func (f Fingerprint) Short() string {
	if len(f) <= 20 {
		return string(f)
	}
	return string(f[:20])
}

func (f Fingerprint) String() string { return string(f) }

// Table is a 2D grid of cells extracted from the document text.
// Headers may be empty when the source table carried no header row.
type Table struct {
	Headers []string   `json:"headers,omitempty"`
	Rows    [][]string `json:"rows"`
}

// DocumentRecord is the durable unit of analysis output, keyed by fingerprint.
// A record is written atomically: readers see either the previous complete
// record or the new complete record, never a mix of columns.
type DocumentRecord struct {
	Fingerprint    Fingerprint `json:"fingerprint"`
	FileName       string      `json:"file_name"`
	ExtractedText  string      `json:"extracted_text"`
	AnalysisResult string      `json:"analysis_result"`
	Tables         []Table     `json:"extracted_tables"`
	IndexHandle    string      `json:"index_handle,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// DocumentSummary is the listing view of a stored document.
type DocumentSummary struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	FileName    string      `json:"file_name"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Role identifies the author of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatTurn is a single entry in a document's conversation log.
type ChatTurn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Image     []byte    `json:"image,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ContextSource selects which stored text a chat answer is grounded on.
type ContextSource string

const (
	ContextExtractedText  ContextSource = "extracted_text"
	ContextAnalysisResult ContextSource = "analysis_result"
)

// ChatMode selects the answering strategy.
type ChatMode string

const (
	// ChatModeFull supplies the entire selected context to the model.
	ChatModeFull ChatMode = "full"
	// ChatModeRetrieval narrows context to the top-k chunks nearest the
	// query embedding before generation, falling back to full context when
	// retrieval yields nothing usable.
	ChatModeRetrieval ChatMode = "retrieval"
)

// Valid reports whether the context source is one of the recognized values.
func (s ContextSource) Valid() bool {
	return s == ContextExtractedText || s == ContextAnalysisResult
}

// Valid reports whether the chat mode is one of the recognized values.
func (m ChatMode) Valid() bool {
	return m == ChatModeFull || m == ChatModeRetrieval
}
