package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is a stable machine-readable classification for pipeline failures.
type ErrorKind string

const (
	// KindDocumentNotFound means no record exists for the fingerprint.
	KindDocumentNotFound ErrorKind = "DOCUMENT_NOT_FOUND"
	// KindInvalidPageRange means a requested page is negative or beyond the
	// document's page count.
	KindInvalidPageRange ErrorKind = "INVALID_PAGE_RANGE"
	// KindExtractionFailed wraps an upstream OCR failure.
	KindExtractionFailed ErrorKind = "EXTRACTION_FAILED"
	// KindGenerationFailed wraps an upstream LLM failure. Not retried.
	KindGenerationFailed ErrorKind = "GENERATION_FAILED"
	// KindEmptyIndex means retrieval was requested over zero chunks.
	KindEmptyIndex ErrorKind = "EMPTY_INDEX"
	// KindStorageUnavailable means the persistence layer cannot be reached.
	KindStorageUnavailable ErrorKind = "STORAGE_UNAVAILABLE"
	// KindInvalidConfig means chunking or engine parameters are out of range.
	KindInvalidConfig ErrorKind = "INVALID_CONFIG"
)

// Error carries a taxonomy kind, a human-readable message, and the original
// cause for diagnostics. External-capability failures are caught at the
// pipeline boundary and re-signaled as one of these; nothing is swallowed.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches errors of the same kind, so callers can use errors.Is with a
// bare kind sentinel such as ErrDocumentNotFound.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// NewError builds a taxonomy error with an optional wrapped cause.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Errorf builds a taxonomy error with a formatted message and no cause.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is matching by kind.
var (
	ErrDocumentNotFound   = &Error{Kind: KindDocumentNotFound, Message: "document not found"}
	ErrInvalidPageRange   = &Error{Kind: KindInvalidPageRange, Message: "invalid page range"}
	ErrExtractionFailed   = &Error{Kind: KindExtractionFailed, Message: "extraction failed"}
	ErrGenerationFailed   = &Error{Kind: KindGenerationFailed, Message: "generation failed"}
	ErrEmptyIndex         = &Error{Kind: KindEmptyIndex, Message: "empty index"}
	ErrStorageUnavailable = &Error{Kind: KindStorageUnavailable, Message: "storage unavailable"}
	ErrInvalidConfig      = &Error{Kind: KindInvalidConfig, Message: "invalid configuration"}
)

// KindOf returns the taxonomy kind of err, or an empty kind for errors
// outside the taxonomy.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given taxonomy kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
