// Package pdf provides lightweight PDF inspection used by the analysis
// pipeline: validity checks, page counting, and page-range validation.
package pdf

import (
	"bytes"
	"fmt"

	"github.com/gen2brain/go-fitz"

	"github.com/fin360/financial-analyzer/internal/domain"
)

// IsValidPDF reports whether data looks like a well-formed PDF. It checks
// the magic header first and only then pays the cost of opening it.
func IsValidPDF(data []byte) bool {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return false
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return false
	}
	defer doc.Close()
	return doc.NumPage() > 0
}

// PageCount returns the number of pages in the document.
func PageCount(data []byte) (int, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return 0, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

// ValidatePages checks each requested zero-based page against the actual
// page count. An empty request is valid and means "all pages".
func ValidatePages(pages []int, pageCount int) error {
	for _, p := range pages {
		if p < 0 || p >= pageCount {
			return domain.Errorf(domain.KindInvalidPageRange,
				"page %d out of range: document has %d pages", p, pageCount)
		}
	}
	return nil
}

// Inspector is the fitz-backed implementation of PDF inspection.
type Inspector struct{}

// IsValid reports whether data is a readable PDF.
func (Inspector) IsValid(data []byte) bool { return IsValidPDF(data) }

// PageCount returns the number of pages in the document.
func (Inspector) PageCount(data []byte) (int, error) { return PageCount(data) }

// NormalizePages expands an empty request into the full page list.
func NormalizePages(pages []int, pageCount int) []int {
	if len(pages) > 0 {
		return pages
	}
	all := make([]int, pageCount)
	for i := range all {
		all[i] = i
	}
	return all
}
