// Package tables extracts markdown pipe-tables from document text.
package tables

import (
	"strings"

	"github.com/fin360/financial-analyzer/internal/domain"
)

// Extract scans text for markdown pipe-tables and returns them in document
// order as 2D string grids. A table whose second line is a separator row
// (|---|---|) gets its first line promoted to headers.
func Extract(text string) []domain.Table {
	var found []domain.Table
	var block []string

	flush := func() {
		if t, ok := parseBlock(block); ok {
			found = append(found, t)
		}
		block = nil
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if isTableRow(trimmed) {
			block = append(block, trimmed)
			continue
		}
		flush()
	}
	flush()

	return found
}

// isTableRow reports whether a trimmed line looks like a pipe-table row.
func isTableRow(line string) bool {
	return strings.HasPrefix(line, "|") && strings.Count(line, "|") >= 2
}

// isSeparatorRow reports whether a row is the |---|:---:| divider.
func isSeparatorRow(line string) bool {
	inner := strings.Trim(line, "|")
	if strings.TrimSpace(inner) == "" {
		return false
	}
	for _, cell := range strings.Split(inner, "|") {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			return false
		}
		for _, r := range cell {
			if r != '-' && r != ':' {
				return false
			}
		}
	}
	return true
}

// parseBlock turns consecutive table rows into a Table. Blocks of fewer
// than two rows are not tables.
func parseBlock(rows []string) (domain.Table, bool) {
	if len(rows) < 2 {
		return domain.Table{}, false
	}

	var t domain.Table
	body := rows
	if len(rows) >= 2 && isSeparatorRow(rows[1]) {
		t.Headers = splitRow(rows[0])
		body = rows[2:]
	}

	for _, row := range body {
		if isSeparatorRow(row) {
			continue
		}
		t.Rows = append(t.Rows, splitRow(row))
	}

	if len(t.Rows) == 0 && len(t.Headers) == 0 {
		return domain.Table{}, false
	}
	return t, true
}

// splitRow splits a pipe row into trimmed cells, dropping the empty
// leading/trailing cells produced by the outer pipes.
func splitRow(row string) []string {
	parts := strings.Split(row, "|")
	if len(parts) > 0 && strings.TrimSpace(parts[0]) == "" {
		parts = parts[1:]
	}
	if len(parts) > 0 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

// Render writes a table back out as markdown.
func Render(t domain.Table) string {
	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("| ")
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString(" |\n")
	}

	if len(t.Headers) > 0 {
		writeRow(t.Headers)
		sep := make([]string, len(t.Headers))
		for i := range sep {
			sep[i] = "---"
		}
		writeRow(sep)
	}
	for _, row := range t.Rows {
		writeRow(row)
	}
	return b.String()
}

// SummarySection renders the tables found in an analysis under a
// "## SUMMARY TABLES" heading, or returns an empty string when the
// analysis contains none.
func SummarySection(analysis string) string {
	found := Extract(analysis)
	if len(found) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## SUMMARY TABLES\n")
	for _, t := range found {
		b.WriteString("\n")
		b.WriteString(Render(t))
	}
	return b.String()
}
